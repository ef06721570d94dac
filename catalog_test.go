package tagspeak

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Catalog_HelpIndexAndTopics(t *testing.T) {
	index := HelpText("")
	require.Contains(t, index, "TagSpeak packet reference")
	require.Contains(t, index, "[store@x]")

	require.Contains(t, HelpText("loop"), "loop:until")
	require.Contains(t, HelpText("[mod]"), "edit a document")
	require.Contains(t, HelpText("nosuch"), "no help")
}

func Test_Catalog_SuggestClosePacket(t *testing.T) {
	require.Equal(t, "store", suggestPacket("stor"))
	require.Equal(t, "", suggestPacket("qqqqzzzz"))
}

func Test_Lint_CleanScript(t *testing.T) {
	require.Empty(t, LintSource(`[math@1]>[print]`))
}

func Test_Lint_Findings(t *testing.T) {
	warnings := LintSource("# TODO finish this\n[exec@\"rm -rf /tmp/x\"]\n[notarealpacket@1]\n")
	joined := strings.Join(warnings, "\n")
	require.Contains(t, joined, "unfinished marker")
	require.Contains(t, joined, "[exec] outside [yellow]")
	require.Contains(t, joined, "unknown packet [notarealpacket]")
}

func Test_Lint_ExecInsideYellowIsFine(t *testing.T) {
	warnings := LintSource(`[yellow@"ok"]{[exec@"echo hi"]}`)
	require.Empty(t, warnings)
}

func Test_Lint_ParseErrorSurfaces(t *testing.T) {
	warnings := LintSource(`[print`)
	require.NotEmpty(t, warnings)
	require.Contains(t, warnings[0], "parse blocked lint")
}

func Test_Lint_PacketHandler(t *testing.T) {
	dir := newBox(t)
	_, _, v := mustRun(t, dir, `[lint@"[math@1]>[print]"]`)
	require.Contains(t, v.StrVal(), "Lint clean")
}
