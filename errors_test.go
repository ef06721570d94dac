package tagspeak

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Errors_CodeLineAndDetail(t *testing.T) {
	err := scriptErr(ERigidRebind, "%q is rigid", "x")
	require.Equal(t, `E_RIGID_REBIND: "x" is rigid`, err.Error())
	require.Equal(t, ERigidRebind, CodeOf(err))
}

func Test_Errors_CodeOfForeignError(t *testing.T) {
	require.Equal(t, "", CodeOf(nil))
	require.Equal(t, "", CodeOf(assertError("plain")))
}

type assertError string

func (e assertError) Error() string { return string(e) }

func Test_Errors_CaretSnippetPlacement(t *testing.T) {
	src := "[math@1]\n[oops!]\n[print]"
	snippet := caretSnippet(src, 2, 3)
	lines := strings.Split(snippet, "\n")
	require.Equal(t, "   1 | [math@1]", lines[0])
	require.Equal(t, "   2 | [oops!]", lines[1])
	require.Equal(t, "     |   ^", lines[2])
	require.Equal(t, "   3 | [print]", lines[3])
}

func Test_Errors_CaretClampsOutOfRange(t *testing.T) {
	require.NotPanics(t, func() {
		caretSnippet("", 10, 10)
		caretSnippet("one line", 0, 0)
	})
}

func Test_Errors_RenderIncludesHint(t *testing.T) {
	_, err := Parse(`[]`)
	require.Error(t, err)
	se := err.(*ScriptError)
	out := se.Render()
	require.Contains(t, out, EParseEmptyOp)
	require.Contains(t, out, "Packet -")
	require.Contains(t, out, "^")
}

func Test_Errors_UnknownPacketSuggests(t *testing.T) {
	dir := newBox(t)
	_, _, _, err := runScript(t, dir, `[prnt@"hi"]`)
	require.Equal(t, EUnknownPacket, CodeOf(err))
	se := err.(*ScriptError)
	require.Contains(t, se.Hint, "print")
}

func Test_Errors_UnknownPacketNoWildGuess(t *testing.T) {
	dir := newBox(t)
	_, _, _, err := runScript(t, dir, `[zzzzqqqq]`)
	require.Equal(t, EUnknownPacket, CodeOf(err))
}
