package tagspeak

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// newBox creates a temp project with a red.tgsk sentinel and returns its
// root.
func newBox(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, Sentinel), []byte(""), 0o644))
	return dir
}

// testRuntime builds a runtime for a script living at dir/main.tgsk with
// captured stdout and empty stdin.
func testRuntime(t *testing.T, dir string) (*Runtime, *bytes.Buffer) {
	t.Helper()
	rt := NewRuntime(filepath.Join(dir, "main.tgsk"))
	out := &bytes.Buffer{}
	rt.Stdout = out
	rt.Stderr = &bytes.Buffer{}
	rt.Stdin = strings.NewReader("")
	return rt, out
}

// runScript parses and evaluates src in a fresh boxed runtime.
func runScript(t *testing.T, dir, src string) (*Runtime, *bytes.Buffer, Value, error) {
	t.Helper()
	rt, out := testRuntime(t, dir)
	v, err := RunProgram(rt, src)
	return rt, out, v, err
}

// mustRun asserts success and returns the runtime, stdout, and value.
func mustRun(t *testing.T, dir, src string) (*Runtime, *bytes.Buffer, Value) {
	t.Helper()
	rt, out, v, err := runScript(t, dir, src)
	require.NoError(t, err)
	return rt, out, v
}

func numVar(t *testing.T, rt *Runtime, name string) float64 {
	t.Helper()
	v, ok := rt.GetVar(name)
	require.True(t, ok, "variable %q should be bound", name)
	n, ok := v.AsNum()
	require.True(t, ok, "variable %q should be numeric", name)
	return n
}

func outLines(out *bytes.Buffer) []string {
	s := strings.TrimRight(out.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
