package tagspeak

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Config_Defaults(t *testing.T) {
	cfg := LoadConfig("")
	require.False(t, cfg.AllowExec)
	require.Empty(t, cfg.ExecAllowlist)
	require.Equal(t, defaultRunMaxDepth, cfg.RunMaxDepth)
	require.False(t, cfg.RequireYellow)
	require.False(t, cfg.Noninteractive)
	require.False(t, cfg.NetEnabled)
}

func Test_Config_FileValues(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tagspeak.toml"), []byte(`
[security]
allow_exec = true
exec_allowlist = ["git", "ls"]

[run]
max_depth = 4
require_yellow = true

[prompts]
noninteractive = true

[network]
enabled = true
allow = ["https://api.example.com"]
`), 0o644))

	cfg := LoadConfig(dir)
	require.True(t, cfg.AllowExec)
	require.Equal(t, []string{"git", "ls"}, cfg.ExecAllowlist)
	require.Equal(t, 4, cfg.RunMaxDepth)
	require.True(t, cfg.RequireYellow)
	require.True(t, cfg.Noninteractive)
	require.True(t, cfg.NetEnabled)
	require.Equal(t, []string{"https://api.example.com"}, cfg.NetAllow)
}

func Test_Config_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tagspeak.toml"),
		[]byte("[run]\nmax_depth = 4\n[security]\nallow_exec = false\n"), 0o644))

	t.Setenv("TAGSPEAK_MAX_RUN_DEPTH", "11")
	t.Setenv("TAGSPEAK_ALLOW_EXEC", "yes")
	cfg := LoadConfig(dir)
	require.Equal(t, 11, cfg.RunMaxDepth)
	require.True(t, cfg.AllowExec)
}

func Test_Config_TruthyEnvSpellings(t *testing.T) {
	for _, v := range []string{"1", "true", "y", "yes"} {
		t.Setenv("TAGSPEAK_NONINTERACTIVE", v)
		cfg := LoadConfig("")
		require.True(t, cfg.Noninteractive, "spelling %q", v)
	}
	t.Setenv("TAGSPEAK_NONINTERACTIVE", "0")
	cfg := LoadConfig("")
	require.False(t, cfg.Noninteractive)
}

func Test_Config_MalformedFileIgnored(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tagspeak.toml"),
		[]byte("not toml at all ["), 0o644))
	cfg := LoadConfig(dir)
	require.Equal(t, defaultRunMaxDepth, cfg.RunMaxDepth)
}
