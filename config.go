// config.go — .tagspeak.toml plus environment overrides.
//
// The config file lives at the box root and is read once per runtime.
// Precedence is CLI > env > file > defaults; the CLI layer applies its own
// flags on top of what LoadConfig returns.
package tagspeak

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the flattened view the runtime consumes.
type Config struct {
	AllowExec      bool
	ExecAllowlist  []string
	RunMaxDepth    int
	RequireYellow  bool // force yellow on [run]
	Noninteractive bool
	NetEnabled     bool
	NetAllow       []string
}

// configFile mirrors the .tagspeak.toml schema.
type configFile struct {
	Security struct {
		AllowExec     bool     `toml:"allow_exec"`
		ExecAllowlist []string `toml:"exec_allowlist"`
	} `toml:"security"`
	Run struct {
		MaxDepth      int  `toml:"max_depth"`
		RequireYellow bool `toml:"require_yellow"`
	} `toml:"run"`
	Prompts struct {
		Noninteractive bool `toml:"noninteractive"`
	} `toml:"prompts"`
	Network struct {
		Enabled bool     `toml:"enabled"`
		Allow   []string `toml:"allow"`
	} `toml:"network"`
}

const (
	defaultRunMaxDepth = 8
	defaultCallDepth   = 256
	defaultLoopMax     = 1_000_000
)

// LoadConfig reads .tagspeak.toml under root (ignored when root is "") and
// applies environment overrides.
func LoadConfig(root string) Config {
	cfg := Config{RunMaxDepth: defaultRunMaxDepth}

	if root != "" {
		var f configFile
		if _, err := toml.DecodeFile(filepath.Join(root, ".tagspeak.toml"), &f); err == nil {
			cfg.AllowExec = f.Security.AllowExec
			cfg.ExecAllowlist = f.Security.ExecAllowlist
			if f.Run.MaxDepth > 0 {
				cfg.RunMaxDepth = f.Run.MaxDepth
			}
			cfg.RequireYellow = f.Run.RequireYellow
			cfg.Noninteractive = f.Prompts.Noninteractive
			cfg.NetEnabled = f.Network.Enabled
			cfg.NetAllow = f.Network.Allow
		}
	}

	if v, ok := envBool("TAGSPEAK_ALLOW_EXEC"); ok {
		cfg.AllowExec = v
	}
	if v, ok := envBool("TAGSPEAK_NONINTERACTIVE"); ok {
		cfg.Noninteractive = v
	}
	if n, ok := envInt("TAGSPEAK_MAX_RUN_DEPTH"); ok && n > 0 {
		cfg.RunMaxDepth = n
	}
	if list, ok := envList("TAGSPEAK_EXEC_ALLOWLIST"); ok {
		cfg.ExecAllowlist = list
	}
	if v, ok := envBool("TAGSPEAK_NET_ENABLED"); ok {
		cfg.NetEnabled = v
	}
	if list, ok := envList("TAGSPEAK_NET_ALLOW"); ok {
		cfg.NetAllow = list
	}
	return cfg
}

func envBool(key string) (bool, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y":
		return true, true
	case "0", "false", "no", "n":
		return false, true
	}
	return false, false
}

func envInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func envList(key string) ([]string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil, false
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, true
}
