// packet_exec.go — consent-gated side effects: exec, run, yellow, red,
// http, repl.
//
// Yellow is per-block consent: one prompt, then the body runs with the
// yellow depth raised. Red is a session-wide flag for meta packets and never
// bypasses yellow. [exec] outside any consent path prompts for itself;
// noninteractive sessions auto-deny and return Unit rather than failing.
package tagspeak

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

func lookupEnv(name string) (string, bool) { return os.LookupEnv(name) }

// stdinIsTerminal reports whether prompts can actually reach a person.
// Tests substitute rt.Stdin, which counts as interactive.
func stdinIsTerminal(rt *Runtime) bool {
	if f, ok := rt.Stdin.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return rt.Stdin != nil
}

// promptConsent asks once on stdin. Answers: y/yes proceed, a/always
// proceed and latch allow-all for the session, anything else denies.
// extraEnv names additional env switches (TAGSPEAK_ALLOW_EXEC,
// TAGSPEAK_ALLOW_RUN) that pre-grant this particular prompt.
func (rt *Runtime) promptConsent(msg string, extraEnv ...string) bool {
	if rt.YellowAll() {
		return true
	}
	for _, key := range append([]string{"TAGSPEAK_ALLOW_YELLOW"}, extraEnv...) {
		if v, ok := envBool(key); ok && v {
			return true
		}
	}
	if rt.Cfg.Noninteractive || !stdinIsTerminal(rt) {
		return false
	}
	fmt.Fprintf(rt.Stdout, "[confirm] %s\n", msg)
	fmt.Fprint(rt.Stdout, "Proceed? [y/N/a] ")
	line, err := bufio.NewReader(rt.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "a", "always":
		rt.LatchYellowAll()
		return true
	case "y", "yes":
		return true
	}
	return false
}

// [yellow@"msg"]{body} / [confirm@"msg"]{body} — gate a block behind one
// prompt. A denial returns Unit without running the body.
func (rt *Runtime) handleYellow(p *Packet) (Value, error) {
	if p.Body == nil {
		return Unit, scriptErr(EType, "[yellow] needs a {body}")
	}
	msg := "Are you sure you want to continue?"
	if text, ok := ArgText(p.Arg); ok {
		msg = text
	}
	if !rt.promptConsent(msg) {
		return Unit, nil
	}
	rt.yellowDepth++
	out, err := rt.evalList(p.Body)
	rt.yellowDepth--
	return out, err
}

// handleYellowSugar covers [yellow:exec@cmd] and [yellow:run@path].
func (rt *Runtime) handleYellowSugar(p *Packet) (Value, error) {
	target, _ := ArgText(p.Arg)
	var msg, envKey string
	switch p.Op {
	case "exec":
		msg = "Execute external command?\n  cmd: " + target
		envKey = "TAGSPEAK_ALLOW_EXEC"
	case "run":
		msg = "Run TagSpeak script?\n  file: " + target
		envKey = "TAGSPEAK_ALLOW_RUN"
	default:
		return Unit, rt.unknownPacket(p)
	}
	if !rt.promptConsent(msg, envKey) {
		return Unit, nil
	}
	rt.yellowDepth++
	defer func() { rt.yellowDepth-- }()
	if p.Op == "exec" {
		return rt.handleExec(p)
	}
	return rt.handleRun(p)
}

// [red@"msg"] — flip the session's red flag. Required by red-only packets;
// never a substitute for yellow.
func (rt *Runtime) handleRed(p *Packet) (Value, error) {
	rt.EnableRed()
	return Bool(true), nil
}

// ---------------------------------------------------------------------------
// [exec]
// ---------------------------------------------------------------------------

// [exec@"cmd"] — run a shell command inside the box's working directory.
// Modes: (code) exit code, (stderr) stderr text, (json) a JSON string
// {code,stdout,stderr}; the default is stdout text.
func (rt *Runtime) handleExec(p *Packet) (Value, error) {
	if rt.Box.Root == "" {
		return Unit, scriptErr(EBoxRequired, "[exec] is disabled without a %s root", Sentinel)
	}
	cmdline, ok := ArgText(p.Arg)
	if !ok {
		return Unit, scriptErr(EType, "[exec] needs @<command>")
	}

	if !rt.execAllowed(cmdline) {
		granted := rt.promptConsent("Execute external command?\n  cmd: "+cmdline, "TAGSPEAK_ALLOW_EXEC")
		if !granted {
			return Unit, nil
		}
	}

	cmd := exec.Command("sh", "-c", cmdline)
	cmd.Dir = rt.Box.WorkDir()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	code := 0
	if runErr != nil {
		exitErr, isExit := runErr.(*exec.ExitError)
		if !isExit {
			return Unit, scriptErr(EExec, "cannot run %q: %v", cmdline, runErr)
		}
		code = exitErr.ExitCode()
	}

	mode := ""
	if len(p.Flags) > 0 {
		mode = strings.ToLower(p.Flags[0])
	}
	switch mode {
	case "code":
		return Num(float64(code)), nil
	case "stderr":
		return Str(stderr.String()), nil
	case "json":
		obj := NewObjectNode()
		obj.Set("code", NumNode(float64(code)))
		obj.Set("stdout", StrNode(stdout.String()))
		obj.Set("stderr", StrNode(stderr.String()))
		return Str(obj.encodeJSON(false)), nil
	default:
		return Str(stdout.String()), nil
	}
}

// execAllowed reports whether [exec] may proceed without its own prompt:
// inside a yellow block, allowed by config, or the command's first word is
// allowlisted.
func (rt *Runtime) execAllowed(cmdline string) bool {
	if rt.InYellow() || rt.Cfg.AllowExec {
		return true
	}
	first := ""
	if fields := strings.Fields(cmdline); len(fields) > 0 {
		first = fields[0]
	}
	for _, allowed := range rt.Cfg.ExecAllowlist {
		if allowed == first {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// [run]
// ---------------------------------------------------------------------------

// [run@/script.tgsk] — parse and evaluate another script in this runtime.
// The cwd moves to the script's directory for the duration of the call.
func (rt *Runtime) handleRun(p *Packet) (Value, error) {
	if rt.Box.Root == "" {
		return Unit, scriptErr(EBoxRequired, "[run] is disabled without a %s root", Sentinel)
	}
	raw, ok := ArgText(p.Arg)
	if !ok {
		return Unit, scriptErr(EType, "[run] needs @<path>")
	}
	if rt.Cfg.RequireYellow && !rt.InYellow() {
		return Unit, scriptErr(EYellowRequired,
			"wrap [run] in [yellow]{...} or use [yellow:run@...]")
	}
	if rt.runDepth >= rt.Cfg.RunMaxDepth {
		return Unit, scriptErr(ERunDepthExceeded, "run nesting exceeds %d", rt.Cfg.RunMaxDepth)
	}
	path, err := rt.Box.Resolve(raw)
	if err != nil {
		return Unit, err
	}
	if !strings.EqualFold(filepath.Ext(path), ".tgsk") {
		return Unit, scriptErr(EType, "[run] expects a .tgsk file")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Unit, scriptErr(EBoxViolation, "cannot read %q: %v", raw, err)
	}
	ast, err := Parse(string(data))
	if err != nil {
		return Unit, err
	}

	prevCwd := rt.Box.Cwd
	if rel, err := filepath.Rel(rt.Box.Root, filepath.Dir(path)); err == nil && !strings.HasPrefix(rel, "..") {
		if rel == "." {
			rel = ""
		}
		rt.Box.Cwd = rel
	}
	rt.runDepth++
	out, evalErr := rt.Eval(ast)
	rt.runDepth--
	rt.Box.Cwd = prevCwd
	if evalErr != nil {
		return Unit, evalErr
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// [http]
// ---------------------------------------------------------------------------

// [http(verb)@url]{[key(header.X)@v] [key(json)@{...}] [key(body)@"raw"]}
//
// Default-deny: the network section must be enabled and the URL must match
// an allow-entry by parsed components. URLs carrying userinfo are rejected
// before any network activity.
func (rt *Runtime) handleHTTP(p *Packet) (Value, error) {
	if rt.Box.Root == "" {
		return Unit, scriptErr(EBoxRequired, "[http] is disabled without a %s root", Sentinel)
	}
	if !rt.Cfg.NetEnabled {
		return Unit, scriptErr(EHTTP, "network disabled; enable [network] in .tagspeak.toml")
	}
	if len(p.Flags) == 0 {
		return Unit, scriptErr(EType, "[http] needs a verb: http(get|post|put|delete)")
	}
	verb := strings.ToUpper(p.Flags[0])
	switch verb {
	case "GET", "POST", "PUT", "DELETE":
	default:
		return Unit, scriptErr(EType, "[http] verb %q is not supported", p.Flags[0])
	}
	rawURL, ok := ArgText(p.Arg)
	if !ok {
		return Unit, scriptErr(EType, "[http] needs @<url>")
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Unit, scriptErr(EHTTP, "%q is not a valid URL", rawURL)
	}
	if u.User != nil {
		return Unit, scriptErr(EBoxViolation, "URLs with userinfo are not allowed")
	}
	if !urlAllowed(rt.Cfg.NetAllow, u) {
		return Unit, scriptErr(EBoxViolation, "%q is not covered by [network.allow]", rawURL)
	}

	var body []byte
	headers := map[string]string{}
	if p.Body != nil {
		for _, stmt := range p.Body {
			if stmt.Kind != NPacket || stmt.Pkt.Op != "key" {
				return Unit, scriptErr(EType, "[http] bodies hold [key(...)] packets only")
			}
			pkt := stmt.Pkt
			name := pkt.FlagRaw
			switch {
			case strings.HasPrefix(name, "header."):
				headers[strings.TrimPrefix(name, "header.")] = rt.ResolveArg(pkt.Arg).Display()
			case name == "json":
				node := valueToNode(rt.keyValue(pkt.Arg))
				body = []byte(node.encodeJSON(false))
				headers["Content-Type"] = "application/json"
			case name == "body":
				body = []byte(rt.ResolveArg(pkt.Arg).Display())
			default:
				return Unit, scriptErr(EType, "[http] does not understand [key(%s)]", name)
			}
		}
	}

	req, err := http.NewRequest(verb, u.String(), bytes.NewReader(body))
	if err != nil {
		return Unit, scriptErr(EHTTP, "%v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Unit, scriptErr(EHTTP, "%v", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return Unit, scriptErr(EHTTP, "%v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code := fmt.Sprintf("%s:%d", EHTTPStatus, resp.StatusCode)
		return Unit, scriptErr(code, "request to %q returned %s", rawURL, resp.Status)
	}
	return Str(buf.String()), nil
}

// urlAllowed matches by parsed components: scheme (when the entry has one),
// host case-insensitively (with *.suffix wildcards), optional port, and
// optional path prefix.
func urlAllowed(allow []string, u *url.URL) bool {
	for _, pat := range allow {
		pat = strings.TrimSpace(pat)
		if pat == "" {
			continue
		}
		if strings.HasPrefix(pat, "*.") {
			if strings.HasSuffix(strings.ToLower(u.Hostname()), strings.ToLower(pat[2:])) {
				return true
			}
			continue
		}
		if !strings.Contains(pat, "://") {
			// bare host[:port]
			host, port := splitHostPort(pat)
			if strings.EqualFold(host, u.Hostname()) && (port == "" || port == u.Port()) {
				return true
			}
			continue
		}
		pu, err := url.Parse(pat)
		if err != nil {
			continue
		}
		if !strings.EqualFold(pu.Scheme, u.Scheme) {
			continue
		}
		if !strings.EqualFold(pu.Hostname(), u.Hostname()) {
			continue
		}
		if pu.Port() != "" && pu.Port() != u.Port() {
			continue
		}
		if pu.Path != "" && pu.Path != "/" && !strings.HasPrefix(u.Path, pu.Path) {
			continue
		}
		return true
	}
	return false
}

func splitHostPort(s string) (string, string) {
	if i := strings.LastIndexByte(s, ':'); i >= 0 && !strings.Contains(s[i+1:], "]") {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// ---------------------------------------------------------------------------
// [repl]
// ---------------------------------------------------------------------------

// [repl] — interactive read-eval loop over this runtime. Red-only.
func (rt *Runtime) handleRepl(p *Packet) (Value, error) {
	if !rt.RedEnabled() {
		return Unit, scriptErr(ERedRequired, "[repl] needs [red] earlier in the session")
	}
	if rt.Cfg.Noninteractive || !stdinIsTerminal(rt) {
		return Unit, nil
	}
	return rt.replLoop()
}

// Repl exposes the interactive loop to the CLI's `tagspeak repl` command,
// which supplies its own red consent.
func (rt *Runtime) Repl() error {
	_, err := rt.replLoop()
	return err
}

// replLoop drives the liner-backed prompt until exit/EOF. Shared with the
// `tagspeak repl` CLI command.
func (rt *Runtime) replLoop() (Value, error) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		src, err := line.Prompt("tgsk> ")
		if err != nil {
			break
		}
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		if src == "exit" || src == "quit" {
			break
		}
		line.AppendHistory(src)
		out, err := RunProgram(rt, src)
		if err != nil {
			fmt.Fprintln(rt.Stderr, RenderError(err))
			continue
		}
		if out.Tag != TUnit {
			fmt.Fprintln(rt.Stdout, out.Display())
		}
	}
	return rt.Last, nil
}
