// catalog.go — the packet catalog, [help], and [lint].
package tagspeak

import (
	"fmt"
	"sort"
	"strings"
)

// knownPacketOps feeds did-you-mean suggestions and the lint unknown-packet
// check.
var knownPacketOps = []string{
	"note", "msg", "math", "int", "bool", "store", "var", "print", "dump",
	"len", "env", "input", "cd", "array", "obj",
	"funct", "call", "loop", "break", "return", "interrupt",
	"if", "or", "else", "then",
	"eq", "ne", "lt", "le", "gt", "ge",
	"load", "save", "log", "parse", "get", "exists", "mod",
	"key", "sect", "set", "comp", "merge", "delete", "del", "remove",
	"insert", "ins", "append", "push",
	"exec", "run", "tagspeak", "yellow", "confirm", "red", "http", "repl",
	"help", "lint",
}

var knownNamespaces = map[string]bool{
	"store": true, "loop": true, "funct": true, "cmp": true,
	"yellow": true, "tagspeak": true, "input": true,
}

// packetHelp is the reference text behind [help@packet] and `tagspeak help`.
var packetHelp = map[string]string{
	"math":  `[math@expr] - evaluate arithmetic over numeric variables: [math@count+1].`,
	"store": `[store@x] - bind the last value (fluid). Modes: [store:rigid@x] write-once, [store:fluid@x], [store:context(pred)@x] guarded bindings resolved on read.`,
	"print": `[print@x] - print a value (or the last value). Pass-through.`,
	"dump":  `[dump] - print the last value and pass it through unchanged.`,
	"var":   `[var@name] - read a variable; Unit when unbound.`,
	"if":    `[if@(cond)]{...}>[or@(cond)]{...}>[else]{...} - first truthy branch runs. Conditions support ==, !=, <, <=, >, >=, !, &&, ||.`,
	"loop":  `[loop@N]{...} counted; [loopN@tag] / [loop:tag@N] run a funct; [loop:forever]{...}; [loop:until(cond)]{...}; [loop:each(item,idx@handle)]{...}.`,
	"funct": `[funct:tag]{...} - register a named block. Invoke with [call@tag] or [loopN@tag].`,
	"call":  `[call@tag] - evaluate a registered funct; [return@v] inside sets its result.`,
	"break": `[break] - exit the nearest loop.`,
	"return": `[return@v] - exit the nearest funct (or loop) with v.`,
	"interrupt": `[interrupt@v] - unwind loops and keep going; an uncaught interrupt ends the program with v.`,
	"load":  `[load@path] - parse a JSON/YAML/TOML file inside the box into a document handle.`,
	"save":  `[save@handle] - write a loaded document back to its origin; [save@path] writes the pipeline document there.`,
	"log":   `[log@path] - write the last value as JSON. [log(json)@path]{[key(name)@v] [sect@s]{...}} builds a document in order.`,
	"mod":   `[mod@handle]{[set(path)@v] [merge(path)@{...}] [del(path)] [ins(path)@v] [append(path)@v]} - edit a document in place. Flags: (overwrite), (debug).`,
	"get":   `[get(path)@handle] - read a value out of a document.`,
	"exists": `[exists(path)@handle] - true when the path resolves.`,
	"parse": `[parse(json)@text] - parse a string into a document handle.`,
	"exec":  `[exec@"cmd"] - run a shell command (yellow-gated). Modes: (code), (stderr), (json).`,
	"run":   `[run@/script.tgsk] - evaluate another script in this runtime, inside the box.`,
	"yellow": `[yellow@"why"]{...} - consent gate: prompts once, runs the body on yes.`,
	"red":   `[red@"why"] - session flag for meta packets like [repl]; never bypasses yellow.`,
	"http":  `[http(get)@url]{[key(header.X)@v] [key(json)@{...}]} - default-deny; needs [network] enabled and an allow-entry.`,
	"cd":    `[cd@path] - move the working directory inside the box.`,
	"env":   `[env@NAME] - read an environment variable; Unit when unset.`,
	"input": `[input@"prompt"] - read a line from stdin; Unit in noninteractive sessions.`,
	"eq":    `[eq@rhs] - compare the last value with rhs; [eq@a b] compares two variables; bare [eq] is a comparator value. Also ne, lt, le, gt, ge.`,
}

// HelpText renders the reference for one packet, or the index when topic is
// empty.
func HelpText(topic string) string {
	topic = strings.TrimSpace(strings.Trim(topic, "[]"))
	if topic != "" {
		if h, ok := packetHelp[topic]; ok {
			return h
		}
		if s := suggestPacket(topic); s != "" {
			if h, ok := packetHelp[s]; ok {
				return fmt.Sprintf("no help for %q - closest match:\n%s", topic, h)
			}
		}
		return fmt.Sprintf("no help for %q", topic)
	}
	topics := make([]string, 0, len(packetHelp))
	for k := range packetHelp {
		topics = append(topics, k)
	}
	sort.Strings(topics)
	var b strings.Builder
	b.WriteString("TagSpeak packet reference\n\n")
	for _, t := range topics {
		b.WriteString(packetHelp[t])
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// [help@packet]
func (rt *Runtime) handleHelp(p *Packet) (Value, error) {
	topic, _ := ArgText(p.Arg)
	return Str(HelpText(topic)), nil
}

// ---------------------------------------------------------------------------
// lint
// ---------------------------------------------------------------------------

// LintSource runs the heuristics over a script and returns findings.
func LintSource(src string) []string {
	var warnings []string
	for i, line := range strings.Split(src, "\n") {
		if strings.Contains(line, "TODO") || strings.Contains(line, "FIXME") {
			warnings = append(warnings, fmt.Sprintf("line %d: unfinished marker (%s)", i+1, strings.TrimSpace(line)))
		}
	}
	ast, err := Parse(src)
	if err != nil {
		return append(warnings, "parse blocked lint: "+err.Error())
	}
	walkLint(ast, false, &warnings)
	sort.Strings(warnings)
	return dedupeStrings(warnings)
}

func walkLint(n *Node, inYellow bool, warnings *[]string) {
	switch n.Kind {
	case NChain, NBlock:
		for _, c := range n.List {
			walkLint(c, inYellow, warnings)
		}
	case NIf:
		for _, br := range n.If.Branches {
			for _, c := range br.Body {
				walkLint(c, inYellow, warnings)
			}
		}
		for _, c := range n.If.Else {
			walkLint(c, inYellow, warnings)
		}
	case NPacket:
		p := n.Pkt
		yellowHere := inYellow || (p.NS == "" && (p.Op == "yellow" || p.Op == "confirm")) || p.NS == "yellow"
		if p.NS == "" && p.Op == "exec" && !yellowHere {
			*warnings = append(*warnings, "[exec] outside [yellow]{...} will prompt or be denied")
		}
		if !packetIsKnown(p) {
			*warnings = append(*warnings, fmt.Sprintf("unknown packet [%s]", p.FullOp()))
		}
		for _, c := range p.Body {
			walkLint(c, yellowHere, warnings)
		}
	}
}

func packetIsKnown(p *Packet) bool {
	if p.NS != "" {
		return knownNamespaces[p.NS]
	}
	for _, op := range knownPacketOps {
		if op == p.Op {
			return true
		}
	}
	return strings.HasPrefix(p.Op, "loop")
}

func dedupeStrings(in []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// [lint@source] — lint script text: a literal, a variable holding text, or
// the pipeline value.
func (rt *Runtime) handleLint(p *Packet) (Value, error) {
	var src string
	switch {
	case p.Arg == nil:
		if rt.Last.Tag != TStr {
			return Unit, scriptErr(EType, "[lint] needs script text")
		}
		src = rt.Last.StrVal()
	case p.Arg.Kind == ArgIdent:
		v, err := rt.ReadVar(p.Arg.Str)
		if err != nil {
			return Unit, err
		}
		if v.Tag != TStr {
			return Unit, scriptErr(EType, "[lint@%s] expects the variable to hold script text", p.Arg.Str)
		}
		src = v.StrVal()
	default:
		text, _ := ArgText(p.Arg)
		src = text
	}
	warnings := LintSource(src)
	if len(warnings) == 0 {
		return Str("Lint clean: no warnings detected."), nil
	}
	var b strings.Builder
	b.WriteString("Lint findings:\n")
	for _, w := range warnings {
		b.WriteString("- ")
		b.WriteString(w)
		b.WriteByte('\n')
	}
	return Str(strings.TrimRight(b.String(), "\n")), nil
}
