// packet_core.go — literal, arithmetic, variable, and I/O-free handlers.
package tagspeak

import (
	"bufio"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

// [note@anything] — structured comment. Pass-through: the previous last
// value is re-emitted.
func (rt *Runtime) handleNote(p *Packet) (Value, error) {
	return rt.Last, nil
}

// [msg@"text"] — string literal packet.
func (rt *Runtime) handleMsg(p *Packet) (Value, error) {
	if p.Arg == nil {
		return Str(""), nil
	}
	v := rt.ResolveArg(p.Arg)
	if v.Tag == TUnit && p.Arg.Kind == ArgIdent {
		// unbound identifier: the text itself is the message
		return Str(p.Arg.Str), nil
	}
	if v.Tag == TStr {
		return v, nil
	}
	return Str(v.Display()), nil
}

// [math@expr] — arithmetic over numeric variables. A bare number or a
// numeric variable returns directly; anything else compiles as an
// expression with the current numeric bindings in scope.
func (rt *Runtime) handleMath(p *Packet) (Value, error) {
	if p.Arg == nil {
		return Unit, scriptErr(EType, "[math] needs @<number|ident|expr>")
	}
	switch p.Arg.Kind {
	case ArgNum:
		return Num(p.Arg.Num), nil
	case ArgIdent:
		if v, ok := rt.GetVar(p.Arg.Str); ok {
			if n, ok := v.AsNum(); ok {
				return Num(n), nil
			}
			return Unit, scriptErr(EType, "[math] variable %q is not numeric", p.Arg.Str)
		}
	}
	text, _ := ArgText(p.Arg)
	return rt.evalMathExpr(text)
}

// evalMathExpr binds every numeric variable into the expression environment
// and evaluates.
func (rt *Runtime) evalMathExpr(src string) (Value, error) {
	env := map[string]interface{}{}
	for name, v := range rt.vars {
		if n, ok := v.AsNum(); ok {
			env[name] = n
		}
	}
	for name := range rt.ctxVars {
		if n, ok := rt.NumVar(name); ok {
			env[name] = n
		}
	}
	// Compiling against the environment lets bound variables take precedence
	// over expr's builtins of the same name (count, sum, ...).
	program, err := expr.Compile(src, expr.Env(env))
	if err != nil {
		return Unit, scriptErr(EType, "[math] cannot evaluate %q: %v", src, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return Unit, scriptErr(EType, "[math] cannot evaluate %q: %v", src, err)
	}
	switch n := out.(type) {
	case int:
		return Num(float64(n)), nil
	case int64:
		return Num(float64(n)), nil
	case float64:
		if math.IsInf(n, 0) {
			return Unit, scriptErr(EType, "[math] %q overflows", src)
		}
		return Num(n), nil
	case bool:
		return Bool(n), nil
	}
	return Unit, scriptErr(EType, "[math] %q is not numeric", src)
}

// [int@expr] — integer coercion: truncates numbers, parses numeric strings.
func (rt *Runtime) handleInt(p *Packet) (Value, error) {
	if p.Arg == nil {
		if n, ok := rt.Last.AsNum(); ok {
			return Num(math.Trunc(n)), nil
		}
		return Unit, scriptErr(EType, "[int] needs a numeric value")
	}
	if p.Arg.Kind == ArgNum {
		return Num(math.Trunc(p.Arg.Num)), nil
	}
	if p.Arg.Kind == ArgIdent {
		if v, ok := rt.GetVar(p.Arg.Str); ok {
			if n, ok := v.AsNum(); ok {
				return Num(math.Trunc(n)), nil
			}
			return Unit, scriptErr(EType, "[int] variable %q is not numeric", p.Arg.Str)
		}
	}
	text, _ := ArgText(p.Arg)
	v, err := rt.evalMathExpr(text)
	if err != nil {
		return Unit, err
	}
	if v.Tag != TNum {
		return Unit, scriptErr(EType, "[int] %q is not numeric", text)
	}
	return Num(math.Trunc(v.NumVal())), nil
}

// [bool@x] — truthiness coercion.
func (rt *Runtime) handleBool(p *Packet) (Value, error) {
	if p.Arg == nil {
		return Bool(rt.Last.Truthy()), nil
	}
	switch p.Arg.Kind {
	case ArgIdent:
		switch p.Arg.Str {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		}
	}
	return Bool(rt.ResolveArg(p.Arg).Truthy()), nil
}

// [store@name] — bind the last value. The bare form is Fluid.
func (rt *Runtime) handleStore(p *Packet) (Value, error) {
	name, err := storeName(p)
	if err != nil {
		return Unit, err
	}
	if err := rt.SetVar(name, rt.Last); err != nil {
		return Unit, err
	}
	return rt.Last, nil
}

// handleStoreMode dispatches [store:rigid@x], [store:fluid@x], and
// [store:context(pred)@x].
func (rt *Runtime) handleStoreMode(p *Packet) (Value, error) {
	name, err := storeName(p)
	if err != nil {
		return Unit, err
	}
	switch {
	case p.Op == "rigid":
		if err := rt.SetRigid(name, rt.Last); err != nil {
			return Unit, err
		}
	case p.Op == "fluid":
		if err := rt.SetVar(name, rt.Last); err != nil {
			return Unit, err
		}
	case p.Op == "context":
		if p.FlagRaw == "" {
			return Unit, scriptErr(EType, "[store:context] needs a (predicate)")
		}
		cond, perr := parseCondSource(newScanner(p.FlagRaw), p.FlagRaw, 0)
		if perr != nil {
			return Unit, perr
		}
		rt.PushContext(name, cond, rt.Last)
	default:
		return Unit, scriptErr(EType, "unknown store mode %q", p.Op)
	}
	return rt.Last, nil
}

func storeName(p *Packet) (string, error) {
	if p.Arg == nil || (p.Arg.Kind != ArgIdent && p.Arg.Kind != ArgStr) {
		return "", scriptErr(EType, "[store] needs @<name>")
	}
	name := p.Arg.Str
	if !isIdentLike(name) {
		return "", scriptErr(EType, "%q is not a valid variable name", name)
	}
	return name, nil
}

// [var@name] — explicit variable read.
func (rt *Runtime) handleVar(p *Packet) (Value, error) {
	name, ok := ArgText(p.Arg)
	if !ok {
		return Unit, scriptErr(EType, "[var] needs @<name>")
	}
	if rt.HasContext(name) {
		return rt.ReadVar(name)
	}
	v, _ := rt.GetVar(name)
	return v, nil
}

// [print@x] — print the argument (or last value). Pass-through.
func (rt *Runtime) handlePrint(p *Packet) (Value, error) {
	v := rt.argOrLast(p)
	fmt.Fprintln(rt.Stdout, v.Display())
	return rt.Last, nil
}

// [dump] — identity handler: prints and re-emits the last value.
func (rt *Runtime) handleDump(p *Packet) (Value, error) {
	fmt.Fprintln(rt.Stdout, rt.Last.Display())
	return rt.Last, nil
}

// [len@x] — length of a string, array, or object.
func (rt *Runtime) handleLen(p *Packet) (Value, error) {
	v := rt.argOrLast(p)
	switch v.Tag {
	case TStr:
		return Num(float64(len([]rune(v.StrVal())))), nil
	case TDoc:
		root := v.DocRef().Root
		switch root.Kind {
		case DocArray:
			return Num(float64(len(root.Items))), nil
		case DocObject:
			return Num(float64(len(root.Keys))), nil
		}
	}
	return Unit, scriptErr(EType, "[len] needs a string, array, or object (got %s)", v.Tag)
}

// [env@NAME] — environment variable read; Unit when unset.
func (rt *Runtime) handleEnv(p *Packet) (Value, error) {
	name, ok := ArgText(p.Arg)
	if !ok {
		return Unit, scriptErr(EType, "[env] needs @<NAME>")
	}
	if v, found := lookupEnv(name); found {
		return Str(v), nil
	}
	return Unit, nil
}

// [input@"prompt"] — read one line from stdin. Noninteractive mode returns
// Unit without prompting.
func (rt *Runtime) handleInput(p *Packet) (Value, error) {
	prompt := "> "
	if text, ok := ArgText(p.Arg); ok {
		prompt = text
	}
	if rt.Cfg.Noninteractive || !stdinIsTerminal(rt) {
		return Unit, nil
	}
	fmt.Fprint(rt.Stdout, prompt)
	line, err := bufio.NewReader(rt.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return Unit, nil
	}
	return Str(strings.TrimRight(line, "\r\n")), nil
}

// [cd@path] — move the working directory inside the box.
func (rt *Runtime) handleCD(p *Packet) (Value, error) {
	path, ok := ArgText(p.Arg)
	if !ok {
		return Unit, scriptErr(EType, "[cd] needs @<path>")
	}
	if err := rt.Box.CD(path); err != nil {
		return Unit, err
	}
	return Str("/" + rt.Box.Cwd), nil
}

// [array]{...} — build a Doc array from the body's statement values.
func (rt *Runtime) handleArray(p *Packet) (Value, error) {
	arr := NewArrayNode()
	for _, stmt := range p.Body {
		if rt.SignalActive() {
			break
		}
		v, err := rt.Eval(stmt)
		if err != nil {
			return Unit, err
		}
		arr.Items = append(arr.Items, valueToNode(v))
	}
	return DocVal(&Document{Root: arr, Format: "json"}), nil
}

// [obj]{ [key(name)@v] ... } — build a Doc object from key children.
func (rt *Runtime) handleObj(p *Packet) (Value, error) {
	obj, err := rt.buildObjectBody(p.Body)
	if err != nil {
		return Unit, err
	}
	return DocVal(&Document{Root: obj, Format: "json"}), nil
}

// handleCompareNamed implements [eq@rhs] and friends. Forms:
//
//	[eq]        → first-class comparator value
//	[eq@rhs]    → last value vs rhs
//	[eq@a b]    → variable a vs variable b
func (rt *Runtime) handleCompareNamed(p *Packet, name string) (Value, error) {
	kind, ok := cmpNames[name]
	if !ok {
		return Unit, rt.unknownPacket(p)
	}
	if p.Arg == nil {
		return CmpVal(kind), nil
	}
	if p.Arg.Kind == ArgRaw && strings.ContainsAny(p.Arg.Raw, " \t") {
		fields := strings.Fields(p.Arg.Raw)
		if len(fields) == 2 {
			a, err := rt.compareOperand(fields[0])
			if err != nil {
				return Unit, err
			}
			b, err := rt.compareOperand(fields[1])
			if err != nil {
				return Unit, err
			}
			return Bool(kind.Eval(a, b)), nil
		}
	}
	rhs := rt.ResolveArg(p.Arg)
	return Bool(kind.Eval(rt.Last, rhs)), nil
}

// compareOperand resolves one side of a two-operand comparison: a variable
// when bound, otherwise a literal reading of the text.
func (rt *Runtime) compareOperand(text string) (Value, error) {
	if v, ok := rt.GetVar(text); ok {
		return v, nil
	}
	switch text {
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	}
	if n, err := strconv.ParseFloat(text, 64); err == nil {
		return Num(n), nil
	}
	if isIdentLike(text) {
		return Unit, scriptErr(EUnknownVar, "variable %q is not defined", text)
	}
	return Str(text), nil
}
