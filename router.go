// router.go — the evaluator: tree walking, chain threading, and dispatch.
//
// Eval walks the AST, keeps Runtime.Last current, and routes every packet to
// its handler by (namespace, op). Handlers return the packet's output value;
// pass-through packets re-emit the previous last value themselves. Signals
// short-circuit statement lists and are consumed by the construct that owns
// them (loops for Break, functs for Return; Interrupt keeps going).
package tagspeak

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Eval evaluates a node and updates the last value.
func (rt *Runtime) Eval(n *Node) (Value, error) {
	var out Value
	var err error
	switch n.Kind {
	case NChain, NBlock:
		out, err = rt.evalList(n.List)
	case NPacket:
		out, err = rt.evalPacket(n.Pkt)
	case NIf:
		out, err = rt.evalIfChain(n.If)
	case NComparator:
		out = CmpVal(n.Cmp)
	}
	if err != nil {
		return Unit, err
	}
	rt.Last = out
	return out, nil
}

// evalList runs statements top-to-bottom, stopping when a signal is raised.
// Its value is the last statement's value.
func (rt *Runtime) evalList(list []*Node) (Value, error) {
	last := rt.Last
	for _, n := range list {
		if rt.SignalActive() {
			break
		}
		v, err := rt.Eval(n)
		if err != nil {
			return Unit, err
		}
		last = v
		if rt.SignalActive() {
			break
		}
	}
	return last, nil
}

// EvalBody evaluates a packet body as a block.
func (rt *Runtime) EvalBody(body []*Node) (Value, error) {
	return rt.evalList(body)
}

func (rt *Runtime) evalIfChain(ic *IfChain) (Value, error) {
	for _, br := range ic.Branches {
		ok, err := rt.evalCond(br.Cond)
		if err != nil {
			return Unit, err
		}
		if ok {
			return rt.evalList(br.Body)
		}
	}
	if ic.Else != nil {
		return rt.evalList(ic.Else)
	}
	return Unit, nil
}

// evalPacket is the central dispatch table. The shape mirrors the language:
// namespaced families first, then plain ops.
func (rt *Runtime) evalPacket(p *Packet) (Value, error) {
	switch p.NS {
	case "store":
		return rt.handleStoreMode(p)
	case "loop":
		return rt.handleLoopNS(p)
	case "funct":
		return rt.handleFunctNS(p)
	case "cmp":
		return rt.handleCompareNamed(p, p.Op)
	case "yellow":
		return rt.handleYellowSugar(p)
	case "tagspeak":
		// [tagspeak:run] is an alias of [run], same caps and gates
		if p.Op == "run" {
			return rt.handleRun(p)
		}
		return Unit, rt.unknownPacket(p)
	case "input":
		if p.Op == "line" {
			return rt.handleInput(p)
		}
		return Unit, rt.unknownPacket(p)
	case "":
		// fall through to plain ops below
	default:
		return Unit, rt.unknownPacket(p)
	}

	switch p.Op {
	case "note":
		return rt.handleNote(p)
	case "msg":
		return rt.handleMsg(p)
	case "math":
		return rt.handleMath(p)
	case "int":
		return rt.handleInt(p)
	case "bool":
		return rt.handleBool(p)
	case "store":
		return rt.handleStore(p)
	case "var":
		return rt.handleVar(p)
	case "print":
		return rt.handlePrint(p)
	case "dump":
		return rt.handleDump(p)
	case "len":
		return rt.handleLen(p)
	case "env":
		return rt.handleEnv(p)
	case "input":
		return rt.handleInput(p)
	case "cd":
		return rt.handleCD(p)
	case "array":
		return rt.handleArray(p)
	case "obj":
		return rt.handleObj(p)
	case "funct":
		return rt.handleFunct(p)
	case "call":
		return rt.handleCall(p)
	case "break":
		rt.SetSignal(SigBreak, Unit)
		return Unit, nil
	case "return":
		rt.SetSignal(SigReturn, rt.argOrLast(p))
		return Unit, nil
	case "interrupt":
		rt.SetSignal(SigInterrupt, rt.argOrLast(p))
		return Unit, nil
	case "load":
		return rt.handleLoad(p)
	case "save":
		return rt.handleSave(p)
	case "mod":
		return rt.handleMod(p)
	case "parse":
		return rt.handleParse(p)
	case "get", "exists":
		return rt.handleQuery(p)
	case "log":
		return rt.handleLog(p)
	case "exec":
		return rt.handleExec(p)
	case "run":
		return rt.handleRun(p)
	case "yellow", "confirm":
		return rt.handleYellow(p)
	case "red":
		return rt.handleRed(p)
	case "http":
		return rt.handleHTTP(p)
	case "repl":
		return rt.handleRepl(p)
	case "help":
		return rt.handleHelp(p)
	case "lint":
		return rt.handleLint(p)
	case "eq", "ne", "lt", "le", "gt", "ge":
		return rt.handleCompareNamed(p, p.Op)
	}
	if strings.HasPrefix(p.Op, "loop") {
		return rt.handleLoop(p)
	}
	return Unit, rt.unknownPacket(p)
}

// argOrLast resolves @arg when present, else the chain's last value.
func (rt *Runtime) argOrLast(p *Packet) Value {
	if p.Arg == nil {
		return rt.Last
	}
	return rt.ResolveArg(p.Arg)
}

// unknownPacket builds the E_UNKNOWN_PACKET error, with a fuzzy did-you-mean
// over the catalog.
func (rt *Runtime) unknownPacket(p *Packet) error {
	err := scriptErr(EUnknownPacket, "unknown packet [%s]", p.FullOp())
	if s := suggestPacket(p.Op); s != "" {
		return err.withHint("Packet - did you mean [" + s + "]?")
	}
	return err
}

// suggestPacket ranks catalog ops by fuzzy distance to the unknown op.
func suggestPacket(op string) string {
	ranks := fuzzy.RankFindFold(op, knownPacketOps)
	best := ""
	bestDist := 1 << 30
	for _, r := range ranks {
		if r.Distance < bestDist {
			bestDist = r.Distance
			best = r.Target
		}
	}
	if best == "" || bestDist > len(op)+2 {
		return ""
	}
	return best
}

// ---------------------------------------------------------------------------
// Conditions
// ---------------------------------------------------------------------------

// evalCond evaluates a condition expression against the current runtime.
// Operand chains run on a scratch runtime seeded with a copy of the caller's
// bindings, so condition evaluation cannot rebind program variables.
func (rt *Runtime) evalCond(c *CondExpr) (bool, error) {
	switch c.Kind {
	case CondAnd:
		ok, err := rt.evalCond(c.Left)
		if err != nil || !ok {
			return false, err
		}
		return rt.evalCond(c.Right)
	case CondOr:
		ok, err := rt.evalCond(c.Left)
		if err != nil || ok {
			return ok, err
		}
		return rt.evalCond(c.Right)
	case CondNot:
		ok, err := rt.evalCond(c.Left)
		return !ok, err
	case CondOperand:
		v, err := rt.evalCondOperand(c.LHS)
		if err != nil {
			return false, err
		}
		return v.Truthy(), nil
	case CondCmp:
		return rt.evalComparison(c)
	}
	return false, nil
}

func (rt *Runtime) evalComparison(c *CondExpr) (bool, error) {
	op := c.Op
	if c.OpVar != "" {
		// dynamic comparator: the operator slot names a variable holding one
		v, err := rt.ReadVar(c.OpVar)
		if err != nil {
			return false, err
		}
		if v.Tag != TCmp {
			return false, scriptErr(EType, "%q is not a comparator (got %s)", c.OpVar, v.Tag)
		}
		op = v.CmpKind()
	}
	lhs := rt.Last
	if c.HasLHS {
		var err error
		lhs, err = rt.evalCondOperand(c.LHS)
		if err != nil {
			return false, err
		}
	}
	rhs, err := rt.evalCondOperand(c.RHS)
	if err != nil {
		return false, err
	}
	return op.Eval(lhs, rhs), nil
}

// evalCondOperand evaluates one operand node on a sandbox runtime that holds
// a copy of the variable tables and shares the funct table.
func (rt *Runtime) evalCondOperand(n *Node) (Value, error) {
	if n == nil {
		return Unit, nil
	}
	// identifier operands read the live table directly
	if n.Kind == NPacket && n.Pkt.Op == "var" && n.Pkt.Arg != nil && n.Pkt.Body == nil {
		v, ok := rt.GetVar(n.Pkt.Arg.Str)
		if !ok && rt.HasContext(n.Pkt.Arg.Str) {
			return Unit, scriptErr(ENoContextMatch, "no context entry for %q matches", n.Pkt.Arg.Str)
		}
		return v, nil
	}
	tmp := rt.sandbox()
	return tmp.Eval(n)
}

// sandbox clones enough state to evaluate conditions without side effects on
// variables; documents stay shared by handle, matching [mod] visibility.
func (rt *Runtime) sandbox() *Runtime {
	vars := make(map[string]Value, len(rt.vars))
	for k, v := range rt.vars {
		vars[k] = v
	}
	ctx := make(map[string][]ctxEntry, len(rt.ctxVars))
	for k, v := range rt.ctxVars {
		ctx[k] = v
	}
	return &Runtime{
		vars:         vars,
		rigid:        map[string]bool{},
		ctxVars:      ctx,
		functs:       rt.functs,
		ctxReading:   rt.ctxReading,
		Last:         rt.Last,
		maxCallDepth: rt.maxCallDepth,
		loopMax:      rt.loopMax,
		Box:          rt.Box,
		Cfg:          rt.Cfg,
		Stdin:        rt.Stdin,
		Stdout:       rt.Stdout,
		Stderr:       rt.Stderr,
	}
}

// RunProgram parses and evaluates src as the program for entry. A pending
// Interrupt or Return at the end surfaces as the terminal value.
func RunProgram(rt *Runtime, src string) (Value, error) {
	ast, err := Parse(src)
	if err != nil {
		return Unit, err
	}
	out, err := rt.Eval(ast)
	if err != nil {
		return Unit, err
	}
	if sig := rt.TakeSignal(); sig.Kind == SigInterrupt || sig.Kind == SigReturn {
		return sig.Val, nil
	}
	return out, nil
}
