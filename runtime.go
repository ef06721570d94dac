// runtime.go — mutable interpreter state shared by every handler.
//
// One Runtime lives for the duration of a script (and is reused by [run] for
// nested scripts). It owns the variable table with its three storage
// disciplines, the funct table, the chain's last value, the early-exit
// signal slot, depth counters, consent state, and the box.
package tagspeak

import (
	"io"
	"os"
)

// SignalKind is the early-exit marker threaded through handler returns.
// Signals are control flow, not errors: loops catch Break, functions catch
// Return, Interrupt keeps bubbling.
type SignalKind int

const (
	SigNone SignalKind = iota
	SigBreak
	SigReturn
	SigInterrupt
)

type Signal struct {
	Kind SignalKind
	Val  Value
}

// ctxEntry is one guarded binding of a context-discipline variable. The
// literal predicate (default==true) marks the fallback entry used when no
// other predicate holds.
type ctxEntry struct {
	cond *CondExpr
	val  Value
	def  bool
}

// isDefaultPredicate recognizes the designated fallback spelling.
func isDefaultPredicate(c *CondExpr) bool {
	if c == nil || c.Kind != CondCmp || c.Op != CmpEq || c.OpVar != "" || !c.HasLHS {
		return false
	}
	lhs, ok := condIdentName(c.LHS)
	if !ok || lhs != "default" {
		return false
	}
	rhs := c.RHS
	return rhs != nil && rhs.Kind == NPacket && rhs.Pkt.Op == "bool" &&
		rhs.Pkt.Arg != nil && rhs.Pkt.Arg.Str == "true"
}

func condIdentName(n *Node) (string, bool) {
	if n != nil && n.Kind == NPacket && n.Pkt.Op == "var" && n.Pkt.Arg != nil {
		return n.Pkt.Arg.Str, true
	}
	return "", false
}

// FunctDef is a named block registered by [funct:tag].
type FunctDef struct {
	Body []*Node
}

// Runtime is the interpreter state machine. It is exclusively owned by the
// evaluating goroutine.
type Runtime struct {
	vars    map[string]Value
	rigid   map[string]bool
	ctxVars map[string][]ctxEntry
	functs  map[string]FunctDef

	Last   Value
	signal Signal

	callDepth    int
	maxCallDepth int
	runDepth     int
	loopMax      int
	yellowDepth  int

	allowYellowAll bool
	redEnabled     bool

	Box Box
	Cfg Config

	// ctxReading guards against a context predicate re-entering the variable
	// it is defined on.
	ctxReading map[string]bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewRuntime builds a runtime rooted at the entry script's directory.
func NewRuntime(entry string) *Runtime {
	box := NewBox(entry)
	rt := &Runtime{
		vars:         map[string]Value{},
		rigid:        map[string]bool{},
		ctxVars:      map[string][]ctxEntry{},
		functs:       map[string]FunctDef{},
		ctxReading:   map[string]bool{},
		Last:         Unit,
		maxCallDepth: defaultCallDepth,
		loopMax:      defaultLoopMax,
		Box:          box,
		Cfg:          LoadConfig(box.Root),
		Stdin:        os.Stdin,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
	}
	if n, ok := envInt("TAGSPEAK_MAX_CALL_DEPTH"); ok && n > 0 {
		rt.maxCallDepth = n
	}
	if n, ok := envInt("TAGSPEAK_MAX_LOOP_ITERATIONS"); ok && n > 0 {
		rt.loopMax = n
	}
	return rt
}

// ---- signals ----

func (rt *Runtime) SetSignal(k SignalKind, v Value) { rt.signal = Signal{Kind: k, Val: v} }
func (rt *Runtime) SignalActive() bool              { return rt.signal.Kind != SigNone }
func (rt *Runtime) PeekSignal() Signal              { return rt.signal }

// TakeSignal clears and returns the pending signal.
func (rt *Runtime) TakeSignal() Signal {
	s := rt.signal
	rt.signal = Signal{}
	return s
}

// ---- variables ----

// SetVar writes through the Fluid discipline; a rigid name refuses.
func (rt *Runtime) SetVar(name string, v Value) error {
	if rt.rigid[name] {
		return scriptErr(ERigidRebind, "%q is rigid and already bound", name)
	}
	rt.vars[name] = v
	return nil
}

// SetRigid binds a name write-once.
func (rt *Runtime) SetRigid(name string, v Value) error {
	if _, exists := rt.vars[name]; exists || rt.rigid[name] {
		return scriptErr(ERigidRebind, "%q is rigid and already bound", name)
	}
	rt.vars[name] = v
	rt.rigid[name] = true
	return nil
}

// PushContext appends a guarded binding to a context-discipline variable.
func (rt *Runtime) PushContext(name string, cond *CondExpr, v Value) {
	rt.ctxVars[name] = append(rt.ctxVars[name],
		ctxEntry{cond: cond, val: v, def: isDefaultPredicate(cond)})
}

// GetVar resolves a name: direct bindings win, then context entries are
// tried in insertion order against the current variable table. The second
// result distinguishes "unbound" from a Unit value.
func (rt *Runtime) GetVar(name string) (Value, bool) {
	if v, ok := rt.vars[name]; ok {
		return v, true
	}
	entries, ok := rt.ctxVars[name]
	if !ok {
		return Unit, false
	}
	if rt.ctxReading[name] {
		return Unit, false
	}
	rt.ctxReading[name] = true
	defer delete(rt.ctxReading, name)
	for _, e := range entries {
		if e.def {
			continue
		}
		match, err := rt.evalCond(e.cond)
		if err == nil && match {
			return e.val, true
		}
	}
	for _, e := range entries {
		if e.def {
			return e.val, true
		}
	}
	return Unit, false
}

// HasContext reports whether the name exists only as a context variable, so
// the reader can distinguish E_NO_CONTEXT_MATCH from E_UNKNOWN_VAR.
func (rt *Runtime) HasContext(name string) bool {
	_, direct := rt.vars[name]
	_, ctx := rt.ctxVars[name]
	return ctx && !direct
}

// ReadVar is GetVar with the error taxonomy applied: an unbound name is
// E_UNKNOWN_VAR, a context variable with no matching predicate is
// E_NO_CONTEXT_MATCH.
func (rt *Runtime) ReadVar(name string) (Value, error) {
	if v, ok := rt.GetVar(name); ok {
		return v, nil
	}
	if rt.HasContext(name) {
		return Unit, scriptErr(ENoContextMatch, "no context entry for %q matches", name)
	}
	return Unit, scriptErr(EUnknownVar, "variable %q is not defined", name)
}

// NumVar reads a variable as a number when it has one.
func (rt *Runtime) NumVar(name string) (float64, bool) {
	v, ok := rt.GetVar(name)
	if !ok {
		return 0, false
	}
	return v.AsNum()
}

// ---- functs ----

func (rt *Runtime) RegisterFunct(tag string, body []*Node) {
	rt.functs[tag] = FunctDef{Body: body}
}

func (rt *Runtime) Funct(tag string) (FunctDef, bool) {
	def, ok := rt.functs[tag]
	return def, ok
}

// ---- consent ----

func (rt *Runtime) YellowDepth() int  { return rt.yellowDepth }
func (rt *Runtime) InYellow() bool    { return rt.yellowDepth > 0 }
func (rt *Runtime) RedEnabled() bool  { return rt.redEnabled }
func (rt *Runtime) EnableRed()        { rt.redEnabled = true }
func (rt *Runtime) LatchYellowAll()   { rt.allowYellowAll = true }
func (rt *Runtime) YellowAll() bool   { return rt.allowYellowAll }

// ResolveArg turns a packet argument into a runtime value. Identifiers read
// the variable table and fall back to Unit when unbound, matching the loose
// contexts ([print@x], [log] values); strict callers use ReadVar themselves.
func (rt *Runtime) ResolveArg(a *Arg) Value {
	if a == nil {
		return Unit
	}
	switch a.Kind {
	case ArgStr:
		return Str(a.Str)
	case ArgNum:
		return Num(a.Num)
	case ArgIdent:
		switch a.Str {
		case "true":
			return Bool(true)
		case "false":
			return Bool(false)
		}
		v, _ := rt.GetVar(a.Str)
		return v
	case ArgRaw:
		return Str(a.Raw)
	}
	return Unit
}

// ArgText extracts the literal text of an argument regardless of kind,
// for handlers that treat the argument as a symbol or path.
func ArgText(a *Arg) (string, bool) {
	if a == nil {
		return "", false
	}
	switch a.Kind {
	case ArgStr:
		return a.Str, true
	case ArgIdent:
		return a.Str, true
	case ArgRaw:
		return a.Raw, true
	case ArgNum:
		return formatNum(a.Num), true
	}
	return "", false
}
