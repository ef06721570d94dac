// packet_flow.go — functs, calls, and the loop family.
//
// Loops own the Break signal: a Break raised in the body ends the loop and
// is consumed there. Return and Interrupt end the loop but keep propagating
// so the surrounding funct (or the top level) can take them.
package tagspeak

import (
	"math"
	"strconv"
	"strings"
)

// [funct:tag]{body} (namespaced) and [funct@name]{body} (legacy) register a
// named block, replacing any prior binding.
func (rt *Runtime) handleFunct(p *Packet) (Value, error) {
	name, ok := ArgText(p.Arg)
	if !ok {
		return Unit, scriptErr(EType, "[funct] needs @<name> or the [funct:name] form")
	}
	return rt.registerFunctBody(name, p)
}

func (rt *Runtime) handleFunctNS(p *Packet) (Value, error) {
	return rt.registerFunctBody(p.Op, p)
}

func (rt *Runtime) registerFunctBody(name string, p *Packet) (Value, error) {
	if name == "" {
		return Unit, scriptErr(EType, "[funct] needs a tag name")
	}
	if p.Body == nil {
		return Unit, scriptErr(EType, "[funct:%s] needs a {body}", name)
	}
	rt.RegisterFunct(name, p.Body)
	return Unit, nil
}

// [call@tag] — evaluate a registered funct. The call site's last value is
// the initial last value inside; Return is consumed here.
func (rt *Runtime) handleCall(p *Packet) (Value, error) {
	name, ok := ArgText(p.Arg)
	if !ok {
		return Unit, scriptErr(EType, "[call] needs @<funct>")
	}
	return rt.callFunct(name)
}

func (rt *Runtime) callFunct(name string) (Value, error) {
	def, ok := rt.Funct(name)
	if !ok {
		return Unit, scriptErr(EUnknownVar, "funct %q is not defined; register it with [funct:%s]{...}", name, name)
	}
	if rt.callDepth >= rt.maxCallDepth {
		return Unit, scriptErr(ECallDepthExceeded, "call depth exceeds %d", rt.maxCallDepth)
	}
	rt.callDepth++
	out, err := rt.evalList(def.Body)
	rt.callDepth--
	if err != nil {
		return Unit, err
	}
	if sig := rt.PeekSignal(); sig.Kind == SigReturn {
		rt.TakeSignal()
		return sig.Val, nil
	}
	return out, nil
}

// handleLoop covers the un-namespaced forms: [loop@N]{...} and [loopN@tag].
func (rt *Runtime) handleLoop(p *Packet) (Value, error) {
	suffix := strings.TrimPrefix(p.Op, "loop")
	if suffix == "" {
		count, err := rt.loopCount(p)
		if err != nil {
			return Unit, err
		}
		body, err := rt.loopBody(p)
		if err != nil {
			return Unit, err
		}
		return rt.runCountedLoop(count, body)
	}
	// [loopN@tag]
	count, err := strconv.Atoi(suffix)
	if err != nil || count < 0 {
		return Unit, rt.unknownPacket(p)
	}
	if err := rt.checkLoopBudget(count); err != nil {
		return Unit, err
	}
	name, ok := ArgText(p.Arg)
	if !ok {
		return Unit, scriptErr(EType, "[loop%d] needs @<funct>", count)
	}
	def, ok := rt.Funct(name)
	if !ok {
		return Unit, scriptErr(EUnknownVar, "funct %q is not defined; register it with [funct:%s]{...}", name, name)
	}
	return rt.runCountedLoop(count, def.Body)
}

// handleLoopNS covers [loop:forever], [loop:until(cond)], [loop:each(spec)],
// and the tagged form [loop:tag@N].
func (rt *Runtime) handleLoopNS(p *Packet) (Value, error) {
	switch p.Op {
	case "forever":
		body, err := rt.loopBody(p)
		if err != nil {
			return Unit, err
		}
		return rt.runForeverLoop(body)
	case "until":
		cond, err := rt.loopCondition(p)
		if err != nil {
			return Unit, err
		}
		body, err := rt.loopBody(p)
		if err != nil {
			return Unit, err
		}
		return rt.runUntilLoop(cond, body)
	case "each":
		body, err := rt.loopBody(p)
		if err != nil {
			return Unit, err
		}
		return rt.runEachLoop(p, body)
	}
	// [loop:tag@N] runs a registered funct N times
	count, err := rt.loopCount(p)
	if err != nil {
		return Unit, err
	}
	def, ok := rt.Funct(p.Op)
	if !ok {
		return Unit, scriptErr(EUnknownVar, "funct %q is not defined; register it with [funct:%s]{...}", p.Op, p.Op)
	}
	return rt.runCountedLoop(count, def.Body)
}

func (rt *Runtime) loopBody(p *Packet) ([]*Node, error) {
	if p.Body == nil {
		return nil, scriptErr(EType, "[%s] needs a {body}", p.FullOp())
	}
	return p.Body, nil
}

// loopCount reads @N as a non-negative integer within the iteration budget.
func (rt *Runtime) loopCount(p *Packet) (int, error) {
	if p.Arg == nil {
		return 0, scriptErr(EType, "[%s] needs a count: [loop@3]{...}", p.FullOp())
	}
	var raw float64
	switch p.Arg.Kind {
	case ArgNum:
		raw = p.Arg.Num
	case ArgIdent:
		n, ok := rt.NumVar(p.Arg.Str)
		if !ok {
			return 0, scriptErr(EType, "loop count %q is not numeric", p.Arg.Str)
		}
		raw = n
	default:
		text, _ := ArgText(p.Arg)
		n, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, scriptErr(EType, "loop count %q is not numeric", text)
		}
		raw = n
	}
	if raw < 0 || raw != math.Trunc(raw) || math.IsInf(raw, 0) || math.IsNaN(raw) {
		return 0, scriptErr(EType, "loop count must be a non-negative integer")
	}
	count := int(raw)
	if err := rt.checkLoopBudget(count); err != nil {
		return 0, err
	}
	return count, nil
}

func (rt *Runtime) checkLoopBudget(count int) error {
	if count > rt.loopMax {
		return scriptErr(ELoopOverflow, "count %d exceeds the loop budget of %d", count, rt.loopMax)
	}
	return nil
}

// loopCondition accepts the cond from either [loop:until@(...)] or the flag
// form [loop:until(...)].
func (rt *Runtime) loopCondition(p *Packet) (*CondExpr, error) {
	if p.Arg != nil && p.Arg.Kind == ArgCond {
		return p.Arg.Cond, nil
	}
	if p.FlagRaw != "" {
		return parseCondSource(newScanner(p.FlagRaw), p.FlagRaw, 0)
	}
	if p.Arg != nil {
		text, _ := ArgText(p.Arg)
		return parseCondSource(newScanner(text), text, 0)
	}
	return nil, scriptErr(EType, "[loop:until] needs a condition")
}

func (rt *Runtime) runCountedLoop(count int, body []*Node) (Value, error) {
	last := Unit
	for i := 0; i < count; i++ {
		if rt.SignalActive() {
			break
		}
		v, err := rt.evalList(body)
		if err != nil {
			return Unit, err
		}
		last = v
		if rt.loopSignalStops() {
			break
		}
	}
	return last, nil
}

func (rt *Runtime) runForeverLoop(body []*Node) (Value, error) {
	last := Unit
	iterations := 0
	for {
		if rt.SignalActive() {
			break
		}
		if iterations >= rt.loopMax {
			return Unit, scriptErr(ELoopOverflow, "loop exceeded the iteration budget of %d", rt.loopMax)
		}
		iterations++
		v, err := rt.evalList(body)
		if err != nil {
			return Unit, err
		}
		last = v
		if rt.loopSignalStops() {
			break
		}
	}
	return last, nil
}

func (rt *Runtime) runUntilLoop(cond *CondExpr, body []*Node) (Value, error) {
	last := Unit
	iterations := 0
	for {
		done, err := rt.evalCond(cond)
		if err != nil {
			return Unit, err
		}
		if done || rt.SignalActive() {
			break
		}
		if iterations >= rt.loopMax {
			return Unit, scriptErr(ELoopOverflow, "loop:until exceeded the iteration budget of %d", rt.loopMax)
		}
		iterations++
		v, err := rt.evalList(body)
		if err != nil {
			return Unit, err
		}
		last = v
		if rt.loopSignalStops() {
			break
		}
	}
	return last, nil
}

// runEachLoop binds item (and optional index) names over a Doc array or a
// numeric range. Spec: (item[,idx]@handle); outer bindings are restored on
// exit.
func (rt *Runtime) runEachLoop(p *Packet, body []*Node) (Value, error) {
	itemVar, idxVar, handle, err := parseEachSpec(p)
	if err != nil {
		return Unit, err
	}
	bound, ok := rt.GetVar(handle)
	if !ok {
		return Unit, scriptErr(EUnknownVar, "loop:each handle %q is not defined", handle)
	}

	savedItem, hadItem := rt.vars[itemVar]
	var savedIdx Value
	hadIdx := false
	if idxVar != "" {
		savedIdx, hadIdx = rt.vars[idxVar]
	}
	restore := func() {
		if hadItem {
			rt.vars[itemVar] = savedItem
		} else {
			delete(rt.vars, itemVar)
		}
		if idxVar != "" {
			if hadIdx {
				rt.vars[idxVar] = savedIdx
			} else {
				delete(rt.vars, idxVar)
			}
		}
	}
	defer restore()

	last := Unit
	iterate := func(idx int, item Value) (bool, error) {
		rt.vars[itemVar] = item
		if idxVar != "" {
			rt.vars[idxVar] = Num(float64(idx))
		}
		rt.Last = item
		v, err := rt.evalList(body)
		if err != nil {
			return false, err
		}
		last = v
		return !rt.loopSignalStops(), nil
	}

	switch bound.Tag {
	case TDoc:
		doc := bound.DocRef()
		if doc.Root.Kind != DocArray {
			return Unit, scriptErr(EType, "loop:each handle %q is not an array", handle)
		}
		for idx, item := range doc.Root.Items {
			cont, err := iterate(idx, item.toValue(doc))
			if err != nil {
				return Unit, err
			}
			if !cont {
				break
			}
		}
	case TNum:
		n := bound.NumVal()
		if n < 0 || n != math.Trunc(n) {
			return Unit, scriptErr(EType, "loop:each range must be a non-negative integer")
		}
		if err := rt.checkLoopBudget(int(n)); err != nil {
			return Unit, err
		}
		for idx := 0; idx < int(n); idx++ {
			cont, err := iterate(idx, Num(float64(idx)))
			if err != nil {
				return Unit, err
			}
			if !cont {
				break
			}
		}
	default:
		return Unit, scriptErr(EType, "loop:each handle %q must be an array or a count", handle)
	}
	return last, nil
}

// parseEachSpec splits `item[, idx]@handle` out of the flag list.
func parseEachSpec(p *Packet) (item, idx, handle string, err error) {
	spec := p.FlagRaw
	if spec == "" {
		if text, ok := ArgText(p.Arg); ok {
			if !strings.Contains(text, "@") {
				return "it", "", text, nil
			}
			spec = text
		}
	}
	if spec == "" {
		return "", "", "", scriptErr(EType, "[loop:each] needs an (item@handle) spec")
	}
	parts := strings.SplitN(spec, "@", 2)
	if len(parts) != 2 {
		return "", "", "", scriptErr(EType, "loop:each spec %q is missing '@handle'", spec)
	}
	handle = strings.TrimSpace(parts[1])
	names := strings.Split(parts[0], ",")
	item = strings.TrimSpace(names[0])
	if len(names) > 1 {
		idx = strings.TrimSpace(names[1])
	}
	if len(names) > 2 || item == "" || handle == "" {
		return "", "", "", scriptErr(EType, "loop:each spec %q is malformed", spec)
	}
	return item, idx, handle, nil
}

// loopSignalStops reports whether the pending signal ends the loop,
// consuming Break and leaving Return/Interrupt pending for the caller.
func (rt *Runtime) loopSignalStops() bool {
	switch rt.PeekSignal().Kind {
	case SigNone:
		return false
	case SigBreak:
		rt.TakeSignal()
		return true
	default:
		return true
	}
}
