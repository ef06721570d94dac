// packet_files.go — structured I/O: load, save, log, parse, query, mod.
//
// Every path goes through the box resolver. Documents remember their origin
// file and format so [save@handle] writes back where [load] read from, in
// the same format. Saves are atomic: write a temp file beside the target,
// then rename over it.
package tagspeak

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
)

// [load@path] — read and parse a file by extension into a Doc.
func (rt *Runtime) handleLoad(p *Packet) (Value, error) {
	raw, ok := ArgText(p.Arg)
	if !ok {
		return Unit, scriptErr(EType, "[load] needs @<path>")
	}
	path, err := rt.Box.Resolve(raw)
	if err != nil {
		return Unit, err
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	format, known := formatForExt(ext)
	if !known {
		return Unit, scriptErr(EFormat, "[load] does not understand .%s files", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Unit, scriptErr(EBoxViolation, "cannot read %q: %v", raw, err)
	}
	root, err := DecodeDocument(format, data)
	if err != nil {
		return Unit, scriptErr(EFormat, "%q is not valid %s: %v", raw, format, err)
	}
	doc := &Document{Root: root, Format: format, Origin: path}
	if info, err := os.Stat(path); err == nil {
		doc.MTime = info.ModTime()
	}
	if enc, err := doc.Encode(); err == nil {
		doc.saved = string(enc)
	}
	return DocVal(doc), nil
}

// [save@handle] / [save@path] — write a Doc back to disk.
//
// With a handle naming a bound Doc, the document is written to its origin
// (skipping the write when nothing changed, and refusing when the file
// changed on disk underneath it). With an unbound handle, the pipeline's Doc
// is registered under that name without writing, so a later [save@handle]
// persists it. With a path-shaped argument, the pipeline's Doc is written to
// that path in the format its extension names.
func (rt *Runtime) handleSave(p *Packet) (Value, error) {
	raw, ok := ArgText(p.Arg)
	if !ok {
		return Unit, scriptErr(EType, "[save] needs @<handle> or @<path>")
	}

	if isIdentLike(raw) {
		if v, bound := rt.GetVar(raw); bound {
			if v.Tag != TDoc {
				return Unit, scriptErr(EType, "[save] %q is not a document handle", raw)
			}
			doc := v.DocRef()
			if doc.Origin == "" {
				return Unit, scriptErr(EType, "[save] %q has no origin file; save to an explicit path", raw)
			}
			if err := rt.writeDocument(doc); err != nil {
				return Unit, err
			}
			return DocVal(doc), nil
		}
		// register the pipeline document under the handle
		if rt.Last.Tag != TDoc {
			return Unit, scriptErr(EType, "[save@%s] needs a document in the pipeline", raw)
		}
		if err := rt.SetVar(raw, rt.Last); err != nil {
			return Unit, err
		}
		return rt.Last, nil
	}

	// path form: write the pipeline document there
	if rt.Last.Tag != TDoc {
		return Unit, scriptErr(EType, "[save@%s] needs a document in the pipeline", raw)
	}
	path, err := rt.Box.Resolve(raw)
	if err != nil {
		return Unit, err
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	format, known := formatForExt(ext)
	if !known {
		return Unit, scriptErr(EFormat, "[save] does not understand .%s files", ext)
	}
	doc := rt.Last.DocRef()
	if doc.Origin != path {
		// the on-disk change check applies only to the file the doc came from
		doc.MTime = time.Time{}
	}
	doc.Origin = path
	doc.Format = format
	doc.saved = "" // force the write
	if err := rt.writeDocument(doc); err != nil {
		return Unit, err
	}
	return rt.Last, nil
}

// writeDocument performs the atomic write-and-rename, refreshing the doc's
// change-tracking state.
func (rt *Runtime) writeDocument(doc *Document) error {
	enc, err := doc.Encode()
	if err != nil {
		return scriptErr(EFormat, "cannot encode %s: %v", doc.Format, err)
	}
	if string(enc) == doc.saved {
		return nil
	}
	if !doc.MTime.IsZero() {
		if info, err := os.Stat(doc.Origin); err == nil && !info.ModTime().Equal(doc.MTime) {
			return scriptErr(EFormat, "%q changed on disk since it was loaded", doc.Origin)
		}
	}
	dir := filepath.Dir(doc.Origin)
	tmp, err := os.CreateTemp(dir, ".tagspeak-*")
	if err != nil {
		return scriptErr(EBoxViolation, "cannot write beside %q: %v", doc.Origin, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(enc); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return scriptErr(EBoxViolation, "write failed: %v", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return scriptErr(EBoxViolation, "write failed: %v", err)
	}
	if err := os.Rename(tmpName, doc.Origin); err != nil {
		os.Remove(tmpName)
		return scriptErr(EBoxViolation, "cannot replace %q: %v", doc.Origin, err)
	}
	if info, err := os.Stat(doc.Origin); err == nil {
		doc.MTime = info.ModTime()
	}
	doc.saved = string(enc)
	return nil
}

// [parse(fmt)@src] — parse a string (literal or variable) into a Doc.
func (rt *Runtime) handleParse(p *Packet) (Value, error) {
	format := "json"
	if len(p.Flags) > 0 {
		format = strings.ToLower(p.Flags[0])
	}
	if _, ok := formatForExt(format); !ok {
		return Unit, scriptErr(EFormat, "[parse] does not understand %q", format)
	}
	var src string
	switch {
	case p.Arg == nil:
		if rt.Last.Tag != TStr {
			return Unit, scriptErr(EType, "[parse] needs a string to parse")
		}
		src = rt.Last.StrVal()
	case p.Arg.Kind == ArgIdent:
		if v, ok := rt.GetVar(p.Arg.Str); ok {
			if v.Tag != TStr {
				return Unit, scriptErr(EType, "[parse] variable %q is not a string", p.Arg.Str)
			}
			src = v.StrVal()
		} else {
			src = p.Arg.Str
		}
	default:
		text, _ := ArgText(p.Arg)
		src = text
	}
	root, err := DecodeDocument(format, []byte(src))
	if err != nil {
		return Unit, scriptErr(EFormat, "[parse] input is not valid %s: %v", format, err)
	}
	return DocVal(&Document{Root: root, Format: format}), nil
}

// [get(path)@handle] and [exists(path)@handle] — document queries sharing
// the [mod] path grammar.
func (rt *Runtime) handleQuery(p *Packet) (Value, error) {
	if p.FlagRaw == "" {
		return Unit, scriptErr(EType, "[%s] needs a (path)", p.Op)
	}
	segs, err := ParsePath(p.FlagRaw)
	if err != nil {
		return Unit, scriptErr(EPathMissing, "bad path: %v", err)
	}
	doc, err := rt.docHandleArg(p)
	if err != nil {
		return Unit, err
	}
	node := doc.Root.Lookup(segs)
	if p.Op == "exists" {
		return Bool(node != nil), nil
	}
	if node == nil {
		return Unit, scriptErr(EPathMissing, "path %q not found", p.FlagRaw)
	}
	return node.toValue(doc), nil
}

// docHandleArg reads the packet's @handle (or the pipeline) as a Doc.
func (rt *Runtime) docHandleArg(p *Packet) (*Document, error) {
	if p.Arg == nil {
		if rt.Last.Tag == TDoc {
			return rt.Last.DocRef(), nil
		}
		return nil, scriptErr(EType, "[%s] needs a document handle", p.Op)
	}
	name, _ := ArgText(p.Arg)
	v, err := rt.ReadVar(name)
	if err != nil {
		return nil, err
	}
	if v.Tag != TDoc {
		return nil, scriptErr(EType, "%q is not a document handle (got %s)", name, v.Tag)
	}
	return v.DocRef(), nil
}

// ---------------------------------------------------------------------------
// [mod]
// ---------------------------------------------------------------------------

// [mod@handle]{edits} — apply path edits to a document in place. Flags:
// mod(overwrite) promotes plain set to create-missing mode, mod(debug)
// prints a unified diff of the document around the edit batch.
func (rt *Runtime) handleMod(p *Packet) (Value, error) {
	doc, err := rt.docHandleArg(p)
	if err != nil {
		return Unit, err
	}
	if p.Body == nil {
		return Unit, scriptErr(EType, "[mod] needs a {body} of edits")
	}
	force := p.HasFlag("overwrite")
	debug := p.HasFlag("debug")

	var before string
	if debug {
		before = doc.Root.encodeJSON(true)
	}
	for _, stmt := range p.Body {
		if stmt.Kind != NPacket {
			return Unit, scriptErr(EType, "[mod] bodies hold edit packets only")
		}
		if err := rt.applyEdit(doc, stmt.Pkt, force); err != nil {
			return Unit, err
		}
	}
	if debug {
		after := doc.Root.encodeJSON(true)
		if before != after {
			diff, derr := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
				A:        difflib.SplitLines(before),
				B:        difflib.SplitLines(after),
				FromFile: "before",
				ToFile:   "after",
				Context:  2,
			})
			if derr == nil {
				fmt.Fprintf(rt.Stdout, "[mod(debug)]\n%s", diff)
			}
		}
	}
	return DocVal(doc), nil
}

// applyEdit performs one edit packet. Each op validates before mutating, so
// a failing edit leaves the document unchanged.
func (rt *Runtime) applyEdit(doc *Document, pkt *Packet, force bool) error {
	op := pkt.Op
	pathText := pkt.FlagRaw
	modifier := ""
	if i := strings.IndexByte(pathText, ','); i >= 0 {
		modifier = strings.TrimSpace(pathText[i+1:])
		pathText = strings.TrimSpace(pathText[:i])
	}

	// del(path) and friends accept the path in the flag slot
	segs, segErr := ParsePath(pathText)

	value := func() (*DocNode, error) {
		if pkt.Arg == nil {
			if pkt.Body != nil {
				obj, err := rt.buildObjectBody(pkt.Body)
				if err != nil {
					return nil, err
				}
				return obj, nil
			}
			return valueToNode(rt.Last), nil
		}
		return valueToNode(rt.ResolveArg(pkt.Arg)), nil
	}

	pathErr := func(err error) error {
		return scriptErr(EPathMissing, "[%s(%s)]: %v", op, pathText, err)
	}
	if segErr != nil {
		return scriptErr(EPathMissing, "[%s]: bad path %q", op, pathText)
	}

	switch op {
	case "set", "comp":
		v, err := value()
		if err != nil {
			return err
		}
		create := force || modifier == "missing"
		if modifier != "" && modifier != "missing" && modifier != "overwrite" {
			return scriptErr(EType, "unknown set modifier %q", modifier)
		}
		if err := doc.Root.SetPath(segs, v, create, true); err != nil {
			return pathErr(err)
		}
	case "set!", "comp!":
		v, err := value()
		if err != nil {
			return err
		}
		if err := doc.Root.SetPath(segs, v, true, true); err != nil {
			return pathErr(err)
		}
	case "merge":
		v, err := value()
		if err != nil {
			return err
		}
		if v.Kind != DocObject {
			return scriptErr(EType, "[merge] needs an object value")
		}
		if err := doc.Root.MergePath(segs, v); err != nil {
			return pathErr(err)
		}
	case "delete", "del", "remove":
		if err := doc.Root.DeletePath(segs); err != nil {
			return pathErr(err)
		}
	case "insert", "ins":
		v, err := value()
		if err != nil {
			return err
		}
		if doc.Root.Lookup(segs) != nil {
			return scriptErr(EPathExists, "[%s(%s)]: path already present", op, pathText)
		}
		if err := doc.Root.SetPath(segs, v, false, false); err != nil {
			return pathErr(err)
		}
	case "append", "push":
		v, err := value()
		if err != nil {
			return err
		}
		target := doc.Root.Lookup(segs)
		if target == nil {
			return scriptErr(EPathMissing, "[%s(%s)]: path not found", op, pathText)
		}
		if target.Kind != DocArray {
			return scriptErr(EType, "[%s(%s)]: target is not an array", op, pathText)
		}
		target.Items = append(target.Items, v)
	default:
		return scriptErr(EUnknownPacket, "unknown edit op [%s] in [mod] body", op)
	}
	return nil
}

// ---------------------------------------------------------------------------
// [log]
// ---------------------------------------------------------------------------

// [log@path] writes the last value as JSON; [log(fmt)@path]{children}
// assembles a document from [key(name)@v] and [sect@name]{...} children and
// writes it in fmt.
func (rt *Runtime) handleLog(p *Packet) (Value, error) {
	raw, ok := ArgText(p.Arg)
	if !ok {
		return Unit, scriptErr(EType, "[log] needs @<path>")
	}
	format := "json"
	if len(p.Flags) > 0 {
		format = strings.ToLower(p.Flags[0])
	}
	if _, known := formatForExt(format); !known {
		return Unit, scriptErr(EFormat, "[log] does not understand %q", format)
	}
	ext := strings.TrimPrefix(filepath.Ext(raw), ".")
	if extFormat, known := formatForExt(ext); known && len(p.Flags) > 0 && extFormat != format {
		return Unit, scriptErr(EFormat, "[log(%s)] target %q has a .%s extension", format, raw, ext)
	}

	path, err := rt.Box.Resolve(raw)
	if err != nil {
		return Unit, err
	}

	var root *DocNode
	if p.Body != nil {
		root, err = rt.buildObjectBody(p.Body)
		if err != nil {
			return Unit, err
		}
	} else {
		root = valueToNode(rt.Last)
	}

	doc := &Document{Root: root, Format: format, Origin: path}
	enc, err := doc.Encode()
	if err != nil {
		return Unit, scriptErr(EFormat, "cannot encode %s: %v", format, err)
	}
	if format == "json" && root.Kind == DocScalar {
		// scalars log as the bare JSON token
		enc = []byte(root.encodeJSON(false) + "\n")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Unit, scriptErr(EBoxViolation, "cannot create %q: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, enc, 0o644); err != nil {
		return Unit, scriptErr(EBoxViolation, "cannot write %q: %v", raw, err)
	}
	return rt.Last, nil
}

// buildObjectBody assembles an ordered object from [key(name)@v] and
// [sect@name]{...} children. Shared by [log], [obj], and [mod] merge bodies.
func (rt *Runtime) buildObjectBody(body []*Node) (*DocNode, error) {
	obj := NewObjectNode()
	for _, stmt := range body {
		if stmt.Kind != NPacket {
			return nil, scriptErr(EType, "structured bodies hold [key] and [sect] packets only")
		}
		pkt := stmt.Pkt
		switch pkt.Op {
		case "key":
			name := pkt.FlagRaw
			if name == "" {
				if n, ok := ArgText(pkt.Arg); ok && pkt.Body == nil {
					// tolerate [key@name] with the value in the pipeline
					obj.Set(n, valueToNode(rt.Last))
					continue
				}
				return nil, scriptErr(EType, "[key] needs a (name)")
			}
			if pkt.Arg == nil {
				return nil, scriptErr(EType, "[key(%s)] needs @<value>", name)
			}
			obj.Set(name, valueToNode(rt.keyValue(pkt.Arg)))
		case "sect":
			name := pkt.FlagRaw
			if name == "" {
				if n, ok := ArgText(pkt.Arg); ok {
					name = n
				}
			}
			if name == "" {
				return nil, scriptErr(EType, "[sect] needs @<name> or (name)")
			}
			if pkt.Body == nil {
				return nil, scriptErr(EType, "[sect@%s] needs a {body}", name)
			}
			inner, err := rt.buildObjectBody(pkt.Body)
			if err != nil {
				return nil, err
			}
			obj.Set(name, inner)
		default:
			return nil, scriptErr(EUnknownPacket, "unsupported packet [%s] in a structured body", pkt.Op)
		}
	}
	return obj, nil
}

// keyValue resolves a [key] argument: bare true/false/null idents are
// literals, bound variables resolve, anything else is literal text.
func (rt *Runtime) keyValue(a *Arg) Value {
	if a == nil {
		return rt.Last
	}
	if a.Kind == ArgIdent {
		switch a.Str {
		case "true":
			return Bool(true)
		case "false":
			return Bool(false)
		case "null":
			return Unit
		}
		if v, ok := rt.GetVar(a.Str); ok {
			return v
		}
		return Str(a.Str)
	}
	return rt.ResolveArg(a)
}
