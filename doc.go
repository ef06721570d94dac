// doc.go — the editable document model behind Doc handles.
//
// A Document is a JSON-shaped tree: insertion-ordered objects, arrays, and
// scalars. [load] builds one from a file (JSON, YAML, or TOML), [mod] edits
// it in place through dotted/indexed paths, and [save] serializes it back in
// the format it came from. Objects keep key order across load → mutate →
// save so diffs stay reviewable.
//
// Decoding: JSON goes through encoding/json's token stream (the only way to
// keep key order), YAML through yaml.v3's order-preserving yaml.Node, and
// TOML through BurntSushi with MetaData.Keys() supplying the order. Encoding
// is hand-rolled per format over the ordered tree.
package tagspeak

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type DocKind int

const (
	DocScalar DocKind = iota
	DocObject
	DocArray
)

type ScalarKind int

const (
	ScalarNull ScalarKind = iota
	ScalarBool
	ScalarNum
	ScalarStr
)

// DocNode is one node of a document tree. Objects track insertion order in
// Keys; Fields is the key → child index.
type DocNode struct {
	Kind   DocKind
	Keys   []string
	Fields map[string]*DocNode
	Items  []*DocNode
	SKind  ScalarKind
	SNum   float64
	SStr   string
	SBool  bool
}

// Document wraps a root node with its origin so [save@handle] can write back
// to the same file in the same format.
type Document struct {
	Root   *DocNode
	Format string // "json", "yaml", "toml"; "" means never file-backed
	Origin string // absolute path inside the box, or ""
	MTime  time.Time
	saved  string // encoding at last load/save, used to skip no-op writes
}

func NewObjectNode() *DocNode {
	return &DocNode{Kind: DocObject, Fields: map[string]*DocNode{}}
}
func NewArrayNode() *DocNode     { return &DocNode{Kind: DocArray} }
func NullNode() *DocNode         { return &DocNode{Kind: DocScalar, SKind: ScalarNull} }
func BoolNode(b bool) *DocNode   { return &DocNode{Kind: DocScalar, SKind: ScalarBool, SBool: b} }
func NumNode(n float64) *DocNode { return &DocNode{Kind: DocScalar, SKind: ScalarNum, SNum: n} }
func StrNode(s string) *DocNode  { return &DocNode{Kind: DocScalar, SKind: ScalarStr, SStr: s} }

// Set inserts or replaces a key on an object, preserving first-insertion
// order.
func (n *DocNode) Set(key string, child *DocNode) {
	if n.Fields == nil {
		n.Fields = map[string]*DocNode{}
	}
	if _, ok := n.Fields[key]; !ok {
		n.Keys = append(n.Keys, key)
	}
	n.Fields[key] = child
}

func (n *DocNode) removeKey(key string) bool {
	if _, ok := n.Fields[key]; !ok {
		return false
	}
	delete(n.Fields, key)
	for i, k := range n.Keys {
		if k == key {
			n.Keys = append(n.Keys[:i], n.Keys[i+1:]...)
			break
		}
	}
	return true
}

func (n *DocNode) isEmpty() bool {
	switch n.Kind {
	case DocObject:
		return len(n.Keys) == 0
	case DocArray:
		return len(n.Items) == 0
	case DocScalar:
		return n.SKind == ScalarNull
	}
	return true
}

// Clone deep-copies the subtree.
func (n *DocNode) Clone() *DocNode {
	if n == nil {
		return nil
	}
	out := &DocNode{Kind: n.Kind, SKind: n.SKind, SNum: n.SNum, SStr: n.SStr, SBool: n.SBool}
	switch n.Kind {
	case DocObject:
		out.Fields = make(map[string]*DocNode, len(n.Fields))
		out.Keys = append([]string(nil), n.Keys...)
		for k, v := range n.Fields {
			out.Fields[k] = v.Clone()
		}
	case DocArray:
		out.Items = make([]*DocNode, len(n.Items))
		for i, v := range n.Items {
			out.Items[i] = v.Clone()
		}
	}
	return out
}

func (n *DocNode) deepEqual(o *DocNode) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.Kind != o.Kind {
		return false
	}
	switch n.Kind {
	case DocScalar:
		if n.SKind != o.SKind {
			return false
		}
		switch n.SKind {
		case ScalarBool:
			return n.SBool == o.SBool
		case ScalarNum:
			return n.SNum == o.SNum
		case ScalarStr:
			return n.SStr == o.SStr
		}
		return true
	case DocObject:
		if len(n.Keys) != len(o.Keys) {
			return false
		}
		for _, k := range n.Keys {
			ov, ok := o.Fields[k]
			if !ok || !n.Fields[k].deepEqual(ov) {
				return false
			}
		}
		return true
	case DocArray:
		if len(n.Items) != len(o.Items) {
			return false
		}
		for i := range n.Items {
			if !n.Items[i].deepEqual(o.Items[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// toValue converts a node to a runtime Value. Containers become a Doc handle
// viewing that subtree, sharing structure with the parent document.
func (n *DocNode) toValue(origin *Document) Value {
	switch n.Kind {
	case DocScalar:
		switch n.SKind {
		case ScalarNull:
			return Unit
		case ScalarBool:
			return Bool(n.SBool)
		case ScalarNum:
			return Num(n.SNum)
		case ScalarStr:
			return Str(n.SStr)
		}
	case DocObject, DocArray:
		d := &Document{Root: n}
		if origin != nil {
			d.Format = origin.Format
		}
		return DocVal(d)
	}
	return Unit
}

// valueToNode converts a runtime Value into a document node. Strings that
// themselves parse as JSON objects/arrays are embedded structurally, matching
// how the original treated quoted object arguments in [mod] and [log] bodies.
func valueToNode(v Value) *DocNode {
	switch v.Tag {
	case TUnit:
		return NullNode()
	case TBool:
		return BoolNode(v.BoolVal())
	case TNum:
		return NumNode(v.NumVal())
	case TStr:
		s := strings.TrimSpace(v.StrVal())
		if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
			if n, err := decodeJSONString(s); err == nil {
				return n
			}
		}
		return StrNode(v.StrVal())
	case TDoc:
		if v.DocRef() == nil || v.DocRef().Root == nil {
			return NullNode()
		}
		return v.DocRef().Root.Clone()
	case TCmp:
		return StrNode(v.Display())
	}
	return NullNode()
}

// ---------------------------------------------------------------------------
// Paths
// ---------------------------------------------------------------------------

// PathSeg is one step of a document path: a key, or an array index.
type PathSeg struct {
	Key   string
	Index int
	IsIdx bool
}

// ParsePath parses `a.b[2].c` into segments. The grammar is shared by [mod],
// [get], and [exists].
func ParsePath(path string) ([]PathSeg, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}
	var segs []PathSeg
	i := 0
	for i < len(path) {
		switch path[i] {
		case '.':
			if i == 0 || i == len(path)-1 {
				return nil, fmt.Errorf("stray '.' in path %q", path)
			}
			i++
		case '[':
			j := strings.IndexByte(path[i:], ']')
			if j < 0 {
				return nil, fmt.Errorf("unclosed '[' in path %q", path)
			}
			idx, err := strconv.Atoi(path[i+1 : i+j])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("bad index in path %q", path)
			}
			segs = append(segs, PathSeg{Index: idx, IsIdx: true})
			i += j + 1
		default:
			j := i
			for j < len(path) && path[j] != '.' && path[j] != '[' {
				j++
			}
			segs = append(segs, PathSeg{Key: path[i:j]})
			i = j
		}
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	return segs, nil
}

// Lookup walks the path and returns the node, or nil if any step is missing.
func (n *DocNode) Lookup(segs []PathSeg) *DocNode {
	cur := n
	for _, s := range segs {
		if cur == nil {
			return nil
		}
		if s.IsIdx {
			if cur.Kind != DocArray || s.Index >= len(cur.Items) {
				return nil
			}
			cur = cur.Items[s.Index]
		} else {
			if cur.Kind != DocObject {
				return nil
			}
			cur = cur.Fields[s.Key]
		}
	}
	return cur
}

// navigateParent resolves all but the last segment. With create set, missing
// object keys are created as empty objects along the way; array gaps are
// never created.
func (n *DocNode) navigateParent(segs []PathSeg, create bool) (*DocNode, PathSeg, error) {
	if len(segs) == 0 {
		return nil, PathSeg{}, fmt.Errorf("empty path")
	}
	cur := n
	for _, s := range segs[:len(segs)-1] {
		if s.IsIdx {
			if cur.Kind != DocArray {
				return nil, PathSeg{}, errPathType(s)
			}
			if s.Index >= len(cur.Items) {
				return nil, PathSeg{}, errPathMissingSeg(s)
			}
			cur = cur.Items[s.Index]
		} else {
			if cur.Kind != DocObject {
				return nil, PathSeg{}, errPathType(s)
			}
			next, ok := cur.Fields[s.Key]
			if !ok {
				if !create {
					return nil, PathSeg{}, errPathMissingSeg(s)
				}
				next = NewObjectNode()
				cur.Set(s.Key, next)
			}
			cur = next
		}
	}
	return cur, segs[len(segs)-1], nil
}

func errPathType(s PathSeg) error {
	if s.IsIdx {
		return fmt.Errorf("path index [%d] applied to a non-array", s.Index)
	}
	return fmt.Errorf("path key %q applied to a non-object", s.Key)
}

func errPathMissingSeg(s PathSeg) error {
	if s.IsIdx {
		return fmt.Errorf("missing element [%d]", s.Index)
	}
	return fmt.Errorf("missing key %q", s.Key)
}

// SetPath replaces the value at the path. createParents controls whether
// missing object parents are created; overwrite controls whether an existing
// leaf may be replaced (insert semantics pass false and fail on presence).
// A failing edit leaves the tree unchanged: with createParents the edit is
// first tried on a copy, so no parents are created when a later step fails.
func (n *DocNode) SetPath(segs []PathSeg, val *DocNode, createParents, overwrite bool) error {
	if createParents {
		if err := n.Clone().setPath(segs, val, true, overwrite); err != nil {
			return err
		}
	}
	return n.setPath(segs, val, createParents, overwrite)
}

func (n *DocNode) setPath(segs []PathSeg, val *DocNode, createParents, overwrite bool) error {
	parent, last, err := n.navigateParent(segs, createParents)
	if err != nil {
		return err
	}
	if last.IsIdx {
		if parent.Kind != DocArray {
			return errPathType(last)
		}
		if last.Index >= len(parent.Items) {
			return errPathMissingSeg(last)
		}
		if !overwrite {
			return fmt.Errorf("element [%d] already present", last.Index)
		}
		parent.Items[last.Index] = val
		return nil
	}
	if parent.Kind != DocObject {
		return errPathType(last)
	}
	if _, exists := parent.Fields[last.Key]; exists && !overwrite {
		return fmt.Errorf("key %q already present", last.Key)
	}
	parent.Set(last.Key, val)
	return nil
}

// DeletePath removes the value at the path; a missing path is an error.
func (n *DocNode) DeletePath(segs []PathSeg) error {
	parent, last, err := n.navigateParent(segs, false)
	if err != nil {
		return err
	}
	if last.IsIdx {
		if parent.Kind != DocArray {
			return errPathType(last)
		}
		if last.Index >= len(parent.Items) {
			return errPathMissingSeg(last)
		}
		parent.Items = append(parent.Items[:last.Index], parent.Items[last.Index+1:]...)
		return nil
	}
	if parent.Kind != DocObject {
		return errPathType(last)
	}
	if !parent.removeKey(last.Key) {
		return errPathMissingSeg(last)
	}
	return nil
}

// AppendPath appends to the array at the path. An empty path targets the
// root.
func (n *DocNode) AppendPath(segs []PathSeg, val *DocNode) error {
	target := n
	if len(segs) > 0 {
		target = n.Lookup(segs)
		if target == nil {
			return errPathMissingSeg(segs[len(segs)-1])
		}
	}
	if target.Kind != DocArray {
		return fmt.Errorf("append target is not an array")
	}
	target.Items = append(target.Items, val)
	return nil
}

// MergePath deep-merges an object into the object at the path: object values
// merge recursively, everything else replaces.
func (n *DocNode) MergePath(segs []PathSeg, val *DocNode) error {
	if val.Kind != DocObject {
		return fmt.Errorf("merge requires an object value")
	}
	target := n
	if len(segs) > 0 {
		target = n.Lookup(segs)
		if target == nil {
			return errPathMissingSeg(segs[len(segs)-1])
		}
	}
	if target.Kind != DocObject {
		return fmt.Errorf("merge target is not an object")
	}
	deepMerge(target, val)
	return nil
}

func deepMerge(dst, src *DocNode) {
	for _, k := range src.Keys {
		sv := src.Fields[k]
		if dv, ok := dst.Fields[k]; ok && dv.Kind == DocObject && sv.Kind == DocObject {
			deepMerge(dv, sv)
			continue
		}
		dst.Set(k, sv.Clone())
	}
}

// ---------------------------------------------------------------------------
// JSON
// ---------------------------------------------------------------------------

func decodeJSONString(src string) (*DocNode, error) {
	dec := json.NewDecoder(strings.NewReader(src))
	dec.UseNumber()
	node, err := decodeJSONValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing content after JSON value")
	}
	return node, nil
}

func decodeJSONValue(dec *json.Decoder) (*DocNode, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeJSONToken(dec, tok)
}

func decodeJSONToken(dec *json.Decoder, tok json.Token) (*DocNode, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewObjectNode()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string")
				}
				child, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, child)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return obj, nil
		case '[':
			arr := NewArrayNode()
			for dec.More() {
				child, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				arr.Items = append(arr.Items, child)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case string:
		return StrNode(t), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return NumNode(n), nil
	case bool:
		return BoolNode(t), nil
	case nil:
		return NullNode(), nil
	}
	return nil, fmt.Errorf("unexpected JSON token %v", tok)
}

// encodeJSON renders the node as JSON; pretty adds two-space indentation.
func (n *DocNode) encodeJSON(pretty bool) string {
	var b strings.Builder
	writeJSON(&b, n, pretty, 0)
	return b.String()
}

func writeJSON(b *strings.Builder, n *DocNode, pretty bool, depth int) {
	indent := func(d int) {
		if pretty {
			b.WriteByte('\n')
			b.WriteString(strings.Repeat("  ", d))
		}
	}
	switch n.Kind {
	case DocScalar:
		switch n.SKind {
		case ScalarNull:
			b.WriteString("null")
		case ScalarBool:
			b.WriteString(strconv.FormatBool(n.SBool))
		case ScalarNum:
			b.WriteString(jsonNum(n.SNum))
		case ScalarStr:
			raw, _ := json.Marshal(n.SStr)
			b.Write(raw)
		}
	case DocObject:
		if len(n.Keys) == 0 {
			b.WriteString("{}")
			return
		}
		b.WriteByte('{')
		for i, k := range n.Keys {
			if i > 0 {
				b.WriteByte(',')
			}
			indent(depth + 1)
			raw, _ := json.Marshal(k)
			b.Write(raw)
			if pretty {
				b.WriteString(": ")
			} else {
				b.WriteByte(':')
			}
			writeJSON(b, n.Fields[k], pretty, depth+1)
		}
		indent(depth)
		b.WriteByte('}')
	case DocArray:
		if len(n.Items) == 0 {
			b.WriteString("[]")
			return
		}
		b.WriteByte('[')
		for i, item := range n.Items {
			if i > 0 {
				b.WriteByte(',')
			}
			indent(depth + 1)
			writeJSON(b, item, pretty, depth+1)
		}
		indent(depth)
		b.WriteByte(']')
	}
}

// jsonNum renders integral floats as JSON integers so `[math@1+1]` logs as
// the token 2, not 2.0.
func jsonNum(n float64) string {
	if n == float64(int64(n)) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// ---------------------------------------------------------------------------
// YAML
// ---------------------------------------------------------------------------

func decodeYAML(data []byte) (*DocNode, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return NullNode(), nil
	}
	return yamlToNode(root.Content[0])
}

func yamlToNode(n *yaml.Node) (*DocNode, error) {
	switch n.Kind {
	case yaml.MappingNode:
		obj := NewObjectNode()
		for i := 0; i+1 < len(n.Content); i += 2 {
			child, err := yamlToNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			obj.Set(n.Content[i].Value, child)
		}
		return obj, nil
	case yaml.SequenceNode:
		arr := NewArrayNode()
		for _, c := range n.Content {
			child, err := yamlToNode(c)
			if err != nil {
				return nil, err
			}
			arr.Items = append(arr.Items, child)
		}
		return arr, nil
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!null":
			return NullNode(), nil
		case "!!bool":
			return BoolNode(n.Value == "true" || n.Value == "True" || n.Value == "TRUE"), nil
		case "!!int", "!!float":
			f, err := strconv.ParseFloat(n.Value, 64)
			if err != nil {
				return nil, err
			}
			return NumNode(f), nil
		default:
			return StrNode(n.Value), nil
		}
	case yaml.AliasNode:
		return yamlToNode(n.Alias)
	}
	return NullNode(), nil
}

func encodeYAML(n *DocNode) ([]byte, error) {
	return yaml.Marshal(nodeToYAML(n))
}

func nodeToYAML(n *DocNode) *yaml.Node {
	switch n.Kind {
	case DocObject:
		y := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range n.Keys {
			y.Content = append(y.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				nodeToYAML(n.Fields[k]))
		}
		return y
	case DocArray:
		y := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range n.Items {
			y.Content = append(y.Content, nodeToYAML(item))
		}
		return y
	default:
		switch n.SKind {
		case ScalarNull:
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
		case ScalarBool:
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(n.SBool)}
		case ScalarNum:
			tag := "!!float"
			if n.SNum == float64(int64(n.SNum)) {
				tag = "!!int"
			}
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: jsonNum(n.SNum)}
		default:
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: n.SStr}
		}
	}
}

// ---------------------------------------------------------------------------
// TOML
// ---------------------------------------------------------------------------

func decodeTOML(data []byte) (*DocNode, error) {
	var raw map[string]interface{}
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, err
	}
	node := interfaceToNode(raw)
	orderFromMeta(node, md.Keys())
	return node, nil
}

func interfaceToNode(v interface{}) *DocNode {
	switch t := v.(type) {
	case map[string]interface{}:
		obj := NewObjectNode()
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			obj.Set(k, interfaceToNode(t[k]))
		}
		return obj
	case []map[string]interface{}:
		arr := NewArrayNode()
		for _, item := range t {
			arr.Items = append(arr.Items, interfaceToNode(item))
		}
		return arr
	case []interface{}:
		arr := NewArrayNode()
		for _, item := range t {
			arr.Items = append(arr.Items, interfaceToNode(item))
		}
		return arr
	case string:
		return StrNode(t)
	case bool:
		return BoolNode(t)
	case int64:
		return NumNode(float64(t))
	case float64:
		return NumNode(t)
	case time.Time:
		return StrNode(t.Format(time.RFC3339))
	case nil:
		return NullNode()
	}
	return StrNode(fmt.Sprintf("%v", v))
}

// orderFromMeta reorders object keys by first appearance in the decoded TOML
// document, using the key paths BurntSushi records during decode.
func orderFromMeta(root *DocNode, keys []toml.Key) {
	rank := map[*DocNode]map[string]int{}
	for _, key := range keys {
		cur := root
		for depth, part := range key {
			if cur == nil || cur.Kind != DocObject {
				break
			}
			m := rank[cur]
			if m == nil {
				m = map[string]int{}
				rank[cur] = m
			}
			if _, seen := m[part]; !seen {
				m[part] = len(m)
			}
			if depth < len(key)-1 {
				cur = cur.Fields[part]
			}
		}
	}
	var apply func(n *DocNode)
	apply = func(n *DocNode) {
		if n == nil {
			return
		}
		switch n.Kind {
		case DocObject:
			if m, ok := rank[n]; ok {
				sort.SliceStable(n.Keys, func(i, j int) bool {
					ri, oki := m[n.Keys[i]]
					rj, okj := m[n.Keys[j]]
					if oki && okj {
						return ri < rj
					}
					return oki && !okj
				})
			}
			for _, k := range n.Keys {
				apply(n.Fields[k])
			}
		case DocArray:
			for _, item := range n.Items {
				apply(item)
			}
		}
	}
	apply(root)
}

// encodeTOML writes an ordered TOML rendering. BurntSushi's encoder sorts
// map keys, so emission walks the ordered tree directly. The root must be an
// object; null leaves are not representable in TOML.
func encodeTOML(n *DocNode) ([]byte, error) {
	if n.Kind != DocObject {
		return nil, fmt.Errorf("toml document root must be a table")
	}
	var b bytes.Buffer
	if err := writeTOMLTable(&b, n, nil); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func writeTOMLTable(b *bytes.Buffer, n *DocNode, path []string) error {
	var tables []string
	var arrayTables []string
	for _, k := range n.Keys {
		child := n.Fields[k]
		switch {
		case child.Kind == DocObject:
			tables = append(tables, k)
		case child.Kind == DocArray && len(child.Items) > 0 && child.Items[0].Kind == DocObject:
			arrayTables = append(arrayTables, k)
		default:
			val, err := tomlValue(child)
			if err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			fmt.Fprintf(b, "%s = %s\n", tomlKey(k), val)
		}
	}
	for _, k := range tables {
		sub := append(append([]string(nil), path...), k)
		fmt.Fprintf(b, "\n[%s]\n", tomlKeyPath(sub))
		if err := writeTOMLTable(b, n.Fields[k], sub); err != nil {
			return err
		}
	}
	for _, k := range arrayTables {
		sub := append(append([]string(nil), path...), k)
		for _, item := range n.Fields[k].Items {
			fmt.Fprintf(b, "\n[[%s]]\n", tomlKeyPath(sub))
			if err := writeTOMLTable(b, item, sub); err != nil {
				return err
			}
		}
	}
	return nil
}

func tomlValue(n *DocNode) (string, error) {
	switch n.Kind {
	case DocScalar:
		switch n.SKind {
		case ScalarNull:
			return "", fmt.Errorf("toml cannot represent null")
		case ScalarBool:
			return strconv.FormatBool(n.SBool), nil
		case ScalarNum:
			if n.SNum == float64(int64(n.SNum)) {
				return strconv.FormatInt(int64(n.SNum), 10), nil
			}
			return strconv.FormatFloat(n.SNum, 'g', -1, 64), nil
		case ScalarStr:
			raw, _ := json.Marshal(n.SStr)
			return string(raw), nil
		}
	case DocArray:
		parts := make([]string, 0, len(n.Items))
		for _, item := range n.Items {
			v, err := tomlValue(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, v)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case DocObject:
		parts := make([]string, 0, len(n.Keys))
		for _, k := range n.Keys {
			v, err := tomlValue(n.Fields[k])
			if err != nil {
				return "", err
			}
			parts = append(parts, fmt.Sprintf("%s = %s", tomlKey(k), v))
		}
		return "{" + strings.Join(parts, ", ") + "}", nil
	}
	return "", fmt.Errorf("unsupported toml value")
}

func tomlKey(k string) string {
	if k == "" {
		return `""`
	}
	for _, r := range k {
		if !(r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			raw, _ := json.Marshal(k)
			return string(raw)
		}
	}
	return k
}

func tomlKeyPath(parts []string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = tomlKey(p)
	}
	return strings.Join(quoted, ".")
}

// ---------------------------------------------------------------------------
// Format dispatch
// ---------------------------------------------------------------------------

// DecodeDocument parses data in the named format ("json", "yaml", "toml").
func DecodeDocument(format string, data []byte) (*DocNode, error) {
	switch format {
	case "json", "":
		if len(bytes.TrimSpace(data)) == 0 {
			return NullNode(), nil
		}
		return decodeJSONString(string(data))
	case "yaml", "yml":
		return decodeYAML(data)
	case "toml":
		return decodeTOML(data)
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// Encode serializes the document in its own format.
func (d *Document) Encode() ([]byte, error) {
	switch d.Format {
	case "yaml", "yml":
		return encodeYAML(d.Root)
	case "toml":
		return encodeTOML(d.Root)
	default:
		return []byte(d.Root.encodeJSON(true) + "\n"), nil
	}
}

// formatForExt maps a file extension (no dot) to a document format.
func formatForExt(ext string) (string, bool) {
	switch strings.ToLower(ext) {
	case "json", "":
		return "json", true
	case "yaml", "yml":
		return "yaml", true
	case "toml":
		return "toml", true
	}
	return "", false
}
