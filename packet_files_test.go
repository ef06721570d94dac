package tagspeak

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// S1: arithmetic result logs as the bare JSON token.
func Test_Files_LogScalarJSON(t *testing.T) {
	dir := newBox(t)
	mustRun(t, dir, `[math@1+1]>[log@out.json]`)
	data, err := os.ReadFile(filepath.Join(dir, "out.json"))
	require.NoError(t, err)
	require.Equal(t, "2", strings.TrimSpace(string(data)))
}

// S2: structured log emits keys in body order.
func Test_Files_LogStructuredJSON(t *testing.T) {
	dir := newBox(t)
	mustRun(t, dir, `[log(json)@profile.json]{ [key(name)@"Saryn"] [key(age)@25] [key(active)@true] }`)
	data, err := os.ReadFile(filepath.Join(dir, "profile.json"))
	require.NoError(t, err)

	doc, err := decodeJSONString(string(data))
	require.NoError(t, err)
	require.Equal(t, []string{"name", "age", "active"}, doc.Keys)
	require.Equal(t, "Saryn", doc.Fields["name"].SStr)
	require.Equal(t, 25.0, doc.Fields["age"].SNum)
	require.Equal(t, true, doc.Fields["active"].SBool)
}

func Test_Files_LogSections(t *testing.T) {
	dir := newBox(t)
	mustRun(t, dir, `[log(json)@rep.json]{ [key(v)@1] [sect@server]{ [key(host)@"localhost"] } }`)
	data, err := os.ReadFile(filepath.Join(dir, "rep.json"))
	require.NoError(t, err)
	doc, err := decodeJSONString(string(data))
	require.NoError(t, err)
	require.Equal(t, []string{"v", "server"}, doc.Keys)
	require.Equal(t, "localhost", doc.Fields["server"].Fields["host"].SStr)
}

func Test_Files_LogFormatExtensionMismatch(t *testing.T) {
	dir := newBox(t)
	_, _, _, err := runScript(t, dir, `[math@1]>[log(json)@data.yaml]`)
	require.Error(t, err)
	require.Equal(t, EFormat, CodeOf(err))
}

// S5: no sentinel anywhere above means no filesystem access.
func Test_Files_LoadWithoutBoxFails(t *testing.T) {
	dir := t.TempDir() // deliberately no red.tgsk
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.json"), []byte(`{"a":1}`), 0o644))
	_, _, _, err := runScript(t, dir, `[load@data.json]`)
	require.Error(t, err)
	require.Equal(t, EBoxRequired, CodeOf(err))
}

// S6: resolving above the root is refused before any read.
func Test_Files_LoadEscapeFails(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "project")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, Sentinel), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "outside.json"), []byte(`{}`), 0o644))

	_, _, _, err := runScript(t, root, `[load@../outside.json]`)
	require.Error(t, err)
	require.Equal(t, EBoxViolation, CodeOf(err))
}

func Test_Files_LoadModSaveJSON(t *testing.T) {
	dir := newBox(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"a":{"b":1,"c":2}}`), 0o644))

	mustRun(t, dir, `[load@/config.json]>[save@cfg]>[mod@cfg]{ [comp(a.b)@2] [merge(a)@"{\"d\":4}"] [ins(a.e)@5] [del(a.c)] }>[save@cfg]`)

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	doc, err := decodeJSONString(string(data))
	require.NoError(t, err)
	segs, _ := ParsePath("a.b")
	require.Equal(t, 2.0, doc.Lookup(segs).SNum)
	segs, _ = ParsePath("a.d")
	require.Equal(t, 4.0, doc.Lookup(segs).SNum)
	segs, _ = ParsePath("a.e")
	require.Equal(t, 5.0, doc.Lookup(segs).SNum)
	segs, _ = ParsePath("a.c")
	require.Nil(t, doc.Lookup(segs))
}

func Test_Files_ModErrorsUseTaxonomy(t *testing.T) {
	dir := newBox(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d.json"), []byte(`{"a":1}`), 0o644))

	_, _, _, err := runScript(t, dir, `[load@/d.json]>[save@doc]>[mod@doc]{ [del(missing)] }`)
	require.Equal(t, EPathMissing, CodeOf(err))

	_, _, _, err = runScript(t, dir, `[load@/d.json]>[save@doc]>[mod@doc]{ [ins(a)@2] }`)
	require.Equal(t, EPathExists, CodeOf(err))

	_, _, _, err = runScript(t, dir, `[load@/d.json]>[save@doc]>[mod@doc]{ [append(a)@2] }`)
	require.Equal(t, EType, CodeOf(err))
}

func Test_Files_ModOverwriteFlagCreatesParents(t *testing.T) {
	dir := newBox(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d.json"), []byte(`{}`), 0o644))
	rt, _, _ := mustRun(t, dir, `[load@/d.json]>[save@doc]>[mod(overwrite)@doc]{ [set(deep.key)@"made"] }`)
	v, _ := rt.GetVar("doc")
	segs, _ := ParsePath("deep.key")
	require.Equal(t, "made", v.DocRef().Root.Lookup(segs).SStr)
}

func Test_Files_ModDebugPrintsDiff(t *testing.T) {
	dir := newBox(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d.json"), []byte(`{"a":1}`), 0o644))
	_, out, _ := mustRun(t, dir, `[load@/d.json]>[save@doc]>[mod(debug)@doc]{ [comp(a)@2] }`)
	require.Contains(t, out.String(), "[mod(debug)]")
	require.Contains(t, out.String(), `-  "a": 1`)
	require.Contains(t, out.String(), `+  "a": 2`)
}

func Test_Files_ModMutationVisibleThroughSharedHandle(t *testing.T) {
	dir := newBox(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d.json"), []byte(`{"a":1}`), 0o644))
	rt, _, _ := mustRun(t, dir, `
		[load@/d.json]>[store@one]
		[var@one]>[store@two]
		[mod@one]{ [comp(a)@9] }
	`)
	v, _ := rt.GetVar("two")
	segs, _ := ParsePath("a")
	require.Equal(t, 9.0, v.DocRef().Root.Lookup(segs).SNum)
}

func Test_Files_SaveSkipsUntouchedDocument(t *testing.T) {
	dir := newBox(t)
	path := filepath.Join(dir, "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`), 0o644))

	// save with no edits leaves the file byte-identical
	mustRun(t, dir, `[load@/cfg.json]>[save@cfg]>[save@cfg]`)
	data, _ := os.ReadFile(path)
	require.Equal(t, `{"a":1}`, string(data))
}

func Test_Files_LoadYAMLAndTOML(t *testing.T) {
	dir := newBox(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.yaml"), []byte("hi: 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.toml"), []byte("hi = 1\n"), 0o644))

	rt, _, _ := mustRun(t, dir, `[load@/c.yaml]>[store@y] [load@/c.toml]>[store@tm]`)
	for _, name := range []string{"y", "tm"} {
		v, ok := rt.GetVar(name)
		require.True(t, ok)
		require.Equal(t, TDoc, v.Tag)
		segs, _ := ParsePath("hi")
		require.Equal(t, 1.0, v.DocRef().Root.Lookup(segs).SNum, "handle %s", name)
	}
}

func Test_Files_SaveYAMLKeepsFormat(t *testing.T) {
	dir := newBox(t)
	path := filepath.Join(dir, "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hi: 1\nname: box\n"), 0o644))
	mustRun(t, dir, `[load@/c.yaml]>[save@cfg]>[mod@cfg]{ [comp(hi)@2] }>[save@cfg]`)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "hi: 2")
	require.Contains(t, string(data), "name: box")
	// still YAML, not JSON
	require.False(t, strings.HasPrefix(strings.TrimSpace(string(data)), "{"))
}

func Test_Files_LoadUnsupportedExtension(t *testing.T) {
	dir := newBox(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	_, _, _, err := runScript(t, dir, `[load@/notes.txt]`)
	require.Error(t, err)
	require.Equal(t, EFormat, CodeOf(err))
}

func Test_Files_GetAndExists(t *testing.T) {
	dir := newBox(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "u.json"),
		[]byte(`{"user":{"name":"Ash","items":[1,2,3]}}`), 0o644))
	rt, _, _ := mustRun(t, dir, `
		[load@/u.json]>[store@u]
		[get(user.name)@u]>[store@name]
		[get(user.items[1])@u]>[store@second]
		[exists(user.age)@u]>[store@hasAge]
		[exists(user.name)@u]>[store@hasName]
	`)
	v, _ := rt.GetVar("name")
	require.Equal(t, "Ash", v.StrVal())
	require.Equal(t, 2.0, numVar(t, rt, "second"))
	v, _ = rt.GetVar("hasAge")
	require.False(t, v.BoolVal())
	v, _ = rt.GetVar("hasName")
	require.True(t, v.BoolVal())

	_, _, _, err := runScript(t, dir, `[load@/u.json]>[store@u] [get(user.age)@u]`)
	require.Equal(t, EPathMissing, CodeOf(err))
}

func Test_Files_ParseFormats(t *testing.T) {
	dir := newBox(t)
	rt, _, _ := mustRun(t, dir, `
		[parse(json)@"{\"a\":1}"]>[store@j]
		[parse(yaml)@"a: 2"]>[store@y]
	`)
	segs, _ := ParsePath("a")
	v, _ := rt.GetVar("j")
	require.Equal(t, 1.0, v.DocRef().Root.Lookup(segs).SNum)
	v, _ = rt.GetVar("y")
	require.Equal(t, 2.0, v.DocRef().Root.Lookup(segs).SNum)

	_, _, _, err := runScript(t, dir, `[parse(json)@"not json"]`)
	require.Equal(t, EFormat, CodeOf(err))
}

func Test_Files_ArrayAndObjBuilders(t *testing.T) {
	dir := newBox(t)
	rt, _, _ := mustRun(t, dir, `
		[array]{ [math@1] [math@2] [msg@"three"] }>[store@arr]
		[obj]{ [key(a)@1] [key(b)@"two"] }>[store@o]
		[len@arr]>[store@n]
	`)
	v, _ := rt.GetVar("arr")
	require.Equal(t, DocArray, v.DocRef().Root.Kind)
	require.Len(t, v.DocRef().Root.Items, 3)
	require.Equal(t, 3.0, numVar(t, rt, "n"))

	v, _ = rt.GetVar("o")
	require.Equal(t, []string{"a", "b"}, v.DocRef().Root.Keys)
}

func Test_Files_CDMovesInsideBox(t *testing.T) {
	dir := newBox(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "s.json"), []byte(`{"in":"sub"}`), 0o644))

	rt, _, _ := mustRun(t, dir, `[cd@sub] [load@s.json]>[store@d]`)
	require.Equal(t, "sub", rt.Box.Cwd)

	_, _, _, err := runScript(t, dir, `[cd@..]`)
	require.Equal(t, EBoxViolation, CodeOf(err))
}
