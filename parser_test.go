package tagspeak

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func parseOne(t *testing.T, src string) *Node {
	t.Helper()
	n, err := Parse(src)
	require.NoError(t, err)
	return n
}

func firstPacket(t *testing.T, src string) *Packet {
	t.Helper()
	n := parseOne(t, src)
	require.NotEmpty(t, n.List)
	stmt := n.List[0]
	if stmt.Kind == NChain {
		stmt = stmt.List[0]
	}
	require.Equal(t, NPacket, stmt.Kind)
	return stmt.Pkt
}

func Test_Parse_PacketShapes(t *testing.T) {
	p := firstPacket(t, `[math@1+1]`)
	require.Equal(t, "math", p.Op)
	require.Equal(t, ArgRaw, p.Arg.Kind)
	require.Equal(t, "1+1", p.Arg.Raw)

	p = firstPacket(t, `[store:rigid@x]`)
	require.Equal(t, "store", p.NS)
	require.Equal(t, "rigid", p.Op)
	require.Equal(t, ArgIdent, p.Arg.Kind)

	p = firstPacket(t, `[log(json)@"profile.json"]`)
	require.Equal(t, "log", p.Op)
	require.Equal(t, []string{"json"}, p.Flags)
	require.Equal(t, ArgStr, p.Arg.Kind)
	require.Equal(t, "profile.json", p.Arg.Str)

	p = firstPacket(t, `[store:context(mood==1)@tone]`)
	require.Equal(t, "context", p.Op)
	require.Equal(t, "mood==1", p.FlagRaw)

	p = firstPacket(t, `[loop:each(item, idx@arr)]{[print]}`)
	require.Equal(t, "loop", p.NS)
	require.Equal(t, "each", p.Op)
	require.Equal(t, "item, idx@arr", p.FlagRaw)
	require.NotNil(t, p.Body)

	p = firstPacket(t, `[funct:tick]{[print@"tick"]}`)
	require.Equal(t, "funct", p.NS)
	require.Equal(t, "tick", p.Op)
	require.Len(t, p.Body, 1)
}

func Test_Parse_ChainAndComments(t *testing.T) {
	n := parseOne(t, `
		# line comment
		[math@1]>[store@a] // another
		/* block
		   comment */
		[math@2]>[store@b]
	`)
	require.Len(t, n.List, 2)
	require.Equal(t, NChain, n.List[0].Kind)
	require.Len(t, n.List[0].List, 2)
}

func Test_Parse_CommentInsideBlock(t *testing.T) {
	n := parseOne(t, "[loop@2]{\n# tick\n[print@1]\n}")
	require.Len(t, n.List, 1)
}

func Test_Parse_BareComparatorIsValue(t *testing.T) {
	n := parseOne(t, `[eq]`)
	require.Equal(t, NComparator, n.List[0].Kind)
	require.Equal(t, CmpEq, n.List[0].Cmp)

	// with an argument it stays a packet
	p := firstPacket(t, `[eq@5]`)
	require.Equal(t, "eq", p.Op)
}

func Test_Parse_IfChainModern(t *testing.T) {
	n := parseOne(t, `[if@(x==1)]{[print@"one"]}>[or@(x==2)]{[print@"two"]}>[else]{[print@"other"]}`)
	require.Len(t, n.List, 1)
	stmt := n.List[0]
	require.Equal(t, NIf, stmt.Kind)
	require.Len(t, stmt.If.Branches, 2)
	require.NotNil(t, stmt.If.Else)
}

func Test_Parse_IfChainLegacyThen(t *testing.T) {
	n := parseOne(t, `[if@(x==1)]>[then]{[print@"one"]}>[else]>[then]{[print@"other"]}`)
	stmt := n.List[0]
	require.Equal(t, NIf, stmt.Kind)
	require.Len(t, stmt.If.Branches, 1)
	require.NotNil(t, stmt.If.Else)
}

func Test_Parse_ConditionPrecedence(t *testing.T) {
	p := firstPacket(t, `[loop:until@(a==1 && b==2 || !(c<3))]{}`)
	_ = p
	n := parseOne(t, `[if@(a==1 && b==2 || !(c<3))]{[print]}`)
	cond := n.List[0].If.Branches[0].Cond
	// || binds loosest
	require.Equal(t, CondOr, cond.Kind)
	require.Equal(t, CondAnd, cond.Left.Kind)
	require.Equal(t, CondNot, cond.Right.Kind)
}

func Test_Parse_Diagnostics(t *testing.T) {
	cases := []struct {
		src  string
		code string
	}{
		{`print@"hello"]`, EParseUnexpectedChar},
		{`[]`, EParseEmptyOp},
		{`[msg@"oops]`, EParseUnterminatedString},
		{`[print`, EParseUnbalancedBrackets},
		{`[loop@2]{[print]`, EParseUnbalancedBraces},
		{`]`, EParseExtraClose},
		{`[if]{[print]}`, EParseIfNoCond},
		{`[if@]{[print]}`, EParseIfNoCond},
		{`[if@(x==1)]>[print@"x"]`, EParseExpectedThen},
		{`[or@(x==1)]{[print]}`, EParseUnexpectedChar},
	}
	for _, tc := range cases {
		_, err := Parse(tc.src)
		require.Error(t, err, "source %q", tc.src)
		require.Equal(t, tc.code, CodeOf(err), "source %q: %v", tc.src, err)
	}
}

// S8: the stray leading identifier points at column 1.
func Test_Parse_UnexpectedCharPosition(t *testing.T) {
	_, err := Parse(`print@"hello"]`)
	require.Error(t, err)
	se, ok := err.(*ScriptError)
	require.True(t, ok)
	require.Equal(t, EParseUnexpectedChar, se.Code)
	require.Equal(t, 1, se.Line)
	require.Equal(t, 1, se.Col)
	require.Contains(t, se.Render(), "^")
}

// Invariant 1: canonical form reparses to an equivalent tree.
func Test_Parse_CanonRoundTrip(t *testing.T) {
	sources := []string{
		`[math@1+1]>[log@"out.json"]`,
		`[int@0]>[store@count] [loop:until@(count==3)]{[math@count+1]>[store@count] [print@count]}`,
		`[funct:tick]{[print@"tick"]} [loop@3]{[call@tick]}`,
		`[if@(x==1)]{[print@"one"]}>[or@(x>=2)]{[print@"two"]}>[else]{[print@"other"]}`,
		`[eq]>[store@isEqual]`,
		`[load@"/cfg.json"]>[save@cfg]>[mod@cfg]{[comp(a.b)@2] [del(a.c)]}`,
		`[yellow@"careful"]{[exec@"echo hi"]}`,
		`[store:context(mood==1)@tone]`,
	}
	for _, src := range sources {
		first, err := Parse(src)
		require.NoError(t, err, "source %q", src)
		canon := first.Canon()
		second, err := Parse(canon)
		require.NoError(t, err, "canon %q", canon)
		require.Equal(t, canon, second.Canon(), "round trip for %q", src)
	}
}

func Test_Parse_UnknownOpIsSyntacticallyFine(t *testing.T) {
	n := parseOne(t, `[definitelynotreal@1]`)
	require.Equal(t, NPacket, n.List[0].Kind)
}
