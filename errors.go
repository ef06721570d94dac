// errors.go — stable error codes and user-facing rendering.
//
// Every surfaced failure is a *ScriptError carrying a stable E_* code, the
// engine's one-line detail, a friendly hint, and (for parse errors) a source
// position. Rendering produces the single code line plus one human paragraph
// the CLI prints; parse errors additionally get a caret snippet pointing at
// the offending column.
package tagspeak

import (
	"fmt"
	"strings"
)

// Stable error codes. The string values are part of the CLI contract.
const (
	EParseUnexpectedChar     = "E_PARSE_UNEXPECTED_CHAR"
	EParseEmptyOp            = "E_PARSE_EMPTY_OP"
	EParseUnterminatedString = "E_PARSE_UNTERMINATED_STRING"
	EParseUnbalancedBrackets = "E_PARSE_UNBALANCED_BRACKETS"
	EParseUnbalancedBraces   = "E_PARSE_UNBALANCED_BRACES"
	EParseExtraClose         = "E_PARSE_EXTRA_CLOSE"
	EParseIfNoCond           = "E_PARSE_IF_NO_COND"
	EParseExpectedThen       = "E_PARSE_EXPECTED_THEN"

	EBoxRequired  = "E_BOX_REQUIRED"
	EBoxViolation = "E_BOX_VIOLATION"

	EType           = "E_TYPE"
	EUnknownVar     = "E_UNKNOWN_VAR"
	EUnknownPacket  = "E_UNKNOWN_PACKET"
	ERigidRebind    = "E_RIGID_REBIND"
	ENoContextMatch = "E_NO_CONTEXT_MATCH"

	EPathMissing = "E_PATH_MISSING"
	EPathExists  = "E_PATH_EXISTS"
	EFormat      = "E_FORMAT"

	ECallDepthExceeded = "E_CALL_DEPTH_EXCEEDED"
	ELoopOverflow      = "E_LOOP_OVERFLOW"
	ERunDepthExceeded  = "E_RUN_DEPTH_EXCEEDED"

	EExec       = "E_EXEC"
	EHTTP       = "E_HTTP"
	EHTTPStatus = "E_HTTP_STATUS" // rendered as E_HTTP_STATUS:<code>

	// gating refusals and red-only packets, outside the frozen core table
	EYellowRequired = "E_YELLOW_REQUIRED"
	ERedRequired    = "E_RED_REQUIRED"
)

// ScriptError is the one error type the engine surfaces.
type ScriptError struct {
	Code   string
	Detail string // one-line engine detail
	Hint   string // friendly guidance, may be empty
	Line   int    // 1-based, 0 when unknown
	Col    int    // 1-based, 0 when unknown
	Src    string // source text for snippet rendering, parse errors only
}

func (e *ScriptError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s at %d:%d: %s", e.Code, e.Line, e.Col, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// scriptErr builds a runtime error with no source position.
func scriptErr(code, format string, args ...interface{}) *ScriptError {
	return &ScriptError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// withHint attaches guidance without disturbing the code or detail.
func (e *ScriptError) withHint(h string) *ScriptError {
	e.Hint = h
	return e
}

// CodeOf extracts the stable code from any error, or "" for foreign errors.
func CodeOf(err error) string {
	for err != nil {
		if se, ok := err.(*ScriptError); ok {
			return se.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// Render produces the full user-facing message: the code line, the human
// paragraph, and — when a position is known — a caret snippet with one line
// of context either side.
func (e *ScriptError) Render() string {
	var b strings.Builder
	b.WriteString(e.Error())
	if e.Hint != "" {
		b.WriteString("\n")
		b.WriteString(e.Hint)
	}
	if e.Line > 0 && e.Src != "" {
		b.WriteString("\n\n")
		b.WriteString(caretSnippet(e.Src, e.Line, e.Col))
	}
	return b.String()
}

// RenderError formats any error for the CLI, using the rich form for script
// errors and plain text otherwise.
func RenderError(err error) string {
	if se, ok := err.(*ScriptError); ok {
		return se.Render()
	}
	return err.Error()
}

// caretSnippet renders numbered context lines with a caret under the column.
// Coordinates are 1-based and clamped so rendering never panics on short or
// empty sources.
func caretSnippet(src string, line, col int) string {
	lines := strings.Split(src, "\n")
	if line < 1 {
		line = 1
	}
	if line > len(lines) {
		line = len(lines)
	}
	if col < 1 {
		col = 1
	}
	var b strings.Builder
	if line > 1 {
		fmt.Fprintf(&b, "%4d | %s\n", line-1, lines[line-2])
	}
	fmt.Fprintf(&b, "%4d | %s\n", line, lines[line-1])
	fmt.Fprintf(&b, "     | %s^\n", strings.Repeat(" ", col-1))
	if line < len(lines) {
		fmt.Fprintf(&b, "%4d | %s", line+1, lines[line])
	}
	return strings.TrimRight(b.String(), "\n")
}

// hintFor classifies a parse code into the guidance shown under the detail
// line.
func hintFor(code string) string {
	switch code {
	case EParseUnexpectedChar:
		return "Syntax - statements start with a [packet] or a {block}."
	case EParseEmptyOp:
		return "Packet - every packet needs an op, like [print] or [math@1+1]."
	case EParseUnterminatedString:
		return "Delimiter - close the string with a matching quote."
	case EParseUnbalancedBrackets:
		return "Delimiter - every [ needs a matching ]."
	case EParseUnbalancedBraces:
		return "Delimiter - every { needs a matching }."
	case EParseExtraClose:
		return "Delimiter - there is a closing bracket with no opener."
	case EParseIfNoCond:
		return "Packet - write the condition inline: [if@(x==1)]{...}."
	case EParseExpectedThen:
		return "Packet - the legacy form is [if@(cond)]>[then]{...}."
	}
	return ""
}
