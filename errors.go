package fluence

import (
	"fmt"
	"strings"
)

// RuntimeErrorKind enumerates the RuntimeError taxonomy (spec §7).
type RuntimeErrorKind int

const (
	ErrUnknownVariable RuntimeErrorKind = iota
	ErrTypeMismatch
	ErrArityMismatch
	ErrIndexOutOfRange
	ErrDivisionByZero
	ErrRecursionLimit
	ErrTimeout
	ErrStopped
	ErrScriptException
	ErrNonSpecific
)

func (k RuntimeErrorKind) String() string {
	switch k {
	case ErrUnknownVariable:
		return "UnknownVariable"
	case ErrTypeMismatch:
		return "TypeMismatch"
	case ErrArityMismatch:
		return "ArityMismatch"
	case ErrIndexOutOfRange:
		return "IndexOutOfRange"
	case ErrDivisionByZero:
		return "DivisionByZero"
	case ErrRecursionLimit:
		return "RecursionLimit"
	case ErrTimeout:
		return "Timeout"
	case ErrStopped:
		return "Stopped"
	case ErrScriptException:
		return "ScriptException"
	default:
		return "NonSpecific"
	}
}

// LexError is raised on unterminated literals, invalid escapes,
// invalid numbers, or invalid characters (spec §7).
type LexError struct {
	Message    string
	Span       Span
	LineText   string
	LastToken  *Token
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex error: %s @ %s\n  %s", e.Message, e.Span, e.LineText)
}

// ParseError is raised on unexpected tokens, redefinitions, malformed
// declarations, unbalanced braces, or unresolved forward references.
type ParseError struct {
	Message      string
	Unexpected   TokenKind
	UnexpectedTx string
	Expected     []string
	Span         Span
	LineText     string
}

func (e *ParseError) Error() string {
	msg := e.Message
	if len(e.Expected) > 0 {
		msg = fmt.Sprintf("%s (expected one of: %s)", msg, strings.Join(e.Expected, ", "))
	}
	return fmt.Sprintf("parse error: %s @ %s\n  %s", msg, e.Span, e.LineText)
}

// StackFrame is one entry of a RuntimeError's call-stack trace.
type StackFrame struct {
	FunctionName string // demangled
	File         int
	Line         int
	Column       int
}

func (f StackFrame) String() string {
	return fmt.Sprintf("  at %s (%d:%d)", f.FunctionName, f.Line, f.Column)
}

// RuntimeError is raised by the VM (spec §7). It carries the frame at
// the point of failure, the last executed instruction (formatted via
// disasm.go), a snapshot of locals and the operand stack, a full call
// stack trace, the offending source line, and a kind-specific hint.
type RuntimeError struct {
	Kind RuntimeErrorKind

	Message string
	Span    Span
	LineText string

	LastInstruction string
	Locals          []Value
	OperandStack    []Value
	CallStack       []StackFrame

	Hint string
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "runtime error [%s]: %s @ %s\n", e.Kind, e.Message, e.Span)
	if e.LineText != "" {
		fmt.Fprintf(&b, "  %s\n", e.LineText)
	}
	if e.LastInstruction != "" {
		fmt.Fprintf(&b, "  last instruction: %s\n", e.LastInstruction)
	}
	for _, f := range e.CallStack {
		b.WriteString(f.String())
		b.WriteString("\n")
	}
	if e.Hint != "" {
		fmt.Fprintf(&b, "  hint: %s\n", e.Hint)
	}
	return strings.TrimRight(b.String(), "\n")
}

// buildArityHint searches scope for other arities of the same base
// name and formats a "did you mean" hint, or an empty string if none
// exist. Grounded on the teacher's precomputed-index idiom (see
// scope.go), generalized from a PEG rule-name search to a Fluence
// function-signature search.
func buildArityHint(scope *Scope, baseName string, gotArity int) string {
	sigs := scope.FindSignaturesAcrossScopes(baseName)
	if len(sigs) == 0 {
		return ""
	}
	var parts []string
	for _, s := range sigs {
		parts = append(parts, fmt.Sprintf("%s(%d args)", s.BaseName, s.Arity))
	}
	return fmt.Sprintf("function %q accepts %s, got %d args", baseName, strings.Join(parts, " or "), gotArity)
}
