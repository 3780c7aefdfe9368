package compiler

import "fmt"

// ErrorKind names a compile-phase error category.
type ErrorKind string

const (
	LexError    ErrorKind = "LexError"    // malformed token
	SyntaxError ErrorKind = "SyntaxError" // malformed structure
)

// Error is a compile-phase error. The first error stops the phase; a
// program either compiles completely or yields exactly one Error.
type Error struct {
	Kind    ErrorKind
	Message string
	Pos     Position
}

func (e *Error) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("%s: %s (line %d, column %d)", e.Kind, e.Message, e.Pos.Line, e.Pos.Column)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func lexErrorf(pos Position, format string, args ...any) *Error {
	return &Error{Kind: LexError, Message: fmt.Sprintf(format, args...), Pos: pos}
}

func syntaxErrorf(pos Position, format string, args ...any) *Error {
	return &Error{Kind: SyntaxError, Message: fmt.Sprintf(format, args...), Pos: pos}
}
