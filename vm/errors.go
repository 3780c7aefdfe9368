package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Runtime error taxonomy
// ---------------------------------------------------------------------------

// ErrorKind names a runtime error category.
type ErrorKind string

const (
	NameError       ErrorKind = "NameError"       // read of an undefined variable
	TypeError       ErrorKind = "TypeError"       // wrong operand or receiver type
	ArithmeticError ErrorKind = "ArithmeticError" // division or modulo by zero
	LookupError     ErrorKind = "LookupError"     // missing member, key or index
)

// RuntimeError is a language-level error raised during execution. It aborts
// the current top-level execution and unwinds every frame pushed during it.
type RuntimeError struct {
	Kind    ErrorKind
	Message string
	Line    int // 1-based source line, 0 when unknown
}

func (e *RuntimeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s (line %d)", e.Kind, e.Message, e.Line)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ErrCallDepth is returned when user-level recursion exceeds the VM's
// configured call-depth limit.
var ErrCallDepth = errors.New("call depth limit exceeded")

func nameErrorf(line int, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: NameError, Message: fmt.Sprintf(format, args...), Line: line}
}

func typeErrorf(line int, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: TypeError, Message: fmt.Sprintf(format, args...), Line: line}
}

func arithErrorf(line int, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: ArithmeticError, Message: fmt.Sprintf(format, args...), Line: line}
}

func lookupErrorf(line int, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: LookupError, Message: fmt.Sprintf(format, args...), Line: line}
}
