package parser

import (
	"errors"
	"fmt"
)

// Kind classifies a parse failure.
type Kind int

const (
	KindNone Kind = iota
	// KindParam is a bad argument, such as an invalid buffer.
	KindParam
	// KindOutOfMemory is a failed field-array or buffer expansion.
	KindOutOfMemory
	// KindInternal is a broken invariant inside the tokenizer; it points to
	// a defect, not to bad input.
	KindInternal
	// KindExtraInput is data left over after the final row.
	KindExtraInput
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindParam:
		return "bad parameter"
	case KindOutOfMemory:
		return "out of memory"
	case KindInternal:
		return "internal error"
	case KindExtraInput:
		return "extra input"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sentinels matched by errors.Is against an *Error of the same Kind.
var (
	ErrParam       = errors.New("bad parameter")
	ErrOutOfMemory = errors.New("out of memory")
	ErrInternal    = errors.New("internal error")
	ErrExtraInput  = errors.New("extra input")
)

// Error is the diagnostics snapshot of a failed parse.
type Error struct {
	Kind Kind
	Msg  string
	// Line and Row are 1-based. Char is the 0-based byte offset in the
	// stream and Field the 0-based field index within the failing row.
	Line  int64
	Char  int64
	Row   int64
	Field int
}

// Error returns a formatted error message with position information.
func (e *Error) Error() string {
	return fmt.Sprintf("csv: %s (line %d, row %d, field %d, char %d)", e.Msg, e.Line, e.Row, e.Field, e.Char)
}

// Unwrap returns the sentinel for the error's Kind.
func (e *Error) Unwrap() error {
	switch e.Kind {
	case KindParam:
		return ErrParam
	case KindOutOfMemory:
		return ErrOutOfMemory
	case KindInternal:
		return ErrInternal
	case KindExtraInput:
		return ErrExtraInput
	}
	return nil
}
