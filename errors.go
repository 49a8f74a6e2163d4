package korecore

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind enumerates the exception kinds the core can raise.
type ErrorKind int

const (
	ErrOutOfMemory ErrorKind = iota
	ErrTypeMismatch
	ErrNumericOutOfRange
	ErrInvalidString
	ErrInvalidIndex
	ErrNotIterable
	ErrNotAGenerator
	ErrEmptyCollection
	ErrImmutableValue
	ErrFormatError
	ErrMissingArgument
	ErrRecursionGuard
)

var errorKindNames = map[ErrorKind]string{
	ErrOutOfMemory: "OutOfMemory",
	ErrTypeMismatch: "TypeMismatch",
	ErrNumericOutOfRange: "NumericOutOfRange",
	ErrInvalidString: "InvalidString",
	ErrInvalidIndex: "InvalidIndex",
	ErrNotIterable: "NotIterable",
	ErrNotAGenerator: "NotAGenerator",
	ErrEmptyCollection: "EmptyCollection",
	ErrImmutableValue: "ImmutableValue",
	ErrFormatError: "FormatError",
	ErrMissingArgument: "MissingArgument",
	ErrRecursionGuard: "RecursionGuard",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// CoreError is the error type every fallible entry point in this
// package raises into a Context's pending-exception slot. It carries
// a typed Kind instead of relying only on string matching, and an
// optional Position for errors that report an offending offset (pack
// format strings, UTF-8 decoding).
type CoreError struct {
	Kind ErrorKind
	Message string
	Position int
	HasPos bool
}

func (e *CoreError) Error() string {
	if e.HasPos {
		return fmt.Sprintf("%s: %s (at %d)", e.Kind, e.Message, e.Position)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds a CoreError with a printf-style message, matching
// the core's raise_printf entry point.
func NewError(kind ErrorKind, format string, args...any) *CoreError {
	return &CoreError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewErrorAt is NewError with a reported byte/item position, used by
// the pack/unpack codec to report the offending format-string offset.
func NewErrorAt(kind ErrorKind, pos int, format string, args...any) *CoreError {
	return &CoreError{Kind: kind, Message: fmt.Sprintf(format, args...), Position: pos, HasPos: true}
}

// WrapErrno adapts a system error (e.g. from an external-buffer
// finalizer or a module loader callback) into a CoreError, annotating
// it with the operation that failed. This is the raise_errno entry
// point.
func WrapErrno(op string, cause error) *CoreError {
	wrapped := errors.Wrap(cause, op)
	return &CoreError{Kind: ErrOutOfMemory, Message: wrapped.Error()}
}

// IsKind reports whether err is a *CoreError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	ce, ok := err.(*CoreError)
	return ok && ce.Kind == kind
}
