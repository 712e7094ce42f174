// Package xerrors implements the error taxonomy shared across the
// profiling backend (spec §7): a small set of typed kinds that RPC
// handlers translate into status codes, plus wrap/is helpers.
package xerrors

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of internal error categories.
type Kind string

const (
	MalformedInput     Kind = "MALFORMED_INPUT"
	InvariantViolation Kind = "INVARIANT_VIOLATION"
	NotFound           Kind = "NOT_FOUND"
	FailedPrecondition Kind = "FAILED_PRECONDITION"
	AlreadyExists      Kind = "ALREADY_EXISTS"
	Unavailable        Kind = "UNAVAILABLE"
	Internal           Kind = "INTERNAL"
)

// Error wraps an underlying cause with a Kind for taxonomy-based handling.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an existing error.
func Wrap(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Is reports whether the first *Error in err's chain carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind carried by err, or Internal if none is found.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
