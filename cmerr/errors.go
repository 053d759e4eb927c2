package cmerr

import (
	"fmt"
)

// Error is a curated error: it carries a Kind drawn from the taxonomy plus a
// formatted message, and optionally wraps a cause. Unlike a plain
// fmt.Errorf chain, Wrap never puts an Error directly on top of one of the
// same Kind (it returns the inner one instead), so callers can wrap
// liberally at every layer without the message accreting
// "ptrace error: ptrace error: ..." duplicates.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New creates an Error of the given Kind with a formatted message and no
// cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given Kind whose cause is err. If err is
// already an *Error of the same Kind, the wrapper is dropped and err is
// returned unchanged so that the chain does not repeat the same kind twice
// in a row.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	if err == nil {
		return New(kind, format, args...)
	}
	if prev, ok := err.(*Error); ok && prev.Kind == kind {
		return prev
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Error implements the error interface. The chain is printed outermost
// first, each part separated by ": ", mirroring the convention p239 of "The
// Go Programming Language" (Donovan, Kernighan) recommends for causal
// chains.
func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

// Unwrap allows errors.Is/errors.As to walk the chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether err is, or wraps, an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Cause
			continue
		}
		return false
	}
	return false
}

// KindOf returns the Kind of the outermost *Error in the chain, or Unknown
// if err is not a *Error (or is nil).
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return Unknown
}
