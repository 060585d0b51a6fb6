// Package oierr defines the typed error kinds shared by every codec in the
// oi container suite. Call sites construct these the same way the rest of
// the module wraps lower-level errors with golang.org/x/xerrors: one
// constructor per kind, carrying just enough context to explain which
// argument, field, or byte range was at fault.
package oierr

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Kind identifies which class of failure an *Error represents. Kinds are
// compared with errors.Is via Error.Is, never by string matching.
type Kind int

const (
	_ Kind = iota
	KindNullArgument
	KindInvalidOperation
	KindInvalidParameter
	KindOverflow
	KindNotFound
	KindUnauthorized
	KindInvalidState
	KindUnsupportedOperation
	KindAuthenticationFailed
	KindHashMismatch
)

func (k Kind) String() string {
	switch k {
	case KindNullArgument:
		return "NullArgument"
	case KindInvalidOperation:
		return "InvalidOperation"
	case KindInvalidParameter:
		return "InvalidParameter"
	case KindOverflow:
		return "Overflow"
	case KindNotFound:
		return "NotFound"
	case KindUnauthorized:
		return "Unauthorized"
	case KindInvalidState:
		return "InvalidState"
	case KindUnsupportedOperation:
		return "UnsupportedOperation"
	case KindAuthenticationFailed:
		return "AuthenticationFailed"
	case KindHashMismatch:
		return "HashMismatch"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by every package in this module.
type Error struct {
	Kind Kind

	// Which names the argument, field, or subsystem the error pertains to.
	Which string
	// Sub optionally narrows Which further (e.g. an entry's sub-field).
	Sub string
	// Index is the entry index the error pertains to, or -1 if not applicable.
	Index int

	// Attempted and Current are populated for KindOverflow.
	Attempted uint64
	Current   uint64

	// Code is a format-specific diagnostic code for KindInvalidOperation,
	// KindInvalidState and KindUnsupportedOperation.
	Code string

	cause error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Which != "" {
		msg += ": " + e.Which
	}
	if e.Sub != "" {
		msg += "." + e.Sub
	}
	if e.Index >= 0 {
		msg += fmt.Sprintf("[%d]", e.Index)
	}
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Kind == KindOverflow {
		msg += fmt.Sprintf(" (attempted %d, current %d)", e.Attempted, e.Current)
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error of the same Kind, satisfying
// errors.Is(err, oierr.InvalidParameter(...)) style checks against a
// sentinel built from any constructor of the wanted kind.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}

func newErr(kind Kind, which string, cause error) *Error {
	return &Error{Kind: kind, Which: which, Index: -1, cause: cause}
}

// NullArgument reports that a required output or pointer was absent.
func NullArgument(which string) error {
	return newErr(KindNullArgument, which, nil)
}

// InvalidOperation reports a violated precondition (e.g. serializing an
// already-serialized file).
func InvalidOperation(code string) error {
	e := newErr(KindInvalidOperation, "", nil)
	e.Code = code
	return e
}

// InvalidParameter reports that a specific argument failed validation.
func InvalidParameter(arg, sub string, index int) error {
	e := newErr(KindInvalidParameter, arg, nil)
	e.Sub = sub
	e.Index = index
	return e
}

// Overflow reports that an arithmetic operation over u64 would wrap.
func Overflow(which string, attempted, current uint64) error {
	e := newErr(KindOverflow, which, nil)
	e.Attempted = attempted
	e.Current = current
	return e
}

// NotFound reports that a filesystem or container lookup failed.
func NotFound(which, sub string, index int) error {
	e := newErr(KindNotFound, which, nil)
	e.Sub = sub
	e.Index = index
	return e
}

// Unauthorized reports that a path escapes the mount anchor, or that an
// encryption key is required but absent.
func Unauthorized(which string) error {
	return newErr(KindUnauthorized, which, nil)
}

// InvalidState reports an I/O partial failure after retries.
func InvalidState(code string) error {
	e := newErr(KindInvalidState, "", nil)
	e.Code = code
	return e
}

// UnsupportedOperation reports that a declared feature (UNC path,
// non-little-endian host, reserved chunk mode) is rejected by policy.
func UnsupportedOperation(code string) error {
	e := newErr(KindUnsupportedOperation, "", nil)
	e.Code = code
	return e
}

// AuthenticationFailed reports an AEAD tag mismatch.
func AuthenticationFailed() error {
	return newErr(KindAuthenticationFailed, "", nil)
}

// HashMismatch reports that the integrity hash did not verify on read.
func HashMismatch() error {
	return newErr(KindHashMismatch, "", nil)
}

// Wrap attaches call-site context to err without changing its Kind
// classification, mirroring the module's xerrors.Errorf("%s: %w", op, err)
// idiom for errors that don't need a dedicated *Error kind.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return xerrors.Errorf("%s: %w", op, err)
}
