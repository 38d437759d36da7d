// Package fault defines the typed error taxonomy surfaced by the resolver:
// invalid input, not found, authorization failures, conflicts, and
// unavailable collaborators. Callers classify with the Is* helpers rather
// than matching error strings.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindConflict
	KindUnavailable
)

// String returns the wire-level reason tag for a kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is a classified error with an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error, preserving it in the chain.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// InvalidInput marks a caller error: malformed code, query too short.
func InvalidInput(format string, args ...any) error {
	return New(KindInvalidInput, format, args...)
}

// NotFound marks a missing listing or artisan code.
func NotFound(format string, args ...any) error {
	return New(KindNotFound, format, args...)
}

// Unauthorized marks a request with no usable credentials.
func Unauthorized(format string, args ...any) error {
	return New(KindUnauthorized, format, args...)
}

// Forbidden marks a caller lacking write authorization.
func Forbidden(format string, args ...any) error {
	return New(KindForbidden, format, args...)
}

// Unavailable marks an unreachable or unprovisioned collaborator.
func Unavailable(format string, args ...any) error {
	return New(KindUnavailable, format, args...)
}

// KindOf returns the classification of an error, or KindUnknown when the
// chain carries no *Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsInvalidInput reports whether the chain carries an invalid-input error.
func IsInvalidInput(err error) bool { return KindOf(err) == KindInvalidInput }

// IsNotFound reports whether the chain carries a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsUnauthorized reports whether the chain carries an unauthorized error.
func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }

// IsForbidden reports whether the chain carries a forbidden error.
func IsForbidden(err error) bool { return KindOf(err) == KindForbidden }

// IsUnavailable reports whether the chain carries an unavailable error.
func IsUnavailable(err error) bool { return KindOf(err) == KindUnavailable }
