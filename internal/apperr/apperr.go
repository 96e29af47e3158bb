// Package apperr is the error taxonomy the request surface speaks: every
// service operation fails with exactly one of these kinds, and handlers map
// kinds to HTTP statuses. System errors carry their cause for logging but
// never leak it to the caller.
package apperr

import "errors"

type Kind string

const (
	KindValidation       Kind = "validation_error"
	KindConflict         Kind = "conflict"
	KindExpired          Kind = "expired"
	KindAttemptsExceeded Kind = "attempts_exceeded"
	KindLocked           Kind = "locked"
	KindNotFound         Kind = "not_found"
	KindSystem           Kind = "system_error"
)

type Error struct {
	Kind    Kind
	Message string

	// RemainingAttempts is set on wrong-OTP validation errors so the UI
	// can count down; -1 means not applicable.
	RemainingAttempts int

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, RemainingAttempts: -1}
}

func Validation(message string) *Error { return newError(KindValidation, message) }
func Conflict(message string) *Error   { return newError(KindConflict, message) }
func Expired(message string) *Error    { return newError(KindExpired, message) }
func Locked(message string) *Error     { return newError(KindLocked, message) }
func NotFound(message string) *Error   { return newError(KindNotFound, message) }

func AttemptsExceeded(message string) *Error {
	return newError(KindAttemptsExceeded, message)
}

// WrongCode reports a failed OTP comparison along with how many attempts
// are left before the ceiling.
func WrongCode(message string, remaining int) *Error {
	e := newError(KindValidation, message)
	e.RemainingAttempts = remaining
	return e
}

// System wraps an infrastructure failure. The caller-facing message is
// generic; the cause stays attached for logs.
func System(cause error) *Error {
	e := newError(KindSystem, "something went wrong, please try again")
	e.cause = cause
	return e
}

// KindOf extracts the taxonomy kind, treating unknown errors as system
// failures.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindSystem
}

// As is a convenience wrapper around errors.As for *Error.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
