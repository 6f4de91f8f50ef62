// Package domainerrors provides coded errors for the core operations.
//
// Every error that crosses a service boundary carries a stable machine-readable
// Code plus a human message. Stores and infrastructure return sentinel errors
// (pkg/platform/sentinel); services translate those into coded errors here, and
// the HTTP layer maps codes onto statuses. Callers branch on codes with
// HasCode, never on message text.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure. Codes are part of the API contract:
// renaming one is a breaking change.
type Code string

const (
	// CodeValidation marks bad input (malformed handle, non-positive amount).
	// Never retried.
	CodeValidation Code = "validation"
	// CodeConflict marks a lost uniqueness race (handle already taken).
	// Surfaced to the caller, never retried automatically.
	CodeConflict Code = "conflict"
	// CodeNotFound marks a missing entity (unknown handle, unprovisioned owner).
	CodeNotFound Code = "not_found"
	// CodeUnauthorized marks a missing or unusable caller identity.
	CodeUnauthorized Code = "unauthorized"
	// CodeExternal marks a definite failure reported by the ledger network.
	// Retryable only by explicit caller action.
	CodeExternal Code = "external"
	// CodeIndeterminate marks an outcome that is neither confirmed success nor
	// confirmed failure (submit timeout). Callers must reconcile before
	// retrying; a retry without reconciliation risks a duplicate transfer.
	CodeIndeterminate Code = "indeterminate"
	// CodeInvariantViolation marks a broken model invariant. Converted to
	// CodeValidation at the service boundary when caused by caller input.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal marks everything else. Details are logged, not surfaced.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. It may wrap an underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. The cause stays
// reachable through errors.Is/As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// CodeOf returns the outermost code carried by err, or CodeInternal when err
// carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost message carried by err, or an empty string.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
