// Package domainerrors provides coded errors shared across all modules.
//
// Errors carry a machine-readable Code alongside a human-readable message.
// Services create them with New/Wrap; transports map codes to status codes.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for propagation and transport mapping.
type Code string

const (
	// CodeInternal covers unexpected failures that should not leak details.
	CodeInternal Code = "internal_error"

	// CodeNotFound means the referenced entity does not exist.
	CodeNotFound Code = "not_found"

	// CodeBadRequest covers malformed requests at the transport boundary.
	CodeBadRequest Code = "bad_request"

	// CodeInvalidInput covers values rejected at a trust boundary parse.
	CodeInvalidInput Code = "invalid_input"

	// CodeValidation covers domain-level validation failures.
	CodeValidation Code = "validation_failed"

	// CodeUnauthorized means the caller lacks authorization for the action.
	// Ledger rejections with an authorization cause carry this code and are
	// surfaced verbatim, never retried.
	CodeUnauthorized Code = "unauthorized"

	// CodeForbidden means the action is known but denied for this caller.
	CodeForbidden Code = "forbidden"

	// CodeConflict means a precondition held when the caller last looked but
	// no longer does (listing gone, owner changed). Callers must re-fetch;
	// an automatic blind retry is never correct.
	CodeConflict Code = "state_conflict"

	// CodeConnectivity means the signing agent or remote ledger service is
	// unreachable. Recoverable by reconnecting.
	CodeConnectivity Code = "connectivity"

	// CodeRangeTooLarge means an event query exceeded the remote per-call
	// block-range ceiling. Always absorbed by chunked scanning, never
	// surfaced to callers outside the ledger package.
	CodeRangeTooLarge Code = "range_too_large"

	// CodeIntegrity means a computed projection disagrees with live ledger
	// state. Surfaced as a warning; display falls back to the live value.
	CodeIntegrity Code = "integrity_mismatch"

	// CodeInvariantViolation means internal state broke an invariant the
	// code is supposed to maintain. Always a bug.
	CodeInvariantViolation Code = "invariant_violation"

	// CodeTimeout means the operation exceeded its deadline. For mutating
	// ledger calls this is an unknown outcome, not a failure.
	CodeTimeout Code = "timeout"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	code Code
	msg  string
	err  error
}

// New creates a coded error.
func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates an existing error with a code and message. The cause stays
// reachable via errors.Unwrap / errors.Is.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{code: code, msg: msg, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// Code returns the error's classification code.
func (e *Error) Code() Code { return e.code }

// Message returns the human-readable message without the code prefix.
func (e *Error) Message() string { return e.msg }

// CodeOf extracts the code from an error chain. Unclassified errors report
// CodeInternal so nothing leaks past the transport unlabelled.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if de, ok := e.(*Error); ok && de.code == code {
			return true
		}
	}
	return false
}

// Is is shorthand for HasCode, matching how call sites read.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}
