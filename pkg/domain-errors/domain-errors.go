package domainerrors

import "errors"

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in business logic terms, not HTTP terms.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_failed"
	CodeInternal           Code = "internal_error"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"

	// Ledger projection taxonomy.
	CodeDecode               Code = "decode_error"
	CodeUnknownReference     Code = "unknown_reference"
	CodeDuplicateApplication Code = "duplicate_application"
	CodeAlreadyVoted         Code = "already_voted"
	CodeTallyFrozen          Code = "tally_frozen"
	CodeStale                Code = "stale_projection"
	CodeFatal                Code = "fatal"

	// Governance and issuance taxonomy.
	CodeIneligibleVoter   Code = "ineligible_voter"
	CodeAlreadyFinalized  Code = "already_finalized"
	CodeIssuanceDuplicate Code = "issuance_duplicate"
	CodeNotApproved       Code = "not_approved"
	CodeUnavailable       Code = "unavailable"
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// Tag creates a domain error with an explicit code around a cause, even when
// the cause is itself a domain error. Used to attach a sentinel to a code.
func Tag(cause error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: cause}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the outermost domain code carried by err, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsInformational reports whether err is an expected, non-fatal outcome that
// callers should surface as information rather than failure.
func IsInformational(err error) bool {
	switch CodeOf(err) {
	case CodeDuplicateApplication, CodeAlreadyFinalized, CodeIssuanceDuplicate:
		return true
	default:
		return false
	}
}

// IsFatal reports whether err requires the owning process to stop.
func IsFatal(err error) bool {
	return HasCode(err, CodeFatal)
}
