// Package errors provides a single error type used across every internal
// package and adapter: a code, a human message, and an optional cause.
//
// Adapters translate driver-specific failures into an AppError at the
// boundary so callers higher up the stack (HTTP handlers, consumers,
// dispatchers) can branch on Code rather than on driver error types.
package errors

import (
	"errors"
	"fmt"
)

// Error codes shared by every package in this module. Adapters and internal
// packages may define additional domain-specific codes, but these five map
// directly onto the REST error envelope and the consumer retry/dead-letter
// split.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeForbidden       = "FORBIDDEN"
	CodeInternal        = "INTERNAL"
)

// AppError is the error currency for this module. Message is safe to show
// to a caller; the cause is kept for logging and Unwrap but never rendered.
type AppError struct {
	Code    string
	Message string
	cause   error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// HTTPStatus maps Code to the REST status code used by the error envelope.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeNotFound:
		return 404
	case CodeInvalidArgument:
		return 400
	case CodeConflict:
		return 409
	case CodeForbidden:
		return 403
	default:
		return 500
	}
}

// New builds an AppError with an explicit code.
func New(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, cause: cause}
}

// Wrap attaches message context to err without discarding its code or
// cause. If err is already an *AppError its Code is preserved; otherwise
// the wrapped error is tagged CodeInternal.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return &AppError{Code: ae.Code, Message: message + ": " + ae.Message, cause: ae.cause}
	}
	return &AppError{Code: CodeInternal, Message: message, cause: err}
}

// NotFound builds a CodeNotFound AppError.
func NotFound(message string, cause error) *AppError {
	return New(CodeNotFound, message, cause)
}

// Conflict builds a CodeConflict AppError, used for duplicate keys and
// state-violation transitions (e.g. an RTMP stream moving backward).
func Conflict(message string, cause error) *AppError {
	return New(CodeConflict, message, cause)
}

// InvalidArgument builds a CodeInvalidArgument AppError for malformed
// input rejected at a system boundary.
func InvalidArgument(message string, cause error) *AppError {
	return New(CodeInvalidArgument, message, cause)
}

// Forbidden builds a CodeForbidden AppError for missing or invalid
// authorization.
func Forbidden(message string, cause error) *AppError {
	return New(CodeForbidden, message, cause)
}

// Internal builds a CodeInternal AppError for unexpected failures.
func Internal(message string, cause error) *AppError {
	return New(CodeInternal, message, cause)
}

// Is reports whether err or any error it wraps equals target, delegating
// to the standard library semantics.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain matching target, delegating to
// the standard library semantics.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Code extracts the AppError code from err, returning CodeInternal if err
// is not an AppError.
func Code(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}
