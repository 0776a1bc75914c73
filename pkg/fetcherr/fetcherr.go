// Package fetcherr defines the structured error taxonomy shared by the
// resolver, fetch cache, and source backends.
//
// Error codes are machine-readable and stable; callers branch on them with
// [Is] or [GetCode] rather than matching message text:
//
//	if fetcherr.Is(err, fetcherr.CodeSourceUnavailable) {
//	    // transient, safe to retry
//	}
//
// Only CodeSourceUnavailable represents a transient condition. Every other
// code is terminal for the request that produced it.
package fetcherr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	// Malformed caller input. Never retried.
	CodeInvalidSource     Code = "INVALID_SOURCE"
	CodeInvalidVersion    Code = "INVALID_VERSION"
	CodeInvalidConstraint Code = "INVALID_CONSTRAINT"

	// Resolution failures, terminal for the package.
	CodePackageNotFound        Code = "PACKAGE_NOT_FOUND"
	CodeConstraintNotSatisfied Code = "CONSTRAINT_NOT_SATISFIED"
	CodeRevisionNotFound       Code = "REVISION_NOT_FOUND"

	// Backend and environment failures. SOURCE_UNAVAILABLE is the only
	// code a caller may reasonably retry.
	CodeSourceUnavailable    Code = "SOURCE_UNAVAILABLE"
	CodePathNotFound         Code = "PATH_NOT_FOUND"
	CodeInvalidPackageLayout Code = "INVALID_PACKAGE_LAYOUT"

	// Cache self-heal failed: a complete-looking entry was corrupt and the
	// refetch also failed. Surfaced with the refetch error as cause.
	CodeCacheCorruption Code = "CACHE_CORRUPTION"

	// Fetcher construction failed (cache root not creatable or writable).
	CodeInitialization Code = "INITIALIZATION_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates an Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// GetCode extracts the outermost error code from err, or "" if err is not
// an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Retryable reports whether err represents a transient condition.
func Retryable(err error) bool {
	return Is(err, CodeSourceUnavailable)
}
