// Package errors provides structured error types for winch.
//
// This package defines error codes and types that enable:
//   - Distinguishing fatal session errors from recoverable registry failures
//   - Machine-readable error codes for the CLI exit path and session reports
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// The codes mirror the resolution error taxonomy:
//   - IO_ERROR: manifest read/write failures (fatal, original manifest untouched)
//   - PARSE_ERROR: manifest structure cannot be safely edited (fatal)
//   - REGISTRY_TRANSPORT: registry unreachable (retried, then the crate is skipped)
//   - PACKAGE_NOT_FOUND: crate unknown to the registry (exhaustion, not fatal)
//   - BUILD_RUNNER: the build tool itself is unusable (fatal)
//   - INVALID_*: input validation failures
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidInput, "invalid crate name: %s", name)
//	if errors.Is(err, errors.ErrCodeInvalidInput) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeIO, origErr, "read manifest %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidPackage  Code = "INVALID_PACKAGE"
	ErrCodeInvalidManifest Code = "INVALID_MANIFEST"
	ErrCodeInvalidConfig   Code = "INVALID_CONFIG"

	// Manifest sandbox errors
	ErrCodeIO    Code = "IO_ERROR"
	ErrCodeParse Code = "PARSE_ERROR"

	// Registry errors
	ErrCodeRegistryTransport Code = "REGISTRY_TRANSPORT"
	ErrCodePackageNotFound   Code = "PACKAGE_NOT_FOUND"
	ErrCodeRateLimited       Code = "RATE_LIMITED"

	// Build runner errors
	ErrCodeBuildRunner Code = "BUILD_RUNNER"
	ErrCodeTimeout     Code = "TIMEOUT"

	// Report history errors
	ErrCodeReportNotFound Code = "REPORT_NOT_FOUND"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
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

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
// Only the outermost *Error in the chain is considered.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message and its causes without code prefixes.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return e.Message + ": " + UserMessage(e.Cause)
		}
		return e.Message
	}
	return err.Error()
}

// Fatal reports whether err ends a resolution session immediately.
// Registry failures are recoverable; manifest and build runner failures are not.
func Fatal(err error) bool {
	switch GetCode(err) {
	case ErrCodeIO, ErrCodeParse, ErrCodeBuildRunner, ErrCodeInternal:
		return true
	}
	return false
}

// RateLimitedError provides additional information for rate-limited responses.
type RateLimitedError struct {
	RetryAfter int // Seconds to wait before retrying
	Message    string
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %d seconds", e.RetryAfter)
	}
	return "rate limited"
}

// Code returns the error code for this error type.
func (e *RateLimitedError) Code() Code {
	return ErrCodeRateLimited
}
