// Package errors provides structured error handling for docscout.
//
// Errors carry a kind (validation, not_found, auth, security, transient,
// backend, fatal) that the request boundary translates into HTTP status
// codes and JSON-RPC error codes. Lower layers attach kinds; surfaces only
// translate.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for boundary translation.
type Kind string

const (
	// KindValidation indicates a malformed request or config.
	KindValidation Kind = "validation"
	// KindNotFound indicates an unknown repository or resource.
	KindNotFound Kind = "not_found"
	// KindAuth indicates missing or invalid credentials.
	KindAuth Kind = "auth"
	// KindSecurity indicates path traversal, forbidden filename, or blocked URL.
	KindSecurity Kind = "security"
	// KindTransient indicates a retryable network/timeout/upstream failure.
	KindTransient Kind = "transient"
	// KindBackend indicates the vector or embedding backend is unreachable.
	KindBackend Kind = "backend"
	// KindFatal indicates an invariant violation or unrecoverable state.
	KindFatal Kind = "fatal"
)

// Error is the structured error type used throughout docscout.
type Error struct {
	// Kind is the error classification.
	Kind Kind

	// Message is the human-readable error message.
	Message string

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by kind, enabling errors.Is with sentinel kinds.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithDetail adds a key-value detail to the error, returning it for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error wrapping a cause. Returns nil if err is nil. The
// return type is error so a nil result compares equal to nil at call sites.
func Wrap(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// Validation creates a validation error.
func Validation(message string) *Error { return New(KindValidation, message) }

// NotFound creates a not-found error.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Transient creates a retryable transient error.
func Transient(message string, cause error) *Error {
	return &Error{Kind: KindTransient, Message: message, Cause: cause}
}

// Backend creates a backend-unreachable error.
func Backend(message string, cause error) *Error {
	return &Error{Kind: KindBackend, Message: message, Cause: cause}
}

// KindOf extracts the kind from an error chain.
// Unclassified errors report KindFatal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// IsRetryable reports whether the error is worth retrying.
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindTransient || k == KindBackend
}

// IsKind reports whether the error chain contains the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// HTTPStatus maps an error to the HTTP status code surfaced by the REST API.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case KindValidation, KindSecurity:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindTransient, KindBackend:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
