package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Gateway error codes
const (
	ErrInvalidRequest       ErrorCode = "INVALID_REQUEST"
	ErrAuthentication       ErrorCode = "AUTHENTICATION"
	ErrRateLimited          ErrorCode = "RATE_LIMITED"
	ErrTimeout              ErrorCode = "TIMEOUT"
	ErrUpstreamError        ErrorCode = "UPSTREAM_ERROR"
	ErrEmbeddingUnavailable ErrorCode = "EMBEDDING_UNAVAILABLE"
	ErrGenerationFailed     ErrorCode = "GENERATION_FAILED"
	ErrStoreUnavailable     ErrorCode = "STORE_UNAVAILABLE"
	ErrInternalError        ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Provider  string    `json:"provider,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable or not.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider tags the error with the originating provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// CodeOf extracts the ErrorCode from an error, if it is a *Error.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
