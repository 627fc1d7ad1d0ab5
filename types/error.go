package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the worker.
type ErrorCode string

// Ingestion and fetch error codes
const (
	ErrStreamDrain   ErrorCode = "STREAM_DRAIN"
	ErrStreamTooBig  ErrorCode = "STREAM_TOO_BIG"
	ErrFetchFailed   ErrorCode = "FETCH_FAILED"
	ErrFetchStatus   ErrorCode = "FETCH_STATUS"
	ErrFetchTooBig   ErrorCode = "FETCH_TOO_BIG"
	ErrRateLimited   ErrorCode = "RATE_LIMITED"
	ErrArtifactWrite ErrorCode = "ARTIFACT_WRITE"
	ErrTimeout       ErrorCode = "TIMEOUT"
)

// Session error codes
const (
	ErrContextUpdate    ErrorCode = "CONTEXT_UPDATE"
	ErrDuplicateHandler ErrorCode = "DUPLICATE_HANDLER"
	ErrSessionClosed    ErrorCode = "SESSION_CLOSED"
	ErrUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrUpstreamError    ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError    ErrorCode = "INTERNAL_ERROR"
	ErrProviderNotSet   ErrorCode = "PROVIDER_NOT_SET"
	ErrEmptyModelOutput ErrorCode = "EMPTY_MODEL_OUTPUT"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
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

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError extracts a *Error from anywhere in the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
