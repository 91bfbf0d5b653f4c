package core

import (
	"fmt"
)

// Error is the JSON error body returned by the gateway's HTTP surface.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Param      string    `json:"param,omitempty"`
	Code       string    `json:"code,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	RetryAfter *int      `json:"retry_after,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the error this one was built from, if any.
func (e *Error) Unwrap() error { return e.cause }

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrPermission     ErrorType = "permission_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
	ErrOverloaded     ErrorType = "overloaded_error"
	// ErrUpstream marks failures of the speech agent or the scoring model.
	ErrUpstream ErrorType = "upstream_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewInvalidRequestErrorWithParam creates an invalid request error naming
// the offending parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message, Param: param}
}

func NewAuthenticationError(message string) *Error {
	return &Error{Type: ErrAuthentication, Message: message}
}

func NewNotFoundError(message string) *Error {
	return &Error{Type: ErrNotFound, Message: message}
}

// NewRateLimitError creates a rate limit error with a retry hint in seconds.
func NewRateLimitError(message string, retryAfter int) *Error {
	return &Error{Type: ErrRateLimit, Message: message, RetryAfter: &retryAfter}
}

func NewOverloadedError(message string) *Error {
	return &Error{Type: ErrOverloaded, Message: message}
}

func NewAPIError(message string) *Error {
	return &Error{Type: ErrAPI, Message: message}
}

// NewUpstreamError wraps a failure of a remote model behind a generic message.
func NewUpstreamError(service string, underlying error) *Error {
	return &Error{
		Type:    ErrUpstream,
		Message: fmt.Sprintf("%s is unavailable", service),
		cause:   underlying,
	}
}

// IsRetryable returns true if the error is retryable.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrOverloaded, ErrUpstream:
		return true
	default:
		return false
	}
}
