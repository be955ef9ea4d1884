package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so errors.Is works against the predefined values.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrUnauthenticated    = New("UNAUTHENTICATED", http.StatusUnauthorized, "authentication required")
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// Gate decisions.
	ErrProfileNotFound  = New("PROFILE_NOT_FOUND", http.StatusForbidden, "student profile not found")
	ErrChatbotNotFound  = New("CHATBOT_NOT_FOUND", http.StatusNotFound, "chatbot not found")
	ErrClassInfoMissing = New("CLASS_INFO_MISSING", http.StatusForbidden, "student has no class assignment")
	ErrClassNotAllowed  = New("CLASS_NOT_ALLOWED", http.StatusForbidden, "class is not allowed to use this chatbot")
	ErrQuotaExceeded    = New("QUOTA_EXCEEDED", http.StatusTooManyRequests, "no remaining attempts for this chatbot")

	// Infrastructure.
	ErrUpstreamFailure = New("UPSTREAM_FAILURE", http.StatusBadGateway, "upstream dependency failed")
	ErrUpstreamTimeout = New("UPSTREAM_TIMEOUT", http.StatusGatewayTimeout, "upstream dependency timed out")
)

// ErrCacheMiss is returned by cache repositories when a key is absent.
var ErrCacheMiss = errors.New("cache miss")

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, ErrUpstreamTimeout.Code, ErrUpstreamTimeout.Status, ErrUpstreamTimeout.Message)
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Upstream classifies a failed storage or LLM call: deadlines become UPSTREAM_TIMEOUT, everything
// else UPSTREAM_FAILURE.
func Upstream(err error, message string) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, ErrUpstreamTimeout.Code, ErrUpstreamTimeout.Status, message)
	}
	return Wrap(err, ErrUpstreamFailure.Code, ErrUpstreamFailure.Status, message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
