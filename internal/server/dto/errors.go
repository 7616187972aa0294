// Package dto defines the publish API request/response types and error handling.
//
// This package is the API contract layer: request/response shapes exchanged
// between the publish CLI and the server, plus the structured error taxonomy
// shared by every layer of the publishing pipeline.
//
// Error handling follows a structured pattern:
//   - ErrorCode provides machine-readable error classification
//   - APIError wraps errors with HTTP status codes and details
//   - Constructor functions (ValidationFailed, HeadMoved, etc.) create common errors
package dto

import (
	"fmt"
	"maps"
	"net/http"
	"time"
)

// ErrorCode classifies publish failures for machine consumption.
type ErrorCode string

const (
	// ErrorCodeValidationFailed is returned when input shape, identity or
	// content fails validation. Never retried; the user must fix the input.
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrorCodeUnauthenticated is returned when the credential is missing,
	// invalid or expired.
	ErrorCodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	// ErrorCodeForbidden is returned when the caller is authenticated but not
	// permitted to write to the target repository.
	ErrorCodeForbidden ErrorCode = "FORBIDDEN"
	// ErrorCodeHeadMoved is returned when the branch head no longer matches
	// the expected commit. The caller should re-fetch and decide; it is never
	// auto-retried.
	ErrorCodeHeadMoved ErrorCode = "HEAD_MOVED"
	// ErrorCodeRateLimited is returned when the upstream quota is exhausted.
	ErrorCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrorCodeUpstream is returned for any other upstream failure.
	ErrorCodeUpstream ErrorCode = "GITHUB_UPSTREAM"
	// ErrorCodePayloadTooLarge is returned for oversized uploads.
	ErrorCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	// ErrorCodeNotFound is returned when a resource is not found.
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrorCodeInternal is returned when an unexpected error occurs.
	ErrorCodeInternal ErrorCode = "INTERNAL"
)

// ErrorDetails is the structured error information in a response.
type ErrorDetails struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorResponse is the standard API error envelope.
type ErrorResponse struct {
	Error ErrorDetails `json:"error"`
}

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
		details:    make(map[string]any),
	}
}

// WithDetails adds details to the error.
func (e *APIError) WithDetails(details map[string]any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	maps.Copy(e.details, details)
	return e
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// Predefined error constructors for common cases

// ValidationFailed creates a 400 error for invalid input.
func ValidationFailed(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeValidationFailed, message)
}

// Unauthenticated creates a 401 error for missing or invalid credentials.
func Unauthenticated(message string) *APIError {
	if message == "" {
		message = "authentication required"
	}
	return NewAPIError(http.StatusUnauthorized, ErrorCodeUnauthenticated, message)
}

// Forbidden creates a 403 error.
func Forbidden(message string) *APIError {
	return NewAPIError(http.StatusForbidden, ErrorCodeForbidden, message)
}

// NotFound creates a 404 error.
func NotFound(resource string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrorCodeNotFound, resource+" not found")
}

// HeadMoved creates a 409 error for an optimistic-concurrency conflict.
// Both shas are carried so a UI can show "someone else published first".
func HeadMoved(expected, actual string) *APIError {
	return NewAPIError(http.StatusConflict, ErrorCodeHeadMoved, "branch head moved since last read").
		WithDetail("expectedHeadSha", expected).
		WithDetail("actualHeadSha", actual)
}

// PayloadTooLarge creates a 413 error for oversized uploads.
func PayloadTooLarge(limit int64) *APIError {
	return NewAPIError(http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge, "request payload too large").
		WithDetail("limitBytes", limit)
}

// RateLimited creates a 429 error carrying an optional retry-after hint.
func RateLimited(retryAfter time.Duration) *APIError {
	e := NewAPIError(http.StatusTooManyRequests, ErrorCodeRateLimited, "upstream rate limit exhausted")
	if retryAfter > 0 {
		e.WithDetail("retryAfterSeconds", int64(retryAfter.Seconds()))
	}
	return e
}

// Upstream creates a 502 error for a generic upstream failure.
func Upstream(status int, body, path string) *APIError {
	return NewAPIError(http.StatusBadGateway, ErrorCodeUpstream, fmt.Sprintf("upstream error %d", status)).
		WithDetail("upstreamStatus", status).
		WithDetail("upstreamBody", body).
		WithDetail("path", path)
}

// Internal creates a 500 error.
func Internal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeInternal, message)
}

// InternalWithError creates a 500 error wrapping an underlying error.
func InternalWithError(message string, err error) *APIError {
	return Internal(message).Wrap(err)
}
