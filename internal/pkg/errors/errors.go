// Package errors provides custom error types and error handling utilities.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	// Client errors (4xx).
	CodeValidation      = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeRateLimited     = "RATE_LIMITED"

	// Setup and dataset errors (fatal before a run starts).
	CodeConfiguration = "CONFIGURATION_ERROR"
	CodeUnknownLabel  = "UNKNOWN_LABEL"

	// Backend errors (per-query).
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeBackendProtocol    = "BACKEND_PROTOCOL_ERROR"

	// Server errors (5xx).
	CodeInternal    = "INTERNAL_ERROR"
	CodeUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout     = "TIMEOUT"
)

// AppError represents an application error with code and details.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for this error.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeInvalidRequest, CodeInvalidArgument, CodeConfiguration, CodeUnknownLabel:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUnavailable, CodeBackendUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeBackendProtocol:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with an AppError.
func Wrap(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Convenience constructors.

// ConfigurationError creates a configuration error. These are fatal and
// reject an evaluation run before any query executes.
func ConfigurationError(message string) *AppError {
	return New(CodeConfiguration, message)
}

// UnknownLabelError creates an error for an unrecognized relevance label.
// Indicates dataset corruption or a schema mismatch, always fatal.
func UnknownLabelError(label string) *AppError {
	return New(CodeUnknownLabel, fmt.Sprintf("unknown relevance label %q", label)).
		WithDetail("label", label)
}

// InvalidArgumentError creates a programmer error for bad metric arguments.
func InvalidArgumentError(message string) *AppError {
	return New(CodeInvalidArgument, message)
}

// BackendUnavailableError creates a transient backend error. The driver
// records it per query and escalates only past a consecutive-failure
// threshold.
func BackendUnavailableError(backend string, err error) *AppError {
	return Wrap(CodeBackendUnavailable, fmt.Sprintf("backend %s unavailable", backend), err).
		WithDetail("backend", backend)
}

// BackendProtocolError creates an error for a backend response that could
// not be parsed into product identifiers. Fatal for the query, not the run.
func BackendProtocolError(backend string, err error) *AppError {
	return Wrap(CodeBackendProtocol, fmt.Sprintf("backend %s returned an unparseable response", backend), err).
		WithDetail("backend", backend)
}

// ValidationError creates a validation error.
func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

// NotFoundError creates a not found error.
func NotFoundError(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// InternalError creates an internal error.
func InternalError(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

// TimeoutError creates a timeout error for a specific operation.
func TimeoutError(operation string) *AppError {
	message := "operation timed out"
	if operation != "" {
		message = fmt.Sprintf("%s timed out", operation)
	}
	return New(CodeTimeout, message)
}

// InvalidRequestError creates an invalid request error.
func InvalidRequestError(message string) *AppError {
	return New(CodeInvalidRequest, message)
}

// CodeOf returns the error code of err, or CodeInternal for foreign errors.
func CodeOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// IsConfiguration checks if error is a configuration error.
func IsConfiguration(err error) bool {
	return CodeOf(err) == CodeConfiguration
}

// IsUnknownLabel checks if error is an unknown label error.
func IsUnknownLabel(err error) bool {
	return CodeOf(err) == CodeUnknownLabel
}

// IsInvalidArgument checks if error is an invalid argument error.
func IsInvalidArgument(err error) bool {
	return CodeOf(err) == CodeInvalidArgument
}

// IsBackendUnavailable checks if error is a transient backend error.
func IsBackendUnavailable(err error) bool {
	return CodeOf(err) == CodeBackendUnavailable
}

// IsBackendProtocol checks if error is a backend protocol error.
func IsBackendProtocol(err error) bool {
	return CodeOf(err) == CodeBackendProtocol
}

// IsNotFound checks if error is a not found error.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

// ErrorResponse is the standard JSON error response structure.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON writes a JSON error response to the ResponseWriter.
func WriteJSON(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignore encoding errors - headers already sent
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteError writes an error response with proper sanitization.
// If err is an *AppError, it uses the code and status from the error.
// For other errors, it sanitizes the message to prevent leaking internal details.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		WriteJSON(w, appErr.HTTPStatus(), ErrorResponse{
			Error:   appErr.Message,
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		})
		return
	}

	// Don't leak internal error details to clients
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal server error",
		Code:    CodeInternal,
		Message: "An unexpected error occurred",
	})
}
