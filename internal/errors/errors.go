package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes used across the API.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeForbidden    = "FORBIDDEN"
	CodeBadRequest   = "BAD_REQUEST"
	CodeConflict     = "CONFLICT"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInternal     = "INTERNAL"
)

// AppError represents a custom application error
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error types
var (
	ErrDatabaseConnection = &AppError{Code: CodeInternal, Message: "Failed to connect to database"}
	ErrInvalidCredentials = &AppError{Code: CodeUnauthorized, Message: "Invalid credentials"}
	ErrUnauthorized       = &AppError{Code: CodeUnauthorized, Message: "Unauthorized access"}
	ErrValidationFailed   = &AppError{Code: CodeBadRequest, Message: "Validation failed"}
)

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an error with additional context
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NotFound builds a NOT_FOUND error.
func NotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

// Forbidden builds a FORBIDDEN error.
func Forbidden(message string) *AppError {
	return &AppError{Code: CodeForbidden, Message: message}
}

// BadRequest builds a BAD_REQUEST error.
func BadRequest(message string) *AppError {
	return &AppError{Code: CodeBadRequest, Message: message}
}

// Conflict builds a CONFLICT error.
func Conflict(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message}
}

// Unauthorized builds an UNAUTHORIZED error.
func Unauthorized(message string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: message}
}

// Internal wraps an unexpected error.
func Internal(err error) *AppError {
	return &AppError{Code: CodeInternal, Message: "An unexpected error occurred", Err: err}
}

// HTTPStatus maps an error code to its HTTP status.
func HTTPStatus(code string) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// AsAppError extracts an *AppError from err, converting unknown errors
// into INTERNAL.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
