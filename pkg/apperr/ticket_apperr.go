package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes. Classifier and message-level failures never surface
// here: they are recovered via the keyword fallback or absorbed into
// the decision record, so only run-level, request and auth errors
// reach the HTTP layer.
const (
	// Run-level errors (propagate to the caller of RunOnce)
	CodeSourceUnavailable = "SOURCE_UNAVAILABLE"
	CodeAlreadyRunning    = "ALREADY_RUNNING"

	// Request errors
	CodeBadRequest = "BAD_REQUEST"

	// Auth errors
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInvalidToken = "INVALID_TOKEN"

	// Internal errors
	CodeInternalError = "INTERNAL_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.Status
}

// Run-level errors
func SourceUnavailable(err error) *AppError {
	return &AppError{
		Code:    CodeSourceUnavailable,
		Message: "message source could not be reached",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func AlreadyRunning() *AppError {
	return &AppError{
		Code:    CodeAlreadyRunning,
		Message: "a pipeline run is already in progress",
		Status:  http.StatusConflict,
	}
}

// Request errors
func BadRequest(message string) *AppError {
	if message == "" {
		message = "bad request"
	}
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// Auth errors
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

func InvalidToken(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidToken,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

// Internal errors
func Internal(err error) *AppError {
	return &AppError{
		Code:    CodeInternalError,
		Message: "internal error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Is checks if an error has the given code
func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// From extracts an AppError, or wraps the error as internal
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
