package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable machine-readable error kinds. These cross the API boundary and must
// not change once clients depend on them.
const (
	KindNotFound      = "NOT_FOUND"
	KindValidation    = "VALIDATION_ERROR"
	KindInvalidInput  = "INVALID_INPUT"
	KindUnauthorized  = "UNAUTHORIZED"
	KindForbidden     = "FORBIDDEN"
	KindConflict      = "CONFLICT"
	KindQuotaExceeded = "QUOTA_EXCEEDED"
	KindInvalidState  = "INVALID_STATE"
	KindDependency    = "DEPENDENCY_FAILED"
	KindInternal      = "INTERNAL_ERROR"
)

type AppError struct {
	Kind       string         `json:"kind"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	return e.HTTPStatus
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func New(kind, message string, httpStatus int) *AppError {
	return &AppError{
		Kind:       kind,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func Wrap(err error, kind, message string, httpStatus int) *AppError {
	return &AppError{
		Kind:       kind,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Kind:       KindNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

func NotFoundWithID(resource, id string) *AppError {
	return &AppError{
		Kind:       KindNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

func Validation(message string, details map[string]any) *AppError {
	return &AppError{
		Kind:       KindValidation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func InvalidInput(message string) *AppError {
	return &AppError{
		Kind:       KindInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Kind:       KindUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Kind:       KindForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Kind:       KindConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// QuotaExceeded covers every "you have hit a configured limit" failure:
// monthly cancellation caps, coach capacity, student coach limits.
func QuotaExceeded(message string) *AppError {
	return &AppError{
		Kind:       KindQuotaExceeded,
		Message:    message,
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// InvalidState signals a lifecycle transition that is not permitted from the
// entity's current status. The record is left unchanged.
func InvalidState(message string) *AppError {
	return &AppError{
		Kind:       KindInvalidState,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// Dependency signals a downstream collaborator failure (ledger, broker).
func Dependency(message string, err error) *AppError {
	return &AppError{
		Kind:       KindDependency,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Kind:       KindInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}
