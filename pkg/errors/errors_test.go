package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(KindValidation, "validation failed", http.StatusUnprocessableEntity)

	if err.Kind != KindValidation {
		t.Errorf("expected kind %s, got %s", KindValidation, err.Kind)
	}
	if err.Message != "validation failed" {
		t.Errorf("expected message 'validation failed', got %s", err.Message)
	}
	if err.HTTPStatus != http.StatusUnprocessableEntity {
		t.Errorf("expected status %d, got %d", http.StatusUnprocessableEntity, err.HTTPStatus)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("database connection failed")
	wrapped := Wrap(originalErr, KindInternal, "internal error", http.StatusInternalServerError)

	if wrapped.Err != originalErr {
		t.Errorf("expected wrapped error to contain original error")
	}
	if wrapped.Kind != KindInternal {
		t.Errorf("expected kind %s, got %s", KindInternal, wrapped.Kind)
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name: "without underlying error",
			appErr: &AppError{
				Kind:    KindNotFound,
				Message: "resource not found",
			},
			expected: "NOT_FOUND: resource not found",
		},
		{
			name: "with underlying error",
			appErr: &AppError{
				Kind:    KindInternal,
				Message: "internal error",
				Err:     errors.New("database connection failed"),
			},
			expected: "INTERNAL_ERROR: internal error (caused by: database connection failed)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.appErr.Error()
			if got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	appErr := Wrap(originalErr, KindInternal, "wrapped", http.StatusInternalServerError)

	unwrapped := errors.Unwrap(appErr)
	if unwrapped != originalErr {
		t.Errorf("Unwrap() should return original error")
	}
}

func TestConstructorStatuses(t *testing.T) {
	tests := []struct {
		appErr *AppError
		kind   string
		status int
	}{
		{NotFound("Course"), KindNotFound, http.StatusNotFound},
		{InvalidInput("bad field"), KindInvalidInput, http.StatusBadRequest},
		{Forbidden("nope"), KindForbidden, http.StatusForbidden},
		{Conflict("slot taken"), KindConflict, http.StatusConflict},
		{QuotaExceeded("limit reached"), KindQuotaExceeded, http.StatusTooManyRequests},
		{InvalidState("wrong status"), KindInvalidState, http.StatusConflict},
		{Internal("boom", nil), KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			if tt.appErr.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", tt.appErr.Kind, tt.kind)
			}
			if tt.appErr.StatusCode() != tt.status {
				t.Errorf("status = %d, want %d", tt.appErr.StatusCode(), tt.status)
			}
		})
	}
}

func TestIsKind(t *testing.T) {
	err := Conflict("slot taken")
	if !IsKind(err, KindConflict) {
		t.Error("expected IsKind to match CONFLICT")
	}
	if IsKind(err, KindNotFound) {
		t.Error("IsKind matched the wrong kind")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if !IsKind(wrapped, KindConflict) {
		t.Error("expected IsKind to unwrap nested errors")
	}
	if IsKind(errors.New("plain"), KindConflict) {
		t.Error("IsKind matched a non-AppError")
	}
}

func TestAsAppErrorNeverNil(t *testing.T) {
	appErr := AsAppError(errors.New("plain failure"))
	if appErr == nil {
		t.Fatal("AsAppError returned nil")
	}
	if appErr.Kind != KindInternal {
		t.Errorf("expected INTERNAL_ERROR fallback, got %s", appErr.Kind)
	}

	original := NotFound("Course")
	if got := AsAppError(fmt.Errorf("outer: %w", original)); got != original {
		t.Error("AsAppError should return the nested AppError")
	}
}
