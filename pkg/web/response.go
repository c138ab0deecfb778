package web

import (
	"encoding/json"
	"net/http"
	"time"

	apperrors "rally/pkg/errors"
)

// Envelope is the uniform response body. Business errors carry the HTTP
// status in code so clients can switch on the body alone.
type Envelope struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Kind      string `json:"kind,omitempty"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Page is the data payload for list endpoints. Page numbering is
// zero-based.
type Page struct {
	Records any   `json:"records"`
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	Size    int   `json:"size"`
}

func WriteJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Envelope{
		Code:      http.StatusOK,
		Message:   "success",
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func WriteCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, Envelope{
		Code:      http.StatusCreated,
		Message:   "success",
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func WritePaginated(w http.ResponseWriter, records any, total int64, page, size int) {
	WriteSuccess(w, Page{
		Records: records,
		Total:   total,
		Page:    page,
		Size:    size,
	})
}

func WriteError(w http.ResponseWriter, err error) {
	appErr := apperrors.AsAppError(err)

	var details any
	if len(appErr.Details) > 0 {
		details = appErr.Details
	}

	WriteJSON(w, appErr.StatusCode(), Envelope{
		Code:      appErr.StatusCode(),
		Message:   appErr.Message,
		Kind:      appErr.Kind,
		Details:   details,
		Timestamp: time.Now().UnixMilli(),
	})
}
