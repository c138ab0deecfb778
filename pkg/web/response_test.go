package web

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	apperrors "rally/pkg/errors"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	return body
}

func TestWriteSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, map[string]string{"id": "course-1"})

	if rec.Code != 200 {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %q", ct)
	}

	body := decodeBody(t, rec)
	if body["code"] != float64(200) || body["message"] != "success" {
		t.Fatalf("unexpected envelope: %v", body)
	}
	if _, ok := body["timestamp"].(float64); !ok {
		t.Fatalf("missing timestamp: %v", body)
	}
	data := body["data"].(map[string]any)
	if data["id"] != "course-1" {
		t.Fatalf("unexpected data: %v", data)
	}
}

func TestWritePaginatedShape(t *testing.T) {
	rec := httptest.NewRecorder()
	WritePaginated(rec, []string{"a", "b"}, 17, 2, 10)

	body := decodeBody(t, rec)
	page := body["data"].(map[string]any)
	if page["total"] != float64(17) || page["page"] != float64(2) || page["size"] != float64(10) {
		t.Fatalf("unexpected page payload: %v", page)
	}
	if records := page["records"].([]any); len(records) != 2 {
		t.Fatalf("expected 2 records, got %v", records)
	}
}

func TestWriteErrorCarriesKindAndDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	err := apperrors.Conflict("Insufficient balance").WithDetails(map[string]any{"required": "100.00"})
	WriteError(rec, err)

	if rec.Code != 409 {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["code"] != float64(409) || body["kind"] != apperrors.KindConflict {
		t.Fatalf("unexpected error envelope: %v", body)
	}
	details := body["details"].(map[string]any)
	if details["required"] != "100.00" {
		t.Fatalf("details not carried: %v", details)
	}
}

func TestWriteErrorMasksUnknownErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("pq: secret connection string"))

	if rec.Code != 500 {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["kind"] != apperrors.KindInternal {
		t.Fatalf("expected INTERNAL_ERROR kind, got %v", body["kind"])
	}
	if body["message"] == "pq: secret connection string" {
		t.Fatal("internal error detail leaked to the client")
	}
}
