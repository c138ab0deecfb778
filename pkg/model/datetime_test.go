package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDateTime(t *testing.T) {
	d, err := ParseDateTime("2026-03-10 09:30:00")
	if err != nil {
		t.Fatalf("ParseDateTime failed: %v", err)
	}
	want := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	if !d.Equal(want) {
		t.Errorf("parsed %v, want %v", d.Time, want)
	}

	if _, err := ParseDateTime("2026-03-10T09:30:00Z"); err == nil {
		t.Error("expected error for RFC3339 input")
	}
}

func TestDateTimeJSONRejectsNonString(t *testing.T) {
	var d DateTime
	if err := json.Unmarshal([]byte("1741597800"), &d); err == nil {
		t.Error("expected error for numeric timestamp")
	}
}

func TestDateTimeJSONNullAndZero(t *testing.T) {
	var d DateTime
	if err := json.Unmarshal([]byte("null"), &d); err != nil {
		t.Fatalf("null unmarshal failed: %v", err)
	}
	if !d.IsZero() {
		t.Errorf("expected zero time from null, got %v", d.Time)
	}

	out, err := json.Marshal(DateTime{})
	if err != nil {
		t.Fatalf("zero marshal failed: %v", err)
	}
	if string(out) != "null" {
		t.Errorf("zero time marshalled as %s, want null", out)
	}
}

func TestDateTimeJSONRoundTrip(t *testing.T) {
	in := NewDateTime(time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC))
	out, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(out) != `"2026-03-10 09:30:00"` {
		t.Errorf("marshalled as %s", out)
	}

	var back DateTime
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !back.Equal(in.Time) {
		t.Errorf("round trip changed value: %v != %v", back.Time, in.Time)
	}
}
