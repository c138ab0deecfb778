package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"rally/pkg/config"
	apperrors "rally/pkg/errors"
	"rally/pkg/model"
)

// DecodeJSON reads a request body into dst, rejecting unknown fields
// and trailing garbage.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.InvalidInput("request body is empty")
		}
		return apperrors.InvalidInput("malformed request body: " + err.Error())
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return apperrors.InvalidInput("request body must contain a single JSON object")
	}
	return nil
}

// ExtractPageSize reads zero-based page and size query parameters,
// clamping both to configured bounds.
func ExtractPageSize(r *http.Request) (int, int, error) {
	query := r.URL.Query()

	page := 0
	if s := query.Get("page"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid page parameter: " + s)
		}
		page = v
	}

	size := 0
	if s := query.Get("size"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid size parameter: " + s)
		}
		size = v
	}

	return config.NormalizePage(page), config.NormalizeSize(size), nil
}

// ExtractDateTime parses an optional query parameter in the
// "2006-01-02 15:04:05" layout. A missing parameter returns the zero
// value with no error.
func ExtractDateTime(r *http.Request, name string) (model.DateTime, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return model.DateTime{}, nil
	}
	dt, err := model.ParseDateTime(s)
	if err != nil {
		return model.DateTime{}, apperrors.InvalidInput("invalid " + name + " parameter: " + s)
	}
	return dt, nil
}
