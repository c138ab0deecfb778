package errors

import "errors"

var (
	// ErrNotFound indicates the relation does not exist.
	ErrNotFound = errors.New("relation not found")

	// ErrActivePairExists indicates a PENDING or APPROVED relation already
	// exists for the coach-student pair.
	ErrActivePairExists = errors.New("active relation already exists for this pair")
)
