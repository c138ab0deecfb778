package errors

import "errors"

var (
	// ErrNotFound indicates the tournament does not exist.
	ErrNotFound = errors.New("tournament not found")

	// ErrMatchNotFound indicates the match does not exist.
	ErrMatchNotFound = errors.New("match not found")

	// ErrDuplicateEnrollment indicates the student is already enrolled in
	// the tournament.
	ErrDuplicateEnrollment = errors.New("student already enrolled")
)
