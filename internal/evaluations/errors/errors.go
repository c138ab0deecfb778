package errors

import "errors"

var (
	// ErrNotFound indicates the evaluation does not exist.
	ErrNotFound = errors.New("evaluation not found")

	// ErrDuplicate indicates the author already evaluated this course.
	ErrDuplicate = errors.New("course already evaluated by this author")
)
