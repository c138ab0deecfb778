package errors

import "errors"

var (
	ErrNotFound = errors.New("course not found")

	ErrSlotTaken = errors.New("slot reservation already exists")

	ErrCoachNotFound = errors.New("coach not found")

	ErrStudentNotFound = errors.New("student not found")

	ErrTableNotFound = errors.New("table not found")
)
