package errors

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")

	ErrInsufficientBalance = errors.New("insufficient balance")
)
