package storage

import "errors"

var (
	// ErrNotFound is returned when a user has no balance record.
	ErrNotFound = errors.New("storage: not found")

	// ErrInsufficientBalance is returned when a deduction exceeds the
	// available balance. The balance is left unchanged.
	ErrInsufficientBalance = errors.New("storage: insufficient balance")

	// ErrInvalidAmount is returned for negative or non-finite amounts.
	ErrInvalidAmount = errors.New("storage: invalid amount")
)
