package store

import "errors"

var (
	// ErrNotFound is returned when no verification record exists for a user
	ErrNotFound = errors.New("verification record not found")

	// ErrDuplicateRecord is returned when creating a record for a user that already has one
	ErrDuplicateRecord = errors.New("verification record already exists")

	// ErrStoreUnavailable wraps any failure of the underlying database
	ErrStoreUnavailable = errors.New("verification store unavailable")
)
