package storage

import (
	"errors"

	"dsf/internal/domain"
)

// Storage errors
var (
	// ErrNotFound is returned when a record is not found. It is the domain
	// sentinel so lookups surface as not_found on the control plane.
	ErrNotFound = domain.ErrNotFound

	// ErrAlreadyExists is returned when trying to store a duplicate record.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput is returned for invalid input parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConnectionFailed is returned when the database cannot be opened.
	ErrConnectionFailed = errors.New("database connection failed")

	// ErrMigrationFailed is returned when migrations fail.
	ErrMigrationFailed = errors.New("migration failed")

	// ErrClosed is returned by a store that has been closed.
	ErrClosed = errors.New("store closed")
)

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is a duplicate error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
