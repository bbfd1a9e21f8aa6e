package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrRecordNotFound indicates no record exists for the given tenant, entity type and id.
	ErrRecordNotFound = errors.New("record not found")

	// ErrRecordExists indicates a record with the same id already exists.
	ErrRecordExists = errors.New("record already exists")

	// ErrInvalidRecord indicates a record is missing identity fields or cannot be encoded.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrUnsupportedBackend indicates a database URL names a backend wardflow does not ship.
	ErrUnsupportedBackend = errors.New("unsupported persistence backend")
)

// RecordError wraps record-level errors with the operation and target.
type RecordError struct {
	Op         string // Operation being performed (e.g., "Get", "Update", "SetOnce")
	EntityType string
	ID         string
	Err        error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.EntityType, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewRecordError(op, entityType, id string, err error) *RecordError {
	return &RecordError{
		Op:         op,
		EntityType: entityType,
		ID:         id,
		Err:        err,
	}
}

// IsRecordNotFound checks if an error indicates a record was not found.
func IsRecordNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// IsRecordExists checks if an error indicates an id collision on insert.
func IsRecordExists(err error) bool {
	return errors.Is(err, ErrRecordExists)
}
