package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidInput is returned before any I/O for malformed identifiers or
	// non-positive quantities.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRemoteUnavailable means the catalog could not be reached: retry budget
	// exhausted, circuit open, or a non-transient error response.
	ErrRemoteUnavailable = errors.New("catalog service unavailable")

	// ErrStoreConflict is a concurrent-write conflict reported by a store.
	// The ledger retries it internally.
	ErrStoreConflict = errors.New("store write conflict")
)

// InvalidInputf wraps ErrInvalidInput with a message.
func InvalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ParseID parses a user or catalog item identifier. The nil UUID is rejected.
func ParseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, InvalidInputf("%s %q is not a valid id", field, raw)
	}
	if id == uuid.Nil {
		return uuid.Nil, InvalidInputf("%s is empty", field)
	}
	return id, nil
}

// ValidateID rejects the nil UUID.
func ValidateID(field string, id uuid.UUID) error {
	if id == uuid.Nil {
		return InvalidInputf("%s is empty", field)
	}
	return nil
}

// ValidateQuantity rejects non-positive grant quantities.
func ValidateQuantity(quantity int64) error {
	if quantity <= 0 {
		return InvalidInputf("quantity must be positive, got %d", quantity)
	}
	return nil
}
