package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/inventory/internal/core/domain"
)

var (
	// ErrNotFound is returned when no record exists for a key
	ErrNotFound = errors.New("inventory record not found")
)

// CreateDefaults are applied only when UpsertIncrement creates the record.
type CreateDefaults struct {
	AcquiredDate time.Time
}

// Store is the keyed store backing the inventory ledger.
type Store interface {
	// Get retrieves the record for a key, or ErrNotFound
	Get(ctx context.Context, key domain.InventoryKey) (*domain.InventoryRecord, error)

	// UpsertIncrement atomically creates the record with quantity delta (using
	// onCreate) or adds delta to the existing quantity. It returns the record as
	// stored after the write. Implementations may return domain.ErrStoreConflict
	// when a concurrent writer won; nothing has been written in that case.
	UpsertIncrement(
		ctx context.Context,
		key domain.InventoryKey,
		delta int64,
		onCreate CreateDefaults,
	) (*domain.InventoryRecord, error)

	// QueryByUserID returns every record owned by a user
	QueryByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.InventoryRecord, error)
}
