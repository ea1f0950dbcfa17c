package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/vietddude/inventory/internal/core/domain"
	"github.com/vietddude/inventory/internal/infra/storage"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// InventoryRepo implements storage.Store using PostgreSQL.
type InventoryRepo struct {
	db *DB
}

// NewInventoryRepo creates a new PostgreSQL inventory repository.
func NewInventoryRepo(db *DB) *InventoryRepo {
	return &InventoryRepo{db: db}
}

var _ storage.Store = (*InventoryRepo)(nil)

// Get retrieves the record for a key.
func (r *InventoryRepo) Get(ctx context.Context, key domain.InventoryKey) (*domain.InventoryRecord, error) {
	const query = `
SELECT user_id, catalog_item_id, quantity, acquired_date
FROM inventory_items
WHERE user_id = $1 AND catalog_item_id = $2`

	var rec domain.InventoryRecord
	err := r.db.GetContext(ctx, &rec, query, key.UserID, key.CatalogItemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory record: %w", mapError(err))
	}
	return &rec, nil
}

// UpsertIncrement creates or increments a record in one statement. The unique
// key serialises concurrent writers on the same row.
func (r *InventoryRepo) UpsertIncrement(
	ctx context.Context,
	key domain.InventoryKey,
	delta int64,
	onCreate storage.CreateDefaults,
) (*domain.InventoryRecord, error) {
	const stmt = `
INSERT INTO inventory_items (user_id, catalog_item_id, quantity, acquired_date)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, catalog_item_id)
DO UPDATE SET quantity = inventory_items.quantity + EXCLUDED.quantity, updated_at = NOW()
RETURNING user_id, catalog_item_id, quantity, acquired_date`

	var rec domain.InventoryRecord
	err := r.db.GetContext(ctx, &rec, stmt,
		key.UserID,
		key.CatalogItemID,
		delta,
		onCreate.AcquiredDate.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert inventory record: %w", mapError(err))
	}
	return &rec, nil
}

// QueryByUserID returns all records for a user, oldest first.
func (r *InventoryRepo) QueryByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.InventoryRecord, error) {
	const query = `
SELECT user_id, catalog_item_id, quantity, acquired_date
FROM inventory_items
WHERE user_id = $1
ORDER BY acquired_date, catalog_item_id`

	var recs []*domain.InventoryRecord
	if err := r.db.SelectContext(ctx, &recs, query, userID); err != nil {
		return nil, fmt.Errorf("failed to query inventory records: %w", mapError(err))
	}
	return recs, nil
}

// mapError turns retryable concurrency failures from either driver into
// domain.ErrStoreConflict.
func mapError(err error) error {
	var code string

	var pgErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgErr):
		code = pgErr.Code
	case errors.As(err, &pqErr):
		code = string(pqErr.Code)
	}

	if code == sqlStateSerializationFailure || code == sqlStateDeadlockDetected {
		return fmt.Errorf("%w: %w", domain.ErrStoreConflict, err)
	}
	return err
}
