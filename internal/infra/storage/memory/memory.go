package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/vietddude/inventory/internal/core/domain"
	"github.com/vietddude/inventory/internal/infra/storage"
)

// MemoryStorage keeps inventory records in process. A single mutex makes
// UpsertIncrement atomic.
type MemoryStorage struct {
	records map[domain.InventoryKey]*domain.InventoryRecord
	byUser  map[uuid.UUID][]domain.InventoryKey
	mu      sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[domain.InventoryKey]*domain.InventoryRecord),
		byUser:  make(map[uuid.UUID][]domain.InventoryKey),
	}
}

var _ storage.Store = (*MemoryStorage)(nil)

func (s *MemoryStorage) Get(ctx context.Context, key domain.InventoryKey) (*domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	// Return a copy
	r := *rec
	return &r, nil
}

func (s *MemoryStorage) UpsertIncrement(
	ctx context.Context,
	key domain.InventoryKey,
	delta int64,
	onCreate storage.CreateDefaults,
) (*domain.InventoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	var current int64
	if ok {
		current = rec.Quantity
	}
	if delta > 0 && current > math.MaxInt64-delta {
		return nil, fmt.Errorf("%w: quantity for %s would overflow", domain.ErrInvalidInput, key)
	}
	if !ok {
		rec = &domain.InventoryRecord{
			UserID:        key.UserID,
			CatalogItemID: key.CatalogItemID,
			AcquiredDate:  onCreate.AcquiredDate,
		}
		s.records[key] = rec
		s.byUser[key.UserID] = append(s.byUser[key.UserID], key)
	}
	rec.Quantity += delta

	r := *rec
	return &r, nil
}

func (s *MemoryStorage) QueryByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.byUser[userID]
	out := make([]*domain.InventoryRecord, 0, len(keys))
	for _, k := range keys {
		r := *s.records[k]
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AcquiredDate.Before(out[j].AcquiredDate)
	})
	return out, nil
}

// Len returns the number of stored records.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
