package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/inventory/internal/core/domain"
	"github.com/vietddude/inventory/internal/infra/storage"
	"github.com/vietddude/inventory/internal/infra/storage/memory"
)

// conflictingStore fails the first n upserts with a write conflict.
type conflictingStore struct {
	*memory.MemoryStorage
	mu        sync.Mutex
	conflicts int
	calls     int
}

func (s *conflictingStore) UpsertIncrement(
	ctx context.Context,
	key domain.InventoryKey,
	delta int64,
	onCreate storage.CreateDefaults,
) (*domain.InventoryRecord, error) {
	s.mu.Lock()
	s.calls++
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return nil, domain.ErrStoreConflict
	}
	s.mu.Unlock()
	return s.MemoryStorage.UpsertIncrement(ctx, key, delta, onCreate)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.GrantEvent
	err    error
}

func (p *recordingPublisher) PublishGrant(_ context.Context, e domain.GrantEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func TestLedger_GrantAccumulates(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	l := New(memory.NewMemoryStorage(), WithClock(func() time.Time { return now }))
	ctx := context.Background()
	user, item := uuid.New(), uuid.New()

	rec, err := l.Grant(ctx, user, item, 3)
	if err != nil {
		t.Fatalf("first grant: %v", err)
	}
	if rec.Quantity != 3 || !rec.AcquiredDate.Equal(now) {
		t.Fatalf("unexpected record after first grant: %+v", rec)
	}

	first := now
	now = now.Add(24 * time.Hour)
	rec, err = l.Grant(ctx, user, item, 2)
	if err != nil {
		t.Fatalf("second grant: %v", err)
	}
	if rec.Quantity != 5 {
		t.Errorf("expected quantity 5, got %d", rec.Quantity)
	}
	if !rec.AcquiredDate.Equal(first) {
		t.Errorf("acquired date moved from %v to %v", first, rec.AcquiredDate)
	}
}

func TestLedger_ConcurrentGrants(t *testing.T) {
	store := memory.NewMemoryStorage()
	l := New(store)
	ctx := context.Background()
	user, item := uuid.New(), uuid.New()

	var wg sync.WaitGroup
	var want int64
	for i := 1; i <= 50; i++ {
		want += int64(i)
		wg.Add(1)
		go func(q int64) {
			defer wg.Done()
			if _, err := l.Grant(ctx, user, item, q); err != nil {
				t.Errorf("grant: %v", err)
			}
		}(int64(i))
	}
	wg.Wait()

	recs, err := l.Query(ctx, user)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(recs))
	}
	if recs[0].Quantity != want {
		t.Errorf("expected quantity %d, got %d", want, recs[0].Quantity)
	}
}

func TestLedger_GrantInvalidInput(t *testing.T) {
	store := memory.NewMemoryStorage()
	l := New(store)
	user, item := uuid.New(), uuid.New()

	tests := []struct {
		name     string
		user     uuid.UUID
		item     uuid.UUID
		quantity int64
	}{
		{"zero quantity", user, item, 0},
		{"negative quantity", user, item, -4},
		{"nil user", uuid.Nil, item, 1},
		{"nil item", user, uuid.Nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Grant(context.Background(), tt.user, tt.item, tt.quantity)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	if store.Len() != 0 {
		t.Errorf("invalid grants must not write, store has %d records", store.Len())
	}
}

func TestLedger_RetriesConflicts(t *testing.T) {
	store := &conflictingStore{MemoryStorage: memory.NewMemoryStorage(), conflicts: 2}
	l := New(store, WithConflictRetries(5, time.Millisecond))

	rec, err := l.Grant(context.Background(), uuid.New(), uuid.New(), 4)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if rec.Quantity != 4 {
		t.Errorf("expected quantity 4, got %d", rec.Quantity)
	}
	if store.calls != 3 {
		t.Errorf("expected 3 store calls, got %d", store.calls)
	}
}

func TestLedger_ConflictRetriesExhausted(t *testing.T) {
	store := &conflictingStore{MemoryStorage: memory.NewMemoryStorage(), conflicts: 100}
	l := New(store, WithConflictRetries(2, time.Millisecond))

	_, err := l.Grant(context.Background(), uuid.New(), uuid.New(), 1)
	if !errors.Is(err, domain.ErrStoreConflict) {
		t.Fatalf("expected ErrStoreConflict, got %v", err)
	}
	if store.calls != 3 {
		t.Errorf("expected 3 store calls, got %d", store.calls)
	}
}

func TestLedger_PublishesGrantEvent(t *testing.T) {
	pub := &recordingPublisher{}
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	l := New(memory.NewMemoryStorage(), WithPublisher(pub), WithClock(func() time.Time { return now }))
	user, item := uuid.New(), uuid.New()

	if _, err := l.Grant(context.Background(), user, item, 2); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := l.Grant(context.Background(), user, item, 3); err != nil {
		t.Fatalf("grant: %v", err)
	}

	if len(pub.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(pub.events))
	}
	last := pub.events[1]
	if last.Granted != 3 || last.Quantity != 5 || !last.GrantedAt.Equal(now) {
		t.Errorf("unexpected event: %+v", last)
	}
}

func TestLedger_PublishFailureDoesNotFailGrant(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	l := New(memory.NewMemoryStorage(), WithPublisher(pub))

	if _, err := l.Grant(context.Background(), uuid.New(), uuid.New(), 1); err != nil {
		t.Fatalf("grant should succeed when publishing fails: %v", err)
	}
}

func TestLedger_QueryOrder(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(memory.NewMemoryStorage(), WithClock(func() time.Time { return now }))
	ctx := context.Background()
	user := uuid.New()

	var items []uuid.UUID
	for range 3 {
		item := uuid.New()
		items = append(items, item)
		if _, err := l.Grant(ctx, user, item, 1); err != nil {
			t.Fatalf("grant: %v", err)
		}
		now = now.Add(time.Minute)
	}
	if _, err := l.Grant(ctx, uuid.New(), uuid.New(), 1); err != nil {
		t.Fatalf("grant other user: %v", err)
	}

	recs, err := l.Query(ctx, user)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	for i, rec := range recs {
		if rec.CatalogItemID != items[i] {
			t.Errorf("position %d: expected %s, got %s", i, items[i], rec.CatalogItemID)
		}
	}
}

func TestLedger_Get(t *testing.T) {
	l := New(memory.NewMemoryStorage())
	ctx := context.Background()
	user, item := uuid.New(), uuid.New()

	if _, err := l.Get(ctx, user, item); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := l.Grant(ctx, user, item, 7); err != nil {
		t.Fatalf("grant: %v", err)
	}
	rec, err := l.Get(ctx, user, item)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Quantity != 7 {
		t.Errorf("expected quantity 7, got %d", rec.Quantity)
	}
}

// stalledPublisher blocks until its context is done, like a writer whose
// broker never acknowledges.
type stalledPublisher struct{}

func (stalledPublisher) PublishGrant(ctx context.Context, _ domain.GrantEvent) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledPublisher) Close() error { return nil }

func TestLedger_StalledPublisherDoesNotHoldGrant(t *testing.T) {
	l := New(memory.NewMemoryStorage(),
		WithPublisher(stalledPublisher{}),
		WithPublishTimeout(50*time.Millisecond),
	)
	user, item := uuid.New(), uuid.New()

	start := time.Now()
	rec, err := l.Grant(context.Background(), user, item, 2)
	if err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("grant waited %v on a stalled publisher", elapsed)
	}
	if rec.Quantity != 2 {
		t.Errorf("expected quantity 2, got %d", rec.Quantity)
	}
}

type deadlinePublisher struct {
	hasDeadline bool
}

func (p *deadlinePublisher) PublishGrant(ctx context.Context, _ domain.GrantEvent) error {
	_, p.hasDeadline = ctx.Deadline()
	return nil
}

func (p *deadlinePublisher) Close() error { return nil }

func TestLedger_PublishIsBounded(t *testing.T) {
	pub := &deadlinePublisher{}
	l := New(memory.NewMemoryStorage(), WithPublisher(pub))

	if _, err := l.Grant(context.Background(), uuid.New(), uuid.New(), 1); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if !pub.hasDeadline {
		t.Error("publish ran without a deadline")
	}
}
