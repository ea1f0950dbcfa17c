// Package ledger records per-user item ownership. Grants go through the
// keyed store's atomic upsert-increment so concurrent grants for the same
// (user, item) pair are never lost.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/vietddude/inventory/internal/core/domain"
	"github.com/vietddude/inventory/internal/infra/events"
	"github.com/vietddude/inventory/internal/infra/storage"
	"github.com/vietddude/inventory/internal/metrics"
)

const (
	defaultConflictRetries = 5
	defaultConflictPause   = 20 * time.Millisecond
	defaultPublishTimeout  = 2 * time.Second
)

// Ledger is the authoritative store of inventory records.
type Ledger struct {
	store     storage.Store
	publisher events.Publisher
	now       func() time.Time

	conflictRetries uint64
	conflictPause   time.Duration
	publishTimeout  time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the clock used for acquired dates and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithPublisher sets the grant event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

// WithConflictRetries bounds how often a store write conflict is retried.
func WithConflictRetries(retries uint64, pause time.Duration) Option {
	return func(l *Ledger) {
		l.conflictRetries = retries
		if pause > 0 {
			l.conflictPause = pause
		}
	}
}

// WithPublishTimeout bounds how long a grant waits on its event publish.
func WithPublishTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.publishTimeout = d
		}
	}
}

// New creates a ledger over the given store.
func New(store storage.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:           store,
		publisher:       events.Noop{},
		now:             time.Now,
		conflictRetries: defaultConflictRetries,
		conflictPause:   defaultConflictPause,
		publishTimeout:  defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Grant adds quantity units of an item to a user's inventory, creating the
// record on first grant. It returns the record after the increment.
func (l *Ledger) Grant(
	ctx context.Context,
	userID, catalogItemID uuid.UUID,
	quantity int64,
) (*domain.InventoryRecord, error) {
	if err := validateGrant(userID, catalogItemID, quantity); err != nil {
		metrics.Grants.WithLabelValues("invalid").Inc()
		return nil, err
	}

	key := domain.InventoryKey{UserID: userID, CatalogItemID: catalogItemID}
	grantedAt := l.now().UTC()

	backoff := retry.WithMaxRetries(
		l.conflictRetries,
		retry.WithJitterPercent(50, retry.NewConstant(l.conflictPause)),
	)
	rec, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (*domain.InventoryRecord, error) {
		rec, err := l.store.UpsertIncrement(ctx, key, quantity, storage.CreateDefaults{AcquiredDate: grantedAt})
		if errors.Is(err, domain.ErrStoreConflict) {
			metrics.StoreConflicts.Inc()
			slog.Debug("Store conflict, retrying grant", "key", key.String(), "error", err)
			return nil, retry.RetryableError(err)
		}
		return rec, err
	})
	if err != nil {
		metrics.Grants.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("grant %s: %w", key, err)
	}

	metrics.Grants.WithLabelValues("ok").Inc()
	metrics.GrantedUnits.Add(float64(quantity))

	l.publish(ctx, domain.GrantEvent{
		UserID:        userID,
		CatalogItemID: catalogItemID,
		Granted:       quantity,
		Quantity:      rec.Quantity,
		GrantedAt:     grantedAt,
	})

	return rec, nil
}

// Query returns a snapshot of every record owned by a user, ordered by
// acquired date and then catalog item id.
func (l *Ledger) Query(ctx context.Context, userID uuid.UUID) ([]*domain.InventoryRecord, error) {
	if err := domain.ValidateID("userId", userID); err != nil {
		return nil, err
	}

	recs, err := l.store.QueryByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("query inventory for %s: %w", userID, err)
	}
	sortRecords(recs)
	return recs, nil
}

// Get returns one record or storage.ErrNotFound.
func (l *Ledger) Get(ctx context.Context, userID, catalogItemID uuid.UUID) (*domain.InventoryRecord, error) {
	if err := domain.ValidateID("userId", userID); err != nil {
		return nil, err
	}
	if err := domain.ValidateID("catalogItemId", catalogItemID); err != nil {
		return nil, err
	}
	return l.store.Get(ctx, domain.InventoryKey{UserID: userID, CatalogItemID: catalogItemID})
}

// publish runs after the grant is committed, so the caller's cancellation
// does not apply and a stalled broker only costs publishTimeout.
func (l *Ledger) publish(ctx context.Context, event domain.GrantEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.publishTimeout)
	defer cancel()

	if err := l.publisher.PublishGrant(ctx, event); err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		slog.Warn("Failed to publish grant event",
			"user_id", event.UserID,
			"catalog_item_id", event.CatalogItemID,
			"error", err,
		)
		return
	}
	metrics.EventsPublished.WithLabelValues("ok").Inc()
}

func validateGrant(userID, catalogItemID uuid.UUID, quantity int64) error {
	if err := domain.ValidateID("userId", userID); err != nil {
		return err
	}
	if err := domain.ValidateID("catalogItemId", catalogItemID); err != nil {
		return err
	}
	return domain.ValidateQuantity(quantity)
}
