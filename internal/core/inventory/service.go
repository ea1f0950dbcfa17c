// Package inventory serves grant and query requests. Grants touch only the
// ledger; queries join ledger records with catalog metadata and degrade to
// bare records when the catalog is unavailable.
package inventory

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/inventory/internal/core/domain"
	"github.com/vietddude/inventory/internal/metrics"
)

// Ledger is the subset of the inventory ledger used by the service.
type Ledger interface {
	Grant(ctx context.Context, userID, catalogItemID uuid.UUID, quantity int64) (*domain.InventoryRecord, error)
	Query(ctx context.Context, userID uuid.UUID) ([]*domain.InventoryRecord, error)
}

// Catalog returns the full remote catalog.
type Catalog interface {
	FetchItems(ctx context.Context) ([]domain.CatalogItem, error)
}

// GrantRequest is the input of HandleGrant, as received at the boundary.
type GrantRequest struct {
	UserID        string `json:"userId"`
	CatalogItemID string `json:"catalogItemId"`
	Quantity      int64  `json:"quantity"`
}

// Service orchestrates grants and queries.
type Service struct {
	ledger  Ledger
	catalog Catalog
}

// NewService creates a new Service.
func NewService(ledger Ledger, catalog Catalog) *Service {
	return &Service{ledger: ledger, catalog: catalog}
}

// HandleGrant validates the request and records the grant. The catalog is
// not consulted: item ids are not checked for existence.
func (s *Service) HandleGrant(ctx context.Context, req GrantRequest) (*domain.InventoryRecord, error) {
	userID, err := domain.ParseID("userId", req.UserID)
	if err != nil {
		return nil, err
	}
	itemID, err := domain.ParseID("catalogItemId", req.CatalogItemID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateQuantity(req.Quantity); err != nil {
		return nil, err
	}

	rec, err := s.ledger.Grant(ctx, userID, itemID, req.Quantity)
	if err != nil {
		return nil, err
	}

	slog.Info("Granted item",
		"user_id", userID,
		"catalog_item_id", itemID,
		"granted", req.Quantity,
		"quantity", rec.Quantity,
	)
	return rec, nil
}

// HandleQuery returns everything a user owns joined with catalog metadata.
// A catalog failure leaves name and description empty instead of failing.
func (s *Service) HandleQuery(ctx context.Context, rawUserID string) ([]domain.OwnedItem, error) {
	userID, err := domain.ParseID("userId", rawUserID)
	if err != nil {
		return nil, err
	}

	var (
		records    []*domain.InventoryRecord
		items      []domain.CatalogItem
		catalogErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = s.ledger.Query(gctx, userID)
		return err
	})
	g.Go(func() error {
		// Never returned to the group: a catalog failure must not cancel the
		// ledger read.
		items, catalogErr = s.catalog.FetchItems(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if catalogErr != nil {
		metrics.DegradedQueries.Inc()
		slog.Warn("Catalog unavailable, returning inventory without item details",
			"user_id", userID,
			"error", catalogErr,
		)
		items = nil
	}

	return Join(records, items), nil
}

// Join pairs each record with its catalog entry. Records without a matching
// entry keep empty name and description. For duplicate catalog ids the first
// occurrence wins.
func Join(records []*domain.InventoryRecord, items []domain.CatalogItem) []domain.OwnedItem {
	byID := make(map[uuid.UUID]domain.CatalogItem, len(items))
	for _, item := range items {
		if _, ok := byID[item.ID]; !ok {
			byID[item.ID] = item
		}
	}

	owned := make([]domain.OwnedItem, 0, len(records))
	for _, rec := range records {
		item := byID[rec.CatalogItemID]
		owned = append(owned, domain.OwnedItem{
			CatalogItemID: rec.CatalogItemID,
			Name:          item.Name,
			Description:   item.Description,
			Quantity:      rec.Quantity,
			AcquiredDate:  rec.AcquiredDate,
		})
	}
	return owned
}
