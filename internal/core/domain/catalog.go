package domain

import "github.com/google/uuid"

// CatalogItem is an item owned by the remote catalog service.
// It is fetched in bulk and joined in memory; never persisted here.
type CatalogItem struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}
