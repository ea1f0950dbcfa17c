package domain

import (
	"time"

	"github.com/google/uuid"
)

// InventoryKey identifies exactly one InventoryRecord.
type InventoryKey struct {
	UserID        uuid.UUID
	CatalogItemID uuid.UUID
}

func (k InventoryKey) String() string {
	return k.UserID.String() + ":" + k.CatalogItemID.String()
}

// InventoryRecord is how many units of a catalog item a user owns.
type InventoryRecord struct {
	UserID        uuid.UUID `json:"userId"        db:"user_id"`
	CatalogItemID uuid.UUID `json:"catalogItemId" db:"catalog_item_id"`
	Quantity      int64     `json:"quantity"      db:"quantity"`
	AcquiredDate  time.Time `json:"acquiredDate"  db:"acquired_date"` // first grant, immutable
}

// Key returns the record's composite identity.
func (r InventoryRecord) Key() InventoryKey {
	return InventoryKey{UserID: r.UserID, CatalogItemID: r.CatalogItemID}
}

// OwnedItem is an InventoryRecord joined with its catalog metadata.
// Name and Description are empty when the catalog entry could not be resolved.
type OwnedItem struct {
	CatalogItemID uuid.UUID `json:"catalogItemId"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Quantity      int64     `json:"quantity"`
	AcquiredDate  time.Time `json:"acquiredDate"`
}

// GrantEvent is emitted after a grant has been recorded.
type GrantEvent struct {
	UserID        uuid.UUID `json:"userId"`
	CatalogItemID uuid.UUID `json:"catalogItemId"`
	Granted       int64     `json:"granted"`
	Quantity      int64     `json:"quantity"`
	GrantedAt     time.Time `json:"grantedAt"`
}
