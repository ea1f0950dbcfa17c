package ledger

import (
	"slices"
	"strings"

	"github.com/vietddude/inventory/internal/core/domain"
)

func sortRecords(recs []*domain.InventoryRecord) {
	slices.SortStableFunc(recs, func(a, b *domain.InventoryRecord) int {
		if c := a.AcquiredDate.Compare(b.AcquiredDate); c != 0 {
			return c
		}
		return strings.Compare(a.CatalogItemID.String(), b.CatalogItemID.String())
	})
}
