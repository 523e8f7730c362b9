package repository

import (
	"context"
	"time"

	"github.com/materialops/supplyrun/internal/domain"
)

// PurchaseRepository is the read-only source of normalized purchase records
// for the analysis service.
type PurchaseRepository interface {
	// ListPurchaseRecords returns all purchase records on or after since,
	// sorted by (material, purchase_date). A zero since returns everything.
	ListPurchaseRecords(ctx context.Context, since time.Time) ([]domain.PurchaseRecord, error)
}
