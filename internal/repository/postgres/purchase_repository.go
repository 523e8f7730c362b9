package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/materialops/supplyrun/internal/domain"
)

// purchaseRepository reads normalized purchase records from Postgres.
type purchaseRepository struct {
	db *sqlx.DB
}

// NewPurchaseRepository creates a purchase repository over the given database.
func NewPurchaseRepository(db *sqlx.DB) *purchaseRepository {
	return &purchaseRepository{db: db}
}

// Connect opens a Postgres connection through the pgx stdlib driver and
// verifies it with a ping.
func Connect(ctx context.Context, dbURL string) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// purchaseRow mirrors the purchases table with nullable columns.
type purchaseRow struct {
	Material       string          `db:"material"`
	PurchaseDate   time.Time       `db:"purchase_date"`
	Unit           sql.NullString  `db:"unit"`
	PackageSize    sql.NullFloat64 `db:"package_size"`
	Quantity       sql.NullFloat64 `db:"quantity"`
	UnitsPurchased sql.NullFloat64 `db:"units_purchased"`
	TotalCost      float64         `db:"total_cost"`
	UnitCost       sql.NullFloat64 `db:"unit_cost"`
	Source         sql.NullString  `db:"purchase_source"`
}

func (r *purchaseRepository) ListPurchaseRecords(ctx context.Context, since time.Time) ([]domain.PurchaseRecord, error) {
	query := `
		SELECT material, purchase_date, unit, package_size, quantity,
		       units_purchased, total_cost, unit_cost, purchase_source
		FROM purchases
		WHERE purchase_date >= $1
		ORDER BY material, purchase_date
	`

	var rows []purchaseRow
	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("error listing purchase records: %w", err)
	}

	records := make([]domain.PurchaseRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, domain.PurchaseRecord{
			Material:       row.Material,
			PurchaseDate:   row.PurchaseDate,
			Unit:           row.Unit.String,
			PackageSize:    nullableFloat(row.PackageSize),
			Quantity:       nullableFloat(row.Quantity),
			UnitsPurchased: nullableFloat(row.UnitsPurchased),
			TotalCost:      row.TotalCost,
			UnitCost:       nullableFloat(row.UnitCost),
			Source:         row.Source.String,
		})
	}
	return records, nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
