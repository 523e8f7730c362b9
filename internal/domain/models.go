package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseRecord is one normalized row of the purchase history for a material.
// Records are produced by the ingestion layer (CSV or database) and are never
// mutated by the analysis core.
type PurchaseRecord struct {
	Material       string    `json:"material" db:"material"`
	PurchaseDate   time.Time `json:"purchase_date" db:"purchase_date"`
	Unit           string    `json:"unit" db:"unit"`
	PackageSize    *float64  `json:"package_size" db:"package_size"`
	Quantity       *float64  `json:"quantity" db:"quantity"`
	UnitsPurchased *float64  `json:"units_purchased" db:"units_purchased"`
	TotalCost      float64   `json:"total_cost" db:"total_cost"`
	UnitCost       *float64  `json:"unit_cost" db:"unit_cost"`
	Source         string    `json:"purchase_source" db:"purchase_source"`
}

// UsageEstimate is the output of the usage-rate estimator for one material.
// A nil UsagePerDay means the rate could not be established with any
// confidence; Samples is the number of observations that carried a rate.
type UsageEstimate struct {
	UsagePerDay         *float64 `json:"usage_per_day"`
	UsageVariance       *float64 `json:"usage_variance"`
	Confidence          float64  `json:"confidence"`
	Samples             int      `json:"samples"`
	ProcessVariance     float64  `json:"process_variance"`
	MeasurementVariance float64  `json:"measurement_variance"`
}

// RemainingSupplyWindow is a probabilistic lower/upper bound on the number of
// days of stock remaining, at the stated central-interval confidence.
type RemainingSupplyWindow struct {
	LowerDays  float64 `json:"lower_days"`
	UpperDays  float64 `json:"upper_days"`
	Confidence float64 `json:"confidence"`
}

// MaterialProjection holds the per-material metrics derived from its purchase
// history. Runout fields are nil when no reliable estimate exists.
type MaterialProjection struct {
	Material              string                 `json:"material"`
	Unit                  string                 `json:"unit"`
	TotalPurchases        int                    `json:"total_purchases"`
	LastPurchaseDate      time.Time              `json:"last_purchase_date"`
	LastUnitsPurchased    *float64               `json:"last_units_purchased"`
	AvgUnitsPurchased     *float64               `json:"avg_units_purchased"`
	PurchaseFrequencyDays *float64               `json:"purchase_frequency_days"`
	UsagePerDay           *float64               `json:"usage_per_day"`
	UsageVariance         *float64               `json:"usage_variance"`
	UsageConfidence       float64                `json:"usage_confidence"`
	ReorderBiasDays       float64                `json:"reorder_bias_days"`
	DaysSinceLastPurchase float64                `json:"days_since_last_purchase"`
	UnitsRemaining        *float64               `json:"units_remaining"`
	DaysUntilRunout       *float64               `json:"days_until_runout"`
	EstimatedRunoutDate   *time.Time             `json:"estimated_runout_date"`
	RemainingSupply       *RemainingSupplyWindow `json:"remaining_supply_window"`
	BestPriceSource       string                 `json:"best_price_source"`
	BestUnitCost          *float64               `json:"best_unit_cost"`
	Infrequent            bool                   `json:"infrequent"`
}

// SupplyRunAssignment places a material on a scheduled supply run with a
// purchase recommendation covering the stretch until the following run.
type SupplyRunAssignment struct {
	Material              string           `json:"material"`
	Unit                  string           `json:"unit"`
	RunDate               time.Time        `json:"run_date"`
	RunOffsetDays         float64          `json:"run_offset_days"`
	LowerDaysAvailable    *float64         `json:"lower_days_available"`
	ExpectedDaysAvailable *float64         `json:"expected_days_available"`
	BufferDays            *float64         `json:"buffer_days"`
	ViolatesCadence       bool             `json:"violates_cadence"`
	IsUnreliable          bool             `json:"is_unreliable"`
	RecommendedQuantity   float64          `json:"recommended_quantity"`
	RecommendedCost       *decimal.Decimal `json:"recommended_cost"`
}

// ScheduledSupplyRun is one future shopping trip with its assigned materials
// and the rolled-up recommended spend.
type ScheduledSupplyRun struct {
	RunDate     time.Time             `json:"run_date"`
	OffsetDays  float64               `json:"offset_days"`
	Assignments []SupplyRunAssignment `json:"assignments"`
	TotalCost   decimal.Decimal       `json:"total_cost"`
}

// UpcomingGroup buckets projections into fixed-width day windows, a legacy
// view kept for week-at-a-glance reports.
type UpcomingGroup struct {
	WindowStartDays float64              `json:"window_start_days"`
	WindowEndDays   float64              `json:"window_end_days"`
	Projections     []MaterialProjection `json:"projections"`
}

// AnalysisResult is the full output of one analysis pass.
type AnalysisResult struct {
	GeneratedAt     time.Time             `json:"generated_at"`
	Projections     []MaterialProjection  `json:"projections"`
	LowSupply       []MaterialProjection  `json:"low_supply"`
	Schedule        []ScheduledSupplyRun  `json:"schedule"`
	CadenceWarnings []SupplyRunAssignment `json:"cadence_warnings"`
}
