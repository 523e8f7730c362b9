package analysis

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/materialops/supplyrun/internal/domain"
)

func purchase(material string, date time.Time, units, totalCost float64, source string) domain.PurchaseRecord {
	unitCost := totalCost / units
	return domain.PurchaseRecord{
		Material:       material,
		PurchaseDate:   date,
		Unit:           "g",
		UnitsPurchased: &units,
		TotalCost:      totalCost,
		UnitCost:       &unitCost,
		Source:         source,
	}
}

// steadyHistory is seven purchases of 500 units spaced exactly ten days apart.
func steadyHistory(material string) ([]domain.PurchaseRecord, time.Time) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]domain.PurchaseRecord, 0, 7)
	for i := 0; i < 7; i++ {
		records = append(records, purchase(material, start.AddDate(0, 0, i*10), 500, 10, "corner store"))
	}
	return records, start.AddDate(0, 0, 60)
}

func TestAnalyzeConstantUsage(t *testing.T) {
	records, lastDate := steadyHistory("flour")
	svc := NewService(DefaultConfig())

	result := svc.Analyze(records, lastDate)
	require.Len(t, result.Projections, 1)

	p := result.Projections[0]
	assert.Equal(t, "flour", p.Material)
	assert.Equal(t, 7, p.TotalPurchases)
	require.NotNil(t, p.UsagePerDay)
	assert.InDelta(t, 50, *p.UsagePerDay, 2)
	assert.Greater(t, p.UsageConfidence, 0.5)
	require.NotNil(t, p.DaysUntilRunout)
	assert.InDelta(t, 10, *p.DaysUntilRunout, 0.5)
	require.NotNil(t, p.PurchaseFrequencyDays)
	assert.InDelta(t, 10, *p.PurchaseFrequencyDays, 1e-6)
	require.NotNil(t, p.EstimatedRunoutDate)
}

func TestAnalyzeInfrequentMaterial(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPurchaseCount = 2
	svc := NewService(cfg)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []domain.PurchaseRecord{
		purchase("saffron", start, 10, 50, "market"),
		purchase("saffron", start.AddDate(0, 0, 200), 10, 50, "market"),
	}

	result := svc.Analyze(records, start.AddDate(0, 0, 200))
	require.Len(t, result.Projections, 1)

	p := result.Projections[0]
	assert.True(t, p.Infrequent)
	assert.Nil(t, p.UsagePerDay)
	assert.Equal(t, 0.0, p.UsageConfidence)
	// Frequency-only fallback: the bias-adjusted interval itself.
	require.NotNil(t, p.DaysUntilRunout)
	assert.InDelta(t, 200, *p.DaysUntilRunout, 1e-6)
	assert.Nil(t, p.RemainingSupply)
}

func TestAnalyzeSinglePurchase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPurchaseCount = 1
	svc := NewService(cfg)

	start := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	records := []domain.PurchaseRecord{purchase("vanilla", start, 5, 20, "market")}

	result := svc.Analyze(records, start.AddDate(0, 0, 3))
	require.Len(t, result.Projections, 1)

	p := result.Projections[0]
	assert.Equal(t, 1, p.TotalPurchases)
	assert.Equal(t, 0.15, p.UsageConfidence)
	assert.Nil(t, p.UsagePerDay)
	assert.Nil(t, p.DaysUntilRunout)
}

func TestAnalyzeBelowMinimumPurchaseCountExcluded(t *testing.T) {
	svc := NewService(DefaultConfig()) // min purchase count 3

	start := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	records := []domain.PurchaseRecord{
		purchase("vanilla", start, 5, 20, "market"),
		purchase("vanilla", start.AddDate(0, 0, 10), 5, 20, "market"),
	}

	result := svc.Analyze(records, start.AddDate(0, 0, 20))
	assert.Empty(t, result.Projections)
}

func TestAnalyzeLowConfidenceGatesRunout(t *testing.T) {
	// Two purchases yield a single observation: confidence 0.15, below the
	// gate. The runout must come from the frequency fallback, not the rate.
	cfg := DefaultConfig()
	cfg.MinPurchaseCount = 2
	svc := NewService(cfg)

	start := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	records := []domain.PurchaseRecord{
		purchase("pepper", start, 90, 9, "market"),
		purchase("pepper", start.AddDate(0, 0, 30), 90, 9, "market"),
	}

	result := svc.Analyze(records, start.AddDate(0, 0, 30))
	require.Len(t, result.Projections, 1)

	p := result.Projections[0]
	require.NotNil(t, p.UsagePerDay)
	assert.Equal(t, 0.15, p.UsageConfidence)
	assert.Nil(t, p.UnitsRemaining, "usage-based projection must not run below the gate")
	require.NotNil(t, p.DaysUntilRunout)
	assert.InDelta(t, 30, *p.DaysUntilRunout, 1e-6)
	assert.Nil(t, p.RemainingSupply)
}

func TestAnalyzeSupplyWindowOrdering(t *testing.T) {
	records, lastDate := steadyHistory("flour")
	svc := NewService(DefaultConfig())

	result := svc.Analyze(records, lastDate)
	require.Len(t, result.Projections, 1)

	window := result.Projections[0].RemainingSupply
	require.NotNil(t, window)
	assert.LessOrEqual(t, window.LowerDays, window.UpperDays)
	assert.Equal(t, 0.8, window.Confidence)
}

func TestAnalyzeBestPriceSource(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []domain.PurchaseRecord{
		purchase("flour", start, 500, 15, "corner store"),                 // 0.03/unit
		purchase("flour", start.AddDate(0, 0, 10), 500, 10, "wholesaler"), // 0.02/unit
		purchase("flour", start.AddDate(0, 0, 20), 500, 10, "discounter"), // 0.02/unit, later
	}
	svc := NewService(DefaultConfig())

	result := svc.Analyze(records, start.AddDate(0, 0, 20))
	require.Len(t, result.Projections, 1)

	p := result.Projections[0]
	assert.Equal(t, "wholesaler", p.BestPriceSource, "ties break toward first seen")
	require.NotNil(t, p.BestUnitCost)
	assert.InDelta(t, 0.02, *p.BestUnitCost, 1e-9)
}

func TestAnalyzeIdempotent(t *testing.T) {
	flour, _ := steadyHistory("flour")
	rice, lastDate := steadyHistory("rice")
	records := append(flour, rice...)
	records = append(records, purchase("salt", lastDate.AddDate(0, 0, -5), 100, 2, "market"))

	svc := NewService(DefaultConfig())
	first := svc.Analyze(records, lastDate)
	second := svc.Analyze(records, lastDate)

	assert.True(t, reflect.DeepEqual(first, second), "pinned-now analysis must be bit-identical")
}

func TestAnalyzeSortsProjectionsByRunout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPurchaseCount = 1
	svc := NewService(cfg)

	fast, _ := steadyHistory("fast")
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	// Slow consumer: the same amount lasts twenty days instead of ten.
	slow := make([]domain.PurchaseRecord, 0, 4)
	for i := 0; i < 4; i++ {
		slow = append(slow, purchase("slow", start.AddDate(0, 0, i*20), 500, 10, "market"))
	}
	// No-estimate material: single purchase sorts last.
	single := purchase("single", start.AddDate(0, 0, 60), 10, 1, "market")

	records := append(append(fast, slow...), single)
	result := svc.Analyze(records, start.AddDate(0, 0, 60))
	require.Len(t, result.Projections, 3)
	assert.Equal(t, "fast", result.Projections[0].Material)
	assert.Equal(t, "slow", result.Projections[1].Material)
	assert.Equal(t, "single", result.Projections[2].Material)
	assert.Nil(t, result.Projections[2].DaysUntilRunout)
}

func TestAnalyzeLowSupplySubset(t *testing.T) {
	records, lastDate := steadyHistory("flour")
	cfg := DefaultConfig()
	cfg.LowSupplyThresholdDays = 12
	svc := NewService(cfg)

	result := svc.Analyze(records, lastDate)
	require.Len(t, result.LowSupply, 1)

	cfg.LowSupplyThresholdDays = 5
	svc = NewService(cfg)
	result = svc.Analyze(records, lastDate)
	assert.Empty(t, result.LowSupply)
}

func TestGroupUpcoming(t *testing.T) {
	svc := NewService(DefaultConfig())

	d3, d10 := 3.0, 10.0
	projections := []domain.MaterialProjection{
		{Material: "a", DaysUntilRunout: &d3},
		{Material: "b", DaysUntilRunout: &d10},
		{Material: "c"},
	}

	groups := svc.GroupUpcoming(projections)
	require.Len(t, groups, 2)
	assert.Equal(t, 0.0, groups[0].WindowStartDays)
	assert.Equal(t, "a", groups[0].Projections[0].Material)
	assert.Equal(t, 7.0, groups[1].WindowStartDays)
	assert.Equal(t, "b", groups[1].Projections[0].Material)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, median(nil))
	assert.Equal(t, 2.0, median([]float64{2}))
	assert.Equal(t, 2.5, median([]float64{1, 4, 2, 3}))
	assert.Equal(t, 3.0, median([]float64{5, 1, 3}))
}
