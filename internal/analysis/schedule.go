package analysis

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/materialops/supplyrun/internal/domain"
)

// buildSchedule assigns every projected material to one of a sequence of
// evenly spaced future supply runs and recommends what to buy at that run.
//
// Assignment uses the lower bound of the remaining-supply window when
// available (the pessimistic estimate), else the point estimate: the material
// goes on the latest run it is still expected to survive to, or the first run
// when no such run exists. Materials that cannot survive one full cadence
// cycle are flagged as cadence violations; those without a usable bound or
// with low confidence are flagged unreliable. Both kinds are collected into
// the warnings list regardless of their run assignment.
func buildSchedule(projections []domain.MaterialProjection, cfg Config, now time.Time) ([]domain.ScheduledSupplyRun, []domain.SupplyRunAssignment) {
	cadence := cfg.CadenceIntervalDays
	if cadence < 1 {
		cadence = 1
	}
	horizon := math.Max(cfg.UpcomingHorizonDays, cadence)

	runCount := int(horizon / cadence)
	if runCount < 1 {
		runCount = 1
	}
	runs := make([]domain.ScheduledSupplyRun, runCount)
	for i := range runs {
		offset := cadence * float64(i+1)
		runs[i] = domain.ScheduledSupplyRun{
			RunDate:     now.Add(time.Duration(offset * 24 * float64(time.Hour))),
			OffsetDays:  offset,
			Assignments: make([]domain.SupplyRunAssignment, 0),
			TotalCost:   decimal.Zero,
		}
	}

	warnings := make([]domain.SupplyRunAssignment, 0)
	for _, p := range projections {
		lower := lowerBound(p)
		runIdx := 0
		if lower != nil {
			for i := len(runs) - 1; i >= 0; i-- {
				if runs[i].OffsetDays <= *lower {
					runIdx = i
					break
				}
			}
		}
		run := &runs[runIdx]

		a := domain.SupplyRunAssignment{
			Material:              p.Material,
			Unit:                  p.Unit,
			RunDate:               run.RunDate,
			RunOffsetDays:         run.OffsetDays,
			LowerDaysAvailable:    lower,
			ExpectedDaysAvailable: p.DaysUntilRunout,
			ViolatesCadence:       lower != nil && *lower < cadence,
			IsUnreliable:          lower == nil || p.UsageConfidence < minimumReliableConfidence,
		}
		if lower != nil {
			buffer := *lower - run.OffsetDays
			a.BufferDays = &buffer
		}

		a.RecommendedQuantity = recommendQuantity(p, run.OffsetDays, cadence)
		if a.RecommendedQuantity > 0 && p.BestUnitCost != nil {
			cost := decimal.NewFromFloat(a.RecommendedQuantity).
				Mul(decimal.NewFromFloat(*p.BestUnitCost)).
				Round(2)
			a.RecommendedCost = &cost
			run.TotalCost = run.TotalCost.Add(cost)
		}

		run.Assignments = append(run.Assignments, a)
		if a.ViolatesCadence || a.IsUnreliable {
			warnings = append(warnings, a)
		}
	}

	return runs, warnings
}

// lowerBound picks the conservative days-available estimate: the window's
// lower bound when present, else the point estimate.
func lowerBound(p domain.MaterialProjection) *float64 {
	if p.RemainingSupply != nil {
		lower := p.RemainingSupply.LowerDays
		return &lower
	}
	return p.DaysUntilRunout
}

// recommendQuantity sizes the purchase to cover usage until the following run:
// usage over one cadence interval minus the units projected on hand at the run
// date. Without a usage rate the average merged purchase stands in, one
// typical purchase covering one typical cycle.
func recommendQuantity(p domain.MaterialProjection, offset, cadence float64) float64 {
	if p.UsagePerDay == nil || *p.UsagePerDay <= 0 {
		if p.AvgUnitsPurchased != nil {
			return *p.AvgUnitsPurchased
		}
		if p.LastUnitsPurchased != nil {
			return *p.LastUnitsPurchased
		}
		return 0
	}

	usage := *p.UsagePerDay
	onHand := 0.0
	switch {
	case p.LastUnitsPurchased != nil:
		onHand = math.Max(*p.LastUnitsPurchased-usage*(p.DaysSinceLastPurchase+offset), 0)
	case p.UnitsRemaining != nil:
		onHand = math.Max(*p.UnitsRemaining-usage*offset, 0)
	}

	return math.Max(usage*cadence-onHand, 0)
}
