package analysis

import (
	"sort"
	"time"

	"github.com/materialops/supplyrun/internal/domain"
)

// sortByDate orders records by purchase date ascending, stable so same-day
// rows keep their input order.
func sortByDate(records []domain.PurchaseRecord) []domain.PurchaseRecord {
	sorted := make([]domain.PurchaseRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PurchaseDate.Before(sorted[j].PurchaseDate)
	})
	return sorted
}

// mergeSameDay collapses purchases of the same material on the same calendar
// day into one record, summing units, quantity and cost. Without this a
// multi-line same-day purchase would create a zero-duration interval and
// corrupt the rate estimate. Input must be date-sorted.
func mergeSameDay(records []domain.PurchaseRecord) []domain.PurchaseRecord {
	if len(records) == 0 {
		return nil
	}

	merged := make([]domain.PurchaseRecord, 0, len(records))
	current := records[0]
	for _, rec := range records[1:] {
		if sameDay(current.PurchaseDate, rec.PurchaseDate) {
			current = combine(current, rec)
			continue
		}
		merged = append(merged, current)
		current = rec
	}
	merged = append(merged, current)
	return merged
}

// sameDay reports whether two timestamps fall on the same calendar day in UTC.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// combine folds rec into acc, summing the additive fields.
func combine(acc, rec domain.PurchaseRecord) domain.PurchaseRecord {
	acc.UnitsPurchased = sumOptional(acc.UnitsPurchased, rec.UnitsPurchased)
	acc.Quantity = sumOptional(acc.Quantity, rec.Quantity)
	acc.TotalCost += rec.TotalCost
	if acc.Unit == "" {
		acc.Unit = rec.Unit
	}
	if acc.Source == "" {
		acc.Source = rec.Source
	}
	if acc.UnitsPurchased != nil && *acc.UnitsPurchased > 0 {
		unitCost := acc.TotalCost / *acc.UnitsPurchased
		acc.UnitCost = &unitCost
	}
	return acc
}

// sumOptional adds two optional values; nil+nil stays nil, nil+x is x.
func sumOptional(a, b *float64) *float64 {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	sum := *a + *b
	return &sum
}

// modalUnit returns the most frequently occurring unit string, falling back to
// the last record's unit. Ties break toward the unit seen first.
func modalUnit(records []domain.PurchaseRecord) string {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, rec := range records {
		if rec.Unit == "" {
			continue
		}
		if _, seen := counts[rec.Unit]; !seen {
			order = append(order, rec.Unit)
		}
		counts[rec.Unit]++
	}

	best := ""
	bestCount := 0
	for _, unit := range order {
		if counts[unit] > bestCount {
			best = unit
			bestCount = counts[unit]
		}
	}
	if best == "" && len(records) > 0 {
		best = records[len(records)-1].Unit
	}
	return best
}

// buildIntervals constructs usage intervals between consecutive merged
// purchases. Intervals longer than MaxIntervalDays are dropped before
// construction: extremely sparse purchases are unreliable for rate inference,
// not long observations. The retained history is capped to the most recent
// MaxIntervals.
func buildIntervals(merged []domain.PurchaseRecord, cfg Config) []domain.UsageInterval {
	intervals := make([]domain.UsageInterval, 0, len(merged))
	for i := 0; i+1 < len(merged); i++ {
		start := merged[i].PurchaseDate
		end := merged[i+1].PurchaseDate
		if end.Sub(start).Hours()/24 > cfg.MaxIntervalDays {
			continue
		}
		iv, ok := domain.NewUsageInterval(start, end, merged[i].UnitsPurchased, cfg.MinIntervalDays)
		if !ok {
			continue
		}
		intervals = append(intervals, iv)
	}
	if len(intervals) > cfg.MaxIntervals {
		intervals = intervals[len(intervals)-cfg.MaxIntervals:]
	}
	return intervals
}

// purchaseGaps returns the day gaps between consecutive merged purchases,
// floored at MinIntervalDays and capped to the most recent MaxIntervals.
// Unlike buildIntervals this keeps long gaps: the purchase frequency and the
// infrequent-material guard need them.
func purchaseGaps(merged []domain.PurchaseRecord, cfg Config) []float64 {
	gaps := make([]float64, 0, len(merged))
	for i := 0; i+1 < len(merged); i++ {
		gap := merged[i+1].PurchaseDate.Sub(merged[i].PurchaseDate).Hours() / 24
		if gap < cfg.MinIntervalDays {
			gap = cfg.MinIntervalDays
		}
		gaps = append(gaps, gap)
	}
	if len(gaps) > cfg.MaxIntervals {
		gaps = gaps[len(gaps)-cfg.MaxIntervals:]
	}
	return gaps
}

// weightedFrequencyDays is the exponentially decayed weighted average of the
// purchase gaps, most recent weighted highest.
func weightedFrequencyDays(gaps []float64, decay float64) *float64 {
	if len(gaps) == 0 {
		return nil
	}
	weightedSum := 0.0
	weightTotal := 0.0
	weight := 1.0
	for i := len(gaps) - 1; i >= 0; i-- {
		weightedSum += gaps[i] * weight
		weightTotal += weight
		weight *= decay
	}
	freq := weightedSum / weightTotal
	return &freq
}
