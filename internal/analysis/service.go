// internal/analysis/service.go
package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/materialops/supplyrun/internal/domain"
	"github.com/materialops/supplyrun/pkg/logger"
)

// minimumReliableConfidence gates runout dates and supply windows: estimates
// below it must not silently drive scheduling decisions.
const minimumReliableConfidence = 0.2

// Service builds per-material purchase projections and the supply-run schedule
// from a normalized purchase table. It holds no mutable state across calls:
// Analyze reads its inputs and returns a freshly constructed result, so
// concurrent invocations are safe.
type Service struct {
	cfg       Config
	estimator *KalmanUsageEstimator
	log       zerolog.Logger
}

// NewService creates an analysis service. Zero-valued config fields are
// replaced with defaults.
func NewService(cfg Config) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		cfg:       cfg,
		estimator: NewKalmanUsageEstimator(cfg.Kalman),
		log:       logger.Component("analysis"),
	}
}

// Config returns the effective configuration after defaulting.
func (s *Service) Config() Config {
	return s.cfg
}

// Analyze builds the full analytics result for the given purchase table. The
// now timestamp pins the analysis reference time; a zero value uses the wall
// clock. Materials with fewer merged purchases than MinPurchaseCount are
// excluded from the result set.
func (s *Service) Analyze(records []domain.PurchaseRecord, now time.Time) *domain.AnalysisResult {
	if now.IsZero() {
		now = time.Now()
	}

	byMaterial := make(map[string][]domain.PurchaseRecord)
	names := make([]string, 0)
	for _, rec := range records {
		if rec.Material == "" {
			continue
		}
		if _, seen := byMaterial[rec.Material]; !seen {
			names = append(names, rec.Material)
		}
		byMaterial[rec.Material] = append(byMaterial[rec.Material], rec)
	}
	sort.Strings(names)

	projections := make([]domain.MaterialProjection, 0, len(names))
	for _, name := range names {
		group := sortByDate(byMaterial[name])
		merged := mergeSameDay(group)
		if len(merged) < s.cfg.MinPurchaseCount {
			s.log.Debug().
				Str("material", name).
				Int("purchases", len(merged)).
				Msg("material below minimum purchase count, skipped")
			continue
		}
		projections = append(projections, s.analyzeMaterial(name, group, merged, now))
	}

	sortProjections(projections)

	lowSupply := make([]domain.MaterialProjection, 0)
	for _, p := range projections {
		if p.DaysUntilRunout != nil && *p.DaysUntilRunout <= s.cfg.LowSupplyThresholdDays {
			lowSupply = append(lowSupply, p)
		}
	}

	schedule, warnings := buildSchedule(projections, s.cfg, now)

	return &domain.AnalysisResult{
		GeneratedAt:     now,
		Projections:     projections,
		LowSupply:       lowSupply,
		Schedule:        schedule,
		CadenceWarnings: warnings,
	}
}

// analyzeMaterial derives one material's projection from its raw and merged
// purchase history.
func (s *Service) analyzeMaterial(material string, raw, merged []domain.PurchaseRecord, now time.Time) domain.MaterialProjection {
	last := merged[len(merged)-1]
	daysSince := math.Max(now.Sub(last.PurchaseDate).Hours()/24, 0)

	p := domain.MaterialProjection{
		Material:              material,
		Unit:                  modalUnit(merged),
		TotalPurchases:        len(merged),
		LastPurchaseDate:      last.PurchaseDate,
		LastUnitsPurchased:    last.UnitsPurchased,
		AvgUnitsPurchased:     averageUnits(merged),
		DaysSinceLastPurchase: daysSince,
	}

	gaps := purchaseGaps(merged, s.cfg)
	p.PurchaseFrequencyDays = weightedFrequencyDays(gaps, s.cfg.DecayFactor)

	p.Infrequent = p.PurchaseFrequencyDays != nil && *p.PurchaseFrequencyDays > s.cfg.InfrequentThresholdDays

	intervals := buildIntervals(merged, s.cfg)
	switch {
	case p.Infrequent:
		// Too sporadic for rate inference; frequency fallback only.
	case len(intervals) > 0:
		est := s.estimator.Estimate(intervals)
		p.UsagePerDay = est.UsagePerDay
		p.UsageVariance = est.UsageVariance
		p.UsageConfidence = est.Confidence
	case len(merged) == 1:
		// A lone purchase gives the single-observation confidence floor but
		// no rate: there is no consumption window to measure.
		p.UsageConfidence = 0.15
	}

	p.ReorderBiasDays = s.reorderBias(merged)

	s.projectRunout(&p, now, daysSince)
	s.attachSupplyWindow(&p, daysSince)
	p.BestPriceSource, p.BestUnitCost = bestPriceSource(raw)

	return p
}

// projectRunout fills units remaining, days until runout and the runout date.
// Usage-based projection applies only at or above the reliability gate; below
// it (or with no usage rate at all) the bias-adjusted purchase frequency
// stands in for the runout horizon, since buying again is the best available
// proxy for running out.
func (s *Service) projectRunout(p *domain.MaterialProjection, now time.Time, daysSince float64) {
	bias := p.ReorderBiasDays

	usable := p.UsagePerDay != nil && *p.UsagePerDay > 0 &&
		p.UsageConfidence >= minimumReliableConfidence &&
		p.LastUnitsPurchased != nil

	if usable {
		usage := *p.UsagePerDay
		remaining := math.Max(*p.LastUnitsPurchased-usage*daysSince, 0)
		days := remaining / usage
		days = math.Max(days-bias, 0)
		remaining = days * usage

		runout := now.Add(time.Duration(days * 24 * float64(time.Hour)))
		p.UnitsRemaining = &remaining
		p.DaysUntilRunout = &days
		p.EstimatedRunoutDate = &runout
		return
	}

	if p.PurchaseFrequencyDays != nil {
		days := math.Max(*p.PurchaseFrequencyDays-bias, 0)
		runout := now.Add(time.Duration(days * 24 * float64(time.Hour)))
		p.DaysUntilRunout = &days
		p.EstimatedRunoutDate = &runout
	}
}

// attachSupplyWindow computes the probabilistic remaining-supply bounds by
// moment-matching a lognormal to the implied total-supply-duration
// distribution and evaluating its central-interval quantiles in log space.
func (s *Service) attachSupplyWindow(p *domain.MaterialProjection, daysSince float64) {
	if p.UsageConfidence < minimumReliableConfidence {
		return
	}
	if p.UsagePerDay == nil || *p.UsagePerDay <= 0 ||
		p.UsageVariance == nil || *p.UsageVariance <= 0 ||
		p.LastUnitsPurchased == nil || *p.LastUnitsPurchased <= 0 {
		return
	}

	usage := *p.UsagePerDay
	units := *p.LastUnitsPurchased

	// Delta-method mean/variance of total supply days T = units/usage.
	mean := units / usage
	variance := units * units / math.Pow(usage, 4) * *p.UsageVariance
	if mean <= 0 || variance <= 0 {
		return
	}

	logVar := math.Log(1 + variance/(mean*mean))
	logMean := math.Log(mean) - logVar/2
	logStd := math.Sqrt(logVar)

	// z for the central interval, e.g. 1.2816 at 80% (10th/90th percentile).
	z := math.Sqrt2 * math.Erfinv(s.cfg.WindowConfidence)

	bias := p.ReorderBiasDays
	lower := math.Max(math.Exp(logMean-z*logStd)-daysSince-bias, 0)
	upper := math.Max(math.Exp(logMean+z*logStd)-daysSince-bias, 0)
	if upper < lower {
		upper = lower
	}

	p.RemainingSupply = &domain.RemainingSupplyWindow{
		LowerDays:  lower,
		UpperDays:  upper,
		Confidence: s.cfg.WindowConfidence,
	}
}

// reorderBias estimates the systematic tendency to reorder before stock runs
// out. It walks forward through the merged history: at each point it
// re-estimates usage from the truncated history, predicts days until the next
// purchase, and compares against the actual gap. The correction is the median
// of the signed errors, robust to one-off bulk buys.
func (s *Service) reorderBias(merged []domain.PurchaseRecord) float64 {
	var errs []float64
	for k := 2; k < len(merged); k++ {
		hist := merged[:k]
		intervals := buildIntervals(hist, s.cfg)
		if len(intervals) == 0 {
			continue
		}
		est := s.estimator.Estimate(intervals)
		if est.UsagePerDay == nil || *est.UsagePerDay <= 0 {
			continue
		}
		prev := hist[len(hist)-1]
		if prev.UnitsPurchased == nil {
			continue
		}
		predicted := *prev.UnitsPurchased / *est.UsagePerDay
		actual := merged[k].PurchaseDate.Sub(prev.PurchaseDate).Hours() / 24
		errs = append(errs, predicted-actual)
	}
	return median(errs)
}

// bestPriceSource finds the purchase source with the minimum observed unit
// cost, ties broken by encounter order.
func bestPriceSource(records []domain.PurchaseRecord) (string, *float64) {
	source := ""
	var best *float64
	for _, rec := range records {
		if rec.UnitCost == nil || rec.Source == "" {
			continue
		}
		if best == nil || *rec.UnitCost < *best {
			cost := *rec.UnitCost
			best = &cost
			source = rec.Source
		}
	}
	return source, best
}

func averageUnits(records []domain.PurchaseRecord) *float64 {
	sum := 0.0
	count := 0
	for _, rec := range records {
		if rec.UnitsPurchased == nil {
			continue
		}
		sum += *rec.UnitsPurchased
		count++
	}
	if count == 0 {
		return nil
	}
	avg := sum / float64(count)
	return &avg
}

// sortProjections orders by ascending days-until-runout with nils last,
// tie-broken by material name for deterministic output.
func sortProjections(projections []domain.MaterialProjection) {
	sort.SliceStable(projections, func(i, j int) bool {
		a, b := projections[i].DaysUntilRunout, projections[j].DaysUntilRunout
		switch {
		case a == nil && b == nil:
			return projections[i].Material < projections[j].Material
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a < *b
		default:
			return projections[i].Material < projections[j].Material
		}
	})
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// GroupUpcoming buckets projections with a runout estimate into fixed-width
// day windows, the legacy week-at-a-glance view.
func (s *Service) GroupUpcoming(projections []domain.MaterialProjection) []domain.UpcomingGroup {
	window := s.cfg.GroupingWindowDays
	buckets := make(map[int][]domain.MaterialProjection)
	maxBucket := -1
	for _, p := range projections {
		if p.DaysUntilRunout == nil {
			continue
		}
		idx := int(*p.DaysUntilRunout / window)
		buckets[idx] = append(buckets[idx], p)
		if idx > maxBucket {
			maxBucket = idx
		}
	}

	groups := make([]domain.UpcomingGroup, 0, len(buckets))
	for idx := 0; idx <= maxBucket; idx++ {
		members, ok := buckets[idx]
		if !ok {
			continue
		}
		groups = append(groups, domain.UpcomingGroup{
			WindowStartDays: float64(idx) * window,
			WindowEndDays:   float64(idx+1) * window,
			Projections:     members,
		})
	}
	return groups
}
