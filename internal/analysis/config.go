package analysis

// Config holds the tunables for the purchase analysis service. Zero values are
// replaced with defaults by withDefaults, so a partially filled struct is fine.
type Config struct {
	// DecayFactor weights recent interval durations higher when averaging
	// purchase frequency (weight = DecayFactor^age_rank).
	DecayFactor float64

	// MaxIntervals caps the retained interval history per material.
	MaxIntervals int

	// MinIntervalDays floors interval durations, guarding against
	// same-timestamp purchase pairs.
	MinIntervalDays float64

	// MaxIntervalDays drops intervals longer than this from rate inference.
	MaxIntervalDays float64

	// InfrequentThresholdDays marks materials whose weighted purchase
	// frequency exceeds it as too sporadic for rate-based inference.
	InfrequentThresholdDays float64

	// GroupingWindowDays is the bucket width of the legacy upcoming view.
	GroupingWindowDays float64

	// UpcomingHorizonDays bounds how far out supply runs are scheduled.
	UpcomingHorizonDays float64

	// LowSupplyThresholdDays selects projections for the low-supply subset.
	LowSupplyThresholdDays float64

	// MinPurchaseCount excludes materials with fewer merged purchases.
	MinPurchaseCount int

	// CadenceIntervalDays is the spacing between scheduled supply runs.
	CadenceIntervalDays float64

	// WindowConfidence is the central-interval width of the remaining-supply
	// window (0.8 means the 10th/90th percentile pair).
	WindowConfidence float64

	// Kalman holds the estimator hyperparameters, usually loaded from the
	// tuned params file.
	Kalman KalmanParams
}

// DefaultConfig returns the analysis configuration defaults.
func DefaultConfig() Config {
	return Config{
		DecayFactor:             0.6,
		MaxIntervals:            6,
		MinIntervalDays:         1,
		MaxIntervalDays:         120,
		InfrequentThresholdDays: 120,
		GroupingWindowDays:      7,
		UpcomingHorizonDays:     60,
		LowSupplyThresholdDays:  7,
		MinPurchaseCount:        3,
		CadenceIntervalDays:     14,
		WindowConfidence:        0.8,
		Kalman:                  DefaultKalmanParams(),
	}
}

// withDefaults fills zero fields and clamps values that must stay positive.
// Scheduling has to produce an answer even with a broken configuration, so a
// non-positive cadence is clamped to 1 rather than rejected.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DecayFactor <= 0 || c.DecayFactor > 1 {
		c.DecayFactor = def.DecayFactor
	}
	if c.MaxIntervals <= 0 {
		c.MaxIntervals = def.MaxIntervals
	}
	if c.MinIntervalDays <= 0 {
		c.MinIntervalDays = def.MinIntervalDays
	}
	if c.MaxIntervalDays <= 0 {
		c.MaxIntervalDays = def.MaxIntervalDays
	}
	if c.InfrequentThresholdDays <= 0 {
		c.InfrequentThresholdDays = def.InfrequentThresholdDays
	}
	if c.GroupingWindowDays <= 0 {
		c.GroupingWindowDays = def.GroupingWindowDays
	}
	if c.UpcomingHorizonDays <= 0 {
		c.UpcomingHorizonDays = def.UpcomingHorizonDays
	}
	if c.LowSupplyThresholdDays <= 0 {
		c.LowSupplyThresholdDays = def.LowSupplyThresholdDays
	}
	if c.MinPurchaseCount <= 0 {
		c.MinPurchaseCount = def.MinPurchaseCount
	}
	if c.CadenceIntervalDays == 0 {
		c.CadenceIntervalDays = def.CadenceIntervalDays
	} else if c.CadenceIntervalDays < 1 {
		c.CadenceIntervalDays = 1
	}
	if c.WindowConfidence <= 0 || c.WindowConfidence >= 1 {
		c.WindowConfidence = def.WindowConfidence
	}
	if c.UpcomingHorizonDays < c.CadenceIntervalDays {
		c.UpcomingHorizonDays = c.CadenceIntervalDays
	}
	c.Kalman = c.Kalman.withDefaults()
	return c
}
