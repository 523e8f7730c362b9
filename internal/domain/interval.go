package domain

import "time"

// UsageInterval is the consumption window between two consecutive purchases of
// a material. Units is the amount bought at the interval's starting purchase,
// assumed consumed over the interval. UsagePerDay is nil for zero-unit
// intervals: they carry timing information but no rate signal.
type UsageInterval struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Units        float64   `json:"units"`
	DurationDays float64   `json:"duration_days"`
	UsagePerDay  *float64  `json:"usage_per_day"`
}

// NewUsageInterval builds a usage interval between two purchases. It returns
// false when units is missing or negative. The duration is floored at
// minDurationDays, which also absorbs same-timestamp or out-of-order pairs.
func NewUsageInterval(start, end time.Time, units *float64, minDurationDays float64) (UsageInterval, bool) {
	if units == nil || *units < 0 {
		return UsageInterval{}, false
	}
	if minDurationDays <= 0 {
		minDurationDays = 1
	}

	duration := end.Sub(start).Hours() / 24
	if duration < minDurationDays {
		duration = minDurationDays
	}

	iv := UsageInterval{
		Start:        start,
		End:          end,
		Units:        *units,
		DurationDays: duration,
	}
	if iv.Units > 0 {
		rate := iv.Units / duration
		iv.UsagePerDay = &rate
	}
	return iv, true
}
