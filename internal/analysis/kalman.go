package analysis

import (
	"math"

	"github.com/materialops/supplyrun/internal/domain"
)

// KalmanUsageEstimator turns a short, noisy, irregularly spaced sequence of
// per-interval usage observations into a current daily-usage-rate estimate
// with a confidence score.
//
// The model is a local-level (random walk) state space: the latent state is
// the true daily usage rate, drifting between observations with process
// variance scaled by the elapsed duration. Each observed usage_per_day is a
// noisy measurement of the state with one global measurement variance. Both
// variances are re-estimated from the smoothed states by an EM loop.
type KalmanUsageEstimator struct {
	params KalmanParams
}

// NewKalmanUsageEstimator creates an estimator with the given hyperparameters.
func NewKalmanUsageEstimator(params KalmanParams) *KalmanUsageEstimator {
	return &KalmanUsageEstimator{params: params.withDefaults()}
}

// observation is one rate measurement. ElapsedDays is the duration since the
// previous rate-carrying observation, including any zero-unit intervals in
// between: they contribute drift time even though they carry no rate signal.
type observation struct {
	Value       float64
	ElapsedDays float64
}

// Estimate fits the model over the interval sequence. It never fails: with too
// little data or a degenerate recursion it falls back to the simplest
// available estimate with a correspondingly low confidence. A nil UsagePerDay
// in the result means no positive rate could be established.
func (e *KalmanUsageEstimator) Estimate(intervals []domain.UsageInterval) domain.UsageEstimate {
	obs := collectObservations(intervals)
	n := len(obs)

	switch {
	case n == 0:
		return domain.UsageEstimate{
			Confidence:          0,
			Samples:             0,
			ProcessVariance:     e.params.InitialProcessVariance,
			MeasurementVariance: e.params.InitialMeasurementVariance,
		}
	case n == 1:
		// A single data point is never trustworthy.
		return e.rawFallback(obs, 0.15)
	case n < e.params.MinIntervals:
		return e.rawFallback(obs, 0.2)
	}

	q := e.params.InitialProcessVariance
	r := e.params.InitialMeasurementVariance

	var sm smoothed
	prevLL := math.Inf(-1)
	for iter := 0; iter < e.params.MaxEMIterations; iter++ {
		res, ok := runSmoother(obs, q, r)
		if !ok {
			// Degenerate innovation variance: designed fallback, not an error.
			return e.rawFallback(obs, 0.2)
		}
		sm = res

		r = math.Max(measurementVariance(obs, sm), e.params.MinimumMeasurementVariance)
		q = math.Max(processVariance(obs, sm), e.params.MinimumProcessVariance)

		if math.Abs(sm.LogLikelihood-prevLL) < e.params.ConvergenceTolerance {
			break
		}
		prevLL = sm.LogLikelihood
	}

	mean := sm.Mean[n-1]
	variance := sm.Variance[n-1]
	if mean <= 0 {
		// Consumption cannot be negative or exactly zero with any confidence.
		return domain.UsageEstimate{
			Confidence:          0,
			Samples:             n,
			ProcessVariance:     q,
			MeasurementVariance: r,
		}
	}

	return domain.UsageEstimate{
		UsagePerDay:         &mean,
		UsageVariance:       &variance,
		Confidence:          e.confidence(mean, variance, r, n),
		Samples:             n,
		ProcessVariance:     q,
		MeasurementVariance: r,
	}
}

// rawFallback returns the most recent raw observation at the given confidence.
func (e *KalmanUsageEstimator) rawFallback(obs []observation, confidence float64) domain.UsageEstimate {
	last := obs[len(obs)-1].Value
	est := domain.UsageEstimate{
		Confidence:          confidence,
		Samples:             len(obs),
		ProcessVariance:     e.params.InitialProcessVariance,
		MeasurementVariance: e.params.InitialMeasurementVariance,
	}
	if last > 0 {
		est.UsagePerDay = &last
	} else {
		est.Confidence = 0
	}
	return est
}

// confidence blends a signal-to-noise ratio (60%) with sample-size adequacy
// (40%), clamped to [0,1] and rounded to 3 decimals.
func (e *KalmanUsageEstimator) confidence(mean, variance, measurementVar float64, samples int) float64 {
	absMean := math.Abs(mean)
	posteriorStd := math.Sqrt(math.Max(variance, 0))
	measurementStd := math.Sqrt(math.Max(measurementVar, 0))

	snr := 0.0
	if denom := absMean + posteriorStd + measurementStd; denom > 0 {
		snr = absMean / denom
	}
	adequacy := math.Min(1, float64(samples)/float64(e.params.TargetSampleSize))

	c := 0.6*snr + 0.4*adequacy
	c = math.Min(1, math.Max(0, c))
	return math.Round(c*1000) / 1000
}

// collectObservations extracts rate-carrying observations, accumulating the
// duration of skipped zero-unit intervals into the next observation's elapsed
// time.
func collectObservations(intervals []domain.UsageInterval) []observation {
	obs := make([]observation, 0, len(intervals))
	carried := 0.0
	for _, iv := range intervals {
		if iv.UsagePerDay == nil {
			carried += iv.DurationDays
			continue
		}
		obs = append(obs, observation{
			Value:       *iv.UsagePerDay,
			ElapsedDays: iv.DurationDays + carried,
		})
		carried = 0
	}
	return obs
}

// smoothed holds one E-step pass: smoothed state means/variances, lag-one
// cross covariances (CrossCov[t] pairs state t with t-1) and the filter
// log-likelihood.
type smoothed struct {
	Mean          []float64
	Variance      []float64
	CrossCov      []float64
	LogLikelihood float64
}

// runSmoother performs the forward Kalman filter and backward RTS smoother
// pass. It reports ok=false when an innovation variance is non-positive.
func runSmoother(obs []observation, q, r float64) (smoothed, bool) {
	n := len(obs)
	filtMean := make([]float64, n)
	filtVar := make([]float64, n)
	predMean := make([]float64, n)
	predVar := make([]float64, n)

	ll := 0.0
	for t := 0; t < n; t++ {
		if t == 0 {
			// Anchor the prior at the first observation with measurement
			// uncertainty; the EM loop washes out the initialization.
			predMean[0] = obs[0].Value
			predVar[0] = r
		} else {
			predMean[t] = filtMean[t-1]
			predVar[t] = filtVar[t-1] + q*obs[t].ElapsedDays
		}

		innovVar := predVar[t] + r
		if innovVar <= 0 {
			return smoothed{}, false
		}
		innov := obs[t].Value - predMean[t]
		gain := predVar[t] / innovVar

		filtMean[t] = predMean[t] + gain*innov
		filtVar[t] = (1 - gain) * predVar[t]
		ll -= 0.5 * (math.Log(2*math.Pi*innovVar) + innov*innov/innovVar)
	}

	smMean := make([]float64, n)
	smVar := make([]float64, n)
	smGain := make([]float64, n)
	smMean[n-1] = filtMean[n-1]
	smVar[n-1] = filtVar[n-1]

	for t := n - 2; t >= 0; t-- {
		if predVar[t+1] <= 0 {
			return smoothed{}, false
		}
		a := filtVar[t] / predVar[t+1]
		smGain[t] = a
		smMean[t] = filtMean[t] + a*(smMean[t+1]-predMean[t+1])
		smVar[t] = filtVar[t] + a*a*(smVar[t+1]-predVar[t+1])
	}

	cross := make([]float64, n)
	for t := 1; t < n; t++ {
		cross[t] = smGain[t-1] * smVar[t]
	}

	return smoothed{Mean: smMean, Variance: smVar, CrossCov: cross, LogLikelihood: ll}, true
}

// measurementVariance is the M-step update for the observation noise: the mean
// of squared residuals against the smoothed states plus their uncertainty.
func measurementVariance(obs []observation, sm smoothed) float64 {
	sum := 0.0
	for t, o := range obs {
		resid := o.Value - sm.Mean[t]
		sum += resid*resid + sm.Variance[t]
	}
	return sum / float64(len(obs))
}

// processVariance is the M-step update for the state drift noise per day,
// using the lag-one cross covariance to combine adjacent-state uncertainty.
func processVariance(obs []observation, sm smoothed) float64 {
	n := len(obs)
	if n < 2 {
		return 0
	}
	sum := 0.0
	for t := 1; t < n; t++ {
		delta := sm.Mean[t] - sm.Mean[t-1]
		step := delta*delta + sm.Variance[t] + sm.Variance[t-1] - 2*sm.CrossCov[t]
		elapsed := obs[t].ElapsedDays
		if elapsed <= 0 {
			elapsed = 1
		}
		sum += step / elapsed
	}
	return sum / float64(n-1)
}
