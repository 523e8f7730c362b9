package analysis

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/materialops/supplyrun/internal/domain"
	"github.com/materialops/supplyrun/pkg/logger"
)

// TuneResult is the outcome of a hyperparameter sweep.
type TuneResult struct {
	Params KalmanParams
	Score  float64
	Evals  int
}

// DefaultCandidateGrid returns the hyperparameter combinations swept by the
// offline tuner: initial variances on a coarse log grid around the defaults.
func DefaultCandidateGrid() []KalmanParams {
	processVars := []float64{0.001, 0.005, 0.01, 0.05, 0.1}
	measurementVars := []float64{0.01, 0.05, 0.1, 0.5, 1.0}

	grid := make([]KalmanParams, 0, len(processVars)*len(measurementVars))
	for _, q := range processVars {
		for _, r := range measurementVars {
			p := DefaultKalmanParams()
			p.InitialProcessVariance = q
			p.InitialMeasurementVariance = r
			grid = append(grid, p)
		}
	}
	return grid
}

// TuneKalmanParams scores each candidate by walk-forward prediction error over
// the purchase history and returns the best. Candidates are independent, so
// they run concurrently up to the given parallelism. Each evaluation builds
// its own estimator; nothing is shared.
func TuneKalmanParams(ctx context.Context, records []domain.PurchaseRecord, cfg Config, candidates []KalmanParams, parallelism int) (TuneResult, error) {
	if len(candidates) == 0 {
		candidates = DefaultCandidateGrid()
	}
	if parallelism < 1 {
		parallelism = 4
	}
	cfg = cfg.withDefaults()

	histories := mergedHistories(records, cfg)

	scores := make([]float64, len(candidates))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, candidate := range candidates {
		i, candidate := i, candidate
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			candCfg := cfg
			candCfg.Kalman = candidate
			scores[i] = walkForwardScore(histories, candCfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return TuneResult{}, err
	}

	best := TuneResult{Params: candidates[0], Score: scores[0], Evals: len(candidates)}
	for i := 1; i < len(candidates); i++ {
		if scores[i] < best.Score {
			best.Params = candidates[i]
			best.Score = scores[i]
		}
	}

	log := logger.Component("tuner")
	log.Info().
		Float64("score", best.Score).
		Float64("initial_process_variance", best.Params.InitialProcessVariance).
		Float64("initial_measurement_variance", best.Params.InitialMeasurementVariance).
		Int("candidates", best.Evals).
		Msg("hyperparameter sweep complete")

	return best, nil
}

// mergedHistories groups and merges the purchase table once so every
// candidate scores against identical inputs.
func mergedHistories(records []domain.PurchaseRecord, cfg Config) [][]domain.PurchaseRecord {
	byMaterial := make(map[string][]domain.PurchaseRecord)
	order := make([]string, 0)
	for _, rec := range records {
		if rec.Material == "" {
			continue
		}
		if _, seen := byMaterial[rec.Material]; !seen {
			order = append(order, rec.Material)
		}
		byMaterial[rec.Material] = append(byMaterial[rec.Material], rec)
	}

	histories := make([][]domain.PurchaseRecord, 0, len(order))
	for _, name := range order {
		merged := mergeSameDay(sortByDate(byMaterial[name]))
		if len(merged) < 3 {
			continue
		}
		histories = append(histories, merged)
	}
	return histories
}

// walkForwardScore is the mean absolute error of predicted days-until-next-
// purchase across all leave-future-out split points of all histories. Higher
// is worse; histories yielding no prediction score as +Inf so an untunable
// candidate never wins.
func walkForwardScore(histories [][]domain.PurchaseRecord, cfg Config) float64 {
	estimator := NewKalmanUsageEstimator(cfg.Kalman)

	sum := 0.0
	count := 0
	for _, merged := range histories {
		for k := 2; k < len(merged); k++ {
			hist := merged[:k]
			intervals := buildIntervals(hist, cfg)
			if len(intervals) == 0 {
				continue
			}
			est := estimator.Estimate(intervals)
			if est.UsagePerDay == nil || *est.UsagePerDay <= 0 {
				continue
			}
			prev := hist[len(hist)-1]
			if prev.UnitsPurchased == nil {
				continue
			}
			predicted := *prev.UnitsPurchased / *est.UsagePerDay
			actual := merged[k].PurchaseDate.Sub(prev.PurchaseDate).Hours() / 24
			sum += math.Abs(predicted - actual)
			count++
		}
	}
	if count == 0 {
		return math.Inf(1)
	}
	return sum / float64(count)
}
