package analysis

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/materialops/supplyrun/internal/domain"
)

func tunerFixture() []domain.PurchaseRecord {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]domain.PurchaseRecord, 0, 16)
	for i := 0; i < 8; i++ {
		records = append(records, purchase("flour", start.AddDate(0, 0, i*10), 500, 10, "market"))
		records = append(records, purchase("rice", start.AddDate(0, 0, i*7), 700, 12, "market"))
	}
	return records
}

func TestTuneKalmanParamsPicksFiniteBest(t *testing.T) {
	records := tunerFixture()

	best, err := TuneKalmanParams(context.Background(), records, DefaultConfig(), nil, 4)
	require.NoError(t, err)
	assert.False(t, math.IsInf(best.Score, 1), "steady histories must be predictable")
	assert.Equal(t, len(DefaultCandidateGrid()), best.Evals)
	assert.Greater(t, best.Params.InitialProcessVariance, 0.0)
}

func TestTuneKalmanParamsDeterministic(t *testing.T) {
	records := tunerFixture()
	candidates := DefaultCandidateGrid()[:6]

	first, err := TuneKalmanParams(context.Background(), records, DefaultConfig(), candidates, 3)
	require.NoError(t, err)
	second, err := TuneKalmanParams(context.Background(), records, DefaultConfig(), candidates, 1)
	require.NoError(t, err)

	assert.Equal(t, first.Params, second.Params)
	assert.Equal(t, first.Score, second.Score)
}

func TestTuneKalmanParamsRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := TuneKalmanParams(ctx, tunerFixture(), DefaultConfig(), nil, 2)
	assert.Error(t, err)
}

func TestWalkForwardScoreEmptyHistories(t *testing.T) {
	score := walkForwardScore(nil, DefaultConfig())
	assert.True(t, math.IsInf(score, 1))
}
