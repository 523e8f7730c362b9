package analysis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKalmanParamsMissingFileUsesDefaults(t *testing.T) {
	params, err := LoadKalmanParams(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultKalmanParams(), params)
}

func TestLoadKalmanParamsPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")
	content := `{
  "initial_process_variance": 0.05,
  "max_em_iterations": 20,
  "some_future_key": "ignored"
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	params, err := LoadKalmanParams(path)
	require.NoError(t, err)

	// Present keys override, missing keys keep defaults, unknown keys are
	// ignored.
	assert.Equal(t, 0.05, params.InitialProcessVariance)
	assert.Equal(t, 20, params.MaxEMIterations)
	assert.Equal(t, DefaultKalmanParams().TargetSampleSize, params.TargetSampleSize)
	assert.Equal(t, DefaultKalmanParams().ConvergenceTolerance, params.ConvergenceTolerance)
}

func TestKalmanParamsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")

	params := DefaultKalmanParams()
	params.InitialMeasurementVariance = 0.42
	params.MinIntervals = 3
	require.NoError(t, SaveKalmanParams(path, params))

	loaded, err := LoadKalmanParams(path)
	require.NoError(t, err)
	assert.Equal(t, params, loaded)
}

func TestLoadKalmanParamsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0644))

	params, err := LoadKalmanParams(path)
	assert.Error(t, err)
	assert.Equal(t, DefaultKalmanParams(), params)
}

func TestConfigWithDefaultsClampsCadence(t *testing.T) {
	cfg := Config{CadenceIntervalDays: -5}.withDefaults()
	assert.Equal(t, 1.0, cfg.CadenceIntervalDays)
	assert.GreaterOrEqual(t, cfg.UpcomingHorizonDays, cfg.CadenceIntervalDays)
}
