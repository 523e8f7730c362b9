package analysis

import (
	"encoding/json"
	"fmt"
	"os"
)

// KalmanParams are the estimator hyperparameters. They are treated as data:
// an offline parameter sweep re-tunes them against real purchase history and
// writes them back to a flat JSON file, which is reloaded on startup.
type KalmanParams struct {
	InitialProcessVariance     float64 `json:"initial_process_variance"`
	InitialMeasurementVariance float64 `json:"initial_measurement_variance"`
	MaxEMIterations            int     `json:"max_em_iterations"`
	TargetSampleSize           int     `json:"target_sample_size"`
	MinIntervals               int     `json:"min_intervals"`
	ConvergenceTolerance       float64 `json:"convergence_tolerance"`
	MinimumProcessVariance     float64 `json:"minimum_process_variance"`
	MinimumMeasurementVariance float64 `json:"minimum_measurement_variance"`
}

// DefaultKalmanParams returns the shipped hyperparameter defaults.
func DefaultKalmanParams() KalmanParams {
	return KalmanParams{
		InitialProcessVariance:     0.01,
		InitialMeasurementVariance: 0.1,
		MaxEMIterations:            12,
		TargetSampleSize:           6,
		MinIntervals:               2,
		ConvergenceTolerance:       1e-4,
		MinimumProcessVariance:     1e-5,
		MinimumMeasurementVariance: 1e-4,
	}
}

func (p KalmanParams) withDefaults() KalmanParams {
	def := DefaultKalmanParams()
	if p.InitialProcessVariance <= 0 {
		p.InitialProcessVariance = def.InitialProcessVariance
	}
	if p.InitialMeasurementVariance <= 0 {
		p.InitialMeasurementVariance = def.InitialMeasurementVariance
	}
	if p.MaxEMIterations <= 0 {
		p.MaxEMIterations = def.MaxEMIterations
	}
	if p.TargetSampleSize <= 0 {
		p.TargetSampleSize = def.TargetSampleSize
	}
	if p.MinIntervals <= 0 {
		p.MinIntervals = def.MinIntervals
	}
	if p.ConvergenceTolerance <= 0 {
		p.ConvergenceTolerance = def.ConvergenceTolerance
	}
	if p.MinimumProcessVariance <= 0 {
		p.MinimumProcessVariance = def.MinimumProcessVariance
	}
	if p.MinimumMeasurementVariance <= 0 {
		p.MinimumMeasurementVariance = def.MinimumMeasurementVariance
	}
	return p
}

// LoadKalmanParams reads hyperparameters from the given JSON file. Missing
// keys keep their defaults and unknown keys are ignored. A missing file is not
// an error: the defaults are returned so a fresh deployment works untuned.
func LoadKalmanParams(path string) (KalmanParams, error) {
	params := DefaultKalmanParams()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return params, nil
		}
		return params, fmt.Errorf("failed to read kalman params %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &params); err != nil {
		return DefaultKalmanParams(), fmt.Errorf("failed to parse kalman params %s: %w", path, err)
	}
	return params.withDefaults(), nil
}

// SaveKalmanParams writes hyperparameters to the given JSON file.
func SaveKalmanParams(path string, params KalmanParams) error {
	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode kalman params: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write kalman params %s: %w", path, err)
	}
	return nil
}
