package config

import (
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/materialops/supplyrun/internal/analysis"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Analysis analysis.Config
}

type AppConfig struct {
	LogLevel   string
	DataDir    string
	ParamsFile string
}

type DatabaseConfig struct {
	URL string
}

var (
	once     sync.Once
	instance *Config
)

// Load reads configuration from the environment (and .env when present),
// applying defaults. Analysis tunables can be overridden per-key; the Kalman
// hyperparameters come from the params file and are merged in by the caller.
func Load() *Config {
	once.Do(func() {
		_ = godotenv.Load()

		viper.SetDefault("LOG_LEVEL", "info")
		viper.SetDefault("APP_DATA_DIR", "./data")
		viper.SetDefault("KALMAN_PARAMS_FILE", "./data/kalman_params.json")
		viper.SetDefault("DATABASE_URL", "")

		defaults := analysis.DefaultConfig()
		viper.SetDefault("ANALYSIS_DECAY_FACTOR", defaults.DecayFactor)
		viper.SetDefault("ANALYSIS_MAX_INTERVALS", defaults.MaxIntervals)
		viper.SetDefault("ANALYSIS_MIN_INTERVAL_DAYS", defaults.MinIntervalDays)
		viper.SetDefault("ANALYSIS_MAX_INTERVAL_DAYS", defaults.MaxIntervalDays)
		viper.SetDefault("ANALYSIS_INFREQUENT_THRESHOLD_DAYS", defaults.InfrequentThresholdDays)
		viper.SetDefault("ANALYSIS_GROUPING_WINDOW_DAYS", defaults.GroupingWindowDays)
		viper.SetDefault("ANALYSIS_UPCOMING_HORIZON_DAYS", defaults.UpcomingHorizonDays)
		viper.SetDefault("ANALYSIS_LOW_SUPPLY_THRESHOLD_DAYS", defaults.LowSupplyThresholdDays)
		viper.SetDefault("ANALYSIS_MIN_PURCHASE_COUNT", defaults.MinPurchaseCount)
		viper.SetDefault("ANALYSIS_CADENCE_INTERVAL_DAYS", defaults.CadenceIntervalDays)
		viper.SetDefault("ANALYSIS_WINDOW_CONFIDENCE", defaults.WindowConfidence)

		viper.AutomaticEnv()

		instance = &Config{
			App: AppConfig{
				LogLevel:   viper.GetString("LOG_LEVEL"),
				DataDir:    viper.GetString("APP_DATA_DIR"),
				ParamsFile: viper.GetString("KALMAN_PARAMS_FILE"),
			},
			Database: DatabaseConfig{
				URL: viper.GetString("DATABASE_URL"),
			},
			Analysis: analysis.Config{
				DecayFactor:             viper.GetFloat64("ANALYSIS_DECAY_FACTOR"),
				MaxIntervals:            viper.GetInt("ANALYSIS_MAX_INTERVALS"),
				MinIntervalDays:         viper.GetFloat64("ANALYSIS_MIN_INTERVAL_DAYS"),
				MaxIntervalDays:         viper.GetFloat64("ANALYSIS_MAX_INTERVAL_DAYS"),
				InfrequentThresholdDays: viper.GetFloat64("ANALYSIS_INFREQUENT_THRESHOLD_DAYS"),
				GroupingWindowDays:      viper.GetFloat64("ANALYSIS_GROUPING_WINDOW_DAYS"),
				UpcomingHorizonDays:     viper.GetFloat64("ANALYSIS_UPCOMING_HORIZON_DAYS"),
				LowSupplyThresholdDays:  viper.GetFloat64("ANALYSIS_LOW_SUPPLY_THRESHOLD_DAYS"),
				MinPurchaseCount:        viper.GetInt("ANALYSIS_MIN_PURCHASE_COUNT"),
				CadenceIntervalDays:     viper.GetFloat64("ANALYSIS_CADENCE_INTERVAL_DAYS"),
				WindowConfidence:        viper.GetFloat64("ANALYSIS_WINDOW_CONFIDENCE"),
			},
		}
	})

	return instance
}
