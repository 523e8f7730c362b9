// cmd/supplyrun/main.go
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/materialops/supplyrun/internal/analysis"
	"github.com/materialops/supplyrun/internal/config"
	"github.com/materialops/supplyrun/internal/domain"
	"github.com/materialops/supplyrun/internal/ingest"
	"github.com/materialops/supplyrun/internal/repository"
	"github.com/materialops/supplyrun/internal/repository/postgres"
	"github.com/materialops/supplyrun/pkg/logger"
)

func newInputFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "input",
		Usage:   "CSV file with normalized purchase records",
		EnvVars: []string{"PURCHASES_CSV"},
	}
}

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "db-url",
		Usage:   "Database connection string (used when --input is not set)",
		EnvVars: []string{"DATABASE_URL"},
	}
}

func newParamsFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "params",
		Usage:   "Kalman hyperparameters JSON file",
		EnvVars: []string{"KALMAN_PARAMS_FILE"},
	}
}

func main() {
	if err := godotenv.Load(); err == nil {
		logger.Log.Debug().Msg("loaded .env file")
	}

	app := &cli.App{
		Name:  "supplyrun",
		Usage: "Forecast material usage and plan supply runs from purchase history",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (trace, debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			logger.SetLevel(c.String("log-level"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "analyze",
				Usage: "Build projections and the supply-run schedule",
				Flags: []cli.Flag{
					newInputFlag(),
					newDBURLFlag(),
					newParamsFlag(),
					&cli.StringFlag{
						Name:  "now",
						Usage: "Reference timestamp (RFC3339 or YYYY-MM-DD), defaults to wall clock",
					},
					&cli.StringFlag{
						Name:  "output-dir",
						Usage: "Directory for the report files",
						Value: "./data/reports",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Report format: csv, json or both",
						Value: "both",
					},
				},
				Action: runAnalyze,
			},
			{
				Name:  "tune",
				Usage: "Sweep Kalman hyperparameters against the purchase history",
				Flags: []cli.Flag{
					newInputFlag(),
					newDBURLFlag(),
					newParamsFlag(),
					&cli.IntFlag{
						Name:  "parallelism",
						Usage: "Concurrent candidate evaluations",
						Value: 4,
					},
				},
				Action: runTune,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("supplyrun failed")
	}
}

// loadRecords reads the purchase table from the CSV input when given,
// otherwise from Postgres.
func loadRecords(c *cli.Context) ([]domain.PurchaseRecord, error) {
	if input := c.String("input"); input != "" {
		return ingest.LoadPurchaseCSV(input)
	}

	dbURL := c.String("db-url")
	if dbURL == "" {
		dbURL = config.Load().Database.URL
	}
	if dbURL == "" {
		return nil, fmt.Errorf("either --input or --db-url is required")
	}

	db, err := postgres.Connect(c.Context, dbURL)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var repo repository.PurchaseRepository = postgres.NewPurchaseRepository(db)
	return repo.ListPurchaseRecords(c.Context, time.Time{})
}

func loadAnalysisConfig(c *cli.Context) (analysis.Config, string, error) {
	cfg := config.Load()

	paramsFile := c.String("params")
	if paramsFile == "" {
		paramsFile = cfg.App.ParamsFile
	}

	params, err := analysis.LoadKalmanParams(paramsFile)
	if err != nil {
		return analysis.Config{}, "", err
	}

	analysisCfg := cfg.Analysis
	analysisCfg.Kalman = params
	return analysisCfg, paramsFile, nil
}

func runAnalyze(c *cli.Context) error {
	analysisCfg, _, err := loadAnalysisConfig(c)
	if err != nil {
		return err
	}

	records, err := loadRecords(c)
	if err != nil {
		return err
	}

	now := time.Time{}
	if raw := c.String("now"); raw != "" {
		now, err = parseReferenceTime(raw)
		if err != nil {
			return err
		}
	}

	svc := analysis.NewService(analysisCfg)
	start := time.Now()
	result := svc.Analyze(records, now)

	logger.Log.Info().
		Int("records", len(records)).
		Int("projections", len(result.Projections)).
		Int("low_supply", len(result.LowSupply)).
		Int("warnings", len(result.CadenceWarnings)).
		Dur("elapsed", time.Since(start)).
		Msg("analysis complete")

	return writeReports(c.String("output-dir"), c.String("format"), result)
}

func runTune(c *cli.Context) error {
	analysisCfg, paramsFile, err := loadAnalysisConfig(c)
	if err != nil {
		return err
	}

	records, err := loadRecords(c)
	if err != nil {
		return err
	}

	best, err := analysis.TuneKalmanParams(c.Context, records, analysisCfg, nil, c.Int("parallelism"))
	if err != nil {
		return err
	}

	if err := analysis.SaveKalmanParams(paramsFile, best.Params); err != nil {
		return err
	}
	logger.Log.Info().Str("file", paramsFile).Msg("tuned kalman params saved")
	return nil
}

func parseReferenceTime(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --now value %q (want RFC3339 or YYYY-MM-DD)", raw)
}
