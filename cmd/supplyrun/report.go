package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/materialops/supplyrun/internal/domain"
	"github.com/materialops/supplyrun/pkg/logger"
)

// writeReports renders the analysis result into the output directory as a
// projections CSV and/or a full JSON dump.
func writeReports(outputDir, format string, result *domain.AnalysisResult) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir %s: %w", outputDir, err)
	}

	stamp := result.GeneratedAt.Format("20060102")

	if format == "csv" || format == "both" {
		path := filepath.Join(outputDir, stamp+"_projections.csv")
		if err := writeProjectionsCSV(path, result.Projections); err != nil {
			return err
		}
		logger.Log.Info().Str("file", path).Msg("projections report written")
	}

	if format == "json" || format == "both" {
		path := filepath.Join(outputDir, stamp+"_analysis.json")
		if err := writeResultJSON(path, result); err != nil {
			return err
		}
		logger.Log.Info().Str("file", path).Msg("analysis report written")
	}

	return nil
}

func writeProjectionsCSV(path string, projections []domain.MaterialProjection) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	headers := []string{
		"material",
		"unit",
		"total_purchases",
		"last_purchase_date",
		"last_units_purchased",
		"avg_units_purchased",
		"purchase_frequency_days",
		"usage_per_day",
		"usage_confidence",
		"days_since_last_purchase",
		"units_remaining",
		"days_until_runout",
		"estimated_runout_date",
		"supply_lower_days",
		"supply_upper_days",
		"best_price_source",
		"best_unit_cost",
	}
	if err := w.Write(headers); err != nil {
		return err
	}

	for _, p := range projections {
		runoutDate := ""
		if p.EstimatedRunoutDate != nil {
			runoutDate = p.EstimatedRunoutDate.Format("2006-01-02")
		}
		lower, upper := "", ""
		if p.RemainingSupply != nil {
			lower = formatFloat(p.RemainingSupply.LowerDays)
			upper = formatFloat(p.RemainingSupply.UpperDays)
		}
		rec := []string{
			p.Material,
			p.Unit,
			strconv.Itoa(p.TotalPurchases),
			p.LastPurchaseDate.Format("2006-01-02"),
			formatOptional(p.LastUnitsPurchased),
			formatOptional(p.AvgUnitsPurchased),
			formatOptional(p.PurchaseFrequencyDays),
			formatOptional(p.UsagePerDay),
			formatFloat(p.UsageConfidence),
			formatFloat(p.DaysSinceLastPurchase),
			formatOptional(p.UnitsRemaining),
			formatOptional(p.DaysUntilRunout),
			runoutDate,
			lower,
			upper,
			p.BestPriceSource,
			formatOptional(p.BestUnitCost),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}

	return nil
}

func writeResultJSON(path string, result *domain.AnalysisResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode analysis result: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
