package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/materialops/supplyrun/internal/domain"
	"github.com/materialops/supplyrun/pkg/logger"
)

// MissingColumnsError reports required normalized columns absent from the
// input table. This is a contract violation by the upstream exporter, not a
// data-quality issue the analysis can route around, so it surfaces hard.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("purchase table missing required columns: %s", strings.Join(e.Columns, ", "))
}

var columnNameSanitizer = strings.NewReplacer(" ", "", "_", "", ".", "", "-", "", "/", "")

func normalizeColumnName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	return columnNameSanitizer.Replace(name)
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
	"2/1/2006",
}

func parseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// LoadPurchaseCSV reads and normalizes a purchase table from a CSV file.
func LoadPurchaseCSV(path string) ([]domain.PurchaseRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open purchase file %s: %w", path, err)
	}
	defer file.Close()
	return ParsePurchaseTable(file)
}

// ParsePurchaseTable reads a purchase table from CSV input. Header names are
// resolved tolerantly through alias lists; rows with an unparseable date or an
// empty material are skipped and counted, never aborting the load. The result
// is sorted by (material, purchase date).
func ParsePurchaseTable(r io.Reader) ([]domain.PurchaseRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read purchase table header: %w", err)
	}

	colIndex := func(names ...string) int {
		targets := make(map[string]struct{}, len(names))
		for _, name := range names {
			targets[normalizeColumnName(name)] = struct{}{}
		}
		for i, h := range header {
			if _, ok := targets[normalizeColumnName(h)]; ok {
				return i
			}
		}
		return -1
	}

	idxMaterial := colIndex("material", "item", "product", "name")
	idxDate := colIndex("purchase_date", "date", "purchased_at", "purchased")
	idxUnit := colIndex("unit", "uom")
	idxPackageSize := colIndex("package_size", "pack size", "size")
	idxQuantity := colIndex("quantity", "qty")
	idxUnits := colIndex("units_purchased", "units", "amount")
	idxTotalCost := colIndex("total_cost", "cost", "total")
	idxUnitCost := colIndex("unit_cost", "price_per_unit", "unit price")
	idxSource := colIndex("purchase_source", "source", "store", "vendor")

	missing := make([]string, 0)
	if idxMaterial < 0 {
		missing = append(missing, "material")
	}
	if idxDate < 0 {
		missing = append(missing, "purchase_date")
	}
	if idxTotalCost < 0 {
		missing = append(missing, "total_cost")
	}
	if idxQuantity < 0 && idxUnits < 0 {
		missing = append(missing, "quantity")
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	get := func(record []string, idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	parseFloat := func(record []string, idx int) *float64 {
		v := get(record, idx)
		if v == "" {
			return nil
		}
		v = strings.ReplaceAll(v, ",", "")
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		return &f
	}

	records := make([]domain.PurchaseRecord, 0)
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read purchase row: %w", err)
		}

		material := get(record, idxMaterial)
		date, dateOK := parseDate(get(record, idxDate))
		if material == "" || !dateOK {
			skipped++
			continue
		}

		rec := domain.PurchaseRecord{
			Material:     material,
			PurchaseDate: date,
			Unit:         get(record, idxUnit),
			PackageSize:  parseFloat(record, idxPackageSize),
			Quantity:     parseFloat(record, idxQuantity),
			UnitCost:     parseFloat(record, idxUnitCost),
			Source:       get(record, idxSource),
		}
		if total := parseFloat(record, idxTotalCost); total != nil {
			rec.TotalCost = *total
		}
		rec.UnitsPurchased = deriveUnits(parseFloat(record, idxUnits), rec.PackageSize, rec.Quantity)
		if rec.UnitCost == nil && rec.UnitsPurchased != nil && *rec.UnitsPurchased > 0 && rec.TotalCost > 0 {
			unitCost := rec.TotalCost / *rec.UnitsPurchased
			rec.UnitCost = &unitCost
		}

		records = append(records, rec)
	}

	if skipped > 0 {
		log := logger.Component("ingest")
		log.Warn().Int("rows", skipped).Msg("skipped unparseable purchase rows")
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Material != records[j].Material {
			return records[i].Material < records[j].Material
		}
		return records[i].PurchaseDate.Before(records[j].PurchaseDate)
	})

	return records, nil
}

// deriveUnits resolves the units-purchased value: an explicit units column
// wins, then package_size x quantity, then quantity alone.
func deriveUnits(units, packageSize, quantity *float64) *float64 {
	if units != nil {
		return units
	}
	if packageSize != nil && quantity != nil {
		derived := *packageSize * *quantity
		return &derived
	}
	return quantity
}
