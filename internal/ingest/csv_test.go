package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePurchaseTable(t *testing.T) {
	input := `material,purchase_date,unit,package_size,quantity,total_cost,unit_cost,purchase_source
flour,2025-01-05,g,1000,2,4.00,,wholesaler
flour,2025-01-15,g,,500,1.20,,corner store
sugar,2025-01-10,kg,,1,2.50,2.50,market
`

	records, err := ParsePurchaseTable(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Sorted by (material, purchase_date).
	assert.Equal(t, "flour", records[0].Material)
	assert.Equal(t, "flour", records[1].Material)
	assert.Equal(t, "sugar", records[2].Material)

	// package_size x quantity when both present.
	require.NotNil(t, records[0].UnitsPurchased)
	assert.InDelta(t, 2000, *records[0].UnitsPurchased, 1e-9)
	// quantity alone otherwise.
	require.NotNil(t, records[1].UnitsPurchased)
	assert.InDelta(t, 500, *records[1].UnitsPurchased, 1e-9)

	// Unit cost derived from total cost when absent.
	require.NotNil(t, records[0].UnitCost)
	assert.InDelta(t, 0.002, *records[0].UnitCost, 1e-9)
	// Explicit unit cost wins.
	require.NotNil(t, records[2].UnitCost)
	assert.InDelta(t, 2.50, *records[2].UnitCost, 1e-9)

	assert.Equal(t, "wholesaler", records[0].Source)
}

func TestParsePurchaseTableHeaderAliases(t *testing.T) {
	input := `Item,Date,Qty,Total,Vendor
flour,2025-01-05,500,1.20,market
`

	records, err := ParsePurchaseTable(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "flour", records[0].Material)
	require.NotNil(t, records[0].UnitsPurchased)
	assert.InDelta(t, 500, *records[0].UnitsPurchased, 1e-9)
	assert.InDelta(t, 1.20, records[0].TotalCost, 1e-9)
	assert.Equal(t, "market", records[0].Source)
}

func TestParsePurchaseTableMissingColumns(t *testing.T) {
	input := `unit,package_size
g,100
`

	_, err := ParsePurchaseTable(strings.NewReader(input))
	require.Error(t, err)

	var missing *MissingColumnsError
	require.True(t, errors.As(err, &missing))
	assert.Contains(t, missing.Columns, "material")
	assert.Contains(t, missing.Columns, "purchase_date")
	assert.Contains(t, missing.Columns, "total_cost")
	assert.Contains(t, missing.Columns, "quantity")
	assert.Contains(t, err.Error(), "material")
}

func TestParsePurchaseTableSkipsBadRows(t *testing.T) {
	input := `material,purchase_date,quantity,total_cost
flour,2025-01-05,500,1.20
,2025-01-06,100,0.50
sugar,not-a-date,100,0.50
sugar,2025-01-10,100,0.50
`

	records, err := ParsePurchaseTable(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "flour", records[0].Material)
	assert.Equal(t, "sugar", records[1].Material)
}

func TestNormalizeColumnName(t *testing.T) {
	assert.Equal(t, "purchasedate", normalizeColumnName(" Purchase_Date "))
	assert.Equal(t, "unitcost", normalizeColumnName("Unit Cost"))
	assert.Equal(t, normalizeColumnName("units_purchased"), normalizeColumnName("Units Purchased"))
}

func TestParseDateFormats(t *testing.T) {
	for _, value := range []string{"2025-01-05", "2025-01-05 10:30:00", "2025-01-05T10:30:00Z", "05/01/2025"} {
		_, ok := parseDate(value)
		assert.True(t, ok, value)
	}
	_, ok := parseDate("")
	assert.False(t, ok)
}
