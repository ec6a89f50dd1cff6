package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/aggregation"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/uncertainty"
)

func activity(scope emissions.ScopeTag, id, category, quantity, factor string) emissions.ResolvedActivity {
	a := emissions.NewResolvedActivity(emissions.ActivityRecord{
		ID:           id,
		Scope:        scope,
		Category:     category,
		ActivityType: "diesel",
		Quantity:     decimal.RequireFromString(quantity),
		Unit:         "litre",
		CountryCode:  "GB",
		Year:         2024,
	}, emissions.EmissionFactor{
		FactorValue:        decimal.RequireFromString(factor),
		Unit:               "kgCO2e/litre",
		SourceDataset:      "DEFRA 2024",
		UncertaintyPercent: 10,
	}, emissions.QualityScore{Total: 72.5})
	a.MatchLevel = emissions.MatchExact
	return a
}

func testInventory(t *testing.T) Inventory {
	t.Helper()
	activities := []emissions.ResolvedActivity{
		activity(emissions.Scope1, "a-1", "stationary_combustion", "500", "3"),
		activity(emissions.Scope2Location, "a-2", "purchased_electricity", "1100", "2"),
		activity(emissions.Scope3, "a-3", "business_travel", "1100", "3"),
	}
	agg, err := aggregation.Aggregate(activities, aggregation.Options{})
	require.NoError(t, err)
	unc, err := uncertainty.Quantify(activities, agg, uncertainty.Options{Method: uncertainty.MethodAnalytic})
	require.NoError(t, err)

	return Inventory{
		ReportID:    "r-1",
		EntityName:  "Acme Ltd",
		PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Fingerprint: "deadbeef",
		GeneratedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		Aggregation: agg,
		Uncertainty: unc,
		Activities:  activities,
		Exclusions: []emissions.Exclusion{{
			Record: emissions.ActivityRecord{ID: "x-1", Scope: emissions.Scope3, Category: "waste"},
			Code:   "FACTOR_NOT_FOUND",
			Reason: "no factor",
		}},
		Warnings: []string{"factor for a-2 is an outlier"},
	}
}

func TestSummaryItemsOrder(t *testing.T) {
	items := testInventory(t).SummaryItems()
	require.NotEmpty(t, items)

	labels := make([]string, len(items))
	for i, item := range items {
		labels[i] = item.Label
	}
	assert.Equal(t, "Scope 1 (kgCO2e)", labels[0])
	assert.Contains(t, labels, "Total (kgCO2e)")
	assert.NotContains(t, labels, "Monte Carlo iterations")

	for _, item := range items {
		if item.Label == "Total (kgCO2e)" {
			assert.Equal(t, "7000.00", item.Value)
		}
		if item.Label == "Excluded activities" {
			assert.Equal(t, 1, item.Value)
		}
	}
}

func TestActivityRowsCarryEmissions(t *testing.T) {
	rows := testInventory(t).ActivityRows()
	require.Len(t, rows, 3)
	assert.Equal(t, "a-1", rows[0]["id"])
	assert.Equal(t, 1500.0, rows[0]["emissions_kg_co2e"])
	assert.Equal(t, "exact", rows[0]["match_level"])
	assert.InDelta(t, 10.0, rows[0]["uncertainty_pct"], 1e-9)
	for _, row := range rows {
		assert.Len(t, row, len(activityColumns))
	}
}

func TestExportInventoryWorkbook(t *testing.T) {
	data, err := ExportInventory(testInventory(t), DefaultExcelOptions())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSummary, SheetCategories, SheetActivities, SheetExclusions, SheetWarnings}, f.GetSheetList())

	header, err := f.GetCellValue(SheetActivities, "A1")
	require.NoError(t, err)
	assert.Equal(t, "ID", header)

	id, err := f.GetCellValue(SheetActivities, "A2")
	require.NoError(t, err)
	assert.Equal(t, "a-1", id)

	rows, err := f.GetRows(SheetCategories)
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	reason, err := f.GetCellValue(SheetExclusions, "F2")
	require.NoError(t, err)
	assert.Equal(t, "no factor", reason)

	warning, err := f.GetCellValue(SheetWarnings, "A2")
	require.NoError(t, err)
	assert.Equal(t, "factor for a-2 is an outlier", warning)
}

func TestExportSummaryPDF(t *testing.T) {
	data, err := ExportSummary(testInventory(t), DefaultPDFOptions())
	require.NoError(t, err)
	require.Greater(t, len(data), 4)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestExportSummaryPDFEmptyInventory(t *testing.T) {
	options := DefaultPDFOptions()
	options.Orientation = "landscape"
	data, err := ExportSummary(Inventory{}, options)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestExportActivitiesCSV(t *testing.T) {
	options := DefaultCSVOptions()
	options.NumberFormat = "%.2f"
	data, err := ExportActivitiesCSV(testInventory(t), options)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, activityColumns, records[0])
	assert.Equal(t, "a-1", records[1][0])
	assert.Equal(t, "SCOPE_1", records[1][1])
	assert.Equal(t, "1500.00", records[1][len(activityColumns)-1])
	assert.Equal(t, "false", records[1][12])
}

func TestCSVExporterOptions(t *testing.T) {
	var buf bytes.Buffer
	e := NewCSVExporter(&buf, CSVOptions{Delimiter: ';', NullValue: "NA", BoolTrueValue: "Y", DateFormat: "2006-01-02"})
	err := e.WriteMapRows([]map[string]interface{}{
		{"a": true, "b": time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"a": nil},
	}, []string{"a", "b"})
	require.NoError(t, err)
	require.NoError(t, e.Flush())

	assert.Equal(t, "Y;2024-03-01\nNA;NA\n", buf.String())
	assert.Equal(t, 2, e.RowCount())
}
