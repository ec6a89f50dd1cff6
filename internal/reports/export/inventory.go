package export

import (
	"time"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/aggregation"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/uncertainty"
)

// Inventory is the data behind the workbook, CSV and PDF exports of a disclosure
type Inventory struct {
	ReportID    string
	EntityName  string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Fingerprint string
	GeneratedAt time.Time
	Aggregation aggregation.Result
	Uncertainty uncertainty.Result
	Activities  []emissions.ResolvedActivity
	Exclusions  []emissions.Exclusion
	Warnings    []string
}

// activityColumns are the keys of ActivityRows, in column order
var activityColumns = []string{
	"id", "scope", "category", "activity_type", "quantity", "unit", "country",
	"year", "factor", "factor_unit", "factor_source", "match_level", "flagged",
	"uncertainty_pct", "quality", "emissions_kg_co2e",
}

// activityLabels are the display headers matching activityColumns
var activityLabels = []string{
	"ID", "Scope", "Category", "Activity type", "Quantity", "Unit", "Country",
	"Year", "Factor", "Factor unit", "Factor source", "Match", "Flagged",
	"Combined uncertainty %", "Quality score", "Emissions (kgCO2e)",
}

// ActivityRows flattens resolved activities into rows keyed by column name
func (inv Inventory) ActivityRows() []map[string]interface{} {
	rows := make([]map[string]interface{}, len(inv.Activities))
	for i, a := range inv.Activities {
		quantity, _ := a.Record.Quantity.Float64()
		factor, _ := a.Factor.FactorValue.Float64()
		kg, _ := a.EmissionsKgCO2e.Float64()
		rows[i] = map[string]interface{}{
			"id":                a.Record.ID,
			"scope":             string(a.Record.Scope),
			"category":          a.Record.Category,
			"activity_type":     a.Record.ActivityType,
			"quantity":          quantity,
			"unit":              a.Record.Unit,
			"country":           a.Record.CountryCode,
			"year":              a.Record.Year,
			"factor":            factor,
			"factor_unit":       a.Factor.Unit,
			"factor_source":     a.Factor.SourceDataset,
			"match_level":       string(a.MatchLevel),
			"flagged":           a.FactorFlagged,
			"uncertainty_pct":   a.CombinedUncertainty() * 100,
			"quality":           a.Quality.Total,
			"emissions_kg_co2e": kg,
		}
	}
	return rows
}

// SummaryItem is one labelled figure of the summary section
type SummaryItem struct {
	Label string
	Value interface{}
}

// SummaryItems lists the headline figures in display order
func (inv Inventory) SummaryItems() []SummaryItem {
	agg := inv.Aggregation
	unc := inv.Uncertainty
	items := []SummaryItem{
		{"Scope 1 (kgCO2e)", agg.Scope(1).StringFixed(2)},
		{"Scope 2 (kgCO2e)", agg.Scope(2).StringFixed(2)},
	}
	if !agg.Scope2Location.IsZero() || !agg.Scope2Market.IsZero() {
		items = append(items,
			SummaryItem{"Scope 2 location-based (kgCO2e)", agg.Scope2Location.StringFixed(2)},
			SummaryItem{"Scope 2 market-based (kgCO2e)", agg.Scope2Market.StringFixed(2)})
	}
	items = append(items,
		SummaryItem{"Scope 3 (kgCO2e)", agg.Scope(3).StringFixed(2)},
		SummaryItem{"Total (kgCO2e)", agg.Total.StringFixed(2)},
	)
	if agg.IntensityAvailable {
		items = append(items, SummaryItem{"Intensity (kgCO2e per million " + agg.RevenueCurrency + ")", agg.IntensityPerRevenue.StringFixed(4)})
	}
	items = append(items,
		SummaryItem{"Uncertainty method", string(unc.Method)},
		SummaryItem{"95% CI low (kgCO2e)", unc.CI95Low.StringFixed(2)},
		SummaryItem{"95% CI high (kgCO2e)", unc.CI95High.StringFixed(2)},
		SummaryItem{"Relative uncertainty (%)", unc.RelativeUncertaintyPercent.StringFixed(2)},
		SummaryItem{"Activity records", agg.RecordCount},
		SummaryItem{"Excluded activities", len(inv.Exclusions)},
	)
	if unc.Method == uncertainty.MethodMonteCarlo {
		items = append(items, SummaryItem{"Monte Carlo iterations", unc.Iterations})
	}
	return items
}
