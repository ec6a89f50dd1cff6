package xbrl

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions/aggregation"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/uncertainty"
)

// DefaultMassDecimals is the precision of kgCO2e facts
const DefaultMassDecimals = 2

// Metadata identifies the reporting entity and period of a disclosure
type Metadata struct {
	EntityIdentifier      string    `json:"entity_identifier"`
	IdentifierScheme      string    `json:"identifier_scheme"`
	EntityName            string    `json:"entity_name,omitempty"`
	PeriodStart           time.Time `json:"period_start"`
	PeriodEnd             time.Time `json:"period_end"`
	Language              string    `json:"language,omitempty"`
	Title                 string    `json:"title,omitempty"`
	ConsolidationApproach string    `json:"consolidation_approach,omitempty"`
	// Currency of the revenue figure behind the intensity metric
	Currency string `json:"currency,omitempty"`
	// MassDecimals defaults to DefaultMassDecimals
	MassDecimals       *int   `json:"mass_decimals,omitempty"`
	ThousandsSeparator string `json:"thousands_separator,omitempty"`
}

// Assemble renders aggregation and uncertainty results into a validated
// inline XBRL document. All facts share one duration context.
func Assemble(agg aggregation.Result, unc uncertainty.Result, meta Metadata, taxonomy Taxonomy) (*Document, error) {
	b, err := Plan(agg, unc, meta, taxonomy)
	if err != nil {
		return nil, err
	}
	return b.Build()
}

// Plan adds every fact of a disclosure to a new builder without building it
func Plan(agg aggregation.Result, unc uncertainty.Result, meta Metadata, taxonomy Taxonomy) (*Builder, error) {
	taxonomy = taxonomy.Normalized()
	title := meta.Title
	if title == "" {
		title = "Greenhouse gas emissions disclosure"
		if meta.EntityName != "" {
			title += " - " + meta.EntityName
		}
	}

	b := NewBuilder(taxonomy, DocumentOptions{
		Entity:             Entity{Identifier: strings.TrimSpace(meta.EntityIdentifier), Scheme: strings.TrimSpace(meta.IdentifierScheme)},
		Title:              title,
		Lang:               meta.Language,
		ThousandsSeparator: meta.ThousandsSeparator,
	})
	p := &planner{
		builder:  b,
		taxonomy: taxonomy,
		period:   Duration(meta.PeriodStart, meta.PeriodEnd),
		mass:     Measure{Numerator: taxonomy.MassMeasure()},
		pure:     Measure{Numerator: "xbrli:pure"},
		decimals: DefaultMassDecimals,
	}
	if meta.MassDecimals != nil {
		p.decimals = *meta.MassDecimals
	}

	if meta.EntityName != "" {
		p.text(ConceptEntityName, meta.EntityName, "Reporting entity")
	}
	if meta.ConsolidationApproach != "" {
		p.text(ConceptConsolidationApproach, meta.ConsolidationApproach, "Consolidation approach")
	}

	p.required(ConceptScope1, agg.Scope(1), "Scope 1 emissions (kgCO2e)")
	p.required(ConceptScope2, agg.Scope(2), "Scope 2 emissions (kgCO2e)")
	if !agg.Scope2Location.IsZero() {
		p.optional(ConceptScope2Location, agg.Scope2Location, p.mass, p.decimals, "Scope 2 location-based (kgCO2e)")
	}
	if !agg.Scope2Market.IsZero() {
		p.optional(ConceptScope2Market, agg.Scope2Market, p.mass, p.decimals, "Scope 2 market-based (kgCO2e)")
	}
	p.required(ConceptScope3, agg.Scope(3), "Scope 3 emissions (kgCO2e)")
	p.required(ConceptTotal, agg.Total, "Total emissions (kgCO2e)")

	p.categories(agg)

	if agg.IntensityAvailable {
		currency := meta.Currency
		if currency == "" {
			currency = agg.RevenueCurrency
		}
		if currency == "" {
			currency = "USD"
		}
		intensity := Measure{Numerator: taxonomy.MassMeasure(), Denominator: "iso4217:" + strings.ToUpper(currency)}
		p.optional(ConceptIntensity, agg.IntensityPerRevenue, intensity, 4, "Emissions intensity (kgCO2e per million revenue)")
	}

	p.optional(ConceptUncertaintyMean, unc.Mean, p.mass, p.decimals, "Estimated mean (kgCO2e)")
	p.optional(ConceptUncertaintyStdDev, unc.StdDev, p.mass, p.decimals, "Standard deviation (kgCO2e)")
	p.optional(ConceptCI95Low, unc.CI95Low, p.mass, p.decimals, "95% confidence interval, lower bound (kgCO2e)")
	p.optional(ConceptCI95High, unc.CI95High, p.mass, p.decimals, "95% confidence interval, upper bound (kgCO2e)")
	p.optional(ConceptRelativeUncertainty, unc.RelativeUncertaintyPercent.Div(decimal.NewFromInt(100)), p.pure, 6, "Relative uncertainty")
	if unc.Method != "" {
		p.text(ConceptUncertaintyMethod, string(unc.Method), "Uncertainty method")
	}
	if unc.Method == uncertainty.MethodMonteCarlo {
		p.optional(ConceptMonteCarloIterations, decimal.NewFromInt(int64(unc.Iterations)), p.pure, 0, "Monte Carlo iterations")
	}
	p.optional(ConceptRecordCount, decimal.NewFromInt(int64(agg.RecordCount)), p.pure, 0, "Activity records")

	if p.err != nil {
		return nil, p.err
	}
	return b, nil
}

// planner adds facts to a builder, keeping the first error
type planner struct {
	builder  *Builder
	taxonomy Taxonomy
	period   Period
	mass     Measure
	pure     Measure
	decimals int
	err      error
}

func (p *planner) add(concept string, value decimal.Decimal, measure Measure, decimals int, label, group string) {
	if p.err != nil {
		return
	}
	p.err = p.builder.AddNumeric(NumericDraft{
		Concept:  concept,
		Period:   p.period,
		Measure:  measure,
		Value:    value,
		Decimals: decimals,
		Label:    label,
		Group:    group,
	})
}

// required adds a mass fact the taxonomy must name
func (p *planner) required(key ConceptKey, value decimal.Decimal, label string) {
	concept, _ := p.taxonomy.Concept(key)
	p.add(concept, value, p.mass, p.decimals, label, "")
}

// optional adds a fact only when the taxonomy maps its key. A key mapped to
// an empty name still fails as an unnamed fact.
func (p *planner) optional(key ConceptKey, value decimal.Decimal, measure Measure, decimals int, label string) {
	concept, ok := p.taxonomy.Concept(key)
	if !ok {
		return
	}
	p.add(concept, value, measure, decimals, label, "")
}

func (p *planner) text(key ConceptKey, value, label string) {
	if p.err != nil {
		return
	}
	concept, ok := p.taxonomy.Concept(key)
	if !ok {
		return
	}
	p.err = p.builder.AddText(TextDraft{Concept: concept, Period: p.period, Value: value, Label: label})
}

// categories adds one fact per category concept. Categories that map to the
// same concept are reported together.
func (p *planner) categories(agg aggregation.Result) {
	if p.err != nil {
		return
	}
	var order []string
	values := make(map[string]decimal.Decimal)
	labels := make(map[string][]string)
	for _, category := range agg.Categories() {
		concept := p.taxonomy.CategoryConcept(category)
		if concept == "" {
			p.err = &StructuralError{Kind: KindUnnamedFact, Detail: fmt.Sprintf("category %q does not yield a concept name", category)}
			return
		}
		if _, ok := values[concept]; !ok {
			order = append(order, concept)
		}
		values[concept] = values[concept].Add(agg.ByCategory[category])
		labels[concept] = append(labels[concept], category)
	}
	for _, concept := range order {
		label := fmt.Sprintf("Category: %s (kgCO2e)", strings.Join(labels[concept], ", "))
		p.add(concept, values[concept], p.mass, p.decimals, label, GroupCategory)
	}
}
