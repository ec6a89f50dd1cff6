package xbrl

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/aggregation"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/uncertainty"
)

var (
	periodStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
)

func testMetadata() Metadata {
	return Metadata{
		EntityIdentifier: "529900T8BM49AURSDO55",
		IdentifierScheme: "http://standards.iso.org/iso/17442",
		EntityName:       "Acme Manufacturing Ltd",
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
	}
}

func scenarioResults(t *testing.T) (aggregation.Result, uncertainty.Result) {
	t.Helper()
	activities := []emissions.ResolvedActivity{
		{
			Record:          emissions.ActivityRecord{Scope: emissions.Scope1, Category: "stationary_combustion"},
			Factor:          emissions.EmissionFactor{UncertaintyPercent: 10},
			EmissionsKgCO2e: decimal.NewFromInt(1500),
		},
		{
			Record:          emissions.ActivityRecord{Scope: emissions.Scope2Location, Category: "electricity"},
			Factor:          emissions.EmissionFactor{UncertaintyPercent: 10},
			EmissionsKgCO2e: decimal.NewFromInt(2200),
		},
		{
			Record:          emissions.ActivityRecord{Scope: emissions.Scope3, Category: "purchased_goods"},
			Factor:          emissions.EmissionFactor{UncertaintyPercent: 10},
			EmissionsKgCO2e: decimal.NewFromInt(3300),
		},
	}
	agg, err := aggregation.Aggregate(activities, aggregation.Options{})
	require.NoError(t, err)
	unc, err := uncertainty.Quantify(activities, agg, uncertainty.Options{Method: uncertainty.MethodAnalytic})
	require.NoError(t, err)
	return agg, unc
}

func concept(t *testing.T, key ConceptKey) string {
	t.Helper()
	name, ok := DefaultTaxonomy().Concept(key)
	require.True(t, ok)
	return name
}

func TestAssembleScenario(t *testing.T) {
	agg, unc := scenarioResults(t)

	doc, err := Assemble(agg, unc, testMetadata(), DefaultTaxonomy())
	require.NoError(t, err)

	for key, want := range map[ConceptKey]string{
		ConceptScope1: "1500",
		ConceptScope2: "2200",
		ConceptScope3: "3300",
		ConceptTotal:  "7000",
	} {
		facts := doc.FactsByConcept(concept(t, key))
		require.Len(t, facts, 1, string(key))
		assert.True(t, facts[0].Value.Equal(decimal.RequireFromString(want)), string(key))
		assert.Equal(t, "u-kgCO2e", facts[0].UnitRef)
	}

	require.Len(t, doc.Contexts, 1)
	for _, f := range doc.Facts {
		assert.Equal(t, doc.Contexts[0].ID, f.ContextRef, f.Concept)
	}

	var massUnits int
	for _, u := range doc.Units {
		if u.Measure.Numerator == "ghg:kgCO2e" && !u.Measure.IsDivide() {
			massUnits++
		}
	}
	assert.Equal(t, 1, massUnits)

	assert.Empty(t, doc.ValidationWarnings)
	assert.Equal(t, []Stage{
		StageInit, StageDeclareNamespaces, StageBuildContexts, StageBuildUnits,
		StageBuildFacts, StageValidateRollups, StageSerialize, StageDone,
	}, doc.Stages)

	text := doc.Serialize()
	require.NoError(t, VerifyWellFormed(text))
	assert.True(t, strings.HasPrefix(text, "<?xml"))
	assert.Equal(t, 1, strings.Count(text, `xmlns:ghg=`))
	assert.Equal(t, 1, strings.Count(text, `xmlns:ix=`))
	assert.Contains(t, text, `name="ghg:GrossScope1GreenhouseGasEmissions"`)
	assert.Contains(t, text, `>7000.00</ix:nonFraction>`)
	assert.Contains(t, text, `<xbrli:startDate>2024-01-01</xbrli:startDate>`)
	assert.Contains(t, text, `name="ghg:StationaryCombustionEmissions"`)
	assert.Contains(t, text, `Acme Manufacturing Ltd</ix:nonNumeric>`)
	assert.NotContains(t, text, "xmlns:iso4217")
	assert.NoError(t, ValidateStructure(doc))
}

func TestAssembleEmptyAggregation(t *testing.T) {
	agg, err := aggregation.Aggregate(nil, aggregation.Options{})
	require.NoError(t, err)
	unc, err := uncertainty.Quantify(nil, agg, uncertainty.Options{})
	require.NoError(t, err)

	doc, err := Assemble(agg, unc, testMetadata(), DefaultTaxonomy())
	require.NoError(t, err)

	total, ok := doc.Fact(concept(t, ConceptTotal), doc.Contexts[0].ID)
	require.True(t, ok)
	assert.True(t, total.Value.IsZero())
	assert.Equal(t, "0.00", total.Text)
}

func TestAssembleIntensityUsesDivideUnit(t *testing.T) {
	revenue := decimal.NewFromInt(2_000_000)
	agg, err := aggregation.Aggregate([]emissions.ResolvedActivity{{
		Record:          emissions.ActivityRecord{Scope: emissions.Scope1, Category: "fleet"},
		EmissionsKgCO2e: decimal.NewFromInt(7000),
	}}, aggregation.Options{Revenue: &revenue, RevenueCurrency: "eur"})
	require.NoError(t, err)

	doc, err := Assemble(agg, uncertainty.Result{}, testMetadata(), DefaultTaxonomy())
	require.NoError(t, err)

	facts := doc.FactsByConcept(concept(t, ConceptIntensity))
	require.Len(t, facts, 1)
	assert.Equal(t, "u-kgCO2e-per-EUR", facts[0].UnitRef)
	assert.Equal(t, "3500.0000", facts[0].Text)
	assert.Contains(t, doc.Serialize(), `<xbrli:measure>iso4217:EUR</xbrli:measure>`)
	assert.Equal(t, 1, strings.Count(doc.Serialize(), `xmlns:iso4217=`))
}

func TestAssembleRejectsUnnamedFact(t *testing.T) {
	agg, unc := scenarioResults(t)
	taxonomy := DefaultTaxonomy()
	taxonomy.Concepts[ConceptScope1] = ""

	_, err := Assemble(agg, unc, testMetadata(), taxonomy)
	var se *StructuralError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, KindUnnamedFact, se.Kind)
	assert.ErrorIs(t, err, ErrStructuralInvariant)
}

func TestAssembleRejectsUnnameableCategory(t *testing.T) {
	agg, err := aggregation.Aggregate([]emissions.ResolvedActivity{{
		Record:          emissions.ActivityRecord{Scope: emissions.Scope1, Category: "***"},
		EmissionsKgCO2e: decimal.NewFromInt(10),
	}}, aggregation.Options{})
	require.NoError(t, err)

	_, err = Assemble(agg, uncertainty.Result{}, testMetadata(), DefaultTaxonomy())
	var se *StructuralError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, KindUnnamedFact, se.Kind)
}

func TestAssembleCategoryNamedLikeFixedConcept(t *testing.T) {
	agg, err := aggregation.Aggregate([]emissions.ResolvedActivity{{
		Record:          emissions.ActivityRecord{Scope: emissions.Scope1, Category: "gross scope1 greenhouse gas"},
		EmissionsKgCO2e: decimal.NewFromInt(10),
	}}, aggregation.Options{})
	require.NoError(t, err)

	doc, err := Assemble(agg, uncertainty.Result{}, testMetadata(), DefaultTaxonomy())
	require.NoError(t, err)

	ctx := doc.Contexts[0].ID
	scope1, ok := doc.Fact(concept(t, ConceptScope1), ctx)
	require.True(t, ok)
	assert.True(t, scope1.Value.Equal(decimal.NewFromInt(10)))
	category, ok := doc.Fact("ghg:CategoryGrossScope1GreenhouseGasEmissions", ctx)
	require.True(t, ok)
	assert.True(t, category.Value.Equal(decimal.NewFromInt(10)))
}

func TestAssembleMatchesMixedCaseCategoryMapping(t *testing.T) {
	agg, err := aggregation.Aggregate([]emissions.ResolvedActivity{{
		Record:          emissions.ActivityRecord{Scope: emissions.Scope3, Category: "purchased_goods"},
		EmissionsKgCO2e: decimal.NewFromInt(25),
	}}, aggregation.Options{})
	require.NoError(t, err)

	taxonomy := DefaultTaxonomy()
	taxonomy.CategoryConcepts = map[string]string{" Purchased_Goods ": "PurchasedGoodsAndServices"}

	doc, err := Assemble(agg, uncertainty.Result{}, testMetadata(), taxonomy)
	require.NoError(t, err)
	fact, ok := doc.Fact("ghg:PurchasedGoodsAndServices", doc.Contexts[0].ID)
	require.True(t, ok)
	assert.True(t, fact.Value.Equal(decimal.NewFromInt(25)))
	_, ok = doc.Fact("ghg:PurchasedGoodsEmissions", doc.Contexts[0].ID)
	assert.False(t, ok)
}

func TestUndeclaredPrefixFailsAtDeclareNamespaces(t *testing.T) {
	agg, unc := scenarioResults(t)
	taxonomy := DefaultTaxonomy()
	taxonomy.Concepts[ConceptScope3] = "esrs:GrossScope3GHGEmissions"

	b, err := Plan(agg, unc, testMetadata(), taxonomy)
	require.NoError(t, err)
	_, err = b.Build()

	var se *StructuralError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, KindUndeclaredNamespace, se.Kind)
	assert.Equal(t, []Stage{StageInit, StageDeclareNamespaces, StageFailed}, b.Stages())

	taxonomy.Namespaces = map[string]string{"esrs": "https://xbrl.efrag.org/taxonomy/esrs/2023-12-22"}
	taxonomy.Rollups = nil
	doc, err := Assemble(agg, unc, testMetadata(), taxonomy)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(doc.Serialize(), `xmlns:esrs=`))
}

func TestRollupMismatchFailsBuild(t *testing.T) {
	b := scopeBuilder(t, "1500", "2200", "3301", "7000")

	_, err := b.Build()
	var mismatch *RollupMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.ErrorIs(t, err, ErrRollupMismatch)
	require.Len(t, mismatch.Issues, 1)

	issue := mismatch.Issues[0]
	assert.Equal(t, SeverityError, issue.Severity)
	assert.Equal(t, "scopes", issue.Rollup)
	assert.Equal(t, "7000", issue.Reported.String())
	assert.Equal(t, "7001", issue.Recomputed.String())
	assert.ElementsMatch(t, []string{
		concept(t, ConceptScope1), concept(t, ConceptScope2), concept(t, ConceptScope3),
	}, issue.Parts)
	assert.Contains(t, err.Error(), "recomputed 7001")
	assert.Equal(t, StageFailed, b.Stages()[len(b.Stages())-1])
	assert.Contains(t, b.Stages(), StageValidateRollups)
	assert.NotContains(t, b.Stages(), StageSerialize)
}

func TestRollupWithinToleranceBuilds(t *testing.T) {
	b := scopeBuilder(t, "1500", "2200", "3300.5", "7000")
	doc, err := b.Build()
	require.NoError(t, err)
	assert.Empty(t, doc.ValidationWarnings)
}

func TestNestedSubtotalIsAWarning(t *testing.T) {
	s1, s2, s2l, s3, total := concept(t, ConceptScope1), concept(t, ConceptScope2),
		concept(t, ConceptScope2Location), concept(t, ConceptScope3), concept(t, ConceptTotal)

	b := scopeBuilder(t, "1500", "2200", "3300", "7000")
	require.NoError(t, b.AddNumeric(massDraft(s2l, "2200")))
	b.WithRollups([]Rollup{
		{Name: "scopes", Total: total, Parts: []string{s1, s2, s2l, s3}},
		{Name: "scope2-basis", Total: s2, Parts: []string{s2l}},
	})

	doc, err := b.Build()
	require.NoError(t, err)
	require.Len(t, doc.ValidationWarnings, 1)
	warning := doc.ValidationWarnings[0]
	assert.Equal(t, SeverityWarning, warning.Severity)
	assert.Equal(t, "9200", warning.Recomputed.String())
	assert.Contains(t, warning.Reason, s2)
}

func TestDeclaredOverlapIsAWarning(t *testing.T) {
	b := scopeBuilder(t, "1500", "2200", "3300", "6500")
	rollups := DefaultTaxonomy().ResolveRollups()
	rollups[0].Overlapping = true
	b.WithRollups(rollups[:1])

	doc, err := b.Build()
	require.NoError(t, err)
	require.Len(t, doc.ValidationWarnings, 1)
	assert.Equal(t, SeverityWarning, doc.ValidationWarnings[0].Severity)
}

func TestExoticWhitespaceIsNormalized(t *testing.T) {
	b := NewBuilder(DefaultTaxonomy(), DocumentOptions{Entity: testEntity()})
	d := massDraft(concept(t, ConceptTotal), "1500")
	d.Text = "1\u00a0500.00"
	require.NoError(t, b.AddNumeric(d))

	doc, err := b.Build()
	require.NoError(t, err)
	fact := doc.Facts[0]
	assert.Equal(t, "1 500.00", fact.Text)
	assert.Equal(t, "ixt:num-dot-decimal", fact.Format)
	assert.NotContains(t, doc.Serialize(), "\u00a0")
	assert.Equal(t, 1, strings.Count(doc.Serialize(), `xmlns:ixt=`))
}

func TestWhitespaceChangingValueIsRejected(t *testing.T) {
	b := NewBuilder(DefaultTaxonomy(), DocumentOptions{Entity: testEntity()})
	d := massDraft(concept(t, ConceptTotal), "1500")
	d.Text = "1\u20095"

	err := b.AddNumeric(d)
	var se *StructuralError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, KindInvalidWhitespace, se.Kind)
	assert.Equal(t, concept(t, ConceptTotal), se.Concept)
}

func TestNegativeFactsUseSignAttribute(t *testing.T) {
	b := NewBuilder(DefaultTaxonomy(), DocumentOptions{Entity: testEntity(), ThousandsSeparator: ","})
	require.NoError(t, b.AddNumeric(massDraft(concept(t, ConceptScope1), "-12345.678")))

	doc, err := b.Build()
	require.NoError(t, err)
	fact := doc.Facts[0]
	assert.True(t, fact.Negative)
	assert.Equal(t, "12,345.68", fact.Text)
	assert.Contains(t, doc.Serialize(), `sign="-"`)
}

func TestInstantAndDurationContexts(t *testing.T) {
	b := NewBuilder(DefaultTaxonomy(), DocumentOptions{Entity: testEntity()})
	require.NoError(t, b.AddNumeric(massDraft(concept(t, ConceptScope1), "10")))
	instant := massDraft(concept(t, ConceptScope3), "20")
	instant.Period = Instant(periodEnd)
	require.NoError(t, b.AddNumeric(instant))
	require.NoError(t, b.AddNumeric(massDraft(concept(t, ConceptScope2), "30")))

	doc, err := b.Build()
	require.NoError(t, err)
	require.Len(t, doc.Contexts, 2)
	assert.Equal(t, "c-d-2024-01-01_2024-12-31", doc.Contexts[0].ID)
	assert.Equal(t, "c-i-2024-12-31", doc.Contexts[1].ID)
	assert.Contains(t, doc.Serialize(), `<xbrli:instant>2024-12-31</xbrli:instant>`)
}

func TestBuilderRejectsInvalidInput(t *testing.T) {
	b := NewBuilder(DefaultTaxonomy(), DocumentOptions{Entity: testEntity()})

	err := b.AddNumeric(massDraft("  ", "1"))
	assert.ErrorIs(t, err, ErrStructuralInvariant)

	both := massDraft(concept(t, ConceptScope1), "1")
	both.Period.Instant = periodEnd
	var se *StructuralError
	require.True(t, errors.As(b.AddNumeric(both), &se))
	assert.Equal(t, KindInvalidContext, se.Kind)

	err = b.AddText(TextDraft{Concept: "", Period: Duration(periodStart, periodEnd), Value: "x"})
	require.True(t, errors.As(err, &se))
	assert.Equal(t, KindUnnamedFact, se.Kind)

	noEntity := NewBuilder(DefaultTaxonomy(), DocumentOptions{})
	require.NoError(t, noEntity.AddNumeric(massDraft(concept(t, ConceptScope1), "1")))
	_, err = noEntity.Build()
	require.True(t, errors.As(err, &se))
	assert.Equal(t, KindInvalidContext, se.Kind)
}

func testEntity() Entity {
	return Entity{Identifier: "529900T8BM49AURSDO55", Scheme: "http://standards.iso.org/iso/17442"}
}

func massDraft(conceptName, value string) NumericDraft {
	return NumericDraft{
		Concept:  conceptName,
		Period:   Duration(periodStart, periodEnd),
		Measure:  Measure{Numerator: "ghg:kgCO2e"},
		Value:    decimal.RequireFromString(value),
		Decimals: 2,
	}
}

func scopeBuilder(t *testing.T, scope1, scope2, scope3, total string) *Builder {
	t.Helper()
	b := NewBuilder(DefaultTaxonomy(), DocumentOptions{Entity: testEntity()})
	require.NoError(t, b.AddNumeric(massDraft(concept(t, ConceptScope1), scope1)))
	require.NoError(t, b.AddNumeric(massDraft(concept(t, ConceptScope2), scope2)))
	require.NoError(t, b.AddNumeric(massDraft(concept(t, ConceptScope3), scope3)))
	require.NoError(t, b.AddNumeric(massDraft(concept(t, ConceptTotal), total)))
	return b
}
