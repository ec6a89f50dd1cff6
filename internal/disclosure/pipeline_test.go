package disclosure

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-scribe/ghg-disclosure-backend/internal/disclosure/xbrl"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/factors"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/uncertainty"
)

func testFactor(value string, unit string) emissions.EmissionFactor {
	return emissions.EmissionFactor{
		FactorValue:        decimal.RequireFromString(value),
		Unit:               unit,
		SourceDataset:      "TEST-2024",
		SourceRegion:       "GB",
		UncertaintyPercent: 10,
	}
}

func testEntry(scope, category, activityType, country string, f emissions.EmissionFactor) factors.Entry {
	return factors.Entry{
		Key: emissions.FactorKey{
			Scope:        scope,
			Category:     category,
			ActivityType: activityType,
			CountryCode:  country,
		},
		Factor: f,
	}
}

func testEntries() []factors.Entry {
	return []factors.Entry{
		testEntry("SCOPE_1", "stationary_combustion", "diesel", "GB", testFactor("3", "kgCO2e/litre")),
		testEntry("SCOPE_2", "purchased_electricity", "grid", "GLOBAL", testFactor("0.5", "kgCO2e/kWh")),
		testEntry("SCOPE_3", "business_travel", "flight", "GB", testFactor("0.25", "kgCO2e/km")),
	}
}

func testResolver() *factors.Resolver {
	return factors.NewResolver(factors.NewMemoryTable(testEntries()), factors.NewSectorIndex(nil), factors.Options{})
}

func record(id string, scope emissions.ScopeTag, category, activityType, quantity, unit string) emissions.ActivityRecord {
	return emissions.ActivityRecord{
		ID:           id,
		Scope:        scope,
		Category:     category,
		ActivityType: activityType,
		Quantity:     decimal.RequireFromString(quantity),
		Unit:         unit,
		CountryCode:  "GB",
		Year:         2024,
		EvidenceType: emissions.EvidenceInvoice,
	}
}

// scenarioRecords produce 1500 + 2200 + 3300 = 7000 kgCO2e
func scenarioRecords() []emissions.ActivityRecord {
	return []emissions.ActivityRecord{
		record("a-1", emissions.Scope1, "stationary_combustion", "diesel", "500", "litre"),
		record("a-2", emissions.Scope2Location, "purchased_electricity", "grid", "4400", "kWh"),
		record("a-3", emissions.Scope3, "business_travel", "flight", "13200", "km"),
	}
}

func testMetadata() xbrl.Metadata {
	return xbrl.Metadata{
		EntityIdentifier: "5493001KJTIIGC8Y1R12",
		IdentifierScheme: "http://standards.iso.org/iso/17442",
		EntityName:       "Acme Ltd",
		PeriodStart:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:        time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func seed(v uint64) *uint64 { return &v }

func TestBuildReportScenario(t *testing.T) {
	report, err := BuildReport(scenarioRecords(), testResolver(), testMetadata(), BuildOptions{})
	require.NoError(t, err)

	assert.True(t, report.Aggregation.Total.Equal(decimal.NewFromInt(7000)), report.Aggregation.Total.String())
	assert.True(t, report.Aggregation.Scope(1).Equal(decimal.NewFromInt(1500)))
	assert.True(t, report.Aggregation.Scope(2).Equal(decimal.NewFromInt(2200)))
	assert.True(t, report.Aggregation.Scope(3).Equal(decimal.NewFromInt(3300)))
	assert.Len(t, report.Activities, 3)
	assert.Empty(t, report.Exclusions)
	assert.Equal(t, uncertainty.MethodAnalytic, report.Uncertainty.Method)
	assert.True(t, report.Uncertainty.CI95Low.LessThan(report.Aggregation.Total))
	assert.True(t, report.Uncertainty.CI95High.GreaterThan(report.Aggregation.Total))

	require.NotNil(t, report.Document)
	doc := report.Document.Serialize()
	assert.Contains(t, doc, "ix:nonFraction")
	assert.Contains(t, doc, "5493001KJTIIGC8Y1R12")
	assert.Len(t, report.Fingerprint, 64)
}

func TestBuildReportGlobalFallbackLevel(t *testing.T) {
	report, err := BuildReport(scenarioRecords(), testResolver(), testMetadata(), BuildOptions{})
	require.NoError(t, err)

	levels := map[string]emissions.MatchLevel{}
	for _, a := range report.Activities {
		levels[a.Record.ID] = a.MatchLevel
	}
	assert.Equal(t, emissions.MatchExact, levels["a-1"])
	assert.Equal(t, emissions.MatchGlobal, levels["a-2"])
}

func TestBuildReportMonteCarloReproducible(t *testing.T) {
	options := BuildOptions{Method: uncertainty.MethodMonteCarlo, Iterations: 2000, Seed: seed(42)}
	first, err := BuildReport(scenarioRecords(), testResolver(), testMetadata(), options)
	require.NoError(t, err)

	options.Workers = 1
	second, err := BuildReport(scenarioRecords(), testResolver(), testMetadata(), options)
	require.NoError(t, err)

	assert.True(t, first.Uncertainty.CI95Low.Equal(second.Uncertainty.CI95Low))
	assert.True(t, first.Uncertainty.CI95High.Equal(second.Uncertainty.CI95High))
	assert.Equal(t, 2000, first.Uncertainty.Iterations)
}

func TestBuildReportAbortsOnMissingFactor(t *testing.T) {
	records := append(scenarioRecords(), record("a-4", emissions.Scope3, "waste", "landfill", "10", "tonne"))

	report, err := BuildReport(records, testResolver(), testMetadata(), BuildOptions{})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, errors.Is(err, emissions.ErrFactorNotFound))
	assert.True(t, IsValidationFailure(err))
	assert.Equal(t, "FACTOR_NOT_FOUND", ErrorCode(err))
	assert.Contains(t, err.Error(), "a-4")
}

func TestBuildReportExcludesMissingFactor(t *testing.T) {
	records := append(scenarioRecords(), record("a-4", emissions.Scope3, "waste", "landfill", "10", "tonne"))

	report, err := BuildReport(records, testResolver(), testMetadata(), BuildOptions{MissingFactorPolicy: PolicyExclude})
	require.NoError(t, err)

	assert.True(t, report.Aggregation.Total.Equal(decimal.NewFromInt(7000)))
	require.Len(t, report.Exclusions, 1)
	assert.Equal(t, "a-4", report.Exclusions[0].Record.ID)
	assert.Equal(t, "FACTOR_NOT_FOUND", report.Exclusions[0].Code)
	assert.NotEmpty(t, report.Warnings)
}

func TestBuildReportAppliesDefaultFactor(t *testing.T) {
	records := append(scenarioRecords(), record("a-4", emissions.Scope3, "waste", "landfill", "10", "tonne"))
	fallback := testFactor("100", "kgCO2e/tonne")

	report, err := BuildReport(records, testResolver(), testMetadata(), BuildOptions{
		MissingFactorPolicy: PolicyDefault,
		DefaultFactor:       &fallback,
	})
	require.NoError(t, err)

	assert.True(t, report.Aggregation.Total.Equal(decimal.NewFromInt(8000)), report.Aggregation.Total.String())
	var found bool
	for _, a := range report.Activities {
		if a.Record.ID == "a-4" {
			found = true
			assert.Equal(t, emissions.MatchFallback, a.MatchLevel)
			assert.True(t, a.FactorFlagged)
		}
	}
	assert.True(t, found)
}

func TestBuildReportDefaultPolicyNeedsFactor(t *testing.T) {
	_, err := BuildReport(scenarioRecords(), testResolver(), testMetadata(), BuildOptions{MissingFactorPolicy: PolicyDefault})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestBuildReportUnrecognizedScopeAlwaysAborts(t *testing.T) {
	records := append(scenarioRecords(), record("a-5", emissions.ScopeTag("scope 7"), "other", "x", "1", "unit"))

	_, err := BuildReport(records, testResolver(), testMetadata(), BuildOptions{MissingFactorPolicy: PolicyExclude})
	require.Error(t, err)
	assert.ErrorIs(t, err, emissions.ErrUnrecognizedScope)
	assert.Equal(t, "UNRECOGNIZED_SCOPE", ErrorCode(err))
}

func TestBuildReportEmptyInput(t *testing.T) {
	report, err := BuildReport(nil, testResolver(), testMetadata(), BuildOptions{})
	require.NoError(t, err)
	assert.True(t, report.Aggregation.Total.IsZero())
	assert.True(t, report.Uncertainty.CI95Low.IsZero())
	assert.NotNil(t, report.Document)
}

func TestBuildReportValidatesInputs(t *testing.T) {
	meta := testMetadata()
	meta.EntityIdentifier = " "
	_, err := BuildReport(scenarioRecords(), testResolver(), meta, BuildOptions{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	meta = testMetadata()
	meta.PeriodEnd = meta.PeriodStart.AddDate(0, 0, -1)
	_, err = BuildReport(scenarioRecords(), testResolver(), meta, BuildOptions{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = BuildReport(scenarioRecords(), nil, testMetadata(), BuildOptions{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = BuildReport(scenarioRecords(), testResolver(), testMetadata(), BuildOptions{Iterations: uncertainty.MaxIterations + 1})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, "INVALID_REQUEST", ErrorCode(err))
}

func TestBuildReportFlagsOutlierFactors(t *testing.T) {
	entries := []factors.Entry{testEntry("SCOPE_3", "purchased_goods", "paper_and_paper_products", "GLOBAL", testFactor("12", "kgCO2e/USD"))}
	resolver := factors.NewResolver(factors.NewMemoryTable(entries),
		factors.NewSectorIndex(map[string]string{"Office Supplies": "paper_and_paper_products"}),
		factors.Options{OutlierThreshold: 5})

	records := []emissions.ActivityRecord{record("s-1", emissions.Scope3, "purchased_goods", "Office Supplies", "100", "USD")}
	report, err := BuildReport(records, resolver, testMetadata(), BuildOptions{})
	require.NoError(t, err)

	require.Len(t, report.Activities, 1)
	assert.True(t, report.Activities[0].FactorFlagged)
	var warned bool
	for _, w := range report.Warnings {
		if strings.Contains(w, "outlier") {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestBuildReportDoesNotModifyInputs(t *testing.T) {
	records := scenarioRecords()
	before := append([]emissions.ActivityRecord(nil), records...)

	_, err := BuildReport(records, testResolver(), testMetadata(), BuildOptions{PeerBaselines: true})
	require.NoError(t, err)
	assert.Equal(t, before, records)
}

func TestFingerprintIgnoresRecordOrder(t *testing.T) {
	records := scenarioRecords()
	reversed := []emissions.ActivityRecord{records[2], records[1], records[0]}

	a, err := Fingerprint(records, testMetadata(), BuildOptions{})
	require.NoError(t, err)
	b, err := Fingerprint(reversed, testMetadata(), BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Fingerprint(records, testMetadata(), BuildOptions{Seed: seed(7)})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestSummaryOmitsDocumentUnlessAsked(t *testing.T) {
	report, err := BuildReport(scenarioRecords(), testResolver(), testMetadata(), BuildOptions{})
	require.NoError(t, err)

	assert.Empty(t, report.Summary(false).Document)
	summary := report.Summary(true)
	assert.True(t, strings.HasPrefix(summary.Document, "<?xml") || strings.HasPrefix(summary.Document, "<html"))
	assert.Equal(t, 3, summary.ActivityCount)
}
