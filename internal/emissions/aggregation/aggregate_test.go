package aggregation

import (
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
)

func activity(scope emissions.ScopeTag, category, emissionsKg string) emissions.ResolvedActivity {
	return emissions.ResolvedActivity{
		Record:          emissions.ActivityRecord{Scope: scope, Category: category},
		EmissionsKgCO2e: decimal.RequireFromString(emissionsKg),
	}
}

func TestAggregateThreeScopes(t *testing.T) {
	result, err := Aggregate([]emissions.ResolvedActivity{
		activity(emissions.Scope1, "stationary_combustion", "1500"),
		activity(emissions.Scope2Location, "electricity", "2200"),
		activity(emissions.Scope3, "purchased_goods", "3300"),
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "1500", result.Scope(1).String())
	assert.Equal(t, "2200", result.Scope(2).String())
	assert.Equal(t, "3300", result.Scope(3).String())
	assert.Equal(t, "7000", result.Total.String())
	assert.Equal(t, "2200", result.Scope2Location.String())
	assert.True(t, result.Scope2Market.IsZero())
	assert.Equal(t, []string{"electricity", "purchased_goods", "stationary_combustion"}, result.Categories())
	assert.Equal(t, 3, result.RecordCount)
	assert.False(t, result.IntensityAvailable)
	assert.True(t, result.IntensityPerRevenue.IsZero())
}

func TestAggregateSumsBothScope2Bases(t *testing.T) {
	result, err := Aggregate([]emissions.ResolvedActivity{
		activity(emissions.Scope2Location, "electricity", "2200"),
		activity(emissions.Scope2Market, "electricity", "1800"),
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "2200", result.Scope2Location.String())
	assert.Equal(t, "1800", result.Scope2Market.String())
	assert.Equal(t, "4000", result.Scope(2).String())
	assert.Equal(t, "4000", result.Total.String())
	assert.NoError(t, result.Check())
}

func TestAggregateEmptyInput(t *testing.T) {
	result, err := Aggregate(nil, Options{})
	require.NoError(t, err)

	assert.True(t, result.Total.IsZero())
	require.Len(t, result.ByScope, 3)
	for _, n := range emissions.AllScopeNumbers {
		assert.True(t, result.Scope(n).IsZero())
	}
	assert.Empty(t, result.ByCategory)
	assert.NoError(t, result.Check())
}

func TestAggregateIntensity(t *testing.T) {
	revenue := decimal.NewFromInt(2_000_000)
	result, err := Aggregate([]emissions.ResolvedActivity{
		activity(emissions.Scope1, "fleet", "7000"),
	}, Options{Revenue: &revenue, RevenueCurrency: "EUR"})
	require.NoError(t, err)

	assert.True(t, result.IntensityAvailable)
	assert.Equal(t, "3500", result.IntensityPerRevenue.String())
	assert.Equal(t, "EUR", result.RevenueCurrency)

	zero := decimal.Zero
	result, err = Aggregate([]emissions.ResolvedActivity{
		activity(emissions.Scope1, "fleet", "7000"),
	}, Options{Revenue: &zero})
	require.NoError(t, err)
	assert.False(t, result.IntensityAvailable)
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	var activities []emissions.ResolvedActivity
	scopes := []emissions.ScopeTag{emissions.Scope1, emissions.Scope2Location, emissions.Scope2Market, emissions.Scope3}
	categories := []string{"fleet", "Electricity", "travel", "waste", ""}
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 200; i++ {
		value := decimal.NewFromFloat(rng.Float64() * 1e6).Round(4)
		activities = append(activities, emissions.ResolvedActivity{
			Record: emissions.ActivityRecord{
				Scope:    scopes[i%len(scopes)],
				Category: categories[i%len(categories)],
			},
			EmissionsKgCO2e: value,
		})
	}

	baseline, err := Aggregate(activities, Options{})
	require.NoError(t, err)

	for run := 0; run < 5; run++ {
		shuffled := append([]emissions.ResolvedActivity(nil), activities...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		result, err := Aggregate(shuffled, Options{})
		require.NoError(t, err)
		assert.Equal(t, baseline.Total.String(), result.Total.String())
		for _, n := range emissions.AllScopeNumbers {
			assert.Equal(t, baseline.Scope(n).String(), result.Scope(n).String())
		}
		for _, c := range baseline.Categories() {
			assert.Equal(t, baseline.ByCategory[c].String(), result.ByCategory[c].String())
		}
	}

	assert.True(t, baseline.Total.Equal(baseline.ScopeSum()))
	assert.True(t, baseline.Total.Equal(baseline.CategorySum()))
	assert.True(t, baseline.Scope(2).Equal(baseline.Scope2Location.Add(baseline.Scope2Market)))
	assert.Contains(t, baseline.ByCategory, UncategorizedCategory)
	assert.Contains(t, baseline.ByCategory, "electricity")
}

func TestAggregateRejectsUnknownScope(t *testing.T) {
	_, err := Aggregate([]emissions.ResolvedActivity{activity("SCOPE_7", "x", "1")}, Options{})
	assert.ErrorIs(t, err, emissions.ErrUnrecognizedScope)
}

func TestCheckDetectsTamperedTotals(t *testing.T) {
	result, err := Aggregate([]emissions.ResolvedActivity{
		activity(emissions.Scope1, "fleet", "1000"),
	}, Options{})
	require.NoError(t, err)

	result.Total = decimal.RequireFromString("1000.005")
	assert.NoError(t, result.Check())

	result.Total = decimal.RequireFromString("1000.5")
	assert.ErrorIs(t, result.Check(), ErrInconsistentTotals)
}

func TestCategoryKey(t *testing.T) {
	assert.Equal(t, "electricity", CategoryKey("  Electricity "))
	assert.Equal(t, UncategorizedCategory, CategoryKey(" "))
}
