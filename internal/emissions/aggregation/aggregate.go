package aggregation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
)

// UncategorizedCategory collects activities reported without a category
const UncategorizedCategory = "uncategorized"

// IntensityDecimals is the precision intensity figures are rounded to
const IntensityDecimals = 6

var million = decimal.NewFromInt(1_000_000)

// ErrInconsistentTotals is returned when the totals fail the roll-up check
var ErrInconsistentTotals = errors.New("aggregation totals are inconsistent")

// Options carries the optional inputs of an aggregation
type Options struct {
	// Revenue enables the intensity metric when set and nonzero
	Revenue *decimal.Decimal
	// RevenueCurrency labels the intensity denominator (e.g. "USD")
	RevenueCurrency string
}

// Result holds emission totals in kgCO2e
type Result struct {
	ByScope             map[int]decimal.Decimal    `json:"by_scope"`
	ByCategory          map[string]decimal.Decimal `json:"by_category"`
	Scope2Location      decimal.Decimal            `json:"scope2_location"`
	Scope2Market        decimal.Decimal            `json:"scope2_market"`
	Total               decimal.Decimal            `json:"total"`
	IntensityPerRevenue decimal.Decimal            `json:"intensity_per_revenue"`
	IntensityAvailable  bool                       `json:"intensity_available"`
	RevenueCurrency     string                     `json:"revenue_currency,omitempty"`
	RecordCount         int                        `json:"record_count"`
}

// Aggregate groups resolved activities by scope and category. Sums use exact
// decimal arithmetic, so the result does not depend on input order. An empty
// input yields an all-zero result.
func Aggregate(activities []emissions.ResolvedActivity, options Options) (Result, error) {
	result := Result{
		ByScope:         make(map[int]decimal.Decimal, len(emissions.AllScopeNumbers)),
		ByCategory:      make(map[string]decimal.Decimal),
		RevenueCurrency: options.RevenueCurrency,
		RecordCount:     len(activities),
	}
	for _, n := range emissions.AllScopeNumbers {
		result.ByScope[n] = decimal.Zero
	}

	for _, a := range activities {
		n := a.Record.Scope.Number()
		if n == 0 {
			return Result{}, &emissions.UnrecognizedScopeError{Input: string(a.Record.Scope)}
		}
		value := a.EmissionsKgCO2e

		result.ByScope[n] = result.ByScope[n].Add(value)
		category := CategoryKey(a.Record.Category)
		result.ByCategory[category] = result.ByCategory[category].Add(value)
		result.Total = result.Total.Add(value)

		switch a.Record.Scope {
		case emissions.Scope2Location:
			result.Scope2Location = result.Scope2Location.Add(value)
		case emissions.Scope2Market:
			result.Scope2Market = result.Scope2Market.Add(value)
		}
	}

	if options.Revenue != nil && !options.Revenue.IsZero() {
		result.IntensityPerRevenue = result.Total.
			Div(options.Revenue.Div(million)).
			Round(IntensityDecimals)
		result.IntensityAvailable = true
	}

	if err := result.Check(); err != nil {
		return Result{}, err
	}
	return result, nil
}

// CategoryKey normalizes a category name for grouping
func CategoryKey(category string) string {
	key := strings.ToLower(strings.TrimSpace(category))
	if key == "" {
		return UncategorizedCategory
	}
	return key
}

// ScopeSum returns the sum of the per-scope totals
func (r Result) ScopeSum() decimal.Decimal {
	sum := decimal.Zero
	for _, n := range emissions.AllScopeNumbers {
		sum = sum.Add(r.ByScope[n])
	}
	return sum
}

// CategorySum returns the sum of the per-category totals
func (r Result) CategorySum() decimal.Decimal {
	sum := decimal.Zero
	for _, c := range r.Categories() {
		sum = sum.Add(r.ByCategory[c])
	}
	return sum
}

// Categories returns the category keys in sorted order
func (r Result) Categories() []string {
	keys := make([]string, 0, len(r.ByCategory))
	for k := range r.ByCategory {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Scope returns the total for scope n (1, 2 or 3)
func (r Result) Scope(n int) decimal.Decimal {
	return r.ByScope[n]
}

// Check verifies total == sum(byScope) == sum(byCategory) within the roll-up tolerance
func (r Result) Check() error {
	if scopes := r.ScopeSum(); !emissions.WithinTolerance(r.Total, scopes) {
		return fmt.Errorf("%w: total %s, sum of scopes %s", ErrInconsistentTotals, r.Total, scopes)
	}
	if categories := r.CategorySum(); !emissions.WithinTolerance(r.Total, categories) {
		return fmt.Errorf("%w: total %s, sum of categories %s", ErrInconsistentTotals, r.Total, categories)
	}
	return nil
}
