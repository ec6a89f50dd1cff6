package uncertainty

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/aggregation"
)

// Method selects the propagation strategy
type Method string

const (
	MethodAnalytic   Method = "analytic"
	MethodMonteCarlo Method = "monte_carlo"
)

// DefaultIterations is the Monte Carlo sample count when none is given
const DefaultIterations = 1000

// z95 is the two-sided 95% normal quantile
const z95 = 1.96

// ResultDecimals is the precision reported figures are rounded to
const ResultDecimals = 4

// ErrIntervalInvalid matches every *IntervalError
var ErrIntervalInvalid = errors.New("confidence interval does not straddle the estimate")

// IntervalError reports a confidence interval that excludes the value it
// should contain, which points at a unit or scale error in the inputs
type IntervalError struct {
	Method Method
	Value  float64
	Low    float64
	High   float64
}

func (e *IntervalError) Error() string {
	return fmt.Sprintf("%s interval [%g, %g] does not contain %g", e.Method, e.Low, e.High, e.Value)
}

func (e *IntervalError) Is(target error) bool { return target == ErrIntervalInvalid }

// Options controls a quantification run
type Options struct {
	Method     Method
	Iterations int
	// Seed makes Monte Carlo output reproducible; nil draws a random seed
	Seed *uint64
	// Workers bounds Monte Carlo parallelism; zero means GOMAXPROCS
	Workers int
}

// Result is a 95% confidence interval around an emissions total
type Result struct {
	Mean                       decimal.Decimal `json:"mean"`
	StdDev                     decimal.Decimal `json:"std_dev"`
	CI95Low                    decimal.Decimal `json:"ci95_low"`
	CI95High                   decimal.Decimal `json:"ci95_high"`
	RelativeUncertaintyPercent decimal.Decimal `json:"relative_uncertainty_percent"`
	Method                     Method          `json:"method"`
	Iterations                 int             `json:"iterations"`
	Seed                       *uint64         `json:"seed,omitempty"`
}

// ParseMethod accepts the method names used in config and requests
func ParseMethod(raw string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "analytic", "analytical":
		return MethodAnalytic, nil
	case "monte_carlo", "montecarlo", "monte-carlo", "mc":
		return MethodMonteCarlo, nil
	default:
		return "", fmt.Errorf("unknown uncertainty method %q", raw)
	}
}

// Quantify propagates per-activity uncertainty into a 95% interval on the
// aggregate total. Inputs are never modified.
func Quantify(activities []emissions.ResolvedActivity, agg aggregation.Result, options Options) (Result, error) {
	method := options.Method
	if method == "" {
		method = MethodAnalytic
	}
	iterations := options.Iterations
	if method == MethodMonteCarlo && iterations == 0 {
		method = MethodAnalytic
	}

	if len(activities) == 0 {
		return Result{
			Mean:                       decimal.Zero,
			StdDev:                     decimal.Zero,
			CI95Low:                    decimal.Zero,
			CI95High:                   decimal.Zero,
			RelativeUncertaintyPercent: decimal.Zero,
			Method:                     method,
		}, nil
	}

	switch method {
	case MethodAnalytic:
		return analytic(activities, agg)
	case MethodMonteCarlo:
		if iterations < 0 {
			return Result{}, fmt.Errorf("iterations must not be negative, got %d", iterations)
		}
		return monteCarlo(activities, agg, iterations, options)
	default:
		return Result{}, fmt.Errorf("unknown uncertainty method %q", method)
	}
}

// analytic applies the emission-weighted mean combined uncertainty of the
// activities to the total: total +/- 1.96 * u * |total|
func analytic(activities []emissions.ResolvedActivity, agg aggregation.Result) (Result, error) {
	total, _ := agg.Total.Float64()

	var weighted, weight float64
	for _, a := range sortedActivities(activities) {
		e, _ := a.EmissionsKgCO2e.Abs().Float64()
		weighted += e * a.CombinedUncertainty()
		weight += e
	}
	combined := 0.0
	if weight > 0 {
		combined = weighted / weight
	}

	stdDev := combined * math.Abs(total)
	halfWidth := z95 * stdDev
	low, high := total-halfWidth, total+halfWidth
	if low > total || high < total {
		return Result{}, &IntervalError{Method: MethodAnalytic, Value: total, Low: low, High: high}
	}

	return Result{
		Mean:                       agg.Total,
		StdDev:                     round(stdDev),
		CI95Low:                    round(low),
		CI95High:                   round(high),
		RelativeUncertaintyPercent: relative(halfWidth, total),
		Method:                     MethodAnalytic,
	}, nil
}

func relative(halfWidth, total float64) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return round(halfWidth / math.Abs(total) * 100)
}

func round(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(ResultDecimals)
}

// sortedActivities returns the activities in a canonical order so results
// do not depend on how the caller ordered them
func sortedActivities(activities []emissions.ResolvedActivity) []emissions.ResolvedActivity {
	out := append([]emissions.ResolvedActivity(nil), activities...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if c := a.EmissionsKgCO2e.Cmp(b.EmissionsKgCO2e); c != 0 {
			return c < 0
		}
		if ua, ub := a.CombinedUncertainty(), b.CombinedUncertainty(); ua != ub {
			return ua < ub
		}
		if a.Record.Scope != b.Record.Scope {
			return a.Record.Scope < b.Record.Scope
		}
		if a.Record.Category != b.Record.Category {
			return a.Record.Category < b.Record.Category
		}
		return a.Record.ID < b.Record.ID
	})
	return out
}
