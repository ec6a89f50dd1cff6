package quality

import (
	"math"
	"sort"
	"strings"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
)

// BaselineKey groups records that are comparable with each other
type BaselineKey struct {
	Category     string `json:"category"`
	ActivityType string `json:"activity_type"`
	Unit         string `json:"unit"`
}

// Baseline summarises the quantities reported by a peer group
type Baseline struct {
	Mean       float64 `json:"mean"`
	Median     float64 `json:"median"`
	StdDev     float64 `json:"std_dev"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	SampleSize int     `json:"sample_size"`
}

// Baselines maps peer groups to their statistics
type Baselines map[BaselineKey]Baseline

// KeyFor returns the peer group of a record
func KeyFor(record emissions.ActivityRecord) BaselineKey {
	return BaselineKey{
		Category:     strings.ToLower(strings.TrimSpace(record.Category)),
		ActivityType: strings.ToLower(strings.TrimSpace(record.ActivityType)),
		Unit:         strings.ToLower(strings.TrimSpace(record.Unit)),
	}
}

// For returns the baseline for a record's peer group
func (b Baselines) For(record emissions.ActivityRecord) (Baseline, bool) {
	if b == nil {
		return Baseline{}, false
	}
	baseline, ok := b[KeyFor(record)]
	return baseline, ok
}

// BuildBaselines computes peer statistics from a set of records, typically the
// same activity types reported by comparable organisations or prior periods.
func BuildBaselines(records []emissions.ActivityRecord) Baselines {
	groups := make(map[BaselineKey][]float64)
	for _, r := range records {
		q, _ := r.Quantity.Float64()
		key := KeyFor(r)
		groups[key] = append(groups[key], q)
	}

	out := make(Baselines, len(groups))
	for key, values := range groups {
		out[key] = summarize(values)
	}
	return out
}

func summarize(values []float64) Baseline {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	n := len(sorted)
	mean := sum / float64(n)

	var sumSquares float64
	for _, v := range sorted {
		sumSquares += (v - mean) * (v - mean)
	}
	stdDev := 0.0
	if n > 1 {
		stdDev = math.Sqrt(sumSquares / float64(n-1))
	}

	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return Baseline{
		Mean:       mean,
		Median:     median,
		StdDev:     stdDev,
		Min:        sorted[0],
		Max:        sorted[n-1],
		SampleSize: n,
	}
}
