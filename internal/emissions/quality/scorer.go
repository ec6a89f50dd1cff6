package quality

import (
	"math"
	"strings"
	"time"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
)

// Dimension weights, summing to 1
const (
	WeightAccuracy     = 0.30
	WeightCompleteness = 0.25
	WeightTimeliness   = 0.20
	WeightConsistency  = 0.25
)

// DefaultConsistencyScore is used when no peer baseline covers the record
const DefaultConsistencyScore = 80.0

// DefaultMinPeerSamples is the smallest peer group a baseline is trusted for
const DefaultMinPeerSamples = 3

// evidenceAccuracy scores how well each evidence type supports the quantity
var evidenceAccuracy = map[emissions.EvidenceType]float64{
	emissions.EvidenceInvoice:      100,
	emissions.EvidenceReceipt:      100,
	emissions.EvidenceMeterReading: 95,
	emissions.EvidencePhoto:        90,
	emissions.EvidenceEstimate:     70,
	emissions.EvidenceNone:         50,
}

// Options configures a Scorer
type Options struct {
	// Now is the reference time for timeliness; defaults to time.Now
	Now func() time.Time

	// ConsistencyPlaceholder replaces DefaultConsistencyScore when non-zero
	ConsistencyPlaceholder float64

	// Baselines enables peer-comparison consistency scoring
	Baselines Baselines

	// MinPeerSamples defaults to DefaultMinPeerSamples
	MinPeerSamples int
}

// Scorer assigns a 0-100 data quality score to activity records
type Scorer struct {
	now            func() time.Time
	placeholder    float64
	baselines      Baselines
	minPeerSamples int
}

// NewScorer creates a scorer
func NewScorer(options Options) *Scorer {
	s := &Scorer{
		now:            options.Now,
		placeholder:    options.ConsistencyPlaceholder,
		baselines:      options.Baselines,
		minPeerSamples: options.MinPeerSamples,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.placeholder == 0 {
		s.placeholder = DefaultConsistencyScore
	}
	if s.minPeerSamples <= 0 {
		s.minPeerSamples = DefaultMinPeerSamples
	}
	return s
}

// WithBaselines returns a scorer sharing this one's settings but comparing
// against the given peer baselines
func (s *Scorer) WithBaselines(baselines Baselines) *Scorer {
	out := *s
	out.baselines = baselines
	return &out
}

// Score computes the weighted quality score of a record. It never fails; a
// record with nothing but a quantity still gets a (low) score.
func (s *Scorer) Score(record emissions.ActivityRecord) emissions.QualityScore {
	components := emissions.QualityComponents{
		Accuracy:     accuracy(record),
		Completeness: completeness(record),
		Timeliness:   timeliness(record, s.now()),
		Consistency:  s.consistency(record),
	}

	total := WeightAccuracy*components.Accuracy +
		WeightCompleteness*components.Completeness +
		WeightTimeliness*components.Timeliness +
		WeightConsistency*components.Consistency

	return emissions.QualityScore{
		Total:      round2(total),
		Components: components,
	}
}

func accuracy(record emissions.ActivityRecord) float64 {
	evidence := emissions.EvidenceType(strings.ToLower(strings.TrimSpace(string(record.EvidenceType))))
	if score, ok := evidenceAccuracy[evidence]; ok {
		return score
	}
	return evidenceAccuracy[emissions.EvidenceNone]
}

// completeness = 0.7 * required coverage + 0.3 * optional coverage
func completeness(record emissions.ActivityRecord) float64 {
	required := []bool{
		record.Scope.Valid(),
		strings.TrimSpace(record.Category) != "",
		strings.TrimSpace(record.ActivityType) != "",
		!record.Quantity.IsZero(),
		strings.TrimSpace(record.Unit) != "",
		record.Year > 0,
	}
	optional := []bool{
		strings.TrimSpace(record.CountryCode) != "",
		record.EvidenceType != "" && record.EvidenceType != emissions.EvidenceNone,
		!record.ReportedAt.IsZero(),
		strings.TrimSpace(record.Description) != "",
		strings.TrimSpace(record.SourceReference) != "",
	}

	score := 0.7*coverage(required) + 0.3*coverage(optional)
	return round2(score * 100)
}

func coverage(present []bool) float64 {
	n := 0
	for _, ok := range present {
		if ok {
			n++
		}
	}
	return float64(n) / float64(len(present))
}

// timeliness decays in steps with the age of the record
func timeliness(record emissions.ActivityRecord, now time.Time) float64 {
	if record.ReportedAt.IsZero() {
		return 30
	}
	age := now.Sub(record.ReportedAt)
	day := 24 * time.Hour
	switch {
	case age <= 30*day:
		return 100
	case age <= 90*day:
		return 80
	case age <= 180*day:
		return 60
	default:
		return 40
	}
}

// consistency scores the deviation of the quantity from its peer mean: within
// one standard deviation scores 100, then 25 points are lost per further
// standard deviation.
func (s *Scorer) consistency(record emissions.ActivityRecord) float64 {
	baseline, ok := s.baselines.For(record)
	if !ok || baseline.SampleSize < s.minPeerSamples {
		return s.placeholder
	}

	quantity, _ := record.Quantity.Float64()
	deviation := math.Abs(quantity - baseline.Mean)
	if baseline.StdDev == 0 {
		if deviation == 0 {
			return 100
		}
		return 50
	}

	z := deviation / baseline.StdDev
	if z <= 1 {
		return 100
	}
	return round2(math.Max(0, 100-25*(z-1)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
