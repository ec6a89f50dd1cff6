package quality

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
)

var fixedNow = time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)

func fullRecord() emissions.ActivityRecord {
	return emissions.ActivityRecord{
		ID:              "act-1",
		Scope:           emissions.Scope1,
		Category:        "stationary_combustion",
		ActivityType:    "natural_gas",
		Quantity:        decimal.NewFromInt(100),
		Unit:            "m3",
		CountryCode:     "GB",
		Year:            2024,
		EvidenceType:    emissions.EvidenceInvoice,
		ReportedAt:      fixedNow.Add(-10 * 24 * time.Hour),
		Description:     "boiler fuel",
		SourceReference: "INV-0042",
	}
}

func newTestScorer() *Scorer {
	return NewScorer(Options{Now: func() time.Time { return fixedNow }})
}

func TestScoreFullRecord(t *testing.T) {
	score := newTestScorer().Score(fullRecord())

	assert.Equal(t, 100.0, score.Components.Accuracy)
	assert.Equal(t, 100.0, score.Components.Completeness)
	assert.Equal(t, 100.0, score.Components.Timeliness)
	assert.Equal(t, DefaultConsistencyScore, score.Components.Consistency)
	assert.InDelta(t, 95.0, score.Total, 1e-9)
}

func TestScoreSparseRecordStillScores(t *testing.T) {
	score := newTestScorer().Score(emissions.ActivityRecord{Quantity: decimal.NewFromInt(5)})

	assert.Equal(t, 50.0, score.Components.Accuracy)
	assert.InDelta(t, 11.67, score.Components.Completeness, 1e-9)
	assert.Equal(t, 30.0, score.Components.Timeliness)
	assert.InDelta(t, 43.92, score.Total, 0.011)
	assert.GreaterOrEqual(t, score.Total, 0.0)
}

func TestAccuracyByEvidence(t *testing.T) {
	cases := map[emissions.EvidenceType]float64{
		emissions.EvidenceReceipt:      100,
		emissions.EvidenceMeterReading: 95,
		emissions.EvidencePhoto:        90,
		emissions.EvidenceEstimate:     70,
		emissions.EvidenceNone:         50,
		"Meter_Reading":                95,
		"fax":                          50,
	}
	for evidence, want := range cases {
		r := fullRecord()
		r.EvidenceType = evidence
		assert.Equal(t, want, newTestScorer().Score(r).Components.Accuracy, string(evidence))
	}
}

func TestTimelinessSteps(t *testing.T) {
	day := 24 * time.Hour
	cases := []struct {
		age  time.Duration
		want float64
	}{
		{age: 0, want: 100},
		{age: 30 * day, want: 100},
		{age: 31 * day, want: 80},
		{age: 120 * day, want: 60},
		{age: 400 * day, want: 40},
	}
	for _, tc := range cases {
		r := fullRecord()
		r.ReportedAt = fixedNow.Add(-tc.age)
		assert.Equal(t, tc.want, newTestScorer().Score(r).Components.Timeliness, tc.age.String())
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	s := newTestScorer()
	r := fullRecord()
	r.EvidenceType = emissions.EvidencePhoto
	r.ReportedAt = fixedNow.Add(-100 * 24 * time.Hour)

	first := s.Score(r)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Score(r))
	}
}

func TestConsistencyAgainstPeers(t *testing.T) {
	peers := make([]emissions.ActivityRecord, 0, 3)
	for _, q := range []int64{90, 100, 110} {
		p := fullRecord()
		p.Quantity = decimal.NewFromInt(q)
		peers = append(peers, p)
	}
	baselines := BuildBaselines(peers)
	baseline, ok := baselines.For(fullRecord())
	require.True(t, ok)
	assert.InDelta(t, 100.0, baseline.Mean, 1e-9)
	assert.InDelta(t, 10.0, baseline.StdDev, 1e-9)
	assert.Equal(t, 3, baseline.SampleSize)

	s := newTestScorer().WithBaselines(baselines)

	r := fullRecord()
	assert.Equal(t, 100.0, s.Score(r).Components.Consistency)

	r.Quantity = decimal.NewFromInt(130)
	assert.Equal(t, 50.0, s.Score(r).Components.Consistency)

	r.Quantity = decimal.NewFromInt(1000)
	assert.Equal(t, 0.0, s.Score(r).Components.Consistency)

	other := fullRecord()
	other.ActivityType = "diesel"
	assert.Equal(t, DefaultConsistencyScore, s.Score(other).Components.Consistency)
}

func TestConsistencyIgnoresSmallPeerGroups(t *testing.T) {
	baselines := BuildBaselines([]emissions.ActivityRecord{fullRecord()})
	s := NewScorer(Options{
		Now:                    func() time.Time { return fixedNow },
		Baselines:              baselines,
		ConsistencyPlaceholder: 75,
	})
	r := fullRecord()
	r.Quantity = decimal.NewFromInt(999)
	assert.Equal(t, 75.0, s.Score(r).Components.Consistency)
}

func TestBuildBaselinesMedian(t *testing.T) {
	var records []emissions.ActivityRecord
	for _, q := range []int64{4, 1, 3, 2} {
		r := fullRecord()
		r.Quantity = decimal.NewFromInt(q)
		records = append(records, r)
	}
	b, ok := BuildBaselines(records).For(fullRecord())
	require.True(t, ok)
	assert.Equal(t, 2.5, b.Median)
	assert.Equal(t, 1.0, b.Min)
	assert.Equal(t, 4.0, b.Max)
}
