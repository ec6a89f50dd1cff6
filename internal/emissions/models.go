package emissions

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =====================================================
// Enums and Constants
// =====================================================

// EvidenceType describes the documentary support behind an activity quantity
type EvidenceType string

const (
	EvidenceInvoice      EvidenceType = "invoice"
	EvidenceReceipt      EvidenceType = "receipt"
	EvidencePhoto        EvidenceType = "photo"
	EvidenceMeterReading EvidenceType = "meter_reading"
	EvidenceEstimate     EvidenceType = "estimate"
	EvidenceNone         EvidenceType = "none"
)

// GlobalRegion is the country code used for factors that apply everywhere
const GlobalRegion = "GLOBAL"

// =====================================================
// Activity data
// =====================================================

// ActivityRecord is one reported activity (fuel burnt, kWh bought, money spent).
// Records are supplied by the caller and never mutated by the pipeline.
type ActivityRecord struct {
	ID                 string          `json:"id,omitempty"`
	Scope              ScopeTag        `json:"scope"`
	Category           string          `json:"category"`
	ActivityType       string          `json:"activity_type"`
	Quantity           decimal.Decimal `json:"quantity"`
	Unit               string          `json:"unit"`
	CountryCode        string          `json:"country_code,omitempty"`
	Year               int             `json:"year"`
	EvidenceType       EvidenceType    `json:"evidence_type,omitempty"`
	ReportedAt         time.Time       `json:"reported_at,omitempty"`
	Description        string          `json:"description,omitempty"`
	SourceReference    string          `json:"source_reference,omitempty"`
	UncertaintyPercent float64         `json:"uncertainty_percent,omitempty"`
}

// IsSpendBased reports whether the quantity is an amount of money, in which case
// the activity type is a sector label and the factor is sector-indexed.
func (r ActivityRecord) IsSpendBased() bool {
	return IsCurrencyUnit(r.Unit)
}

// =====================================================
// Emission factors
// =====================================================

// YearRange bounds the reporting years a factor may be applied to. Zero bounds are open.
type YearRange struct {
	From int `json:"from,omitempty"`
	To   int `json:"to,omitempty"`
}

// Contains reports whether year falls inside the range
func (r YearRange) Contains(year int) bool {
	if r.From != 0 && year < r.From {
		return false
	}
	if r.To != 0 && year > r.To {
		return false
	}
	return true
}

// EmissionFactor converts an activity quantity into kgCO2e
type EmissionFactor struct {
	FactorValue        decimal.Decimal `json:"factor_value"`
	Unit               string          `json:"unit"`
	SourceDataset      string          `json:"source_dataset"`
	SourceRegion       string          `json:"source_region"`
	UncertaintyPercent float64         `json:"uncertainty_percent"`
	ValidYears         YearRange       `json:"valid_years"`
}

// IsPerCurrency reports whether the factor unit is mass-CO2e per currency unit
func (f EmissionFactor) IsPerCurrency() bool {
	parts := strings.SplitN(f.Unit, "/", 2)
	return len(parts) == 2 && IsCurrencyUnit(parts[1])
}

// FactorKey identifies a factor table entry
type FactorKey struct {
	Scope        string `json:"scope"`
	Category     string `json:"category"`
	ActivityType string `json:"activity_type"`
	CountryCode  string `json:"country_code"`
	Year         int    `json:"year"`
}

func (k FactorKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%d", k.Scope, k.Category, k.ActivityType, k.CountryCode, k.Year)
}

// WithCountry returns a copy of the key for another country or region
func (k FactorKey) WithCountry(country string) FactorKey {
	k.CountryCode = country
	return k
}

// =====================================================
// Pipeline results
// =====================================================

// QualityComponents holds the four weighted dimensions of a quality score
type QualityComponents struct {
	Accuracy     float64 `json:"accuracy"`
	Completeness float64 `json:"completeness"`
	Timeliness   float64 `json:"timeliness"`
	Consistency  float64 `json:"consistency"`
}

// QualityScore is a 0-100 confidence score for a single activity record
type QualityScore struct {
	Total      float64           `json:"total"`
	Components QualityComponents `json:"components"`
}

// MatchLevel records which step of the fallback chain produced a factor
type MatchLevel string

const (
	MatchExact    MatchLevel = "exact"
	MatchRegion   MatchLevel = "region"
	MatchGlobal   MatchLevel = "global"
	MatchFallback MatchLevel = "caller_default"
)

// ResolvedActivity is an activity with its factor, quality score and emissions attached
type ResolvedActivity struct {
	Record          ActivityRecord  `json:"record"`
	Factor          EmissionFactor  `json:"factor"`
	MatchedKey      FactorKey       `json:"matched_key"`
	MatchLevel      MatchLevel      `json:"match_level"`
	FactorFlagged   bool            `json:"factor_flagged"`
	Quality         QualityScore    `json:"quality"`
	EmissionsKgCO2e decimal.Decimal `json:"emissions_kg_co2e"`
}

// NewResolvedActivity computes emissions = quantity * factor value
func NewResolvedActivity(record ActivityRecord, factor EmissionFactor, quality QualityScore) ResolvedActivity {
	return ResolvedActivity{
		Record:          record,
		Factor:          factor,
		Quality:         quality,
		EmissionsKgCO2e: record.Quantity.Mul(factor.FactorValue),
	}
}

// CombinedUncertainty returns the root-sum-of-squares of the activity and factor
// uncertainties as a fraction (0.1 == 10%).
func (a ResolvedActivity) CombinedUncertainty() float64 {
	activity := a.Record.UncertaintyPercent / 100
	factor := a.Factor.UncertaintyPercent / 100
	return math.Sqrt(activity*activity + factor*factor)
}

// RollupTolerance is the largest difference allowed between a reported total
// and the sum of its parts: 0.01 or 0.01% of the total, whichever is larger.
func RollupTolerance(total float64) float64 {
	return math.Max(0.01, math.Abs(total)*0.0001)
}

// WithinTolerance compares a reported total against a recomputed sum
func WithinTolerance(reported, recomputed decimal.Decimal) bool {
	diff, _ := reported.Sub(recomputed).Abs().Float64()
	total, _ := reported.Float64()
	return diff <= RollupTolerance(total)
}

// Exclusion records an activity left out of a build and the reason
type Exclusion struct {
	Record ActivityRecord `json:"record"`
	Code   string         `json:"code"`
	Reason string         `json:"reason"`
}
