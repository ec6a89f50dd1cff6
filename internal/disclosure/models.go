package disclosure

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carbon-scribe/ghg-disclosure-backend/internal/disclosure/xbrl"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/aggregation"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/factors"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/quality"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/uncertainty"
)

// =====================================================
// Enums and Constants
// =====================================================

// MissingFactorPolicy decides what a build does with an activity that has no factor
type MissingFactorPolicy string

const (
	PolicyAbort   MissingFactorPolicy = "abort"
	PolicyExclude MissingFactorPolicy = "exclude"
	PolicyDefault MissingFactorPolicy = "default"
)

// ParseMissingFactorPolicy accepts the policy names used in config and requests
func ParseMissingFactorPolicy(raw string) (MissingFactorPolicy, error) {
	switch p := MissingFactorPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PolicyAbort, nil
	case PolicyAbort, PolicyExclude, PolicyDefault:
		return p, nil
	default:
		return "", fmt.Errorf("unknown missing factor policy %q", raw)
	}
}

// FactorLookup is the factor surface a build resolves against
type FactorLookup interface {
	ResolveActivity(record emissions.ActivityRecord) (*factors.Resolution, error)
}

// =====================================================
// Build inputs
// =====================================================

// BuildOptions controls one report build
type BuildOptions struct {
	Method     uncertainty.Method `json:"method"`
	Iterations int                `json:"iterations"`
	Seed       *uint64            `json:"seed,omitempty"`
	Workers    int                `json:"-"`

	MissingFactorPolicy MissingFactorPolicy `json:"missing_factor_policy"`
	// DefaultFactor is applied under PolicyDefault and flagged on the activity
	DefaultFactor *emissions.EmissionFactor `json:"default_factor,omitempty"`

	Revenue         *decimal.Decimal `json:"revenue,omitempty"`
	RevenueCurrency string           `json:"revenue_currency,omitempty"`

	// PeerBaselines scores consistency against the build's own records
	PeerBaselines bool `json:"peer_baselines"`

	Scorer   *quality.Scorer `json:"-"`
	Taxonomy *xbrl.Taxonomy  `json:"-"`
}

// Validate checks option combinations before any work is done
func (o BuildOptions) Validate() error {
	if _, err := ParseMissingFactorPolicy(string(o.MissingFactorPolicy)); err != nil {
		return err
	}
	if o.MissingFactorPolicy == PolicyDefault && o.DefaultFactor == nil {
		return fmt.Errorf("missing factor policy %q requires a default factor", PolicyDefault)
	}
	if o.Method != "" {
		if _, err := uncertainty.ParseMethod(string(o.Method)); err != nil {
			return err
		}
	}
	if o.Iterations < 0 || o.Iterations > uncertainty.MaxIterations {
		return fmt.Errorf("iterations must be between 0 and %d, got %d", uncertainty.MaxIterations, o.Iterations)
	}
	if o.Revenue != nil && o.Revenue.IsNegative() {
		return fmt.Errorf("revenue must not be negative")
	}
	return nil
}

// =====================================================
// Build outputs
// =====================================================

// Report is the outcome of one build
type Report struct {
	ID          uuid.UUID                    `json:"id"`
	Fingerprint string                       `json:"fingerprint"`
	Metadata    xbrl.Metadata                `json:"metadata"`
	Document    *xbrl.Document               `json:"-"`
	Aggregation aggregation.Result           `json:"aggregation"`
	Uncertainty uncertainty.Result           `json:"uncertainty"`
	Activities  []emissions.ResolvedActivity `json:"activities"`
	Exclusions  []emissions.Exclusion        `json:"exclusions"`
	Warnings    []string                     `json:"warnings"`
	GeneratedAt time.Time                    `json:"generated_at"`
}

// ReportSummary is the compact view returned by the HTTP layer
type ReportSummary struct {
	ID                 uuid.UUID             `json:"id"`
	Fingerprint        string                `json:"fingerprint"`
	Aggregation        aggregation.Result    `json:"aggregation"`
	Uncertainty        uncertainty.Result    `json:"uncertainty"`
	ActivityCount      int                   `json:"activity_count"`
	Exclusions         []emissions.Exclusion `json:"exclusions"`
	Warnings           []string              `json:"warnings"`
	ValidationWarnings []xbrl.RollupIssue    `json:"validation_warnings"`
	Document           string                `json:"document,omitempty"`
	GeneratedAt        time.Time             `json:"generated_at"`
}

// Summary returns the report without per-activity detail. The XHTML text is
// included when withDocument is set.
func (r *Report) Summary(withDocument bool) ReportSummary {
	s := ReportSummary{
		ID:            r.ID,
		Fingerprint:   r.Fingerprint,
		Aggregation:   r.Aggregation,
		Uncertainty:   r.Uncertainty,
		ActivityCount: len(r.Activities),
		Exclusions:    r.Exclusions,
		Warnings:      r.Warnings,
		GeneratedAt:   r.GeneratedAt,
	}
	if r.Document != nil {
		s.ValidationWarnings = r.Document.ValidationWarnings
		if withDocument {
			s.Document = r.Document.Serialize()
		}
	}
	return s
}

// =====================================================
// Generation (stored data)
// =====================================================

// GenerateRequest asks for a report over stored activities of one organization
type GenerateRequest struct {
	OrganizationID uuid.UUID     `json:"organization_id" binding:"required"`
	PeriodStart    time.Time     `json:"period_start" binding:"required"`
	PeriodEnd      time.Time     `json:"period_end" binding:"required"`
	Metadata       xbrl.Metadata `json:"metadata"`
	Options        BuildOptions  `json:"options"`
	Recipients     []string      `json:"recipients,omitempty"`
}

// Generation records a stored-data build and where its outputs went
type Generation struct {
	Report       *Report  `json:"report"`
	Status       string   `json:"status"`
	DocumentURI  string   `json:"document_uri,omitempty"`
	WorkbookURI  string   `json:"workbook_uri,omitempty"`
	SummaryURI   string   `json:"summary_uri,omitempty"`
	StatusTrail  []string `json:"status_trail"`
	FailureCause string   `json:"failure_cause,omitempty"`
}

// =====================================================
// HTTP requests
// =====================================================

// InlineFactors is a factor table supplied with a build request
type InlineFactors struct {
	Factors []factors.Entry   `json:"factors"`
	Sectors map[string]string `json:"sectors,omitempty"`
}

// BuildRequest asks for a report over caller-supplied records. Without
// Factors the stored factor table is used.
type BuildRequest struct {
	Records         []emissions.ActivityRecord `json:"records"`
	Metadata        xbrl.Metadata              `json:"metadata"`
	Options         BuildOptions               `json:"options"`
	Factors         *InlineFactors             `json:"factors,omitempty"`
	IncludeDocument bool                       `json:"include_document"`
}

// ImportRequest stores activity records for an organization
type ImportRequest struct {
	OrganizationID uuid.UUID                  `json:"organization_id" binding:"required"`
	ActivityDate   time.Time                  `json:"activity_date" binding:"required"`
	Records        []emissions.ActivityRecord `json:"records" binding:"required"`
}
