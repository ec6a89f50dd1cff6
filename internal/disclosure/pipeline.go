package disclosure

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"carbon-scribe/ghg-disclosure-backend/internal/disclosure/xbrl"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/aggregation"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/quality"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/uncertainty"
)

// BuildReport resolves, scores, aggregates and quantifies records, then
// assembles the tagged document. It performs no I/O and never modifies its
// inputs; any failure returns no report at all.
func BuildReport(records []emissions.ActivityRecord, lookup FactorLookup, meta xbrl.Metadata, options BuildOptions) (*Report, error) {
	if lookup == nil {
		return nil, invalidRequest("a factor lookup is required")
	}
	if err := validateMetadata(meta); err != nil {
		return nil, err
	}
	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	policy, _ := ParseMissingFactorPolicy(string(options.MissingFactorPolicy))

	fingerprint, err := Fingerprint(records, meta, options)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ID:          uuid.New(),
		Fingerprint: fingerprint,
		Metadata:    meta,
		Activities:  make([]emissions.ResolvedActivity, 0, len(records)),
		Exclusions:  []emissions.Exclusion{},
		Warnings:    []string{},
		GeneratedAt: time.Now().UTC(),
	}

	scorer := options.Scorer
	if scorer == nil {
		scorer = quality.NewScorer(quality.Options{})
	}
	if options.PeerBaselines {
		scorer = scorer.WithBaselines(quality.BuildBaselines(records))
	}

	for _, record := range records {
		res, err := lookup.ResolveActivity(record)
		switch {
		case err == nil:
			activity := emissions.NewResolvedActivity(record, res.Factor, scorer.Score(record))
			activity.MatchedKey = res.MatchedKey
			activity.MatchLevel = res.Level
			activity.FactorFlagged = res.Outlier
			if res.Outlier {
				report.warn("activity %s: factor %s %s from %s exceeds the outlier threshold",
					activityLabel(record), res.Factor.FactorValue, res.Factor.Unit, res.Factor.SourceDataset)
			}
			report.Activities = append(report.Activities, activity)

		case missingFactor(err) && policy == PolicyExclude:
			report.Exclusions = append(report.Exclusions, emissions.Exclusion{
				Record: record,
				Code:   emissions.CodeOf(err),
				Reason: err.Error(),
			})
			report.warn("activity %s excluded: %v", activityLabel(record), err)

		case missingFactor(err) && policy == PolicyDefault:
			activity := emissions.NewResolvedActivity(record, *options.DefaultFactor, scorer.Score(record))
			activity.MatchLevel = emissions.MatchFallback
			activity.FactorFlagged = true
			report.warn("activity %s uses the caller default factor: %v", activityLabel(record), err)
			report.Activities = append(report.Activities, activity)

		default:
			return nil, fmt.Errorf("failed to resolve factor for activity %s: %w", activityLabel(record), err)
		}
	}

	agg, err := aggregation.Aggregate(report.Activities, aggregation.Options{
		Revenue:         options.Revenue,
		RevenueCurrency: options.RevenueCurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate emissions: %w", err)
	}
	report.Aggregation = agg

	unc, err := uncertainty.Quantify(report.Activities, agg, uncertainty.Options{
		Method:     options.Method,
		Iterations: options.Iterations,
		Seed:       options.Seed,
		Workers:    options.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to quantify uncertainty: %w", err)
	}
	report.Uncertainty = unc

	taxonomy := xbrl.DefaultTaxonomy()
	if options.Taxonomy != nil {
		taxonomy = *options.Taxonomy
	}
	doc, err := xbrl.Assemble(agg, unc, meta, taxonomy)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble disclosure document: %w", err)
	}
	report.Document = doc
	for _, issue := range doc.ValidationWarnings {
		report.Warnings = append(report.Warnings, issue.String())
	}

	return report, nil
}

func validateMetadata(meta xbrl.Metadata) error {
	if strings.TrimSpace(meta.EntityIdentifier) == "" {
		return invalidRequest("entity identifier is required")
	}
	if strings.TrimSpace(meta.IdentifierScheme) == "" {
		return invalidRequest("identifier scheme is required")
	}
	if meta.PeriodStart.IsZero() || meta.PeriodEnd.IsZero() {
		return invalidRequest("reporting period start and end are required")
	}
	if meta.PeriodEnd.Before(meta.PeriodStart) {
		return invalidRequest("reporting period ends before it starts")
	}
	return nil
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func activityLabel(record emissions.ActivityRecord) string {
	if record.ID != "" {
		return record.ID
	}
	return fmt.Sprintf("%s/%s/%s", record.Scope, record.Category, record.ActivityType)
}
