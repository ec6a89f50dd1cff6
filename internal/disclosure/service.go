package disclosure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/ghg-disclosure-backend/internal/activities"
	"carbon-scribe/ghg-disclosure-backend/internal/disclosure/xbrl"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/factors"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/uncertainty"
	"carbon-scribe/ghg-disclosure-backend/internal/reports/delivery"
	"carbon-scribe/ghg-disclosure-backend/internal/reports/export"
	"carbon-scribe/ghg-disclosure-backend/pkg/workflows"
)

// FactorSource loads the stored factor table and sector mappings
type FactorSource interface {
	LoadTable(ctx context.Context, fromYear, toYear int) (*factors.MemoryTable, error)
	LoadSectorMappings(ctx context.Context) (map[string]string, error)
}

// Publisher delivers a built disclosure and its exports
type Publisher interface {
	Publish(ctx context.Context, bundle delivery.Bundle) (*delivery.Receipt, error)
}

// ServiceConfig carries the defaults applied to every build
type ServiceConfig struct {
	Resolver factors.Options
	Defaults BuildOptions
	// Metadata supplies identifier scheme, language and separator defaults
	Metadata xbrl.Metadata
	Excel    export.ExcelOptions
	PDF      export.PDFOptions
	CSV      export.CSVOptions
}

// DefaultServiceConfig returns a config with default export options
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Excel: export.DefaultExcelOptions(),
		PDF:   export.DefaultPDFOptions(),
		CSV:   export.DefaultCSVOptions(),
	}
}

// Service provides the disclosure operations used by the API and workers
type Service struct {
	activities activities.Repository
	factors    FactorSource
	publisher  Publisher
	config     ServiceConfig
	logger     *zap.Logger
}

// NewService creates a new disclosure service. activities, factors and
// publisher may be nil when the corresponding operations are not used.
func NewService(activityRepo activities.Repository, factorSource FactorSource, publisher Publisher, config ServiceConfig, logger *zap.Logger) *Service {
	return &Service{
		activities: activityRepo,
		factors:    factorSource,
		publisher:  publisher,
		config:     config,
		logger:     logger,
	}
}

// =====================================================
// Builds
// =====================================================

// BuildReport applies the configured defaults and runs the pipeline
func (s *Service) BuildReport(ctx context.Context, records []emissions.ActivityRecord, lookup FactorLookup, meta xbrl.Metadata, options BuildOptions) (*Report, error) {
	meta = s.withMetadataDefaults(meta)
	options = s.withOptionDefaults(options)

	started := time.Now()
	report, err := BuildReport(records, lookup, meta, options)
	if err != nil {
		s.logger.Warn("Disclosure build failed",
			zap.String("entity", meta.EntityIdentifier),
			zap.Int("records", len(records)),
			zap.String("code", ErrorCode(err)),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Disclosure built",
		zap.String("report_id", report.ID.String()),
		zap.String("entity", meta.EntityIdentifier),
		zap.Int("activities", len(report.Activities)),
		zap.Int("excluded", len(report.Exclusions)),
		zap.Int("warnings", len(report.Warnings)),
		zap.String("total_kg_co2e", report.Aggregation.Total.String()),
		zap.String("method", string(report.Uncertainty.Method)),
		zap.Duration("elapsed", time.Since(started)))
	return report, nil
}

// Build runs a build request, resolving against its inline factors or the
// stored factor table
func (s *Service) Build(ctx context.Context, req *BuildRequest) (*Report, error) {
	var lookup FactorLookup
	if req.Factors != nil {
		entries := make([]factors.Entry, len(req.Factors.Factors))
		for i, e := range req.Factors.Factors {
			normalized, err := factors.NormalizeEntry(e)
			if err != nil {
				return nil, invalidRequest("factor %d: %v", i, err)
			}
			entries[i] = normalized
		}
		lookup = factors.NewResolver(
			factors.NewMemoryTable(entries),
			factors.NewSectorIndex(req.Factors.Sectors),
			s.config.Resolver)
	} else {
		from, to := yearSpan(req.Records, req.Metadata.PeriodStart, req.Metadata.PeriodEnd)
		resolver, err := s.StoredResolver(ctx, from, to)
		if err != nil {
			return nil, err
		}
		lookup = resolver
	}
	return s.BuildReport(ctx, req.Records, lookup, req.Metadata, req.Options)
}

// StoredResolver builds a resolver over the stored factors valid in [from, to]
func (s *Service) StoredResolver(ctx context.Context, from, to int) (*factors.Resolver, error) {
	if s.factors == nil {
		return nil, fmt.Errorf("no factor store configured")
	}
	table, err := s.factors.LoadTable(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load factor table: %w", err)
	}
	sectors, err := s.factors.LoadSectorMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sector mappings: %w", err)
	}
	s.logger.Debug("Loaded factor table",
		zap.Int("from_year", from),
		zap.Int("to_year", to),
		zap.Int("factors", table.Len()),
		zap.Int("sectors", len(sectors)))
	return factors.NewResolver(table, factors.NewSectorIndex(sectors), s.config.Resolver), nil
}

// ResolveFactor looks up the stored factor a single record would use
func (s *Service) ResolveFactor(ctx context.Context, record emissions.ActivityRecord) (*factors.Resolution, error) {
	resolver, err := s.StoredResolver(ctx, record.Year, record.Year)
	if err != nil {
		return nil, err
	}
	return resolver.ResolveActivity(record)
}

// =====================================================
// Stored activities
// =====================================================

// ImportActivities stores activity records for an organization
func (s *Service) ImportActivities(ctx context.Context, req *ImportRequest) error {
	if s.activities == nil {
		return fmt.Errorf("no activity repository configured")
	}
	if len(req.Records) == 0 {
		return invalidRequest("at least one record is required")
	}
	for i := range req.Records {
		if req.Records[i].Year == 0 {
			req.Records[i].Year = req.ActivityDate.Year()
		}
	}
	if err := s.activities.Insert(ctx, req.OrganizationID, req.ActivityDate, req.Records); err != nil {
		s.logger.Error("Failed to import activities", zap.Error(err), zap.String("organization_id", req.OrganizationID.String()))
		return fmt.Errorf("failed to import activities: %w", err)
	}
	s.logger.Info("Activities imported",
		zap.String("organization_id", req.OrganizationID.String()),
		zap.Int("records", len(req.Records)))
	return nil
}

// GenerateForPeriod builds a disclosure over the stored activities of an
// organization and publishes it. The returned Generation is non-nil even on
// failure so callers can see how far the run got.
func (s *Service) GenerateForPeriod(ctx context.Context, req *GenerateRequest) (*Generation, error) {
	lifecycle := workflows.NewReportLifecycle()
	gen := &Generation{}
	finish := func(err error) (*Generation, error) {
		if err != nil {
			_ = lifecycle.Transition(workflows.ReportFailed)
			gen.FailureCause = err.Error()
			s.logger.Error("Disclosure generation failed",
				zap.String("organization_id", req.OrganizationID.String()),
				zap.Error(err))
		}
		gen.Status = string(lifecycle.Current())
		for _, status := range lifecycle.History() {
			gen.StatusTrail = append(gen.StatusTrail, string(status))
		}
		return gen, err
	}

	if s.activities == nil {
		return finish(errors.New("no activity repository configured"))
	}
	if req.PeriodStart.IsZero() || req.PeriodEnd.IsZero() || req.PeriodEnd.Before(req.PeriodStart) {
		return finish(invalidRequest("a valid reporting period is required"))
	}
	if err := lifecycle.Transition(workflows.ReportBuilding); err != nil {
		return finish(err)
	}

	records, err := s.activities.ListForPeriod(ctx, req.OrganizationID, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return finish(fmt.Errorf("failed to load activities: %w", err))
	}

	meta := req.Metadata
	meta.PeriodStart = req.PeriodStart
	meta.PeriodEnd = req.PeriodEnd
	if meta.EntityIdentifier == "" {
		meta.EntityIdentifier = req.OrganizationID.String()
	}

	from, to := yearSpan(records, req.PeriodStart, req.PeriodEnd)
	resolver, err := s.StoredResolver(ctx, from, to)
	if err != nil {
		return finish(err)
	}

	report, err := s.BuildReport(ctx, records, resolver, meta, req.Options)
	if err != nil {
		return finish(err)
	}
	gen.Report = report
	if err := lifecycle.Transition(workflows.ReportBuilt); err != nil {
		return finish(err)
	}

	if s.publisher == nil {
		return finish(nil)
	}

	bundle, err := s.Bundle(report, req.OrganizationID, req.Recipients)
	if err != nil {
		return finish(err)
	}
	receipt, err := s.publisher.Publish(ctx, *bundle)
	if err != nil {
		return finish(fmt.Errorf("failed to publish disclosure: %w", err))
	}
	gen.DocumentURI = receipt.DocumentURI
	gen.WorkbookURI = receipt.WorkbookURI
	gen.SummaryURI = receipt.SummaryURI
	if err := lifecycle.Transition(workflows.ReportPublished); err != nil {
		return finish(err)
	}
	return finish(nil)
}

// =====================================================
// Exports
// =====================================================

// ExportFormat names a downloadable rendition of a report
type ExportFormat string

const (
	FormatXHTML ExportFormat = "xhtml"
	FormatXLSX  ExportFormat = "xlsx"
	FormatPDF   ExportFormat = "pdf"
	FormatCSV   ExportFormat = "csv"
)

// Export renders a report in the given format and returns its content type
func (s *Service) Export(report *Report, format ExportFormat) ([]byte, string, error) {
	switch ExportFormat(strings.ToLower(string(format))) {
	case FormatXHTML, "":
		if report.Document == nil {
			return nil, "", fmt.Errorf("report %s has no document", report.ID)
		}
		return report.Document.Bytes(), delivery.ContentTypeXHTML, nil
	case FormatXLSX:
		data, err := export.ExportInventory(Inventory(report), s.config.Excel)
		return data, delivery.ContentTypeXLSX, err
	case FormatPDF:
		data, err := export.ExportSummary(Inventory(report), s.config.PDF)
		return data, delivery.ContentTypePDF, err
	case FormatCSV:
		data, err := export.ExportActivitiesCSV(Inventory(report), s.config.CSV)
		return data, "text/csv", err
	default:
		return nil, "", invalidRequest("unsupported export format %q", format)
	}
}

// Bundle renders the exports of a report for publishing
func (s *Service) Bundle(report *Report, organizationID uuid.UUID, recipients []string) (*delivery.Bundle, error) {
	inv := Inventory(report)
	workbook, err := export.ExportInventory(inv, s.config.Excel)
	if err != nil {
		return nil, fmt.Errorf("failed to export workbook: %w", err)
	}
	summary, err := export.ExportSummary(inv, s.config.PDF)
	if err != nil {
		return nil, fmt.Errorf("failed to export summary: %w", err)
	}

	org := ""
	if organizationID != uuid.Nil {
		org = organizationID.String()
	}
	return &delivery.Bundle{
		ReportID:       report.ID.String(),
		OrganizationID: org,
		EntityName:     report.Metadata.EntityName,
		PeriodStart:    report.Metadata.PeriodStart,
		PeriodEnd:      report.Metadata.PeriodEnd,
		Fingerprint:    report.Fingerprint,
		TotalKgCO2e:    report.Aggregation.Total.String(),
		WarningCount:   len(report.Warnings),
		ExcludedCount:  len(report.Exclusions),
		Document:       report.Document.Bytes(),
		Workbook:       workbook,
		Summary:        summary,
		Recipients:     recipients,
	}, nil
}

// Inventory converts a report into the export data model
func Inventory(report *Report) export.Inventory {
	return export.Inventory{
		ReportID:    report.ID.String(),
		EntityName:  report.Metadata.EntityName,
		PeriodStart: report.Metadata.PeriodStart,
		PeriodEnd:   report.Metadata.PeriodEnd,
		Fingerprint: report.Fingerprint,
		GeneratedAt: report.GeneratedAt,
		Aggregation: report.Aggregation,
		Uncertainty: report.Uncertainty,
		Activities:  report.Activities,
		Exclusions:  report.Exclusions,
		Warnings:    report.Warnings,
	}
}

// =====================================================
// Defaults
// =====================================================

func (s *Service) withMetadataDefaults(meta xbrl.Metadata) xbrl.Metadata {
	d := s.config.Metadata
	if meta.IdentifierScheme == "" {
		meta.IdentifierScheme = d.IdentifierScheme
	}
	if meta.Language == "" {
		meta.Language = d.Language
	}
	if meta.ThousandsSeparator == "" {
		meta.ThousandsSeparator = d.ThousandsSeparator
	}
	if meta.ConsolidationApproach == "" {
		meta.ConsolidationApproach = d.ConsolidationApproach
	}
	if meta.MassDecimals == nil {
		meta.MassDecimals = d.MassDecimals
	}
	return meta
}

func (s *Service) withOptionDefaults(o BuildOptions) BuildOptions {
	d := s.config.Defaults
	if o.Method == "" {
		o.Method = d.Method
	}
	if o.Method == uncertainty.MethodMonteCarlo && o.Iterations == 0 {
		o.Iterations = d.Iterations
		if o.Iterations == 0 {
			o.Iterations = uncertainty.DefaultIterations
		}
	}
	if o.Seed == nil {
		o.Seed = d.Seed
	}
	if o.Workers == 0 {
		o.Workers = d.Workers
	}
	if o.MissingFactorPolicy == "" {
		o.MissingFactorPolicy = d.MissingFactorPolicy
		if o.DefaultFactor == nil {
			o.DefaultFactor = d.DefaultFactor
		}
	}
	if o.Scorer == nil {
		o.Scorer = d.Scorer
	}
	if o.Taxonomy == nil {
		o.Taxonomy = d.Taxonomy
	}
	return o
}

// yearSpan returns the reporting years covered by the period and the records
func yearSpan(records []emissions.ActivityRecord, start, end time.Time) (int, int) {
	from, to := start.Year(), end.Year()
	if start.IsZero() {
		from = 0
	}
	if end.IsZero() {
		to = 0
	}
	for _, r := range records {
		if r.Year == 0 {
			continue
		}
		if from == 0 || r.Year < from {
			from = r.Year
		}
		if r.Year > to {
			to = r.Year
		}
	}
	return from, to
}
