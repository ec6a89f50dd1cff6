package delivery

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"carbon-scribe/ghg-disclosure-backend/pkg/storage"
)

// Content types of published artifacts
const (
	ContentTypeXHTML = "application/xhtml+xml"
	ContentTypeXLSX  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypePDF   = "application/pdf"
)

// Bundle is everything published for one disclosure
type Bundle struct {
	ReportID       string
	OrganizationID string
	EntityName     string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Fingerprint    string
	TotalKgCO2e    string
	WarningCount   int
	ExcludedCount  int

	Document []byte
	Workbook []byte
	Summary  []byte

	Recipients []string
}

// Receipt records where a bundle was published
type Receipt struct {
	DocumentURI string           `json:"document_uri"`
	WorkbookURI string           `json:"workbook_uri,omitempty"`
	SummaryURI  string           `json:"summary_uri,omitempty"`
	Manifest    Manifest         `json:"manifest"`
	Deliveries  []DeliveryResult `json:"deliveries,omitempty"`
}

// PublisherConfig locates published artifacts
type PublisherConfig struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix"`
}

// Publisher uploads disclosure artifacts, indexes them and announces them
type Publisher struct {
	store     storage.S3Client
	manifests ManifestStore
	notifier  *Notifier
	config    PublisherConfig
	logger    *zap.Logger
}

// NewPublisher creates a publisher. manifests and notifier may be nil.
func NewPublisher(store storage.S3Client, manifests ManifestStore, notifier *Notifier, config PublisherConfig, logger *zap.Logger) *Publisher {
	return &Publisher{
		store:     store,
		manifests: manifests,
		notifier:  notifier,
		config:    config,
		logger:    logger,
	}
}

// Publish uploads the document and its exports, then writes the manifest and
// sends notices. Upload and manifest failures abort; notice failures do not.
func (p *Publisher) Publish(ctx context.Context, bundle Bundle) (*Receipt, error) {
	if len(bundle.Document) == 0 {
		return nil, fmt.Errorf("bundle %s has no document", bundle.ReportID)
	}
	if p.config.Bucket == "" {
		return nil, fmt.Errorf("no bucket configured for published disclosures")
	}

	dir := p.keyPrefix(bundle)
	manifest := Manifest{
		ReportID:       bundle.ReportID,
		OrganizationID: bundle.OrganizationID,
		PeriodStart:    bundle.PeriodStart.Format("2006-01-02"),
		PeriodEnd:      bundle.PeriodEnd.Format("2006-01-02"),
		Fingerprint:    bundle.Fingerprint,
		TotalKgCO2e:    bundle.TotalKgCO2e,
		WarningCount:   bundle.WarningCount,
		ExcludedCount:  bundle.ExcludedCount,
		CreatedAt:      time.Now().UTC(),
	}
	receipt := &Receipt{}

	manifest.DocumentKey = path.Join(dir, "disclosure.xhtml")
	if err := p.upload(ctx, manifest.DocumentKey, bundle.Document, ContentTypeXHTML); err != nil {
		return nil, err
	}
	receipt.DocumentURI = p.uri(manifest.DocumentKey)

	if len(bundle.Workbook) > 0 {
		manifest.WorkbookKey = path.Join(dir, "inventory.xlsx")
		if err := p.upload(ctx, manifest.WorkbookKey, bundle.Workbook, ContentTypeXLSX); err != nil {
			return nil, err
		}
		receipt.WorkbookURI = p.uri(manifest.WorkbookKey)
	}
	if len(bundle.Summary) > 0 {
		manifest.SummaryKey = path.Join(dir, "summary.pdf")
		if err := p.upload(ctx, manifest.SummaryKey, bundle.Summary, ContentTypePDF); err != nil {
			return nil, err
		}
		receipt.SummaryURI = p.uri(manifest.SummaryKey)
	}

	if p.manifests != nil {
		if err := p.manifests.Put(ctx, manifest); err != nil {
			return nil, err
		}
	}
	receipt.Manifest = manifest

	p.logger.Info("Disclosure published",
		zap.String("report_id", bundle.ReportID),
		zap.String("document", receipt.DocumentURI))

	if p.notifier != nil {
		receipt.Deliveries = p.notifier.Notify(ctx, Notice{
			Subject:    noticeSubject(bundle),
			Body:       noticeBody(bundle, receipt),
			Recipients: bundle.Recipients,
			Attributes: map[string]string{
				"report_id":       bundle.ReportID,
				"organization_id": bundle.OrganizationID,
				"fingerprint":     bundle.Fingerprint,
			},
		})
	}
	return receipt, nil
}

func (p *Publisher) upload(ctx context.Context, key string, data []byte, contentType string) error {
	if err := p.store.Upload(ctx, p.config.Bucket, key, bytes.NewReader(data), contentType); err != nil {
		p.logger.Error("Failed to upload disclosure artifact", zap.Error(err), zap.String("key", key))
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// keyPrefix is <prefix>/<organization>/<start>_<end>/<report>
func (p *Publisher) keyPrefix(bundle Bundle) string {
	org := bundle.OrganizationID
	if org == "" {
		org = "adhoc"
	}
	period := bundle.PeriodStart.Format("2006-01-02") + "_" + bundle.PeriodEnd.Format("2006-01-02")
	return path.Join(strings.Trim(p.config.Prefix, "/"), org, period, bundle.ReportID)
}

func (p *Publisher) uri(key string) string {
	return "s3://" + p.config.Bucket + "/" + key
}

func noticeSubject(bundle Bundle) string {
	name := bundle.EntityName
	if name == "" {
		name = bundle.OrganizationID
	}
	return fmt.Sprintf("GHG disclosure %s to %s for %s",
		bundle.PeriodStart.Format("2006-01-02"), bundle.PeriodEnd.Format("2006-01-02"), name)
}

func noticeBody(bundle Bundle, receipt *Receipt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Report %s has been published.\n", bundle.ReportID)
	fmt.Fprintf(&b, "Total emissions: %s kgCO2e\n", bundle.TotalKgCO2e)
	fmt.Fprintf(&b, "Document: %s\n", receipt.DocumentURI)
	if receipt.WorkbookURI != "" {
		fmt.Fprintf(&b, "Inventory workbook: %s\n", receipt.WorkbookURI)
	}
	if receipt.SummaryURI != "" {
		fmt.Fprintf(&b, "Summary: %s\n", receipt.SummaryURI)
	}
	if bundle.WarningCount > 0 || bundle.ExcludedCount > 0 {
		fmt.Fprintf(&b, "Warnings: %d, excluded activities: %d\n", bundle.WarningCount, bundle.ExcludedCount)
	}
	fmt.Fprintf(&b, "Input fingerprint: %s\n", bundle.Fingerprint)
	return b.String()
}
