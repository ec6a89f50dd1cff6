package activities

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
)

// Repository supplies activity records for one organization. Records come
// back already filtered to the organization; the pipeline does no tenant
// filtering of its own.
type Repository interface {
	ListForPeriod(ctx context.Context, organizationID uuid.UUID, start, end time.Time) ([]emissions.ActivityRecord, error)
	Insert(ctx context.Context, organizationID uuid.UUID, activityDate time.Time, records []emissions.ActivityRecord) error
	ListOrganizations(ctx context.Context) ([]uuid.UUID, error)
}

// activityRow mirrors the activity_records table
type activityRow struct {
	ID                 uuid.UUID       `db:"id"`
	OrganizationID     uuid.UUID       `db:"organization_id"`
	Scope              string          `db:"scope"`
	Category           string          `db:"category"`
	ActivityType       string          `db:"activity_type"`
	Quantity           string          `db:"quantity"`
	Unit               string          `db:"unit"`
	CountryCode        sql.NullString  `db:"country_code"`
	Year               int             `db:"year"`
	EvidenceType       sql.NullString  `db:"evidence_type"`
	ReportedAt         sql.NullTime    `db:"reported_at"`
	Description        sql.NullString  `db:"description"`
	SourceReference    sql.NullString  `db:"source_reference"`
	UncertaintyPercent sql.NullFloat64 `db:"uncertainty_percent"`
	ActivityDate       time.Time       `db:"activity_date"`
}

// toRecord converts a row into an ActivityRecord. A scope the normalizer does
// not recognize is kept verbatim so the resolver reports it as a typed error.
func (row activityRow) toRecord() (emissions.ActivityRecord, error) {
	quantity, err := decimal.NewFromString(row.Quantity)
	if err != nil {
		return emissions.ActivityRecord{}, fmt.Errorf("activity %s has an invalid quantity %q: %w", row.ID, row.Quantity, err)
	}
	scope, err := emissions.NormalizeScope(row.Scope)
	if err != nil {
		scope = emissions.ScopeTag(row.Scope)
	}

	record := emissions.ActivityRecord{
		ID:                 row.ID.String(),
		Scope:              scope,
		Category:           row.Category,
		ActivityType:       row.ActivityType,
		Quantity:           quantity,
		Unit:               row.Unit,
		CountryCode:        row.CountryCode.String,
		Year:               row.Year,
		EvidenceType:       emissions.EvidenceType(row.EvidenceType.String),
		Description:        row.Description.String,
		SourceReference:    row.SourceReference.String,
		UncertaintyPercent: row.UncertaintyPercent.Float64,
	}
	if row.ReportedAt.Valid {
		record.ReportedAt = row.ReportedAt.Time
	}
	return record, nil
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Connect opens a sqlx connection pool with the lib/pq driver
func Connect(ctx context.Context, databaseURL string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to activity database: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime > 0 {
		db.SetConnMaxLifetime(maxLifetime)
	}
	return db, nil
}

// Migrate creates the activity_records table and its indexes
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS activity_records (
			id UUID PRIMARY KEY,
			organization_id UUID NOT NULL,
			scope VARCHAR(32) NOT NULL,
			category VARCHAR(255) NOT NULL,
			activity_type VARCHAR(255) NOT NULL,
			quantity NUMERIC NOT NULL,
			unit VARCHAR(64) NOT NULL,
			country_code VARCHAR(8),
			year INTEGER NOT NULL,
			evidence_type VARCHAR(32),
			reported_at TIMESTAMPTZ,
			description TEXT,
			source_reference TEXT,
			uncertainty_percent DOUBLE PRECISION,
			activity_date DATE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_records_org_date ON activity_records (organization_id, activity_date)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate activity records: %w", err)
		}
	}
	return nil
}

// =====================================================
// Activity Records
// =====================================================

func (r *PostgresRepository) ListForPeriod(ctx context.Context, organizationID uuid.UUID, start, end time.Time) ([]emissions.ActivityRecord, error) {
	query := `
		SELECT id, organization_id, scope, category, activity_type, quantity::text AS quantity,
			   unit, country_code, year, evidence_type, reported_at, description,
			   source_reference, uncertainty_percent, activity_date
		FROM activity_records
		WHERE organization_id = $1
		  AND activity_date >= $2
		  AND activity_date <= $3
		ORDER BY activity_date, id
	`

	var rows []activityRow
	if err := r.db.SelectContext(ctx, &rows, query, organizationID, start, end); err != nil {
		return nil, fmt.Errorf("failed to list activity records: %w", err)
	}

	records := make([]emissions.ActivityRecord, 0, len(rows))
	for _, row := range rows {
		record, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, organizationID uuid.UUID, activityDate time.Time, records []emissions.ActivityRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO activity_records (
			id, organization_id, scope, category, activity_type, quantity, unit,
			country_code, year, evidence_type, reported_at, description,
			source_reference, uncertainty_percent, activity_date
		) VALUES (
			:id, :organization_id, :scope, :category, :activity_type, CAST(:quantity AS NUMERIC), :unit,
			:country_code, :year, :evidence_type, :reported_at, :description,
			:source_reference, :uncertainty_percent, :activity_date
		)
	`

	rows := make([]activityRow, len(records))
	for i, rec := range records {
		id, err := uuid.Parse(rec.ID)
		if err != nil {
			id = uuid.New()
		}
		rows[i] = activityRow{
			ID:                 id,
			OrganizationID:     organizationID,
			Scope:              string(rec.Scope),
			Category:           rec.Category,
			ActivityType:       rec.ActivityType,
			Quantity:           rec.Quantity.String(),
			Unit:               rec.Unit,
			CountryCode:        nullString(rec.CountryCode),
			Year:               rec.Year,
			EvidenceType:       nullString(string(rec.EvidenceType)),
			ReportedAt:         sql.NullTime{Time: rec.ReportedAt, Valid: !rec.ReportedAt.IsZero()},
			Description:        nullString(rec.Description),
			SourceReference:    nullString(rec.SourceReference),
			UncertaintyPercent: sql.NullFloat64{Float64: rec.UncertaintyPercent, Valid: rec.UncertaintyPercent != 0},
			ActivityDate:       activityDate,
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, query, rows); err != nil {
		return fmt.Errorf("failed to insert activity records: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit activity records: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListOrganizations(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := `SELECT DISTINCT organization_id FROM activity_records ORDER BY organization_id`
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return ids, nil
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
