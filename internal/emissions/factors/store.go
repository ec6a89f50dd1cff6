package factors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
)

// FactorRow is the persisted form of a factor table entry
type FactorRow struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Scope              string          `gorm:"size:16;not null;index:idx_emission_factor_lookup" json:"scope"`
	Category           string          `gorm:"size:128;not null;index:idx_emission_factor_lookup" json:"category"`
	ActivityType       string          `gorm:"size:255;not null;index:idx_emission_factor_lookup" json:"activity_type"`
	CountryCode        string          `gorm:"size:32;not null;index:idx_emission_factor_lookup" json:"country_code"`
	FactorValue        decimal.Decimal `gorm:"type:numeric(24,10);not null" json:"factor_value"`
	Unit               string          `gorm:"size:64;not null" json:"unit"`
	SourceDataset      string          `gorm:"size:128" json:"source_dataset"`
	SourceRegion       string          `gorm:"size:64" json:"source_region"`
	UncertaintyPercent float64         `json:"uncertainty_percent"`
	ValidFrom          int             `gorm:"not null;default:0" json:"valid_from"`
	ValidTo            int             `gorm:"not null;default:0" json:"valid_to"`
	Metadata           datatypes.JSON  `json:"metadata,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TableName overrides the gorm default
func (FactorRow) TableName() string { return "emission_factors" }

// SectorLabelRow maps a free-text sector label to a canonical sector
type SectorLabelRow struct {
	Label     string    `gorm:"primaryKey;size:255" json:"label"`
	Sector    string    `gorm:"size:255;not null" json:"sector"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the gorm default
func (SectorLabelRow) TableName() string { return "sector_labels" }

// ToEntry converts the row to a table entry
func (r FactorRow) ToEntry() Entry {
	return Entry{
		Key: emissions.FactorKey{
			Scope:        r.Scope,
			Category:     r.Category,
			ActivityType: r.ActivityType,
			CountryCode:  r.CountryCode,
		},
		Factor: emissions.EmissionFactor{
			FactorValue:        r.FactorValue,
			Unit:               r.Unit,
			SourceDataset:      r.SourceDataset,
			SourceRegion:       r.SourceRegion,
			UncertaintyPercent: r.UncertaintyPercent,
			ValidYears:         emissions.YearRange{From: r.ValidFrom, To: r.ValidTo},
		},
	}
}

// RowFromEntry converts an entry to a row ready for insertion. The scope is
// stored in its canonical factor form.
func RowFromEntry(e Entry, metadata map[string]any) (FactorRow, error) {
	normalized, err := NormalizeEntry(e)
	if err != nil {
		return FactorRow{}, fmt.Errorf("invalid factor %s/%s/%s: %w", e.Key.Category, e.Key.ActivityType, e.Key.CountryCode, err)
	}
	e = normalized
	row := FactorRow{
		ID:                 uuid.New(),
		Scope:              e.Key.Scope,
		Category:           e.Key.Category,
		ActivityType:       e.Key.ActivityType,
		CountryCode:        e.Key.CountryCode,
		FactorValue:        e.Factor.FactorValue,
		Unit:               e.Factor.Unit,
		SourceDataset:      e.Factor.SourceDataset,
		SourceRegion:       e.Factor.SourceRegion,
		UncertaintyPercent: e.Factor.UncertaintyPercent,
		ValidFrom:          e.Factor.ValidYears.From,
		ValidTo:            e.Factor.ValidYears.To,
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return FactorRow{}, fmt.Errorf("failed to encode factor metadata: %w", err)
		}
		row.Metadata = datatypes.JSON(raw)
	}
	return row, nil
}

// Store persists factor tables and sector labels in PostgreSQL
type Store struct {
	db *gorm.DB
}

// OpenDatabase opens a gorm connection to PostgreSQL
func OpenDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open factor database: %w", err)
	}
	return db, nil
}

// NewStore creates a factor store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the factor tables
func (s *Store) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&FactorRow{}, &SectorLabelRow{})
}

// LoadTable reads every factor whose validity overlaps the years from..to
// into a MemoryTable. This is the only I/O on the factor path; the resolver
// then works purely in memory.
func (s *Store) LoadTable(ctx context.Context, fromYear, toYear int) (*MemoryTable, error) {
	if toYear < fromYear {
		fromYear, toYear = toYear, fromYear
	}
	var rows []FactorRow
	err := s.db.WithContext(ctx).
		Where("(valid_from = 0 OR valid_from <= ?) AND (valid_to = 0 OR valid_to >= ?)", toYear, fromYear).
		Order("valid_from DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load emission factors: %w", err)
	}

	entries := make([]Entry, len(rows))
	for i, row := range rows {
		entries[i] = row.ToEntry()
	}
	return NewMemoryTable(entries), nil
}

// LoadSectorMappings reads every sector label mapping
func (s *Store) LoadSectorMappings(ctx context.Context) (map[string]string, error) {
	var rows []SectorLabelRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load sector labels: %w", err)
	}

	mappings := make(map[string]string, len(rows))
	for _, row := range rows {
		mappings[row.Label] = row.Sector
	}
	return mappings, nil
}

// SaveEntries inserts factor entries in batches
func (s *Store) SaveEntries(ctx context.Context, entries []Entry) error {
	rows := make([]FactorRow, 0, len(entries))
	for _, e := range entries {
		row, err := RowFromEntry(e, nil)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, 500).Error; err != nil {
		return fmt.Errorf("failed to save emission factors: %w", err)
	}
	return nil
}

// SaveSectorMappings upserts sector label mappings
func (s *Store) SaveSectorMappings(ctx context.Context, mappings map[string]string) error {
	rows := make([]SectorLabelRow, 0, len(mappings))
	for label, sector := range mappings {
		rows = append(rows, SectorLabelRow{Label: label, Sector: sector, UpdatedAt: time.Now()})
	}
	if len(rows) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "label"}},
			DoUpdates: clause.AssignmentColumns([]string{"sector", "updated_at"}),
		}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to save sector labels: %w", err)
	}
	return nil
}

// factorFile is the JSON layout accepted by DecodeTable
type factorFile struct {
	Factors []Entry           `json:"factors"`
	Sectors map[string]string `json:"sectors,omitempty"`
}

// DecodeEntries reads a JSON factor file ({"factors": [...], "sectors": {...}}).
// Entry keys come back normalized; an unrecognized scope fails the whole file.
func DecodeEntries(r io.Reader) ([]Entry, map[string]string, error) {
	var file factorFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, nil, fmt.Errorf("failed to parse factor file: %w", err)
	}
	for i, e := range file.Factors {
		normalized, err := NormalizeEntry(e)
		if err != nil {
			return nil, nil, fmt.Errorf("factor %d: %w", i, err)
		}
		file.Factors[i] = normalized
	}
	return file.Factors, file.Sectors, nil
}

// DecodeTable reads a JSON factor file into a table and its sector mappings
func DecodeTable(r io.Reader) (*MemoryTable, map[string]string, error) {
	entries, sectors, err := DecodeEntries(r)
	if err != nil {
		return nil, nil, err
	}
	return NewMemoryTable(entries), sectors, nil
}
