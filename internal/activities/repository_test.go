package activities

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
)

func TestActivityRowToRecord(t *testing.T) {
	id := uuid.New()
	reported := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	row := activityRow{
		ID:                 id,
		Scope:              "scope 2 (market)",
		Category:           "electricity",
		ActivityType:       "grid",
		Quantity:           "1250.500",
		Unit:               "kWh",
		CountryCode:        sql.NullString{String: "DE", Valid: true},
		Year:               2024,
		EvidenceType:       sql.NullString{String: "invoice", Valid: true},
		ReportedAt:         sql.NullTime{Time: reported, Valid: true},
		UncertaintyPercent: sql.NullFloat64{Float64: 5, Valid: true},
	}

	record, err := row.toRecord()
	require.NoError(t, err)
	assert.Equal(t, id.String(), record.ID)
	assert.Equal(t, emissions.Scope2Market, record.Scope)
	assert.Equal(t, "1250.5", record.Quantity.String())
	assert.Equal(t, "DE", record.CountryCode)
	assert.Equal(t, emissions.EvidenceInvoice, record.EvidenceType)
	assert.Equal(t, reported, record.ReportedAt)
	assert.Equal(t, 5.0, record.UncertaintyPercent)
	assert.Empty(t, record.Description)
}

func TestActivityRowKeepsUnknownScope(t *testing.T) {
	row := activityRow{ID: uuid.New(), Scope: "scope 4", Quantity: "1"}
	record, err := row.toRecord()
	require.NoError(t, err)
	assert.Equal(t, emissions.ScopeTag("scope 4"), record.Scope)
	assert.False(t, record.Scope.Valid())
	assert.True(t, record.ReportedAt.IsZero())
}

func TestActivityRowRejectsBadQuantity(t *testing.T) {
	row := activityRow{ID: uuid.New(), Scope: "1", Quantity: "n/a"}
	_, err := row.toRecord()
	assert.Error(t, err)
}

func TestNullString(t *testing.T) {
	assert.False(t, nullString("  ").Valid)
	assert.Equal(t, sql.NullString{String: "x", Valid: true}, nullString(" x "))
}
