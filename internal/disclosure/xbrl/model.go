package xbrl

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the XBRL date format
const DateLayout = "2006-01-02"

// =====================================================
// Periods and contexts
// =====================================================

// Period is either a duration (Start and End) or an instant
type Period struct {
	Start   time.Time `json:"start,omitempty"`
	End     time.Time `json:"end,omitempty"`
	Instant time.Time `json:"instant,omitempty"`
}

// Duration returns a duration period
func Duration(start, end time.Time) Period {
	return Period{Start: start, End: end}
}

// Instant returns an instant period
func Instant(at time.Time) Period {
	return Period{Instant: at}
}

// IsInstant reports whether the period is an instant
func (p Period) IsInstant() bool {
	return !p.Instant.IsZero()
}

// Validate enforces exactly one of (start+end) or instant
func (p Period) Validate() error {
	hasDuration := !p.Start.IsZero() || !p.End.IsZero()
	switch {
	case hasDuration && p.IsInstant():
		return &StructuralError{Kind: KindInvalidContext, Detail: "period has both an instant and a start/end date"}
	case p.IsInstant():
		return nil
	case p.Start.IsZero() || p.End.IsZero():
		return &StructuralError{Kind: KindInvalidContext, Detail: "duration period needs both a start and an end date"}
	case p.End.Before(p.Start):
		return &StructuralError{Kind: KindInvalidContext, Detail: "period ends before it starts"}
	}
	return nil
}

func (p Period) key() string {
	if p.IsInstant() {
		return p.Instant.Format(DateLayout)
	}
	return p.Start.Format(DateLayout) + "_" + p.End.Format(DateLayout)
}

// Entity identifies the reporting entity of a context
type Entity struct {
	Identifier string `json:"identifier"`
	Scheme     string `json:"scheme"`
}

// Context binds facts to an entity and a period
type Context struct {
	ID     string `json:"id"`
	Entity Entity `json:"entity"`
	Period Period `json:"period"`
}

// =====================================================
// Units
// =====================================================

// Measure is a simple measure, or a ratio when Denominator is set. Both parts
// are qualified names such as "ghg:kgCO2e" or "iso4217:USD".
type Measure struct {
	Numerator   string `json:"numerator"`
	Denominator string `json:"denominator,omitempty"`
}

// IsDivide reports whether the measure is a ratio
func (m Measure) IsDivide() bool {
	return m.Denominator != ""
}

func (m Measure) key() string {
	if m.IsDivide() {
		return m.Numerator + "/" + m.Denominator
	}
	return m.Numerator
}

// Unit is a declared measure referenced by numeric facts
type Unit struct {
	ID      string  `json:"id"`
	Measure Measure `json:"measure"`
}

// =====================================================
// Facts
// =====================================================

// FactKind separates numeric facts from text facts
type FactKind string

const (
	KindNumeric FactKind = "numeric"
	KindText    FactKind = "text"
)

// Fact is one tagged value
type Fact struct {
	ID         string          `json:"id"`
	Concept    string          `json:"concept"`
	ContextRef string          `json:"context_ref"`
	UnitRef    string          `json:"unit_ref,omitempty"`
	Decimals   *int            `json:"decimals,omitempty"`
	Kind       FactKind        `json:"kind"`
	Value      decimal.Decimal `json:"value"`
	Text       string          `json:"text"`
	Negative   bool            `json:"negative,omitempty"`
	Format     string          `json:"format,omitempty"`
	Lang       string          `json:"lang,omitempty"`
	Label      string          `json:"label,omitempty"`
	Group      string          `json:"group,omitempty"`
}

// Namespace is a prefix declared on the document root
type Namespace struct {
	Prefix string `json:"prefix"`
	URI    string `json:"uri"`
}

// =====================================================
// Document
// =====================================================

// Document is a validated, serialized disclosure. It is immutable once
// returned by the assembler.
type Document struct {
	Title              string        `json:"title"`
	Lang               string        `json:"lang"`
	SchemaRef          string        `json:"schema_ref"`
	Namespaces         []Namespace   `json:"namespaces"`
	Contexts           []Context     `json:"contexts"`
	Units              []Unit        `json:"units"`
	Facts              []Fact        `json:"facts"`
	ValidationWarnings []RollupIssue `json:"validation_warnings"`
	Stages             []Stage       `json:"stages"`

	text string
}

// Serialize returns the XHTML text of the document
func (d *Document) Serialize() string {
	return d.text
}

// Bytes returns the XHTML text as bytes
func (d *Document) Bytes() []byte {
	return []byte(d.text)
}

// FactsByConcept returns every fact tagged with concept
func (d *Document) FactsByConcept(concept string) []Fact {
	var out []Fact
	for _, f := range d.Facts {
		if f.Concept == concept {
			out = append(out, f)
		}
	}
	return out
}

// Fact returns the fact for concept in the given context
func (d *Document) Fact(concept, contextID string) (Fact, bool) {
	for _, f := range d.Facts {
		if f.Concept == concept && f.ContextRef == contextID {
			return f, true
		}
	}
	return Fact{}, false
}

// prefixOf returns the prefix of a qualified name, or "" if it has none
func prefixOf(qname string) string {
	prefix, _, found := strings.Cut(qname, ":")
	if !found {
		return ""
	}
	return prefix
}
