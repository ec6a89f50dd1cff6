package xbrl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"carbon-scribe/ghg-disclosure-backend/pkg/workflows"
)

// Stage is a step of document assembly
type Stage string

const (
	StageInit              Stage = "INIT"
	StageDeclareNamespaces Stage = "DECLARE_NAMESPACES"
	StageBuildContexts     Stage = "BUILD_CONTEXTS"
	StageBuildUnits        Stage = "BUILD_UNITS"
	StageBuildFacts        Stage = "BUILD_FACTS"
	StageValidateRollups   Stage = "VALIDATE_ROLLUPS"
	StageSerialize         Stage = "SERIALIZE"
	StageDone              Stage = "DONE"
	StageFailed            Stage = "FAILED"
)

// newStageMachine enforces the linear assembly order. FAILED is reachable
// from every stage that can detect a problem.
func newStageMachine() *workflows.StateMachine[Stage] {
	return workflows.NewStateMachine(StageInit, map[Stage][]Stage{
		StageInit:              {StageDeclareNamespaces, StageFailed},
		StageDeclareNamespaces: {StageBuildContexts, StageFailed},
		StageBuildContexts:     {StageBuildUnits, StageFailed},
		StageBuildUnits:        {StageBuildFacts, StageFailed},
		StageBuildFacts:        {StageValidateRollups, StageFailed},
		StageValidateRollups:   {StageSerialize, StageFailed},
		StageSerialize:         {StageDone, StageFailed},
		StageDone:              {},
		StageFailed:            {},
	})
}

// NumericDraft is a numeric fact before ids are assigned
type NumericDraft struct {
	Concept  string
	Period   Period
	Measure  Measure
	Value    decimal.Decimal
	Decimals int
	// Text overrides the formatted display text; it is normalized and must
	// still parse to Value
	Text  string
	Label string
	Group string
}

// TextDraft is a text fact before ids are assigned
type TextDraft struct {
	Concept string
	Period  Period
	Value   string
	Lang    string
	Label   string
}

// DocumentOptions describes the document being built
type DocumentOptions struct {
	Entity             Entity
	Title              string
	Lang               string
	ThousandsSeparator string
}

type draft struct {
	kind    FactKind
	numeric NumericDraft
	text    TextDraft
	display string
}

func (d draft) concept() string {
	if d.kind == KindNumeric {
		return d.numeric.Concept
	}
	return d.text.Concept
}

func (d draft) period() Period {
	if d.kind == KindNumeric {
		return d.numeric.Period
	}
	return d.text.Period
}

// Builder collects facts and assembles them into a Document. Facts are
// checked as they are added; Build runs the remaining stages.
type Builder struct {
	taxonomy Taxonomy
	options  DocumentOptions
	rollups  []Rollup
	drafts   []draft
	stages   []Stage
}

// NewBuilder creates a builder using the taxonomy's namespaces and roll-ups
func NewBuilder(taxonomy Taxonomy, options DocumentOptions) *Builder {
	if options.Lang == "" {
		options.Lang = "en"
	}
	return &Builder{
		taxonomy: taxonomy,
		options:  options,
		rollups:  taxonomy.ResolveRollups(),
	}
}

// WithRollups replaces the roll-up rules checked by Build
func (b *Builder) WithRollups(rollups []Rollup) *Builder {
	b.rollups = rollups
	return b
}

// AddNumeric adds a numeric fact. Unnamed facts, invalid periods and text
// that does not survive whitespace normalization are rejected here.
func (b *Builder) AddNumeric(d NumericDraft) error {
	d.Concept = strings.TrimSpace(d.Concept)
	if d.Concept == "" {
		return &StructuralError{Kind: KindUnnamedFact, Detail: fmt.Sprintf("numeric fact %q has no concept name", d.Label)}
	}
	if err := d.Period.Validate(); err != nil {
		return withConcept(err, d.Concept)
	}
	if d.Measure.Numerator == "" {
		return &StructuralError{Kind: KindInvalidUnit, Concept: d.Concept, Detail: "numeric fact has no measure"}
	}
	if d.Decimals < 0 {
		return fmt.Errorf("fact %s: decimals must not be negative", d.Concept)
	}

	d.Value = d.Value.Round(int32(d.Decimals))
	text := d.Text
	if text == "" {
		text = FormatNumber(d.Value, d.Decimals, b.options.ThousandsSeparator)
	}
	display, err := NormalizeNumericText(text, d.Value)
	if err != nil {
		return withConcept(err, d.Concept)
	}

	b.drafts = append(b.drafts, draft{kind: KindNumeric, numeric: d, display: display})
	return nil
}

// AddText adds a text fact
func (b *Builder) AddText(d TextDraft) error {
	d.Concept = strings.TrimSpace(d.Concept)
	if d.Concept == "" {
		return &StructuralError{Kind: KindUnnamedFact, Detail: fmt.Sprintf("text fact %q has no concept name", d.Label)}
	}
	if err := d.Period.Validate(); err != nil {
		return withConcept(err, d.Concept)
	}
	if d.Lang == "" {
		d.Lang = b.options.Lang
	}
	b.drafts = append(b.drafts, draft{kind: KindText, text: d, display: d.Value})
	return nil
}

// Stages returns the stages visited by the last Build
func (b *Builder) Stages() []Stage {
	return append([]Stage(nil), b.stages...)
}

// Build runs the assembly stages and returns the validated, serialized
// document. Roll-up warnings are attached to the document; roll-up errors and
// structural violations abort the build.
func (b *Builder) Build() (*Document, error) {
	sm := newStageMachine()
	defer func() { b.stages = sm.History() }()

	doc := &Document{
		Title:     b.options.Title,
		Lang:      b.options.Lang,
		SchemaRef: b.taxonomy.SchemaRef,
	}

	steps := []struct {
		stage Stage
		run   func(*Document) error
	}{
		{StageDeclareNamespaces, b.declareNamespaces},
		{StageBuildContexts, b.buildContexts},
		{StageBuildUnits, b.buildUnits},
		{StageBuildFacts, b.buildFacts},
		{StageValidateRollups, b.validateRollups},
		{StageSerialize, serializeInto},
	}
	for _, step := range steps {
		if err := sm.Transition(step.stage); err != nil {
			return nil, err
		}
		if err := step.run(doc); err != nil {
			_ = sm.Transition(StageFailed)
			return nil, err
		}
	}
	if err := sm.Transition(StageDone); err != nil {
		return nil, err
	}

	doc.Stages = sm.History()
	return doc, nil
}

func (b *Builder) declareNamespaces(doc *Document) error {
	registry := NewNamespaceRegistry()

	var prefixes []string
	prefixes = append(prefixes, structuralPrefixes...)
	for _, d := range b.drafts {
		concept := d.concept()
		prefix := prefixOf(concept)
		if prefix == "" {
			return &StructuralError{Kind: KindUndeclaredNamespace, Concept: concept, Detail: "concept name has no namespace prefix"}
		}
		prefixes = append(prefixes, prefix)
		if d.kind == KindNumeric {
			for _, m := range []string{d.numeric.Measure.Numerator, d.numeric.Measure.Denominator} {
				if m != "" {
					prefixes = append(prefixes, prefixOf(m))
				}
			}
			if numericFormat(d.display) != "" {
				prefixes = append(prefixes, "ixt")
			}
		}
	}

	for _, prefix := range prefixes {
		if prefix == "" {
			return &StructuralError{Kind: KindUndeclaredNamespace, Detail: "measure has no namespace prefix"}
		}
		uri, ok := b.taxonomy.ResolveNamespace(prefix)
		if !ok {
			return &StructuralError{Kind: KindUndeclaredNamespace, Detail: fmt.Sprintf("prefix %q is used but has no namespace", prefix)}
		}
		if err := registry.Declare(prefix, uri); err != nil {
			return err
		}
	}

	doc.Namespaces = registry.Namespaces()
	return nil
}

func (b *Builder) buildContexts(doc *Document) error {
	entity := b.options.Entity
	if strings.TrimSpace(entity.Identifier) == "" || strings.TrimSpace(entity.Scheme) == "" {
		return &StructuralError{Kind: KindInvalidContext, Detail: "entity identifier and scheme are required"}
	}

	seen := make(map[string]bool)
	for _, d := range b.drafts {
		p := d.period()
		id := contextID(p)
		if seen[id] {
			continue
		}
		seen[id] = true
		doc.Contexts = append(doc.Contexts, Context{ID: id, Entity: entity, Period: p})
	}
	return nil
}

func (b *Builder) buildUnits(doc *Document) error {
	seen := make(map[string]bool)
	for _, d := range b.drafts {
		if d.kind != KindNumeric {
			continue
		}
		m := d.numeric.Measure
		if seen[m.key()] {
			continue
		}
		seen[m.key()] = true
		doc.Units = append(doc.Units, Unit{ID: unitID(m), Measure: m})
	}
	return nil
}

func (b *Builder) buildFacts(doc *Document) error {
	for i, d := range b.drafts {
		fact := Fact{
			ID:         "f-" + strconv.Itoa(i+1),
			Concept:    d.concept(),
			ContextRef: contextID(d.period()),
			Kind:       d.kind,
			Text:       d.display,
		}
		switch d.kind {
		case KindNumeric:
			decimals := d.numeric.Decimals
			fact.UnitRef = unitID(d.numeric.Measure)
			fact.Decimals = &decimals
			fact.Value = d.numeric.Value
			fact.Negative = d.numeric.Value.IsNegative()
			fact.Format = numericFormat(d.display)
			fact.Label = d.numeric.Label
			fact.Group = d.numeric.Group
		case KindText:
			fact.Lang = d.text.Lang
			fact.Label = d.text.Label
		}
		doc.Facts = append(doc.Facts, fact)
	}
	return ValidateStructure(doc)
}

func (b *Builder) validateRollups(doc *Document) error {
	issues := ValidateRollups(doc.Facts, b.rollups)

	var failed bool
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			failed = true
		} else {
			doc.ValidationWarnings = append(doc.ValidationWarnings, issue)
		}
	}
	if failed {
		return &RollupMismatchError{Issues: issues}
	}
	return nil
}

func serializeInto(doc *Document) error {
	text, err := Serialize(doc)
	if err != nil {
		return err
	}
	if err := VerifyWellFormed(text); err != nil {
		return err
	}
	doc.text = text
	return nil
}

// numericFormat returns the transformation format needed to read grouped digits
func numericFormat(display string) string {
	if strings.ContainsAny(display, " ,") {
		return "ixt:num-dot-decimal"
	}
	return ""
}

func contextID(p Period) string {
	if p.IsInstant() {
		return "c-i-" + p.key()
	}
	return "c-d-" + p.key()
}

func unitID(m Measure) string {
	id := "u-" + localName(m.Numerator)
	if m.IsDivide() {
		id += "-per-" + localName(m.Denominator)
	}
	return id
}

func localName(qname string) string {
	if _, local, found := strings.Cut(qname, ":"); found {
		return local
	}
	return qname
}

func withConcept(err error, concept string) error {
	if se, ok := err.(*StructuralError); ok && se.Concept == "" {
		copied := *se
		copied.Concept = concept
		return &copied
	}
	return err
}
