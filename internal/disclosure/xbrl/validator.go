package xbrl

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
)

// StructureResult collects every structural violation found in a document
type StructureResult struct {
	IsValid bool               `json:"is_valid"`
	Errors  []*StructuralError `json:"errors,omitempty"`
}

func (r *StructureResult) addError(err *StructuralError) {
	r.IsValid = false
	r.Errors = append(r.Errors, err)
}

// Err joins the violations into a single error, or returns nil
func (r *StructureResult) Err() error {
	if r.IsValid {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// ValidateStructure checks the document model: namespaces declared once,
// unique ids, well-formed contexts and units, and facts that are named,
// resolvable and free of exotic whitespace
func ValidateStructure(doc *Document) error {
	return CheckStructure(doc).Err()
}

// CheckStructure is ValidateStructure returning every violation
func CheckStructure(doc *Document) *StructureResult {
	result := &StructureResult{IsValid: true}

	registry := NewNamespaceRegistry()
	for _, ns := range doc.Namespaces {
		if registry.Declared(ns.Prefix) && ns.Prefix != "xml" {
			result.addError(&StructuralError{Kind: KindDuplicateNamespace, Detail: fmt.Sprintf("prefix %q declared more than once", ns.Prefix)})
			continue
		}
		if err := registry.Declare(ns.Prefix, ns.URI); err != nil {
			result.addError(asStructural(err))
		}
	}

	ids := make(map[string]bool)
	claimID := func(id string, owner *StructuralError) {
		if id == "" {
			owner.Kind = KindDuplicateID
			owner.Detail = "empty id"
			result.addError(owner)
			return
		}
		if ids[id] {
			owner.Kind = KindDuplicateID
			owner.Detail = fmt.Sprintf("id %q is used more than once", id)
			result.addError(owner)
			return
		}
		ids[id] = true
	}

	contexts := make(map[string]Context, len(doc.Contexts))
	for _, c := range doc.Contexts {
		claimID(c.ID, &StructuralError{ContextID: c.ID})
		contexts[c.ID] = c
		if c.Entity.Identifier == "" || c.Entity.Scheme == "" {
			result.addError(&StructuralError{Kind: KindInvalidContext, ContextID: c.ID, Detail: "entity identifier and scheme are required"})
		}
		if err := c.Period.Validate(); err != nil {
			se := asStructural(err)
			se.ContextID = c.ID
			result.addError(se)
		}
	}

	units := make(map[string]Unit, len(doc.Units))
	for _, u := range doc.Units {
		claimID(u.ID, &StructuralError{UnitID: u.ID})
		units[u.ID] = u
		if u.Measure.Numerator == "" {
			result.addError(&StructuralError{Kind: KindInvalidUnit, UnitID: u.ID, Detail: "unit has no measure"})
			continue
		}
		for _, m := range []string{u.Measure.Numerator, u.Measure.Denominator} {
			if m == "" {
				continue
			}
			if err := registry.RequireQName(m); err != nil {
				se := asStructural(err)
				se.UnitID = u.ID
				result.addError(se)
			}
		}
	}

	type factKey struct{ concept, context, unit string }
	facts := make(map[factKey]bool, len(doc.Facts))
	for _, f := range doc.Facts {
		claimID(f.ID, &StructuralError{Concept: f.Concept, ContextID: f.ContextRef})

		if f.Concept == "" {
			result.addError(&StructuralError{Kind: KindUnnamedFact, ContextID: f.ContextRef, Detail: fmt.Sprintf("fact %s has no concept name", f.ID)})
		} else if err := registry.RequireQName(f.Concept); err != nil {
			se := asStructural(err)
			se.ContextID = f.ContextRef
			result.addError(se)
		}

		if _, ok := contexts[f.ContextRef]; !ok {
			result.addError(&StructuralError{Kind: KindUnresolvedReference, Concept: f.Concept, ContextID: f.ContextRef, Detail: "context is not declared"})
		}

		key := factKey{f.Concept, f.ContextRef, f.UnitRef}
		if facts[key] {
			result.addError(&StructuralError{Kind: KindDuplicateFact, Concept: f.Concept, ContextID: f.ContextRef, Detail: "concept reported twice in the same context"})
		}
		facts[key] = true

		switch f.Kind {
		case KindNumeric:
			checkNumericFact(f, units, registry, result)
		case KindText:
			if f.UnitRef != "" {
				result.addError(&StructuralError{Kind: KindInvalidUnit, Concept: f.Concept, UnitID: f.UnitRef, Detail: "text fact must not reference a unit"})
			}
		default:
			result.addError(&StructuralError{Kind: KindMalformedOutput, Concept: f.Concept, Detail: fmt.Sprintf("unknown fact kind %q", f.Kind)})
		}
	}

	return result
}

func checkNumericFact(f Fact, units map[string]Unit, registry *NamespaceRegistry, result *StructureResult) {
	if _, ok := units[f.UnitRef]; !ok {
		result.addError(&StructuralError{Kind: KindUnresolvedReference, Concept: f.Concept, UnitID: f.UnitRef, Detail: "unit is not declared"})
	}
	if ContainsExoticSpace(f.Text) {
		result.addError(&StructuralError{Kind: KindInvalidWhitespace, Concept: f.Concept, ContextID: f.ContextRef, Detail: fmt.Sprintf("numeric text %q contains a non-standard space", f.Text)})
		return
	}
	parsed, err := ParseNumericText(f.Text)
	if err != nil {
		result.addError(&StructuralError{Kind: KindMalformedOutput, Concept: f.Concept, ContextID: f.ContextRef, Detail: err.Error()})
		return
	}
	if !parsed.Equal(f.Value.Abs()) || f.Negative != f.Value.IsNegative() {
		result.addError(&StructuralError{Kind: KindMalformedOutput, Concept: f.Concept, ContextID: f.ContextRef, Detail: fmt.Sprintf("text %q does not match value %s", f.Text, f.Value)})
	}
	if f.Format != "" {
		if err := registry.RequireQName(f.Format); err != nil {
			result.addError(asStructural(err))
		}
	}
}

func asStructural(err error) *StructuralError {
	var se *StructuralError
	if errors.As(err, &se) {
		copied := *se
		return &copied
	}
	return &StructuralError{Kind: KindMalformedOutput, Detail: err.Error()}
}

// ValidateRollups re-derives every declared total from the parts reported in
// the same context. Only contexts holding the total and at least one part
// are checked. Issues are ordered by rollup, then context.
func ValidateRollups(facts []Fact, rollups []Rollup) []RollupIssue {
	type key struct{ concept, context string }
	numeric := make(map[key]Fact)
	groups := make(map[string]map[string][]Fact)
	var contextIDs []string
	seenContext := make(map[string]bool)

	for _, f := range facts {
		if f.Kind != KindNumeric {
			continue
		}
		numeric[key{f.Concept, f.ContextRef}] = f
		if f.Group != "" {
			if groups[f.Group] == nil {
				groups[f.Group] = make(map[string][]Fact)
			}
			groups[f.Group][f.ContextRef] = append(groups[f.Group][f.ContextRef], f)
		}
		if !seenContext[f.ContextRef] {
			seenContext[f.ContextRef] = true
			contextIDs = append(contextIDs, f.ContextRef)
		}
	}
	sort.Strings(contextIDs)

	var issues []RollupIssue
	for _, rollup := range rollups {
		for _, ctx := range contextIDs {
			total, ok := numeric[key{rollup.Total, ctx}]
			if !ok {
				continue
			}

			var parts []Fact
			seen := make(map[string]bool)
			for _, concept := range rollup.Parts {
				if f, ok := numeric[key{concept, ctx}]; ok && !seen[concept] {
					parts = append(parts, f)
					seen[concept] = true
				}
			}
			if rollup.PartGroup != "" {
				for _, f := range groups[rollup.PartGroup][ctx] {
					if !seen[f.Concept] && f.Concept != rollup.Total {
						parts = append(parts, f)
						seen[f.Concept] = true
					}
				}
			}
			if len(parts) == 0 {
				continue
			}

			recomputed := decimal.Zero
			names := make([]string, len(parts))
			for i, p := range parts {
				recomputed = recomputed.Add(p.Value)
				names[i] = p.Concept
			}
			if withinRollupTolerance(total, parts, recomputed) {
				continue
			}

			issue := RollupIssue{
				Rollup:     rollup.Name,
				Total:      rollup.Total,
				ContextID:  ctx,
				Reported:   total.Value,
				Recomputed: recomputed,
				Parts:      names,
				Severity:   SeverityError,
			}
			if rollup.Overlapping {
				issue.Severity = SeverityWarning
				issue.Reason = "roll-up is declared as overlapping"
			} else if nested := nestedSubtotal(rollup, names, rollups, groups, ctx); nested != "" {
				issue.Severity = SeverityWarning
				issue.Reason = fmt.Sprintf("parts include subtotal %s together with its own components", nested)
			}
			issues = append(issues, issue)
		}
	}
	return issues
}

// withinRollupTolerance allows the dynamic roll-up tolerance plus half a unit
// of the last reported decimal place for every rounded figure involved
func withinRollupTolerance(total Fact, parts []Fact, recomputed decimal.Decimal) bool {
	reported, _ := total.Value.Float64()
	tolerance := emissions.RollupTolerance(reported)

	slack := roundingSlack(total)
	for _, p := range parts {
		slack += roundingSlack(p)
	}

	diff, _ := total.Value.Sub(recomputed).Abs().Float64()
	return diff <= math.Max(tolerance, slack)
}

func roundingSlack(f Fact) float64 {
	if f.Decimals == nil {
		return 0
	}
	return 0.5 * math.Pow10(-*f.Decimals)
}

// nestedSubtotal finds a part that is itself the total of another roll-up
// whose components are also among the parts, which double counts them
func nestedSubtotal(rollup Rollup, parts []string, rollups []Rollup, groups map[string]map[string][]Fact, ctx string) string {
	present := make(map[string]bool, len(parts))
	for _, p := range parts {
		present[p] = true
	}
	for _, other := range rollups {
		if other.Name == rollup.Name || !present[other.Total] {
			continue
		}
		for _, component := range other.Parts {
			if present[component] {
				return other.Total
			}
		}
		if other.PartGroup != "" {
			for _, f := range groups[other.PartGroup][ctx] {
				if present[f.Concept] {
					return other.Total
				}
			}
		}
	}
	return ""
}
