package xbrl

import (
	"strings"
	"unicode"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions/aggregation"
)

// ConceptKey names a reported figure independently of any taxonomy
type ConceptKey string

const (
	ConceptTotal                 ConceptKey = "total"
	ConceptScope1                ConceptKey = "scope1"
	ConceptScope2                ConceptKey = "scope2"
	ConceptScope2Location        ConceptKey = "scope2_location"
	ConceptScope2Market          ConceptKey = "scope2_market"
	ConceptScope3                ConceptKey = "scope3"
	ConceptIntensity             ConceptKey = "intensity"
	ConceptUncertaintyMean       ConceptKey = "uncertainty_mean"
	ConceptUncertaintyStdDev     ConceptKey = "uncertainty_std_dev"
	ConceptCI95Low               ConceptKey = "ci95_low"
	ConceptCI95High              ConceptKey = "ci95_high"
	ConceptRelativeUncertainty   ConceptKey = "relative_uncertainty"
	ConceptRecordCount           ConceptKey = "record_count"
	ConceptMonteCarloIterations  ConceptKey = "monte_carlo_iterations"
	ConceptEntityName            ConceptKey = "entity_name"
	ConceptUncertaintyMethod     ConceptKey = "uncertainty_method"
	ConceptConsolidationApproach ConceptKey = "consolidation_approach"
)

// GroupCategory tags per-category facts
const GroupCategory = "category"

// RollupRule declares that a total equals the sum of its parts. Parts may be
// listed explicitly, drawn from every fact of a group, or both.
type RollupRule struct {
	Name        string       `json:"name"`
	Total       ConceptKey   `json:"total"`
	Parts       []ConceptKey `json:"parts,omitempty"`
	PartGroup   string       `json:"part_group,omitempty"`
	Overlapping bool         `json:"overlapping,omitempty"`
}

// Rollup is a RollupRule with qualified concept names
type Rollup struct {
	Name        string
	Total       string
	Parts       []string
	PartGroup   string
	Overlapping bool
}

// Taxonomy supplies concept names, namespaces and roll-up rules. Any
// taxonomy with the same structure can be plugged in.
type Taxonomy struct {
	Prefix           string                `json:"prefix"`
	Namespace        string                `json:"namespace"`
	SchemaRef        string                `json:"schema_ref"`
	MassUnit         string                `json:"mass_unit"`
	Concepts         map[ConceptKey]string `json:"concepts"`
	CategoryConcepts map[string]string     `json:"category_concepts,omitempty"`
	Rollups          []RollupRule          `json:"rollups"`
	// Namespaces binds further prefixes used by qualified concept names
	Namespaces map[string]string `json:"namespaces,omitempty"`
}

// DefaultTaxonomy returns the built-in GHG disclosure taxonomy
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		Prefix:    "ghg",
		Namespace: "http://xbrl.carbon-scribe.io/taxonomy/ghg/2024",
		SchemaRef: "https://xbrl.carbon-scribe.io/taxonomy/ghg/2024/ghg-2024.xsd",
		MassUnit:  "kgCO2e",
		Concepts: map[ConceptKey]string{
			ConceptTotal:                 "GrossGreenhouseGasEmissions",
			ConceptScope1:                "GrossScope1GreenhouseGasEmissions",
			ConceptScope2:                "GrossScope2GreenhouseGasEmissions",
			ConceptScope2Location:        "GrossLocationBasedScope2GreenhouseGasEmissions",
			ConceptScope2Market:          "GrossMarketBasedScope2GreenhouseGasEmissions",
			ConceptScope3:                "GrossScope3GreenhouseGasEmissions",
			ConceptIntensity:             "GreenhouseGasEmissionsIntensityPerMillionRevenue",
			ConceptUncertaintyMean:       "EmissionsEstimateMean",
			ConceptUncertaintyStdDev:     "EmissionsEstimateStandardDeviation",
			ConceptCI95Low:               "EmissionsConfidenceIntervalLowerBound",
			ConceptCI95High:              "EmissionsConfidenceIntervalUpperBound",
			ConceptRelativeUncertainty:   "EmissionsRelativeUncertainty",
			ConceptRecordCount:           "ActivityRecordCount",
			ConceptMonteCarloIterations:  "MonteCarloIterations",
			ConceptEntityName:            "ReportingEntityName",
			ConceptUncertaintyMethod:     "UncertaintyQuantificationMethod",
			ConceptConsolidationApproach: "ConsolidationApproach",
		},
		Rollups: []RollupRule{
			{Name: "scopes", Total: ConceptTotal, Parts: []ConceptKey{ConceptScope1, ConceptScope2, ConceptScope3}},
			{Name: "categories", Total: ConceptTotal, PartGroup: GroupCategory},
			{Name: "scope2-basis", Total: ConceptScope2, Parts: []ConceptKey{ConceptScope2Location, ConceptScope2Market}},
		},
	}
}

// qualify prefixes a local name with the taxonomy prefix. Names that are
// already qualified are kept as they are.
func (t Taxonomy) qualify(name string) string {
	if name == "" || strings.Contains(name, ":") {
		return name
	}
	return t.Prefix + ":" + name
}

// Concept returns the qualified concept name for key. The second result is
// false when the taxonomy does not map the key at all; a key mapped to an
// empty name returns ("", true).
func (t Taxonomy) Concept(key ConceptKey) (string, bool) {
	name, ok := t.Concepts[key]
	if !ok {
		return "", false
	}
	return t.qualify(strings.TrimSpace(name)), true
}

// Normalized returns a copy whose category mappings are keyed the way the
// aggregation keys categories
func (t Taxonomy) Normalized() Taxonomy {
	if len(t.CategoryConcepts) == 0 {
		return t
	}
	mapped := make(map[string]string, len(t.CategoryConcepts))
	for category, name := range t.CategoryConcepts {
		mapped[aggregation.CategoryKey(category)] = name
	}
	t.CategoryConcepts = mapped
	return t
}

// CategoryConcept returns the concept name for a category. Unmapped
// categories are named "<CamelCase>Emissions", prefixed with "Category" when
// that name starts with a digit or is already taken by a fixed concept; a
// category with no letters or digits yields an empty name.
func (t Taxonomy) CategoryConcept(category string) string {
	if name, ok := t.categoryMapping(category); ok {
		return t.qualify(strings.TrimSpace(name))
	}
	camel := CamelCase(category)
	if camel == "" {
		return ""
	}
	if unicode.IsDigit(rune(camel[0])) {
		camel = "Category" + camel
	}
	name := t.qualify(camel + "Emissions")
	if t.isFixedConcept(name) {
		name = t.qualify("Category" + camel + "Emissions")
	}
	return name
}

func (t Taxonomy) categoryMapping(category string) (string, bool) {
	if name, ok := t.CategoryConcepts[category]; ok {
		return name, true
	}
	key := aggregation.CategoryKey(category)
	for k, name := range t.CategoryConcepts {
		if aggregation.CategoryKey(k) == key {
			return name, true
		}
	}
	return "", false
}

func (t Taxonomy) isFixedConcept(name string) bool {
	for key := range t.Concepts {
		if fixed, ok := t.Concept(key); ok && fixed == name {
			return true
		}
	}
	return false
}

// MassMeasure returns the qualified mass measure
func (t Taxonomy) MassMeasure() string {
	return t.qualify(t.MassUnit)
}

// ResolveNamespace returns the URI bound to prefix by the taxonomy or the
// inline XBRL standard
func (t Taxonomy) ResolveNamespace(prefix string) (string, bool) {
	if prefix == t.Prefix && t.Namespace != "" {
		return t.Namespace, true
	}
	if uri, ok := t.Namespaces[prefix]; ok {
		return uri, true
	}
	uri, ok := standardNamespaces[prefix]
	return uri, ok
}

// ResolveRollups qualifies the concept names of every rule. Rules whose
// total the taxonomy does not map are dropped.
func (t Taxonomy) ResolveRollups() []Rollup {
	out := make([]Rollup, 0, len(t.Rollups))
	for _, rule := range t.Rollups {
		total, ok := t.Concept(rule.Total)
		if !ok || total == "" {
			continue
		}
		r := Rollup{Name: rule.Name, Total: total, PartGroup: rule.PartGroup, Overlapping: rule.Overlapping}
		for _, p := range rule.Parts {
			if name, ok := t.Concept(p); ok && name != "" {
				r.Parts = append(r.Parts, name)
			}
		}
		out = append(out, r)
	}
	return out
}

// CamelCase turns "purchased_goods & services" into "PurchasedGoodsServices"
func CamelCase(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if r > unicode.MaxASCII {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
