package factors

import (
	"sort"
	"strings"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
)

// Table is the lookup surface the resolver reads from. It returns at most one
// factor per key and must not perform I/O.
type Table interface {
	Lookup(key emissions.FactorKey) (emissions.EmissionFactor, bool)
}

// Entry is a factor together with the key it is filed under. The key's Year is
// ignored; the factor's ValidYears decides which years it serves.
type Entry struct {
	Key    emissions.FactorKey      `json:"key"`
	Factor emissions.EmissionFactor `json:"factor"`
}

type tableKey struct {
	scope, category, activityType, country string
}

// MemoryTable is an in-memory factor table, typically preloaded from the
// factor store once before a calculation run.
type MemoryTable struct {
	entries map[tableKey][]emissions.EmissionFactor
	// spend holds, per (scope, category, sector), the countries and regions
	// that carry a per-currency factor
	spend map[tableKey]map[string]bool
}

// NewMemoryTable builds a table from entries. Entry scopes go through
// emissions.NormalizeScope, so "scope 1", "1" and "SCOPE_1" file alike.
func NewMemoryTable(entries []Entry) *MemoryTable {
	t := &MemoryTable{
		entries: make(map[tableKey][]emissions.EmissionFactor),
		spend:   make(map[tableKey]map[string]bool),
	}
	for _, e := range entries {
		k := normalizeTableKey(e.Key)
		t.entries[k] = append(t.entries[k], e.Factor)
		if e.Factor.IsPerCurrency() {
			sector := k.withoutCountry()
			if t.spend[sector] == nil {
				t.spend[sector] = make(map[string]bool)
			}
			t.spend[sector][k.country] = true
		}
	}
	// newest validity window first so Lookup can stop at the first match
	for _, list := range t.entries {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].ValidYears.From > list[j].ValidYears.From
		})
	}
	return t
}

func normalizeTableKey(k emissions.FactorKey) tableKey {
	return tableKey{
		scope:        canonicalFactorScope(k.Scope),
		category:     strings.ToLower(strings.TrimSpace(k.Category)),
		activityType: strings.ToLower(strings.TrimSpace(k.ActivityType)),
		country:      normalizeCountry(k.CountryCode),
	}
}

func (k tableKey) withoutCountry() tableKey {
	k.country = ""
	return k
}

// canonicalFactorScope maps any scope spelling NormalizeScope accepts to the
// factor table label. Unrecognized input is only uppercased and never matches.
func canonicalFactorScope(raw string) string {
	tag, err := emissions.NormalizeScope(raw)
	if err != nil {
		return strings.ToUpper(strings.TrimSpace(raw))
	}
	return tag.FactorScope()
}

// NormalizeEntry rewrites the key of e into canonical form, rejecting a scope
// NormalizeScope does not recognize
func NormalizeEntry(e Entry) (Entry, error) {
	tag, err := emissions.NormalizeScope(e.Key.Scope)
	if err != nil {
		return Entry{}, err
	}
	e.Key.Scope = tag.FactorScope()
	e.Key.Category = strings.TrimSpace(e.Key.Category)
	e.Key.ActivityType = strings.TrimSpace(e.Key.ActivityType)
	e.Key.CountryCode = normalizeCountry(e.Key.CountryCode)
	return e, nil
}

// Lookup returns the factor filed under key whose validity covers key.Year
func (t *MemoryTable) Lookup(key emissions.FactorKey) (emissions.EmissionFactor, bool) {
	for _, f := range t.entries[normalizeTableKey(key)] {
		if f.ValidYears.Contains(key.Year) {
			return f, true
		}
	}
	return emissions.EmissionFactor{}, false
}

// CoversSpend reports whether the table holds a per-currency factor for the
// scope, category and sector of key in key's country, in any year
func (t *MemoryTable) CoversSpend(key emissions.FactorKey) bool {
	k := normalizeTableKey(key)
	return t.spend[k.withoutCountry()][k.country]
}

// Len returns the number of factors held
func (t *MemoryTable) Len() int {
	n := 0
	for _, list := range t.entries {
		n += len(list)
	}
	return n
}

func normalizeCountry(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return emissions.GlobalRegion
	}
	return code
}
