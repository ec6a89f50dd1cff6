package factors

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
)

// DefaultOutlierThreshold flags per-currency factors above 100 kgCO2e per unit of currency
const DefaultOutlierThreshold = 100.0

// Options configures a Resolver
type Options struct {
	// OutlierThreshold flags (never rejects) per-currency factors whose value
	// exceeds it. Zero selects DefaultOutlierThreshold, a negative value disables flagging.
	OutlierThreshold float64 `json:"outlier_threshold"`

	// SupportedCountries lists the countries spend-based tables cover directly.
	// When nil, a country counts as covered when the table holds a per-currency
	// factor for it under the same scope, category and sector.
	SupportedCountries map[string]bool `json:"supported_countries,omitempty"`
}

// Resolution is a found factor plus how it was found
type Resolution struct {
	Factor     emissions.EmissionFactor `json:"factor"`
	MatchedKey emissions.FactorKey      `json:"matched_key"`
	Level      emissions.MatchLevel     `json:"level"`
	Outlier    bool                     `json:"outlier"`
	Sector     string                   `json:"sector,omitempty"`
	Tried      []emissions.FactorKey    `json:"tried"`
}

type spendCoverage interface {
	CoversSpend(key emissions.FactorKey) bool
}

// Resolver looks up emission factors with a deterministic fallback chain.
// It is safe for concurrent use; Reload swaps the table between builds.
type Resolver struct {
	mu        sync.RWMutex
	table     Table
	sectors   *SectorIndex
	supported map[string]bool
	coverage  spendCoverage
	options   Options
	cache     *ResolutionCache
}

// NewResolver creates a resolver over table. sectors may be nil when no
// spend-based activities are expected.
func NewResolver(table Table, sectors *SectorIndex, options Options) *Resolver {
	if options.OutlierThreshold == 0 {
		options.OutlierThreshold = DefaultOutlierThreshold
	}
	if sectors == nil {
		sectors = NewSectorIndex(nil)
	}
	r := &Resolver{
		sectors: sectors,
		options: options,
		cache:   NewResolutionCache(),
	}
	r.setTable(table)
	return r
}

func (r *Resolver) setTable(table Table) {
	r.table = table
	r.coverage = nil
	r.supported = nil
	if r.options.SupportedCountries != nil {
		r.supported = make(map[string]bool, len(r.options.SupportedCountries))
		for c, ok := range r.options.SupportedCountries {
			if ok {
				r.supported[normalizeCountry(c)] = true
			}
		}
		return
	}
	if coverage, ok := table.(spendCoverage); ok {
		r.coverage = coverage
	}
}

// coversSpend reports whether key's country is directly covered for spend lookups
func (r *Resolver) coversSpend(key emissions.FactorKey) bool {
	if r.supported != nil {
		return r.supported[key.CountryCode]
	}
	return r.coverage != nil && r.coverage.CoversSpend(key)
}

// Reload replaces the factor table and drops every cached resolution.
// Callers must not reload while a build is using the resolver.
func (r *Resolver) Reload(table Table) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.setTable(table)
	r.cache.Clear()
}

// ReloadSectors replaces the sector label mappings and drops cached resolutions
func (r *Resolver) ReloadSectors(mappings map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sectors.Reload(mappings)
	r.cache.Clear()
}

// CacheStats returns resolution cache statistics
func (r *Resolver) CacheStats() CacheStats {
	return r.cache.Stats()
}

// ResolveActivity resolves the factor for a record, taking the spend-based
// path when the record's unit is a currency
func (r *Resolver) ResolveActivity(record emissions.ActivityRecord) (*Resolution, error) {
	if record.IsSpendBased() {
		return r.ResolveSpend(record.Scope, record.Category, record.ActivityType, record.CountryCode, record.Year)
	}
	return r.Resolve(record.Scope, record.Category, record.ActivityType, record.CountryCode, record.Year)
}

// Resolve finds the factor for an activity-based lookup: the exact key first,
// then the same key at GLOBAL.
func (r *Resolver) Resolve(scope emissions.ScopeTag, category, activityType, countryCode string, year int) (*Resolution, error) {
	key, err := buildKey(scope, category, activityType, countryCode, year)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.cache.GetOrResolve("activity|"+key.String(), func() (*Resolution, error) {
		return r.walk(key, r.activityChain(key.CountryCode))
	})
}

// ResolveSpend finds a sector-indexed factor. The sector label is mapped to a
// canonical sector first; countries outside the supported set fall back to
// their region aggregate and then to GLOBAL.
func (r *Resolver) ResolveSpend(scope emissions.ScopeTag, category, sectorLabel, countryCode string, year int) (*Resolution, error) {
	key, err := buildKey(scope, category, sectorLabel, countryCode, year)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.cache.GetOrResolve("spend|"+key.String(), func() (*Resolution, error) {
		sector, err := r.sectors.Resolve(sectorLabel)
		if err != nil {
			return nil, err
		}
		key.ActivityType = sector
		res, err := r.walk(key, r.spendChain(key))
		if res != nil {
			res.Sector = sector
		}
		return res, err
	})
}

func buildKey(scope emissions.ScopeTag, category, activityType, countryCode string, year int) (emissions.FactorKey, error) {
	if !scope.Valid() {
		tag, err := emissions.NormalizeScope(string(scope))
		if err != nil {
			return emissions.FactorKey{}, err
		}
		scope = tag
	}
	return emissions.FactorKey{
		Scope:        scope.FactorScope(),
		Category:     strings.TrimSpace(category),
		ActivityType: strings.TrimSpace(activityType),
		CountryCode:  normalizeCountry(countryCode),
		Year:         year,
	}, nil
}

type chainStep struct {
	country string
	level   emissions.MatchLevel
}

func (r *Resolver) activityChain(country string) []chainStep {
	if country == emissions.GlobalRegion {
		return []chainStep{{country, emissions.MatchExact}}
	}
	return []chainStep{
		{country, emissions.MatchExact},
		{emissions.GlobalRegion, emissions.MatchGlobal},
	}
}

func (r *Resolver) spendChain(key emissions.FactorKey) []chainStep {
	country := key.CountryCode
	if country == emissions.GlobalRegion {
		return []chainStep{{country, emissions.MatchExact}}
	}
	var chain []chainStep
	if r.coversSpend(key) {
		chain = append(chain, chainStep{country, emissions.MatchExact})
	} else if region, ok := RegionFor(country); ok {
		chain = append(chain, chainStep{region, emissions.MatchRegion})
	}
	return append(chain, chainStep{emissions.GlobalRegion, emissions.MatchGlobal})
}

func (r *Resolver) walk(key emissions.FactorKey, chain []chainStep) (*Resolution, error) {
	tried := make([]emissions.FactorKey, 0, len(chain))
	for _, step := range chain {
		candidate := key.WithCountry(step.country)
		tried = append(tried, candidate)
		factor, ok := r.table.Lookup(candidate)
		if !ok {
			continue
		}
		return &Resolution{
			Factor:     factor,
			MatchedKey: candidate,
			Level:      step.level,
			Outlier:    r.isOutlier(factor),
			Tried:      tried,
		}, nil
	}
	return nil, &emissions.FactorNotFoundError{Key: key, Tried: tried}
}

func (r *Resolver) isOutlier(factor emissions.EmissionFactor) bool {
	if r.options.OutlierThreshold < 0 || !factor.IsPerCurrency() {
		return false
	}
	return factor.FactorValue.GreaterThan(decimal.NewFromFloat(r.options.OutlierThreshold))
}

// String describes the resolution for logs
func (res *Resolution) String() string {
	if res == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s via %s (%s)", res.Factor.FactorValue, res.MatchedKey, res.Level)
}
