package factors

import (
	"strings"
	"sync"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
)

// minCanonicalSectorLength is the length from which an unmapped label is
// assumed to already be a canonical sector name
const minCanonicalSectorLength = 24

// canonicalSeparators mark a label as an already-canonical sector path
const canonicalSeparators = "/;:|>"

// SectorIndex maps free-text sector labels to canonical sector names. It is
// constructed explicitly and can be reloaded; concurrent reads are safe.
type SectorIndex struct {
	mu     sync.RWMutex
	exact  map[string]string
	folded map[string]string
}

// NewSectorIndex builds an index from label -> canonical sector mappings
func NewSectorIndex(mappings map[string]string) *SectorIndex {
	idx := &SectorIndex{}
	idx.Reload(mappings)
	return idx
}

// Reload atomically replaces all mappings
func (s *SectorIndex) Reload(mappings map[string]string) {
	exact := make(map[string]string, len(mappings))
	folded := make(map[string]string, len(mappings))
	for label, sector := range mappings {
		label = strings.TrimSpace(label)
		exact[label] = sector
		folded[strings.ToLower(label)] = sector
	}

	s.mu.Lock()
	s.exact = exact
	s.folded = folded
	s.mu.Unlock()
}

// Len returns the number of labels
func (s *SectorIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.exact)
}

// Resolve maps a label to its canonical sector: exact match first, then
// case-insensitive. An unmapped label is accepted as canonical when it is long
// or contains a separator character.
func (s *SectorIndex) Resolve(label string) (string, error) {
	trimmed := strings.TrimSpace(label)

	s.mu.RLock()
	sector, ok := s.exact[trimmed]
	if !ok {
		sector, ok = s.folded[strings.ToLower(trimmed)]
	}
	s.mu.RUnlock()
	if ok {
		return sector, nil
	}

	if len(trimmed) >= minCanonicalSectorLength || strings.ContainsAny(trimmed, canonicalSeparators) {
		return trimmed, nil
	}
	return "", &emissions.SectorUnresolvedError{Label: label}
}
