package emissions

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ScopeTag is the canonical GHG Protocol scope of an activity. Scope 2 carries
// its accounting basis so location- and market-based figures never mix silently.
type ScopeTag string

const (
	Scope1         ScopeTag = "SCOPE_1"
	Scope2Location ScopeTag = "SCOPE_2_LOCATION"
	Scope2Market   ScopeTag = "SCOPE_2_MARKET"
	Scope3         ScopeTag = "SCOPE_3"
)

// AllScopeNumbers lists the scope numbers reported in every aggregation.
var AllScopeNumbers = []int{1, 2, 3}

// NormalizeScope coerces loosely formatted scope input ("1", "scope 1",
// "Scope-2 (market)", "SCOPE_3") into a ScopeTag. Plain scope 2 defaults to the
// location-based basis.
func NormalizeScope(raw string) (ScopeTag, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	replacer := strings.NewReplacer("_", " ", "-", " ", "(", " ", ")", " ", "/", " ")
	fields := strings.Fields(replacer.Replace(s))
	if len(fields) > 0 && strings.HasPrefix(fields[0], "scope") {
		if rest := strings.TrimPrefix(fields[0], "scope"); rest != "" {
			fields[0] = rest
		} else {
			fields = fields[1:]
		}
	}
	if len(fields) == 0 {
		return "", &UnrecognizedScopeError{Input: raw}
	}

	switch fields[0] {
	case "1", "one", "i":
		if len(fields) == 1 {
			return Scope1, nil
		}
	case "2", "two", "ii":
		if len(fields) == 1 {
			return Scope2Location, nil
		}
		switch strings.Join(fields[1:], " ") {
		case "location", "location based", "lb":
			return Scope2Location, nil
		case "market", "market based", "mb":
			return Scope2Market, nil
		}
	case "3", "three", "iii":
		if len(fields) == 1 {
			return Scope3, nil
		}
	}
	return "", &UnrecognizedScopeError{Input: raw}
}

// ScopeFromNumber maps 1, 2 or 3 to its tag; scope 2 maps to the location basis.
func ScopeFromNumber(n int) (ScopeTag, error) {
	return NormalizeScope(strconv.Itoa(n))
}

// Number returns 1, 2 or 3, or 0 for an invalid tag.
func (s ScopeTag) Number() int {
	switch s {
	case Scope1:
		return 1
	case Scope2Location, Scope2Market:
		return 2
	case Scope3:
		return 3
	}
	return 0
}

// FactorScope is the scope label used to key emission factor tables, which do
// not distinguish the scope 2 basis.
func (s ScopeTag) FactorScope() string {
	switch s.Number() {
	case 1:
		return "SCOPE_1"
	case 2:
		return "SCOPE_2"
	case 3:
		return "SCOPE_3"
	}
	return ""
}

// Valid reports whether s is one of the four canonical tags.
func (s ScopeTag) Valid() bool {
	return s.Number() != 0
}

// UnmarshalJSON accepts either a number or any string NormalizeScope understands.
func (s *ScopeTag) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		tag, err := ScopeFromNumber(n)
		if err != nil {
			return err
		}
		*s = tag
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return &UnrecognizedScopeError{Input: string(data)}
	}
	tag, err := NormalizeScope(raw)
	if err != nil {
		return err
	}
	*s = tag
	return nil
}
