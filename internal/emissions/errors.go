package emissions

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes shared with the HTTP layer and exclusion records.
const (
	CodeFactorNotFound    = "FACTOR_NOT_FOUND"
	CodeSectorUnresolved  = "SECTOR_UNRESOLVED"
	CodeUnrecognizedScope = "UNRECOGNIZED_SCOPE"
)

var (
	// ErrFactorNotFound matches every *FactorNotFoundError.
	ErrFactorNotFound = errors.New("emission factor not found")
	// ErrSectorUnresolved matches every *SectorUnresolvedError.
	ErrSectorUnresolved = errors.New("sector label unresolved")
	// ErrUnrecognizedScope matches every *UnrecognizedScopeError.
	ErrUnrecognizedScope = errors.New("unrecognized scope")
)

// FactorNotFoundError reports that no key in the fallback chain matched.
type FactorNotFoundError struct {
	Key   FactorKey
	Tried []FactorKey
}

func (e *FactorNotFoundError) Error() string {
	tried := make([]string, len(e.Tried))
	for i, k := range e.Tried {
		tried[i] = k.String()
	}
	return fmt.Sprintf("no emission factor for %s (tried %s)", e.Key, strings.Join(tried, ", "))
}

func (e *FactorNotFoundError) Is(target error) bool { return target == ErrFactorNotFound }

// Code returns the stable error code.
func (e *FactorNotFoundError) Code() string { return CodeFactorNotFound }

// SectorUnresolvedError reports a spend-based sector label with no canonical sector.
type SectorUnresolvedError struct {
	Label string
}

func (e *SectorUnresolvedError) Error() string {
	return fmt.Sprintf("sector label %q does not map to a canonical sector", e.Label)
}

func (e *SectorUnresolvedError) Is(target error) bool { return target == ErrSectorUnresolved }

// Code returns the stable error code.
func (e *SectorUnresolvedError) Code() string { return CodeSectorUnresolved }

// UnrecognizedScopeError reports scope input NormalizeScope could not coerce.
type UnrecognizedScopeError struct {
	Input string
}

func (e *UnrecognizedScopeError) Error() string {
	return fmt.Sprintf("unrecognized scope %q", e.Input)
}

func (e *UnrecognizedScopeError) Is(target error) bool { return target == ErrUnrecognizedScope }

// Code returns the stable error code.
func (e *UnrecognizedScopeError) Code() string { return CodeUnrecognizedScope }

// CodeOf extracts the stable code from any error in the chain that carries one.
func CodeOf(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ""
}
