package xbrl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Error codes
const (
	CodeStructuralInvariant = "STRUCTURAL_INVARIANT"
	CodeRollupMismatch      = "ROLLUP_MISMATCH"
)

var (
	// ErrStructuralInvariant matches every *StructuralError
	ErrStructuralInvariant = errors.New("structural invariant violated")
	// ErrRollupMismatch matches every *RollupMismatchError
	ErrRollupMismatch = errors.New("roll-up mismatch")
)

// StructuralKind classifies a structural invariant violation
type StructuralKind string

const (
	KindUndeclaredNamespace StructuralKind = "undeclared_namespace"
	KindDuplicateNamespace  StructuralKind = "duplicate_namespace"
	KindDuplicateID         StructuralKind = "duplicate_id"
	KindDuplicateFact       StructuralKind = "duplicate_fact"
	KindUnnamedFact         StructuralKind = "unnamed_fact"
	KindInvalidWhitespace   StructuralKind = "invalid_whitespace"
	KindInvalidContext      StructuralKind = "invalid_context"
	KindInvalidUnit         StructuralKind = "invalid_unit"
	KindUnresolvedReference StructuralKind = "unresolved_reference"
	KindMalformedOutput     StructuralKind = "malformed_output"
)

// StructuralError is a fatal problem with the shape of a document. It is
// raised while the document is built and never repaired during serialization.
type StructuralError struct {
	Kind      StructuralKind
	Concept   string
	ContextID string
	UnitID    string
	Detail    string
}

func (e *StructuralError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Concept != "" {
		fmt.Fprintf(&b, " concept=%s", e.Concept)
	}
	if e.ContextID != "" {
		fmt.Fprintf(&b, " context=%s", e.ContextID)
	}
	if e.UnitID != "" {
		fmt.Fprintf(&b, " unit=%s", e.UnitID)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *StructuralError) Is(target error) bool { return target == ErrStructuralInvariant }

// Code returns the stable error code
func (e *StructuralError) Code() string { return CodeStructuralInvariant }

// Severity grades a roll-up issue
type Severity string

const (
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// RollupIssue describes a total that does not equal the sum of its parts
type RollupIssue struct {
	Rollup     string          `json:"rollup"`
	Total      string          `json:"total"`
	ContextID  string          `json:"context_id"`
	Reported   decimal.Decimal `json:"reported"`
	Recomputed decimal.Decimal `json:"recomputed"`
	Parts      []string        `json:"parts"`
	Severity   Severity        `json:"severity"`
	Reason     string          `json:"reason,omitempty"`
}

func (i RollupIssue) String() string {
	s := fmt.Sprintf("%s %s: %s in %s reported %s, recomputed %s from [%s]",
		i.Severity, i.Rollup, i.Total, i.ContextID, i.Reported, i.Recomputed, strings.Join(i.Parts, ", "))
	if i.Reason != "" {
		s += " (" + i.Reason + ")"
	}
	return s
}

// RollupMismatchError carries every roll-up issue of a failed validation,
// warnings included
type RollupMismatchError struct {
	Issues []RollupIssue
}

func (e *RollupMismatchError) Error() string {
	lines := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		if issue.Severity == SeverityError {
			lines = append(lines, issue.String())
		}
	}
	return "roll-up validation failed: " + strings.Join(lines, "; ")
}

func (e *RollupMismatchError) Is(target error) bool { return target == ErrRollupMismatch }

// Code returns the stable error code
func (e *RollupMismatchError) Code() string { return CodeRollupMismatch }
