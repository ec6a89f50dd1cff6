package xbrl

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// IsExoticSpace reports whether r is a space-like code point other than U+0020.
// Numeric fact text may only contain the standard space.
func IsExoticSpace(r rune) bool {
	if r == ' ' {
		return false
	}
	switch r {
	case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
		return true
	}
	return unicode.IsSpace(r) || unicode.Is(unicode.Zs, r)
}

// ContainsExoticSpace reports whether s holds any exotic space
func ContainsExoticSpace(s string) bool {
	return strings.IndexFunc(s, IsExoticSpace) >= 0
}

// ParseNumericText parses the unsigned text of a numeric fact. Standard spaces
// and commas are accepted as group separators; anything else fails.
func ParseNumericText(text string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r == ' ' || r == ',':
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		default:
			return decimal.Zero, fmt.Errorf("unexpected character %q in numeric text %q", r, text)
		}
	}
	if b.Len() == 0 {
		return decimal.Zero, fmt.Errorf("numeric text %q has no digits", text)
	}
	return decimal.NewFromString(b.String())
}

// NormalizeNumericText maps exotic spaces to U+0020 and confirms the result
// still parses to want (the absolute value of the fact). A fact whose value
// would change is rejected.
func NormalizeNumericText(text string, want decimal.Decimal) (string, error) {
	normalized := strings.Map(func(r rune) rune {
		if IsExoticSpace(r) {
			return ' '
		}
		return r
	}, text)
	normalized = strings.TrimSpace(normalized)

	got, err := ParseNumericText(normalized)
	if err != nil {
		return "", &StructuralError{Kind: KindInvalidWhitespace, Detail: err.Error()}
	}
	if !got.Equal(want.Abs()) {
		return "", &StructuralError{
			Kind:   KindInvalidWhitespace,
			Detail: fmt.Sprintf("normalizing %q changes its value from %s to %s", text, want.Abs(), got),
		}
	}
	return normalized, nil
}

// FormatNumber renders the absolute value of d with a fixed number of
// decimals, grouping thousands with separator when it is not empty
func FormatNumber(d decimal.Decimal, decimals int, separator string) string {
	fixed := d.Abs().StringFixed(int32(decimals))
	if separator == "" {
		return fixed
	}

	intPart, fracPart, hasFrac := strings.Cut(fixed, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteString(separator)
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(fracPart)
	}
	return b.String()
}
