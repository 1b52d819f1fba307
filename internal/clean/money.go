package clean

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// coerceAmount cleans monetary amounts and decimal measures. Null, empty,
// and unparseable inputs become zero for accumulative fields and null for
// descriptive ones, so that summed columns stay well defined while balances
// keep their absence visible.
func coerceAmount(v any, accumulative bool) any {
	fallback := func() any {
		if accumulative {
			return decimal.Zero
		}
		return nil
	}

	if isNullish(v) {
		return fallback()
	}
	switch n := v.(type) {
	case int:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return fallback()
		}
		return decimal.NewFromFloat(n)
	case decimal.Decimal:
		return n
	case string:
		d, ok := ParseAmount(n)
		if !ok {
			return fallback()
		}
		return d
	default:
		return fallback()
	}
}

// ParseAmount parses a monetary string as emitted by spreadsheet-derived
// extracts: currency symbols and spaces around the number, "." or "," used
// as either thousands or decimal separators, and "-" standing for an absent
// value.
//
// Separator disambiguation: multiple separator groups, or a single separator
// followed by more than two digits, mark thousands separators and are
// stripped; a single separator followed by one or two digits is a decimal
// point. So "224.436.000" is 224436000 while "123.45" is 123.45.
func ParseAmount(s string) (decimal.Decimal, bool) {
	cleaned := stripNonNumeric(s)
	if cleaned == "" || cleaned == "-" {
		return decimal.Decimal{}, false
	}

	negative := strings.HasPrefix(cleaned, "-")
	cleaned = strings.TrimPrefix(cleaned, "-")
	if cleaned == "" {
		return decimal.Decimal{}, false
	}

	sepCount := strings.Count(cleaned, ".") + strings.Count(cleaned, ",")
	switch {
	case sepCount > 1:
		cleaned = stripSeparators(cleaned)
	case sepCount == 1:
		idx := strings.IndexAny(cleaned, ".,")
		trailing := len(cleaned) - idx - 1
		if trailing > 2 || trailing == 0 {
			cleaned = stripSeparators(cleaned)
		} else {
			cleaned = cleaned[:idx] + "." + cleaned[idx+1:]
		}
	}

	if negative {
		cleaned = "-" + cleaned
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// stripNonNumeric drops everything except digits, separators, and a leading
// minus sign: currency symbols, spaces, and stray punctuation.
func stripNonNumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func stripSeparators(s string) string {
	s = strings.ReplaceAll(s, ".", "")
	return strings.ReplaceAll(s, ",", "")
}
