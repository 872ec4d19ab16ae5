// Package core provides money parsing and handling utilities.
//
// Amounts are signed decimals: expenses and outflows are allowed to be negative,
// and a value of zero is how a cell is cleared.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// CurrencyTolerance is the rounding slack used when comparing two totals.
var CurrencyTolerance = decimal.New(1, -2)

// ParseAmount converts a user supplied amount into a decimal rounded to cents.
//
// It accepts both dot (1234.56) and comma (1234,56) decimal separators, and the
// Italian grouping form (1.234,56). A leading sign is allowed. Rounding is
// half-up on the third decimal place.
//
// Examples:
//
//	ParseAmount("12.34")     -> 12.34
//	ParseAmount("-12,345")   -> -12.35
//	ParseAmount("1.234,56")  -> 1234.56
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "€")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	sign := ""
	if s[0] == '+' || s[0] == '-' {
		if s[0] == '-' {
			sign = "-"
		}
		s = s[1:]
	}

	// With both separators present the last one is the decimal mark.
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return decimal.Zero, ErrInvalidAmount
		}
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		return decimal.Zero, ErrInvalidAmount
	}

	if s == "" || s == "." {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}

	d, err := decimal.NewFromString(sign + s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(2), nil
}

// WithinTolerance reports whether |a-b| is strictly below CurrencyTolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(CurrencyTolerance)
}

// FormatEuros renders an amount the way the dashboard shows it (e.g. "€1.234,56").
func FormatEuros(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := "€" + b.String() + "," + frac
	if neg {
		return "-" + out
	}
	return out
}
