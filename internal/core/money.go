// Package core provides money parsing and handling utilities.
//
// Amounts are shopspring decimals end to end so that daily and category
// totals are exact; conversion to float64 only happens at the JSON edge.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// maxAmountExponent bounds the scale of a parsed amount in either direction.
const maxAmountExponent = 18

// ParseAmount converts a user-supplied decimal string to a Decimal.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional sign. Exponent notation is accepted while the resulting scale
// stays within maxAmountExponent. No rounding is applied.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("-5")     -> -5, nil (refunds)
//	ParseAmount("1e2")    -> 100, nil
//	ParseAmount("1e400")  -> 0, ErrInvalidAmount
//	ParseAmount("1.2.3")  -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if exp := d.Exponent(); exp > maxAmountExponent || exp < -maxAmountExponent {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseAllowance is ParseAmount restricted to non-negative values.
func ParseAllowance(s string) (decimal.Decimal, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAllowance
	}
	if err := ValidateAllowance(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// FormatAmount renders an amount with two decimals for human-facing text.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
