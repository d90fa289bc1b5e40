// Package core provides money parsing and handling utilities.
//
// Provider payloads carry amounts as JSON numbers or numeric strings, with
// either dot or comma as the decimal separator. Everything is held as
// decimal.Decimal so balances never pick up float rounding.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a signed decimal amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, a leading
// sign, and surrounding whitespace. Thousands separators are not supported
// when a comma is the decimal mark.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("-5,50")  -> -5.5
//	ParseAmount("1,234.00") -> 1234
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, NewError(KindValidation, CodeInvalidAmount, "empty amount")
	}
	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		// 1,234.56 style
		s = strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ",") == 1:
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, WrapError(KindValidation, CodeInvalidAmount, "invalid amount "+s, err)
	}
	return d, nil
}

// ParsePositiveAmount parses an amount that must be strictly positive.
func ParsePositiveAmount(s string) (decimal.Decimal, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, NewError(KindValidation, CodeInvalidAmount, "amount must be positive")
	}
	return d, nil
}

// SplitSigned separates a signed provider amount into magnitude and direction.
// Negative amounts are outflows.
func SplitSigned(d decimal.Decimal) (decimal.Decimal, TransactionType) {
	if d.IsNegative() {
		return d.Neg(), Expense
	}
	return d, Income
}

// Signed applies the direction to a positive magnitude.
func Signed(amount decimal.Decimal, t TransactionType) decimal.Decimal {
	if t == Expense {
		return amount.Abs().Neg()
	}
	return amount.Abs()
}
