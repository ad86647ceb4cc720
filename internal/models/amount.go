package models

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var currencyNoise = regexp.MustCompile(`(?i)^\s*(rm|myr)\s*|[,\s]`)

// ParseAmount parses a money or quantity value as read from a spreadsheet
// cell or an OCR answer ("RM 1,030.50", "4270", "103.00").
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := currencyNoise.ReplaceAllString(strings.TrimSpace(s), "")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	return d, nil
}

// RoundMoney rounds to two decimal places
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// PricesMatch reports whether both prices are positive and differ by less
// than tolerance.
func PricesMatch(extracted decimal.NullDecimal, catalog decimal.Decimal, tolerance decimal.Decimal) bool {
	if !extracted.Valid || !extracted.Decimal.IsPositive() || !catalog.IsPositive() {
		return false
	}
	return extracted.Decimal.Sub(catalog).Abs().LessThan(tolerance)
}

// NullAmount wraps d as a present optional value
func NullAmount(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// PositiveOrNull returns d as a present value only when it is positive
func PositiveOrNull(d decimal.Decimal) decimal.NullDecimal {
	if d.IsPositive() {
		return NullAmount(d)
	}
	return decimal.NullDecimal{}
}
