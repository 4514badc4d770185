// Package money formats integer minor-unit amounts for display.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lootbay/marketplace-backend/pkg/enums"
)

// FromCents converts an amount in minor units into a decimal major-unit value.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ToCents converts a major-unit decimal into minor units, rounding half away
// from zero.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// Format renders cents as "12.34 USD".
func Format(cents int64, currency enums.Currency) string {
	return fmt.Sprintf("%s %s", FromCents(cents).StringFixed(2), currency)
}

// Amount is the JSON shape of a monetary value.
type Amount struct {
	Cents    int64          `json:"cents"`
	Display  string         `json:"display"`
	Currency enums.Currency `json:"currency"`
}

// NewAmount builds an Amount with its display string.
func NewAmount(cents int64, currency enums.Currency) Amount {
	return Amount{
		Cents:    cents,
		Display:  FromCents(cents).StringFixed(2),
		Currency: currency,
	}
}
