package enums

// Currency is an ISO 4217 code accepted for settlement.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

var currencies = newSet(
	CurrencyUSD,
	CurrencyEUR,
	CurrencyGBP,
)

func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the value is a known Currency.
func (c Currency) IsValid() bool {
	return currencies.has(c)
}

// ParseCurrency converts raw input into a Currency.
func ParseCurrency(value string) (Currency, error) {
	return currencies.parse("currency", value)
}
