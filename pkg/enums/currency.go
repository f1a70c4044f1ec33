package enums

import "fmt"

// Currency represents the ISO currencies a vendor wallet can be denominated in.
// Every vendor settles in exactly one currency; amounts are integers in the
// currency's minor unit (kobo for NGN).
type Currency string

const (
	CurrencyNGN Currency = "NGN"
	CurrencyGHS Currency = "GHS"
	CurrencyKES Currency = "KES"
	CurrencyUSD Currency = "USD"
)

var validCurrencies = []Currency{
	CurrencyNGN,
	CurrencyGHS,
	CurrencyKES,
	CurrencyUSD,
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	for _, candidate := range validCurrencies {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCurrency converts a raw string into a Currency.
func ParseCurrency(value string) (Currency, error) {
	for _, candidate := range validCurrencies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid currency %q", value)
}
