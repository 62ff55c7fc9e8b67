package domain

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

var currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// MinDecimalOdds is the lowest decimal odds the platform accepts.
var MinDecimalOdds = decimal.RequireFromString("1.01")

// ValidateCurrency checks that a currency code is a 3-letter tag.
func ValidateCurrency(currency string) error {
	if !currencyRegex.MatchString(currency) {
		return fmt.Errorf("invalid currency code: %q", currency)
	}
	return nil
}

// ValidateOdds checks that decimal odds are at or above the platform minimum.
func ValidateOdds(odds decimal.Decimal) error {
	if odds.LessThan(MinDecimalOdds) {
		return ErrInvalidOdds(odds.String())
	}
	return nil
}
