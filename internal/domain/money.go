package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a non-negative decimal amount tagged with a 3-letter currency code.
// Arithmetic between two Moneys fails with CurrencyMismatch when the tags
// differ. The zero value is not valid; construct through NewMoney.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney constructs a Money. Fails with NegativeAmount when amount < 0 and
// InvalidRequest when currency is not a 3-letter code.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if err := ValidateCurrency(currency); err != nil {
		return Money{}, ErrInvalidRequest(err.Error())
	}
	if amount.IsNegative() {
		return Money{}, ErrNegativeAmount(amount.String())
	}
	return Money{Amount: amount.Truncate(4), Currency: currency}, nil
}

// MustMoney constructs a Money from a decimal string, panicking on invalid
// input. Intended for literals in tests and defaults.
func MustMoney(amount, currency string) Money {
	m, err := NewMoney(decimal.RequireFromString(amount), currency)
	if err != nil {
		panic(err)
	}
	return m
}

// ZeroMoney returns a zero amount in the given currency.
func ZeroMoney(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

// Add returns m + o. Fails with CurrencyMismatch across currencies.
func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, ErrCurrencyMismatch(m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}, nil
}

// Subtract returns m - o. Fails with CurrencyMismatch across currencies and
// InsufficientAmount when o > m (Money can never go negative).
func (m Money) Subtract(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, ErrCurrencyMismatch(m.Currency, o.Currency)
	}
	if o.Amount.GreaterThan(m.Amount) {
		return Money{}, ErrInsufficientAmount()
	}
	return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency}, nil
}

// Compare returns -1, 0 or 1 comparing m against o.
func (m Money) Compare(o Money) (int, error) {
	if m.Currency != o.Currency {
		return 0, ErrCurrencyMismatch(m.Currency, o.Currency)
	}
	return m.Amount.Cmp(o.Amount), nil
}

// MulDecimal returns m scaled by factor, rounded to 2 fractional digits.
// Used for payout computation (stake x decimal odds).
func (m Money) MulDecimal(factor decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(factor).Round(2), Currency: m.Currency}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.Amount.IsZero() }

// IsPositive reports whether the amount is strictly positive.
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(2), m.Currency)
}
