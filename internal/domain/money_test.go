package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		m, err := NewMoney(decimal.RequireFromString("100.50"), "USD")
		require.NoError(t, err)
		assert.Equal(t, "100.5", m.Amount.String())
		assert.Equal(t, "USD", m.Currency)
	})

	t.Run("truncates beyond four decimals", func(t *testing.T) {
		m, err := NewMoney(decimal.RequireFromString("1.23456"), "USD")
		require.NoError(t, err)
		assert.Equal(t, "1.2345", m.Amount.String())
	})

	t.Run("negative amount", func(t *testing.T) {
		_, err := NewMoney(decimal.RequireFromString("-1"), "USD")
		assert.Equal(t, "NegativeAmount", CodeOf(err))
	})

	t.Run("bad currency", func(t *testing.T) {
		for _, cur := range []string{"", "usd", "US", "DOLLARS"} {
			_, err := NewMoney(decimal.NewFromInt(1), cur)
			assert.Equal(t, "InvalidRequest", CodeOf(err), cur)
		}
	})
}

func TestMoneyArithmetic(t *testing.T) {
	usd100 := MustMoney("100", "USD")
	usd40 := MustMoney("40.25", "USD")
	eur10 := MustMoney("10", "EUR")

	t.Run("add", func(t *testing.T) {
		sum, err := usd100.Add(usd40)
		require.NoError(t, err)
		assert.Equal(t, "140.25", sum.Amount.String())
	})

	t.Run("subtract", func(t *testing.T) {
		diff, err := usd100.Subtract(usd40)
		require.NoError(t, err)
		assert.Equal(t, "59.75", diff.Amount.String())
	})

	t.Run("subtract below zero", func(t *testing.T) {
		_, err := usd40.Subtract(usd100)
		assert.Equal(t, "InsufficientAmount", CodeOf(err))
	})

	t.Run("currency mismatch", func(t *testing.T) {
		_, err := usd100.Add(eur10)
		assert.Equal(t, "CurrencyMismatch", CodeOf(err))
		_, err = usd100.Subtract(eur10)
		assert.Equal(t, "CurrencyMismatch", CodeOf(err))
		_, err = usd100.Compare(eur10)
		assert.Equal(t, "CurrencyMismatch", CodeOf(err))
	})

	t.Run("compare", func(t *testing.T) {
		c, err := usd100.Compare(usd40)
		require.NoError(t, err)
		assert.Equal(t, 1, c)
	})

	t.Run("multiply by decimal", func(t *testing.T) {
		payout := usd100.MulDecimal(decimal.RequireFromString("2.10"))
		assert.True(t, payout.Amount.Equal(decimal.RequireFromString("210")))
		assert.Equal(t, "USD", payout.Currency)
	})
}

func TestValidateOdds(t *testing.T) {
	assert.NoError(t, ValidateOdds(decimal.RequireFromString("1.01")))
	assert.NoError(t, ValidateOdds(decimal.RequireFromString("50")))
	assert.Equal(t, "InvalidOdds", CodeOf(ValidateOdds(decimal.RequireFromString("1.009"))))
	assert.Equal(t, "InvalidOdds", CodeOf(ValidateOdds(decimal.Zero)))
}
