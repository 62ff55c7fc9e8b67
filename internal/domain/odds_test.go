package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPercentageChange(t *testing.T) {
	cases := []struct {
		previous, next, want string
	}{
		{"2.00", "2.20", "10"},
		{"2.00", "1.80", "10"},
		{"2.50", "2.50", "0"},
		{"4.00", "2.00", "50"},
	}
	for _, tc := range cases {
		u := OddsUpdate{
			Previous: decimal.RequireFromString(tc.previous),
			New:      decimal.RequireFromString(tc.next),
		}
		assert.True(t, u.PercentageChange().Equal(decimal.RequireFromString(tc.want)),
			"%s -> %s: got %s", tc.previous, tc.next, u.PercentageChange())
	}
}

func TestOddsHistoryCurrent(t *testing.T) {
	h := OddsHistory{
		MarketID:    "m1",
		SelectionID: "home",
		Initial:     OddsValue{Decimal: decimal.RequireFromString("2.00")},
	}
	assert.True(t, h.Current().Equal(decimal.RequireFromString("2.00")))

	h.Updates = append(h.Updates, OddsUpdate{
		Previous: decimal.RequireFromString("2.00"),
		New:      decimal.RequireFromString("2.20"),
	})
	assert.True(t, h.Current().Equal(decimal.RequireFromString("2.20")))
}

func TestOddsHistoryUpdatesSince(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h := OddsHistory{}
	for i := 0; i < 4; i++ {
		h.Updates = append(h.Updates, OddsUpdate{UpdatedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	assert.Len(t, h.UpdatesSince(base), 4)
	assert.Len(t, h.UpdatesSince(base.Add(2*time.Minute)), 2)
	assert.Empty(t, h.UpdatesSince(base.Add(time.Hour)))
}

func TestImpliedProbability(t *testing.T) {
	v := OddsValue{Decimal: decimal.RequireFromString("2.00")}
	assert.True(t, v.ImpliedProbability().Equal(decimal.RequireFromString("0.5")))

	v = OddsValue{Decimal: decimal.RequireFromString("4.00")}
	assert.True(t, v.ImpliedProbability().Equal(decimal.RequireFromString("0.25")))
}
