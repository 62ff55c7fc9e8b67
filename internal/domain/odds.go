package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OddsSource tags where an odds value came from.
type OddsSource string

const (
	SourceManual   OddsSource = "manual"
	SourceFeed     OddsSource = "feed"
	SourceProvider OddsSource = "provider"
)

// VolatilityLevel is the discrete classification of a volatility score.
type VolatilityLevel string

const (
	VolatilityLow     VolatilityLevel = "low"
	VolatilityMedium  VolatilityLevel = "medium"
	VolatilityHigh    VolatilityLevel = "high"
	VolatilityExtreme VolatilityLevel = "extreme"
)

// OddsValue is a decimal odds quote for one selection at one point in time.
type OddsValue struct {
	Decimal     decimal.Decimal `json:"decimal"`
	MarketID    string          `json:"market_id"`
	SelectionID string          `json:"selection_id"`
	Source      OddsSource      `json:"source"`
	Timestamp   time.Time       `json:"timestamp"`
}

// ImpliedProbability returns 1/decimal.
func (v OddsValue) ImpliedProbability() decimal.Decimal {
	return decimal.NewFromInt(1).DivRound(v.Decimal, 6)
}

// OddsUpdate records one applied change to a selection's odds.
type OddsUpdate struct {
	Previous  decimal.Decimal `json:"previous"`
	New       decimal.Decimal `json:"new"`
	Source    OddsSource      `json:"source"`
	Reason    string          `json:"reason,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PercentageChange returns |new - previous| / previous * 100.
func (u OddsUpdate) PercentageChange() decimal.Decimal {
	return u.New.Sub(u.Previous).Abs().DivRound(u.Previous, 8).Mul(decimal.NewFromInt(100))
}

// OddsHistory is the per-(market, selection) change history: the initial odds
// plus the ordered sequence of applied updates.
type OddsHistory struct {
	MarketID    string          `json:"market_id"`
	SelectionID string          `json:"selection_id"`
	Initial     OddsValue       `json:"initial"`
	Updates     []OddsUpdate    `json:"updates"`
}

// Current returns the last applied odds, falling back to the initial value.
func (h *OddsHistory) Current() decimal.Decimal {
	if n := len(h.Updates); n > 0 {
		return h.Updates[n-1].New
	}
	return h.Initial.Decimal
}

// UpdatesSince returns the updates applied at or after cutoff.
func (h *OddsHistory) UpdatesSince(cutoff time.Time) []OddsUpdate {
	var out []OddsUpdate
	for _, u := range h.Updates {
		if !u.UpdatedAt.Before(cutoff) {
			out = append(out, u)
		}
	}
	return out
}

// Clone returns a deep copy so callers cannot mutate actor state.
func (h *OddsHistory) Clone() OddsHistory {
	out := *h
	out.Updates = append([]OddsUpdate(nil), h.Updates...)
	return out
}

// OddsSnapshot is the per-market view served to callers: current odds per
// selection plus suspension and volatility state.
type OddsSnapshot struct {
	MarketID         string                     `json:"market_id"`
	Selections       map[string]decimal.Decimal `json:"selections"`
	Suspended        bool                       `json:"suspended"`
	SuspensionReason string                     `json:"suspension_reason,omitempty"`
	Volatility       VolatilityLevel            `json:"volatility"`
	Timestamp        time.Time                  `json:"timestamp"`
}

// Clone returns a copy with its own selections map.
func (s OddsSnapshot) Clone() OddsSnapshot {
	out := s
	out.Selections = make(map[string]decimal.Decimal, len(s.Selections))
	for k, v := range s.Selections {
		out.Selections[k] = v
	}
	return out
}
