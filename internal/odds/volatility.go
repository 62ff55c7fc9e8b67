package odds

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/oddsmith/sportsbook/internal/domain"
)

// VolatilityConfig holds the sliding window and the score thresholds that
// split the volatility levels. score < Medium is low, [Medium, High) medium,
// [High, Extreme) high, >= Extreme extreme.
type VolatilityConfig struct {
	Window  time.Duration
	Medium  decimal.Decimal
	High    decimal.Decimal
	Extreme decimal.Decimal
}

// DefaultVolatilityConfig returns the production defaults: a 5 minute window
// with thresholds 10 / 25 / 50.
func DefaultVolatilityConfig() VolatilityConfig {
	return VolatilityConfig{
		Window:  5 * time.Minute,
		Medium:  decimal.NewFromInt(10),
		High:    decimal.NewFromInt(25),
		Extreme: decimal.NewFromInt(50),
	}
}

// maxFrequencyFactor caps the update-frequency multiplier so a burst of tiny
// corrections cannot dominate the score.
var maxFrequencyFactor = decimal.NewFromInt(5)

// selectionScore computes one selection's score over the updates applied
// within the window ending at now:
//
//	score = mean(|%change|) * (1 + min(updates/min, 5))
//
// Fewer than two updates in the window scores zero.
func selectionScore(h *domain.OddsHistory, now time.Time, window time.Duration) decimal.Decimal {
	updates := h.UpdatesSince(now.Add(-window))
	if len(updates) < 2 {
		return decimal.Zero
	}

	var sum decimal.Decimal
	for _, u := range updates {
		sum = sum.Add(u.PercentageChange())
	}
	count := decimal.NewFromInt(int64(len(updates)))
	mean := sum.DivRound(count, 8)
	frequency := count.DivRound(decimal.NewFromFloat(window.Minutes()), 8)
	if frequency.GreaterThan(maxFrequencyFactor) {
		frequency = maxFrequencyFactor
	}
	return mean.Mul(decimal.NewFromInt(1).Add(frequency))
}

// marketScore is the worst selection score across the market.
func marketScore(histories map[string]*domain.OddsHistory, now time.Time, window time.Duration) decimal.Decimal {
	score := decimal.Zero
	for _, h := range histories {
		if s := selectionScore(h, now, window); s.GreaterThan(score) {
			score = s
		}
	}
	return score
}

// classifyVolatility maps a score to its level.
func classifyVolatility(score decimal.Decimal, cfg VolatilityConfig) domain.VolatilityLevel {
	switch {
	case score.GreaterThanOrEqual(cfg.Extreme):
		return domain.VolatilityExtreme
	case score.GreaterThanOrEqual(cfg.High):
		return domain.VolatilityHigh
	case score.GreaterThanOrEqual(cfg.Medium):
		return domain.VolatilityMedium
	default:
		return domain.VolatilityLow
	}
}
