package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oddsmith/sportsbook/internal/clock"
)

func TestRateLimiter(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewRateLimiter(3, time.Minute, clk)

	for i := 0; i < 3; i++ {
		allowed, _ := limiter.Allow("1.2.3.4")
		assert.True(t, allowed)
	}

	allowed, retryAfter := limiter.Allow("1.2.3.4")
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))

	// Other clients are unaffected.
	allowed, _ = limiter.Allow("5.6.7.8")
	assert.True(t, allowed)

	// Hits age out of the window.
	clk.Advance(61 * time.Second)
	allowed, _ = limiter.Allow("1.2.3.4")
	assert.True(t, allowed)
}

func TestIdempotencyKeys(t *testing.T) {
	keys := NewIdempotencyKeys()

	// Deterministic per (user, key); distinct across users and keys.
	assert.Equal(t, keys.BetID("u1", "k1"), keys.BetID("u1", "k1"))
	assert.NotEqual(t, keys.BetID("u1", "k1"), keys.BetID("u1", "k2"))
	assert.NotEqual(t, keys.BetID("u1", "k1"), keys.BetID("u2", "k1"))

	_, seen := keys.Lookup("u1", "k1")
	assert.False(t, seen)

	keys.Remember("u1", "k1", "b1")
	betID, seen := keys.Lookup("u1", "k1")
	assert.True(t, seen)
	assert.Equal(t, "b1", betID)
}
