// Package guard holds the HTTP-layer protections: a sliding-window rate
// limiter and the idempotency-key registry for bet placement.
package guard

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oddsmith/sportsbook/internal/clock"
)

// RateLimiter is a per-client sliding-window limiter.
type RateLimiter struct {
	limit  int
	window time.Duration
	clock  clock.Clock

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewRateLimiter allows limit requests per key per window.
func NewRateLimiter(limit int, window time.Duration, clk clock.Clock) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		clock:  clk,
		hits:   make(map[string][]time.Time),
	}
}

// Allow records a hit for key and reports whether it is within the limit.
// When denied, retryAfter is how long until the oldest hit leaves the window.
func (l *RateLimiter) Allow(key string) (allowed bool, retryAfter time.Duration) {
	now := l.clock.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.hits[key]
	kept := hits[:0]
	for _, at := range hits {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}

	if len(kept) >= l.limit {
		l.hits[key] = kept
		return false, kept[0].Sub(cutoff)
	}
	l.hits[key] = append(kept, now)
	return true, 0
}

// IdempotencyKeys maps (userId, idempotency key) to the bet id minted for it.
// The id is derived deterministically, so a replay maps to the same bet even
// after a restart; the registry is a fast path for the common case.
type IdempotencyKeys struct {
	mu    sync.Mutex
	byKey map[string]string
}

// NewIdempotencyKeys creates an empty registry.
func NewIdempotencyKeys() *IdempotencyKeys {
	return &IdempotencyKeys{byKey: make(map[string]string)}
}

// BetID returns the deterministic bet id for (userId, key).
func (g *IdempotencyKeys) BetID(userID, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(userID+"/"+key)).String()
}

// Lookup returns the bet id previously remembered for (userId, key).
func (g *IdempotencyKeys) Lookup(userID, key string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	betID, ok := g.byKey[userID+"/"+key]
	return betID, ok
}

// Remember records the bet id minted for (userId, key).
func (g *IdempotencyKeys) Remember(userID, key, betID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.byKey[userID+"/"+key] = betID
}
