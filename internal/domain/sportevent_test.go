package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionEvent(t *testing.T) {
	allowed := []struct{ from, to EventStatus }{
		{EventScheduled, EventLive},
		{EventScheduled, EventSuspended},
		{EventScheduled, EventCancelled},
		{EventLive, EventCompleted},
		{EventLive, EventSuspended},
		{EventSuspended, EventScheduled},
		{EventSuspended, EventCancelled},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransitionEvent(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct{ from, to EventStatus }{
		{EventScheduled, EventCompleted},
		{EventLive, EventCancelled},
		{EventLive, EventScheduled},
		{EventCompleted, EventLive},
		{EventCancelled, EventScheduled},
		{EventSuspended, EventCompleted},
	}
	for _, tc := range denied {
		assert.False(t, CanTransitionEvent(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCanTransitionMarket(t *testing.T) {
	allowed := []struct{ from, to MarketStatus }{
		{MarketOpen, MarketSuspended},
		{MarketOpen, MarketClosed},
		{MarketSuspended, MarketOpen},
		{MarketSuspended, MarketClosed},
		{MarketClosed, MarketSettled},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransitionMarket(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct{ from, to MarketStatus }{
		{MarketOpen, MarketSettled},
		{MarketSuspended, MarketSettled},
		{MarketClosed, MarketOpen},
		{MarketSettled, MarketOpen},
		{MarketSettled, MarketClosed},
	}
	for _, tc := range denied {
		assert.False(t, CanTransitionMarket(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}
