package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventStatus tracks the lifecycle of a sport event.
type EventStatus string

const (
	EventScheduled EventStatus = "scheduled"
	EventLive      EventStatus = "live"
	EventSuspended EventStatus = "suspended"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
)

// eventTransitions is the allowed sport-event transition table.
var eventTransitions = map[EventStatus][]EventStatus{
	EventScheduled: {EventLive, EventSuspended, EventCancelled},
	EventLive:      {EventCompleted, EventSuspended},
	EventSuspended: {EventScheduled, EventCancelled},
}

// CanTransitionEvent reports whether from -> to is in the allowed table.
func CanTransitionEvent(from, to EventStatus) bool {
	for _, next := range eventTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SportEvent is a scheduled sporting event carrying betting markets.
type SportEvent struct {
	EventID      string            `json:"event_id"`
	Name         string            `json:"name"`
	SportType    string            `json:"sport_type"`
	Competition  string            `json:"competition,omitempty"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      *time.Time        `json:"end_time,omitempty"`
	Status       EventStatus       `json:"status"`
	Participants map[string]string `json:"participants,omitempty"` // role -> name
	CreatedAt    time.Time         `json:"created_at"`
	LastModified time.Time         `json:"last_modified"`
}

// MarketStatus tracks the lifecycle of a market.
type MarketStatus string

const (
	MarketOpen      MarketStatus = "open"
	MarketSuspended MarketStatus = "suspended"
	MarketClosed    MarketStatus = "closed"
	MarketSettled   MarketStatus = "settled"
)

// marketTransitions is the allowed market transition table:
// Open <-> Suspended; Open -> Closed; Suspended -> Closed; Closed -> Settled.
var marketTransitions = map[MarketStatus][]MarketStatus{
	MarketOpen:      {MarketSuspended, MarketClosed},
	MarketSuspended: {MarketOpen, MarketClosed},
	MarketClosed:    {MarketSettled},
}

// CanTransitionMarket reports whether from -> to is in the allowed table.
func CanTransitionMarket(from, to MarketStatus) bool {
	for _, next := range marketTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Market is a betting market within a sport event. Outcomes map selection ids
// to the opening decimal odds.
type Market struct {
	MarketID       string                     `json:"market_id"`
	EventID        string                     `json:"event_id"`
	Name           string                     `json:"name"`
	Description    string                     `json:"description,omitempty"`
	Outcomes       map[string]decimal.Decimal `json:"outcomes"`
	Status         MarketStatus               `json:"status"`
	WinningOutcome string                     `json:"winning_outcome,omitempty"`
	CreatedAt      time.Time                  `json:"created_at"`
	LastModified   time.Time                  `json:"last_modified"`
}

// Clone returns a copy with its own outcomes map.
func (m *Market) Clone() *Market {
	out := *m
	out.Outcomes = make(map[string]decimal.Decimal, len(m.Outcomes))
	for k, v := range m.Outcomes {
		out.Outcomes[k] = v
	}
	return &out
}

// Clone returns a copy with its own participants map.
func (e *SportEvent) Clone() *SportEvent {
	out := *e
	if e.EndTime != nil {
		t := *e.EndTime
		out.EndTime = &t
	}
	out.Participants = make(map[string]string, len(e.Participants))
	for k, v := range e.Participants {
		out.Participants[k] = v
	}
	return &out
}
