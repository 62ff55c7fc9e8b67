package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates domain event types. The value doubles as the
// "<aggregate>.<event-type>" suffix of the bus topic.
type EventType string

const (
	EventBetPlaced    EventType = "bet.placed"
	EventBetAccepted  EventType = "bet.accepted"
	EventBetRejected  EventType = "bet.rejected"
	EventBetSettled   EventType = "bet.settled"
	EventBetVoided    EventType = "bet.voided"
	EventBetCashedOut EventType = "bet.cashedout"

	EventTransactionPosted EventType = "wallet.transaction.posted"

	EventOddsInitialized EventType = "odds.initialized"
	EventOddsUpdated     EventType = "odds.updated"
	EventOddsSuspended   EventType = "odds.suspended"
	EventOddsResumed     EventType = "odds.resumed"

	EventSportEventCreated   EventType = "sportevent.created"
	EventSportEventStarted   EventType = "sportevent.started"
	EventSportEventCompleted EventType = "sportevent.completed"
	EventSportEventCancelled EventType = "sportevent.cancelled"
	EventMarketSettled       EventType = "sportevent.market.settled"
)

// AggregateType enumerates the aggregate root types for bus events.
type AggregateType string

const (
	AggregateBet        AggregateType = "bet"
	AggregateWallet     AggregateType = "wallet"
	AggregateOdds       AggregateType = "odds"
	AggregateSportEvent AggregateType = "sportevent"
)

// EventRecord is the persisted envelope of one domain event. For the bet
// actor these form the append-only stream on key "bet:<betId>"; for every
// aggregate they are also what gets published to the event bus.
type EventRecord struct {
	EventID    uuid.UUID       `json:"event_id"`
	StreamKey  string          `json:"stream_key"`
	Type       EventType       `json:"type"`
	Version    int             `json:"version"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewEventRecord builds an EventRecord, marshalling payload.
func NewEventRecord(streamKey string, t EventType, version int, payload any, at time.Time) (EventRecord, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return EventRecord{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return EventRecord{
		EventID:    uuid.New(),
		StreamKey:  streamKey,
		Type:       t,
		Version:    version,
		Payload:    raw,
		OccurredAt: at,
	}, nil
}

// BusEvent is an EventRecord prepared for event-bus publication.
// Delivery is at-least-once; consumers deduplicate on EventID.
type BusEvent struct {
	Record        EventRecord   `json:"record"`
	Aggregate     AggregateType `json:"aggregate"`
	AggregateID   string        `json:"aggregate_id"`
	CorrelationID string        `json:"correlation_id"`
}

// Topic returns the bus topic following the
// sportsbook.events.<aggregate>.<event-type> convention.
func (e BusEvent) Topic() string {
	return "sportsbook.events." + string(e.Record.Type)
}

// NewBusEvent wraps a record for publication. CorrelationID defaults to the
// record's event id when the caller has no request correlation to carry.
func NewBusEvent(rec EventRecord, aggregate AggregateType, aggregateID, correlationID string) BusEvent {
	if correlationID == "" {
		correlationID = rec.EventID.String()
	}
	return BusEvent{Record: rec, Aggregate: aggregate, AggregateID: aggregateID, CorrelationID: correlationID}
}
