package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BetStatus tracks the lifecycle of a bet.
type BetStatus string

const (
	BetStatusPending  BetStatus = "pending"
	BetStatusAccepted BetStatus = "accepted"
	BetStatusRejected BetStatus = "rejected"
	BetStatusVoid     BetStatus = "void"
	BetStatusWon      BetStatus = "won"
	BetStatusLost     BetStatus = "lost"
	BetStatusCashOut  BetStatus = "cashout"
)

// IsTerminal reports whether the status admits no further transitions.
func (s BetStatus) IsTerminal() bool {
	switch s {
	case BetStatusRejected, BetStatusVoid, BetStatusWon, BetStatusLost, BetStatusCashOut:
		return true
	}
	return false
}

// IsActive reports whether the bet still counts toward a user's open bets.
func (s BetStatus) IsActive() bool {
	return s == BetStatusPending || s == BetStatusAccepted
}

// BetType enumerates supported bet types.
type BetType string

// BetTypeSingle is the only supported bet type.
const BetTypeSingle BetType = "single"

// PlaceBetRequest is the input to the bet placement workflow.
type PlaceBetRequest struct {
	BetID          string          `json:"bet_id"`
	UserID         string          `json:"user_id"`
	EventID        string          `json:"event_id"`
	MarketID       string          `json:"market_id"`
	SelectionID    string          `json:"selection_id"`
	Stake          Money           `json:"stake"`
	AcceptableOdds decimal.Decimal `json:"acceptable_odds"`
}

// Validate checks the request fields.
func (r PlaceBetRequest) Validate() error {
	if r.BetID == "" || r.UserID == "" || r.MarketID == "" || r.SelectionID == "" {
		return ErrInvalidRequest("bet_id, user_id, market_id and selection_id are required")
	}
	if !r.Stake.IsPositive() {
		return ErrNonPositiveAmount()
	}
	if err := ValidateOdds(r.AcceptableOdds); err != nil {
		return err
	}
	return nil
}

// Bet event payloads.

type BetPlacedPayload struct {
	UserID         string          `json:"user_id"`
	EventID        string          `json:"event_id"`
	MarketID       string          `json:"market_id"`
	SelectionID    string          `json:"selection_id"`
	Stake          Money           `json:"stake"`
	AcceptableOdds decimal.Decimal `json:"acceptable_odds"`
}

type BetAcceptedPayload struct {
	FinalOdds       decimal.Decimal `json:"final_odds"`
	PotentialPayout Money           `json:"potential_payout"`
}

type BetRejectedPayload struct {
	Reason string `json:"reason"`
}

type BetSettledPayload struct {
	Status           BetStatus `json:"status"` // won or lost
	Payout           *Money    `json:"payout,omitempty"`
	WinningSelection string    `json:"winning_selection,omitempty"`
}

type BetVoidedPayload struct {
	Reason string `json:"reason"`
	Refund *Money `json:"refund,omitempty"`
}

type BetCashedOutPayload struct {
	Payout Money `json:"payout"`
}

// BetAggregate is the in-memory fold of a bet's event stream. Version equals
// the number of applied events.
type BetAggregate struct {
	BetID          string          `json:"bet_id"`
	UserID         string          `json:"user_id"`
	EventID        string          `json:"event_id"`
	MarketID       string          `json:"market_id"`
	SelectionID    string          `json:"selection_id"`
	Stake          Money           `json:"stake"`
	AcceptableOdds decimal.Decimal `json:"acceptable_odds"`
	FinalOdds      decimal.Decimal `json:"final_odds"`
	Type           BetType         `json:"type"`
	Status         BetStatus       `json:"status"`
	PlacedAt       time.Time       `json:"placed_at"`
	SettledAt      *time.Time      `json:"settled_at,omitempty"`
	Payout         *Money          `json:"payout,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	VoidReason      string         `json:"void_reason,omitempty"`
	Version         int            `json:"version"`
}

// Apply folds one event record into the aggregate, enforcing the bet state
// machine. The first event must be BetPlaced; a terminal status is reached at
// most once.
func (b *BetAggregate) Apply(rec EventRecord) error {
	if b.Version == 0 && rec.Type != EventBetPlaced {
		return fmt.Errorf("stream must start with %s, got %s", EventBetPlaced, rec.Type)
	}
	if b.Version > 0 && b.Status.IsTerminal() {
		return fmt.Errorf("cannot apply %s: bet already terminal in status %s", rec.Type, b.Status)
	}

	switch rec.Type {
	case EventBetPlaced:
		var p BetPlacedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return fmt.Errorf("unmarshal %s: %w", rec.Type, err)
		}
		b.BetID = streamID(rec.StreamKey)
		b.UserID = p.UserID
		b.EventID = p.EventID
		b.MarketID = p.MarketID
		b.SelectionID = p.SelectionID
		b.Stake = p.Stake
		b.AcceptableOdds = p.AcceptableOdds
		b.Type = BetTypeSingle
		b.Status = BetStatusPending
		b.PlacedAt = rec.OccurredAt

	case EventBetAccepted:
		if b.Status != BetStatusPending {
			return fmt.Errorf("cannot accept bet in status %s", b.Status)
		}
		var p BetAcceptedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return fmt.Errorf("unmarshal %s: %w", rec.Type, err)
		}
		b.FinalOdds = p.FinalOdds
		b.Status = BetStatusAccepted

	case EventBetRejected:
		if b.Status != BetStatusPending {
			return fmt.Errorf("cannot reject bet in status %s", b.Status)
		}
		var p BetRejectedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return fmt.Errorf("unmarshal %s: %w", rec.Type, err)
		}
		b.Status = BetStatusRejected
		b.RejectionReason = p.Reason

	case EventBetSettled:
		if b.Status != BetStatusAccepted {
			return fmt.Errorf("cannot settle bet in status %s", b.Status)
		}
		var p BetSettledPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return fmt.Errorf("unmarshal %s: %w", rec.Type, err)
		}
		if p.Status != BetStatusWon && p.Status != BetStatusLost {
			return fmt.Errorf("settlement status must be won or lost, got %s", p.Status)
		}
		b.Status = p.Status
		b.Payout = p.Payout
		at := rec.OccurredAt
		b.SettledAt = &at

	case EventBetVoided:
		if b.Status != BetStatusPending && b.Status != BetStatusAccepted {
			return fmt.Errorf("cannot void bet in status %s", b.Status)
		}
		var p BetVoidedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return fmt.Errorf("unmarshal %s: %w", rec.Type, err)
		}
		b.Status = BetStatusVoid
		b.VoidReason = p.Reason
		b.Payout = p.Refund
		at := rec.OccurredAt
		b.SettledAt = &at

	case EventBetCashedOut:
		if b.Status != BetStatusAccepted {
			return fmt.Errorf("cannot cash out bet in status %s", b.Status)
		}
		var p BetCashedOutPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return fmt.Errorf("unmarshal %s: %w", rec.Type, err)
		}
		b.Status = BetStatusCashOut
		b.Payout = &p.Payout
		at := rec.OccurredAt
		b.SettledAt = &at

	default:
		return fmt.Errorf("unknown bet event type %s", rec.Type)
	}

	b.Version++
	return nil
}

// FoldBet rebuilds a bet aggregate from its full event stream.
// Returns nil when the stream is empty.
func FoldBet(stream []EventRecord) (*BetAggregate, error) {
	if len(stream) == 0 {
		return nil, nil
	}
	agg := &BetAggregate{}
	for _, rec := range stream {
		if err := agg.Apply(rec); err != nil {
			return nil, fmt.Errorf("fold %s v%d: %w", rec.StreamKey, rec.Version, err)
		}
	}
	return agg, nil
}

// Clone returns a copy of the aggregate safe to hand to callers.
func (b *BetAggregate) Clone() *BetAggregate {
	out := *b
	if b.SettledAt != nil {
		at := *b.SettledAt
		out.SettledAt = &at
	}
	if b.Payout != nil {
		p := *b.Payout
		out.Payout = &p
	}
	return &out
}

// streamID strips the "entity:" prefix from a stream key.
func streamID(streamKey string) string {
	for i := 0; i < len(streamKey); i++ {
		if streamKey[i] == ':' {
			return streamKey[i+1:]
		}
	}
	return streamKey
}
