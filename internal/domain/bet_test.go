package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var betBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func placedRecord(t *testing.T, version int) EventRecord {
	t.Helper()
	rec, err := NewEventRecord("bet:b1", EventBetPlaced, version, BetPlacedPayload{
		UserID:         "u1",
		EventID:        "e1",
		MarketID:       "m1",
		SelectionID:    "home",
		Stake:          MustMoney("100", "USD"),
		AcceptableOdds: decimal.RequireFromString("2.00"),
	}, betBase)
	require.NoError(t, err)
	return rec
}

func betRecord(t *testing.T, typ EventType, version int, payload any) EventRecord {
	t.Helper()
	rec, err := NewEventRecord("bet:b1", typ, version, payload, betBase.Add(time.Duration(version)*time.Second))
	require.NoError(t, err)
	return rec
}

func TestFoldBet(t *testing.T) {
	t.Run("empty stream folds to nil", func(t *testing.T) {
		agg, err := FoldBet(nil)
		require.NoError(t, err)
		assert.Nil(t, agg)
	})

	t.Run("placed then accepted", func(t *testing.T) {
		agg, err := FoldBet([]EventRecord{
			placedRecord(t, 1),
			betRecord(t, EventBetAccepted, 2, BetAcceptedPayload{
				FinalOdds:       decimal.RequireFromString("2.10"),
				PotentialPayout: MustMoney("210", "USD"),
			}),
		})
		require.NoError(t, err)
		assert.Equal(t, "b1", agg.BetID)
		assert.Equal(t, "u1", agg.UserID)
		assert.Equal(t, BetStatusAccepted, agg.Status)
		assert.Equal(t, "2.1", agg.FinalOdds.String())
		assert.Equal(t, 2, agg.Version)
		assert.True(t, agg.Status.IsActive())
		assert.False(t, agg.Status.IsTerminal())
	})

	t.Run("placed then rejected", func(t *testing.T) {
		agg, err := FoldBet([]EventRecord{
			placedRecord(t, 1),
			betRecord(t, EventBetRejected, 2, BetRejectedPayload{Reason: "InsufficientBalance"}),
		})
		require.NoError(t, err)
		assert.Equal(t, BetStatusRejected, agg.Status)
		assert.Equal(t, "InsufficientBalance", agg.RejectionReason)
		assert.True(t, agg.Status.IsTerminal())
	})

	t.Run("settled won carries payout and settlement time", func(t *testing.T) {
		payout := MustMoney("210", "USD")
		agg, err := FoldBet([]EventRecord{
			placedRecord(t, 1),
			betRecord(t, EventBetAccepted, 2, BetAcceptedPayload{FinalOdds: decimal.RequireFromString("2.10")}),
			betRecord(t, EventBetSettled, 3, BetSettledPayload{Status: BetStatusWon, Payout: &payout, WinningSelection: "home"}),
		})
		require.NoError(t, err)
		assert.Equal(t, BetStatusWon, agg.Status)
		require.NotNil(t, agg.Payout)
		assert.True(t, agg.Payout.Amount.Equal(decimal.RequireFromString("210")))
		require.NotNil(t, agg.SettledAt)
		assert.Equal(t, 3, agg.Version)
	})

	t.Run("stream must start with placed", func(t *testing.T) {
		_, err := FoldBet([]EventRecord{
			betRecord(t, EventBetAccepted, 1, BetAcceptedPayload{FinalOdds: decimal.RequireFromString("2.10")}),
		})
		assert.Error(t, err)
	})
}

func TestBetStateMachine(t *testing.T) {
	t.Run("terminal status admits no further events", func(t *testing.T) {
		_, err := FoldBet([]EventRecord{
			placedRecord(t, 1),
			betRecord(t, EventBetRejected, 2, BetRejectedPayload{Reason: "MarketSuspended"}),
			betRecord(t, EventBetVoided, 3, BetVoidedPayload{Reason: "operator"}),
		})
		assert.Error(t, err)
	})

	t.Run("cannot settle a pending bet", func(t *testing.T) {
		_, err := FoldBet([]EventRecord{
			placedRecord(t, 1),
			betRecord(t, EventBetSettled, 2, BetSettledPayload{Status: BetStatusWon}),
		})
		assert.Error(t, err)
	})

	t.Run("cannot cash out a pending bet", func(t *testing.T) {
		_, err := FoldBet([]EventRecord{
			placedRecord(t, 1),
			betRecord(t, EventBetCashedOut, 2, BetCashedOutPayload{Payout: MustMoney("47.50", "USD")}),
		})
		assert.Error(t, err)
	})

	t.Run("settlement status must be won or lost", func(t *testing.T) {
		_, err := FoldBet([]EventRecord{
			placedRecord(t, 1),
			betRecord(t, EventBetAccepted, 2, BetAcceptedPayload{FinalOdds: decimal.RequireFromString("2.10")}),
			betRecord(t, EventBetSettled, 3, BetSettledPayload{Status: BetStatusVoid}),
		})
		assert.Error(t, err)
	})

	t.Run("void is allowed from pending and accepted", func(t *testing.T) {
		refund := MustMoney("100", "USD")
		agg, err := FoldBet([]EventRecord{
			placedRecord(t, 1),
			betRecord(t, EventBetAccepted, 2, BetAcceptedPayload{FinalOdds: decimal.RequireFromString("2.10")}),
			betRecord(t, EventBetVoided, 3, BetVoidedPayload{Reason: "operator", Refund: &refund}),
		})
		require.NoError(t, err)
		assert.Equal(t, BetStatusVoid, agg.Status)
		assert.Equal(t, "operator", agg.VoidReason)
	})
}

func TestBetAggregateClone(t *testing.T) {
	payout := MustMoney("210", "USD")
	agg, err := FoldBet([]EventRecord{
		placedRecord(t, 1),
		betRecord(t, EventBetAccepted, 2, BetAcceptedPayload{FinalOdds: decimal.RequireFromString("2.10")}),
		betRecord(t, EventBetSettled, 3, BetSettledPayload{Status: BetStatusWon, Payout: &payout}),
	})
	require.NoError(t, err)

	clone := agg.Clone()
	clone.Payout.Amount = decimal.Zero
	*clone.SettledAt = clone.SettledAt.Add(time.Hour)

	assert.True(t, agg.Payout.Amount.Equal(decimal.RequireFromString("210")))
	assert.NotEqual(t, *agg.SettledAt, *clone.SettledAt)
}

func TestPlaceBetRequestValidate(t *testing.T) {
	valid := PlaceBetRequest{
		BetID:          "b1",
		UserID:         "u1",
		EventID:        "e1",
		MarketID:       "m1",
		SelectionID:    "home",
		Stake:          MustMoney("100", "USD"),
		AcceptableOdds: decimal.RequireFromString("2.00"),
	}
	assert.NoError(t, valid.Validate())

	missing := valid
	missing.UserID = ""
	assert.Equal(t, "InvalidRequest", CodeOf(missing.Validate()))

	zeroStake := valid
	zeroStake.Stake = ZeroMoney("USD")
	assert.Equal(t, "NonPositiveAmount", CodeOf(zeroStake.Validate()))

	badOdds := valid
	badOdds.AcceptableOdds = decimal.RequireFromString("1.00")
	assert.Equal(t, "InvalidOdds", CodeOf(badOdds.Validate()))
}
