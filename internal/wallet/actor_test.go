package wallet

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsmith/sportsbook/internal/actor"
	"github.com/oddsmith/sportsbook/internal/clock"
	"github.com/oddsmith/sportsbook/internal/domain"
	"github.com/oddsmith/sportsbook/internal/eventbus"
	"github.com/oddsmith/sportsbook/internal/store"
)

func newTestService(t *testing.T) (*Service, *clock.Manual) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sys := actor.NewSystem(logger)
	t.Cleanup(sys.Shutdown)
	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewService(sys, store.NewMemoryStateStore(), eventbus.NopPublisher{}, clk, logger), clk
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()

	t.Run("credits the balance", func(t *testing.T) {
		svc, _ := newTestService(t)

		res, err := svc.Deposit(ctx, "u1", domain.MustMoney("100.00", "EUR"), "dep-1")
		require.NoError(t, err)

		assert.Equal(t, domain.TxDeposit, res.Transaction.Type)
		assert.Equal(t, "100.00 EUR", res.Balance.String())
		assert.Equal(t, "100.00 EUR", res.Available.String())
		assert.False(t, res.Idempotent)
	})

	t.Run("rejects a non-positive amount", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Deposit(ctx, "u1", domain.ZeroMoney("EUR"), "dep-1")
		assert.Equal(t, "NonPositiveAmount", domain.CodeOf(err))
	})

	t.Run("replays the same referenceId without double-crediting", func(t *testing.T) {
		svc, _ := newTestService(t)

		first, err := svc.Deposit(ctx, "u1", domain.MustMoney("50", "EUR"), "dep-1")
		require.NoError(t, err)
		second, err := svc.Deposit(ctx, "u1", domain.MustMoney("50", "EUR"), "dep-1")
		require.NoError(t, err)

		assert.True(t, second.Idempotent)
		assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
		assert.Equal(t, "50.00 EUR", second.Balance.String())

		entries, err := svc.GetLedgerEntries(ctx, "u1", 0)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("rejects a second currency", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Deposit(ctx, "u1", domain.MustMoney("10", "EUR"), "dep-1")
		require.NoError(t, err)
		_, err = svc.Deposit(ctx, "u1", domain.MustMoney("10", "USD"), "dep-2")
		assert.Equal(t, "CurrencyMismatch", domain.CodeOf(err))
	})
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()

	t.Run("debits the available balance", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Deposit(ctx, "u1", domain.MustMoney("100", "EUR"), "dep-1")
		require.NoError(t, err)

		res, err := svc.Withdraw(ctx, "u1", domain.MustMoney("30", "EUR"), "wd-1")
		require.NoError(t, err)
		assert.Equal(t, "70.00 EUR", res.Balance.String())
	})

	t.Run("cannot touch reserved funds", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Deposit(ctx, "u1", domain.MustMoney("100", "EUR"), "dep-1")
		require.NoError(t, err)
		_, err = svc.Reserve(ctx, "u1", domain.MustMoney("80", "EUR"), "bet-1")
		require.NoError(t, err)

		_, err = svc.Withdraw(ctx, "u1", domain.MustMoney("30", "EUR"), "wd-1")
		assert.Equal(t, "InsufficientAvailableBalance", domain.CodeOf(err))
	})

	t.Run("rejects overdraft on an empty wallet", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Withdraw(ctx, "u1", domain.MustMoney("1", "EUR"), "wd-1")
		assert.Equal(t, "InsufficientAvailableBalance", domain.CodeOf(err))
	})
}

func TestReservations(t *testing.T) {
	ctx := context.Background()

	t.Run("reserve keeps total and shrinks available", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Deposit(ctx, "u1", domain.MustMoney("100", "EUR"), "dep-1")
		require.NoError(t, err)

		res, err := svc.Reserve(ctx, "u1", domain.MustMoney("40", "EUR"), "bet-1")
		require.NoError(t, err)
		assert.Equal(t, "100.00 EUR", res.Balance.String())
		assert.Equal(t, "60.00 EUR", res.Available.String())
	})

	t.Run("one active reservation per bet", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Deposit(ctx, "u1", domain.MustMoney("100", "EUR"), "dep-1")
		require.NoError(t, err)
		_, err = svc.Reserve(ctx, "u1", domain.MustMoney("10", "EUR"), "bet-1")
		require.NoError(t, err)

		_, err = svc.Reserve(ctx, "u1", domain.MustMoney("10", "EUR"), "bet-1")
		assert.Equal(t, "DuplicateReservation", domain.CodeOf(err))
	})

	t.Run("commit removes the funds for good", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Deposit(ctx, "u1", domain.MustMoney("100", "EUR"), "dep-1")
		require.NoError(t, err)
		_, err = svc.Reserve(ctx, "u1", domain.MustMoney("40", "EUR"), "bet-1")
		require.NoError(t, err)

		res, err := svc.CommitReservation(ctx, "u1", "bet-1")
		require.NoError(t, err)
		assert.Equal(t, "60.00 EUR", res.Balance.String())
		assert.Equal(t, "60.00 EUR", res.Available.String())

		reservations, err := svc.ActiveReservations(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, reservations)
	})

	t.Run("release returns the funds", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Deposit(ctx, "u1", domain.MustMoney("100", "EUR"), "dep-1")
		require.NoError(t, err)
		_, err = svc.Reserve(ctx, "u1", domain.MustMoney("40", "EUR"), "bet-1")
		require.NoError(t, err)

		res, err := svc.ReleaseReservation(ctx, "u1", "bet-1")
		require.NoError(t, err)
		assert.Equal(t, "100.00 EUR", res.Balance.String())
		assert.Equal(t, "100.00 EUR", res.Available.String())
	})

	t.Run("commit of an unknown reservation fails", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Deposit(ctx, "u1", domain.MustMoney("100", "EUR"), "dep-1")
		require.NoError(t, err)

		_, err = svc.CommitReservation(ctx, "u1", "bet-nope")
		assert.Equal(t, "ReservationNotFound", domain.CodeOf(err))
	})
}

func TestCreditPayout(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Deposit(ctx, "u1", domain.MustMoney("100", "EUR"), "dep-1")
	require.NoError(t, err)

	first, err := svc.CreditPayout(ctx, "u1", domain.MustMoney("250", "EUR"), "settle-win-bet-1", domain.TxBetWin, "bet bet-1 won")
	require.NoError(t, err)
	assert.Equal(t, "350.00 EUR", first.Balance.String())

	// A replayed settlement must not pay twice.
	second, err := svc.CreditPayout(ctx, "u1", domain.MustMoney("250", "EUR"), "settle-win-bet-1", domain.TxBetWin, "bet bet-1 won")
	require.NoError(t, err)
	assert.True(t, second.Idempotent)
	assert.Equal(t, "350.00 EUR", second.Balance.String())
}

func TestRecordBetLoss(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Deposit(ctx, "u1", domain.MustMoney("100", "EUR"), "dep-1")
	require.NoError(t, err)

	res, err := svc.RecordBetLoss(ctx, "u1", "bet-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TxBetLoss, res.Transaction.Type)
	assert.True(t, res.Transaction.Amount.IsZero())
	assert.Equal(t, "100.00 EUR", res.Balance.String())

	replay, err := svc.RecordBetLoss(ctx, "u1", "bet-1")
	require.NoError(t, err)
	assert.True(t, replay.Idempotent)
}

func TestDoubleEntryLedger(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Deposit(ctx, "u1", domain.MustMoney("100", "EUR"), "dep-1")
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, "u1", domain.MustMoney("40", "EUR"), "bet-1")
	require.NoError(t, err)
	_, err = svc.CommitReservation(ctx, "u1", "bet-1")
	require.NoError(t, err)

	entries, err := svc.GetLedgerEntries(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 6)

	// Every transaction books exactly one credit and one debit with the same
	// transaction id and amount.
	byTx := make(map[string][]domain.LedgerEntry)
	for _, e := range entries {
		byTx[e.TransactionID.String()] = append(byTx[e.TransactionID.String()], e)
	}
	require.Len(t, byTx, 3)
	for _, pair := range byTx {
		require.Len(t, pair, 2)
		assert.NotEqual(t, pair[0].Kind, pair[1].Kind)
		assert.Equal(t, pair[0].Amount, pair[1].Amount)
	}
}

func TestTransactionHistoryOrder(t *testing.T) {
	ctx := context.Background()
	svc, clk := newTestService(t)

	_, err := svc.Deposit(ctx, "u1", domain.MustMoney("100", "EUR"), "dep-1")
	require.NoError(t, err)
	clk.Advance(time.Minute)
	_, err = svc.Withdraw(ctx, "u1", domain.MustMoney("10", "EUR"), "wd-1")
	require.NoError(t, err)
	clk.Advance(time.Minute)
	_, err = svc.Deposit(ctx, "u1", domain.MustMoney("5", "EUR"), "dep-2")
	require.NoError(t, err)

	history, err := svc.GetTransactionHistory(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "dep-2", history[0].ReferenceID)
	assert.Equal(t, "wd-1", history[1].ReferenceID)
}

func TestStateSurvivesReload(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	states := store.NewMemoryStateStore()
	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	sys1 := actor.NewSystem(logger)
	svc1 := NewService(sys1, states, eventbus.NopPublisher{}, clk, logger)
	_, err := svc1.Deposit(ctx, "u1", domain.MustMoney("100", "EUR"), "dep-1")
	require.NoError(t, err)
	_, err = svc1.Reserve(ctx, "u1", domain.MustMoney("40", "EUR"), "bet-1")
	require.NoError(t, err)
	sys1.Shutdown()

	// A fresh service over the same store picks up where the first left off.
	sys2 := actor.NewSystem(logger)
	defer sys2.Shutdown()
	svc2 := NewService(sys2, states, eventbus.NopPublisher{}, clk, logger)

	total, available, err := svc2.Balances(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "100.00 EUR", total.String())
	assert.Equal(t, "60.00 EUR", available.String())

	_, err = svc2.Reserve(ctx, "u1", domain.MustMoney("10", "EUR"), "bet-1")
	assert.Equal(t, "DuplicateReservation", domain.CodeOf(err))
}
