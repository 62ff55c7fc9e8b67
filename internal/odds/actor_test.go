package odds

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsmith/sportsbook/internal/actor"
	"github.com/oddsmith/sportsbook/internal/clock"
	"github.com/oddsmith/sportsbook/internal/domain"
	"github.com/oddsmith/sportsbook/internal/eventbus"
	"github.com/oddsmith/sportsbook/internal/store"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestService(t *testing.T) (*Service, *clock.Manual) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sys := actor.NewSystem(logger)
	t.Cleanup(sys.Shutdown)
	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(sys, store.NewMemoryStateStore(), eventbus.NopPublisher{}, clk, DefaultVolatilityConfig(), logger)
	return svc, clk
}

func initMarket(t *testing.T, svc *Service, marketID string) {
	t.Helper()
	_, err := svc.InitializeMarket(context.Background(), marketID, map[string]decimal.Decimal{
		"home": dec("2.00"),
		"draw": dec("3.40"),
		"away": dec("3.80"),
	}, domain.SourceFeed)
	require.NoError(t, err)
}

func TestInitializeMarket(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the market with low volatility", func(t *testing.T) {
		svc, _ := newTestService(t)
		snap, err := svc.InitializeMarket(ctx, "m1", map[string]decimal.Decimal{"home": dec("2.00")}, domain.SourceManual)
		require.NoError(t, err)
		assert.Equal(t, domain.VolatilityLow, snap.Volatility)
		assert.False(t, snap.Suspended)
		assert.True(t, snap.Selections["home"].Equal(dec("2.00")))
	})

	t.Run("initializes exactly once", func(t *testing.T) {
		svc, _ := newTestService(t)
		initMarket(t, svc, "m1")
		_, err := svc.InitializeMarket(ctx, "m1", map[string]decimal.Decimal{"home": dec("2.00")}, domain.SourceManual)
		assert.Equal(t, "AlreadyInitialized", domain.CodeOf(err))
	})

	t.Run("rejects odds below the minimum", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.InitializeMarket(ctx, "m1", map[string]decimal.Decimal{"home": dec("1.00")}, domain.SourceManual)
		assert.Equal(t, "InvalidOdds", domain.CodeOf(err))
	})
}

func TestUpdateOdds(t *testing.T) {
	ctx := context.Background()

	t.Run("applies a valid batch", func(t *testing.T) {
		svc, _ := newTestService(t)
		initMarket(t, svc, "m1")

		snap, err := svc.UpdateOdds(ctx, "m1", map[string]decimal.Decimal{"home": dec("2.10"), "away": dec("3.60")}, domain.SourceFeed, "")
		require.NoError(t, err)
		assert.True(t, snap.Selections["home"].Equal(dec("2.10")))
		assert.True(t, snap.Selections["away"].Equal(dec("3.60")))
		assert.True(t, snap.Selections["draw"].Equal(dec("3.40")))
	})

	t.Run("an invalid batch leaves the market untouched", func(t *testing.T) {
		svc, _ := newTestService(t)
		initMarket(t, svc, "m1")

		_, err := svc.UpdateOdds(ctx, "m1", map[string]decimal.Decimal{"home": dec("2.10"), "ghost": dec("4.00")}, domain.SourceFeed, "")
		assert.Equal(t, "UnknownSelection", domain.CodeOf(err))

		snap, err := svc.GetCurrentOdds(ctx, "m1")
		require.NoError(t, err)
		assert.True(t, snap.Selections["home"].Equal(dec("2.00")))
	})

	t.Run("unknown market", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.UpdateOdds(ctx, "ghost", map[string]decimal.Decimal{"home": dec("2.10")}, domain.SourceFeed, "")
		assert.Equal(t, "NotFound", domain.CodeOf(err))
	})
}

func TestSuspendResume(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	initMarket(t, svc, "m1")

	snap, err := svc.SuspendOdds(ctx, "m1", "trader review")
	require.NoError(t, err)
	assert.True(t, snap.Suspended)
	assert.Equal(t, "trader review", snap.SuspensionReason)

	// Repricing requires resuming first.
	_, err = svc.UpdateOdds(ctx, "m1", map[string]decimal.Decimal{"home": dec("2.05")}, domain.SourceManual, "correction")
	assert.Equal(t, "MarketSuspended", domain.CodeOf(err))

	snap, err = svc.ResumeOdds(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, snap.Suspended)
	assert.Empty(t, snap.SuspensionReason)

	// Resuming an open market is a no-op.
	snap, err = svc.ResumeOdds(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, snap.Suspended)
}

func TestSuspendKeepsOriginalReason(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	initMarket(t, svc, "m1")

	_, err := svc.SuspendOdds(ctx, "m1", "volatility: extreme swing")
	require.NoError(t, err)

	// Suspending again is a no-op; an operator cannot overwrite the
	// reason recorded by the first suspension.
	snap, err := svc.SuspendOdds(ctx, "m1", "trader review")
	require.NoError(t, err)
	assert.True(t, snap.Suspended)
	assert.Equal(t, "volatility: extreme swing", snap.SuspensionReason)
}

func TestOddsLocks(t *testing.T) {
	ctx := context.Background()

	t.Run("lock pins the quote across reprices", func(t *testing.T) {
		svc, _ := newTestService(t)
		initMarket(t, svc, "m1")

		locked, err := svc.LockOddsForBet(ctx, "m1", "bet-1", "home")
		require.NoError(t, err)
		assert.True(t, locked.Decimal.Equal(dec("2.00")))

		_, err = svc.UpdateOdds(ctx, "m1", map[string]decimal.Decimal{"home": dec("2.50")}, domain.SourceFeed, "")
		require.NoError(t, err)

		again, err := svc.LockOddsForBet(ctx, "m1", "bet-1", "home")
		require.NoError(t, err)
		assert.True(t, again.Decimal.Equal(dec("2.00")))

		lockedSel, err := svc.IsSelectionLocked(ctx, "m1", "home")
		require.NoError(t, err)
		assert.True(t, lockedSel)
	})

	t.Run("suspended market rejects new locks", func(t *testing.T) {
		svc, _ := newTestService(t)
		initMarket(t, svc, "m1")
		_, err := svc.SuspendOdds(ctx, "m1", "trader review")
		require.NoError(t, err)

		_, err = svc.LockOddsForBet(ctx, "m1", "bet-1", "home")
		assert.Equal(t, "MarketSuspended", domain.CodeOf(err))
	})

	t.Run("unlock is a silent no-op without a lock", func(t *testing.T) {
		svc, _ := newTestService(t)
		initMarket(t, svc, "m1")

		require.NoError(t, svc.UnlockOdds(ctx, "m1", "bet-none"))

		_, err := svc.LockOddsForBet(ctx, "m1", "bet-1", "home")
		require.NoError(t, err)
		require.NoError(t, svc.UnlockOdds(ctx, "m1", "bet-1"))

		lockedSel, err := svc.IsSelectionLocked(ctx, "m1", "home")
		require.NoError(t, err)
		assert.False(t, lockedSel)
	})

	t.Run("unknown selection", func(t *testing.T) {
		svc, _ := newTestService(t)
		initMarket(t, svc, "m1")
		_, err := svc.LockOddsForBet(ctx, "m1", "bet-1", "ghost")
		assert.Equal(t, "UnknownSelection", domain.CodeOf(err))
	})
}

func TestVolatility(t *testing.T) {
	ctx := context.Background()

	// feedSwings drives six alternating +40% / -30% moves on "home" within
	// thirty seconds, ignoring rejections once the volatility guard trips.
	feedSwings := func(t *testing.T, svc *Service, clk *clock.Manual) {
		t.Helper()
		for _, odds := range []string{"2.80", "1.96", "2.744", "1.9208", "2.68912", "1.882384"} {
			clk.Advance(5 * time.Second)
			_, err := svc.UpdateOdds(ctx, "m1", map[string]decimal.Decimal{"home": dec(odds)}, domain.SourceFeed, "")
			if err != nil {
				require.Equal(t, "MarketSuspended", domain.CodeOf(err))
			}
		}
	}

	t.Run("extreme swings auto-suspend the market", func(t *testing.T) {
		svc, clk := newTestService(t)
		initMarket(t, svc, "m1")

		feedSwings(t, svc, clk)

		score, err := svc.GetVolatilityScore(ctx, "m1", 0)
		require.NoError(t, err)
		assert.True(t, score.GreaterThanOrEqual(dec("50")), "score = %s", score)

		snap, err := svc.GetCurrentOdds(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, domain.VolatilityExtreme, snap.Volatility)
		assert.True(t, snap.Suspended)
		assert.Equal(t, AutoSuspendReason, snap.SuspensionReason)

		_, err = svc.UpdateOdds(ctx, "m1", map[string]decimal.Decimal{"home": dec("2.00")}, domain.SourceFeed, "")
		assert.Equal(t, "MarketSuspended", domain.CodeOf(err))
	})

	t.Run("a single move scores zero", func(t *testing.T) {
		svc, clk := newTestService(t)
		initMarket(t, svc, "m1")

		clk.Advance(time.Second)
		snap, err := svc.UpdateOdds(ctx, "m1", map[string]decimal.Decimal{"home": dec("3.00")}, domain.SourceFeed, "")
		require.NoError(t, err)
		assert.Equal(t, domain.VolatilityLow, snap.Volatility)
		assert.False(t, snap.Suspended)
	})

	t.Run("two moderate moves classify medium", func(t *testing.T) {
		svc, clk := newTestService(t)
		initMarket(t, svc, "m1")

		clk.Advance(time.Second)
		// +4% then -5%: mean 4.5, frequency 2/5, score 4.5 * 1.4 = 6.3 (low);
		// then +10%: mean grows past the medium threshold.
		_, err := svc.UpdateOdds(ctx, "m1", map[string]decimal.Decimal{"home": dec("2.08")}, domain.SourceFeed, "")
		require.NoError(t, err)
		clk.Advance(time.Second)
		snap, err := svc.UpdateOdds(ctx, "m1", map[string]decimal.Decimal{"home": dec("2.288")}, domain.SourceFeed, "")
		require.NoError(t, err)
		// Changes 4% and 10%: mean 7, frequency 0.4, score 7 * 1.4 = 9.8.
		assert.Equal(t, domain.VolatilityLow, snap.Volatility)

		clk.Advance(time.Second)
		snap, err = svc.UpdateOdds(ctx, "m1", map[string]decimal.Decimal{"home": dec("2.5168")}, domain.SourceFeed, "")
		require.NoError(t, err)
		// Changes 4%, 10%, 10%: mean 8, frequency 0.6, score 12.8.
		assert.Equal(t, domain.VolatilityMedium, snap.Volatility)
	})

	t.Run("old updates age out of the window", func(t *testing.T) {
		svc, clk := newTestService(t)
		initMarket(t, svc, "m1")

		for _, odds := range []string{"3.00", "2.40"} {
			clk.Advance(time.Second)
			_, err := svc.UpdateOdds(ctx, "m1", map[string]decimal.Decimal{"home": dec(odds)}, domain.SourceFeed, "")
			require.NoError(t, err)
		}

		clk.Advance(10 * time.Minute)
		score, err := svc.GetVolatilityScore(ctx, "m1", 0)
		require.NoError(t, err)
		assert.True(t, score.IsZero())
	})

	t.Run("resume after auto-suspension reclassifies", func(t *testing.T) {
		svc, clk := newTestService(t)
		initMarket(t, svc, "m1")

		feedSwings(t, svc, clk)

		clk.Advance(10 * time.Minute)
		snap, err := svc.ResumeOdds(ctx, "m1")
		require.NoError(t, err)
		assert.False(t, snap.Suspended)
		assert.Equal(t, domain.VolatilityLow, snap.Volatility)
	})
}

func TestOddsHistory(t *testing.T) {
	ctx := context.Background()
	svc, clk := newTestService(t)
	initMarket(t, svc, "m1")

	clk.Advance(time.Second)
	_, err := svc.UpdateOdds(ctx, "m1", map[string]decimal.Decimal{"home": dec("2.20")}, domain.SourceFeed, "steam")
	require.NoError(t, err)

	h, err := svc.GetOddsHistory(ctx, "m1", "home")
	require.NoError(t, err)
	assert.True(t, h.Initial.Decimal.Equal(dec("2.00")))
	require.Len(t, h.Updates, 1)
	assert.True(t, h.Updates[0].New.Equal(dec("2.20")))
	assert.Equal(t, "steam", h.Updates[0].Reason)
	assert.True(t, h.Current().Equal(dec("2.20")))

	all, err := svc.GetAllOddsHistory(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Empty(t, all["draw"].Updates)
}

func TestOddsHistoryRecordsRestatedPrice(t *testing.T) {
	ctx := context.Background()
	svc, clk := newTestService(t)
	initMarket(t, svc, "m1")

	// A feed restating the current price still lands in the history.
	clk.Advance(time.Second)
	_, err := svc.UpdateOdds(ctx, "m1", map[string]decimal.Decimal{"home": dec("2.00")}, domain.SourceFeed, "feed refresh")
	require.NoError(t, err)

	h, err := svc.GetOddsHistory(ctx, "m1", "home")
	require.NoError(t, err)
	require.Len(t, h.Updates, 1)
	assert.True(t, h.Updates[0].Previous.Equal(dec("2.00")))
	assert.True(t, h.Updates[0].New.Equal(dec("2.00")))
	assert.Equal(t, "feed refresh", h.Updates[0].Reason)
}
