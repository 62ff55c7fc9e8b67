// Package bet implements the event-sourced bet actor and the placement saga.
// Each bet is one append-only stream on key "bet:<betId>"; the aggregate is
// the fold of that stream and its version is the stream length. Placement
// coordinates the odds and wallet actors and compensates on failure, so a bet
// never holds a reservation or an odds lock after its outcome is decided.
package bet

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/oddsmith/sportsbook/internal/actor"
	"github.com/oddsmith/sportsbook/internal/clock"
	"github.com/oddsmith/sportsbook/internal/domain"
	"github.com/oddsmith/sportsbook/internal/eventbus"
	"github.com/oddsmith/sportsbook/internal/store"
)

// Service is the bet actor service, one logical actor per bet addressed by
// key "bet:<betId>".
type Service struct {
	sys      *actor.System
	events   store.EventStore
	bus      eventbus.Publisher
	clock    clock.Clock
	logger   *slog.Logger
	wallet   WalletClient
	odds     OddsClient
	index    IndexClient
	registry EventRegistry
	cfg      Config

	mu     sync.Mutex
	active map[string]*domain.BetAggregate
}

// NewService creates the bet service.
func NewService(sys *actor.System, events store.EventStore, bus eventbus.Publisher, clk clock.Clock, wallet WalletClient, odds OddsClient, index IndexClient, registry EventRegistry, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		sys:      sys,
		events:   events,
		bus:      bus,
		clock:    clk,
		logger:   logger.With("actor", "bet"),
		wallet:   wallet,
		odds:     odds,
		index:    index,
		registry: registry,
		cfg:      cfg,
		active:   make(map[string]*domain.BetAggregate),
	}
}

func betKey(betID string) string { return "bet:" + betID }

type betOutcome struct {
	agg *domain.BetAggregate
	err error
}

func (s *Service) run(ctx context.Context, betID string, fn func() (*domain.BetAggregate, error)) (*domain.BetAggregate, error) {
	out, err := actor.Call(ctx, s.sys, betKey(betID), func() betOutcome {
		agg, err := fn()
		return betOutcome{agg: agg, err: err}
	})
	if err != nil {
		return nil, err
	}
	return out.agg, out.err
}

// loadAggregate folds the bet's stream, serving from the cache when warm.
// Returns nil when no stream exists.
func (s *Service) loadAggregate(ctx context.Context, betID string) (*domain.BetAggregate, error) {
	s.mu.Lock()
	agg, ok := s.active[betID]
	s.mu.Unlock()
	if ok {
		return agg, nil
	}

	stream, err := s.events.Read(ctx, betKey(betID))
	if err != nil {
		return nil, domain.ErrPersistenceError("read bet stream", err)
	}
	agg, err = domain.FoldBet(stream)
	if err != nil {
		return nil, domain.ErrPersistenceError("fold bet stream", err)
	}
	if agg == nil {
		return nil, nil
	}

	s.mu.Lock()
	s.active[betID] = agg
	s.mu.Unlock()
	return agg, nil
}

// append persists records, folds them into a fresh aggregate copy, swaps the
// cache and publishes the records to the bus. base is nil for a new stream.
func (s *Service) append(ctx context.Context, betID string, base *domain.BetAggregate, recs ...domain.EventRecord) (*domain.BetAggregate, error) {
	if err := s.events.Append(ctx, betKey(betID), recs); err != nil {
		return nil, domain.ErrPersistenceError("append bet events", err)
	}

	next := &domain.BetAggregate{}
	if base != nil {
		next = base.Clone()
	}
	for _, rec := range recs {
		if err := next.Apply(rec); err != nil {
			return nil, domain.ErrPersistenceError("apply bet event", err)
		}
	}

	s.mu.Lock()
	s.active[betID] = next
	s.mu.Unlock()

	for _, rec := range recs {
		eventbus.Fire(ctx, s.bus, s.logger, domain.NewBusEvent(rec, domain.AggregateBet, betID, ""))
	}
	return next, nil
}

func (s *Service) record(betID string, t domain.EventType, version int, payload any) (domain.EventRecord, error) {
	rec, err := domain.NewEventRecord(betKey(betID), t, version, payload, s.clock.Now())
	if err != nil {
		return domain.EventRecord{}, domain.ErrPersistenceError("encode bet event", err)
	}
	return rec, nil
}

// reject closes a brand-new stream as [placed, rejected] and returns cause.
// The rejection reason recorded on the stream is the domain error code.
func (s *Service) reject(ctx context.Context, req domain.PlaceBetRequest, cause error) (*domain.BetAggregate, error) {
	placed, err := s.record(req.BetID, domain.EventBetPlaced, 1, placedPayload(req))
	if err != nil {
		return nil, err
	}
	rejected, err := s.record(req.BetID, domain.EventBetRejected, 2, domain.BetRejectedPayload{Reason: domain.CodeOf(cause)})
	if err != nil {
		return nil, err
	}
	if _, err := s.append(ctx, req.BetID, nil, placed, rejected); err != nil {
		return nil, err
	}
	return nil, cause
}

func placedPayload(req domain.PlaceBetRequest) domain.BetPlacedPayload {
	return domain.BetPlacedPayload{
		UserID:         req.UserID,
		EventID:        req.EventID,
		MarketID:       req.MarketID,
		SelectionID:    req.SelectionID,
		Stake:          req.Stake,
		AcceptableOdds: req.AcceptableOdds,
	}
}

// PlaceBet runs the placement saga. Checks run before side effects; the odds
// lock and the fund reservation are taken in that order and compensated in
// reverse when a later step fails. The stream always ends this call in a
// decided state: accepted, rejected, or voided.
func (s *Service) PlaceBet(ctx context.Context, req domain.PlaceBetRequest) (*domain.BetAggregate, error) {
	return s.run(ctx, req.BetID, func() (*domain.BetAggregate, error) {
		existing, err := s.loadAggregate(ctx, req.BetID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, domain.ErrAlreadyProcessed(req.BetID)
		}
		if err := req.Validate(); err != nil {
			return nil, err
		}

		available, snapshot, err := s.gatherState(ctx, req)
		if err != nil {
			return nil, err
		}

		if snapshot.Suspended {
			return s.reject(ctx, req, domain.ErrMarketSuspended(req.MarketID))
		}
		current, ok := snapshot.Selections[req.SelectionID]
		if !ok {
			return s.reject(ctx, req, domain.ErrUnknownSelection(req.SelectionID))
		}
		if current.LessThan(req.AcceptableOdds) {
			return s.reject(ctx, req, domain.ErrOddsChanged(current.String(), req.AcceptableOdds.String()))
		}
		cmp, err := available.Compare(req.Stake)
		if err != nil || cmp < 0 {
			return s.reject(ctx, req, domain.ErrInsufficientBalance())
		}

		locked, err := s.odds.LockOddsForBet(ctx, req.MarketID, req.BetID, req.SelectionID)
		if err != nil {
			// The market moved between the snapshot read and the lock.
			return s.reject(ctx, req, err)
		}

		if _, err := s.wallet.Reserve(ctx, req.UserID, req.Stake, req.BetID); err != nil {
			s.unlockOdds(ctx, req.MarketID, req.BetID)
			return s.reject(ctx, req, err)
		}

		if err := ctx.Err(); err != nil {
			s.releaseReservation(ctx, req.UserID, req.BetID)
			s.unlockOdds(ctx, req.MarketID, req.BetID)
			return s.reject(ctx, req, domain.ErrOperationCancelled(err))
		}

		finalOdds := locked.Decimal
		placed, err := s.record(req.BetID, domain.EventBetPlaced, 1, placedPayload(req))
		if err != nil {
			s.releaseReservation(ctx, req.UserID, req.BetID)
			s.unlockOdds(ctx, req.MarketID, req.BetID)
			return nil, err
		}
		accepted, err := s.record(req.BetID, domain.EventBetAccepted, 2, domain.BetAcceptedPayload{
			FinalOdds:       finalOdds,
			PotentialPayout: req.Stake.MulDecimal(finalOdds),
		})
		if err != nil {
			s.releaseReservation(ctx, req.UserID, req.BetID)
			s.unlockOdds(ctx, req.MarketID, req.BetID)
			return nil, err
		}
		agg, err := s.append(ctx, req.BetID, nil, placed, accepted)
		if err != nil {
			s.releaseReservation(ctx, req.UserID, req.BetID)
			s.unlockOdds(ctx, req.MarketID, req.BetID)
			return nil, err
		}

		if _, err := s.wallet.CommitReservation(ctx, req.UserID, req.BetID); err != nil {
			return s.voidAfterCommitFailure(ctx, req, agg, err)
		}

		// Index and registry registration are not part of the saga; a failure
		// here leaves a valid accepted bet and is only logged.
		if err := s.index.AddBet(ctx, req.UserID, req.BetID); err != nil {
			s.logger.Error("bet index registration failed", "bet_id", req.BetID, "error", err)
		}
		if err := s.registry.RegisterBet(ctx, req.EventID, req.MarketID, req.BetID); err != nil {
			s.logger.Error("settlement registration failed", "bet_id", req.BetID, "error", err)
		}

		return agg.Clone(), nil
	})
}

// gatherState reads the available balance and the market snapshot
// concurrently; the wallet and odds actors are independent.
func (s *Service) gatherState(ctx context.Context, req domain.PlaceBetRequest) (domain.Money, domain.OddsSnapshot, error) {
	type balanceOut struct {
		available domain.Money
		err       error
	}
	type snapshotOut struct {
		snapshot domain.OddsSnapshot
		err      error
	}
	balanceCh := make(chan balanceOut, 1)
	snapshotCh := make(chan snapshotOut, 1)

	go func() {
		available, err := s.wallet.GetAvailableBalance(ctx, req.UserID)
		balanceCh <- balanceOut{available: available, err: err}
	}()
	go func() {
		snapshot, err := s.odds.GetCurrentOdds(ctx, req.MarketID)
		snapshotCh <- snapshotOut{snapshot: snapshot, err: err}
	}()

	balance := <-balanceCh
	snapshot := <-snapshotCh
	if snapshot.err != nil {
		return domain.Money{}, domain.OddsSnapshot{}, snapshot.err
	}
	if balance.err != nil {
		return domain.Money{}, domain.OddsSnapshot{}, balance.err
	}
	return balance.available, snapshot.snapshot, nil
}

// voidAfterCommitFailure compensates an accepted bet whose stake collection
// failed: the reservation is released, the odds lock dropped, and a voided
// event closes the stream.
func (s *Service) voidAfterCommitFailure(ctx context.Context, req domain.PlaceBetRequest, agg *domain.BetAggregate, cause error) (*domain.BetAggregate, error) {
	s.releaseReservation(ctx, req.UserID, req.BetID)
	s.unlockOdds(ctx, req.MarketID, req.BetID)

	voided, err := s.record(req.BetID, domain.EventBetVoided, agg.Version+1, domain.BetVoidedPayload{Reason: "stake collection failed"})
	if err != nil {
		s.logger.Error("void after commit failure could not be recorded", "bet_id", req.BetID, "error", err)
		return nil, cause
	}
	if _, err := s.append(context.WithoutCancel(ctx), req.BetID, agg, voided); err != nil {
		s.logger.Error("void after commit failure could not be appended", "bet_id", req.BetID, "error", err)
	}
	return nil, cause
}

// releaseReservation is a compensation step: failures are logged, not
// propagated, and a missing reservation is fine.
func (s *Service) releaseReservation(ctx context.Context, userID, betID string) {
	if _, err := s.wallet.ReleaseReservation(context.WithoutCancel(ctx), userID, betID); err != nil {
		if domain.CodeOf(err) != "ReservationNotFound" {
			s.logger.Error("reservation release failed", "bet_id", betID, "error", err)
		}
	}
}

func (s *Service) unlockOdds(ctx context.Context, marketID, betID string) {
	if err := s.odds.UnlockOdds(context.WithoutCancel(ctx), marketID, betID); err != nil {
		s.logger.Error("odds unlock failed", "bet_id", betID, "error", err)
	}
}

// GetBetDetails returns the current aggregate of a bet.
func (s *Service) GetBetDetails(ctx context.Context, betID string) (*domain.BetAggregate, error) {
	return s.run(ctx, betID, func() (*domain.BetAggregate, error) {
		agg, err := s.loadAggregate(ctx, betID)
		if err != nil {
			return nil, err
		}
		if agg == nil {
			return nil, domain.ErrBetNotFound(betID)
		}
		return agg.Clone(), nil
	})
}

// GetBetEvents returns the bet's full event stream in order.
func (s *Service) GetBetEvents(ctx context.Context, betID string) ([]domain.EventRecord, error) {
	stream, err := s.events.Read(ctx, betKey(betID))
	if err != nil {
		return nil, domain.ErrPersistenceError("read bet stream", err)
	}
	if len(stream) == 0 {
		return nil, domain.ErrBetNotFound(betID)
	}
	return stream, nil
}

// GetBetHistory replays the bet's stream and returns one aggregate snapshot
// per applied event, oldest first. The last snapshot equals GetBetDetails.
func (s *Service) GetBetHistory(ctx context.Context, betID string) ([]*domain.BetAggregate, error) {
	stream, err := s.GetBetEvents(ctx, betID)
	if err != nil {
		return nil, err
	}
	agg := &domain.BetAggregate{}
	snapshots := make([]*domain.BetAggregate, 0, len(stream))
	for _, rec := range stream {
		if err := agg.Apply(rec); err != nil {
			return nil, domain.ErrPersistenceError("replay bet stream", err)
		}
		snapshots = append(snapshots, agg.Clone())
	}
	return snapshots, nil
}

// VoidBet cancels a pending or accepted bet. An accepted bet's stake is
// refunded in full; the refund is idempotent per bet, so a replayed void
// cannot pay twice.
func (s *Service) VoidBet(ctx context.Context, betID, reason string) (*domain.BetAggregate, error) {
	return s.run(ctx, betID, func() (*domain.BetAggregate, error) {
		agg, err := s.loadAggregate(ctx, betID)
		if err != nil {
			return nil, err
		}
		if agg == nil {
			return nil, domain.ErrBetNotFound(betID)
		}
		if !agg.Status.IsActive() {
			return nil, domain.ErrCannotVoidInStatus(string(agg.Status))
		}

		payload := domain.BetVoidedPayload{Reason: reason}
		switch agg.Status {
		case domain.BetStatusAccepted:
			refund := agg.Stake
			if _, err := s.wallet.CreditPayout(ctx, agg.UserID, refund, "void-"+betID, domain.TxBetRefund, "bet "+betID+" voided: "+reason); err != nil {
				return nil, domain.ErrWalletDepositFailed(err)
			}
			payload.Refund = &refund
		case domain.BetStatusPending:
			// A pending-only stream means placement stopped mid-saga; the
			// reservation may still be held.
			s.releaseReservation(ctx, agg.UserID, betID)
		}
		s.unlockOdds(ctx, agg.MarketID, betID)

		voided, err := s.record(betID, domain.EventBetVoided, agg.Version+1, payload)
		if err != nil {
			return nil, err
		}
		next, err := s.append(ctx, betID, agg, voided)
		if err != nil {
			return nil, err
		}
		return next.Clone(), nil
	})
}

// CashOut settles an accepted bet early at a quote derived from the odds
// movement since placement:
//
//	quote = stake * margin * min(1, lockedOdds / currentOdds)
//
// floored at the configured minimum. The market must be open.
func (s *Service) CashOut(ctx context.Context, betID string) (*domain.BetAggregate, error) {
	return s.run(ctx, betID, func() (*domain.BetAggregate, error) {
		agg, err := s.loadAggregate(ctx, betID)
		if err != nil {
			return nil, err
		}
		if agg == nil {
			return nil, domain.ErrBetNotFound(betID)
		}
		if agg.Status != domain.BetStatusAccepted {
			return nil, domain.ErrCannotCashOutInStatus(string(agg.Status))
		}

		snapshot, err := s.odds.GetCurrentOdds(ctx, agg.MarketID)
		if err != nil {
			return nil, err
		}
		if snapshot.Suspended {
			return nil, domain.ErrMarketSuspended(agg.MarketID)
		}
		current, ok := snapshot.Selections[agg.SelectionID]
		if !ok {
			return nil, domain.ErrUnknownSelection(agg.SelectionID)
		}

		ratio := agg.FinalOdds.DivRound(current, 8)
		one := decimal.NewFromInt(1)
		if ratio.GreaterThan(one) {
			ratio = one
		}
		payout := agg.Stake.MulDecimal(s.cfg.CashoutMargin.Mul(ratio))
		if payout.Amount.LessThan(s.cfg.CashoutMinimum) {
			payout = domain.Money{Amount: s.cfg.CashoutMinimum, Currency: agg.Stake.Currency}
		}

		if _, err := s.wallet.CreditPayout(ctx, agg.UserID, payout, "cashout-"+betID, domain.TxBetWin, "bet "+betID+" cashed out"); err != nil {
			return nil, domain.ErrWalletDepositFailed(err)
		}
		s.unlockOdds(ctx, agg.MarketID, betID)

		cashed, err := s.record(betID, domain.EventBetCashedOut, agg.Version+1, domain.BetCashedOutPayload{Payout: payout})
		if err != nil {
			return nil, err
		}
		next, err := s.append(ctx, betID, agg, cashed)
		if err != nil {
			return nil, err
		}
		return next.Clone(), nil
	})
}

// ApplySettlement settles one bet against the market's winning selection.
// Bets no longer accepted (already settled, voided or cashed out) are left
// alone, so a replayed settlement run is harmless. The winner's payout credit
// is idempotent per bet.
func (s *Service) ApplySettlement(ctx context.Context, betID, winningSelection string) error {
	_, err := s.run(ctx, betID, func() (*domain.BetAggregate, error) {
		agg, err := s.loadAggregate(ctx, betID)
		if err != nil {
			return nil, err
		}
		if agg == nil {
			return nil, domain.ErrBetNotFound(betID)
		}
		if agg.Status != domain.BetStatusAccepted {
			return agg, nil
		}

		payload := domain.BetSettledPayload{WinningSelection: winningSelection}
		if agg.SelectionID == winningSelection {
			payout := agg.Stake.MulDecimal(agg.FinalOdds)
			if _, err := s.wallet.CreditPayout(ctx, agg.UserID, payout, "settle-win-"+betID, domain.TxBetWin, "bet "+betID+" won"); err != nil {
				return nil, domain.ErrWalletDepositFailed(err)
			}
			payload.Status = domain.BetStatusWon
			payload.Payout = &payout
		} else {
			if _, err := s.wallet.RecordBetLoss(ctx, agg.UserID, betID); err != nil {
				return nil, err
			}
			payload.Status = domain.BetStatusLost
		}
		s.unlockOdds(ctx, agg.MarketID, betID)

		settled, err := s.record(betID, domain.EventBetSettled, agg.Version+1, payload)
		if err != nil {
			return nil, err
		}
		return s.append(ctx, betID, agg, settled)
	})
	return err
}
