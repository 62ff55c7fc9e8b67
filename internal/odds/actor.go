// Package odds implements the per-market odds actor: current quotes per
// selection, suspension state, per-bet odds locks, the change history, and
// volatility scoring with automatic suspension on extreme movement.
package odds

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oddsmith/sportsbook/internal/actor"
	"github.com/oddsmith/sportsbook/internal/clock"
	"github.com/oddsmith/sportsbook/internal/domain"
	"github.com/oddsmith/sportsbook/internal/eventbus"
	"github.com/oddsmith/sportsbook/internal/store"
)

// AutoSuspendReason marks a suspension triggered by the volatility guard
// rather than an operator.
const AutoSuspendReason = "auto:volatility"

// marketState is the serialized state of one odds actor.
type marketState struct {
	Snapshot   domain.OddsSnapshot            `json:"snapshot"`
	Histories  map[string]*domain.OddsHistory `json:"histories"`   // selectionId -> history
	Locks      map[string]map[string]bool     `json:"locks"`       // selectionId -> betIds holding a lock
	LockedOdds map[string]domain.OddsValue    `json:"locked_odds"` // betId -> pinned quote
	Version    int                            `json:"version"`
}

func (st *marketState) clone() *marketState {
	out := &marketState{
		Snapshot:   st.Snapshot.Clone(),
		Histories:  make(map[string]*domain.OddsHistory, len(st.Histories)),
		Locks:      make(map[string]map[string]bool, len(st.Locks)),
		LockedOdds: make(map[string]domain.OddsValue, len(st.LockedOdds)),
		Version:    st.Version,
	}
	for sel, h := range st.Histories {
		c := h.Clone()
		out.Histories[sel] = &c
	}
	for sel, bets := range st.Locks {
		copied := make(map[string]bool, len(bets))
		for id := range bets {
			copied[id] = true
		}
		out.Locks[sel] = copied
	}
	for id, v := range st.LockedOdds {
		out.LockedOdds[id] = v
	}
	return out
}

// Service is the odds actor service, one logical actor per market addressed
// by key "odds:<marketId>".
type Service struct {
	sys    *actor.System
	states store.StateStore
	bus    eventbus.Publisher
	clock  clock.Clock
	logger *slog.Logger
	cfg    VolatilityConfig

	mu     sync.Mutex
	active map[string]*marketState
}

// NewService creates the odds service.
func NewService(sys *actor.System, states store.StateStore, bus eventbus.Publisher, clk clock.Clock, cfg VolatilityConfig, logger *slog.Logger) *Service {
	return &Service{
		sys:    sys,
		states: states,
		bus:    bus,
		clock:  clk,
		logger: logger.With("actor", "odds"),
		cfg:    cfg,
		active: make(map[string]*marketState),
	}
}

func oddsKey(marketID string) string { return "odds:" + marketID }

type oddsOutcome[T any] struct {
	val T
	err error
}

func run[T any](ctx context.Context, s *Service, marketID string, fn func(st *marketState) (T, error)) (T, error) {
	out, err := actor.Call(ctx, s.sys, oddsKey(marketID), func() oddsOutcome[T] {
		st, err := s.stateFor(ctx, marketID)
		if err != nil {
			var zero T
			return oddsOutcome[T]{val: zero, err: err}
		}
		v, err := fn(st)
		return oddsOutcome[T]{val: v, err: err}
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out.val, out.err
}

// stateFor returns the cached market state, loading the snapshot on first
// access. nil state means the market has not been initialized.
func (s *Service) stateFor(ctx context.Context, marketID string) (*marketState, error) {
	s.mu.Lock()
	st, ok := s.active[marketID]
	s.mu.Unlock()
	if ok {
		return st, nil
	}

	raw, err := s.states.Load(ctx, oddsKey(marketID))
	if err != nil {
		return nil, domain.ErrPersistenceError("load odds state", err)
	}
	if raw == nil {
		return nil, nil
	}
	st = &marketState{}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, domain.ErrPersistenceError("decode odds state", err)
	}

	s.mu.Lock()
	s.active[marketID] = st
	s.mu.Unlock()
	return st, nil
}

func (s *Service) commit(ctx context.Context, marketID string, st *marketState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return domain.ErrPersistenceError("encode odds state", err)
	}
	if err := s.states.Save(ctx, oddsKey(marketID), raw); err != nil {
		return domain.ErrPersistenceError("save odds state", err)
	}
	s.mu.Lock()
	s.active[marketID] = st
	s.mu.Unlock()
	return nil
}

func (s *Service) publish(ctx context.Context, marketID string, t domain.EventType, version int, payload any) {
	rec, err := domain.NewEventRecord(oddsKey(marketID), t, version, payload, s.clock.Now())
	if err != nil {
		s.logger.Error("encode odds event failed", "market_id", marketID, "type", t, "error", err)
		return
	}
	eventbus.Fire(ctx, s.bus, s.logger, domain.NewBusEvent(rec, domain.AggregateOdds, marketID, ""))
}

// InitializeMarket creates the odds actor for a market with its opening
// quotes. A market initializes exactly once.
func (s *Service) InitializeMarket(ctx context.Context, marketID string, selections map[string]decimal.Decimal, source domain.OddsSource) (domain.OddsSnapshot, error) {
	return run(ctx, s, marketID, func(st *marketState) (domain.OddsSnapshot, error) {
		if st != nil {
			return domain.OddsSnapshot{}, domain.ErrAlreadyInitialized(marketID)
		}
		if len(selections) == 0 {
			return domain.OddsSnapshot{}, domain.ErrInvalidRequest("market needs at least one selection")
		}
		for _, odds := range selections {
			if err := domain.ValidateOdds(odds); err != nil {
				return domain.OddsSnapshot{}, err
			}
		}

		now := s.clock.Now()
		next := &marketState{
			Snapshot: domain.OddsSnapshot{
				MarketID:   marketID,
				Selections: make(map[string]decimal.Decimal, len(selections)),
				Volatility: domain.VolatilityLow,
				Timestamp:  now,
			},
			Histories:  make(map[string]*domain.OddsHistory, len(selections)),
			Locks:      make(map[string]map[string]bool),
			LockedOdds: make(map[string]domain.OddsValue),
			Version:    1,
		}
		for sel, odds := range selections {
			next.Snapshot.Selections[sel] = odds
			next.Histories[sel] = &domain.OddsHistory{
				MarketID:    marketID,
				SelectionID: sel,
				Initial: domain.OddsValue{
					Decimal:     odds,
					MarketID:    marketID,
					SelectionID: sel,
					Source:      source,
					Timestamp:   now,
				},
			}
		}

		if err := s.commit(ctx, marketID, next); err != nil {
			return domain.OddsSnapshot{}, err
		}
		s.publish(ctx, marketID, domain.EventOddsInitialized, next.Version, next.Snapshot)
		return next.Snapshot.Clone(), nil
	})
}

// UpdateOdds applies a batch of quote changes. The batch is validated in full
// before anything is applied, so a bad selection or price leaves the market
// untouched. A suspended market rejects updates until it is resumed.
func (s *Service) UpdateOdds(ctx context.Context, marketID string, changes map[string]decimal.Decimal, source domain.OddsSource, reason string) (domain.OddsSnapshot, error) {
	return run(ctx, s, marketID, func(st *marketState) (domain.OddsSnapshot, error) {
		if st == nil {
			return domain.OddsSnapshot{}, domain.ErrNotFound("market", marketID)
		}
		if st.Snapshot.Suspended {
			return domain.OddsSnapshot{}, domain.ErrMarketSuspended(marketID)
		}
		if len(changes) == 0 {
			return domain.OddsSnapshot{}, domain.ErrInvalidRequest("no odds changes given")
		}
		for sel, odds := range changes {
			if _, ok := st.Snapshot.Selections[sel]; !ok {
				return domain.OddsSnapshot{}, domain.ErrUnknownSelection(sel)
			}
			if err := domain.ValidateOdds(odds); err != nil {
				return domain.OddsSnapshot{}, err
			}
		}

		now := s.clock.Now()
		next := st.clone()
		// Every requested selection gets a history entry, including
		// restatements of the current price.
		for sel, odds := range changes {
			previous := next.Snapshot.Selections[sel]
			next.Snapshot.Selections[sel] = odds
			h := next.Histories[sel]
			h.Updates = append(h.Updates, domain.OddsUpdate{
				Previous:  previous,
				New:       odds,
				Source:    source,
				Reason:    reason,
				UpdatedAt: now,
			})
		}
		next.Snapshot.Timestamp = now
		next.Version++

		score := marketScore(next.Histories, now, s.cfg.Window)
		next.Snapshot.Volatility = classifyVolatility(score, s.cfg)
		autoSuspended := false
		if next.Snapshot.Volatility == domain.VolatilityExtreme && !next.Snapshot.Suspended {
			next.Snapshot.Suspended = true
			next.Snapshot.SuspensionReason = AutoSuspendReason
			autoSuspended = true
		}

		if err := s.commit(ctx, marketID, next); err != nil {
			return domain.OddsSnapshot{}, err
		}
		s.publish(ctx, marketID, domain.EventOddsUpdated, next.Version, next.Snapshot)
		if autoSuspended {
			s.logger.Warn("market auto-suspended on extreme volatility",
				"market_id", marketID, "score", score.String())
			s.publish(ctx, marketID, domain.EventOddsSuspended, next.Version, next.Snapshot)
		}
		return next.Snapshot.Clone(), nil
	})
}

// SuspendOdds suspends the market. Suspending an already suspended market is
// a no-op that returns the current state with its original reason, so an
// operator suspend cannot overwrite an automatic one.
func (s *Service) SuspendOdds(ctx context.Context, marketID, reason string) (domain.OddsSnapshot, error) {
	return run(ctx, s, marketID, func(st *marketState) (domain.OddsSnapshot, error) {
		if st == nil {
			return domain.OddsSnapshot{}, domain.ErrNotFound("market", marketID)
		}
		if st.Snapshot.Suspended {
			return st.Snapshot.Clone(), nil
		}

		next := st.clone()
		next.Snapshot.Suspended = true
		next.Snapshot.SuspensionReason = reason
		next.Snapshot.Timestamp = s.clock.Now()
		next.Version++

		if err := s.commit(ctx, marketID, next); err != nil {
			return domain.OddsSnapshot{}, err
		}
		s.publish(ctx, marketID, domain.EventOddsSuspended, next.Version, next.Snapshot)
		return next.Snapshot.Clone(), nil
	})
}

// ResumeOdds lifts a suspension, manual or automatic. Resuming a market that
// is not suspended is a no-op.
func (s *Service) ResumeOdds(ctx context.Context, marketID string) (domain.OddsSnapshot, error) {
	return run(ctx, s, marketID, func(st *marketState) (domain.OddsSnapshot, error) {
		if st == nil {
			return domain.OddsSnapshot{}, domain.ErrNotFound("market", marketID)
		}
		if !st.Snapshot.Suspended {
			return st.Snapshot.Clone(), nil
		}

		next := st.clone()
		next.Snapshot.Suspended = false
		next.Snapshot.SuspensionReason = ""
		next.Snapshot.Timestamp = s.clock.Now()
		next.Snapshot.Volatility = classifyVolatility(marketScore(next.Histories, next.Snapshot.Timestamp, s.cfg.Window), s.cfg)
		next.Version++

		if err := s.commit(ctx, marketID, next); err != nil {
			return domain.OddsSnapshot{}, err
		}
		s.publish(ctx, marketID, domain.EventOddsResumed, next.Version, next.Snapshot)
		return next.Snapshot.Clone(), nil
	})
}

// LockOddsForBet pins the current quote of a selection for a bet being
// placed. The pinned value does not move when the market reprices. Locking
// again with the same betId returns the original pin.
func (s *Service) LockOddsForBet(ctx context.Context, marketID, betID, selectionID string) (domain.OddsValue, error) {
	return run(ctx, s, marketID, func(st *marketState) (domain.OddsValue, error) {
		if st == nil {
			return domain.OddsValue{}, domain.ErrNotFound("market", marketID)
		}
		if locked, ok := st.LockedOdds[betID]; ok {
			return locked, nil
		}
		if st.Snapshot.Suspended {
			return domain.OddsValue{}, domain.ErrMarketSuspended(marketID)
		}
		current, ok := st.Snapshot.Selections[selectionID]
		if !ok {
			return domain.OddsValue{}, domain.ErrUnknownSelection(selectionID)
		}

		next := st.clone()
		locked := domain.OddsValue{
			Decimal:     current,
			MarketID:    marketID,
			SelectionID: selectionID,
			Source:      domain.SourceManual,
			Timestamp:   s.clock.Now(),
		}
		if next.Locks[selectionID] == nil {
			next.Locks[selectionID] = make(map[string]bool)
		}
		next.Locks[selectionID][betID] = true
		next.LockedOdds[betID] = locked
		next.Version++

		if err := s.commit(ctx, marketID, next); err != nil {
			return domain.OddsValue{}, err
		}
		return locked, nil
	})
}

// UnlockOdds drops a bet's odds lock. Unlocking a bet that holds no lock is
// a silent no-op, which makes compensation paths safe to replay.
func (s *Service) UnlockOdds(ctx context.Context, marketID, betID string) error {
	_, err := run(ctx, s, marketID, func(st *marketState) (struct{}, error) {
		if st == nil {
			return struct{}{}, nil
		}
		locked, ok := st.LockedOdds[betID]
		if !ok {
			return struct{}{}, nil
		}

		next := st.clone()
		delete(next.LockedOdds, betID)
		if bets := next.Locks[locked.SelectionID]; bets != nil {
			delete(bets, betID)
			if len(bets) == 0 {
				delete(next.Locks, locked.SelectionID)
			}
		}
		next.Version++
		return struct{}{}, s.commit(ctx, marketID, next)
	})
	return err
}

// GetCurrentOdds returns the market snapshot.
func (s *Service) GetCurrentOdds(ctx context.Context, marketID string) (domain.OddsSnapshot, error) {
	return run(ctx, s, marketID, func(st *marketState) (domain.OddsSnapshot, error) {
		if st == nil {
			return domain.OddsSnapshot{}, domain.ErrNotFound("market", marketID)
		}
		return st.Snapshot.Clone(), nil
	})
}

// IsMarketSuspended reports the suspension flag.
func (s *Service) IsMarketSuspended(ctx context.Context, marketID string) (bool, error) {
	return run(ctx, s, marketID, func(st *marketState) (bool, error) {
		if st == nil {
			return false, domain.ErrNotFound("market", marketID)
		}
		return st.Snapshot.Suspended, nil
	})
}

// GetCurrentVolatility returns the market's volatility level.
func (s *Service) GetCurrentVolatility(ctx context.Context, marketID string) (domain.VolatilityLevel, error) {
	return run(ctx, s, marketID, func(st *marketState) (domain.VolatilityLevel, error) {
		if st == nil {
			return "", domain.ErrNotFound("market", marketID)
		}
		return st.Snapshot.Volatility, nil
	})
}

// GetVolatilityScore computes the live score over the given window; a zero
// window falls back to the configured one.
func (s *Service) GetVolatilityScore(ctx context.Context, marketID string, window time.Duration) (decimal.Decimal, error) {
	return run(ctx, s, marketID, func(st *marketState) (decimal.Decimal, error) {
		if st == nil {
			return decimal.Zero, domain.ErrNotFound("market", marketID)
		}
		if window <= 0 {
			window = s.cfg.Window
		}
		return marketScore(st.Histories, s.clock.Now(), window), nil
	})
}

// GetOddsHistory returns the change history of one selection.
func (s *Service) GetOddsHistory(ctx context.Context, marketID, selectionID string) (domain.OddsHistory, error) {
	return run(ctx, s, marketID, func(st *marketState) (domain.OddsHistory, error) {
		if st == nil {
			return domain.OddsHistory{}, domain.ErrNotFound("market", marketID)
		}
		h, ok := st.Histories[selectionID]
		if !ok {
			return domain.OddsHistory{}, domain.ErrUnknownSelection(selectionID)
		}
		return h.Clone(), nil
	})
}

// GetAllOddsHistory returns the change history of every selection.
func (s *Service) GetAllOddsHistory(ctx context.Context, marketID string) (map[string]domain.OddsHistory, error) {
	return run(ctx, s, marketID, func(st *marketState) (map[string]domain.OddsHistory, error) {
		if st == nil {
			return nil, domain.ErrNotFound("market", marketID)
		}
		out := make(map[string]domain.OddsHistory, len(st.Histories))
		for sel, h := range st.Histories {
			out[sel] = h.Clone()
		}
		return out, nil
	})
}

// IsSelectionLocked reports whether any bet holds a lock on the selection.
func (s *Service) IsSelectionLocked(ctx context.Context, marketID, selectionID string) (bool, error) {
	return run(ctx, s, marketID, func(st *marketState) (bool, error) {
		if st == nil {
			return false, domain.ErrNotFound("market", marketID)
		}
		return len(st.Locks[selectionID]) > 0, nil
	})
}

// GetLockedSelections returns the selections with at least one active lock
// and the bet ids holding them.
func (s *Service) GetLockedSelections(ctx context.Context, marketID string) (map[string][]string, error) {
	return run(ctx, s, marketID, func(st *marketState) (map[string][]string, error) {
		if st == nil {
			return nil, domain.ErrNotFound("market", marketID)
		}
		out := make(map[string][]string, len(st.Locks))
		for sel, bets := range st.Locks {
			ids := make([]string, 0, len(bets))
			for id := range bets {
				ids = append(ids, id)
			}
			out[sel] = ids
		}
		return out, nil
	})
}
