// Package betindex maintains the per-user index of bet ids. The bet streams
// themselves are keyed by bet id only; this actor is what makes "all bets of
// user X" answerable without scanning every stream.
package betindex

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/oddsmith/sportsbook/internal/actor"
	"github.com/oddsmith/sportsbook/internal/domain"
	"github.com/oddsmith/sportsbook/internal/store"
)

// BetReader resolves bet ids to aggregates. Satisfied by the bet service;
// injected through SetReader because the bet service is constructed after
// this one.
type BetReader interface {
	GetBetDetails(ctx context.Context, betID string) (*domain.BetAggregate, error)
}

// indexState is the serialized state of one index actor. BetIDs keeps
// placement order.
type indexState struct {
	UserID string          `json:"user_id"`
	BetIDs []string        `json:"bet_ids"`
	Seen   map[string]bool `json:"seen"`
}

func (st *indexState) clone() *indexState {
	out := &indexState{
		UserID: st.UserID,
		BetIDs: append([]string(nil), st.BetIDs...),
		Seen:   make(map[string]bool, len(st.Seen)),
	}
	for id := range st.Seen {
		out.Seen[id] = true
	}
	return out
}

// Service is the bet index actor service, one logical actor per user
// addressed by key "betindex:<userId>".
type Service struct {
	sys    *actor.System
	states store.StateStore
	logger *slog.Logger
	reader BetReader

	mu     sync.Mutex
	active map[string]*indexState
}

// NewService creates the bet index service. Call SetReader before serving
// queries that resolve aggregates.
func NewService(sys *actor.System, states store.StateStore, logger *slog.Logger) *Service {
	return &Service{
		sys:    sys,
		states: states,
		logger: logger.With("actor", "betindex"),
		active: make(map[string]*indexState),
	}
}

// SetReader injects the bet reader.
func (s *Service) SetReader(reader BetReader) { s.reader = reader }

func indexKey(userID string) string { return "betindex:" + userID }

type indexOutcome[T any] struct {
	val T
	err error
}

func run[T any](ctx context.Context, s *Service, userID string, fn func(st *indexState) (T, error)) (T, error) {
	out, err := actor.Call(ctx, s.sys, indexKey(userID), func() indexOutcome[T] {
		st, err := s.stateFor(ctx, userID)
		if err != nil {
			var zero T
			return indexOutcome[T]{val: zero, err: err}
		}
		v, err := fn(st)
		return indexOutcome[T]{val: v, err: err}
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out.val, out.err
}

func (s *Service) stateFor(ctx context.Context, userID string) (*indexState, error) {
	s.mu.Lock()
	st, ok := s.active[userID]
	s.mu.Unlock()
	if ok {
		return st, nil
	}

	raw, err := s.states.Load(ctx, indexKey(userID))
	if err != nil {
		return nil, domain.ErrPersistenceError("load bet index", err)
	}
	st = &indexState{UserID: userID, Seen: make(map[string]bool)}
	if raw != nil {
		if err := json.Unmarshal(raw, st); err != nil {
			return nil, domain.ErrPersistenceError("decode bet index", err)
		}
	}

	s.mu.Lock()
	s.active[userID] = st
	s.mu.Unlock()
	return st, nil
}

func (s *Service) commit(ctx context.Context, st *indexState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return domain.ErrPersistenceError("encode bet index", err)
	}
	if err := s.states.Save(ctx, indexKey(st.UserID), raw); err != nil {
		return domain.ErrPersistenceError("save bet index", err)
	}
	s.mu.Lock()
	s.active[st.UserID] = st
	s.mu.Unlock()
	return nil
}

// AddBet records a bet id for a user. Adding the same id again is a no-op.
func (s *Service) AddBet(ctx context.Context, userID, betID string) error {
	_, err := run(ctx, s, userID, func(st *indexState) (struct{}, error) {
		if st.Seen[betID] {
			return struct{}{}, nil
		}
		next := st.clone()
		next.BetIDs = append(next.BetIDs, betID)
		next.Seen[betID] = true
		return struct{}{}, s.commit(ctx, next)
	})
	return err
}

// HasBet reports whether the bet id is indexed for the user.
func (s *Service) HasBet(ctx context.Context, userID, betID string) (bool, error) {
	return run(ctx, s, userID, func(st *indexState) (bool, error) {
		return st.Seen[betID], nil
	})
}

// GetUserBets returns the user's bet ids in placement order. limit > 0 keeps
// only the most recent placements; limit <= 0 returns all.
func (s *Service) GetUserBets(ctx context.Context, userID string, limit int) ([]string, error) {
	return run(ctx, s, userID, func(st *indexState) ([]string, error) {
		ids := st.BetIDs
		if limit > 0 && len(ids) > limit {
			ids = ids[len(ids)-limit:]
		}
		return append([]string(nil), ids...), nil
	})
}

// GetActiveBets resolves the user's bets and returns those still active, in
// placement order. limit > 0 keeps only the most recent ones.
func (s *Service) GetActiveBets(ctx context.Context, userID string, limit int) ([]*domain.BetAggregate, error) {
	all, err := s.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, agg := range all {
		if agg.Status.IsActive() {
			active = append(active, agg)
		}
	}
	if limit > 0 && len(active) > limit {
		active = active[len(active)-limit:]
	}
	return active, nil
}

// GetBetHistory resolves the user's bets, newest placement first. limit > 0
// caps the result.
func (s *Service) GetBetHistory(ctx context.Context, userID string, limit int) ([]*domain.BetAggregate, error) {
	all, err := s.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].PlacedAt.After(all[j].PlacedAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// resolve loads the aggregates for every indexed bet id. The id list is read
// on the index mailbox; aggregates are resolved outside it so the index actor
// never blocks on bet actors. Ids whose stream is missing are skipped.
func (s *Service) resolve(ctx context.Context, userID string) ([]*domain.BetAggregate, error) {
	ids, err := s.GetUserBets(ctx, userID, 0)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.BetAggregate, 0, len(ids))
	for _, id := range ids {
		agg, err := s.reader.GetBetDetails(ctx, id)
		if err != nil {
			if domain.CodeOf(err) == "BetNotFound" {
				s.logger.Warn("indexed bet has no stream", "user_id", userID, "bet_id", id)
				continue
			}
			return nil, err
		}
		out = append(out, agg)
	}
	return out, nil
}
