// Package sportevent implements the per-event actor: the sport event life
// cycle, its betting markets, and settlement fan-out. The actor keeps a
// per-market registry of accepted bet ids; setting a market result drives the
// injected settler over those bets one at a time.
package sportevent

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oddsmith/sportsbook/internal/actor"
	"github.com/oddsmith/sportsbook/internal/clock"
	"github.com/oddsmith/sportsbook/internal/domain"
	"github.com/oddsmith/sportsbook/internal/eventbus"
	"github.com/oddsmith/sportsbook/internal/store"
)

// BetSettler settles one bet against a market's winning selection. Satisfied
// by the bet service; injected through SetSettler because the bet service is
// constructed after this one.
type BetSettler interface {
	ApplySettlement(ctx context.Context, betID, winningSelection string) error
}

// eventState is the serialized state of one sport event actor.
type eventState struct {
	Event      *domain.SportEvent        `json:"event"`
	Markets    map[string]*domain.Market `json:"markets"`
	MarketBets map[string][]string       `json:"market_bets"` // marketId -> accepted betIds
	Version    int                       `json:"version"`
}

func (st *eventState) clone() *eventState {
	out := &eventState{
		Event:      st.Event.Clone(),
		Markets:    make(map[string]*domain.Market, len(st.Markets)),
		MarketBets: make(map[string][]string, len(st.MarketBets)),
		Version:    st.Version,
	}
	for id, m := range st.Markets {
		out.Markets[id] = m.Clone()
	}
	for id, bets := range st.MarketBets {
		out.MarketBets[id] = append([]string(nil), bets...)
	}
	return out
}

// settlementJob is one market's settlement work, dispatched after the actor
// call returns so the settler can call into bet actors freely.
type settlementJob struct {
	winner string
	betIDs []string
}

// EventUpdate carries the mutable fields of a scheduled event. Nil fields are
// left unchanged.
type EventUpdate struct {
	Name         *string           `json:"name,omitempty"`
	Competition  *string           `json:"competition,omitempty"`
	StartTime    *time.Time        `json:"start_time,omitempty"`
	Participants map[string]string `json:"participants,omitempty"`
}

// Service is the sport event actor service, one logical actor per event
// addressed by key "sportevent:<eventId>".
type Service struct {
	sys     *actor.System
	states  store.StateStore
	bus     eventbus.Publisher
	clock   clock.Clock
	logger  *slog.Logger
	settler BetSettler

	mu     sync.Mutex
	active map[string]*eventState
}

// NewService creates the sport event service. Call SetSettler before
// completing events or setting market results.
func NewService(sys *actor.System, states store.StateStore, bus eventbus.Publisher, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		sys:    sys,
		states: states,
		bus:    bus,
		clock:  clk,
		logger: logger.With("actor", "sportevent"),
		active: make(map[string]*eventState),
	}
}

// SetSettler injects the bet settler.
func (s *Service) SetSettler(settler BetSettler) { s.settler = settler }

func eventKey(eventID string) string { return "sportevent:" + eventID }

type eventOutcome[T any] struct {
	val  T
	jobs []settlementJob
	err  error
}

func run[T any](ctx context.Context, s *Service, eventID string, fn func(st *eventState) (T, []settlementJob, error)) (T, error) {
	out, err := actor.Call(ctx, s.sys, eventKey(eventID), func() eventOutcome[T] {
		st, err := s.stateFor(ctx, eventID)
		if err != nil {
			var zero T
			return eventOutcome[T]{val: zero, err: err}
		}
		v, jobs, err := fn(st)
		return eventOutcome[T]{val: v, jobs: jobs, err: err}
	})
	if err != nil {
		var zero T
		return zero, err
	}
	// Settlements run outside the mailbox: the settler calls into bet actors,
	// and bet actors call RegisterBet on this mailbox during placement.
	// Dispatching inside the mailbox could make the two wait on each other.
	for _, job := range out.jobs {
		s.dispatch(ctx, eventID, job)
	}
	return out.val, out.err
}

func (s *Service) dispatch(ctx context.Context, eventID string, job settlementJob) {
	for _, betID := range job.betIDs {
		if err := s.settler.ApplySettlement(ctx, betID, job.winner); err != nil {
			s.logger.Error("bet settlement failed",
				"event_id", eventID, "bet_id", betID, "winner", job.winner, "error", err)
		}
	}
}

func (s *Service) stateFor(ctx context.Context, eventID string) (*eventState, error) {
	s.mu.Lock()
	st, ok := s.active[eventID]
	s.mu.Unlock()
	if ok {
		return st, nil
	}

	raw, err := s.states.Load(ctx, eventKey(eventID))
	if err != nil {
		return nil, domain.ErrPersistenceError("load sport event state", err)
	}
	if raw == nil {
		return nil, nil
	}
	st = &eventState{}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, domain.ErrPersistenceError("decode sport event state", err)
	}

	s.mu.Lock()
	s.active[eventID] = st
	s.mu.Unlock()
	return st, nil
}

func (s *Service) commit(ctx context.Context, eventID string, st *eventState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return domain.ErrPersistenceError("encode sport event state", err)
	}
	if err := s.states.Save(ctx, eventKey(eventID), raw); err != nil {
		return domain.ErrPersistenceError("save sport event state", err)
	}
	s.mu.Lock()
	s.active[eventID] = st
	s.mu.Unlock()
	return nil
}

func (s *Service) publish(ctx context.Context, eventID string, t domain.EventType, version int, payload any) {
	rec, err := domain.NewEventRecord(eventKey(eventID), t, version, payload, s.clock.Now())
	if err != nil {
		s.logger.Error("encode sport event record failed", "event_id", eventID, "type", t, "error", err)
		return
	}
	eventbus.Fire(ctx, s.bus, s.logger, domain.NewBusEvent(rec, domain.AggregateSportEvent, eventID, ""))
}

// CreateEvent registers a new sport event in Scheduled status. The start time
// must be in the future.
func (s *Service) CreateEvent(ctx context.Context, ev domain.SportEvent) (*domain.SportEvent, error) {
	return run(ctx, s, ev.EventID, func(st *eventState) (*domain.SportEvent, []settlementJob, error) {
		if st != nil {
			return nil, nil, domain.ErrAlreadyExists("event", ev.EventID)
		}
		if ev.EventID == "" || ev.Name == "" || ev.SportType == "" {
			return nil, nil, domain.ErrInvalidRequest("event_id, name and sport_type are required")
		}
		now := s.clock.Now()
		if !ev.StartTime.After(now) {
			return nil, nil, domain.ErrInvalidRequest("start_time must be in the future")
		}

		created := ev.Clone()
		created.Status = domain.EventScheduled
		created.EndTime = nil
		created.CreatedAt = now
		created.LastModified = now

		next := &eventState{
			Event:      created,
			Markets:    make(map[string]*domain.Market),
			MarketBets: make(map[string][]string),
			Version:    1,
		}
		if err := s.commit(ctx, ev.EventID, next); err != nil {
			return nil, nil, err
		}
		s.publish(ctx, ev.EventID, domain.EventSportEventCreated, next.Version, created)
		return created.Clone(), nil, nil
	})
}

// UpdateEvent changes the mutable fields of an event that has not started.
func (s *Service) UpdateEvent(ctx context.Context, eventID string, upd EventUpdate) (*domain.SportEvent, error) {
	return run(ctx, s, eventID, func(st *eventState) (*domain.SportEvent, []settlementJob, error) {
		if st == nil {
			return nil, nil, domain.ErrNotFound("event", eventID)
		}
		if st.Event.Status != domain.EventScheduled {
			return nil, nil, domain.ErrInvalidTransition(string(st.Event.Status), string(domain.EventScheduled))
		}
		now := s.clock.Now()
		if upd.StartTime != nil && !upd.StartTime.After(now) {
			return nil, nil, domain.ErrInvalidRequest("start_time must be in the future")
		}

		next := st.clone()
		if upd.Name != nil {
			next.Event.Name = *upd.Name
		}
		if upd.Competition != nil {
			next.Event.Competition = *upd.Competition
		}
		if upd.StartTime != nil {
			next.Event.StartTime = *upd.StartTime
		}
		if upd.Participants != nil {
			next.Event.Participants = upd.Participants
		}
		next.Event.LastModified = now
		next.Version++

		if err := s.commit(ctx, eventID, next); err != nil {
			return nil, nil, err
		}
		return next.Event.Clone(), nil, nil
	})
}

// transition moves the event through the allowed status table. busType may
// be empty for transitions with no bus notification.
func (s *Service) transition(ctx context.Context, st *eventState, eventID string, to domain.EventStatus, busType domain.EventType) (*eventState, error) {
	if !domain.CanTransitionEvent(st.Event.Status, to) {
		return nil, domain.ErrInvalidTransition(string(st.Event.Status), string(to))
	}
	next := st.clone()
	next.Event.Status = to
	next.Event.LastModified = s.clock.Now()
	next.Version++
	if err := s.commit(ctx, eventID, next); err != nil {
		return nil, err
	}
	if busType != "" {
		s.publish(ctx, eventID, busType, next.Version, next.Event)
	}
	return next, nil
}

// StartEvent moves a scheduled event to Live.
func (s *Service) StartEvent(ctx context.Context, eventID string) (*domain.SportEvent, error) {
	return run(ctx, s, eventID, func(st *eventState) (*domain.SportEvent, []settlementJob, error) {
		if st == nil {
			return nil, nil, domain.ErrNotFound("event", eventID)
		}
		next, err := s.transition(ctx, st, eventID, domain.EventLive, domain.EventSportEventStarted)
		if err != nil {
			return nil, nil, err
		}
		return next.Event.Clone(), nil, nil
	})
}

// SuspendEvent pauses a scheduled or live event.
func (s *Service) SuspendEvent(ctx context.Context, eventID string) (*domain.SportEvent, error) {
	return run(ctx, s, eventID, func(st *eventState) (*domain.SportEvent, []settlementJob, error) {
		if st == nil {
			return nil, nil, domain.ErrNotFound("event", eventID)
		}
		next, err := s.transition(ctx, st, eventID, domain.EventSuspended, "")
		if err != nil {
			return nil, nil, err
		}
		return next.Event.Clone(), nil, nil
	})
}

// CompleteEvent finishes a live event. Open markets are suspended before the
// event transition persists; markets named in results are then closed,
// settled, and their registered bets dispatched to the settler.
func (s *Service) CompleteEvent(ctx context.Context, eventID string, results map[string]string) (*domain.SportEvent, error) {
	return run(ctx, s, eventID, func(st *eventState) (*domain.SportEvent, []settlementJob, error) {
		if st == nil {
			return nil, nil, domain.ErrNotFound("event", eventID)
		}
		if !domain.CanTransitionEvent(st.Event.Status, domain.EventCompleted) {
			return nil, nil, domain.ErrInvalidTransition(string(st.Event.Status), string(domain.EventCompleted))
		}
		for marketID, winner := range results {
			m, ok := st.Markets[marketID]
			if !ok {
				return nil, nil, domain.ErrNotFound("market", marketID)
			}
			if _, ok := m.Outcomes[winner]; !ok {
				return nil, nil, domain.ErrUnknownSelection(winner)
			}
		}

		now := s.clock.Now()
		next := st.clone()
		for _, m := range next.Markets {
			if m.Status == domain.MarketOpen {
				m.Status = domain.MarketSuspended
				m.LastModified = now
			}
		}
		next.Event.Status = domain.EventCompleted
		next.Event.EndTime = &now
		next.Event.LastModified = now

		var jobs []settlementJob
		for marketID, winner := range results {
			m := next.Markets[marketID]
			m.Status = domain.MarketSettled
			m.WinningOutcome = winner
			m.LastModified = now
			jobs = append(jobs, settlementJob{winner: winner, betIDs: next.MarketBets[marketID]})
		}
		next.Version++

		if err := s.commit(ctx, eventID, next); err != nil {
			return nil, nil, err
		}
		s.publish(ctx, eventID, domain.EventSportEventCompleted, next.Version, next.Event)
		for marketID := range results {
			s.publish(ctx, eventID, domain.EventMarketSettled, next.Version, next.Markets[marketID])
		}
		return next.Event.Clone(), jobs, nil
	})
}

// CancelEvent cancels a scheduled or suspended event. Its markets close.
func (s *Service) CancelEvent(ctx context.Context, eventID string) (*domain.SportEvent, error) {
	return run(ctx, s, eventID, func(st *eventState) (*domain.SportEvent, []settlementJob, error) {
		if st == nil {
			return nil, nil, domain.ErrNotFound("event", eventID)
		}
		if !domain.CanTransitionEvent(st.Event.Status, domain.EventCancelled) {
			return nil, nil, domain.ErrInvalidTransition(string(st.Event.Status), string(domain.EventCancelled))
		}

		now := s.clock.Now()
		next := st.clone()
		for _, m := range next.Markets {
			if m.Status == domain.MarketOpen || m.Status == domain.MarketSuspended {
				m.Status = domain.MarketClosed
				m.LastModified = now
			}
		}
		next.Event.Status = domain.EventCancelled
		next.Event.LastModified = now
		next.Version++

		if err := s.commit(ctx, eventID, next); err != nil {
			return nil, nil, err
		}
		s.publish(ctx, eventID, domain.EventSportEventCancelled, next.Version, next.Event)
		return next.Event.Clone(), nil, nil
	})
}

// AddMarket attaches a betting market to an event that has not finished.
func (s *Service) AddMarket(ctx context.Context, eventID string, market domain.Market) (*domain.Market, error) {
	return run(ctx, s, eventID, func(st *eventState) (*domain.Market, []settlementJob, error) {
		if st == nil {
			return nil, nil, domain.ErrNotFound("event", eventID)
		}
		if st.Event.Status == domain.EventCompleted || st.Event.Status == domain.EventCancelled {
			return nil, nil, domain.ErrInvalidTransition(string(st.Event.Status), string(domain.EventLive))
		}
		if market.MarketID == "" || market.Name == "" {
			return nil, nil, domain.ErrInvalidRequest("market_id and name are required")
		}
		if _, ok := st.Markets[market.MarketID]; ok {
			return nil, nil, domain.ErrAlreadyExists("market", market.MarketID)
		}
		if len(market.Outcomes) == 0 {
			return nil, nil, domain.ErrInvalidRequest("market needs at least one outcome")
		}
		for _, odds := range market.Outcomes {
			if err := domain.ValidateOdds(odds); err != nil {
				return nil, nil, err
			}
		}

		now := s.clock.Now()
		added := market.Clone()
		added.EventID = eventID
		added.Status = domain.MarketOpen
		added.WinningOutcome = ""
		added.CreatedAt = now
		added.LastModified = now

		next := st.clone()
		next.Markets[added.MarketID] = added
		next.Version++

		if err := s.commit(ctx, eventID, next); err != nil {
			return nil, nil, err
		}
		return added.Clone(), nil, nil
	})
}

// UpdateMarketStatus moves a market through its status table.
func (s *Service) UpdateMarketStatus(ctx context.Context, eventID, marketID string, to domain.MarketStatus) (*domain.Market, error) {
	return run(ctx, s, eventID, func(st *eventState) (*domain.Market, []settlementJob, error) {
		if st == nil {
			return nil, nil, domain.ErrNotFound("event", eventID)
		}
		m, ok := st.Markets[marketID]
		if !ok {
			return nil, nil, domain.ErrNotFound("market", marketID)
		}
		if !domain.CanTransitionMarket(m.Status, to) {
			return nil, nil, domain.ErrInvalidTransition(string(m.Status), string(to))
		}

		next := st.clone()
		updated := next.Markets[marketID]
		updated.Status = to
		updated.LastModified = s.clock.Now()
		next.Version++

		if err := s.commit(ctx, eventID, next); err != nil {
			return nil, nil, err
		}
		return updated.Clone(), nil, nil
	})
}

// SetMarketResult settles a closed market and dispatches its registered bets
// to the settler. The winner must be one of the market's outcomes.
func (s *Service) SetMarketResult(ctx context.Context, eventID, marketID, winner string) (*domain.Market, error) {
	return run(ctx, s, eventID, func(st *eventState) (*domain.Market, []settlementJob, error) {
		if st == nil {
			return nil, nil, domain.ErrNotFound("event", eventID)
		}
		m, ok := st.Markets[marketID]
		if !ok {
			return nil, nil, domain.ErrNotFound("market", marketID)
		}
		if m.Status != domain.MarketClosed {
			return nil, nil, domain.ErrInvalidTransition(string(m.Status), string(domain.MarketSettled))
		}
		if _, ok := m.Outcomes[winner]; !ok {
			return nil, nil, domain.ErrUnknownSelection(winner)
		}

		next := st.clone()
		settled := next.Markets[marketID]
		settled.Status = domain.MarketSettled
		settled.WinningOutcome = winner
		settled.LastModified = s.clock.Now()
		next.Version++

		if err := s.commit(ctx, eventID, next); err != nil {
			return nil, nil, err
		}
		s.publish(ctx, eventID, domain.EventMarketSettled, next.Version, settled)
		job := settlementJob{winner: winner, betIDs: next.MarketBets[marketID]}
		return settled.Clone(), []settlementJob{job}, nil
	})
}

// RegisterBet records an accepted bet against its market for settlement
// fan-out. Registering the same bet twice is a no-op.
func (s *Service) RegisterBet(ctx context.Context, eventID, marketID, betID string) error {
	_, err := run(ctx, s, eventID, func(st *eventState) (struct{}, []settlementJob, error) {
		if st == nil {
			return struct{}{}, nil, domain.ErrNotFound("event", eventID)
		}
		if _, ok := st.Markets[marketID]; !ok {
			return struct{}{}, nil, domain.ErrNotFound("market", marketID)
		}
		for _, id := range st.MarketBets[marketID] {
			if id == betID {
				return struct{}{}, nil, nil
			}
		}

		next := st.clone()
		next.MarketBets[marketID] = append(next.MarketBets[marketID], betID)
		next.Version++
		return struct{}{}, nil, s.commit(ctx, eventID, next)
	})
	return err
}

// GetEvent returns the event.
func (s *Service) GetEvent(ctx context.Context, eventID string) (*domain.SportEvent, error) {
	return run(ctx, s, eventID, func(st *eventState) (*domain.SportEvent, []settlementJob, error) {
		if st == nil {
			return nil, nil, domain.ErrNotFound("event", eventID)
		}
		return st.Event.Clone(), nil, nil
	})
}

// GetMarket returns one market of the event.
func (s *Service) GetMarket(ctx context.Context, eventID, marketID string) (*domain.Market, error) {
	return run(ctx, s, eventID, func(st *eventState) (*domain.Market, []settlementJob, error) {
		if st == nil {
			return nil, nil, domain.ErrNotFound("event", eventID)
		}
		m, ok := st.Markets[marketID]
		if !ok {
			return nil, nil, domain.ErrNotFound("market", marketID)
		}
		return m.Clone(), nil, nil
	})
}

// ListMarkets returns the event's markets sorted by market id.
func (s *Service) ListMarkets(ctx context.Context, eventID string) ([]*domain.Market, error) {
	return run(ctx, s, eventID, func(st *eventState) ([]*domain.Market, []settlementJob, error) {
		if st == nil {
			return nil, nil, domain.ErrNotFound("event", eventID)
		}
		out := make([]*domain.Market, 0, len(st.Markets))
		for _, m := range st.Markets {
			out = append(out, m.Clone())
		}
		sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
		return out, nil, nil
	})
}

// RegisteredBets returns the bet ids registered against a market.
func (s *Service) RegisteredBets(ctx context.Context, eventID, marketID string) ([]string, error) {
	return run(ctx, s, eventID, func(st *eventState) ([]string, []settlementJob, error) {
		if st == nil {
			return nil, nil, domain.ErrNotFound("event", eventID)
		}
		return append([]string(nil), st.MarketBets[marketID]...), nil, nil
	})
}
