package eventbus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsmith/sportsbook/internal/domain"
)

type recordingPublisher struct {
	events []domain.BusEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.BusEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func busEvent(t *testing.T, typ domain.EventType) domain.BusEvent {
	t.Helper()
	rec, err := domain.NewEventRecord("bet:b1", typ, 1, map[string]string{"k": "v"},
		time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return domain.NewBusEvent(rec, domain.AggregateBet, "b1", "")
}

func TestTopicNaming(t *testing.T) {
	e := busEvent(t, domain.EventBetAccepted)
	assert.Equal(t, "sportsbook.events.bet.accepted", e.Topic())

	e = busEvent(t, domain.EventOddsSuspended)
	assert.Equal(t, "sportsbook.events.odds.suspended", e.Topic())
}

func TestCorrelationIDDefaultsToEventID(t *testing.T) {
	e := busEvent(t, domain.EventBetPlaced)
	assert.Equal(t, e.Record.EventID.String(), e.CorrelationID)

	rec := e.Record
	withCorrelation := domain.NewBusEvent(rec, domain.AggregateBet, "b1", "req-1")
	assert.Equal(t, "req-1", withCorrelation.CorrelationID)
}

func TestFire(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	t.Run("delivers all events", func(t *testing.T) {
		p := &recordingPublisher{}
		Fire(context.Background(), p, logger, busEvent(t, domain.EventBetPlaced), busEvent(t, domain.EventBetAccepted))
		assert.Len(t, p.events, 2)
	})

	t.Run("swallows publish failures", func(t *testing.T) {
		p := &recordingPublisher{err: errors.New("broker down")}
		// Must not panic or propagate; domain operations never fail on
		// bus trouble.
		Fire(context.Background(), p, logger, busEvent(t, domain.EventBetPlaced))
		assert.Empty(t, p.events)
	})
}
