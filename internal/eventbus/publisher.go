// Package eventbus publishes domain events as fire-and-forget notifications.
// Publication failures never fail a domain operation: services go through
// Fire, which logs and swallows errors.
package eventbus

import (
	"context"
	"log/slog"

	"github.com/oddsmith/sportsbook/internal/domain"
)

// Publisher sends one domain event to the bus.
type Publisher interface {
	Publish(ctx context.Context, event domain.BusEvent) error
}

// Fire publishes events, logging and swallowing any failure.
func Fire(ctx context.Context, p Publisher, logger *slog.Logger, events ...domain.BusEvent) {
	for _, e := range events {
		if err := p.Publish(ctx, e); err != nil {
			logger.Error("event publish failed",
				"topic", e.Topic(),
				"event_id", e.Record.EventID,
				"error", err,
			)
		}
	}
}

// NopPublisher drops all events. Used when the bus is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.BusEvent) error { return nil }
