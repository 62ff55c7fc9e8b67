package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/oddsmith/sportsbook/internal/domain"
)

// KafkaPublisher publishes bus events through a kafka-go writer. Messages are
// keyed by aggregate id so one aggregate's events stay in partition order.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaPublisher creates a Kafka publisher for the given broker list.
func NewKafkaPublisher(brokers string, logger *slog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	logger.Info("kafka publisher initialized", "brokers", brokers)
	return &KafkaPublisher{writer: w, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event domain.BusEvent) error {
	value, err := json.Marshal(map[string]any{
		"event_id":       event.Record.EventID,
		"aggregate_type": event.Aggregate,
		"aggregate_id":   event.AggregateID,
		"event_type":     event.Record.Type,
		"version":        event.Record.Version,
		"payload":        event.Record.Payload,
		"occurred_at":    event.Record.OccurredAt,
		"correlationId":  event.CorrelationID,
	})
	if err != nil {
		return fmt.Errorf("marshal bus event: %w", err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: event.Topic(),
		Key:   []byte(event.AggregateID),
		Value: value,
	})
}

// Close shuts down the Kafka writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
