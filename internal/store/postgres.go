package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddsmith/sportsbook/internal/domain"
)

// PostgresEventStore persists bet event streams in the bet_events table.
// (stream_key, version) is the primary key, so a duplicate append of the same
// version fails rather than corrupting the stream.
type PostgresEventStore struct {
	pool *pgxpool.Pool
}

// NewPostgresEventStore creates an event store on the given pool.
func NewPostgresEventStore(pool *pgxpool.Pool) *PostgresEventStore {
	return &PostgresEventStore{pool: pool}
}

func (s *PostgresEventStore) Append(ctx context.Context, streamKey string, events []domain.EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		for _, e := range events {
			_, err := tx.Exec(ctx, `
				INSERT INTO bet_events (stream_key, version, event_id, event_type, payload, occurred_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				streamKey, e.Version, e.EventID, string(e.Type), e.Payload, e.OccurredAt)
			if err != nil {
				return fmt.Errorf("insert event v%d: %w", e.Version, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append %s: %w", streamKey, err)
	}
	return nil
}

func (s *PostgresEventStore) Read(ctx context.Context, streamKey string) ([]domain.EventRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, event_type, version, payload, occurred_at
		FROM bet_events WHERE stream_key = $1
		ORDER BY version ASC`, streamKey)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", streamKey, err)
	}
	defer rows.Close()

	var out []domain.EventRecord
	for rows.Next() {
		rec := domain.EventRecord{StreamKey: streamKey}
		var eventType string
		if err := rows.Scan(&rec.EventID, &eventType, &rec.Version, &rec.Payload, &rec.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Type = domain.EventType(eventType)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PostgresStateStore persists actor snapshots in the actor_snapshots table.
type PostgresStateStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStateStore creates a state store on the given pool.
func NewPostgresStateStore(pool *pgxpool.Pool) *PostgresStateStore {
	return &PostgresStateStore{pool: pool}
}

func (s *PostgresStateStore) Save(ctx context.Context, key string, state []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO actor_snapshots (key, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
		key, state)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStateStore) Load(ctx context.Context, key string) ([]byte, error) {
	var state []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM actor_snapshots WHERE key = $1`, key).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	return state, nil
}
