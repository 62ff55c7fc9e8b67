// Package store holds the persistence abstractions the actors write through:
// an append-only EventStore for bet event streams and a StateStore for the
// latest per-actor snapshot. In-memory implementations back tests and dev
// mode; Postgres implementations back production.
package store

import (
	"context"
	"sync"

	"github.com/oddsmith/sportsbook/internal/domain"
)

// EventStore persists append-only event streams keyed by "bet:<betId>".
// Append writes all events as one atomic operation; streams never delete.
type EventStore interface {
	Append(ctx context.Context, streamKey string, events []domain.EventRecord) error
	Read(ctx context.Context, streamKey string) ([]domain.EventRecord, error)
}

// StateStore persists the latest serialized actor state under "{entity}:{id}".
// Load returns (nil, nil) when no snapshot exists.
type StateStore interface {
	Save(ctx context.Context, key string, state []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

// MemoryEventStore is an in-memory EventStore for tests and dev mode.
type MemoryEventStore struct {
	mu      sync.RWMutex
	streams map[string][]domain.EventRecord
}

// NewMemoryEventStore creates an empty in-memory event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{streams: make(map[string][]domain.EventRecord)}
}

func (s *MemoryEventStore) Append(_ context.Context, streamKey string, events []domain.EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[streamKey] = append(s.streams[streamKey], events...)
	return nil
}

func (s *MemoryEventStore) Read(_ context.Context, streamKey string) ([]domain.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.EventRecord(nil), s.streams[streamKey]...), nil
}

// MemoryStateStore is an in-memory StateStore for tests and dev mode.
type MemoryStateStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStateStore creates an empty in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{data: make(map[string][]byte)}
}

func (s *MemoryStateStore) Save(_ context.Context, key string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), state...)
	return nil
}

func (s *MemoryStateStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}
