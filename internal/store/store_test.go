package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsmith/sportsbook/internal/domain"
)

func record(t *testing.T, version int) domain.EventRecord {
	t.Helper()
	rec, err := domain.NewEventRecord("bet:b1", domain.EventBetPlaced, version,
		map[string]string{"user_id": "u1"},
		time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return rec
}

func TestMemoryEventStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryEventStore()

	t.Run("empty stream reads empty", func(t *testing.T) {
		stream, err := s.Read(ctx, "bet:missing")
		require.NoError(t, err)
		assert.Empty(t, stream)
	})

	t.Run("append preserves order", func(t *testing.T) {
		require.NoError(t, s.Append(ctx, "bet:b1", []domain.EventRecord{record(t, 1), record(t, 2)}))
		require.NoError(t, s.Append(ctx, "bet:b1", []domain.EventRecord{record(t, 3)}))

		stream, err := s.Read(ctx, "bet:b1")
		require.NoError(t, err)
		require.Len(t, stream, 3)
		for i, rec := range stream {
			assert.Equal(t, i+1, rec.Version)
		}
	})

	t.Run("read returns a copy", func(t *testing.T) {
		stream, err := s.Read(ctx, "bet:b1")
		require.NoError(t, err)
		stream[0].Version = 99

		again, err := s.Read(ctx, "bet:b1")
		require.NoError(t, err)
		assert.Equal(t, 1, again[0].Version)
	})

	t.Run("streams are isolated", func(t *testing.T) {
		stream, err := s.Read(ctx, "bet:b2")
		require.NoError(t, err)
		assert.Empty(t, stream)
	})
}

func TestMemoryStateStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStateStore()

	t.Run("missing key loads nil", func(t *testing.T) {
		state, err := s.Load(ctx, "wallet:missing")
		require.NoError(t, err)
		assert.Nil(t, state)
	})

	t.Run("save then load round-trips", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, "wallet:u1", []byte(`{"total":"100"}`)))
		state, err := s.Load(ctx, "wallet:u1")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"total":"100"}`), state)
	})

	t.Run("save overwrites", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, "wallet:u1", []byte(`{"total":"200"}`)))
		state, err := s.Load(ctx, "wallet:u1")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"total":"200"}`), state)
	})

	t.Run("load returns a copy", func(t *testing.T) {
		state, err := s.Load(ctx, "wallet:u1")
		require.NoError(t, err)
		state[0] = 'X'

		again, err := s.Load(ctx, "wallet:u1")
		require.NoError(t, err)
		assert.Equal(t, byte('{'), again[0])
	})
}
