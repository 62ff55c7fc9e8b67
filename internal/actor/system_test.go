package actor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsmith/sportsbook/internal/domain"
)

func newTestSystem(t *testing.T) *System {
	t.Helper()
	sys := NewSystem(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	t.Cleanup(sys.Shutdown)
	return sys
}

func TestCallReturnsResult(t *testing.T) {
	sys := newTestSystem(t)

	got, err := Call(context.Background(), sys, "wallet:u1", func() int { return 42 })
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestTasksOnOneKeyRunInOrder(t *testing.T) {
	sys := newTestSystem(t)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sys.Do(context.Background(), "bet:b1", func() {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
			})
		}()
		// Give each submission a moment to enqueue so FIFO order is
		// observable from the outside.
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	require.Len(t, order, 50)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestKeysRunIndependently(t *testing.T) {
	sys := newTestSystem(t)

	blocked := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = sys.Do(context.Background(), "wallet:u1", func() {
			close(blocked)
			<-release
		})
	}()
	<-blocked

	// A different key is not held up by the blocked mailbox.
	done := make(chan struct{})
	go func() {
		_ = sys.Do(context.Background(), "wallet:u2", func() {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("independent key was blocked")
	}
	close(release)
}

func TestDoHonoursCancelledContext(t *testing.T) {
	sys := newTestSystem(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := sys.Do(ctx, "wallet:u1", func() { ran = true })
	assert.Equal(t, "OperationCancelled", domain.CodeOf(err))
	assert.False(t, ran)
}

func TestShutdownDrainsQueuedTasks(t *testing.T) {
	sys := NewSystem(slog.New(slog.NewJSONHandler(io.Discard, nil)))

	var mu sync.Mutex
	ran := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sys.Do(context.Background(), "odds:m1", func() {
				mu.Lock()
				ran++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	sys.Shutdown()

	assert.Equal(t, 10, ran)

	// New calls after shutdown are refused.
	err := sys.Do(context.Background(), "odds:m2", func() {})
	assert.Equal(t, "OperationCancelled", domain.CodeOf(err))
}
