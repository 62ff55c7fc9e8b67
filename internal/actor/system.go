// Package actor provides the per-key mailbox runtime. Every logical actor
// (wallet, odds, bet, bet-index, sport-event) is addressed by a stable key
// such as "wallet:u1"; all calls for one key run on a single goroutine in
// FIFO order, so actor state needs no locking of its own.
package actor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/oddsmith/sportsbook/internal/domain"
)

type task struct {
	fn   func()
	done chan struct{}
}

type mailbox struct {
	tasks chan task
}

// System owns the mailboxes. Mailboxes are created lazily on first use and
// live for the lifetime of the system.
type System struct {
	logger    *slog.Logger
	queueSize int

	mu        sync.Mutex
	mailboxes map[string]*mailbox
	closed    bool

	inflight sync.WaitGroup
}

// NewSystem creates an actor system.
func NewSystem(logger *slog.Logger) *System {
	return &System{
		logger:    logger,
		queueSize: 64,
		mailboxes: make(map[string]*mailbox),
	}
}

// Do runs fn on the mailbox for key and waits for it to finish. A context
// that is already done, or expires while the task is queued, returns
// OperationCancelled without running fn. Once fn starts it runs to
// completion; operations honor their context at suspension points themselves.
func (s *System) Do(ctx context.Context, key string, fn func()) error {
	if err := ctx.Err(); err != nil {
		return domain.ErrOperationCancelled(err)
	}

	mb, err := s.mailboxFor(key)
	if err != nil {
		return err
	}

	s.inflight.Add(1)
	t := task{fn: fn, done: make(chan struct{})}
	select {
	case mb.tasks <- t:
	case <-ctx.Done():
		s.inflight.Done()
		return domain.ErrOperationCancelled(ctx.Err())
	}

	<-t.done
	return nil
}

// Call runs fn on the mailbox for key and returns its result.
func Call[T any](ctx context.Context, s *System, key string, fn func() T) (T, error) {
	var out T
	err := s.Do(ctx, key, func() { out = fn() })
	return out, err
}

func (s *System) mailboxFor(key string) (*mailbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, domain.ErrOperationCancelled(context.Canceled)
	}
	mb, ok := s.mailboxes[key]
	if !ok {
		mb = &mailbox{tasks: make(chan task, s.queueSize)}
		s.mailboxes[key] = mb
		go s.run(key, mb)
	}
	return mb, nil
}

func (s *System) run(key string, mb *mailbox) {
	s.logger.Debug("mailbox started", "key", key)
	for t := range mb.tasks {
		t.fn()
		close(t.done)
		s.inflight.Done()
	}
}

// Shutdown stops accepting new calls and waits for queued tasks to drain.
// Mailbox goroutines park on their empty channels afterwards; the system is
// shut down once per process.
func (s *System) Shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.inflight.Wait()
}
