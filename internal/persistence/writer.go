package persistence

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type writeCmd struct {
	name string
	fn   func(context.Context) error
}

// WriterQueue serializes background writes so session callbacks never wait
// on the database. Close drains what was already queued.
type WriterQueue struct {
	logger *slog.Logger
	queue  chan writeCmd

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewWriterQueue(logger *slog.Logger, capacity int) *WriterQueue {
	if capacity <= 0 {
		capacity = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WriterQueue{
		logger: logger,
		queue:  make(chan writeCmd, capacity),
		done:   make(chan struct{}),
	}
}

// Enqueue blocks while the queue is full. Writes enqueued after Close are
// dropped with a warning.
func (w *WriterQueue) Enqueue(name string, fn func(context.Context) error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.logger.Warn("db write dropped after close", "cmd", name)
		return
	}
	w.queue <- writeCmd{name: name, fn: fn}
}

func (w *WriterQueue) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		for cmd := range w.queue {
			w.runWithRetry(ctx, cmd)
		}
	}()
}

// Close stops accepting writes and waits until the queued ones ran. Start
// must have been called.
func (w *WriterQueue) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *WriterQueue) runWithRetry(ctx context.Context, cmd writeCmd) {
	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := cmd.fn(ctx); err != nil {
			w.logger.Error("db write failed", "cmd", cmd.name, "attempt", attempt, "error", err)
			if attempt == maxAttempts {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		return
	}
}
