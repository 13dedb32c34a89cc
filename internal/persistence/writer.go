package persistence

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	writeAttempts   = 3
	writeRetryDelay = 300 * time.Millisecond
)

var errWriterStopped = errors.New("journal writer stopped")

type writeCmd struct {
	name string
	fn   func(context.Context) error
}

// WriterQueue serializes journal writes on a single goroutine so SQLite only
// ever sees one writer.
type WriterQueue struct {
	logger *slog.Logger
	queue  chan writeCmd

	stopOnce sync.Once
	stop     chan struct{}
	stopped  chan struct{}
}

func NewWriterQueue(logger *slog.Logger, capacity int) *WriterQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = 256
	}

	return &WriterQueue{
		logger:  logger.With("component", "journal_writer"),
		queue:   make(chan writeCmd, capacity),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Enqueue never blocks the caller. When the queue is full the command is
// handed off to a goroutine that waits for space.
func (w *WriterQueue) Enqueue(name string, fn func(context.Context) error) {
	cmd := writeCmd{name: name, fn: fn}
	select {
	case w.queue <- cmd:
	default:
		w.logger.Warn("journal queue full, deferring write", "cmd", name)
		go func() { w.queue <- cmd }()
	}
}

// Flush waits until every command enqueued before the call has run.
func (w *WriterQueue) Flush(ctx context.Context) error {
	done := make(chan struct{})
	w.Enqueue("flush", func(context.Context) error {
		close(done)
		return nil
	})
	select {
	case <-done:
		return nil
	case <-w.stopped:
		select {
		case <-done:
			return nil
		default:
			return errWriterStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start runs queued commands until ctx is done or Close is called. Writes
// queued at that point are dropped, so callers that must persist them start
// the queue on a context that outlives shutdown and call Close.
func (w *WriterQueue) Start(ctx context.Context) {
	go func() {
		defer close(w.stopped)
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case cmd := <-w.queue:
				w.runWithRetry(ctx, cmd)
			}
		}
	}()
}

// Close flushes the queue and stops the writer goroutine. The writer is
// stopped even when the flush fails.
func (w *WriterQueue) Close(ctx context.Context) error {
	select {
	case <-w.stopped:
		return nil
	default:
	}
	flushErr := w.Flush(ctx)
	w.stopOnce.Do(func() { close(w.stop) })
	select {
	case <-w.stopped:
	case <-ctx.Done():
		if flushErr == nil {
			flushErr = ctx.Err()
		}
	}

	return flushErr
}

func (w *WriterQueue) runWithRetry(ctx context.Context, cmd writeCmd) {
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		err := cmd.fn(ctx)
		if err == nil {
			return
		}
		w.logger.Error("journal write failed", "cmd", cmd.name, "attempt", attempt, "error", err)
		if attempt == writeAttempts {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * writeRetryDelay):
		}
	}
}
