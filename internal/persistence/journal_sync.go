package persistence

import (
	"context"
	"log/slog"

	"github.com/kscape/xbee-go/internal/bus"
	"github.com/kscape/xbee-go/internal/connectors"
)

const (
	pruneEvery       = 200
	journalQueueSize = 256
)

// JournalOptions configure StartJournalSync.
type JournalOptions struct {
	SessionID string
	// Retain is passed to FrameRepo.Prune every pruneEvery inserts.
	Retain int
	Logger *slog.Logger
}

// StartJournalSync subscribes to packet events on the bus and journals them
// through the writer queue until ctx is done. The returned channel is closed
// once the sync has stopped enqueueing.
func StartJournalSync(ctx context.Context, b bus.MessageBus, writer *WriterQueue, repo *FrameRepo, opts JournalOptions) <-chan struct{} {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sub := b.Subscribe(connectors.TopicPacketIn, connectors.TopicPacketOut)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer b.Unsubscribe(sub)

		inserted := 0
		for {
			var raw any
			select {
			case <-ctx.Done():
				return
			case msg, open := <-sub:
				if !open {
					return
				}
				raw = msg
			}
			ev, ok := raw.(connectors.PacketEvent)
			if !ok {
				continue
			}

			rec := RecordFromEvent(opts.SessionID, ev)
			writer.Enqueue("journal_frame", func(ctx context.Context) error {
				_, err := repo.Insert(ctx, rec)
				return err
			})

			inserted++
			if opts.Retain > 0 && inserted%pruneEvery == 0 {
				writer.Enqueue("journal_prune", func(ctx context.Context) error {
					n, err := repo.Prune(ctx, opts.Retain)
					if err == nil && n > 0 {
						logger.Debug("journal pruned", "deleted", n, "retain", opts.Retain)
					}
					return err
				})
			}
		}
	}()

	return done
}

// Journal records one session's packet traffic through a dedicated writer.
type Journal struct {
	writer   *WriterQueue
	stopSync context.CancelFunc
	synced   <-chan struct{}
}

// StartJournal starts journaling bus traffic. Cancelling ctx stops taking new
// events but leaves already queued writes to Close.
func StartJournal(ctx context.Context, b bus.MessageBus, repo *FrameRepo, opts JournalOptions) *Journal {
	writer := NewWriterQueue(opts.Logger, journalQueueSize)
	writer.Start(context.WithoutCancel(ctx))

	syncCtx, stopSync := context.WithCancel(ctx)

	return &Journal{
		writer:   writer,
		stopSync: stopSync,
		synced:   StartJournalSync(syncCtx, b, writer, repo, opts),
	}
}

// Close stops the bus sync and waits until every queued write has run.
func (j *Journal) Close(ctx context.Context) error {
	j.stopSync()
	select {
	case <-j.synced:
	case <-ctx.Done():
		return ctx.Err()
	}

	return j.writer.Close(ctx)
}
