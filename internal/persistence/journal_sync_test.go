package persistence

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kscape/xbee-go/internal/bus"
	"github.com/kscape/xbee-go/internal/connectors"
	"github.com/kscape/xbee-go/internal/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartJournalSyncRecordsPacketEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	repo := openTestDB(t)
	require.NoError(t, repo.StartSession(ctx, Session{ID: "run", Transport: "serial", StartedAt: time.Now()}))

	b := bus.New(nil, 16)
	defer b.Close()
	defer cancel()
	writer := NewWriterQueue(nil, 8)
	writer.Start(ctx)
	StartJournalSync(ctx, b, writer, repo, JournalOptions{SessionID: "run", Retain: 100})

	at, err := packet.NewATCommandPacket(1, "VR", nil)
	require.NoError(t, err)
	rx, err := packet.NewRX64Packet(&packet.AddressBroadcast, 10, packet.OptionAddressBroadcast, []byte("hi"))
	require.NoError(t, err)

	b.Publish(connectors.TopicPacketOut, connectors.PacketEvent{Direction: connectors.DirectionOut, Packet: at, Fields: at.Fields(nil), At: time.Now()})
	b.Publish(connectors.TopicPacketIn, connectors.PacketEvent{Direction: connectors.DirectionIn, Packet: rx, Fields: rx.Fields(nil), At: time.Now()})
	b.Publish(connectors.TopicPacketIn, "not an event")

	require.Eventually(t, func() bool {
		n, err := repo.CountBySession(ctx, "run")
		return err == nil && n == 2
	}, 2*time.Second, 10*time.Millisecond)

	records, err := repo.ListRecent(ctx, "run", 10)
	require.NoError(t, err)
	types := []packet.FrameType{records[0].FrameType, records[1].FrameType}
	assert.ElementsMatch(t, []packet.FrameType{packet.FrameTypeATCommand, packet.FrameTypeRX64}, types)
}

func TestWriterQueueRetriesFailedWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writer := NewWriterQueue(nil, 1)
	writer.Start(ctx)

	var calls atomic.Int32
	done := make(chan struct{})
	writer.Enqueue("flaky", func(context.Context) error {
		if calls.Add(1) < 2 {
			return errors.New("database is locked")
		}
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("write was not retried")
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestWriterQueueFlushWaitsForEarlierWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writer := NewWriterQueue(nil, 4)
	var order []string
	writer.Enqueue("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	writer.Enqueue("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})
	writer.Start(ctx)

	flushCtx, flushCancel := context.WithTimeout(ctx, 2*time.Second)
	defer flushCancel()
	require.NoError(t, writer.Flush(flushCtx))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestWriterQueueFlushHonoursContext(t *testing.T) {
	writer := NewWriterQueue(nil, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, writer.Flush(ctx), context.Canceled)
}

func TestJournalCloseRunsWritesQueuedBeforeCancel(t *testing.T) {
	repo := openTestDB(t)
	require.NoError(t, repo.StartSession(context.Background(), Session{ID: "run", Transport: "serial", StartedAt: time.Now()}))

	b := bus.New(nil, 16)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	j := StartJournal(ctx, b, repo, JournalOptions{SessionID: "run"})

	gate := make(chan struct{})
	j.writer.Enqueue("gate", func(context.Context) error {
		<-gate
		return nil
	})

	for i := 0; i < 5; i++ {
		rx, err := packet.NewRX64Packet(&packet.AddressBroadcast, 40, 0, []byte{byte(i)})
		require.NoError(t, err)
		b.Publish(connectors.TopicPacketIn, connectors.PacketEvent{Direction: connectors.DirectionIn, Packet: rx, At: time.Now()})
	}
	require.Eventually(t, func() bool { return len(j.writer.queue) == 5 }, 2*time.Second, 5*time.Millisecond)

	// Interrupt arrives while the writes are still queued.
	cancel()
	close(gate)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer closeCancel()
	require.NoError(t, j.Close(closeCtx))

	n, err := repo.CountBySession(context.Background(), "run")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestWriterQueueCloseStopsWriter(t *testing.T) {
	writer := NewWriterQueue(nil, 4)
	writer.Start(context.Background())

	var ran atomic.Int32
	writer.Enqueue("one", func(context.Context) error {
		ran.Add(1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, writer.Close(ctx))
	require.NoError(t, writer.Close(ctx), "close must be idempotent once stopped")
	assert.Equal(t, int32(1), ran.Load())

	select {
	case <-writer.stopped:
	default:
		t.Fatal("writer goroutine still running after close")
	}
}
