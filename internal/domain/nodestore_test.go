package domain

import (
	"context"
	"testing"
	"time"

	"github.com/kscape/xbee-go/internal/bus"
	"github.com/kscape/xbee-go/internal/connectors"
	"github.com/kscape/xbee-go/internal/packet"
)

func mustRX(t *testing.T, addr string, rssi, opts int, data []byte) *packet.RX64Packet {
	t.Helper()
	a, err := packet.ParseAddress64(addr)
	if err != nil {
		t.Fatalf("parse address: %v", err)
	}
	rx, err := packet.NewRX64Packet(&a, rssi, opts, data)
	if err != nil {
		t.Fatalf("new rx64: %v", err)
	}
	return rx
}

func TestNodeStoreRecord_AccumulatesPerSource(t *testing.T) {
	store := NewNodeStore()
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	store.Record(mustRX(t, "0013A20040522BAA", 40, 0, []byte("abc")), t0)
	store.Record(mustRX(t, "0013A20040522BAA", 90, packet.OptionAddressBroadcast, []byte("de")), t0.Add(time.Second))
	store.Record(mustRX(t, "0013A20040522BBB", 75, 0, nil), t0.Add(500*time.Millisecond))

	addr, _ := packet.ParseAddress64("0013A20040522BAA")
	node, ok := store.Get(addr)
	if !ok {
		t.Fatalf("expected node in store")
	}
	if node.Frames != 2 || node.Bytes != 5 || node.Broadcasts != 1 {
		t.Fatalf("unexpected counters: %+v", node)
	}
	if node.LastRSSI != 90 || node.Quality != SignalBad {
		t.Fatalf("expected latest rssi to win, got %d (%v)", node.LastRSSI, node.Quality)
	}
	if !node.FirstHeardAt.Equal(t0) || !node.LastHeardAt.Equal(t0.Add(time.Second)) {
		t.Fatalf("unexpected heard times: %v .. %v", node.FirstHeardAt, node.LastHeardAt)
	}

	nodes := store.SnapshotSorted()
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
	if nodes[0].Address != addr {
		t.Fatalf("expected most recently heard first, got %s", nodes[0].Address)
	}
	if nodes[1].Quality != SignalFair {
		t.Fatalf("expected fair quality for second node, got %v", nodes[1].Quality)
	}
}

func TestNodeStoreRecord_IgnoresStaleRSSI(t *testing.T) {
	store := NewNodeStore()
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	store.Record(mustRX(t, "0013A20040522BAA", 40, 0, nil), t0)
	store.Record(mustRX(t, "0013A20040522BAA", 95, 0, nil), t0.Add(-time.Minute))

	addr, _ := packet.ParseAddress64("0013A20040522BAA")
	node, _ := store.Get(addr)
	if node.LastRSSI != 40 {
		t.Fatalf("expected rssi from newest frame, got %d", node.LastRSSI)
	}
	if !node.FirstHeardAt.Equal(t0.Add(-time.Minute)) {
		t.Fatalf("expected first heard to move back, got %v", node.FirstHeardAt)
	}
	if node.Frames != 2 {
		t.Fatalf("expected both frames counted, got %d", node.Frames)
	}
}

func TestNodeStoreStart_ConsumesInboundRX64(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.New(nil, 8)
	store := NewNodeStore()
	store.Start(ctx, b)

	at, err := packet.NewATCommandPacket(1, "NI", nil)
	if err != nil {
		t.Fatalf("new at command: %v", err)
	}
	b.Publish(connectors.TopicPacketIn, connectors.PacketEvent{Direction: connectors.DirectionIn, Packet: at})
	b.Publish(connectors.TopicPacketIn, connectors.PacketEvent{
		Direction: connectors.DirectionIn,
		Packet:    mustRX(t, "0013A20040522BAA", 50, 0, []byte{1}),
		At:        time.Now(),
	})

	select {
	case <-store.Changes():
	case <-time.After(2 * time.Second):
		t.Fatalf("store was not updated")
	}
	if nodes := store.SnapshotSorted(); len(nodes) != 1 {
		t.Fatalf("expected only the rx64 source, got %d nodes", len(nodes))
	}

	store.Reset()
	if nodes := store.SnapshotSorted(); len(nodes) != 0 {
		t.Fatalf("expected empty store after reset, got %d", len(nodes))
	}
}
