// Package domain tracks what the local radio has heard on the air.
package domain

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kscape/xbee-go/internal/bus"
	"github.com/kscape/xbee-go/internal/connectors"
	"github.com/kscape/xbee-go/internal/packet"
)

// HeardNode summarizes the RX64 traffic received from one source address.
type HeardNode struct {
	Address      packet.Address64
	LastRSSI     int
	Quality      SignalQuality
	Frames       int
	Bytes        int
	Broadcasts   int
	FirstHeardAt time.Time
	LastHeardAt  time.Time
}

// NodeStore keeps per-source receive statistics in memory.
type NodeStore struct {
	mu      sync.RWMutex
	nodes   map[packet.Address64]HeardNode
	changes chan struct{}
}

func NewNodeStore() *NodeStore {
	return &NodeStore{
		nodes:   make(map[packet.Address64]HeardNode),
		changes: make(chan struct{}, 1),
	}
}

// Start feeds the store from inbound packet events until ctx is done.
func (s *NodeStore) Start(ctx context.Context, b bus.MessageBus) {
	sub := b.Subscribe(connectors.TopicPacketIn)
	go func() {
		defer b.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub:
				if !ok {
					return
				}
				ev, ok := msg.(connectors.PacketEvent)
				if !ok {
					continue
				}
				if rx, ok := ev.Packet.(*packet.RX64Packet); ok {
					s.Record(rx, ev.At)
				}
			}
		}
	}()
}

// Record accounts one received frame. A zero at means now.
func (s *NodeStore) Record(rx *packet.RX64Packet, at time.Time) {
	if rx == nil {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	addr := rx.SourceAddress()
	node, ok := s.nodes[addr]
	if !ok {
		node = HeardNode{Address: addr, FirstHeardAt: at}
	}
	node.Frames++
	node.Bytes += len(rx.ReceivedData())
	if rx.IsBroadcast() {
		node.Broadcasts++
	}
	// Out-of-order events must not roll the last-heard state back.
	if !at.Before(node.LastHeardAt) {
		node.LastHeardAt = at
		node.LastRSSI = int(rx.RSSI())
		node.Quality = DetermineSignalQuality(node.LastRSSI)
	}
	if at.Before(node.FirstHeardAt) {
		node.FirstHeardAt = at
	}
	s.nodes[addr] = node
	s.notify()
}

// SnapshotSorted returns all nodes, most recently heard first.
func (s *NodeStore) SnapshotSorted() []HeardNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HeardNode, 0, len(s.nodes))
	for _, node := range s.nodes {
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastHeardAt.Equal(out[j].LastHeardAt) {
			return out[i].Address.String() < out[j].Address.String()
		}
		return out[i].LastHeardAt.After(out[j].LastHeardAt)
	})

	return out
}

func (s *NodeStore) Get(addr packet.Address64) (HeardNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[addr]

	return node, ok
}

// Changes signals, without blocking the writer, that the store was updated.
func (s *NodeStore) Changes() <-chan struct{} {
	return s.changes
}

func (s *NodeStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[packet.Address64]HeardNode)
	s.notify()
}

func (s *NodeStore) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
