// Package bus fans radio events out to independent consumers.
package bus

import (
	"context"
	"log/slog"
	"reflect"
	"sync/atomic"

	"github.com/cskr/pubsub"
)

// Subscription receives messages published on the topics it was
// subscribed to.
type Subscription chan any

type MessageBus interface {
	Publish(topic string, msg any)
	// Subscribe returns one channel receiving messages from all topics.
	Subscribe(topics ...string) Subscription
	// Unsubscribe with no topics detaches ch from every topic and discards
	// whatever is still buffered in it.
	Unsubscribe(ch Subscription, topics ...string)
	Close()
}

// PubSubBus is a MessageBus backed by cskr/pubsub. Publish blocks while any
// subscriber's buffer is full, so every subscription must be read or
// unsubscribed. Calls after Close are no-ops.
type PubSubBus struct {
	ps     *pubsub.PubSub
	logger *slog.Logger
	closed atomic.Bool
}

const defaultCapacity = 128

// New creates a bus whose subscriptions buffer up to capacity messages.
// Non-positive capacity selects the default.
func New(logger *slog.Logger, capacity int) *PubSubBus {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PubSubBus{
		ps:     pubsub.New(capacity),
		logger: logger,
	}
}

func (b *PubSubBus) Publish(topic string, msg any) {
	if b.closed.Load() {
		return
	}
	if b.logger.Enabled(context.Background(), slog.LevelDebug) {
		b.logger.Debug("publish", "topic", topic, "payload", describe(msg))
	}
	b.ps.Pub(msg, topic)
}

func (b *PubSubBus) Subscribe(topics ...string) Subscription {
	if b.closed.Load() {
		ch := make(Subscription)
		close(ch)
		return ch
	}
	b.logger.Debug("subscribe", "topics", topics)
	return b.ps.Sub(topics...)
}

func (b *PubSubBus) Unsubscribe(ch Subscription, topics ...string) {
	if b.closed.Load() {
		return
	}
	if len(topics) > 0 {
		b.ps.Unsub(ch, topics...)
		b.logger.Debug("unsubscribe", "topics", topics)
		return
	}

	// The pubsub loop may be blocked sending to ch. Keep reading until the
	// loop has removed ch and closed it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range ch {
		}
	}()
	b.ps.Unsub(ch)
	<-done
	b.logger.Debug("unsubscribe", "topics", "all")
}

func (b *PubSubBus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.ps.Shutdown()
}

// describe prefers the payload's own slog rendering and falls back to its
// dynamic type.
func describe(v any) slog.Value {
	if lv, ok := v.(slog.LogValuer); ok {
		return lv.LogValue()
	}

	return slog.StringValue(payloadType(v))
}

func payloadType(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}
