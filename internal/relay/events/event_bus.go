// Package events decouples the order service from transport-layer
// broadcasters. The bus is an explicit constructed component, never a
// package-level singleton, so publishers and subscribers share exactly the
// instance they were built with.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/model"
	"github.com/krishishah/0xygen-Relay-sub000/pkg/metrics"
)

// Order event types published by the order service.
const (
	OrderAdded   = "ORDER_ADDED"
	OrderUpdated = "ORDER_UPDATED"
	OrderRemoved = "ORDER_REMOVED"
)

// TopicOrders carries all order lifecycle events.
const TopicOrders = "orders"

// OrderEvent is the payload of every order lifecycle event.
type OrderEvent struct {
	Type              string
	Order             *model.EnrichedOrder
	MakerTokenAddress common.Address
	TakerTokenAddress common.Address
	Timestamp         time.Time
}

// Handler is a function that handles an event. It should be fast and
// non-blocking; if it panics the bus recovers and logs.
type Handler func(OrderEvent)

// Bus is a concurrent-safe in-process publish/subscribe channel. Publish is
// fire-and-forget: a slow or failing subscriber never blocks or fails the
// publisher.
type Bus struct {
	logger *zap.Logger
	mu     sync.RWMutex
	subs   map[string][]Handler
}

// NewBus creates an in-memory event bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logger,
		subs:   make(map[string][]Handler),
	}
}

// Publish delivers the event to all subscribers of the topic, each on its own
// goroutine.
func (b *Bus) Publish(ctx context.Context, topic string, event OrderEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	metrics.EventsPublished.Inc()

	b.mu.RLock()
	handlers := append([]Handler{}, b.subs[topic]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					metrics.EventsFailed.Inc()
					b.logger.Error("event handler panic",
						zap.Any("recover", r),
						zap.String("topic", topic),
						zap.String("type", event.Type))
				}
			}()
			h(event)
			metrics.EventsDelivered.Inc()
		}(handler)
	}
}

// Subscribe registers a handler for a topic.
func (b *Bus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], handler)
}
