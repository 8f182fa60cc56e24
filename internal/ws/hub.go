// Package ws pushes order-book snapshots and deltas to WebSocket
// subscribers. Each connection is an isolated session with its own send
// queue, heartbeat and subscription set; a slow session is dropped, never
// allowed to block the broadcaster.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/events"
	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/orderbook"
	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/schema"
	"github.com/krishishah/0xygen-Relay-sub000/pkg/metrics"
)

const writeTimeout = 10 * time.Second

// Hub owns all subscriber sessions and relays order events from the bus.
type Hub struct {
	logger     *zap.Logger
	book       *orderbook.Engine
	heartbeat  time.Duration
	sendBuffer int
	upgrader   websocket.Upgrader

	mu       sync.RWMutex
	sessions map[*Session]struct{}
}

// Session is one WebSocket connection. subscriptions maps a pair channel key
// to the request id the client subscribed with.
type Session struct {
	id            string
	conn          *websocket.Conn
	send          chan []byte
	hub           *Hub
	mu            sync.Mutex
	closed        bool
	subscriptions map[string]uint64
}

// NewHub creates the hub and subscribes it to order events on the bus.
func NewHub(book *orderbook.Engine, bus *events.Bus, heartbeat time.Duration, sendBuffer int, logger *zap.Logger) *Hub {
	h := &Hub{
		logger:     logger,
		book:       book,
		heartbeat:  heartbeat,
		sendBuffer: sendBuffer,
		sessions:   make(map[*Session]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	bus.Subscribe(events.TopicOrders, h.relay)
	return h
}

// ServeWS upgrades the request and runs a session until disconnect.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s := &Session{
		id:            uuid.New().String(),
		conn:          conn,
		send:          make(chan []byte, h.sendBuffer),
		hub:           h,
		subscriptions: make(map[string]uint64),
	}
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	metrics.WSConnections.Inc()
	h.logger.Debug("websocket session opened", zap.String("session_id", s.id))

	go s.writePump()
	go s.readPump()
}

// relay fans an order event out to every session subscribed to its pair.
func (h *Hub) relay(event events.OrderEvent) {
	key := channelKey(event.MakerTokenAddress, event.TakerTokenAddress)
	update := schema.OrderbookUpdate{
		Kind:  updateKind(event.Type),
		Order: schema.EnrichedOrderToWire(event.Order),
	}

	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		requestID, ok := s.subscribed(key)
		if !ok {
			continue
		}
		data, err := json.Marshal(schema.ChannelMessage{
			Type:      schema.MessageTypeUpdate,
			RequestID: requestID,
			Payload:   update,
		})
		if err != nil {
			continue
		}
		s.enqueue(data)
	}
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s)
	h.mu.Unlock()
	// Mark before closing: a bus-handler goroutine may hold a stale session
	// list and still call enqueue, which would otherwise send on the closed
	// channel.
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	close(s.send)
	metrics.WSConnections.Dec()
	h.logger.Debug("websocket session closed", zap.String("session_id", s.id))
}

// readPump parses subscribe requests until the connection drops.
func (s *Session) readPump() {
	defer func() {
		s.hub.unregister(s)
		s.conn.Close()
	}()
	s.conn.SetReadLimit(4096)
	s.conn.SetReadDeadline(time.Now().Add(3 * s.hub.heartbeat))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(3 * s.hub.heartbeat))
	})
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var req schema.SubscribeRequest
		if err := json.Unmarshal(data, &req); err != nil || req.Type != "subscribe" {
			continue
		}
		s.handleSubscribe(&req)
	}
}

func (s *Session) handleSubscribe(req *schema.SubscribeRequest) {
	if !common.IsHexAddress(req.Payload.BaseTokenAddress) || !common.IsHexAddress(req.Payload.QuoteTokenAddress) {
		return
	}
	base := common.HexToAddress(req.Payload.BaseTokenAddress)
	quote := common.HexToAddress(req.Payload.QuoteTokenAddress)

	s.mu.Lock()
	s.subscriptions[channelKey(base, quote)] = req.RequestID
	s.mu.Unlock()

	if !req.Payload.Snapshot {
		return
	}
	book, err := s.hub.book.GetOrderbook(context.Background(), base, quote)
	if err != nil {
		s.hub.logger.Warn("snapshot query failed",
			zap.Error(err), zap.String("session_id", s.id))
		return
	}
	data, err := json.Marshal(schema.ChannelMessage{
		Type:      schema.MessageTypeSnapshot,
		RequestID: req.RequestID,
		Payload:   schema.OrderbookToWire(book),
	})
	if err != nil {
		return
	}
	s.enqueue(data)
}

func (s *Session) subscribed(key string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.subscriptions[key]
	return id, ok
}

// enqueue hands data to the write pump without blocking. The send is under
// s.mu so it cannot race unregister closing the channel.
func (s *Session) enqueue(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		metrics.WSMessagesDropped.Inc()
		return
	}
	select {
	case s.send <- data:
	default:
		metrics.WSMessagesDropped.Inc()
	}
}

// writePump owns the connection's writes and the heartbeat ticker; both stop
// deterministically when the session ends.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.hub.heartbeat)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case data, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			metrics.WSMessagesSent.Inc()
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// channelKey returns the same key for both directions of a pair so a
// subscription to (base, quote) sees bid and ask changes alike.
func channelKey(a, b common.Address) string {
	x, y := strings.ToLower(a.Hex()), strings.ToLower(b.Hex())
	if x > y {
		x, y = y, x
	}
	return x + ":" + y
}

func updateKind(eventType string) string {
	switch eventType {
	case events.OrderAdded:
		return "added"
	case events.OrderUpdated:
		return "updated"
	case events.OrderRemoved:
		return "removed"
	default:
		return "updated"
	}
}
