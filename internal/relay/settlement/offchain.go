package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/hash"
	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/model"
	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/schema"
	"github.com/krishishah/0xygen-Relay-sub000/pkg/errors"
	"github.com/krishishah/0xygen-Relay-sub000/pkg/metrics"
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
	feedPingInterval   = 30 * time.Second
	feedReadTimeout    = 90 * time.Second
)

// statusResponse is the payment network's reply to a status query.
type statusResponse struct {
	OrderHash                         string `json:"orderHash"`
	IsValid                           bool   `json:"isValid"`
	RemainingFillableMakerTokenAmount string `json:"remainingFillableMakerTokenAmount"`
	RemainingFillableTakerTokenAmount string `json:"remainingFillableTakerTokenAmount"`
}

// feedMessage is an unsolicited fill/cancel push from the payment network.
// It embeds the full signed order so consumers can recompute the hash rather
// than trust the sender's.
type feedMessage struct {
	SignedOrder                       schema.SignedOrderSchema `json:"signedOrder"`
	IsValid                           bool                     `json:"isValid"`
	RemainingFillableMakerTokenAmount string                   `json:"remainingFillableMakerTokenAmount"`
	RemainingFillableTakerTokenAmount string                   `json:"remainingFillableTakerTokenAmount"`
}

// OffChainClient reconciles against an off-chain payment-network status
// service: HTTP POST for queries plus a persistent WebSocket feed for pushes.
type OffChainClient struct {
	httpClient   *http.Client
	statusURL    string
	feedURL      string
	queryTimeout time.Duration
	logger       *zap.Logger

	mu       sync.RWMutex
	handlers []UpdateHandler

	cancel context.CancelFunc
	done   chan struct{}
}

// NewOffChainClient creates a settlement client against the given status and
// feed endpoints. feedURL may be empty to disable the push feed.
func NewOffChainClient(statusURL, feedURL string, queryTimeout time.Duration, logger *zap.Logger) *OffChainClient {
	return &OffChainClient{
		httpClient:   &http.Client{Timeout: queryTimeout},
		statusURL:    statusURL,
		feedURL:      feedURL,
		queryTimeout: queryTimeout,
		logger:       logger,
	}
}

// GetRemainingFillable posts the signed order to the status endpoint.
func (c *OffChainClient) GetRemainingFillable(ctx context.Context, order *model.SignedOrder) (*Status, error) {
	h, err := hash.OrderHash(&order.Order)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(schema.SignedOrderToWire(order))
	if err != nil {
		return nil, errors.NewSettlementQuery(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.statusURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewSettlementQuery(err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.SettlementQueryLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SettlementQueryErrors.Inc()
		return nil, errors.NewSettlementQuery(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.SettlementQueryErrors.Inc()
		return nil, errors.NewSettlementQuery(fmt.Errorf("status service returned %d", resp.StatusCode))
	}

	var sr statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		metrics.SettlementQueryErrors.Inc()
		return nil, errors.NewSettlementQuery(err)
	}
	return statusFromWire(h, sr.IsValid, sr.RemainingFillableMakerTokenAmount, sr.RemainingFillableTakerTokenAmount)
}

// Track is a no-op: the feed broadcasts state changes for every order the
// payment network knows about.
func (c *OffChainClient) Track(ctx context.Context, order *model.SignedOrder) error { return nil }

// Untrack is a no-op for the off-chain backend.
func (c *OffChainClient) Untrack(h common.Hash) {}

// SubscribeToUpdates registers a handler for feed pushes.
func (c *OffChainClient) SubscribeToUpdates(handler UpdateHandler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, handler)
	c.mu.Unlock()
}

// Start launches the feed consumer. The connection is re-dialed with capped
// exponential backoff until ctx is cancelled.
func (c *OffChainClient) Start(ctx context.Context) error {
	if c.feedURL == "" {
		c.done = make(chan struct{})
		close(c.done)
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		delay := reconnectBaseDelay
		for {
			if ctx.Err() != nil {
				return
			}
			if err := c.consumeFeed(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("settlement feed disconnected", zap.Error(err), zap.Duration("retry_in", delay))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
		}
	}()
	return nil
}

// Stop tears the feed consumer down and waits for it to exit.
func (c *OffChainClient) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.done != nil {
		<-c.done
	}
}

// consumeFeed holds one WebSocket session: a ping ticker keeps the
// connection alive, the read loop dispatches pushes to handlers.
func (c *OffChainClient) consumeFeed(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.feedURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.logger.Info("settlement feed connected", zap.String("url", c.feedURL))

	conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(feedPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-pingDone:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
		c.dispatch(data)
	}
}

func (c *OffChainClient) dispatch(data []byte) {
	var msg feedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("malformed settlement feed message", zap.Error(err))
		return
	}
	order, err := schema.SignedOrderFromWire(&msg.SignedOrder)
	if err != nil {
		c.logger.Warn("settlement feed message with bad order", zap.Error(err))
		return
	}
	h, err := hash.OrderHash(&order.Order)
	if err != nil {
		c.logger.Warn("settlement feed message with unhashable order", zap.Error(err))
		return
	}
	status, err := statusFromWire(h, msg.IsValid, msg.RemainingFillableMakerTokenAmount, msg.RemainingFillableTakerTokenAmount)
	if err != nil {
		c.logger.Warn("settlement feed message with bad amounts", zap.Error(err))
		return
	}

	c.mu.RLock()
	handlers := append([]UpdateHandler{}, c.handlers...)
	c.mu.RUnlock()
	for _, h := range handlers {
		h(order, status)
	}
}

func statusFromWire(h common.Hash, isValid bool, remainingMaker, remainingTaker string) (*Status, error) {
	maker, err := schema.ParseAmount("remainingFillableMakerTokenAmount", remainingMaker)
	if err != nil {
		return nil, errors.NewSettlementQuery(err)
	}
	taker, err := schema.ParseAmount("remainingFillableTakerTokenAmount", remainingTaker)
	if err != nil {
		return nil, errors.NewSettlementQuery(err)
	}
	return &Status{
		OrderHash:                 h,
		IsValid:                   isValid,
		RemainingMakerTokenAmount: maker,
		RemainingTakerTokenAmount: taker,
	}, nil
}
