package settlement

import (
	"context"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/hash"
	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/model"
	"github.com/krishishah/0xygen-Relay-sub000/pkg/errors"
	"github.com/krishishah/0xygen-Relay-sub000/pkg/metrics"
)

// Event signatures of the exchange contract. The order hash is the trailing
// 32 bytes of the log data for both.
var (
	logFillTopic   = crypto.Keccak256Hash([]byte("LogFill(address,address,address,address,address,uint256,uint256,uint256,uint256,bytes32,bytes32)"))
	logCancelTopic = crypto.Keccak256Hash([]byte("LogCancel(address,address,address,address,uint256,uint256,bytes32,bytes32)"))

	unavailableTakerAmountSelector = crypto.Keccak256([]byte("getUnavailableTakerTokenAmount(bytes32)"))[:4]
)

// ChainBackend is the slice of ethclient.Client the on-chain client needs.
type ChainBackend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// OnChainClient reconciles against a deployed exchange contract. Fill state
// is read with eth_call; asynchronous reconciliation is driven by a log
// watcher polling LogFill/LogCancel events for tracked order hashes.
type OnChainClient struct {
	chain         ChainBackend
	exchange      common.Address
	queryTimeout  time.Duration
	watchInterval time.Duration
	logger        *zap.Logger

	mu       sync.RWMutex
	tracked  map[common.Hash]*model.SignedOrder
	handlers []UpdateHandler

	cancel context.CancelFunc
	done   chan struct{}
}

// NewOnChainClient creates a settlement client over the given chain backend
// and exchange contract address.
func NewOnChainClient(chain ChainBackend, exchange common.Address, queryTimeout, watchInterval time.Duration, logger *zap.Logger) *OnChainClient {
	return &OnChainClient{
		chain:         chain,
		exchange:      exchange,
		queryTimeout:  queryTimeout,
		watchInterval: watchInterval,
		logger:        logger,
		tracked:       make(map[common.Hash]*model.SignedOrder),
	}
}

// GetRemainingFillable reads the cumulative unavailable (filled + cancelled)
// taker amount from the exchange contract and derives the remaining amounts.
func (c *OnChainClient) GetRemainingFillable(ctx context.Context, order *model.SignedOrder) (*Status, error) {
	h, err := hash.OrderHash(&order.Order)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	data := make([]byte, 0, 4+common.HashLength)
	data = append(data, unavailableTakerAmountSelector...)
	data = append(data, h.Bytes()...)

	start := time.Now()
	out, err := c.chain.CallContract(ctx, ethereum.CallMsg{To: &c.exchange, Data: data}, nil)
	metrics.SettlementQueryLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SettlementQueryErrors.Inc()
		return nil, errors.NewSettlementQuery(err)
	}

	unavailable := decimal.NewFromBigInt(new(big.Int).SetBytes(out), 0)
	remainingTaker := order.TakerTokenAmount.Sub(unavailable)
	if remainingTaker.Sign() < 0 {
		remainingTaker = decimal.Zero
	}

	status := &Status{
		OrderHash:                 h,
		RemainingTakerTokenAmount: remainingTaker,
		RemainingMakerTokenAmount: remainingMakerAmount(&order.Order, remainingTaker),
	}
	expired := order.ExpirationUnixTimestampSec <= time.Now().Unix()
	status.IsValid = !expired && remainingTaker.Sign() > 0
	return status, nil
}

// Track registers the order with the log watcher.
func (c *OnChainClient) Track(ctx context.Context, order *model.SignedOrder) error {
	h, err := hash.OrderHash(&order.Order)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.tracked[h] = order
	c.mu.Unlock()
	return nil
}

// Untrack removes the order from the log watcher.
func (c *OnChainClient) Untrack(h common.Hash) {
	c.mu.Lock()
	delete(c.tracked, h)
	c.mu.Unlock()
}

// SubscribeToUpdates registers a handler for watcher notifications.
func (c *OnChainClient) SubscribeToUpdates(handler UpdateHandler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, handler)
	c.mu.Unlock()
}

// Start launches the log watcher. It polls for fill and cancel events of
// tracked orders and re-queries the contract for each affected order.
func (c *OnChainClient) Start(ctx context.Context) error {
	cursor, err := c.chain.BlockNumber(ctx)
	if err != nil {
		return errors.NewSettlementQuery(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.watchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cursor = c.poll(ctx, cursor)
			}
		}
	}()
	return nil
}

// Stop tears the watcher down and waits for it to exit.
func (c *OnChainClient) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
}

// poll scans exchange logs past the cursor and notifies handlers for tracked
// orders. Returns the new cursor; on error the old cursor is kept so the
// range is retried.
func (c *OnChainClient) poll(ctx context.Context, cursor uint64) uint64 {
	head, err := c.chain.BlockNumber(ctx)
	if err != nil {
		c.logger.Warn("failed to read chain head", zap.Error(err))
		return cursor
	}
	if head <= cursor {
		return cursor
	}

	logs, err := c.chain.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(cursor + 1),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{c.exchange},
		Topics:    [][]common.Hash{{logFillTopic, logCancelTopic}},
	})
	if err != nil {
		c.logger.Warn("failed to filter exchange logs", zap.Error(err))
		return cursor
	}

	for _, lg := range logs {
		if len(lg.Data) < common.HashLength {
			continue
		}
		orderHash := common.BytesToHash(lg.Data[len(lg.Data)-common.HashLength:])
		c.mu.RLock()
		order, ok := c.tracked[orderHash]
		c.mu.RUnlock()
		if !ok {
			continue
		}
		status, err := c.GetRemainingFillable(ctx, order)
		if err != nil {
			c.logger.Warn("failed to refresh order after exchange log",
				zap.Error(err), zap.String("order_hash", orderHash.Hex()))
			continue
		}
		c.notify(order, status)
	}
	return head
}

func (c *OnChainClient) notify(order *model.SignedOrder, status *Status) {
	c.mu.RLock()
	handlers := append([]UpdateHandler{}, c.handlers...)
	c.mu.RUnlock()
	for _, h := range handlers {
		h(order, status)
	}
}
