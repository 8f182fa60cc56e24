// Package orderbook assembles sorted bid/ask views from the repository.
package orderbook

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/model"
)

// Engine answers order book queries. Read-only: it never mutates repository
// state.
type Engine struct {
	repo   model.Repository
	logger *zap.Logger
}

// NewEngine creates an order book query engine over the given repository.
func NewEngine(repo model.Repository, logger *zap.Logger) *Engine {
	return &Engine{repo: repo, logger: logger}
}

// GetOrderbook returns the sorted bid/ask view for a (base, quote) pair.
// Bids sell the quote token for the base token; asks the inverse. Unknown
// pairs yield empty sides, not an error.
func (e *Engine) GetOrderbook(ctx context.Context, baseToken, quoteToken common.Address) (*model.Orderbook, error) {
	bids, err := e.repo.QueryByTokenPair(ctx, quoteToken, baseToken)
	if err != nil {
		return nil, err
	}
	asks, err := e.repo.QueryByTokenPair(ctx, baseToken, quoteToken)
	if err != nil {
		return nil, err
	}
	SortSide(bids)
	SortSide(asks)
	return &model.Orderbook{Bids: bids, Asks: asks}, nil
}

// SortSide orders one side of a book by economic priority: implied exchange
// rate (taker amount / maker amount) descending, then combined fee ascending,
// then expiration ascending. The sort is stable so equal orders keep their
// input order.
func SortSide(orders []*model.EnrichedOrder) {
	sort.SliceStable(orders, func(i, j int) bool {
		return Less(orders[i], orders[j])
	})
}

// Less reports whether order a has strictly better priority than order b.
func Less(a, b *model.EnrichedOrder) bool {
	// Compare taker/maker rates by cross-multiplication so arbitrarily large
	// integer amounts compare exactly.
	left := a.TakerTokenAmount.Mul(b.MakerTokenAmount)
	right := b.TakerTokenAmount.Mul(a.MakerTokenAmount)
	if c := left.Cmp(right); c != 0 {
		return c > 0
	}

	aFee := a.MakerFee.Add(a.TakerFee)
	bFee := b.MakerFee.Add(b.TakerFee)
	if c := aFee.Cmp(bFee); c != 0 {
		return c < 0
	}

	return a.ExpirationUnixTimestampSec < b.ExpirationUnixTimestampSec
}
