// Package settlement abstracts the external authority that knows each
// order's true fill/cancel state: either a deployed exchange contract read
// over JSON-RPC, or an off-chain payment-network status service reached over
// HTTP with a WebSocket push feed.
package settlement

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/model"
)

// Status is the settlement authority's view of one order. IsValid=false means
// the order can never be filled further and must leave the book.
type Status struct {
	OrderHash                 common.Hash
	IsValid                   bool
	RemainingMakerTokenAmount decimal.Decimal
	RemainingTakerTokenAmount decimal.Decimal
}

// UpdateHandler receives asynchronous fill/cancel notifications. Delivery may
// be duplicated or out of order; consumers must stay idempotent.
type UpdateHandler func(order *model.SignedOrder, status *Status)

// Client is the unified settlement reconciliation contract. A transient I/O
// failure from GetRemainingFillable is a SettlementQueryError, never an
// invalid-order verdict.
type Client interface {
	// GetRemainingFillable queries the current fill/cancel state for one order.
	GetRemainingFillable(ctx context.Context, order *model.SignedOrder) (*Status, error)
	// Track registers an order for asynchronous update notifications.
	Track(ctx context.Context, order *model.SignedOrder) error
	// Untrack stops notifications for the given order hash.
	Untrack(hash common.Hash)
	// SubscribeToUpdates registers a handler for asynchronous updates.
	// Must be called before Start.
	SubscribeToUpdates(handler UpdateHandler)
	// Start launches the backend's push consumer until ctx is cancelled.
	Start(ctx context.Context) error
	// Stop tears the push consumer down.
	Stop()
}

// remainingMakerAmount derives the maker-side remaining amount from the
// taker-side one at the order's exchange rate, rounding down so the maker is
// never over-credited.
func remainingMakerAmount(order *model.Order, remainingTaker decimal.Decimal) decimal.Decimal {
	if order.TakerTokenAmount.IsZero() || remainingTaker.Sign() <= 0 {
		return decimal.Zero
	}
	num := new(big.Int).Mul(remainingTaker.BigInt(), order.MakerTokenAmount.BigInt())
	num.Quo(num, order.TakerTokenAmount.BigInt())
	return decimal.NewFromBigInt(num, 0)
}
