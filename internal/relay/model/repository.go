package model

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Repository defines the interface for durable order storage. The order
// service is the only writer; the orderbook engine and transport layer read.
type Repository interface {
	// Save upserts the enriched order under its hash. Idempotent for
	// repeated identical saves.
	Save(ctx context.Context, order *EnrichedOrder) error
	// Get returns the order stored under hash, or errors.ErrNotFound.
	Get(ctx context.Context, hash common.Hash) (*EnrichedOrder, error)
	// QueryByTokenPair returns all orders selling makerToken for takerToken.
	// The pair is directional; callers assemble a full book with two queries.
	// Result order is unspecified.
	QueryByTokenPair(ctx context.Context, makerToken, takerToken common.Address) ([]*EnrichedOrder, error)
	// Delete removes the order under hash. No error if absent.
	Delete(ctx context.Context, hash common.Hash) error
	// ListAll returns every persisted order.
	ListAll(ctx context.Context) ([]*EnrichedOrder, error)
}
