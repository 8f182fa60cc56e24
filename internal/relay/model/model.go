package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ECSignature is the elliptic-curve signature (v, r, s) over an order hash.
type ECSignature struct {
	V uint8
	R common.Hash
	S common.Hash
}

// Order holds the economic terms of a maker's offer. Immutable once signed:
// every field participates in the order hash or the fee terms, so mutating
// any of them produces a different order.
//
// All amounts are non-negative integers in the token's base unit, carried as
// decimal.Decimal to survive values wider than 64 bits.
type Order struct {
	Maker                      common.Address
	Taker                      common.Address // zero address means "any taker"
	MakerTokenAddress          common.Address
	TakerTokenAddress          common.Address
	FeeRecipient               common.Address
	ExchangeContractAddress    common.Address
	MakerTokenAmount           decimal.Decimal
	TakerTokenAmount           decimal.Decimal
	MakerFee                   decimal.Decimal
	TakerFee                   decimal.Decimal
	Salt                       decimal.Decimal
	ExpirationUnixTimestampSec int64
}

// SignedOrder is an Order plus the maker's signature over its hash.
type SignedOrder struct {
	Order
	Signature ECSignature
}

// EnrichedOrder is a SignedOrder augmented with the live remaining fillable
// amounts reported by the settlement authority. Invariant: both remaining
// amounts stay within [0, original amount]; when either hits zero the order
// leaves the book.
type EnrichedOrder struct {
	SignedOrder
	Hash                      common.Hash
	RemainingMakerTokenAmount decimal.Decimal
	RemainingTakerTokenAmount decimal.Decimal
}

// Orderbook is a transient bid/ask view for one (base, quote) token pair,
// recomputed on demand from the repository. Bids are orders buying the base
// token (maker token = quote); asks are the inverse.
type Orderbook struct {
	Bids []*EnrichedOrder
	Asks []*EnrichedOrder
}

// TokenPair is a directional (maker token, taker token) pair with live orders.
type TokenPair struct {
	MakerTokenAddress common.Address
	TakerTokenAddress common.Address
}
