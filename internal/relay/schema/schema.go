// Package schema is the wire layer: every numeric field travels as a decimal
// string so arbitrary-precision amounts survive JSON. FromWire never coerces
// a bad value to zero; any malformed field is a DeserializationError.
package schema

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/model"
	"github.com/krishishah/0xygen-Relay-sub000/pkg/errors"
)

// ECSignatureSchema is the wire form of an elliptic-curve signature.
type ECSignatureSchema struct {
	V uint8  `json:"v"`
	R string `json:"r"`
	S string `json:"s"`
}

// SignedOrderSchema is the wire form of a signed order.
type SignedOrderSchema struct {
	Maker                      string            `json:"maker"`
	Taker                      string            `json:"taker"`
	MakerTokenAddress          string            `json:"makerTokenAddress"`
	TakerTokenAddress          string            `json:"takerTokenAddress"`
	FeeRecipient               string            `json:"feeRecipient"`
	ExchangeContractAddress    string            `json:"exchangeContractAddress"`
	MakerTokenAmount           string            `json:"makerTokenAmount"`
	TakerTokenAmount           string            `json:"takerTokenAmount"`
	MakerFee                   string            `json:"makerFee"`
	TakerFee                   string            `json:"takerFee"`
	Salt                       string            `json:"salt"`
	ExpirationUnixTimestampSec string            `json:"expirationUnixTimestampSec"`
	ECSignature                ECSignatureSchema `json:"ecSignature"`
}

// EnrichedOrderSchema is a SignedOrderSchema plus the live remaining amounts.
type EnrichedOrderSchema struct {
	SignedOrderSchema
	OrderHash                 string `json:"orderHash"`
	RemainingMakerTokenAmount string `json:"remainingMakerTokenAmount"`
	RemainingTakerTokenAmount string `json:"remainingTakerTokenAmount"`
}

// OrderbookSchema is the wire form of a token pair order book.
type OrderbookSchema struct {
	Bids []EnrichedOrderSchema `json:"bids"`
	Asks []EnrichedOrderSchema `json:"asks"`
}

// TokenPairSchema is the wire form of a directional token pair.
type TokenPairSchema struct {
	MakerTokenAddress string `json:"makerTokenAddress"`
	TakerTokenAddress string `json:"takerTokenAddress"`
}

// SubscribePayload selects the order book channel a client wants.
type SubscribePayload struct {
	BaseTokenAddress  string `json:"baseTokenAddress"`
	QuoteTokenAddress string `json:"quoteTokenAddress"`
	Snapshot          bool   `json:"snapshot"`
}

// SubscribeRequest is the client -> server WebSocket subscribe message.
type SubscribeRequest struct {
	Type      string           `json:"type"`
	RequestID uint64           `json:"requestId"`
	Payload   SubscribePayload `json:"payload"`
}

// Channel message types pushed to WebSocket subscribers.
const (
	MessageTypeSnapshot = "snapshot"
	MessageTypeUpdate   = "update"
)

// ChannelMessage is a server -> client push message tagged by type.
type ChannelMessage struct {
	Type      string      `json:"type"`
	RequestID uint64      `json:"requestId"`
	Payload   interface{} `json:"payload"`
}

// OrderbookUpdate is the payload of an "update" channel message.
type OrderbookUpdate struct {
	Kind  string              `json:"kind"` // added, updated or removed
	Order EnrichedOrderSchema `json:"order"`
}

// SignedOrderToWire converts a signed order to its wire form. Total: every
// in-memory order has a wire representation.
func SignedOrderToWire(so *model.SignedOrder) SignedOrderSchema {
	return SignedOrderSchema{
		Maker:                      so.Maker.Hex(),
		Taker:                      so.Taker.Hex(),
		MakerTokenAddress:          so.MakerTokenAddress.Hex(),
		TakerTokenAddress:          so.TakerTokenAddress.Hex(),
		FeeRecipient:               so.FeeRecipient.Hex(),
		ExchangeContractAddress:    so.ExchangeContractAddress.Hex(),
		MakerTokenAmount:           so.MakerTokenAmount.String(),
		TakerTokenAmount:           so.TakerTokenAmount.String(),
		MakerFee:                   so.MakerFee.String(),
		TakerFee:                   so.TakerFee.String(),
		Salt:                       so.Salt.String(),
		ExpirationUnixTimestampSec: decimal.NewFromInt(so.ExpirationUnixTimestampSec).String(),
		ECSignature: ECSignatureSchema{
			V: so.Signature.V,
			R: so.Signature.R.Hex(),
			S: so.Signature.S.Hex(),
		},
	}
}

// EnrichedOrderToWire converts an enriched order to its wire form.
func EnrichedOrderToWire(o *model.EnrichedOrder) EnrichedOrderSchema {
	return EnrichedOrderSchema{
		SignedOrderSchema:         SignedOrderToWire(&o.SignedOrder),
		OrderHash:                 o.Hash.Hex(),
		RemainingMakerTokenAmount: o.RemainingMakerTokenAmount.String(),
		RemainingTakerTokenAmount: o.RemainingTakerTokenAmount.String(),
	}
}

// OrderbookToWire converts a bid/ask view to its wire form. Empty sides
// marshal as empty arrays, not null.
func OrderbookToWire(book *model.Orderbook) OrderbookSchema {
	out := OrderbookSchema{
		Bids: make([]EnrichedOrderSchema, 0, len(book.Bids)),
		Asks: make([]EnrichedOrderSchema, 0, len(book.Asks)),
	}
	for _, o := range book.Bids {
		out.Bids = append(out.Bids, EnrichedOrderToWire(o))
	}
	for _, o := range book.Asks {
		out.Asks = append(out.Asks, EnrichedOrderToWire(o))
	}
	return out
}

// SignedOrderFromWire parses a wire signed order. Any missing or malformed
// field fails with a DeserializationError naming the field.
func SignedOrderFromWire(s *SignedOrderSchema) (*model.SignedOrder, error) {
	var so model.SignedOrder
	var err error
	if so.Maker, err = parseAddress("maker", s.Maker); err != nil {
		return nil, err
	}
	if so.Taker, err = parseAddress("taker", s.Taker); err != nil {
		return nil, err
	}
	if so.MakerTokenAddress, err = parseAddress("makerTokenAddress", s.MakerTokenAddress); err != nil {
		return nil, err
	}
	if so.TakerTokenAddress, err = parseAddress("takerTokenAddress", s.TakerTokenAddress); err != nil {
		return nil, err
	}
	if so.FeeRecipient, err = parseAddress("feeRecipient", s.FeeRecipient); err != nil {
		return nil, err
	}
	if so.ExchangeContractAddress, err = parseAddress("exchangeContractAddress", s.ExchangeContractAddress); err != nil {
		return nil, err
	}
	if so.MakerTokenAmount, err = ParseAmount("makerTokenAmount", s.MakerTokenAmount); err != nil {
		return nil, err
	}
	if so.TakerTokenAmount, err = ParseAmount("takerTokenAmount", s.TakerTokenAmount); err != nil {
		return nil, err
	}
	if so.MakerFee, err = ParseAmount("makerFee", s.MakerFee); err != nil {
		return nil, err
	}
	if so.TakerFee, err = ParseAmount("takerFee", s.TakerFee); err != nil {
		return nil, err
	}
	if so.Salt, err = ParseAmount("salt", s.Salt); err != nil {
		return nil, err
	}
	expiration, err := ParseAmount("expirationUnixTimestampSec", s.ExpirationUnixTimestampSec)
	if err != nil {
		return nil, err
	}
	if !expiration.BigInt().IsInt64() {
		return nil, errors.NewDeserialization("expirationUnixTimestampSec", "out of range")
	}
	so.ExpirationUnixTimestampSec = expiration.BigInt().Int64()

	if so.Signature.R, err = parseHash("ecSignature.r", s.ECSignature.R); err != nil {
		return nil, err
	}
	if so.Signature.S, err = parseHash("ecSignature.s", s.ECSignature.S); err != nil {
		return nil, err
	}
	so.Signature.V = s.ECSignature.V
	return &so, nil
}

// EnrichedOrderFromWire parses a wire enriched order, including its hash and
// remaining amounts.
func EnrichedOrderFromWire(s *EnrichedOrderSchema) (*model.EnrichedOrder, error) {
	signed, err := SignedOrderFromWire(&s.SignedOrderSchema)
	if err != nil {
		return nil, err
	}
	o := &model.EnrichedOrder{SignedOrder: *signed}
	if o.Hash, err = parseHash("orderHash", s.OrderHash); err != nil {
		return nil, err
	}
	if o.RemainingMakerTokenAmount, err = ParseAmount("remainingMakerTokenAmount", s.RemainingMakerTokenAmount); err != nil {
		return nil, err
	}
	if o.RemainingTakerTokenAmount, err = ParseAmount("remainingTakerTokenAmount", s.RemainingTakerTokenAmount); err != nil {
		return nil, err
	}
	return o, nil
}

// maxAmountDigits bounds accepted magnitudes: 2^256-1 has 78 decimal digits,
// so any longer value cannot be a uint256. Checked against the coefficient
// length and exponent so an input like "1e100000000" is rejected before the
// value is ever expanded to its integer form.
const maxAmountDigits = 78

// ParseAmount parses a decimal string as a non-negative integer amount.
func ParseAmount(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Decimal{}, errors.NewDeserialization(field, "missing")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, errors.NewDeserialization(field, "not a decimal integer")
	}
	// A nonzero value with more fractional places than coefficient digits
	// cannot be an integer; deciding that here keeps IsInteger from looping
	// over an attacker-sized exponent.
	if exp := int64(d.Exponent()); exp < 0 && -exp > int64(d.NumDigits()) && d.Sign() != 0 {
		return decimal.Decimal{}, errors.NewDeserialization(field, "not an integer")
	}
	if !d.IsInteger() {
		return decimal.Decimal{}, errors.NewDeserialization(field, "not an integer")
	}
	if d.Sign() < 0 {
		return decimal.Decimal{}, errors.NewDeserialization(field, "negative")
	}
	if int64(d.NumDigits())+int64(d.Exponent()) > maxAmountDigits {
		return decimal.Decimal{}, errors.NewDeserialization(field, "exceeds 256 bits")
	}
	return d, nil
}

func parseAddress(field, value string) (common.Address, error) {
	if value == "" {
		return common.Address{}, errors.NewDeserialization(field, "missing")
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, errors.NewDeserialization(field, "not a hex address")
	}
	return common.HexToAddress(value), nil
}

func parseHash(field, value string) (common.Hash, error) {
	if value == "" {
		return common.Hash{}, errors.NewDeserialization(field, "missing")
	}
	b, err := common.ParseHexOrString(value)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, errors.NewDeserialization(field, "not a 32-byte hex value")
	}
	return common.BytesToHash(b), nil
}
