package schema

import (
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/model"
	"github.com/krishishah/0xygen-Relay-sub000/pkg/errors"
)

func wireOrder() SignedOrderSchema {
	return SignedOrderSchema{
		Maker:                      "0x6ecbe1db9ef729cbe972c83fb886247691fb6beb",
		Taker:                      "0x0000000000000000000000000000000000000000",
		MakerTokenAddress:          "0xe41d2489571d322189246dafa5ebde1f4699f498",
		TakerTokenAddress:          "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
		FeeRecipient:               "0x0000000000000000000000000000000000000001",
		ExchangeContractAddress:    "0x12459c951127e0c374ff9105dda097662a027093",
		MakerTokenAmount:           "200000000000000000000",
		TakerTokenAmount:           "100000000000000000000",
		MakerFee:                   "0",
		TakerFee:                   "42",
		Salt:                       "115792089237316195423570985008687907853269984665640564039457584007913129639935",
		ExpirationUnixTimestampSec: "2524608000",
		ECSignature: ECSignatureSchema{
			V: 27,
			R: "0x61a3ed31b43c8780e905a260a35faefcc527be7516aa11c0256729b5b351bc33",
			S: "0x40349190569279751135161d22529dc25add4f6069af05be04cacbda2ace2254",
		},
	}
}

func TestSignedOrderRoundTrip(t *testing.T) {
	wire := wireOrder()
	order, err := SignedOrderFromWire(&wire)
	require.NoError(t, err)

	back := SignedOrderToWire(order)
	parsed, err := SignedOrderFromWire(&back)
	require.NoError(t, err)
	assert.Equal(t, order, parsed)

	// The 256-bit salt survives without precision loss.
	assert.Equal(t, wire.Salt, order.Salt.String())
}

func TestEnrichedOrderRoundTrip(t *testing.T) {
	wire := wireOrder()
	signed, err := SignedOrderFromWire(&wire)
	require.NoError(t, err)
	enriched := &model.EnrichedOrder{
		SignedOrder:               *signed,
		Hash:                      common.HexToHash("0xdeadbeef00000000000000000000000000000000000000000000000000000000"),
		RemainingMakerTokenAmount: decimal.RequireFromString("150000000000000000000"),
		RemainingTakerTokenAmount: decimal.RequireFromString("75000000000000000000"),
	}

	back := EnrichedOrderToWire(enriched)
	parsed, err := EnrichedOrderFromWire(&back)
	require.NoError(t, err)
	assert.Equal(t, enriched, parsed)
}

func TestFromWireRejectsBadNumerics(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SignedOrderSchema)
	}{
		{"non-numeric amount", func(s *SignedOrderSchema) { s.MakerTokenAmount = "abc" }},
		{"fractional amount", func(s *SignedOrderSchema) { s.TakerTokenAmount = "1.5" }},
		{"negative amount", func(s *SignedOrderSchema) { s.MakerFee = "-1" }},
		{"missing amount", func(s *SignedOrderSchema) { s.Salt = "" }},
		{"oversized exponent", func(s *SignedOrderSchema) { s.MakerTokenAmount = "1e100000000" }},
		{"oversized negative exponent", func(s *SignedOrderSchema) { s.MakerTokenAmount = "1e-100000000" }},
		{"79-digit amount", func(s *SignedOrderSchema) { s.TakerTokenAmount = "1" + strings.Repeat("0", 78) }},
		{"bad address", func(s *SignedOrderSchema) { s.Maker = "not-an-address" }},
		{"missing address", func(s *SignedOrderSchema) { s.TakerTokenAddress = "" }},
		{"bad signature r", func(s *SignedOrderSchema) { s.ECSignature.R = "0x01" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := wireOrder()
			tt.mutate(&wire)
			_, err := SignedOrderFromWire(&wire)
			var deserErr *errors.DeserializationError
			require.Error(t, err)
			assert.True(t, errors.As(err, &deserErr), "want DeserializationError, got %T", err)
		})
	}
}

func TestParseAmountBoundsMagnitudeBeforeExpansion(t *testing.T) {
	// Values beyond uint256 range must be rejected from the string form
	// alone; expanding 1e100000000 to an integer first would cost minutes of
	// CPU per request.
	start := time.Now()
	for _, value := range []string{"1e100000000", "9e2147483647", "1e-100000000"} {
		_, err := ParseAmount("makerTokenAmount", value)
		var deserErr *errors.DeserializationError
		require.Error(t, err, value)
		assert.True(t, errors.As(err, &deserErr), value)
	}
	assert.Less(t, time.Since(start), time.Second)

	// The largest representable uint256 still parses.
	max, err := ParseAmount("salt", "115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.NoError(t, err)
	assert.Equal(t, int32(0), max.Exponent())
}

func TestFromWireNeverZeroes(t *testing.T) {
	// A malformed amount must fail loudly, not come back as zero.
	wire := wireOrder()
	wire.MakerTokenAmount = "20x"
	order, err := SignedOrderFromWire(&wire)
	require.Error(t, err)
	assert.Nil(t, order)
}

func TestOrderbookToWireEmptySides(t *testing.T) {
	out := OrderbookToWire(&model.Orderbook{})
	assert.NotNil(t, out.Bids)
	assert.NotNil(t, out.Asks)
	assert.Len(t, out.Bids, 0)
	assert.Len(t, out.Asks, 0)
}
