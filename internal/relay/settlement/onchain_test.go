package settlement

import (
	"bytes"
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/hash"
	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/model"
	"github.com/krishishah/0xygen-Relay-sub000/pkg/errors"
)

var exchangeAddr = common.HexToAddress("0x12459c951127e0c374ff9105dda097662a027093")

// fakeChain scripts the exchange contract and the log stream.
type fakeChain struct {
	mu          sync.Mutex
	head        uint64
	logs        []types.Log
	unavailable map[common.Hash]*big.Int
	callErr     error
	lastCall    ethereum.CallMsg
}

func newFakeChain() *fakeChain {
	return &fakeChain{head: 1, unavailable: make(map[common.Hash]*big.Int)}
}

func (f *fakeChain) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCall = call
	if f.callErr != nil {
		return nil, f.callErr
	}
	h := common.BytesToHash(call.Data[4:])
	out := make([]byte, 32)
	if v, ok := f.unavailable[h]; ok {
		v.FillBytes(out)
	}
	return out, nil
}

func (f *fakeChain) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	logs := f.logs
	f.logs = nil
	return logs, nil
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeChain) setUnavailable(h common.Hash, v int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unavailable[h] = big.NewInt(v)
}

// emitFill appends a LogFill whose data trails with the order hash and
// advances the chain head so the next poll picks it up.
func (f *fakeChain) emitFill(h common.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data := make([]byte, 64)
	copy(data[32:], h.Bytes())
	f.head++
	f.logs = append(f.logs, types.Log{
		Address: exchangeAddr,
		Topics:  []common.Hash{logFillTopic},
		Data:    data,
	})
}

func chainOrder(salt, makerAmount, takerAmount int64) *model.SignedOrder {
	return &model.SignedOrder{
		Order: model.Order{
			Maker:                      common.HexToAddress("0x6ecbe1db9ef729cbe972c83fb886247691fb6beb"),
			MakerTokenAddress:          common.HexToAddress("0xe41d2489571d322189246dafa5ebde1f4699f498"),
			TakerTokenAddress:          common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"),
			ExchangeContractAddress:    exchangeAddr,
			MakerTokenAmount:           decimal.NewFromInt(makerAmount),
			TakerTokenAmount:           decimal.NewFromInt(takerAmount),
			MakerFee:                   decimal.Zero,
			TakerFee:                   decimal.Zero,
			Salt:                       decimal.NewFromInt(salt),
			ExpirationUnixTimestampSec: 2524608000,
		},
		Signature: model.ECSignature{V: 27},
	}
}

func newOnChain(t *testing.T, chain ChainBackend) *OnChainClient {
	t.Helper()
	return NewOnChainClient(chain, exchangeAddr, time.Second, 10*time.Millisecond, zaptest.NewLogger(t))
}

func TestGetRemainingFillableDerivesAmounts(t *testing.T) {
	chain := newFakeChain()
	client := newOnChain(t, chain)
	order := chainOrder(1, 200, 100)
	h, err := hash.OrderHash(&order.Order)
	require.NoError(t, err)
	chain.setUnavailable(h, 40)

	status, err := client.GetRemainingFillable(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, h, status.OrderHash)
	assert.True(t, status.IsValid)
	assert.True(t, status.RemainingTakerTokenAmount.Equal(decimal.NewFromInt(60)))
	assert.True(t, status.RemainingMakerTokenAmount.Equal(decimal.NewFromInt(120)))

	// The eth_call carries selector + order hash against the exchange.
	assert.Equal(t, exchangeAddr, *chain.lastCall.To)
	assert.True(t, bytes.Equal(chain.lastCall.Data[:4], unavailableTakerAmountSelector))
	assert.Equal(t, h, common.BytesToHash(chain.lastCall.Data[4:]))
}

func TestGetRemainingFillableRoundsMakerAmountDown(t *testing.T) {
	chain := newFakeChain()
	client := newOnChain(t, chain)
	// 100 maker for 3 taker; 1 taker unit consumed leaves 2, and
	// 2*100/3 = 66.66 truncates to 66.
	order := chainOrder(2, 100, 3)
	h, err := hash.OrderHash(&order.Order)
	require.NoError(t, err)
	chain.setUnavailable(h, 1)

	status, err := client.GetRemainingFillable(context.Background(), order)
	require.NoError(t, err)
	assert.True(t, status.RemainingTakerTokenAmount.Equal(decimal.NewFromInt(2)))
	assert.True(t, status.RemainingMakerTokenAmount.Equal(decimal.NewFromInt(66)))
}

func TestGetRemainingFillableExhaustedOrder(t *testing.T) {
	chain := newFakeChain()
	client := newOnChain(t, chain)
	order := chainOrder(3, 200, 100)
	h, err := hash.OrderHash(&order.Order)
	require.NoError(t, err)
	chain.setUnavailable(h, 100)

	status, err := client.GetRemainingFillable(context.Background(), order)
	require.NoError(t, err)
	assert.False(t, status.IsValid)
	assert.True(t, status.RemainingTakerTokenAmount.IsZero())
	assert.True(t, status.RemainingMakerTokenAmount.IsZero())
}

func TestGetRemainingFillableClampsOverfilled(t *testing.T) {
	chain := newFakeChain()
	client := newOnChain(t, chain)
	order := chainOrder(4, 200, 100)
	h, err := hash.OrderHash(&order.Order)
	require.NoError(t, err)
	// Contract reports more than the face amount.
	chain.setUnavailable(h, 150)

	status, err := client.GetRemainingFillable(context.Background(), order)
	require.NoError(t, err)
	assert.False(t, status.IsValid)
	assert.True(t, status.RemainingTakerTokenAmount.IsZero())
}

func TestGetRemainingFillableExpiredOrderIsInvalid(t *testing.T) {
	chain := newFakeChain()
	client := newOnChain(t, chain)
	order := chainOrder(5, 200, 100)
	order.ExpirationUnixTimestampSec = time.Now().Add(-time.Hour).Unix()

	status, err := client.GetRemainingFillable(context.Background(), order)
	require.NoError(t, err)
	assert.False(t, status.IsValid)
	// Full remaining amount is still reported for the expired order.
	assert.True(t, status.RemainingTakerTokenAmount.Equal(decimal.NewFromInt(100)))
}

func TestGetRemainingFillableWrapsChainErrors(t *testing.T) {
	chain := newFakeChain()
	chain.callErr = errors.New("rpc timeout")
	client := newOnChain(t, chain)

	_, err := client.GetRemainingFillable(context.Background(), chainOrder(6, 200, 100))
	var queryErr *errors.SettlementQueryError
	require.True(t, errors.As(err, &queryErr))
}

func TestWatcherNotifiesOnFillLog(t *testing.T) {
	chain := newFakeChain()
	client := newOnChain(t, chain)

	updates := make(chan *Status, 1)
	client.SubscribeToUpdates(func(_ *model.SignedOrder, status *Status) {
		updates <- status
	})

	order := chainOrder(7, 200, 100)
	h, err := hash.OrderHash(&order.Order)
	require.NoError(t, err)
	require.NoError(t, client.Track(context.Background(), order))

	require.NoError(t, client.Start(context.Background()))
	defer client.Stop()

	chain.setUnavailable(h, 100)
	chain.emitFill(h)

	select {
	case status := <-updates:
		assert.Equal(t, h, status.OrderHash)
		assert.False(t, status.IsValid)
		assert.True(t, status.RemainingTakerTokenAmount.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watcher notification")
	}
}

func TestWatcherIgnoresUntrackedOrders(t *testing.T) {
	chain := newFakeChain()
	client := newOnChain(t, chain)

	updates := make(chan *Status, 1)
	client.SubscribeToUpdates(func(_ *model.SignedOrder, status *Status) {
		updates <- status
	})

	order := chainOrder(8, 200, 100)
	h, err := hash.OrderHash(&order.Order)
	require.NoError(t, err)
	require.NoError(t, client.Track(context.Background(), order))
	client.Untrack(h)

	require.NoError(t, client.Start(context.Background()))
	defer client.Stop()

	chain.emitFill(h)

	select {
	case <-updates:
		t.Fatal("received notification for an untracked order")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRemainingMakerAmountFloors(t *testing.T) {
	order := &chainOrder(9, 7, 3).Order

	cases := []struct {
		remainingTaker int64
		want           int64
	}{
		{3, 7},
		{2, 4}, // 2*7/3 = 4.66 -> 4
		{1, 2}, // 1*7/3 = 2.33 -> 2
		{0, 0},
	}
	for _, tc := range cases {
		got := remainingMakerAmount(order, decimal.NewFromInt(tc.remainingTaker))
		assert.True(t, got.Equal(decimal.NewFromInt(tc.want)),
			"remainingTaker=%d: got %s want %d", tc.remainingTaker, got, tc.want)
	}
}
