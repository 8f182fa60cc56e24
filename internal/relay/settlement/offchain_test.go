package settlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/hash"
	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/model"
	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/schema"
	"github.com/krishishah/0xygen-Relay-sub000/pkg/errors"
)

func TestOffChainGetRemainingFillable(t *testing.T) {
	order := chainOrder(20, 200, 100)
	h, err := hash.OrderHash(&order.Order)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var wire schema.SignedOrderSchema
		require.NoError(t, json.NewDecoder(r.Body).Decode(&wire))
		assert.Equal(t, order.Maker.Hex(), wire.Maker)
		assert.Equal(t, "100", wire.TakerTokenAmount)

		json.NewEncoder(w).Encode(statusResponse{
			OrderHash:                         h.Hex(),
			IsValid:                           true,
			RemainingFillableMakerTokenAmount: "120",
			RemainingFillableTakerTokenAmount: "60",
		})
	}))
	defer srv.Close()

	client := NewOffChainClient(srv.URL, "", time.Second, zaptest.NewLogger(t))
	status, err := client.GetRemainingFillable(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, h, status.OrderHash)
	assert.True(t, status.IsValid)
	assert.True(t, status.RemainingMakerTokenAmount.Equal(decimal.NewFromInt(120)))
	assert.True(t, status.RemainingTakerTokenAmount.Equal(decimal.NewFromInt(60)))
}

func TestOffChainStatusErrorsWrapped(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("{not json"))
			},
		},
		{
			name: "non-numeric amount",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(statusResponse{
					IsValid:                           true,
					RemainingFillableMakerTokenAmount: "abc",
					RemainingFillableTakerTokenAmount: "60",
				})
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			client := NewOffChainClient(srv.URL, "", time.Second, zaptest.NewLogger(t))
			_, err := client.GetRemainingFillable(context.Background(), chainOrder(21, 200, 100))
			var queryErr *errors.SettlementQueryError
			require.True(t, errors.As(err, &queryErr))
		})
	}
}

func TestOffChainUnreachableService(t *testing.T) {
	client := NewOffChainClient("http://127.0.0.1:1", "", 100*time.Millisecond, zaptest.NewLogger(t))
	_, err := client.GetRemainingFillable(context.Background(), chainOrder(22, 200, 100))
	var queryErr *errors.SettlementQueryError
	require.True(t, errors.As(err, &queryErr))
}

func TestOffChainFeedDispatchesUpdates(t *testing.T) {
	order := chainOrder(23, 200, 100)
	h, err := hash.OrderHash(&order.Order)
	require.NoError(t, err)

	push := feedMessage{
		SignedOrder:                       schema.SignedOrderToWire(order),
		IsValid:                           true,
		RemainingFillableMakerTokenAmount: "80",
		RemainingFillableTakerTokenAmount: "40",
	}

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		require.NoError(t, conn.WriteJSON(push))
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	feedURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client := NewOffChainClient("http://unused", feedURL, time.Second, zaptest.NewLogger(t))

	type update struct {
		order  *model.SignedOrder
		status *Status
	}
	updates := make(chan update, 1)
	client.SubscribeToUpdates(func(o *model.SignedOrder, s *Status) {
		updates <- update{order: o, status: s}
	})

	require.NoError(t, client.Start(context.Background()))
	defer client.Stop()

	select {
	case got := <-updates:
		// Hash recomputed from the embedded order, never taken on trust.
		assert.Equal(t, h, got.status.OrderHash)
		assert.Equal(t, order.Maker, got.order.Maker)
		assert.True(t, got.status.IsValid)
		assert.True(t, got.status.RemainingMakerTokenAmount.Equal(decimal.NewFromInt(80)))
		assert.True(t, got.status.RemainingTakerTokenAmount.Equal(decimal.NewFromInt(40)))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed update")
	}
}

func TestOffChainFeedIgnoresMalformedMessages(t *testing.T) {
	client := NewOffChainClient("http://unused", "", time.Second, zaptest.NewLogger(t))

	updates := make(chan *Status, 1)
	client.SubscribeToUpdates(func(_ *model.SignedOrder, s *Status) { updates <- s })

	client.dispatch([]byte("{not json"))
	client.dispatch([]byte(`{"signedOrder":{"maker":"nope"}}`))

	select {
	case <-updates:
		t.Fatal("malformed feed message reached a handler")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOffChainTrackUntrackAreNoOps(t *testing.T) {
	client := NewOffChainClient("http://unused", "", time.Second, zaptest.NewLogger(t))
	order := chainOrder(24, 200, 100)
	require.NoError(t, client.Track(context.Background(), order))
	h, err := hash.OrderHash(&order.Order)
	require.NoError(t, err)
	client.Untrack(h)
}

func TestOffChainStartWithoutFeedURL(t *testing.T) {
	client := NewOffChainClient("http://unused", "", time.Second, zaptest.NewLogger(t))
	require.NoError(t, client.Start(context.Background()))
	client.Stop()
}
