package bybit

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"arbot/internal/exchange"
	"arbot/internal/logger"
	"arbot/internal/models"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const instruments = `{"retCode":0,"result":{"list":[{"symbol":"BTCUSDT","baseCoin":"BTC","quoteCoin":"USDT",
	"priceFilter":{"tickSize":"0.01"},
	"lotSizeFilter":{"basePrecision":"0.000001","minOrderQty":"0.0001","minOrderAmt":"5","qtyStep":""}}]}}`

type fakeBybit struct {
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	created  []map[string]any
}

func newVenue(t *testing.T, handlers map[string]http.HandlerFunc) (*Venue, *fakeBybit) {
	t.Helper()
	fake := &fakeBybit{handlers: map[string]http.HandlerFunc{
		"/v5/market/instruments-info": func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, instruments)
		},
	}}
	for path, h := range handlers {
		fake.handlers[path] = h
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v5/order/create" {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			fake.mu.Lock()
			fake.created = append(fake.created, body)
			fake.mu.Unlock()
		}
		h, ok := fake.handlers[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	v := New(Config{Name: "taker", BaseURL: srv.URL, Symbol: "BTCUSDT", Fee: 0.1}, logger.Discard())
	v.rest.SetRetry(2, time.Millisecond)
	require.NoError(t, v.Start(context.Background()))
	return v, fake
}

func reply(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, body)
	}
}

func TestStartLoadsRules(t *testing.T) {
	v, _ := newVenue(t, nil)

	rules, err := v.Rules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, exchange.InstrumentRules{
		TickSize:    0.01,
		LotSize:     0.000001,
		MinQty:      0.0001,
		MinNotional: 5,
		BaseCoin:    "BTC",
		QuoteCoin:   "USDT",
	}, rules)

	assert.True(t, v.EnoughOrderSize(0.001, 30000))
	assert.False(t, v.EnoughOrderSize(0.00005, 30000))
	assert.False(t, v.EnoughOrderSize(0.0001, 30000), "notional 3 is below 5")
}

func TestBalanceMapsCoins(t *testing.T) {
	v, _ := newVenue(t, map[string]http.HandlerFunc{
		"/v5/account/wallet-balance": reply(`{"retCode":0,"result":{"list":[{"coin":[
			{"coin":"BTC","walletBalance":"2","locked":"0.5"},
			{"coin":"USDT","walletBalance":"1000","locked":"100","availableToWithdraw":"900"}]}]}}`),
	})

	bal, err := v.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.CurrencyBalance{Total: 2, Reserved: 0.5, Available: 1.5}, bal.Crypto)
	assert.Equal(t, models.CurrencyBalance{Total: 1000, Reserved: 100, Available: 900}, bal.Fiat)
	assert.Equal(t, 0.1, bal.Fee)
}

func TestSendOrderRoundsAndReturnsOrder(t *testing.T) {
	v, fake := newVenue(t, map[string]http.HandlerFunc{
		"/v5/order/create": reply(`{"retCode":0,"result":{"orderId":"o-1"}}`),
	})
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v.SetClock(func() time.Time { return now })

	ord, err := v.SendOrder(context.Background(), models.OrderSideBuy, 30000.129, 0.01234567)
	require.NoError(t, err)
	require.NotNil(t, ord)

	assert.Equal(t, "o-1", ord.ID)
	assert.Equal(t, 30000.12, ord.Price)
	assert.InDelta(t, 0.012345, ord.Qty, 1e-12)
	assert.Equal(t, now, ord.CreateTime)
	assert.Len(t, ord.LinkID, 36)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.created, 1)
	assert.Equal(t, "Buy", fake.created[0]["side"])
	assert.Equal(t, "0.012345", fake.created[0]["qty"])
	assert.Equal(t, ord.LinkID, fake.created[0]["orderLinkId"])
}

func TestSendOrderRefusalIsRejected(t *testing.T) {
	v, _ := newVenue(t, map[string]http.HandlerFunc{
		"/v5/order/create": reply(`{"retCode":170131,"retMsg":"Insufficient balance."}`),
	})

	ord, err := v.SendOrder(context.Background(), models.OrderSideSell, 30000, 1)
	assert.Nil(t, ord)
	assert.ErrorIs(t, err, exchange.ErrOrderRejected)
}

func TestSendOrderTransportFailureIsAmbiguous(t *testing.T) {
	v, _ := newVenue(t, map[string]http.HandlerFunc{
		"/v5/order/create": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusGatewayTimeout)
		},
	})

	ord, err := v.SendOrder(context.Background(), models.OrderSideSell, 30000, 1)
	assert.Nil(t, ord)
	require.Error(t, err)
	assert.False(t, errors.Is(err, exchange.ErrOrderRejected))
}

func TestSendOrderDuplicateLinkFindsOrder(t *testing.T) {
	v, _ := newVenue(t, map[string]http.HandlerFunc{
		"/v5/order/create": reply(`{"retCode":170141,"retMsg":"Duplicate clientOrderId."}`),
		"/v5/order/realtime": func(w http.ResponseWriter, r *http.Request) {
			link := r.URL.Query().Get("orderLinkId")
			io.WriteString(w, `{"retCode":0,"result":{"list":[{"orderId":"o-9","orderLinkId":"`+link+`","symbol":"BTCUSDT",
				"side":"Buy","price":"30000","qty":"0.01","cumExecQty":"0","orderStatus":"New"}]}}`)
		},
	})

	ord, err := v.SendOrder(context.Background(), models.OrderSideBuy, 30000, 0.01)
	require.NoError(t, err)
	assert.Equal(t, "o-9", ord.ID)
}

func TestOrderUnknown(t *testing.T) {
	v, _ := newVenue(t, map[string]http.HandlerFunc{
		"/v5/order/realtime": reply(`{"retCode":0,"result":{"list":[]}}`),
		"/v5/order/history":  reply(`{"retCode":0,"result":{"list":[]}}`),
	})

	_, err := v.Order(context.Background(), "o-404")
	assert.ErrorIs(t, err, exchange.ErrUnknownOrder)
}

func TestCancelOrderAlreadyGone(t *testing.T) {
	v, _ := newVenue(t, map[string]http.HandlerFunc{
		"/v5/order/cancel": reply(`{"retCode":170213,"retMsg":"Order does not exist."}`),
	})

	assert.NoError(t, v.CancelOrder(context.Background(), models.Order{ID: "o-1"}))
}

func TestFindLostMatchesRoundedOrder(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v, _ := newVenue(t, map[string]http.HandlerFunc{
		"/v5/order/realtime": reply(`{"retCode":0,"result":{"list":[{"orderId":"o-7","orderLinkId":"l-7","symbol":"BTCUSDT",
			"side":"Sell","price":"30000.12","qty":"0.012345","cumExecQty":"0","orderStatus":"New","createdTime":"` +
			strconv.FormatInt(created.UnixMilli(), 10) + `"}]}}`),
		"/v5/execution/list": reply(`{"retCode":0,"result":{"list":[]}}`),
	})

	found, err := v.FindLost(context.Background(), models.OrderSideSell, 30000.129, 0.01234567, created.Add(-time.Minute))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "o-7", found.ID)
}

func TestAmountAndQuantity(t *testing.T) {
	v, _ := newVenue(t, map[string]http.HandlerFunc{
		"/v5/execution/list": reply(`{"retCode":0,"result":{"list":[
			{"orderId":"o-1","execId":"e-1","symbol":"BTCUSDT","side":"Buy","execPrice":"100","execQty":"1","execValue":"100","execTime":"1"},
			{"orderId":"o-1","execId":"e-2","symbol":"BTCUSDT","side":"Buy","execPrice":"102","execQty":"0.5","execValue":"51","execTime":"2"}]}}`),
	})

	amount, qty, err := v.AmountAndQuantity(context.Background(), "o-1")
	require.NoError(t, err)
	assert.InDelta(t, 151, amount, 1e-9)
	assert.InDelta(t, 1.5, qty, 1e-9)
}

func TestMarketFallsBackToREST(t *testing.T) {
	v, _ := newVenue(t, map[string]http.HandlerFunc{
		"/v5/market/orderbook": reply(`{"retCode":0,"result":{"s":"BTCUSDT","b":[["100","1"]],"a":[["101","2"]],"ts":1700000000000}}`),
		"/v5/market/recent-trade": reply(`{"retCode":0,"result":{"list":[
			{"execId":"t-1","symbol":"BTCUSDT","price":"100","size":"0.5","side":"Buy","time":"1700000000000"}]}}`),
	})

	book, err := v.Market(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Level{{Price: 100, Qty: 1}}, book.Bids)
	assert.Equal(t, []models.Level{{Price: 101, Qty: 2}}, book.Asks)

	trades, err := v.Transactions(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, 50.0, trades[0].Amount)
}
