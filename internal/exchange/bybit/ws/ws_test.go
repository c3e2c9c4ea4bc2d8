package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"arbot/internal/logger"
	"arbot/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderBookSnapshotAndDelta(t *testing.T) {
	w := New("", logger.Discard())
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w.SetClock(func() time.Time { return now })

	w.handle([]byte(`{"topic":"orderbook.50.BTCUSDT","type":"delta","ts":1,"data":{"s":"BTCUSDT","b":[["1","1"]],"a":[]}}`))
	_, ok := w.Book()
	assert.False(t, ok, "delta before snapshot is ignored")

	w.handle([]byte(`{"topic":"orderbook.50.BTCUSDT","type":"snapshot","ts":1,"data":{"s":"BTCUSDT",
		"b":[["100","1"],["99","2"]],"a":[["101","1"],["102","3"]],"u":1}}`))
	w.handle([]byte(`{"topic":"orderbook.50.BTCUSDT","type":"delta","ts":2,"data":{"s":"BTCUSDT",
		"b":[["100","0"],["100.5","4"]],"a":[["101","2"]],"u":2}}`))

	book, ok := w.Book()
	require.True(t, ok)
	assert.Equal(t, []models.Level{{Price: 100.5, Qty: 4}, {Price: 99, Qty: 2}}, book.Bids)
	assert.Equal(t, []models.Level{{Price: 101, Qty: 2}, {Price: 102, Qty: 3}}, book.Asks)
	assert.Equal(t, now, book.Timestamp)

	w.resetBook()
	_, ok = w.Book()
	assert.False(t, ok)
}

func TestPublicTradesNewestFirst(t *testing.T) {
	w := New("", logger.Discard())

	w.handle([]byte(`{"topic":"publicTrade.BTCUSDT","type":"snapshot","ts":1,"data":[
		{"T":1700000001000,"s":"BTCUSDT","S":"Buy","v":"0.1","p":"100","i":"a"}]}`))
	w.handle([]byte(`{"topic":"publicTrade.BTCUSDT","type":"snapshot","ts":2,"data":[
		{"T":1700000003000,"s":"BTCUSDT","S":"Sell","v":"0.2","p":"101","i":"c"},
		{"T":1700000002000,"s":"BTCUSDT","S":"Buy","v":"bad","p":"101","i":"b"}]}`))

	trades, updated := w.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, "c", trades[0].ID)
	assert.Equal(t, models.OrderSideSell, trades[0].Side)
	assert.InDelta(t, 20.2, trades[0].Amount, 1e-9)
	assert.Equal(t, "a", trades[1].ID)
	assert.False(t, updated.IsZero())
}

func TestConnectSubscribesAndCaches(t *testing.T) {
	subscribed := make(chan SubscribeMessage, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var msg SubscribeMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		subscribed <- msg

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"topic":"orderbook.50.BTCUSDT","type":"snapshot","ts":1,
			"data":{"s":"BTCUSDT","b":[["100","1"]],"a":[["101","1"]],"u":1}}`))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	w := New("ws"+strings.TrimPrefix(srv.URL, "http"), logger.Discard())
	require.NoError(t, w.Connect(context.Background()))
	defer w.Close()

	require.NoError(t, w.SubscribeMarket(context.Background(), "BTCUSDT"))

	select {
	case msg := <-subscribed:
		assert.Equal(t, "subscribe", msg.Op)
		assert.Equal(t, []string{"orderbook.50.BTCUSDT", "publicTrade.BTCUSDT"}, msg.Args)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe not received")
	}

	require.Eventually(t, func() bool {
		book, ok := w.Book()
		return ok && len(book.Bids) == 1 && len(book.Asks) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReconnectRestoresSubscription(t *testing.T) {
	subscribed := make(chan SubscribeMessage, 4)
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		first := conns.Add(1) == 1

		var msg SubscribeMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		subscribed <- msg
		if first {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	w := New("ws"+strings.TrimPrefix(srv.URL, "http"), logger.Discard())
	w.reconnectMin = 10 * time.Millisecond
	require.NoError(t, w.Connect(context.Background()))
	defer w.Close()
	require.NoError(t, w.SubscribeMarket(context.Background(), "ETHUSDT"))

	want := []string{"orderbook.50.ETHUSDT", "publicTrade.ETHUSDT"}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-subscribed:
			assert.Equal(t, want, msg.Args)
		case <-time.After(3 * time.Second):
			t.Fatalf("subscribe %d not received", i+1)
		}
	}
	assert.Equal(t, int32(2), conns.Load())
}
