package ws

import (
	"context"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

func (w *Client) readLoop() {
	w.logEntry().Debug("readLoop запущен.")

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			select {
			case <-w.stopCh:
				return
			default:
			}
			w.logEntry().WithError(err).Warn("Ошибка чтения WS.")

			if !w.reconnect() {
				return
			}
			continue
		}

		w.handle(data)
	}
}

func (w *Client) handle(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		w.logEntry().WithError(err).Warn("Не удалось разобрать WS сообщение.")
		return
	}

	switch {
	case strings.HasPrefix(msg.Topic, "orderbook."):
		w.handleOrderBook(msg)
	case strings.HasPrefix(msg.Topic, "publicTrade."):
		w.handleTrades(msg)
	default:
	}
}

func (w *Client) reconnect() bool {
	backoff := w.reconnectMin
	w.resetBook()

	for {
		w.logEntry().Info("Попытка переподключения к WS.")

		select {
		case <-w.stopCh:
			return false
		case <-time.After(backoff):
		}

		conn, _, err := websocket.DefaultDialer.Dial(w.url, nil)
		if err != nil {
			w.logEntry().WithError(err).Warn("Не удалось переподключиться к WS.")
			backoff = w.nextBackoff(backoff)
			continue
		}

		w.writeMu.Lock()
		if w.conn != nil {
			_ = w.conn.Close()
		}
		w.conn = conn
		w.conn.SetReadLimit(readLimitSize)
		w.writeMu.Unlock()

		if symbol, topics := w.subscription(); symbol != "" {
			if err := w.SubscribeToTopics(context.Background(), symbol, topics); err != nil {
				w.logEntry().WithError(err).Warn("Не удалось повторно подписаться на WS.")
				backoff = w.nextBackoff(backoff)
				continue
			}
		}

		w.logEntry().Info("WS переподключён и подписки восстановлены.")
		return true
	}
}

func (w *Client) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > w.reconnectMax {
		return w.reconnectMax
	}
	return next
}
