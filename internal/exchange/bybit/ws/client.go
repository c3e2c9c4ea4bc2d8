package ws

import (
	"context"
	"fmt"
	"time"

	"arbot/internal/logger"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func New(url string, log *logger.Logger) *Client {
	return &Client{
		url:          url,
		log:          log,
		stopCh:       make(chan struct{}),
		reconnectMin: 1 * time.Second,
		reconnectMax: 30 * time.Second,
		now:          time.Now,
		bids:         map[float64]float64{},
		asks:         map[float64]float64{},
	}
}

func (w *Client) Connect(ctx context.Context) error {
	w.logEntry().WithField("url", w.url).Info("Подключение к WS.")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("Не удалось подключиться к WS: %w", err)
	}

	w.conn = conn
	w.conn.SetReadLimit(readLimitSize)

	w.logEntry().Info("WS соединение установлено.")

	go w.readLoop()
	go w.pingLoop()

	return nil
}

func (w *Client) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.writeMu.Lock()
		defer w.writeMu.Unlock()
		if w.conn != nil {
			err = w.conn.Close()
		}
	})
	return err
}

func (w *Client) logEntry() *logrus.Entry {
	entry := w.log.WithComponent("bybit_ws")
	if symbol, _ := w.subscription(); symbol != "" {
		entry = entry.WithField("symbol", symbol)
	}
	return entry
}

func (w *Client) writeJSON(v any) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteJSON(v)
}

func (w *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.writeJSON(SubscribeMessage{Op: "ping"}); err != nil {
				w.logEntry().WithError(err).Debug("Не удалось отправить ping.")
			}
		}
	}
}

func (w *Client) SetClock(now func() time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.now = now
}
