package ws

import (
	"context"
	"fmt"
)

// SubscribeMarket subscribes to the order book and public trades of symbol.
func (w *Client) SubscribeMarket(ctx context.Context, symbol string) error {
	return w.SubscribeToTopics(ctx, symbol, []string{
		fmt.Sprintf("orderbook.%d.%s", bookDepth, symbol),
		"publicTrade." + symbol,
	})
}

func (w *Client) SubscribeToTopics(ctx context.Context, symbol string, topics []string) error {
	w.subMu.Lock()
	w.symbol = symbol
	w.topics = topics
	w.subMu.Unlock()

	msg := SubscribeMessage{
		Op:   "subscribe",
		Args: topics,
	}

	if err := w.writeJSON(msg); err != nil {
		return fmt.Errorf("Не удалось подписаться на WS: %w", err)
	}
	return nil
}

func (w *Client) subscription() (string, []string) {
	w.subMu.RLock()
	defer w.subMu.RUnlock()
	return w.symbol, w.topics
}
