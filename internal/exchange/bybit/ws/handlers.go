package ws

import (
	"sort"
	"strconv"
	"time"

	"arbot/internal/exchange/bybit/rest"
	"arbot/internal/models"

	"github.com/goccy/go-json"
)

func (w *Client) handleOrderBook(msg Message) {
	var data bookData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		w.logEntry().WithError(err).Warn("Не удалось разобрать orderbook.")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	switch msg.Type {
	case "snapshot":
		w.bids = map[float64]float64{}
		w.asks = map[float64]float64{}
		w.synced = true
	case "delta":
		if !w.synced {
			return
		}
	default:
		return
	}

	applyLevels(w.bids, data.Bids)
	applyLevels(w.asks, data.Asks)
	w.bookTime = w.now()
}

func (w *Client) handleTrades(msg Message) {
	var data []tradeData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		w.logEntry().WithError(err).Warn("Не удалось разобрать publicTrade.")
		return
	}

	trades := make([]models.Trade, 0, len(data))
	for _, item := range data {
		price, err := strconv.ParseFloat(item.Price, 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseFloat(item.Size, 64)
		if err != nil {
			continue
		}
		trades = append(trades, models.Trade{
			ID:        item.ID,
			Symbol:    item.Symbol,
			Side:      rest.ToSide(item.Side),
			Price:     price,
			Qty:       qty,
			Amount:    price * qty,
			Timestamp: time.UnixMilli(item.Time),
		})
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.trades = append(w.trades, trades...)
	sort.SliceStable(w.trades, func(i, j int) bool { return w.trades[i].Timestamp.After(w.trades[j].Timestamp) })
	if len(w.trades) > tradesToKeep {
		w.trades = w.trades[:tradesToKeep]
	}
	w.tradeTime = w.now()
}

// Book returns a copy of the cached order book and whether a snapshot has been received.
func (w *Client) Book() (models.OrderBook, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.synced {
		return models.OrderBook{}, false
	}

	book := models.OrderBook{
		Symbol:    w.symbol,
		Bids:      sortedLevels(w.bids, true),
		Asks:      sortedLevels(w.asks, false),
		Timestamp: w.bookTime,
	}
	return book, true
}

// Trades returns the cached public trades newest first and when they were last updated.
func (w *Client) Trades() ([]models.Trade, time.Time) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]models.Trade, len(w.trades))
	copy(out, w.trades)
	return out, w.tradeTime
}

func (w *Client) resetBook() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.bids = map[float64]float64{}
	w.asks = map[float64]float64{}
	w.synced = false
}

func applyLevels(side map[float64]float64, raw [][2]string) {
	for _, pair := range raw {
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			continue
		}
		if qty <= 0 {
			delete(side, price)
			continue
		}
		side[price] = qty
	}
}

func sortedLevels(side map[float64]float64, descending bool) []models.Level {
	levels := make([]models.Level, 0, len(side))
	for price, qty := range side {
		levels = append(levels, models.Level{Price: price, Qty: qty})
	}
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})
	if len(levels) > bookDepth {
		levels = levels[:bookDepth]
	}
	return levels
}
