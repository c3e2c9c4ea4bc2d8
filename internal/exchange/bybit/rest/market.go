package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"arbot/internal/exchange"
	"arbot/internal/models"
)

func (c *Client) GetInstrumentRules(ctx context.Context, symbol string) (exchange.InstrumentRules, error) {
	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", symbol)

	resp, err := withRetry(ctx, c, "instruments-info", func() (bybitResponse[instrumentInfo], error) {
		var resp bybitResponse[instrumentInfo]
		err := c.doRequest(ctx, http.MethodGet, "/v5/market/instruments-info", params, nil, false, &resp)
		return resp, err
	})
	if err != nil {
		return exchange.InstrumentRules{}, err
	}

	if len(resp.Result.List) == 0 {
		return exchange.InstrumentRules{}, fmt.Errorf("Торговая пара не найдена: %s", symbol)
	}

	info := resp.Result.List[0]

	tick, err := strconv.ParseFloat(info.PriceFilter.TickSize, 64)
	if err != nil {
		return exchange.InstrumentRules{}, fmt.Errorf("Некорректное значение tickSize=%q: %w", info.PriceFilter.TickSize, err)
	}

	lot, err := parseFloatOrZero(info.LotSizeFilter.QtyStep)
	if err != nil {
		return exchange.InstrumentRules{}, fmt.Errorf("Некорректное значение qtyStep=%q: %w", info.LotSizeFilter.QtyStep, err)
	}

	if lot == 0 {
		lot, err = parseFloatOrZero(info.LotSizeFilter.BasePrecision)
		if err != nil {
			return exchange.InstrumentRules{}, fmt.Errorf("Некорректное значение basePrecision=%q: %w", info.LotSizeFilter.BasePrecision, err)
		}
	}

	if lot == 0 {
		return exchange.InstrumentRules{}, fmt.Errorf("Не удалось определить lot size для торговой пары: %s", symbol)
	}

	minQty, err := parseFloatOrZero(info.LotSizeFilter.MinOrderQty)
	if err != nil {
		return exchange.InstrumentRules{}, fmt.Errorf("Некорректное значение minOrderQty=%q: %w", info.LotSizeFilter.MinOrderQty, err)
	}

	minNotional, err := parseFloatOrZero(info.LotSizeFilter.MinOrderAmt)
	if err != nil {
		return exchange.InstrumentRules{}, fmt.Errorf("Некорректное значение minOrderAmt=%q: %w", info.LotSizeFilter.MinOrderAmt, err)
	}

	return exchange.InstrumentRules{
		TickSize:    tick,
		LotSize:     lot,
		MinQty:      minQty,
		MinNotional: minNotional,
		BaseCoin:    info.BaseCoin,
		QuoteCoin:   info.QuoteCoin,
	}, nil
}

func (c *Client) GetOrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, error) {
	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))

	type orderbook struct {
		Symbol string      `json:"s"`
		Bids   [][2]string `json:"b"`
		Asks   [][2]string `json:"a"`
		TS     int64       `json:"ts"`
	}

	resp, err := withRetry(ctx, c, "orderbook", func() (bybitResponse[orderbook], error) {
		var resp bybitResponse[orderbook]
		err := c.doRequest(ctx, http.MethodGet, "/v5/market/orderbook", params, nil, false, &resp)
		return resp, err
	})
	if err != nil {
		return models.OrderBook{}, err
	}

	book := models.OrderBook{
		Symbol:    symbol,
		Bids:      ParseLevels(resp.Result.Bids),
		Asks:      ParseLevels(resp.Result.Asks),
		Timestamp: time.UnixMilli(resp.Result.TS),
	}
	sort.Slice(book.Bids, func(i, j int) bool { return book.Bids[i].Price > book.Bids[j].Price })
	sort.Slice(book.Asks, func(i, j int) bool { return book.Asks[i].Price < book.Asks[j].Price })
	return book, nil
}

// GetRecentTrades returns public trades newest first.
func (c *Client) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))

	type recentTrades struct {
		List []struct {
			ExecID string `json:"execId"`
			Symbol string `json:"symbol"`
			Price  string `json:"price"`
			Size   string `json:"size"`
			Side   string `json:"side"`
			Time   string `json:"time"`
		} `json:"list"`
	}

	resp, err := withRetry(ctx, c, "recent-trade", func() (bybitResponse[recentTrades], error) {
		var resp bybitResponse[recentTrades]
		err := c.doRequest(ctx, http.MethodGet, "/v5/market/recent-trade", params, nil, false, &resp)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	trades := make([]models.Trade, 0, len(resp.Result.List))
	for _, item := range resp.Result.List {
		price, _ := strconv.ParseFloat(item.Price, 64)
		qty, _ := strconv.ParseFloat(item.Size, 64)
		trades = append(trades, models.Trade{
			ID:        item.ExecID,
			Symbol:    item.Symbol,
			Side:      ToSide(item.Side),
			Price:     price,
			Qty:       qty,
			Amount:    price * qty,
			Timestamp: time.UnixMilli(parseMillis(item.Time)),
		})
	}
	sort.SliceStable(trades, func(i, j int) bool { return trades[i].Timestamp.After(trades[j].Timestamp) })
	return trades, nil
}

// ParseLevels converts bybit [price, size] pairs, skipping malformed and empty levels.
func ParseLevels(raw [][2]string) []models.Level {
	levels := make([]models.Level, 0, len(raw))
	for _, pair := range raw {
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseFloat(pair[1], 64)
		if err != nil || qty <= 0 {
			continue
		}
		levels = append(levels, models.Level{Price: price, Qty: qty})
	}
	return levels
}
