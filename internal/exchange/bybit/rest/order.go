package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"arbot/internal/models"
)

// PlaceOrder sends one limit order and returns the bybit order id. It is never retried.
func (c *Client) PlaceOrder(ctx context.Context, order OrderRequest) (string, error) {
	if order.LinkID == "" {
		return "", fmt.Errorf("Пустой orderLinkId.")
	}

	body := map[string]any{
		"category":    "spot",
		"symbol":      order.Symbol,
		"side":        order.Side,
		"orderType":   "Limit",
		"qty":         formatWithStep(order.Qty, order.QtyStep),
		"price":       formatWithStep(order.Price, order.PriceStep),
		"timeInForce": "GTC",
		"orderLinkId": order.LinkID,
	}

	var resp bybitResponse[struct {
		OrderID string `json:"orderId"`
	}]

	if err := c.doRequest(ctx, http.MethodPost, "/v5/order/create", nil, body, true, &resp); err != nil {
		return "", err
	}
	return resp.Result.OrderID, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	body := map[string]any{
		"category": "spot",
		"symbol":   symbol,
		"orderId":  orderID,
	}

	_, err := withRetry(ctx, c, "cancel", func() (struct{}, error) {
		var resp bybitResponse[struct{}]
		return struct{}{}, c.doRequest(ctx, http.MethodPost, "/v5/order/cancel", nil, body, true, &resp)
	})
	return err
}

func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", symbol)
	params.Set("openOnly", "0")

	list, err := c.orders(ctx, "/v5/order/realtime", params)
	if err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(list))
	for _, item := range list {
		ord := toOrder(item)
		if ord.Status == models.OrderStatusExecuting {
			orders = append(orders, ord)
		}
	}
	return orders, nil
}

// GetOrder looks an order up among open orders first, then in the order history.
// A nil order means bybit does not know the id.
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (*models.Order, error) {
	return c.findOrder(ctx, symbol, "orderId", orderID)
}

func (c *Client) GetOrderByLinkID(ctx context.Context, symbol, linkID string) (*models.Order, error) {
	return c.findOrder(ctx, symbol, "orderLinkId", linkID)
}

func (c *Client) findOrder(ctx context.Context, symbol, key, value string) (*models.Order, error) {
	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", symbol)
	params.Set(key, value)

	for _, path := range []string{"/v5/order/realtime", "/v5/order/history"} {
		list, err := c.orders(ctx, path, params)
		if err != nil {
			return nil, err
		}
		for _, item := range list {
			if item.OrderID == value || item.OrderLink == value {
				ord := toOrder(item)
				return &ord, nil
			}
		}
	}
	return nil, nil
}

// GetExecutions returns the account fills newest first. Empty orderID means all orders;
// a zero since means no lower bound.
func (c *Client) GetExecutions(ctx context.Context, symbol, orderID string, since time.Time) ([]models.Trade, error) {
	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", symbol)
	params.Set("limit", "100")
	if orderID != "" {
		params.Set("orderId", orderID)
	}
	if !since.IsZero() {
		params.Set("startTime", strconv.FormatInt(since.UnixMilli(), 10))
	}

	type executions struct {
		List []execution `json:"list"`
	}

	resp, err := withRetry(ctx, c, "executions", func() (bybitResponse[executions], error) {
		var resp bybitResponse[executions]
		err := c.doRequest(ctx, http.MethodGet, "/v5/execution/list", params, nil, true, &resp)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	fills := make([]models.Trade, 0, len(resp.Result.List))
	for _, item := range resp.Result.List {
		price, _ := strconv.ParseFloat(item.ExecPrice, 64)
		qty, _ := strconv.ParseFloat(item.ExecQty, 64)
		amount, _ := parseFloatOrZero(item.ExecValue)
		if amount == 0 {
			amount = price * qty
		}
		fee, _ := parseFloatOrZero(item.ExecFee)

		fills = append(fills, models.Trade{
			ID:        item.ExecID,
			OrderID:   item.OrderID,
			Symbol:    item.Symbol,
			Side:      ToSide(item.Side),
			Price:     price,
			Qty:       qty,
			Amount:    amount,
			Fee:       fee,
			Timestamp: time.UnixMilli(parseMillis(item.ExecTime)),
		})
	}
	sort.SliceStable(fills, func(i, j int) bool { return fills[i].Timestamp.After(fills[j].Timestamp) })
	return fills, nil
}

func (c *Client) orders(ctx context.Context, path string, params url.Values) ([]orderInfo, error) {
	resp, err := withRetry(ctx, c, path, func() (bybitResponse[orderList], error) {
		var resp bybitResponse[orderList]
		err := c.doRequest(ctx, http.MethodGet, path, params, nil, true, &resp)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return resp.Result.List, nil
}

func toOrder(item orderInfo) models.Order {
	price, _ := strconv.ParseFloat(item.Price, 64)
	qty, _ := strconv.ParseFloat(item.Qty, 64)

	filled, err := strconv.ParseFloat(item.CumExecQty, 64)
	if err != nil {
		leaves, _ := strconv.ParseFloat(item.LeavesQty, 64)
		filled = qty - leaves
	}

	ord := models.Order{
		ID:        item.OrderID,
		LinkID:    item.OrderLink,
		Symbol:    item.Symbol,
		Side:      ToSide(item.Side),
		Price:     price,
		Qty:       qty,
		FilledQty: filled,
		Status:    toStatus(item.OrderStatus),
	}
	if ms := parseMillis(item.CreatedTime); ms > 0 {
		ord.CreateTime = time.UnixMilli(ms)
	}
	return ord
}

func toStatus(status string) models.OrderStatus {
	switch status {
	case "Filled":
		return models.OrderStatusCompleted
	case "Cancelled", "PartiallyFilledCanceled", "Rejected", "Deactivated":
		return models.OrderStatusCancelled
	default:
		return models.OrderStatusExecuting
	}
}

func ToSide(side string) models.OrderSide {
	if strings.EqualFold(side, "Sell") {
		return models.OrderSideSell
	}
	return models.OrderSideBuy
}

func FromSide(side models.OrderSide) string {
	if side == models.OrderSideSell {
		return "Sell"
	}
	return "Buy"
}
