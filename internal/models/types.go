package models

import "time"

type OrderSide string
type OrderStatus string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"

	OrderStatusExecuting OrderStatus = "EXECUTING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

type Order struct {
	ID         string      `json:"id"`
	LinkID     string      `json:"link_id"`
	Symbol     string      `json:"symbol"`
	Side       OrderSide   `json:"side"`
	Price      float64     `json:"price"`
	Qty        float64     `json:"qty"`
	FilledQty  float64     `json:"filled_qty"`
	Status     OrderStatus `json:"status"`
	CreateTime time.Time   `json:"create_time"`
}

// Trade is one execution. Qty is in crypto, Amount in the quote currency of the venue.
type Trade struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      OrderSide `json:"side"`
	Price     float64   `json:"price"`
	Qty       float64   `json:"qty"`
	Amount    float64   `json:"amount"`
	Fee       float64   `json:"fee"`
	Timestamp time.Time `json:"timestamp"`
}

type Level struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// OrderBook keeps bids sorted best (highest) first and asks best (lowest) first.
type OrderBook struct {
	Symbol    string    `json:"symbol"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
	Timestamp time.Time `json:"timestamp"`
}

type CurrencyBalance struct {
	Total     float64 `json:"total"`
	Reserved  float64 `json:"reserved"`
	Available float64 `json:"available"`
}

// Balance of one venue. Fee is a percentage.
type Balance struct {
	Crypto CurrencyBalance `json:"crypto"`
	Fiat   CurrencyBalance `json:"fiat"`
	Fee    float64         `json:"fee"`
}
