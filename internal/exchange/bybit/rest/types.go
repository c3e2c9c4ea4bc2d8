package rest

import (
	"net/http"
	"time"

	"arbot/internal/logger"
)

type Client struct {
	baseURL     string
	accountType string
	apiKey      string
	secret      string
	httpClient  *http.Client
	log         *logger.Logger
	now         func() time.Time

	retryAttempts int
	retryBackoff  time.Duration
}

type bybitResponse[T any] struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  T      `json:"result"`
	Time    int64  `json:"time"`
}

// CoinBalance is one coin of the wallet-balance response.
type CoinBalance struct {
	Coin      string
	Wallet    float64
	Locked    float64
	Available float64
}

// OrderRequest is a spot limit order. Price and Qty are sent rounded down to the steps.
type OrderRequest struct {
	Symbol    string
	Side      string
	Price     float64
	Qty       float64
	PriceStep float64
	QtyStep   float64
	LinkID    string
}

type instrumentInfo struct {
	List []struct {
		Symbol      string `json:"symbol"`
		BaseCoin    string `json:"baseCoin"`
		QuoteCoin   string `json:"quoteCoin"`
		PriceFilter struct {
			TickSize string `json:"tickSize"`
		} `json:"priceFilter"`
		LotSizeFilter struct {
			BasePrecision  string `json:"basePrecision"`
			QuotePrecision string `json:"quotePrecision"`
			MinOrderQty    string `json:"minOrderQty"`
			MinOrderAmt    string `json:"minOrderAmt"`
			QtyStep        string `json:"qtyStep"`
		} `json:"lotSizeFilter"`
	} `json:"list"`
}

type orderInfo struct {
	OrderID     string `json:"orderId"`
	OrderLink   string `json:"orderLinkId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Qty         string `json:"qty"`
	CumExecQty  string `json:"cumExecQty"`
	LeavesQty   string `json:"leavesQty"`
	OrderStatus string `json:"orderStatus"`
	CreatedTime string `json:"createdTime"`
}

type orderList struct {
	List           []orderInfo `json:"list"`
	NextPageCursor string      `json:"nextPageCursor"`
}

type execution struct {
	OrderID   string `json:"orderId"`
	OrderLink string `json:"orderLinkId"`
	ExecID    string `json:"execId"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	ExecPrice string `json:"execPrice"`
	ExecQty   string `json:"execQty"`
	ExecValue string `json:"execValue"`
	ExecFee   string `json:"execFee"`
	ExecTime  string `json:"execTime"`
}
