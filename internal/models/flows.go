package models

import "time"

type FlowStatus string
type OrderRole string
type CurrencyType string

const (
	FlowStatusExecuting FlowStatus = "executing"
	FlowStatusSettling  FlowStatus = "settling"
	FlowStatusFinalised FlowStatus = "finalised"

	RoleFirstTip  OrderRole = "first_tip"
	RoleSecondTip OrderRole = "second_tip"
	RoleSupport   OrderRole = "support"
	RoleInformant OrderRole = "informant"
	RoleFinal     OrderRole = "final"

	CurrencyFiat   CurrencyType = "fiat"
	CurrencyCrypto CurrencyType = "crypto"
)

func (s FlowStatus) rank() int {
	switch s {
	case FlowStatusExecuting:
		return 0
	case FlowStatusSettling:
		return 1
	case FlowStatusFinalised:
		return 2
	default:
		return -1
	}
}

// CanAdvanceTo reports whether a record in status s may move to next. Statuses never go back.
func (s FlowStatus) CanAdvanceTo(next FlowStatus) bool {
	return next.rank() >= 0 && next.rank() >= s.rank()
}

// OpeningFlow is one laddered set of maker orders. Side is the maker side.
// ValueToUse is fiat for buy flows and crypto for sell flows.
type OpeningFlow struct {
	ID                    int64      `json:"id"`
	Side                  OrderSide  `json:"side"`
	Price                 float64    `json:"price"`
	ValueToUse            float64    `json:"value_to_use"`
	SuggestedClosingPrice float64    `json:"suggested_closing_price"`
	Status                FlowStatus `json:"status"`
	CreatedAt             time.Time  `json:"created_at"`
}

type OpeningOrder struct {
	ID        int64      `json:"id"`
	FlowID    int64      `json:"flow_id"`
	OrderID   string     `json:"order_id"`
	Role      OrderRole  `json:"role"`
	Price     float64    `json:"price"`
	Amount    float64    `json:"amount"`
	Qty       float64    `json:"qty"`
	Status    FlowStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// OpenPosition is a maker fill booked against an opening flow. ClosingFlowID is zero until
// a closing flow claims it.
type OpenPosition struct {
	ID                    int64     `json:"id"`
	Side                  OrderSide `json:"side"`
	TransactionID         string    `json:"transaction_id"`
	OrderID               string    `json:"order_id"`
	OpeningFlowID         int64     `json:"opening_flow_id"`
	ClosingFlowID         int64     `json:"closing_flow_id"`
	Price                 float64   `json:"price"`
	Amount                float64   `json:"amount"`
	Qty                   float64   `json:"qty"`
	SuggestedClosingPrice float64   `json:"suggested_closing_price"`
	CreatedAt             time.Time `json:"created_at"`
}

// ClosingFlow offloads open positions on the taker. Side is the side of the positions it closes.
type ClosingFlow struct {
	ID           int64     `json:"id"`
	Side         OrderSide `json:"side"`
	DesiredPrice float64   `json:"desired_price"`
	Qty          float64   `json:"qty"`
	Amount       float64   `json:"amount"`
	Done         bool      `json:"done"`
	CryptoProfit float64   `json:"crypto_profit"`
	FiatProfit   float64   `json:"fiat_profit"`
	FxRate       float64   `json:"fx_rate"`
	CreatedAt    time.Time `json:"created_at"`
}

// ClosePosition is one taker order of a closing flow. Amount and Qty are meaningful only once Filled.
type ClosePosition struct {
	ID        int64     `json:"id"`
	FlowID    int64     `json:"flow_id"`
	OrderID   string    `json:"order_id"`
	Amount    float64   `json:"amount"`
	Qty       float64   `json:"qty"`
	Filled    bool      `json:"filled"`
	CreatedAt time.Time `json:"created_at"`
}

// Settings is the singleton runtime record. Nil overrides fall back to configuration.
type Settings struct {
	Hold        bool      `json:"hold"`
	LastWarning time.Time `json:"last_warning"`

	BuyingAmountToSpend   *float64 `json:"buying_amount_to_spend_per_order,omitempty"`
	SellingQuantityToSell *float64 `json:"selling_quantity_to_sell_per_order,omitempty"`
	BuyingProfit          *float64 `json:"buying_profit,omitempty"`
	SellingProfit         *float64 `json:"selling_profit,omitempty"`
	BuyingFxRate          *float64 `json:"buying_fx_rate,omitempty"`
	SellingFxRate         *float64 `json:"selling_fx_rate,omitempty"`
	FiatWarning           *float64 `json:"fiat_warning,omitempty"`
	FiatStop              *float64 `json:"fiat_stop,omitempty"`
	CryptoWarning         *float64 `json:"crypto_warning,omitempty"`
	CryptoStop            *float64 `json:"crypto_stop,omitempty"`

	MakerFiat   float64   `json:"maker_fiat"`
	MakerCrypto float64   `json:"maker_crypto"`
	TakerFiat   float64   `json:"taker_fiat"`
	TakerCrypto float64   `json:"taker_crypto"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BalanceSnapshot is what the balance checkers read once per tick.
type BalanceSnapshot struct {
	MakerFiat     float64
	MakerCrypto   float64
	TakerFiat     float64
	TakerCrypto   float64
	FiatWarning   float64
	FiatStop      float64
	CryptoWarning float64
	CryptoStop    float64
	FxRate        float64
	Hold          bool
}
