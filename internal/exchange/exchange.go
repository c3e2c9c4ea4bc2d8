package exchange

import (
	"context"
	"errors"
	"time"

	"arbot/internal/models"
)

var (
	// ErrOrderNotFound means a placement could not be confirmed, neither directly nor by searching.
	ErrOrderNotFound = errors.New("ордер не найден")
	// ErrOrderRejected is a definitive refusal by the venue; the order did not land.
	ErrOrderRejected = errors.New("ордер отклонён биржей")
	ErrUnknownOrder  = errors.New("неизвестный ордер")
)

type InstrumentRules struct {
	TickSize    float64
	LotSize     float64
	MinQty      float64
	MinNotional float64
	BaseCoin    string
	QuoteCoin   string
}

// Exchange is what the engine needs from a venue. Quantities are crypto, prices are in the
// venue quote currency.
type Exchange interface {
	Name() string
	Symbol() string
	Balance(ctx context.Context) (models.Balance, error)
	Market(ctx context.Context) (models.OrderBook, error)
	// Orders lists the orders still open on the venue.
	Orders(ctx context.Context) ([]models.Order, error)
	Order(ctx context.Context, orderID string) (models.Order, error)
	// Transactions are recent public trades, newest first.
	Transactions(ctx context.Context) ([]models.Trade, error)
	// UserTransactions are the account's own fills, newest first.
	UserTransactions(ctx context.Context) ([]models.Trade, error)
	CancelOrder(ctx context.Context, order models.Order) error
	// SendOrder is a single placement attempt. A nil order or an error other than
	// ErrOrderRejected does not prove the order did not land.
	SendOrder(ctx context.Context, side models.OrderSide, price, qty float64) (*models.Order, error)
	FindLost(ctx context.Context, side models.OrderSide, price, qty float64, since time.Time) (*models.Order, error)
	AmountAndQuantity(ctx context.Context, orderID string) (float64, float64, error)
	EnoughOrderSize(qty, price float64) bool
}
