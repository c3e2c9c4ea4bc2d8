package exchange

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"arbot/internal/logger"
	"arbot/internal/models"
)

const (
	lostTolerance = 1e-8
	lostLookback  = time.Minute
)

type LostOrderPolicy struct {
	Attempts int
	Delay    time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

func DefaultLostOrderPolicy() LostOrderPolicy {
	return LostOrderPolicy{Attempts: 5, Delay: 10 * time.Second}
}

// PlaceOrder sends an order and, when the outcome is ambiguous, looks for it before giving up.
// Re-sending is never attempted: a missing response does not mean the order was not accepted.
func PlaceOrder(ctx context.Context, ex Exchange, policy LostOrderPolicy, log *logger.Logger, side models.OrderSide, price, qty float64) (models.Order, error) {
	now := policy.Now
	if now == nil {
		now = time.Now
	}
	since := now().Add(-lostLookback)

	order, err := ex.SendOrder(ctx, side, price, qty)
	if err == nil && order != nil && order.ID != "" {
		return *order, nil
	}
	if errors.Is(err, ErrOrderRejected) {
		return models.Order{}, err
	}

	entry := log.WithComponent("exchange").WithFields(map[string]interface{}{
		"venue": ex.Name(),
		"side":  side,
		"price": price,
		"qty":   qty,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn("Ордер не подтверждён, ищем потерянный ордер.")

	for i := 0; i < policy.Attempts; i++ {
		select {
		case <-ctx.Done():
			return models.Order{}, ctx.Err()
		case <-time.After(policy.Delay):
		}

		found, findErr := ex.FindLost(ctx, side, price, qty, since)
		if findErr != nil {
			entry.WithError(findErr).WithField("attempt", i+1).Warn("Ошибка поиска потерянного ордера.")
			continue
		}
		if found != nil {
			entry.WithField("order_id", found.ID).Info("Потерянный ордер найден.")
			return *found, nil
		}
		entry.WithField("attempt", i+1).Info("Потерянный ордер не найден.")
	}

	return models.Order{}, fmt.Errorf("%w: %s %s %s @ %s", ErrOrderNotFound, ex.Name(), side, formatFloat(qty), formatFloat(price))
}

// FindLostIn matches an order by side, price and size among open orders, then among the
// account's fills, ignoring anything older than since.
func FindLostIn(orders []models.Order, fills []models.Trade, side models.OrderSide, price, qty float64, since time.Time) *models.Order {
	for _, ord := range orders {
		if ord.Side != side || !closeTo(ord.Price, price) || !closeTo(ord.Qty, qty) {
			continue
		}
		if !ord.CreateTime.IsZero() && ord.CreateTime.Before(since) {
			continue
		}
		found := ord
		return &found
	}

	byOrder := map[string]*models.Order{}
	for _, fill := range fills {
		if fill.Side != side || !closeTo(fill.Price, price) || fill.Timestamp.Before(since) || fill.OrderID == "" {
			continue
		}
		ord, ok := byOrder[fill.OrderID]
		if !ok {
			ord = &models.Order{
				ID:         fill.OrderID,
				Symbol:     fill.Symbol,
				Side:       fill.Side,
				Price:      fill.Price,
				Qty:        qty,
				Status:     models.OrderStatusCompleted,
				CreateTime: fill.Timestamp,
			}
			byOrder[fill.OrderID] = ord
		}
		ord.FilledQty += fill.Qty
		if closeTo(ord.FilledQty, qty) {
			return ord
		}
	}
	return nil
}

// SumFills adds up the quote amount and crypto quantity of the fills that belong to orderID.
func SumFills(fills []models.Trade, orderID string) (float64, float64) {
	var amount, qty float64
	for _, fill := range fills {
		if fill.OrderID != orderID {
			continue
		}
		amount += fill.Amount
		qty += fill.Qty
	}
	return amount, qty
}

// EnoughOrderSize is the common min quantity / min notional gate.
func EnoughOrderSize(rules InstrumentRules, qty, price float64) bool {
	if qty <= 0 || price <= 0 {
		return false
	}
	if rules.MinQty > 0 && qty < rules.MinQty {
		return false
	}
	if rules.MinNotional > 0 && qty*price < rules.MinNotional {
		return false
	}
	return true
}

func closeTo(a, b float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= lostTolerance*scale
}

func formatFloat(val float64) string {
	return fmt.Sprintf("%.8f", val)
}
