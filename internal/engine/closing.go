package engine

import (
	"context"
	"errors"
	"fmt"

	"arbot/internal/exchange"
	"arbot/internal/models"
)

// closeMarket claims every open position of s and places the first taker order for them.
// Nothing is created when the aggregate is below the taker's minimum order size.
func (e *Engine) closeMarket(ctx context.Context, s sideStrategy, p params) (*models.ClosingFlow, error) {
	positions, err := e.store.OpenPositions(ctx, s.side())
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, nil
	}

	desired, qty, amount := DesiredPrice(positions)
	if !e.taker.EnoughOrderSize(qty, desired) {
		e.logEntry("closing").WithFields(map[string]interface{}{
			"side":  s.side(),
			"qty":   qty,
			"price": desired,
		}).Debug("Объём открытых позиций меньше минимального ордера тейкера.")
		return nil, nil
	}

	flow := models.ClosingFlow{
		Side:         s.side(),
		DesiredPrice: desired,
		Qty:          qty,
		Amount:       amount,
		FxRate:       s.fxRate(p),
		CreatedAt:    e.now(),
	}
	ids := make([]int64, 0, len(positions))
	for _, pos := range positions {
		ids = append(ids, pos.ID)
	}
	if err := e.store.CreateClosingFlow(ctx, &flow, ids); err != nil {
		return nil, fmt.Errorf("поток закрытия %s: %w", s.side(), err)
	}

	e.flowEntry("closing", flow.ID).WithFields(map[string]interface{}{
		"side":      flow.Side,
		"positions": len(ids),
		"qty":       qty,
		"amount":    amount,
		"price":     desired,
	}).Info("Поток закрытия создан.")

	if err := e.placeClosePosition(ctx, s, flow, nil); err != nil {
		return &flow, err
	}
	return &flow, nil
}

// placeClosePosition sends the next taker order of flow, priced from the closes so far.
func (e *Engine) placeClosePosition(ctx context.Context, s sideStrategy, flow models.ClosingFlow, closes []models.ClosePosition) error {
	price, qty := s.nextPriceAndQty(flow, closes)

	e.limited()
	order, err := exchange.PlaceOrder(ctx, e.taker, e.policy, e.log, s.closingSide(), price, qty)
	if err != nil {
		return fmt.Errorf("поток закрытия #%d: %w", flow.ID, err)
	}

	pos := models.ClosePosition{FlowID: flow.ID, OrderID: order.ID, CreatedAt: e.now()}
	if err := e.store.CreateClosePosition(ctx, &pos); err != nil {
		return err
	}

	e.flowEntry("closing", flow.ID).WithFields(map[string]interface{}{
		"order_id": order.ID,
		"side":     s.closingSide(),
		"price":    price,
		"qty":      qty,
		"attempt":  len(closes) + 1,
	}).Info("Ордер закрытия выставлен.")
	return nil
}

func (e *Engine) syncClosingFlows(ctx context.Context, flows []models.ClosingFlow) error {
	e.limited()
	open, err := e.taker.Orders(ctx)
	if err != nil {
		return fmt.Errorf("ордера тейкера: %w", err)
	}
	openByID := make(map[string]models.Order, len(open))
	for _, ord := range open {
		openByID[ord.ID] = ord
	}

	var errs []error
	for _, flow := range flows {
		if err := e.syncClosingFlow(ctx, flow, openByID); err != nil {
			e.flowEntry("closing", flow.ID).WithError(err).Warn("Ошибка синхронизации потока закрытия.")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// syncClosingFlow advances flow by one step: retry a missing first order, book a finished
// order and re-price the rest, or cancel an order that waited too long.
func (e *Engine) syncClosingFlow(ctx context.Context, flow models.ClosingFlow, open map[string]models.Order) error {
	s := strategyFor(flow.Side)
	entry := e.flowEntry("closing", flow.ID)

	closes, err := e.store.ClosePositions(ctx, flow.ID)
	if err != nil {
		return err
	}
	if len(closes) == 0 {
		entry.Info("Нет ордера закрытия, повторяем выставление.")
		return e.placeClosePosition(ctx, s, flow, nil)
	}

	latest := &closes[len(closes)-1]
	if order, ok := open[latest.OrderID]; ok {
		if e.now().Sub(latest.CreatedAt) > e.cfg.Trading.CloseTimeToLive {
			e.limited()
			if err := e.taker.CancelOrder(ctx, order); err != nil {
				entry.WithError(err).WithField("order_id", order.ID).Debug("Отмена ордера закрытия не удалась.")
			} else {
				entry.WithField("order_id", order.ID).Info("Ордер закрытия отменён для перевыставления.")
			}
		}
		return nil
	}

	if !latest.Filled {
		e.limited()
		amount, qty, err := e.taker.AmountAndQuantity(ctx, latest.OrderID)
		if err != nil {
			return fmt.Errorf("исполнение ордера закрытия %s: %w", latest.OrderID, err)
		}
		if err := e.store.FillClosePosition(ctx, latest.ID, amount, qty); err != nil {
			return err
		}
		latest.Amount, latest.Qty, latest.Filled = amount, qty, true
	}

	price, qty := s.nextPriceAndQty(flow, closes)
	if positive(price) && e.taker.EnoughOrderSize(qty, price) {
		return e.placeClosePosition(ctx, s, flow, closes)
	}
	if qty > 0 && e.taker.EnoughOrderSize(qty, flow.DesiredPrice) {
		entry.WithFields(map[string]interface{}{
			"price": price,
			"qty":   qty,
		}).Warn("Поток закрытия завершается с незакрытым остатком.")
		e.notify(ctx, fmt.Sprintf("Поток закрытия #%d завершён с незакрытым остатком %s, цена перевыставления %s.",
			flow.ID, formatFloatPlain(qty), formatFloatPlain(price)))
	}
	return e.finishClosingFlow(ctx, s, flow, closes)
}

func (e *Engine) finishClosingFlow(ctx context.Context, s sideStrategy, flow models.ClosingFlow, closes []models.ClosePosition) error {
	opens, err := e.store.ClosingFlowPositions(ctx, flow.ID)
	if err != nil {
		return err
	}

	flow.CryptoProfit, flow.FiatProfit = s.profits(flow, opens, closes)
	flow.Done = true
	if err := e.store.FinishClosingFlow(ctx, flow); err != nil {
		return err
	}
	e.metrics.ClosingFlowDone(string(flow.Side), flow.CryptoProfit, flow.FiatProfit)

	e.flowEntry("closing", flow.ID).WithFields(map[string]interface{}{
		"crypto_profit": flow.CryptoProfit,
		"fiat_profit":   flow.FiatProfit,
		"closes":        len(closes),
	}).Info("Поток закрытия завершён.")
	return nil
}

// closeOpenPositions starts closing flows for both sides. The first failure stops the pass.
func (e *Engine) closeOpenPositions(ctx context.Context, p params) error {
	for _, side := range []models.OrderSide{models.OrderSideBuy, models.OrderSideSell} {
		if _, err := e.closeMarket(ctx, strategyFor(side), p); err != nil {
			if errors.Is(err, exchange.ErrOrderNotFound) {
				e.logEntry("closing").WithError(err).Warn("Первый ордер закрытия не подтверждён, повтор на следующем такте.")
			}
			return err
		}
	}
	return nil
}
