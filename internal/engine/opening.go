package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"arbot/internal/exchange"
	"arbot/internal/models"
	"arbot/internal/simulator"
	"arbot/internal/store"
)

const positionLookback = 30 * time.Minute

// takerMarket is what an opening flow needs to know about the taker and the fees of both venues.
type takerMarket struct {
	Balance  models.Balance
	Book     models.OrderBook
	Trades   []models.Trade
	MakerFee float64
	TakerFee float64
}

// openMarket sizes and prices a new opening flow for s, stores it and places its ladder on the
// maker. Any failure before the flow is stored is a CannotCreateFlowError.
func (e *Engine) openMarket(ctx context.Context, s sideStrategy, p params, market takerMarket) (models.OpeningFlow, error) {
	side := s.side()
	value := s.valueToUse(p)
	fx := s.fxRate(p)
	if !positive(value) || !positive(fx) {
		reason := fmt.Sprintf("некорректные параметры: объём %s, курс %s", formatFloatPlain(value), formatFloatPlain(fx))
		return models.OpeningFlow{}, cannotCreate(side, reason, nil)
	}

	valueNeeded := ValueNeeded(value, market.MakerFee, market.TakerFee)
	safest, err := simulator.Run(e.cfg.Trading.TimeToLive, market.Trades, s.takerLevels(market.Book), s.target(valueNeeded), fx)
	if err != nil {
		return models.OpeningFlow{}, cannotCreate(side, "нет цены на тейкере", err)
	}

	remote := s.remoteValue(valueNeeded, safest, fx)
	available := s.takerAvailable(market.Balance)
	if remote > available {
		reason := fmt.Sprintf("на тейкере нужно %s, доступно %s", formatFloatPlain(remote), formatFloatPlain(available))
		return models.OpeningFlow{}, cannotCreate(side, reason, nil)
	}

	price := s.makerPrice(value, remote, fx, s.profit(p))
	if !positive(price) {
		reason := fmt.Sprintf("некорректная цена мейкера %s", formatFloatPlain(price))
		return models.OpeningFlow{}, cannotCreate(side, reason, nil)
	}
	ladder := CalcLadder(price, value, side)
	for _, rung := range ladder {
		if !positive(rung.Price) {
			reason := fmt.Sprintf("некорректная цена ордера %s: %s", rung.Role, formatFloatPlain(rung.Price))
			return models.OpeningFlow{}, cannotCreate(side, reason, nil)
		}
	}

	flow := models.OpeningFlow{
		Side:                  side,
		Price:                 price,
		ValueToUse:            value,
		SuggestedClosingPrice: safest,
		Status:                models.FlowStatusExecuting,
		CreatedAt:             e.now(),
	}
	if err := e.store.CreateOpeningFlow(ctx, &flow); err != nil {
		return models.OpeningFlow{}, cannotCreate(side, "ошибка сохранения", err)
	}
	e.metrics.OpeningFlow(string(side))

	entry := e.flowEntry("opening", flow.ID)
	entry.WithFields(map[string]interface{}{
		"side":         side,
		"price":        flow.Price,
		"value":        value,
		"value_needed": valueNeeded,
		"safest":       safest,
		"remote":       remote,
	}).Info("Поток открытия создан.")

	for _, rung := range ladder {
		qty := rung.Qty.InexactFloat64()
		rungEntry := entry.WithFields(map[string]interface{}{
			"role":  rung.Role,
			"price": rung.Price,
			"qty":   qty,
		})
		if !e.maker.EnoughOrderSize(qty, rung.Price) {
			rungEntry.Warn("Ордер лестницы пропущен, объём меньше минимального.")
			continue
		}

		e.limited()
		order, err := exchange.PlaceOrder(ctx, e.maker, e.policy, e.log, side, rung.Price, qty)
		if err != nil {
			rungEntry.WithError(err).Warn("Ордер лестницы не выставлен.")
			continue
		}

		opening := models.OpeningOrder{
			FlowID:    flow.ID,
			OrderID:   order.ID,
			Role:      rung.Role,
			Price:     rung.Price,
			Amount:    rung.Amount.InexactFloat64(),
			Qty:       qty,
			Status:    models.FlowStatusExecuting,
			CreatedAt: e.now(),
		}
		if err := e.store.CreateOpeningOrder(ctx, &opening); err != nil {
			return flow, cannotCreate(side, "ордер выставлен, но не сохранён "+order.ID, err)
		}
		rungEntry.WithField("order_id", order.ID).Info("Ордер лестницы выставлен.")
	}

	return flow, nil
}

// positionThreshold bounds how far back maker trades are scanned: 30 minutes before the latest
// booked position. Zero means no bound.
func (e *Engine) positionThreshold(ctx context.Context) (time.Time, error) {
	latest, err := e.store.LatestOpenPosition(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return latest.CreatedAt.Add(-positionLookback), nil
}

// syncOpeningPositions books maker fills of both sides as open positions.
func (e *Engine) syncOpeningPositions(ctx context.Context) error {
	e.limited()
	trades, err := e.maker.UserTransactions(ctx)
	if err != nil {
		return fmt.Errorf("сделки мейкера: %w", err)
	}
	threshold, err := e.positionThreshold(ctx)
	if err != nil {
		return err
	}

	for _, side := range []models.OrderSide{models.OrderSideBuy, models.OrderSideSell} {
		if _, err := e.syncPositions(ctx, strategyFor(side), trades, threshold); err != nil {
			return err
		}
	}
	return nil
}

// syncPositions turns the maker trades sought by s into open positions and reports how many
// were booked. Trades whose order no opening flow owns are skipped.
func (e *Engine) syncPositions(ctx context.Context, s sideStrategy, trades []models.Trade, threshold time.Time) (int, error) {
	booked := 0
	for _, trade := range trades {
		if !e.sought(s, trade, threshold) {
			continue
		}
		exists, err := e.store.TransactionBooked(ctx, trade.ID)
		if err != nil {
			return booked, err
		}
		if exists {
			continue
		}

		opening, err := e.store.OpeningOrderByOrderID(ctx, trade.OrderID)
		if errors.Is(err, store.ErrNotFound) {
			e.logEntry("opening").WithFields(map[string]interface{}{
				"trade_id": trade.ID,
				"order_id": trade.OrderID,
			}).Debug("Сделка мейкера без потока открытия, пропуск.")
			continue
		}
		if err != nil {
			return booked, err
		}
		flow, err := e.store.OpeningFlow(ctx, opening.FlowID)
		if err != nil {
			return booked, err
		}
		if flow.Side != s.side() {
			continue
		}

		amount := trade.Amount
		if amount == 0 {
			amount = trade.Price * trade.Qty
		}
		pos := models.OpenPosition{
			Side:                  s.side(),
			TransactionID:         trade.ID,
			OrderID:               trade.OrderID,
			OpeningFlowID:         flow.ID,
			Price:                 trade.Price,
			Amount:                amount,
			Qty:                   trade.Qty,
			SuggestedClosingPrice: flow.SuggestedClosingPrice,
			CreatedAt:             e.now(),
		}
		err = e.store.CreateOpenPosition(ctx, &pos)
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		if err != nil {
			return booked, err
		}
		booked++

		e.flowEntry("opening", flow.ID).WithFields(map[string]interface{}{
			"trade_id": trade.ID,
			"order_id": trade.OrderID,
			"price":    trade.Price,
			"qty":      trade.Qty,
		}).Info("Открыта позиция.")
	}
	return booked, nil
}

func (e *Engine) sought(s sideStrategy, trade models.Trade, threshold time.Time) bool {
	if trade.Side != s.side() {
		return false
	}
	if trade.Symbol != "" && trade.Symbol != e.maker.Symbol() {
		return false
	}
	if !threshold.IsZero() && trade.Timestamp.Before(threshold) {
		return false
	}
	return true
}

// finaliseOpeningFlows settles every order of the given flows. A flow whose orders are all
// finalised is finalised, otherwise it is settling.
func (e *Engine) finaliseOpeningFlows(ctx context.Context, flows []models.OpeningFlow) error {
	for _, flow := range flows {
		orders, err := e.store.OpeningOrders(ctx, flow.ID)
		if err != nil {
			return err
		}

		next := models.FlowStatusFinalised
		for _, order := range orders {
			status := order.Status
			if status != models.FlowStatusFinalised {
				status, err = e.finaliseOrder(ctx, order)
				if err != nil {
					return err
				}
			}
			if status != models.FlowStatusFinalised {
				next = models.FlowStatusSettling
			}
		}

		if next == flow.Status {
			continue
		}
		if err := e.store.UpdateOpeningFlowStatus(ctx, flow.ID, next); err != nil {
			return err
		}
		e.flowEntry("opening", flow.ID).WithField("status", next).Info("Статус потока открытия изменён.")
	}
	return nil
}
