package engine

import (
	"context"
	"errors"
	"fmt"

	"arbot/internal/exchange"
	"arbot/internal/models"
)

// finaliseOrder looks the maker order up. A terminal order is finalised; an open one is
// cancelled and left settling until a later pass sees it terminal.
func (e *Engine) finaliseOrder(ctx context.Context, order models.OpeningOrder) (models.FlowStatus, error) {
	entry := e.flowEntry("opening", order.FlowID).WithFields(map[string]interface{}{
		"order_id": order.OrderID,
		"role":     order.Role,
	})

	e.limited()
	remote, err := e.maker.Order(ctx, order.OrderID)
	switch {
	case errors.Is(err, exchange.ErrUnknownOrder):
		entry.Warn("Ордер не найден на мейкере, считаем его завершённым.")
		remote = models.Order{ID: order.OrderID, Status: models.OrderStatusCancelled}
	case err != nil:
		return order.Status, fmt.Errorf("ордер мейкера %s: %w", order.OrderID, err)
	}

	if remote.Status.Terminal() {
		if order.Role == models.RoleInformant && (remote.FilledQty > 0 || remote.Status == models.OrderStatusCompleted) {
			e.notify(ctx, fmt.Sprintf("Сработал ордер-информатор %s: %s %s по %s",
				order.OrderID, remote.Side, formatFloatPlain(remote.FilledQty), formatFloatPlain(order.Price)))
		}
		if err := e.store.UpdateOpeningOrderStatus(ctx, order.ID, models.FlowStatusFinalised); err != nil {
			return order.Status, err
		}
		entry.WithField("status", remote.Status).Debug("Ордер лестницы завершён.")
		return models.FlowStatusFinalised, nil
	}

	e.limited()
	if err := e.maker.CancelOrder(ctx, remote); err != nil {
		entry.WithError(err).Warn("Не удалось отменить ордер лестницы.")
	} else {
		entry.Info("Ордер лестницы отменён.")
	}
	if order.Status != models.FlowStatusSettling {
		if err := e.store.UpdateOpeningOrderStatus(ctx, order.ID, models.FlowStatusSettling); err != nil {
			return order.Status, err
		}
	}
	return models.FlowStatusSettling, nil
}
