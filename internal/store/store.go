// Package store persists flows, positions and the settings record.
package store

import (
	"context"
	"errors"
	"time"

	"arbot/internal/models"
)

var (
	ErrNotFound          = errors.New("запись не найдена")
	ErrDuplicate         = errors.New("сделка уже учтена")
	ErrAlreadyClaimed    = errors.New("позиция уже закрывается другим потоком")
	ErrInvalidTransition = errors.New("статус не может вернуться назад")
)

type OpeningFlows interface {
	CreateOpeningFlow(ctx context.Context, flow *models.OpeningFlow) error
	OpeningFlow(ctx context.Context, id int64) (models.OpeningFlow, error)
	UpdateOpeningFlowStatus(ctx context.Context, id int64, status models.FlowStatus) error
	// ActiveOpeningFlows returns flows that are not finalised, oldest first.
	ActiveOpeningFlows(ctx context.Context) ([]models.OpeningFlow, error)
	// OldActiveOpeningFlows returns active flows created before threshold.
	OldActiveOpeningFlows(ctx context.Context, threshold time.Time) ([]models.OpeningFlow, error)
	// RecentOpeningFlows returns flows of any status created after threshold.
	RecentOpeningFlows(ctx context.Context, threshold time.Time) ([]models.OpeningFlow, error)
}

type OpeningOrders interface {
	CreateOpeningOrder(ctx context.Context, order *models.OpeningOrder) error
	OpeningOrders(ctx context.Context, flowID int64) ([]models.OpeningOrder, error)
	OpeningOrderByOrderID(ctx context.Context, orderID string) (models.OpeningOrder, error)
	UpdateOpeningOrderStatus(ctx context.Context, id int64, status models.FlowStatus) error
}

type OpenPositions interface {
	// CreateOpenPosition fails with ErrDuplicate when the transaction is already booked.
	CreateOpenPosition(ctx context.Context, pos *models.OpenPosition) error
	TransactionBooked(ctx context.Context, transactionID string) (bool, error)
	LatestOpenPosition(ctx context.Context) (models.OpenPosition, error)
	// OpenPositions returns positions of side not yet claimed by a closing flow.
	OpenPositions(ctx context.Context, side models.OrderSide) ([]models.OpenPosition, error)
	ClosingFlowPositions(ctx context.Context, closingFlowID int64) ([]models.OpenPosition, error)
	OpeningFlowPositions(ctx context.Context, openingFlowID int64) ([]models.OpenPosition, error)
}

type ClosingFlows interface {
	// CreateClosingFlow stores the flow and links positionIDs to it in one transaction.
	// Nothing is written when any of the positions is already claimed.
	CreateClosingFlow(ctx context.Context, flow *models.ClosingFlow, positionIDs []int64) error
	ActiveClosingFlows(ctx context.Context) ([]models.ClosingFlow, error)
	FinishClosingFlow(ctx context.Context, flow models.ClosingFlow) error

	CreateClosePosition(ctx context.Context, pos *models.ClosePosition) error
	ClosePositions(ctx context.Context, flowID int64) ([]models.ClosePosition, error)
	FillClosePosition(ctx context.Context, id int64, amount, qty float64) error
}

type Settings interface {
	// Settings returns the singleton record, creating it on first use.
	Settings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, settings models.Settings) error
	SaveBalances(ctx context.Context, makerFiat, makerCrypto, takerFiat, takerCrypto float64) error
	SetHold(ctx context.Context, hold bool) error
	SetLastWarning(ctx context.Context, at time.Time) error
}

type Store interface {
	OpeningFlows
	OpeningOrders
	OpenPositions
	ClosingFlows
	Settings
	Close() error
}
