// Package paper is an in-memory venue. It backs dry runs, where market data may come from a
// live venue while orders never leave the process, and the engine tests.
package paper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"arbot/internal/exchange"
	"arbot/internal/models"

	"github.com/google/uuid"
)

type SendFailure int

const (
	// SendLost lands the order but reports a transport error, like a timed out request.
	SendLost SendFailure = iota + 1
	// SendDropped reports an error and does not land the order.
	SendDropped
	SendRejected
)

type Config struct {
	Name   string
	Symbol string
	Fee    float64
	Fiat   float64
	Crypto float64
	Rules  exchange.InstrumentRules
	// Source provides the order book and public trades when set.
	Source exchange.Exchange
	// AutoFill fills resting orders that cross the current book on every read.
	AutoFill bool
}

type Venue struct {
	mu sync.Mutex

	cfg    Config
	fiat   float64
	crypto float64
	book   models.OrderBook
	trades []models.Trade
	fills  []models.Trade
	orders map[string]*models.Order
	seq    []string

	failures  []SendFailure
	cancelErr error
	now       func() time.Time
}

var _ exchange.Exchange = (*Venue)(nil)

func New(cfg Config) *Venue {
	if cfg.Name == "" {
		cfg.Name = "paper"
	}
	return &Venue{
		cfg:    cfg,
		fiat:   cfg.Fiat,
		crypto: cfg.Crypto,
		orders: map[string]*models.Order{},
		now:    time.Now,
	}
}

func (p *Venue) Name() string {
	return p.cfg.Name
}

func (p *Venue) Symbol() string {
	return p.cfg.Symbol
}

func (p *Venue) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

func (p *Venue) SetBook(book models.OrderBook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.book = book
}

func (p *Venue) SetTransactions(trades []models.Trade) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trades = append([]models.Trade(nil), trades...)
}

func (p *Venue) SetBalance(fiat, crypto float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fiat = fiat
	p.crypto = crypto
}

// FailNextSends queues outcomes for the next SendOrder calls.
func (p *Venue) FailNextSends(failures ...SendFailure) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, failures...)
}

func (p *Venue) FailCancels(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelErr = err
}

func (p *Venue) Balance(ctx context.Context) (models.Balance, error) {
	if err := p.refresh(ctx); err != nil {
		return models.Balance{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var fiatReserved, cryptoReserved float64
	for _, ord := range p.openLocked() {
		left := ord.Qty - ord.FilledQty
		if ord.Side == models.OrderSideBuy {
			fiatReserved += left * ord.Price
		} else {
			cryptoReserved += left
		}
	}
	return models.Balance{
		Fiat:   models.CurrencyBalance{Total: p.fiat, Reserved: fiatReserved, Available: p.fiat - fiatReserved},
		Crypto: models.CurrencyBalance{Total: p.crypto, Reserved: cryptoReserved, Available: p.crypto - cryptoReserved},
		Fee:    p.cfg.Fee,
	}, nil
}

func (p *Venue) Market(ctx context.Context) (models.OrderBook, error) {
	if p.cfg.Source != nil {
		return p.cfg.Source.Market(ctx)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.book, nil
}

func (p *Venue) Transactions(ctx context.Context) ([]models.Trade, error) {
	if p.cfg.Source != nil {
		return p.cfg.Source.Transactions(ctx)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Trade(nil), p.trades...), nil
}

func (p *Venue) Orders(ctx context.Context) ([]models.Order, error) {
	if err := p.refresh(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	open := p.openLocked()
	out := make([]models.Order, 0, len(open))
	for _, ord := range open {
		out = append(out, *ord)
	}
	return out, nil
}

func (p *Venue) Order(ctx context.Context, orderID string) (models.Order, error) {
	if err := p.refresh(ctx); err != nil {
		return models.Order{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ord, ok := p.orders[orderID]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: %s", exchange.ErrUnknownOrder, orderID)
	}
	return *ord, nil
}

func (p *Venue) UserTransactions(ctx context.Context) ([]models.Trade, error) {
	if err := p.refresh(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	out := append([]models.Trade(nil), p.fills...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func (p *Venue) CancelOrder(ctx context.Context, order models.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelErr != nil {
		return p.cancelErr
	}
	ord, ok := p.orders[order.ID]
	if !ok {
		return fmt.Errorf("%w: %s", exchange.ErrUnknownOrder, order.ID)
	}
	if ord.Status == models.OrderStatusExecuting {
		ord.Status = models.OrderStatusCancelled
	}
	return nil
}

func (p *Venue) SendOrder(ctx context.Context, side models.OrderSide, price, qty float64) (*models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var failure SendFailure
	if len(p.failures) > 0 {
		failure = p.failures[0]
		p.failures = p.failures[1:]
	}
	switch failure {
	case SendDropped:
		return nil, fmt.Errorf("%s: соединение прервано", p.cfg.Name)
	case SendRejected:
		return nil, fmt.Errorf("%w: %s отклонил ордер", exchange.ErrOrderRejected, p.cfg.Name)
	}

	if qty <= 0 || price <= 0 {
		return nil, fmt.Errorf("%w: некорректный ордер %f @ %f", exchange.ErrOrderRejected, qty, price)
	}

	ord := &models.Order{
		ID:         uuid.NewString(),
		LinkID:     uuid.NewString(),
		Symbol:     p.cfg.Symbol,
		Side:       side,
		Price:      price,
		Qty:        qty,
		Status:     models.OrderStatusExecuting,
		CreateTime: p.now(),
	}
	p.orders[ord.ID] = ord
	p.seq = append(p.seq, ord.ID)

	if failure == SendLost {
		return nil, fmt.Errorf("%s: таймаут ответа", p.cfg.Name)
	}
	placed := *ord
	return &placed, nil
}

func (p *Venue) FindLost(ctx context.Context, side models.OrderSide, price, qty float64, since time.Time) (*models.Order, error) {
	orders, err := p.Orders(ctx)
	if err != nil {
		return nil, err
	}
	fills, err := p.UserTransactions(ctx)
	if err != nil {
		return nil, err
	}
	return exchange.FindLostIn(orders, fills, side, price, qty, since), nil
}

func (p *Venue) AmountAndQuantity(ctx context.Context, orderID string) (float64, float64, error) {
	fills, err := p.UserTransactions(ctx)
	if err != nil {
		return 0, 0, err
	}
	amount, qty := exchange.SumFills(fills, orderID)
	return amount, qty, nil
}

func (p *Venue) EnoughOrderSize(qty, price float64) bool {
	return exchange.EnoughOrderSize(p.cfg.Rules, qty, price)
}

// Fill executes qty of an open order at its limit price. A qty above what is left fills the rest.
func (p *Venue) Fill(orderID string, qty float64) (models.Trade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fillLocked(orderID, qty, 0)
}

// FillAt is Fill with an explicit execution price.
func (p *Venue) FillAt(orderID string, qty, price float64) (models.Trade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fillLocked(orderID, qty, price)
}

func (p *Venue) fillLocked(orderID string, qty, price float64) (models.Trade, error) {
	ord, ok := p.orders[orderID]
	if !ok {
		return models.Trade{}, fmt.Errorf("%w: %s", exchange.ErrUnknownOrder, orderID)
	}
	if ord.Status != models.OrderStatusExecuting {
		return models.Trade{}, fmt.Errorf("ордер %s уже закрыт: %s", orderID, ord.Status)
	}
	left := ord.Qty - ord.FilledQty
	if qty <= 0 || qty > left {
		qty = left
	}
	if price <= 0 {
		price = ord.Price
	}

	amount := qty * price
	fee := amount * p.cfg.Fee / 100
	trade := models.Trade{
		ID:        uuid.NewString(),
		OrderID:   ord.ID,
		Symbol:    ord.Symbol,
		Side:      ord.Side,
		Price:     price,
		Qty:       qty,
		Amount:    amount,
		Fee:       fee,
		Timestamp: p.now(),
	}
	p.fills = append(p.fills, trade)

	if ord.Side == models.OrderSideBuy {
		p.crypto += qty
		p.fiat -= amount + fee
	} else {
		p.crypto -= qty
		p.fiat += amount - fee
	}

	ord.FilledQty += qty
	if ord.FilledQty >= ord.Qty-1e-12 {
		ord.Status = models.OrderStatusCompleted
	}
	return trade, nil
}

func (p *Venue) refresh(ctx context.Context) error {
	if !p.cfg.AutoFill {
		return nil
	}
	book, err := p.Market(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ord := range p.openLocked() {
		switch ord.Side {
		case models.OrderSideBuy:
			if len(book.Asks) > 0 && book.Asks[0].Price <= ord.Price {
				_, _ = p.fillLocked(ord.ID, 0, 0)
			}
		case models.OrderSideSell:
			if len(book.Bids) > 0 && book.Bids[0].Price >= ord.Price {
				_, _ = p.fillLocked(ord.ID, 0, 0)
			}
		}
	}
	return nil
}

func (p *Venue) openLocked() []*models.Order {
	var open []*models.Order
	for _, id := range p.seq {
		ord := p.orders[id]
		if ord.Status == models.OrderStatusExecuting {
			open = append(open, ord)
		}
	}
	return open
}
