// Package bybit is the spot venue adapter: REST for account and orders, the public stream
// for the order book and trades when it is fresh.
package bybit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"arbot/internal/exchange"
	"arbot/internal/exchange/bybit/rest"
	"arbot/internal/exchange/bybit/ws"
	"arbot/internal/logger"
	"arbot/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	streamFreshness = 5 * time.Second
	bookLimit       = 50
	tradesLimit     = 60
	duplicateLookup = 3
	duplicateDelay  = 300 * time.Millisecond
)

type Config struct {
	Name        string
	BaseURL     string
	WSURL       string
	AccountType string
	APIKey      string
	Secret      string
	Symbol      string
	// Fee is the trading fee in percent.
	Fee float64
}

type Venue struct {
	cfg    Config
	rest   *rest.Client
	stream *ws.Client
	log    *logger.Logger
	now    func() time.Time

	mu          sync.Mutex
	rules       exchange.InstrumentRules
	rulesLoaded bool
}

var _ exchange.Exchange = (*Venue)(nil)

func New(cfg Config, log *logger.Logger) *Venue {
	if cfg.Name == "" {
		cfg.Name = "bybit"
	}
	return &Venue{
		cfg:  cfg,
		rest: rest.New(cfg.BaseURL, cfg.APIKey, cfg.Secret, cfg.AccountType, log),
		log:  log,
		now:  time.Now,
	}
}

// Start loads the instrument rules and, when a stream url is configured, subscribes to the
// market stream. A failing stream is not fatal: market data then comes from REST.
func (v *Venue) Start(ctx context.Context) error {
	if _, err := v.Rules(ctx); err != nil {
		return err
	}
	if v.cfg.WSURL == "" {
		return nil
	}

	stream := ws.New(v.cfg.WSURL, v.log)
	if err := stream.Connect(ctx); err != nil {
		v.logEntry().WithError(err).Warn("Поток рынка недоступен, используем REST.")
		return nil
	}
	if err := stream.SubscribeMarket(ctx, v.cfg.Symbol); err != nil {
		v.logEntry().WithError(err).Warn("Поток рынка недоступен, используем REST.")
		_ = stream.Close()
		return nil
	}
	v.stream = stream
	return nil
}

func (v *Venue) SetClock(now func() time.Time) {
	v.now = now
}

func (v *Venue) Close() error {
	if v.stream == nil {
		return nil
	}
	return v.stream.Close()
}

func (v *Venue) Name() string {
	return v.cfg.Name
}

func (v *Venue) Symbol() string {
	return v.cfg.Symbol
}

func (v *Venue) Rules(ctx context.Context) (exchange.InstrumentRules, error) {
	v.mu.Lock()
	if v.rulesLoaded {
		rules := v.rules
		v.mu.Unlock()
		return rules, nil
	}
	v.mu.Unlock()

	rules, err := v.rest.GetInstrumentRules(ctx, v.cfg.Symbol)
	if err != nil {
		return exchange.InstrumentRules{}, fmt.Errorf("Не удалось получить правила %s: %w", v.cfg.Symbol, err)
	}

	v.mu.Lock()
	v.rules = rules
	v.rulesLoaded = true
	v.mu.Unlock()

	v.logEntry().WithFields(logrus.Fields{
		"tick_size":    rules.TickSize,
		"lot_size":     rules.LotSize,
		"min_qty":      rules.MinQty,
		"min_notional": rules.MinNotional,
	}).Info("Правила торговой пары загружены.")
	return rules, nil
}

func (v *Venue) Balance(ctx context.Context) (models.Balance, error) {
	rules, err := v.Rules(ctx)
	if err != nil {
		return models.Balance{}, err
	}

	balances, err := v.rest.GetBalances(ctx, []string{rules.BaseCoin, rules.QuoteCoin})
	if err != nil {
		return models.Balance{}, fmt.Errorf("Не удалось получить баланс %s: %w", v.cfg.Name, err)
	}

	return models.Balance{
		Crypto: currency(balances[rules.BaseCoin]),
		Fiat:   currency(balances[rules.QuoteCoin]),
		Fee:    v.cfg.Fee,
	}, nil
}

func (v *Venue) Market(ctx context.Context) (models.OrderBook, error) {
	if v.stream != nil {
		book, ok := v.stream.Book()
		if ok && len(book.Bids) > 0 && len(book.Asks) > 0 && v.fresh(book.Timestamp) {
			book.Symbol = v.cfg.Symbol
			return book, nil
		}
	}

	book, err := v.rest.GetOrderBook(ctx, v.cfg.Symbol, bookLimit)
	if err != nil {
		return models.OrderBook{}, fmt.Errorf("Не удалось получить стакан %s: %w", v.cfg.Name, err)
	}
	return book, nil
}

func (v *Venue) Transactions(ctx context.Context) ([]models.Trade, error) {
	if v.stream != nil {
		trades, updated := v.stream.Trades()
		if len(trades) > 0 && v.fresh(updated) {
			return trades, nil
		}
	}

	trades, err := v.rest.GetRecentTrades(ctx, v.cfg.Symbol, tradesLimit)
	if err != nil {
		return nil, fmt.Errorf("Не удалось получить сделки %s: %w", v.cfg.Name, err)
	}
	return trades, nil
}

func (v *Venue) Orders(ctx context.Context) ([]models.Order, error) {
	orders, err := v.rest.GetOpenOrders(ctx, v.cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("Не удалось получить ордера %s: %w", v.cfg.Name, err)
	}
	return orders, nil
}

func (v *Venue) Order(ctx context.Context, orderID string) (models.Order, error) {
	ord, err := v.rest.GetOrder(ctx, v.cfg.Symbol, orderID)
	if err != nil {
		return models.Order{}, fmt.Errorf("Не удалось получить ордер %s: %w", orderID, err)
	}
	if ord == nil {
		return models.Order{}, fmt.Errorf("%w: %s", exchange.ErrUnknownOrder, orderID)
	}
	return *ord, nil
}

func (v *Venue) UserTransactions(ctx context.Context) ([]models.Trade, error) {
	fills, err := v.rest.GetExecutions(ctx, v.cfg.Symbol, "", time.Time{})
	if err != nil {
		return nil, fmt.Errorf("Не удалось получить исполнения %s: %w", v.cfg.Name, err)
	}
	return fills, nil
}

func (v *Venue) CancelOrder(ctx context.Context, order models.Order) error {
	err := v.rest.CancelOrder(ctx, v.cfg.Symbol, order.ID)
	if rest.IsOrderNotExists(err) {
		v.log.WithOrderID(order.ID).WithField("venue", v.cfg.Name).Debug("Ордер уже закрыт, отмена не нужна.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("Не удалось отменить ордер %s: %w", order.ID, err)
	}
	return nil
}

// SendOrder places a GTC limit order rounded down to the instrument steps. A refusal from bybit
// is ErrOrderRejected; anything else leaves the outcome open for FindLost.
func (v *Venue) SendOrder(ctx context.Context, side models.OrderSide, price, qty float64) (*models.Order, error) {
	rules, err := v.Rules(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", exchange.ErrOrderRejected, err)
	}

	price = rest.RoundToStep(price, rules.TickSize)
	qty = rest.RoundToStep(qty, rules.LotSize)
	if price <= 0 || qty <= 0 {
		return nil, fmt.Errorf("%w: объём после округления нулевой", exchange.ErrOrderRejected)
	}

	linkID := uuid.NewString()
	id, err := v.rest.PlaceOrder(ctx, rest.OrderRequest{
		Symbol:    v.cfg.Symbol,
		Side:      rest.FromSide(side),
		Price:     price,
		Qty:       qty,
		PriceStep: rules.TickSize,
		QtyStep:   rules.LotSize,
		LinkID:    linkID,
	})
	if err == nil && id != "" {
		return &models.Order{
			ID:         id,
			LinkID:     linkID,
			Symbol:     v.cfg.Symbol,
			Side:       side,
			Price:      price,
			Qty:        qty,
			Status:     models.OrderStatusExecuting,
			CreateTime: v.now(),
		}, nil
	}

	if rest.IsDuplicateLinkID(err) {
		if existing, ok := v.findOrderAfterDuplicate(ctx, linkID); ok {
			return existing, nil
		}
		return nil, err
	}
	if rest.IsRefusal(err) {
		return nil, fmt.Errorf("%w: %w", exchange.ErrOrderRejected, err)
	}
	return nil, err
}

func (v *Venue) FindLost(ctx context.Context, side models.OrderSide, price, qty float64, since time.Time) (*models.Order, error) {
	rules, err := v.Rules(ctx)
	if err != nil {
		return nil, err
	}
	price = rest.RoundToStep(price, rules.TickSize)
	qty = rest.RoundToStep(qty, rules.LotSize)

	orders, err := v.Orders(ctx)
	if err != nil {
		return nil, err
	}
	fills, err := v.rest.GetExecutions(ctx, v.cfg.Symbol, "", since)
	if err != nil {
		return nil, fmt.Errorf("Не удалось получить исполнения %s: %w", v.cfg.Name, err)
	}
	return exchange.FindLostIn(orders, fills, side, price, qty, since), nil
}

func (v *Venue) AmountAndQuantity(ctx context.Context, orderID string) (float64, float64, error) {
	fills, err := v.rest.GetExecutions(ctx, v.cfg.Symbol, orderID, time.Time{})
	if err != nil {
		return 0, 0, fmt.Errorf("Не удалось получить исполнения ордера %s: %w", orderID, err)
	}
	amount, qty := exchange.SumFills(fills, orderID)
	return amount, qty, nil
}

// EnoughOrderSize checks the size that would actually be sent. Before Start it only rejects
// non-positive sizes.
func (v *Venue) EnoughOrderSize(qty, price float64) bool {
	v.mu.Lock()
	rules := v.rules
	v.mu.Unlock()

	return exchange.EnoughOrderSize(rules, rest.RoundToStep(qty, rules.LotSize), rest.RoundToStep(price, rules.TickSize))
}

func (v *Venue) findOrderAfterDuplicate(ctx context.Context, linkID string) (*models.Order, bool) {
	for i := 0; i < duplicateLookup; i++ {
		existing, err := v.rest.GetOrderByLinkID(ctx, v.cfg.Symbol, linkID)
		if err == nil && existing != nil {
			v.logEntry().WithField("link_id", linkID).Debug("Найден ордер после duplicate clientOrderId.")
			return existing, true
		}
		if i < duplicateLookup-1 {
			select {
			case <-ctx.Done():
				return nil, false
			case <-time.After(duplicateDelay):
			}
		}
	}
	return nil, false
}

func (v *Venue) fresh(updated time.Time) bool {
	return !updated.IsZero() && v.now().Sub(updated) <= streamFreshness
}

func (v *Venue) logEntry() *logrus.Entry {
	return v.log.WithSymbol(v.cfg.Symbol).WithFields(logrus.Fields{
		"component": "bybit",
		"venue":     v.cfg.Name,
	})
}

func currency(b rest.CoinBalance) models.CurrencyBalance {
	reserved := b.Wallet - b.Available
	if reserved < 0 {
		reserved = 0
	}
	return models.CurrencyBalance{
		Total:     b.Wallet,
		Reserved:  reserved,
		Available: b.Available,
	}
}
