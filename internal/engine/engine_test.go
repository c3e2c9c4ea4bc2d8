package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"arbot/internal/config"
	"arbot/internal/exchange"
	"arbot/internal/exchange/paper"
	"arbot/internal/logger"
	"arbot/internal/models"
	"arbot/internal/store"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Notify(_ context.Context, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) contains(part string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.msgs {
		if strings.Contains(msg, part) {
			return true
		}
	}
	return false
}

type fixture struct {
	e      *Engine
	cfg    *config.Config
	maker  *paper.Venue
	taker  *paper.Venue
	store  *store.SQLite
	notes  *recorder
	now    time.Time
	sleeps []time.Duration
}

func testConfig() *config.Config {
	return &config.Config{
		Maker: config.VenueConfig{Venue: "paper", Symbol: "BTCUSD", Fee: 0.25},
		Taker: config.VenueConfig{Venue: "paper", Symbol: "BTCUSDT", Fee: 0.1},
		Trading: config.TradingConfig{
			TimeToLive:        20 * time.Second,
			CloseTimeToLive:   30 * time.Second,
			Buying:            config.BuyingConfig{AmountToSpendPerOrder: 1000, Profit: 1},
			Selling:           config.SellingConfig{QuantityToSellPerOrder: 0.1, Profit: 1},
			BuyingFxRate:      1,
			SellingFxRate:     1,
			LostOrderAttempts: 1,
		},
		Balance: config.BalanceConfig{WarningInterval: 30 * time.Minute},
		Runtime: config.RuntimeConfig{CooldownPerCall: time.Second},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "arbot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{
		cfg:   testConfig(),
		store: st,
		notes: &recorder{},
		now:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	f.maker = paper.New(paper.Config{Name: "maker", Symbol: "BTCUSD", Fee: 0.25, Fiat: 100000, Crypto: 10})
	f.taker = paper.New(paper.Config{
		Name:   "taker",
		Symbol: "BTCUSDT",
		Fee:    0.1,
		Fiat:   100000,
		Crypto: 10,
		Rules:  exchange.InstrumentRules{MinQty: 0.001, MinNotional: 1},
	})
	f.maker.SetClock(clock)
	f.taker.SetClock(clock)
	f.taker.SetBook(models.OrderBook{
		Symbol: "BTCUSDT",
		Bids:   []models.Level{{Price: 30000, Qty: 1}, {Price: 29900, Qty: 2}, {Price: 29800, Qty: 5}},
		Asks:   []models.Level{{Price: 30100, Qty: 1}, {Price: 30200, Qty: 2}, {Price: 30300, Qty: 5}},
	})

	f.e = New(f.cfg, f.maker, f.taker, st, f.notes, logger.Discard(),
		WithClock(clock),
		WithSleep(func(d time.Duration) { f.sleeps = append(f.sleeps, d) }),
		WithLostOrderPolicy(exchange.LostOrderPolicy{Attempts: 1, Delay: 0}),
	)
	return f
}

func (f *fixture) params() params {
	return resolveParams(f.cfg, models.Settings{})
}

func (f *fixture) market(t *testing.T) takerMarket {
	t.Helper()
	ctx := context.Background()
	bal, err := f.taker.Balance(ctx)
	require.NoError(t, err)
	book, err := f.taker.Market(ctx)
	require.NoError(t, err)
	return takerMarket{Balance: bal, Book: book, MakerFee: 0.25, TakerFee: 0.1}
}

type seed struct {
	qty       float64
	amount    float64
	suggested float64
}

// seedPositions books positions of side under a fresh opening flow.
func (f *fixture) seedPositions(t *testing.T, side models.OrderSide, seeds ...seed) []models.OpenPosition {
	t.Helper()
	ctx := context.Background()

	flow := models.OpeningFlow{Side: side, Price: 1, ValueToUse: 1, SuggestedClosingPrice: 1, CreatedAt: f.now}
	require.NoError(t, f.store.CreateOpeningFlow(ctx, &flow))
	require.NoError(t, f.store.UpdateOpeningFlowStatus(ctx, flow.ID, models.FlowStatusFinalised))

	var out []models.OpenPosition
	for i, s := range seeds {
		pos := models.OpenPosition{
			Side:                  side,
			TransactionID:         fmt.Sprintf("seed-%s-%d-%d", side, flow.ID, i),
			OrderID:               "seed",
			OpeningFlowID:         flow.ID,
			Price:                 s.amount / s.qty,
			Amount:                s.amount,
			Qty:                   s.qty,
			SuggestedClosingPrice: s.suggested,
			CreatedAt:             f.now,
		}
		require.NoError(t, f.store.CreateOpenPosition(ctx, &pos))
		out = append(out, pos)
	}
	return out
}
