package engine

import (
	"context"
	"testing"
	"time"

	"arbot/internal/exchange/paper"
	"arbot/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMarketBuyPlacesLadder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	flow, err := f.e.openMarket(ctx, strategyFor(models.OrderSideBuy), f.params(), f.market(t))
	require.NoError(t, err)

	remote := ValueNeeded(1000, 0.25, 0.1) / 30000
	assert.Equal(t, models.OrderSideBuy, flow.Side)
	assert.Equal(t, 30000.0, flow.SuggestedClosingPrice)
	assert.InDelta(t, 1000/remote*0.99, flow.Price, 1e-6)
	assert.Less(t, flow.Price, 30000.0)

	orders, err := f.store.OpeningOrders(ctx, flow.ID)
	require.NoError(t, err)
	require.Len(t, orders, 5)

	roles := []models.OrderRole{models.RoleFirstTip, models.RoleSecondTip, models.RoleSupport, models.RoleInformant, models.RoleFinal}
	total := decimal.Zero
	for i, order := range orders {
		assert.Equal(t, roles[i], order.Role)
		assert.Equal(t, models.FlowStatusExecuting, order.Status)
		assert.LessOrEqual(t, order.Price, flow.Price)
		total = total.Add(decimal.NewFromFloat(order.Amount))
	}
	assert.Equal(t, flow.Price, orders[0].Price)
	assert.InDelta(t, flow.Price*0.9, orders[4].Price, 1e-6)
	assert.True(t, total.Equal(decimal.NewFromInt(1000)), "ladder spends %s", total)

	open, err := f.maker.Orders(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 5)
	for _, o := range open {
		assert.Equal(t, models.OrderSideBuy, o.Side)
	}
}

func TestOpenMarketSellUsesAsks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	flow, err := f.e.openMarket(ctx, strategyFor(models.OrderSideSell), f.params(), f.market(t))
	require.NoError(t, err)

	remote := ValueNeeded(0.1, 0.25, 0.1) * 30100
	assert.Equal(t, 30100.0, flow.SuggestedClosingPrice)
	assert.InDelta(t, remote/0.1*1.01, flow.Price, 1e-6)
	assert.Greater(t, flow.Price, 30100.0)

	orders, err := f.store.OpeningOrders(ctx, flow.ID)
	require.NoError(t, err)
	require.Len(t, orders, 5)
	for i := 1; i < len(orders); i++ {
		assert.Greater(t, orders[i].Price, flow.Price)
	}
	assert.InDelta(t, 0.05, orders[0].Qty, 1e-12)
	assert.InDelta(t, 0.015, orders[3].Qty, 1e-12)
}

func TestOpenMarketRejectsWhenTakerCannotCover(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.taker.SetBalance(100000, 0.001)

	_, err := f.e.openMarket(ctx, strategyFor(models.OrderSideBuy), f.params(), f.market(t))
	require.ErrorIs(t, err, ErrCannotCreateFlow)

	var typed *CannotCreateFlowError
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, models.OrderSideBuy, typed.Side)

	flows, err := f.store.ActiveOpeningFlows(ctx)
	require.NoError(t, err)
	assert.Empty(t, flows)
}

func TestOpenMarketRejectsNonPositiveMakerPrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.params()
	p.BuyingProfit = 100

	_, err := f.e.openMarket(ctx, strategyFor(models.OrderSideBuy), p, f.market(t))
	require.ErrorIs(t, err, ErrCannotCreateFlow)
	assert.Contains(t, err.Error(), "цена мейкера")

	flows, err := f.store.ActiveOpeningFlows(ctx)
	require.NoError(t, err)
	assert.Empty(t, flows)
}

func TestOpenMarketEmptyBook(t *testing.T) {
	f := newFixture(t)
	market := f.market(t)
	market.Book.Asks = nil

	_, err := f.e.openMarket(context.Background(), strategyFor(models.OrderSideSell), f.params(), market)
	assert.ErrorIs(t, err, ErrCannotCreateFlow)
}

func TestOpenMarketKeepsPartialLadder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.maker.FailNextSends(paper.SendRejected, 0, paper.SendDropped)

	flow, err := f.e.openMarket(ctx, strategyFor(models.OrderSideBuy), f.params(), f.market(t))
	require.NoError(t, err)

	orders, err := f.store.OpeningOrders(ctx, flow.ID)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, models.RoleSecondTip, orders[0].Role)
	assert.Equal(t, models.RoleInformant, orders[1].Role)
}

func TestOpenMarketRecoversLostRung(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.maker.FailNextSends(paper.SendLost)

	flow, err := f.e.openMarket(ctx, strategyFor(models.OrderSideBuy), f.params(), f.market(t))
	require.NoError(t, err)

	orders, err := f.store.OpeningOrders(ctx, flow.ID)
	require.NoError(t, err)
	require.Len(t, orders, 5)

	open, err := f.maker.Orders(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 5, "lost order is found, not sent twice")
}

func TestSyncPositionsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	flow, err := f.e.openMarket(ctx, strategyFor(models.OrderSideBuy), f.params(), f.market(t))
	require.NoError(t, err)
	orders, err := f.store.OpeningOrders(ctx, flow.ID)
	require.NoError(t, err)

	_, err = f.maker.Fill(orders[0].OrderID, orders[0].Qty/2)
	require.NoError(t, err)
	_, err = f.maker.Fill(orders[1].OrderID, 0)
	require.NoError(t, err)

	stray, err := f.maker.SendOrder(ctx, models.OrderSideBuy, 100, 1)
	require.NoError(t, err)
	_, err = f.maker.Fill(stray.ID, 0)
	require.NoError(t, err)

	require.NoError(t, f.e.syncOpeningPositions(ctx))
	require.NoError(t, f.e.syncOpeningPositions(ctx))

	positions, err := f.store.OpenPositions(ctx, models.OrderSideBuy)
	require.NoError(t, err)
	require.Len(t, positions, 2, "stray fills are ignored and nothing is booked twice")
	for _, pos := range positions {
		assert.Equal(t, flow.ID, pos.OpeningFlowID)
		assert.Equal(t, 30000.0, pos.SuggestedClosingPrice)
	}

	sells, err := f.store.OpenPositions(ctx, models.OrderSideSell)
	require.NoError(t, err)
	assert.Empty(t, sells)
}

func TestSyncPositionsSkipsTradesBeforeThreshold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	start := f.now

	flow, err := f.e.openMarket(ctx, strategyFor(models.OrderSideSell), f.params(), f.market(t))
	require.NoError(t, err)
	orders, err := f.store.OpeningOrders(ctx, flow.ID)
	require.NoError(t, err)

	f.now = start.Add(2 * time.Hour)
	_, err = f.maker.Fill(orders[0].OrderID, 0)
	require.NoError(t, err)
	require.NoError(t, f.e.syncOpeningPositions(ctx))

	f.now = start
	_, err = f.maker.Fill(orders[1].OrderID, 0)
	require.NoError(t, err)
	f.now = start.Add(2 * time.Hour)
	require.NoError(t, f.e.syncOpeningPositions(ctx))

	positions, err := f.store.OpenPositions(ctx, models.OrderSideSell)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, orders[0].OrderID, positions[0].OrderID)
}

func TestFinaliseOpeningFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	flow, err := f.e.openMarket(ctx, strategyFor(models.OrderSideBuy), f.params(), f.market(t))
	require.NoError(t, err)
	orders, err := f.store.OpeningOrders(ctx, flow.ID)
	require.NoError(t, err)

	_, err = f.maker.Fill(orders[0].OrderID, 0)
	require.NoError(t, err)
	_, err = f.maker.Fill(orders[3].OrderID, orders[3].Qty/3)
	require.NoError(t, err)

	require.NoError(t, f.e.finaliseOpeningFlows(ctx, []models.OpeningFlow{flow}))

	got, err := f.store.OpeningFlow(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusSettling, got.Status)

	open, err := f.maker.Orders(ctx)
	require.NoError(t, err)
	assert.Empty(t, open, "unfinished rungs are cancelled")
	assert.False(t, f.notes.contains("информатор"))

	require.NoError(t, f.e.finaliseOpeningFlows(ctx, []models.OpeningFlow{got}))

	got, err = f.store.OpeningFlow(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusFinalised, got.Status)
	assert.True(t, f.notes.contains("информатор"), "a hit informant is reported")

	orders, err = f.store.OpeningOrders(ctx, flow.ID)
	require.NoError(t, err)
	for _, order := range orders {
		assert.Equal(t, models.FlowStatusFinalised, order.Status)
	}
}

func TestFinaliseOpeningFlowWithoutOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.maker.FailNextSends(paper.SendRejected, paper.SendRejected, paper.SendRejected, paper.SendRejected, paper.SendRejected)

	flow, err := f.e.openMarket(ctx, strategyFor(models.OrderSideBuy), f.params(), f.market(t))
	require.NoError(t, err, "a flow without rungs is kept for inspection")

	require.NoError(t, f.e.finaliseOpeningFlows(ctx, []models.OpeningFlow{flow}))
	got, err := f.store.OpeningFlow(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusFinalised, got.Status)
}
