package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"arbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "arbot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedFlow(t *testing.T, s *SQLite, side models.OrderSide, created time.Time) models.OpeningFlow {
	t.Helper()
	flow := models.OpeningFlow{Side: side, Price: 100, ValueToUse: 1000, SuggestedClosingPrice: 101, CreatedAt: created}
	require.NoError(t, s.CreateOpeningFlow(context.Background(), &flow))
	return flow
}

func seedPosition(t *testing.T, s *SQLite, flowID int64, side models.OrderSide, txID string, qty, suggested float64) models.OpenPosition {
	t.Helper()
	pos := models.OpenPosition{
		Side: side, TransactionID: txID, OrderID: "o-" + txID, OpeningFlowID: flowID,
		Price: 100, Amount: qty * 100, Qty: qty, SuggestedClosingPrice: suggested,
	}
	require.NoError(t, s.CreateOpenPosition(context.Background(), &pos))
	return pos
}

func TestOpeningFlowScopes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	old := seedFlow(t, s, models.OrderSideBuy, now.Add(-time.Hour))
	recent := seedFlow(t, s, models.OrderSideSell, now.Add(-time.Second))
	done := seedFlow(t, s, models.OrderSideBuy, now.Add(-2*time.Hour))
	require.NoError(t, s.UpdateOpeningFlowStatus(ctx, done.ID, models.FlowStatusFinalised))

	active, err := s.ActiveOpeningFlows(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, old.ID, active[0].ID)

	oldActive, err := s.OldActiveOpeningFlows(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, oldActive, 1)
	assert.Equal(t, old.ID, oldActive[0].ID)

	recents, err := s.RecentOpeningFlows(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, recents, 1)
	assert.Equal(t, recent.ID, recents[0].ID)
	assert.Equal(t, models.OrderSideSell, recents[0].Side)
}

func TestStatusOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	flow := seedFlow(t, s, models.OrderSideBuy, time.Now())

	require.NoError(t, s.UpdateOpeningFlowStatus(ctx, flow.ID, models.FlowStatusSettling))
	require.NoError(t, s.UpdateOpeningFlowStatus(ctx, flow.ID, models.FlowStatusSettling))
	require.NoError(t, s.UpdateOpeningFlowStatus(ctx, flow.ID, models.FlowStatusFinalised))

	err := s.UpdateOpeningFlowStatus(ctx, flow.ID, models.FlowStatusExecuting)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := s.OpeningFlow(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusFinalised, got.Status)

	_, err = s.OpeningFlow(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpeningOrders(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	flow := seedFlow(t, s, models.OrderSideBuy, time.Now())

	order := models.OpeningOrder{FlowID: flow.ID, OrderID: "abc", Role: models.RoleInformant, Price: 95, Amount: 150, Qty: 1.5}
	require.NoError(t, s.CreateOpeningOrder(ctx, &order))
	assert.Equal(t, models.FlowStatusExecuting, order.Status)

	got, err := s.OpeningOrderByOrderID(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Equal(t, models.RoleInformant, got.Role)

	_, err = s.OpeningOrderByOrderID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.UpdateOpeningOrderStatus(ctx, order.ID, models.FlowStatusFinalised))
	orders, err := s.OpeningOrders(ctx, flow.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.FlowStatusFinalised, orders[0].Status)
}

func TestOpenPositionDeduplicatesTransactions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	flow := seedFlow(t, s, models.OrderSideBuy, time.Now())

	seedPosition(t, s, flow.ID, models.OrderSideBuy, "tx-1", 1, 110)

	dup := models.OpenPosition{Side: models.OrderSideBuy, TransactionID: "tx-1", OpeningFlowID: flow.ID}
	err := s.CreateOpenPosition(ctx, &dup)
	assert.ErrorIs(t, err, ErrDuplicate)

	booked, err := s.TransactionBooked(ctx, "tx-1")
	require.NoError(t, err)
	assert.True(t, booked)

	booked, err = s.TransactionBooked(ctx, "tx-2")
	require.NoError(t, err)
	assert.False(t, booked)
}

func TestClosingFlowClaimsPositionsOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	flow := seedFlow(t, s, models.OrderSideBuy, time.Now())

	a := seedPosition(t, s, flow.ID, models.OrderSideBuy, "tx-a", 2, 310)
	b := seedPosition(t, s, flow.ID, models.OrderSideBuy, "tx-b", 0.01, 410)
	seedPosition(t, s, flow.ID, models.OrderSideSell, "tx-c", 1, 90)

	open, err := s.OpenPositions(ctx, models.OrderSideBuy)
	require.NoError(t, err)
	require.Len(t, open, 2)

	closing := models.ClosingFlow{Side: models.OrderSideBuy, DesiredPrice: 310.5, Qty: 2.01, Amount: 201}
	require.NoError(t, s.CreateClosingFlow(ctx, &closing, []int64{a.ID, b.ID}))
	assert.NotZero(t, closing.ID)

	open, err = s.OpenPositions(ctx, models.OrderSideBuy)
	require.NoError(t, err)
	assert.Empty(t, open)

	claimed, err := s.ClosingFlowPositions(ctx, closing.ID)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)

	again := models.ClosingFlow{Side: models.OrderSideBuy, DesiredPrice: 310, Qty: 2, Amount: 200}
	err = s.CreateClosingFlow(ctx, &again, []int64{a.ID})
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	active, err := s.ActiveClosingFlows(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1, "a failed claim must not leave a flow behind")
}

func TestClosePositionsAndFinish(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	closing := models.ClosingFlow{Side: models.OrderSideSell, DesiredPrice: 100, Qty: 1, Amount: 100}
	require.NoError(t, s.CreateClosingFlow(ctx, &closing, nil))

	pos := models.ClosePosition{FlowID: closing.ID, OrderID: "t-1"}
	require.NoError(t, s.CreateClosePosition(ctx, &pos))

	positions, err := s.ClosePositions(ctx, closing.ID)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.False(t, positions[0].Filled)

	require.NoError(t, s.FillClosePosition(ctx, pos.ID, 99.5, 0.995))
	positions, err = s.ClosePositions(ctx, closing.ID)
	require.NoError(t, err)
	assert.True(t, positions[0].Filled)
	assert.InDelta(t, 0.995, positions[0].Qty, 1e-12)

	closing.CryptoProfit = 0.005
	closing.FiatProfit = -0.5
	require.NoError(t, s.FinishClosingFlow(ctx, closing))
	assert.ErrorIs(t, s.FinishClosingFlow(ctx, closing), ErrNotFound)

	active, err := s.ActiveClosingFlows(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	latest, err := s.ClosingFlows(ctx, 5)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.True(t, latest[0].Done)
	assert.InDelta(t, -0.5, latest[0].FiatProfit, 1e-12)
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	st, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.False(t, st.Hold)
	assert.Nil(t, st.BuyingProfit)
	assert.True(t, st.LastWarning.IsZero())

	profit := 0.7
	warned := time.Now().Truncate(time.Second)
	st.Hold = true
	st.BuyingProfit = &profit
	st.LastWarning = warned
	st.TakerCrypto = 1.25
	require.NoError(t, s.SaveSettings(ctx, st))

	got, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.True(t, got.Hold)
	require.NotNil(t, got.BuyingProfit)
	assert.Equal(t, 0.7, *got.BuyingProfit)
	assert.Nil(t, got.SellingProfit)
	assert.True(t, got.LastWarning.Equal(warned))
	assert.Equal(t, 1.25, got.TakerCrypto)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestLatestOpenPosition(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.LatestOpenPosition(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	flow := seedFlow(t, s, models.OrderSideBuy, time.Now())
	seedPosition(t, s, flow.ID, models.OrderSideBuy, "tx-1", 1, 110)
	last := seedPosition(t, s, flow.ID, models.OrderSideBuy, "tx-2", 1, 110)

	got, err := s.LatestOpenPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, last.ID, got.ID)

	byFlow, err := s.OpeningFlowPositions(ctx, flow.ID)
	require.NoError(t, err)
	assert.Len(t, byFlow, 2)
}

func TestSettingsPartialUpdates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	profit := 1.5
	st, err := s.Settings(ctx)
	require.NoError(t, err)
	st.SellingProfit = &profit
	require.NoError(t, s.SaveSettings(ctx, st))

	warned := time.Now()
	require.NoError(t, s.SetHold(ctx, true))
	require.NoError(t, s.SaveBalances(ctx, 1000, 0.5, 2000, 0.7))
	require.NoError(t, s.SetLastWarning(ctx, warned))

	got, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.True(t, got.Hold)
	assert.Equal(t, 1000.0, got.MakerFiat)
	assert.Equal(t, 0.7, got.TakerCrypto)
	assert.True(t, got.LastWarning.Equal(warned))
	require.NotNil(t, got.SellingProfit, "partial updates keep overrides")
	assert.Equal(t, 1.5, *got.SellingProfit)
}
