package engine

import (
	"math"

	"arbot/internal/models"

	"github.com/shopspring/decimal"
)

type rung struct {
	role     models.OrderRole
	fraction decimal.Decimal
	offset   float64
}

// ladder rungs in placement order. Fractions add up to one.
var ladder = []rung{
	{role: models.RoleFirstTip, fraction: decimal.RequireFromString("0.50"), offset: 0},
	{role: models.RoleSecondTip, fraction: decimal.RequireFromString("0.25"), offset: 0.01},
	{role: models.RoleSupport, fraction: decimal.RequireFromString("0.05"), offset: 0.02},
	{role: models.RoleInformant, fraction: decimal.RequireFromString("0.15"), offset: 0.05},
	{role: models.RoleFinal, fraction: decimal.RequireFromString("0.05"), offset: 0.10},
}

type LadderOrder struct {
	Role  models.OrderRole
	Price float64
	// Amount is in the flow's native unit: fiat for buys, crypto for sells.
	Amount decimal.Decimal
	Qty    decimal.Decimal
}

// CalcLadder splits value over the ladder rungs. Buy rungs step below price, sell rungs above.
func CalcLadder(price, value float64, side models.OrderSide) []LadderOrder {
	s := strategyFor(side)
	total := decimal.NewFromFloat(value)

	orders := make([]LadderOrder, 0, len(ladder))
	for _, r := range ladder {
		rungPrice := s.rungPrice(price, r.offset)
		amount := total.Mul(r.fraction)
		orders = append(orders, LadderOrder{
			Role:   r.role,
			Price:  rungPrice,
			Amount: amount,
			Qty:    s.rungQty(amount.InexactFloat64(), rungPrice),
		})
	}
	return orders
}

// ValueNeeded grosses value up for the maker fee and the taker fee.
func ValueNeeded(value, makerFee, takerFee float64) float64 {
	v := decimal.NewFromFloat(value)
	hundred := decimal.NewFromInt(100)
	gross := v.Add(v.Mul(decimal.NewFromFloat(makerFee)).Div(hundred))
	net := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(takerFee).Div(hundred))
	return gross.Div(net).InexactFloat64()
}

// DesiredPrice is the quantity weighted average of the positions' suggested closing prices.
func DesiredPrice(positions []models.OpenPosition) (price, qty, amount float64) {
	weighted, totalQty, totalAmount := decimal.Zero, decimal.Zero, decimal.Zero
	for _, p := range positions {
		q := decimal.NewFromFloat(p.Qty)
		weighted = weighted.Add(q.Mul(decimal.NewFromFloat(p.SuggestedClosingPrice)))
		totalQty = totalQty.Add(q)
		totalAmount = totalAmount.Add(decimal.NewFromFloat(p.Amount))
	}
	if totalQty.IsZero() {
		return 0, 0, totalAmount.InexactFloat64()
	}
	return weighted.Div(totalQty).InexactFloat64(), totalQty.InexactFloat64(), totalAmount.InexactFloat64()
}

// positive reports whether v is a usable price or size: finite and above zero.
func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
