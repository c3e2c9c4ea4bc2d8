package engine

import (
	"arbot/internal/models"
	"arbot/internal/simulator"

	"github.com/shopspring/decimal"
)

const repriceStep = 0.03

// sideStrategy holds everything that differs between buy and sell flows.
// Side is always the maker side of the opening flow, which is also the side of the positions
// a closing flow offloads.
type sideStrategy interface {
	side() models.OrderSide
	// closingSide is the taker order side that offloads positions of side.
	closingSide() models.OrderSide
	valueToUse(p params) float64
	profit(p params) float64
	fxRate(p params) float64

	takerLevels(book models.OrderBook) []models.Level
	takerAvailable(bal models.Balance) float64
	target(valueNeeded float64) simulator.Target
	remoteValue(valueNeeded, safest, fx float64) float64
	makerPrice(value, remote, fx, profit float64) float64
	rungPrice(price, offset float64) float64
	rungQty(amount, price float64) decimal.Decimal

	nextPriceAndQty(flow models.ClosingFlow, closes []models.ClosePosition) (float64, float64)
	profits(flow models.ClosingFlow, opens []models.OpenPosition, closes []models.ClosePosition) (float64, float64)
}

func strategyFor(side models.OrderSide) sideStrategy {
	if side == models.OrderSideSell {
		return sellStrategy{}
	}
	return buyStrategy{}
}

// buyStrategy spends maker fiat on crypto and sells that crypto on the taker.
type buyStrategy struct{}

func (buyStrategy) side() models.OrderSide        { return models.OrderSideBuy }
func (buyStrategy) closingSide() models.OrderSide { return models.OrderSideSell }
func (buyStrategy) valueToUse(p params) float64   { return p.BuyingAmountToSpend }
func (buyStrategy) profit(p params) float64       { return p.BuyingProfit }
func (buyStrategy) fxRate(p params) float64       { return p.BuyingFxRate }

func (buyStrategy) takerLevels(book models.OrderBook) []models.Level {
	return book.Bids
}

func (buyStrategy) takerAvailable(bal models.Balance) float64 {
	return bal.Crypto.Available
}

func (buyStrategy) target(valueNeeded float64) simulator.Target {
	return simulator.Fiat(valueNeeded)
}

func (buyStrategy) remoteValue(valueNeeded, safest, fx float64) float64 {
	return valueNeeded / (safest * fx)
}

func (buyStrategy) makerPrice(value, remote, fx, profit float64) float64 {
	return value / remote * (1 - profit/100)
}

func (buyStrategy) rungPrice(price, offset float64) float64 {
	return price * (1 - offset)
}

func (buyStrategy) rungQty(amount, price float64) decimal.Decimal {
	return decimal.NewFromFloat(amount).Div(decimal.NewFromFloat(price))
}

func (buyStrategy) nextPriceAndQty(flow models.ClosingFlow, closes []models.ClosePosition) (float64, float64) {
	_, closed := closeTotals(closes)
	price := flow.DesiredPrice - repriceVariation(len(closes))
	qty := decimal.NewFromFloat(flow.Qty).Sub(closed)
	return price, qty.InexactFloat64()
}

func (buyStrategy) profits(flow models.ClosingFlow, opens []models.OpenPosition, closes []models.ClosePosition) (float64, float64) {
	amount, qty := closeTotals(closes)
	spent := openAmount(opens).Div(fxDecimal(flow.FxRate))
	crypto := decimal.NewFromFloat(flow.Qty).Sub(qty)
	fiat := amount.Sub(spent)
	return crypto.InexactFloat64(), fiat.InexactFloat64()
}

// sellStrategy sells maker crypto for fiat and buys the crypto back on the taker.
type sellStrategy struct{}

func (sellStrategy) side() models.OrderSide        { return models.OrderSideSell }
func (sellStrategy) closingSide() models.OrderSide { return models.OrderSideBuy }
func (sellStrategy) valueToUse(p params) float64   { return p.SellingQuantityToSell }
func (sellStrategy) profit(p params) float64       { return p.SellingProfit }
func (sellStrategy) fxRate(p params) float64       { return p.SellingFxRate }

func (sellStrategy) takerLevels(book models.OrderBook) []models.Level {
	return book.Asks
}

func (sellStrategy) takerAvailable(bal models.Balance) float64 {
	return bal.Fiat.Available
}

func (sellStrategy) target(valueNeeded float64) simulator.Target {
	return simulator.Crypto(valueNeeded)
}

func (sellStrategy) remoteValue(valueNeeded, safest, _ float64) float64 {
	return valueNeeded * safest
}

func (sellStrategy) makerPrice(value, remote, fx, profit float64) float64 {
	return remote * fx / value * (1 + profit/100)
}

func (sellStrategy) rungPrice(price, offset float64) float64 {
	return price * (1 + offset)
}

func (sellStrategy) rungQty(amount, _ float64) decimal.Decimal {
	return decimal.NewFromFloat(amount)
}

func (sellStrategy) nextPriceAndQty(flow models.ClosingFlow, closes []models.ClosePosition) (float64, float64) {
	spent, _ := closeTotals(closes)
	price := flow.DesiredPrice + repriceVariation(len(closes))
	owed := decimal.NewFromFloat(flow.Qty).Mul(decimal.NewFromFloat(flow.DesiredPrice)).Sub(spent)
	qty := owed.Div(decimal.NewFromFloat(price))
	return price, qty.InexactFloat64()
}

func (sellStrategy) profits(flow models.ClosingFlow, opens []models.OpenPosition, closes []models.ClosePosition) (float64, float64) {
	amount, qty := closeTotals(closes)
	received := openAmount(opens).Div(fxDecimal(flow.FxRate))
	crypto := qty.Sub(decimal.NewFromFloat(flow.Qty))
	fiat := received.Sub(amount)
	return crypto.InexactFloat64(), fiat.InexactFloat64()
}

func repriceVariation(retries int) float64 {
	return float64(retries*retries) * repriceStep
}

func closeTotals(closes []models.ClosePosition) (decimal.Decimal, decimal.Decimal) {
	amount, qty := decimal.Zero, decimal.Zero
	for _, c := range closes {
		if !c.Filled {
			continue
		}
		amount = amount.Add(decimal.NewFromFloat(c.Amount))
		qty = qty.Add(decimal.NewFromFloat(c.Qty))
	}
	return amount, qty
}

func openAmount(opens []models.OpenPosition) decimal.Decimal {
	total := decimal.Zero
	for _, o := range opens {
		total = total.Add(decimal.NewFromFloat(o.Amount))
	}
	return total
}

func fxDecimal(fx float64) decimal.Decimal {
	if fx <= 0 {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromFloat(fx)
}
