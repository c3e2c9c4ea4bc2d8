// Package simulator estimates the price at which a target size would realistically execute
// against one side of an order book.
package simulator

import (
	"errors"
	"time"

	"arbot/internal/models"

	"github.com/shopspring/decimal"
)

var ErrEmptyBook = errors.New("пустая сторона стакана")

// Target is the size to fill, either in fiat (quote) or in crypto (base).
type Target struct {
	Amount   float64
	Currency models.CurrencyType
}

func Fiat(amount float64) Target {
	return Target{Amount: amount, Currency: models.CurrencyFiat}
}

func Crypto(amount float64) Target {
	return Target{Amount: amount, Currency: models.CurrencyCrypto}
}

// Run walks levels, best first, and returns the price of the level at which target is met.
// Volume traded during the last window before the most recent trade is assumed to be taken by
// someone else first and is skipped from the front of the book. Fiat targets convert every
// level's notional with fxRate. When the book runs out, the last level's price is returned.
func Run(window time.Duration, trades []models.Trade, levels []models.Level, target Target, fxRate float64) (float64, error) {
	if len(levels) == 0 {
		return 0, ErrEmptyBook
	}
	if fxRate <= 0 {
		fxRate = 1
	}

	toSkip := VolumeToSkip(window, trades)
	fx := decimal.NewFromFloat(fxRate)
	want := decimal.NewFromFloat(target.Amount)
	seen := decimal.Zero

	for _, level := range levels {
		qty := decimal.NewFromFloat(level.Qty)
		if toSkip.IsPositive() {
			if toSkip.GreaterThanOrEqual(qty) {
				toSkip = toSkip.Sub(qty)
				continue
			}
			qty = qty.Sub(toSkip)
			toSkip = decimal.Zero
		}

		price := decimal.NewFromFloat(level.Price)
		contribution := qty
		if target.Currency == models.CurrencyFiat {
			contribution = qty.Mul(price).Mul(fx)
		}
		if contribution.GreaterThanOrEqual(want.Sub(seen)) {
			return level.Price, nil
		}
		seen = seen.Add(contribution)
	}

	return levels[len(levels)-1].Price, nil
}

// VolumeToSkip sums the quantity of trades that happened strictly within window of the most
// recent one.
func VolumeToSkip(window time.Duration, trades []models.Trade) decimal.Decimal {
	total := decimal.Zero
	if window <= 0 || len(trades) == 0 {
		return total
	}

	latest := trades[0].Timestamp
	for _, trade := range trades[1:] {
		if trade.Timestamp.After(latest) {
			latest = trade.Timestamp
		}
	}
	threshold := latest.Add(-window)

	for _, trade := range trades {
		if trade.Timestamp.After(threshold) {
			total = total.Add(decimal.NewFromFloat(trade.Qty))
		}
	}
	return total
}
