package engine

import (
	"context"
	"fmt"

	"arbot/internal/models"
)

type thresholdKind string

const (
	thresholdWarning thresholdKind = "warning"
	thresholdStop    thresholdKind = "stop"
)

// BalanceChecker compares the combined balance of both venues with one kind of threshold.
// Maker fiat and fiat thresholds are divided by the snapshot's fx rate so both venues are
// summed in taker units.
type BalanceChecker struct {
	snapshot models.BalanceSnapshot
	kind     thresholdKind
}

func NewWarningChecker(snapshot models.BalanceSnapshot) BalanceChecker {
	return BalanceChecker{snapshot: snapshot, kind: thresholdWarning}
}

func NewStopChecker(snapshot models.BalanceSnapshot) BalanceChecker {
	return BalanceChecker{snapshot: snapshot, kind: thresholdStop}
}

func (c BalanceChecker) fx() float64 {
	if c.snapshot.FxRate <= 0 {
		return 1
	}
	return c.snapshot.FxRate
}

func (c BalanceChecker) TotalBalanceFor(currency models.CurrencyType) float64 {
	if currency == models.CurrencyFiat {
		return c.snapshot.MakerFiat/c.fx() + c.snapshot.TakerFiat
	}
	return c.snapshot.MakerCrypto + c.snapshot.TakerCrypto
}

func (c BalanceChecker) BalanceFlagFor(currency models.CurrencyType) float64 {
	switch {
	case currency == models.CurrencyFiat && c.kind == thresholdWarning:
		return c.snapshot.FiatWarning / c.fx()
	case currency == models.CurrencyFiat:
		return c.snapshot.FiatStop / c.fx()
	case c.kind == thresholdWarning:
		return c.snapshot.CryptoWarning
	default:
		return c.snapshot.CryptoStop
	}
}

func (c BalanceChecker) Alert(currency models.CurrencyType) bool {
	return c.TotalBalanceFor(currency) <= c.BalanceFlagFor(currency)
}

func (c BalanceChecker) message(currency models.CurrencyType) string {
	title := "Предупреждение"
	if c.kind == thresholdStop {
		title = "Остановка торговли"
	}
	return fmt.Sprintf("%s: баланс %s %s не выше порога %s", title, currency,
		formatFloatPlain(c.TotalBalanceFor(currency)), formatFloatPlain(c.BalanceFlagFor(currency)))
}

// checkBalance logs and notifies every tripped threshold of c and reports whether any tripped.
func (e *Engine) checkBalance(ctx context.Context, c BalanceChecker) bool {
	alerted := false
	for _, currency := range []models.CurrencyType{models.CurrencyFiat, models.CurrencyCrypto} {
		if !c.Alert(currency) {
			continue
		}
		alerted = true
		e.logEntry("balance").WithFields(map[string]interface{}{
			"kind":      c.kind,
			"currency":  currency,
			"total":     c.TotalBalanceFor(currency),
			"threshold": c.BalanceFlagFor(currency),
		}).Warn("Сработал порог баланса.")
		e.notify(ctx, c.message(currency))
	}
	return alerted
}

// checkWarning runs the warning checker at most once per warning interval and stamps the time
// of the last warning sent.
func (e *Engine) checkWarning(ctx context.Context, st models.Settings) error {
	now := e.now()
	if !st.LastWarning.IsZero() && now.Sub(st.LastWarning) < e.cfg.Balance.WarningInterval {
		return nil
	}
	if !e.checkBalance(ctx, NewWarningChecker(e.snapshot)) {
		return nil
	}
	return e.store.SetLastWarning(ctx, now)
}
