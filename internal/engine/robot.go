package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"arbot/internal/exchange"
	"arbot/internal/models"
)

const (
	cannotCreateFlowDelay = 3 * time.Minute
	genericErrorDelay     = 2 * time.Minute
	timeoutDelay          = 15 * time.Second
)

// Run ticks until a graceful shutdown completes. Cancelling ctx requests the shutdown: ticks keep
// running, without opening anything new, until no flow or open position is left.
func (e *Engine) Run(ctx context.Context) error {
	e.logEntry("robot").Info("Робот запущен.")

	shutdownLogged := false
	for {
		if ctx.Err() != nil && !shutdownLogged {
			e.logEntry("robot").Info("Запрошена остановка, завершаем активные потоки.")
			shutdownLogged = true
		}

		e.cooldown = 0
		done, err := e.Tick(ctx)
		e.metrics.Tick(e.cooldown)
		if err != nil {
			e.sleep(e.handleTickError(ctx, err))
		}
		if done {
			e.logEntry("robot").Info("Робот остановлен.")
			return nil
		}
		e.sleep(time.Duration(e.cooldown) * e.cfg.Runtime.CooldownPerCall)
	}
}

// Tick runs one pass of the robot and reports whether a requested shutdown has finished.
// Venue calls are not cancelled by ctx; ctx only signals the shutdown request.
func (e *Engine) Tick(ctx context.Context) (bool, error) {
	shutting := ctx.Err() != nil
	ctx = context.WithoutCancel(ctx)
	entry := e.logEntry("robot")

	active, err := e.store.ActiveOpeningFlows(ctx)
	if err != nil {
		return false, err
	}
	if len(active) > 0 {
		if err := e.syncOpeningPositions(ctx); err != nil {
			return false, err
		}
	}

	toFinalise := active
	if !shutting {
		toFinalise, err = e.store.OldActiveOpeningFlows(ctx, e.now().Add(-e.cfg.Trading.TimeToLive))
		if err != nil {
			return false, err
		}
	}
	if err := e.finaliseOpeningFlows(ctx, toFinalise); err != nil {
		return false, err
	}

	if shutting {
		idle, err := e.idle(ctx)
		if err != nil || idle {
			return idle, err
		}
	}

	st, err := e.store.Settings(ctx)
	if err != nil {
		return false, err
	}
	p := resolveParams(e.cfg, st)

	if err := e.closeOpenPositions(ctx, p); err != nil {
		return false, err
	}

	closing, err := e.store.ActiveClosingFlows(ctx)
	if err != nil {
		return false, err
	}
	if len(closing) > 0 {
		if err := e.syncClosingFlows(ctx, closing); err != nil {
			return false, err
		}
		if closing, err = e.store.ActiveClosingFlows(ctx); err != nil {
			return false, err
		}
	}

	switch {
	case st.Hold:
		entry.Debug("Hold включён, новые потоки не открываем.")
		return false, nil
	case len(closing) > 0:
		entry.WithField("closing", len(closing)).Debug("Есть активные потоки закрытия.")
		return false, nil
	case shutting:
		return false, nil
	}

	buyRecent, sellRecent, err := e.recentSides(ctx)
	if err != nil {
		return false, err
	}
	if buyRecent && sellRecent {
		entry.Debug("Свежие потоки открытия есть для обеих сторон.")
		return false, nil
	}

	e.limited()
	makerBal, err := e.maker.Balance(ctx)
	if err != nil {
		return false, fmt.Errorf("баланс мейкера: %w", err)
	}
	e.limited()
	takerBal, err := e.taker.Balance(ctx)
	if err != nil {
		return false, fmt.Errorf("баланс тейкера: %w", err)
	}
	e.snapshot = models.BalanceSnapshot{
		MakerFiat:     makerBal.Fiat.Total,
		MakerCrypto:   makerBal.Crypto.Total,
		TakerFiat:     takerBal.Fiat.Total,
		TakerCrypto:   takerBal.Crypto.Total,
		FiatWarning:   p.FiatWarning,
		FiatStop:      p.FiatStop,
		CryptoWarning: p.CryptoWarning,
		CryptoStop:    p.CryptoStop,
		FxRate:        p.BuyingFxRate,
		Hold:          st.Hold,
	}
	if err := e.store.SaveBalances(ctx, e.snapshot.MakerFiat, e.snapshot.MakerCrypto, e.snapshot.TakerFiat, e.snapshot.TakerCrypto); err != nil {
		return false, err
	}
	entry.WithFields(map[string]interface{}{
		"maker_fiat":   e.snapshot.MakerFiat,
		"maker_crypto": e.snapshot.MakerCrypto,
		"taker_fiat":   e.snapshot.TakerFiat,
		"taker_crypto": e.snapshot.TakerCrypto,
	}).Info("Балансы обновлены.")

	if err := e.checkWarning(ctx, st); err != nil {
		return false, err
	}
	if e.checkBalance(ctx, NewStopChecker(e.snapshot)) {
		return false, nil
	}

	e.limited()
	book, err := e.taker.Market(ctx)
	if err != nil {
		return false, fmt.Errorf("стакан тейкера: %w", err)
	}
	e.limited()
	trades, err := e.taker.Transactions(ctx)
	if err != nil {
		return false, fmt.Errorf("сделки тейкера: %w", err)
	}
	market := takerMarket{
		Balance:  takerBal,
		Book:     book,
		Trades:   trades,
		MakerFee: makerBal.Fee,
		TakerFee: takerBal.Fee,
	}

	if !buyRecent {
		if _, err := e.openMarket(ctx, strategyFor(models.OrderSideBuy), p, market); err != nil {
			return false, err
		}
	}
	if !sellRecent {
		if _, err := e.openMarket(ctx, strategyFor(models.OrderSideSell), p, market); err != nil {
			return false, err
		}
	}
	return false, nil
}

// recentSides reports which sides already have an active flow younger than half the time to live.
func (e *Engine) recentSides(ctx context.Context) (bool, bool, error) {
	recents, err := e.store.RecentOpeningFlows(ctx, e.now().Add(-e.cfg.Trading.TimeToLive/2))
	if err != nil {
		return false, false, err
	}
	var buy, sell bool
	for _, flow := range recents {
		if flow.Status == models.FlowStatusFinalised {
			continue
		}
		switch flow.Side {
		case models.OrderSideBuy:
			buy = true
		case models.OrderSideSell:
			sell = true
		}
	}
	return buy, sell, nil
}

// idle reports whether nothing is left to wait for: no active flows and no open positions.
func (e *Engine) idle(ctx context.Context) (bool, error) {
	opening, err := e.store.ActiveOpeningFlows(ctx)
	if err != nil || len(opening) > 0 {
		return false, err
	}
	closing, err := e.store.ActiveClosingFlows(ctx)
	if err != nil || len(closing) > 0 {
		return false, err
	}
	for _, side := range []models.OrderSide{models.OrderSideBuy, models.OrderSideSell} {
		open, err := e.store.OpenPositions(ctx, side)
		if err != nil || len(open) > 0 {
			return false, err
		}
	}
	return true, nil
}

// handleTickError reports err and returns how long the robot should back off.
func (e *Engine) handleTickError(ctx context.Context, err error) time.Duration {
	entry := e.logEntry("robot").WithError(err)

	switch {
	case errors.Is(err, ErrCannotCreateFlow):
		e.metrics.TickError("cannot_create_flow")
		entry.Warn("Не удалось создать поток.")
		e.notify(ctx, err.Error())
		return cannotCreateFlowDelay
	case errors.Is(err, exchange.ErrOrderNotFound):
		e.metrics.TickError("order_not_found")
		entry.Warn("Ордер не найден.")
		e.notify(ctx, err.Error())
		return 0
	case isTimeout(err):
		e.metrics.TickError("timeout")
		entry.Warn("Таймаут запроса к бирже.")
		return timeoutDelay
	default:
		e.metrics.TickError("generic")
		entry.Error("Ошибка такта.")
		e.notify(ctx, err.Error())
		return genericErrorDelay
	}
}
