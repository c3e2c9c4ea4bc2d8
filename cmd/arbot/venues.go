package main

import (
	"context"
	"fmt"

	"arbot/internal/config"
	"arbot/internal/exchange"
	"arbot/internal/exchange/bybit"
	"arbot/internal/exchange/paper"
	"arbot/internal/notify"
)

func (a *app) openVenues(ctx context.Context) (exchange.Exchange, exchange.Exchange, func(), error) {
	maker, closeMaker, err := a.openVenue(ctx, "maker", a.cfg.Maker)
	if err != nil {
		return nil, nil, nil, err
	}
	taker, closeTaker, err := a.openVenue(ctx, "taker", a.cfg.Taker)
	if err != nil {
		closeMaker()
		return nil, nil, nil, err
	}
	return maker, taker, func() {
		closeMaker()
		closeTaker()
	}, nil
}

// openVenue builds one venue. In dry run a live venue only feeds market data to a paper venue
// that keeps the orders and balances.
func (a *app) openVenue(ctx context.Context, name string, vc config.VenueConfig) (exchange.Exchange, func(), error) {
	if vc.Venue == "paper" {
		return paper.New(paper.Config{
			Name:     name,
			Symbol:   vc.Symbol,
			Fee:      vc.Fee,
			Fiat:     vc.PaperFiat,
			Crypto:   vc.PaperCrypto,
			AutoFill: true,
		}), func() {}, nil
	}

	live := bybit.New(bybit.Config{
		Name:        name,
		BaseURL:     vc.BaseUrl,
		WSURL:       vc.WSUrl,
		AccountType: vc.AccountType,
		APIKey:      vc.ApiKey,
		Secret:      vc.Secret,
		Symbol:      vc.Symbol,
		Fee:         vc.Fee,
	}, a.log)
	if err := live.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("Не удалось подключиться к %s: %w", name, err)
	}
	closeLive := func() {
		if err := live.Close(); err != nil {
			a.log.WithComponent("cli").WithError(err).Warn("Ошибка закрытия потока рынка.")
		}
	}
	if !a.cfg.Runtime.DryRun {
		return live, closeLive, nil
	}

	rules, err := live.Rules(ctx)
	if err != nil {
		closeLive()
		return nil, nil, err
	}
	a.log.WithComponent("cli").WithField("venue", name).Info("Dry run: ордера остаются в бумажной площадке.")
	return paper.New(paper.Config{
		Name:     name,
		Symbol:   vc.Symbol,
		Fee:      vc.Fee,
		Fiat:     vc.PaperFiat,
		Crypto:   vc.PaperCrypto,
		Rules:    rules,
		Source:   live,
		AutoFill: true,
	}), closeLive, nil
}

func (a *app) notifier() notify.Notifier {
	sinks := notify.Multi{notify.NewLog(a.log)}
	if a.cfg.Notify.TelegramToken != "" && a.cfg.Notify.TelegramChatID != 0 {
		tg, err := notify.NewTelegram(a.cfg.Notify.TelegramToken, a.cfg.Notify.TelegramChatID, "arbot")
		if err != nil {
			a.log.WithComponent("cli").WithError(err).Warn("Telegram недоступен, уведомления только в лог.")
		} else {
			sinks = append(sinks, tg)
		}
	}
	return notify.NewThrottle(sinks, a.cfg.Notify.MinInterval)
}
