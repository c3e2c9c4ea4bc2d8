package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"arbot/internal/engine"
	"arbot/internal/metrics"

	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Запустить робота. Первый сигнал завершает активные потоки, второй останавливает сразу.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmdContext(cmd))
		},
	}
}

func (a *app) run(parent context.Context) error {
	entry := a.log.WithComponent("cli")

	maker, taker, closeVenues, err := a.openVenues(context.WithoutCancel(parent))
	if err != nil {
		return err
	}
	defer closeVenues()

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	m := metrics.New()
	serveCtx, stopServe := context.WithCancel(context.WithoutCancel(parent))
	defer stopServe()
	go func() {
		if err := m.Serve(serveCtx, a.cfg.Metrics.Addr); err != nil {
			entry.WithError(err).Warn("Метрики недоступны.")
		}
	}()

	shutdown, requestShutdown := context.WithCancel(parent)
	defer requestShutdown()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCh:
		case <-done:
			return
		}
		entry.Info("Получен сигнал, завершаем активные потоки. Повторный сигнал остановит робота сразу.")
		requestShutdown()

		select {
		case <-sigCh:
			entry.Warn("Повторный сигнал, немедленная остановка.")
			os.Exit(1)
		case <-done:
		}
	}()

	entry.WithField("dry_run", a.cfg.Runtime.DryRun).Info("Робот запускается.")
	eng := engine.New(a.cfg, maker, taker, st, a.notifier(), a.log, engine.WithMetrics(m))
	if err := eng.Run(shutdown); err != nil {
		return err
	}
	a.log.Info("Бот остановлен.")
	return nil
}
