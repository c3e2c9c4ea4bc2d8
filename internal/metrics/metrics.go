// Package metrics exposes robot counters to prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use through a nil pointer, which disables collection.
type Metrics struct {
	registry *prometheus.Registry

	ticks        prometheus.Counter
	tickErrors   *prometheus.CounterVec
	cooldown     prometheus.Gauge
	openingFlows *prometheus.CounterVec
	closingDone  *prometheus.CounterVec
	profit       *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbot",
			Name:      "ticks_total",
			Help:      "Completed robot ticks.",
		}),
		tickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbot",
			Name:      "tick_errors_total",
			Help:      "Failed robot ticks by error kind.",
		}, []string{"kind"}),
		cooldown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arbot",
			Name:      "cooldown_calls",
			Help:      "Rate limited calls made by the last tick.",
		}),
		openingFlows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbot",
			Name:      "opening_flows_total",
			Help:      "Opening flows created.",
		}, []string{"side"}),
		closingDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbot",
			Name:      "closing_flows_done_total",
			Help:      "Closing flows fully executed.",
		}, []string{"side"}),
		profit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "arbot",
			Name:      "profit",
			Help:      "Accumulated profit of done closing flows.",
		}, []string{"side", "currency"}),
	}
	m.registry.MustRegister(m.ticks, m.tickErrors, m.cooldown, m.openingFlows, m.closingDone, m.profit)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Tick(cooldown int) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.cooldown.Set(float64(cooldown))
}

func (m *Metrics) TickError(kind string) {
	if m == nil {
		return
	}
	m.tickErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) OpeningFlow(side string) {
	if m == nil {
		return
	}
	m.openingFlows.WithLabelValues(side).Inc()
}

func (m *Metrics) ClosingFlowDone(side string, cryptoProfit, fiatProfit float64) {
	if m == nil {
		return
	}
	m.closingDone.WithLabelValues(side).Inc()
	m.profit.WithLabelValues(side, "crypto").Add(cryptoProfit)
	m.profit.WithLabelValues(side, "fiat").Add(fiatProfit)
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	if m == nil || addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
