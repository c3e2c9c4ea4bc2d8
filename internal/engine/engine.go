package engine

import (
	"context"
	"time"

	"arbot/internal/config"
	"arbot/internal/exchange"
	"arbot/internal/logger"
	"arbot/internal/metrics"
	"arbot/internal/models"
	"arbot/internal/notify"
	"arbot/internal/store"
)

// Engine holds the collaborators of one robot: both venues, the store and the notification
// sink. All its methods run on the robot goroutine.
type Engine struct {
	cfg      *config.Config
	maker    exchange.Exchange
	taker    exchange.Exchange
	store    store.Store
	notifier notify.Notifier
	metrics  *metrics.Metrics
	log      *logger.Logger

	policy exchange.LostOrderPolicy
	now    func() time.Time
	sleep  func(time.Duration)

	cooldown int
	snapshot models.BalanceSnapshot
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Engine) { e.sleep = sleep }
}

func WithLostOrderPolicy(policy exchange.LostOrderPolicy) Option {
	return func(e *Engine) { e.policy = policy }
}

func New(cfg *config.Config, maker, taker exchange.Exchange, st store.Store, notifier notify.Notifier, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		maker:    maker,
		taker:    taker,
		store:    st,
		notifier: notifier,
		log:      log,
		policy: exchange.LostOrderPolicy{
			Attempts: cfg.Trading.LostOrderAttempts,
			Delay:    cfg.Trading.LostOrderDelay,
		},
		now:   time.Now,
		sleep: time.Sleep,
	}
	if e.notifier == nil {
		e.notifier = notify.NewLog(log)
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.policy.Now == nil {
		e.policy.Now = e.now
	}
	return e
}

// Snapshot is the balance snapshot taken by the last tick that reached the opening stage.
func (e *Engine) Snapshot() models.BalanceSnapshot {
	return e.snapshot
}

// limited counts one rate limited venue call towards the tick's cooldown.
func (e *Engine) limited() {
	e.cooldown++
}

func (e *Engine) notify(ctx context.Context, msg string) {
	if err := e.notifier.Notify(context.WithoutCancel(ctx), msg); err != nil {
		e.logEntry("notify").WithError(err).Warn("Не удалось отправить уведомление.")
	}
}
