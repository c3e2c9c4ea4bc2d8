// Package notify delivers operator notifications.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"arbot/internal/logger"
)

type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// Log writes notifications to the log only.
type Log struct {
	log *logger.Logger
}

func NewLog(log *logger.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Notify(_ context.Context, msg string) error {
	l.log.WithComponent("notify").Warn(msg)
	return nil
}

// Multi sends every message to all notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Throttle drops a message identical to one delivered less than interval ago.
type Throttle struct {
	next     Notifier
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	sent map[string]time.Time
}

func NewThrottle(next Notifier, interval time.Duration) *Throttle {
	return &Throttle{
		next:     next,
		interval: interval,
		now:      time.Now,
		sent:     map[string]time.Time{},
	}
}

func (t *Throttle) Notify(ctx context.Context, msg string) error {
	t.mu.Lock()
	now := t.now()
	if last, ok := t.sent[msg]; ok && now.Sub(last) < t.interval {
		t.mu.Unlock()
		return nil
	}
	t.sent[msg] = now
	for key, at := range t.sent {
		if now.Sub(at) >= t.interval {
			delete(t.sent, key)
		}
	}
	t.mu.Unlock()

	return t.next.Notify(ctx, msg)
}
