// Package quota enforces a fixed ceiling of calls per time window.
//
// The general-purpose geocoder allows a limited number of requests per hour.
// A Quota counts calls in a fixed window that opens with the first call and
// blocks callers once the ceiling is reached until the window has elapsed.
// Calls are never dropped.
package quota

import (
	"context"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Defaults for the general geocoder usage policy.
const (
	DefaultLimit  = 500
	DefaultWindow = time.Hour
)

// Quota is a fixed-window call counter. It is safe for concurrent use.
type Quota struct {
	limit  int
	window time.Duration
	clk    clock.Clock
	name   string

	mu     sync.Mutex
	start  time.Time
	open   bool
	used   int
	total  int
	pauses int
}

// Option configures a Quota.
type Option func(*Quota)

// WithClock replaces the wall clock, typically with clock.NewMock in tests.
func WithClock(c clock.Clock) Option {
	return func(q *Quota) { q.clk = c }
}

// WithName sets the name used in log messages.
func WithName(name string) Option {
	return func(q *Quota) { q.name = name }
}

// New creates a Quota allowing limit calls per window. Non-positive values
// fall back to DefaultLimit and DefaultWindow.
func New(limit int, window time.Duration, opts ...Option) *Quota {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	q := &Quota{
		limit:  limit,
		window: window,
		clk:    clock.New(),
		name:   "quota",
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Acquire takes one call slot, blocking until the current window has room.
// It only fails when ctx is done while waiting.
func (q *Quota) Acquire(ctx context.Context) error {
	logged := false
	for {
		wait, ok := q.take()
		if ok {
			return nil
		}

		if !logged {
			logged = true
			q.mu.Lock()
			q.pauses++
			q.mu.Unlock()
			zap.L().Info("quota: ceiling reached, pausing",
				zap.String("name", q.name),
				zap.Int("limit", q.limit),
				zap.Duration("wait", wait),
			)
		}

		fired := make(chan struct{})
		timer := q.clk.AfterFunc(wait, func() { close(fired) })
		select {
		case <-ctx.Done():
			timer.Stop()
			return eris.Wrapf(ctx.Err(), "quota: %s wait cancelled", q.name)
		case <-fired:
		}
	}
}

// take claims a slot if one is free, otherwise it returns the time left in
// the current window.
func (q *Quota) take() (time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clk.Now()
	if !q.open || now.Sub(q.start) >= q.window {
		q.start = now
		q.open = true
		q.used = 0
	}
	if q.used < q.limit {
		q.used++
		q.total++
		return 0, true
	}
	return q.start.Add(q.window).Sub(now), false
}

// Stats is a snapshot of quota usage.
type Stats struct {
	Limit  int `json:"limit"`
	Used   int `json:"used"`
	Total  int `json:"total"`
	Pauses int `json:"pauses"`
}

// Stats reports usage in the current window and over the Quota's lifetime.
func (q *Quota) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	used := q.used
	if q.open && q.clk.Now().Sub(q.start) >= q.window {
		used = 0
	}
	return Stats{Limit: q.limit, Used: used, Total: q.total, Pauses: q.pauses}
}
