// Package ratelimit paces outbound classification calls.
//
// The limiter is a leaky bucket with a burst of one: the first call passes
// immediately and each later call waits until one interval has elapsed
// since the previous one. Time is read through a Clock so tests can advance
// it without sleeping.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval keeps a single caller below 60 calls per minute.
const DefaultInterval = 1100 * time.Millisecond

// Clock abstracts time for the limiter.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// Limiter blocks callers to enforce a call rate.
type Limiter interface {
	Wait(ctx context.Context) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Interval is a Limiter allowing one call per interval.
type Interval struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	clock   Clock
}

// New returns a limiter allowing one call every interval. A non-positive
// interval disables pacing. A nil clock means SystemClock.
func New(interval time.Duration, clock Clock) *Interval {
	if clock == nil {
		clock = SystemClock
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Interval{limiter: rate.NewLimiter(limit, 1), clock: clock}
}

// Wait blocks until the next call is allowed. If ctx ends first the
// reservation is returned to the bucket.
func (l *Interval) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	now := l.clock.Now()
	r := l.limiter.ReserveN(now, 1)
	l.mu.Unlock()

	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	if err := l.clock.Sleep(ctx, delay); err != nil {
		l.mu.Lock()
		r.CancelAt(l.clock.Now())
		l.mu.Unlock()
		return err
	}
	return nil
}

// ManualClock is a Clock whose Sleep advances time instantly. It records
// every requested sleep.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	Sleeps []time.Duration
}

// NewManualClock starts a manual clock at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	c.mu.Lock()
	c.Sleeps = append(c.Sleeps, d)
	c.mu.Unlock()
	return nil
}

// Advance moves the clock forward.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Total returns the sum of all recorded sleeps.
func (c *ManualClock) Total() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.Sleeps {
		total += d
	}
	return total
}
