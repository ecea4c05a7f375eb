package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Default minimum intervals between outbound calls per service.
var DefaultIntervals = map[string]time.Duration{
	"transcriber": 100 * time.Millisecond,
	"contentgen":  200 * time.Millisecond,
	"docstore":    20 * time.Millisecond,
}

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Throttler enforces a minimum interval between calls to each downstream
// service. Concurrent callers for the same service are spaced out in
// arrival order.
type Throttler struct {
	mu        sync.Mutex
	intervals map[string]time.Duration
	next      map[string]time.Time
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// ThrottlerOption adjusts a Throttler.
type ThrottlerOption func(*Throttler)

// WithIntervals replaces the per-service interval table.
func WithIntervals(intervals map[string]time.Duration) ThrottlerOption {
	return func(t *Throttler) {
		if intervals != nil {
			t.intervals = intervals
		}
	}
}

// WithThrottlerClock overrides the throttler's time source.
func WithThrottlerClock(now func() time.Time) ThrottlerOption {
	return func(t *Throttler) {
		if now != nil {
			t.now = now
		}
	}
}

// WithThrottlerSleeper overrides how the throttler waits.
func WithThrottlerSleeper(sleep func(ctx context.Context, d time.Duration) error) ThrottlerOption {
	return func(t *Throttler) {
		if sleep != nil {
			t.sleep = sleep
		}
	}
}

// NewThrottler returns a throttler using DefaultIntervals.
func NewThrottler(opts ...ThrottlerOption) *Throttler {
	t := &Throttler{
		intervals: DefaultIntervals,
		next:      make(map[string]time.Time),
		now:       time.Now,
		sleep:     SleepWithContext,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Wait blocks until the service's interval since the previous call has
// elapsed. Services without an interval pass through immediately. Each
// caller reserves its slot before sleeping, so waiters queue up at
// interval spacing.
func (t *Throttler) Wait(ctx context.Context, service string) error {
	t.mu.Lock()
	interval := t.intervals[service]
	if interval <= 0 {
		t.mu.Unlock()
		return nil
	}
	now := t.now()
	slot := t.next[service]
	if slot.Before(now) {
		slot = now
	}
	t.next[service] = slot.Add(interval)
	t.mu.Unlock()

	return t.sleep(ctx, slot.Sub(now))
}

// Interval reads the configured minimum interval for a service.
func (t *Throttler) Interval(service string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.intervals[service]
}
