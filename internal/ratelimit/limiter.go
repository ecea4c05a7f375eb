package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"podmill/internal/logging"
	"podmill/internal/services"
)

// Window names, in evaluation order.
const (
	WindowMinute = "minute"
	WindowHour   = "hour"
	WindowDay    = "day"
)

var windowSeconds = map[string]int64{
	WindowMinute: 60,
	WindowHour:   3600,
	WindowDay:    86400,
}

var windowOrder = []string{WindowMinute, WindowHour, WindowDay}

// WindowUsage describes one window's state after a Check.
type WindowUsage struct {
	Used      int64
	Limit     int64
	Remaining int64
	ResetIn   time.Duration
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	LimitType  string        // window that rejected the request, empty when allowed
	RetryAfter time.Duration // wait before retrying, zero when allowed
	FailedOpen bool          // true when the backend was down and we admitted anyway
	Minute     WindowUsage
	Hour       WindowUsage
	Day        WindowUsage
}

// Violated returns the usage of the window named by LimitType. For allowed
// decisions it returns the minute window, the tightest one.
func (d Decision) Violated() WindowUsage {
	switch d.LimitType {
	case WindowHour:
		return d.Hour
	case WindowDay:
		return d.Day
	default:
		return d.Minute
	}
}

// Limiter admits or rejects requests against per-tier window ceilings.
type Limiter struct {
	backend  Backend
	logger   *slog.Logger
	failOpen bool
	queueTTL time.Duration
	now      func() time.Time
}

// Option adjusts a Limiter.
type Option func(*Limiter)

// WithClock overrides the limiter's time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithQueueTTL overrides how long queued request metadata survives.
func WithQueueTTL(ttl time.Duration) Option {
	return func(l *Limiter) {
		if ttl > 0 {
			l.queueTTL = ttl
		}
	}
}

// New returns a limiter over backend. When failOpen is true, backend
// failures admit the request instead of rejecting it.
func New(backend Backend, failOpen bool, logger *slog.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		backend:  backend,
		logger:   logging.NewComponentLogger(logger, "ratelimit"),
		failOpen: failOpen,
		queueTTL: time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func windowKey(user, endpoint, window string, now time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s:%s:%d", user, endpoint, window, now.Unix()/windowSeconds[window])
}

func windowResetIn(window string, now time.Time) time.Duration {
	secs := windowSeconds[window]
	return time.Duration(secs-now.Unix()%secs) * time.Second
}

// Check evaluates one request of the given weight against the user's tier
// ceilings and, when admitted, charges all three windows in one backend
// round trip. The returned error is non-nil only when the backend is down
// and the limiter is configured to fail closed.
func (l *Limiter) Check(ctx context.Context, user, endpoint, tier string, weight int64) (Decision, error) {
	if weight <= 0 {
		weight = 1
	}
	limits := LimitsFor(tier)
	now := l.now()

	keys := make([]string, len(windowOrder))
	ttls := make([]time.Duration, len(windowOrder))
	for i, window := range windowOrder {
		keys[i] = windowKey(user, endpoint, window, now)
		ttls[i] = time.Duration(windowSeconds[window]) * time.Second
	}

	counts, err := l.backend.Counts(ctx, keys)
	if err != nil {
		return l.degrade(user, endpoint, "read counters", err)
	}

	decision := Decision{Allowed: true}
	for i, window := range windowOrder {
		if counts[i]+weight > limits.forWindow(window) {
			decision.Allowed = false
			decision.LimitType = window
			decision.RetryAfter = windowResetIn(window, now)
			break
		}
	}
	for i, window := range windowOrder {
		limit := limits.forWindow(window)
		usage := WindowUsage{
			Used:    counts[i],
			Limit:   limit,
			ResetIn: windowResetIn(window, now),
		}
		// Counters are only charged on admission, so usage reflects the
		// charge only when the request is allowed.
		if decision.Allowed {
			usage.Used += weight
		}
		usage.Remaining = max(0, limit-usage.Used)
		decision.setWindow(window, usage)
	}
	if !decision.Allowed {
		l.logger.Info("request rejected",
			logging.String(logging.FieldUserID, user),
			logging.String(logging.FieldEndpoint, endpoint),
			logging.String(logging.FieldTier, tier),
			logging.String("limit_type", decision.LimitType),
			logging.Duration("retry_after", decision.RetryAfter))
		return decision, nil
	}

	if err := l.backend.Admit(ctx, keys, ttls, weight); err != nil {
		return l.degrade(user, endpoint, "charge counters", err)
	}
	return decision, nil
}

func (d *Decision) setWindow(window string, usage WindowUsage) {
	switch window {
	case WindowMinute:
		d.Minute = usage
	case WindowHour:
		d.Hour = usage
	case WindowDay:
		d.Day = usage
	}
}

func (l *Limiter) degrade(user, endpoint, op string, err error) (Decision, error) {
	if l.failOpen {
		logging.WarnWithContext(l.logger, "rate limit backend down, admitting request", "ratelimit_degraded",
			logging.String(logging.FieldUserID, user),
			logging.String(logging.FieldEndpoint, endpoint),
			logging.String("operation", op),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check Redis connectivity"),
			logging.String(logging.FieldImpact, "usage ceilings not enforced"))
		return Decision{Allowed: true, FailedOpen: true}, nil
	}
	return Decision{}, services.Wrap(services.ErrUnavailable, "", "ratelimit "+op, "backend unavailable", err)
}

// Ping reports backend health.
func (l *Limiter) Ping(ctx context.Context) error {
	return l.backend.Ping(ctx)
}
