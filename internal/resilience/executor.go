package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"podmill/internal/clients"
	"podmill/internal/logging"
	"podmill/internal/services"
)

// Executor runs vendor operations through a circuit breaker with bounded
// retry. One executor serves one vendor.
type Executor struct {
	service string
	breaker *Breaker
	policy  Policy
	logger  *slog.Logger
	sleeper func(time.Duration)
}

// ExecutorOption customizes executor construction.
type ExecutorOption func(*Executor)

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) ExecutorOption {
	return func(e *Executor) {
		e.sleeper = sleeper
	}
}

// NewExecutor wires a breaker and retry policy for the named vendor.
func NewExecutor(service string, breaker *Breaker, policy Policy, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		service: service,
		breaker: breaker,
		policy:  policy,
		logger:  logging.NewComponentLogger(logger, service+"-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Breaker exposes the executor's breaker for health reporting.
func (e *Executor) Breaker() *Breaker {
	return e.breaker
}

// Execute runs fn with breaker admission and retry. Validation,
// configuration, and context failures return immediately; transient failures
// retry up to the policy budget with Retry-After hints honored. An open
// breaker fails fast with a service-unavailable error.
func (e *Executor) Execute(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := e.policy.Attempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := e.breaker.Allow(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			e.breaker.RecordSuccess()
			return nil
		}
		if countsAgainstBreaker(err) {
			e.breaker.RecordFailure()
		} else {
			// The vendor answered; the request itself was bad.
			e.breaker.RecordSuccess()
		}

		delay, retry := e.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return err
		}
		logging.WarnWithContext(e.logger, "vendor call failed; retrying", "vendor_retry",
			logging.String("operation", op),
			logging.Int(logging.FieldAttempt, attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "transient vendor failure"),
			logging.String(logging.FieldImpact, "job delayed by backoff"),
		)
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return fmt.Errorf("%s %s: failed after %d attempts: %w", e.service, op, attempts, lastErr)
}

// countsAgainstBreaker reports whether an error signals vendor ill health.
// Caller mistakes (validation, configuration, unknown resources, throttling)
// mean the vendor answered and should not open the circuit.
func countsAgainstBreaker(err error) bool {
	switch {
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrConfiguration),
		errors.Is(err, services.ErrNotFound),
		errors.Is(err, services.ErrRateLimited):
		return false
	}
	var statusErr *clients.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 0 || statusErr.StatusCode >= 500 || statusErr.StatusCode == 408 || statusErr.StatusCode == 429
	}
	return true
}

func (e *Executor) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts {
		return 0, false
	}
	if err == nil {
		return 0, false
	}
	if ctx == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *clients.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == 408,
			statusErr.StatusCode == 429,
			statusErr.StatusCode >= 500:
			if statusErr.RetryAfter > 0 {
				return e.policy.Cap(statusErr.RetryAfter), true
			}
			return e.policy.Delay(attempt), true
		default:
			return 0, false
		}
	}

	if services.Retryable(err) {
		return e.policy.Delay(attempt), true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return e.policy.Delay(attempt), true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return e.policy.Delay(attempt), true
	}

	return 0, false
}

func (e *Executor) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx == nil {
		return errors.New("retry: nil context")
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if e.sleeper != nil {
		e.sleeper(delay)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
