package resilience

import (
	"sync"
	"time"

	"podmill/internal/services"
)

// State describes the admission posture of a circuit breaker.
type State int

const (
	// StateClosed admits all calls.
	StateClosed State = iota
	// StateOpen rejects all calls until the recovery timeout elapses.
	StateOpen
	// StateHalfOpen admits a single trial call to probe recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker is a per-service circuit breaker. Consecutive failures open it;
// after the recovery timeout one trial call is admitted, and its outcome
// decides between closing again and re-opening.
type Breaker struct {
	name      string
	threshold int
	recovery  time.Duration

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	lastFailure time.Time
	trialActive bool
	now         func() time.Time
}

// BreakerOption customizes breaker construction.
type BreakerOption func(*Breaker)

// WithClock overrides the breaker's time source for tests.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBreaker builds a closed breaker for the named service.
func NewBreaker(name string, threshold int, recovery time.Duration, opts ...BreakerOption) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	if recovery <= 0 {
		recovery = 30 * time.Second
	}
	b := &Breaker{
		name:      name,
		threshold: threshold,
		recovery:  recovery,
		state:     StateClosed,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether a call may proceed. When the breaker is open and the
// recovery timeout has elapsed, it transitions to half-open and admits exactly
// one trial; concurrent callers are rejected until the trial resolves.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.recovery {
			return services.Wrap(services.ErrUnavailable, "", b.name, "circuit open", nil)
		}
		b.state = StateHalfOpen
		b.trialActive = true
		return nil
	case StateHalfOpen:
		if b.trialActive {
			return services.Wrap(services.ErrUnavailable, "", b.name, "circuit half-open, trial in flight", nil)
		}
		b.trialActive = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess closes the breaker and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.trialActive = false
}

// RecordFailure counts a failure. At the threshold, or during a half-open
// trial, the breaker opens and the recovery clock restarts.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.state = StateOpen
		b.openedAt = b.now()
		b.trialActive = false
	}
}

// State returns the current admission posture.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot captures breaker internals for health and metrics reporting.
type Snapshot struct {
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	Threshold   int       `json:"threshold"`
	LastFailure time.Time `json:"last_failure,omitempty"`
	OpenedAt    time.Time `json:"opened_at,omitempty"`
}

// Snapshot returns a copy of the breaker's observable state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:        b.name,
		State:       b.state.String(),
		Failures:    b.failures,
		Threshold:   b.threshold,
		LastFailure: b.lastFailure,
		OpenedAt:    b.openedAt,
	}
}
