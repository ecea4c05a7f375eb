package resilience

import "time"

// Policy bounds retry behavior for one vendor.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// TranscriberPolicy retries transcription submissions with flat pacing.
func TranscriberPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 4 * time.Second, MaxDelay: 10 * time.Second, Multiplier: 1}
}

// ContentGenPolicy retries content generation with doubling backoff.
func ContentGenPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 4 * time.Second, MaxDelay: 20 * time.Second, Multiplier: 2}
}

// DocStorePolicy retries document writes quickly; the store recovers fast.
func DocStorePolicy() Policy {
	return Policy{MaxAttempts: 5, BaseDelay: 2 * time.Second, MaxDelay: 8 * time.Second, Multiplier: 1}
}

// Delay computes the wait before the next attempt. attempt is 1-based: the
// delay after attempt 1 is BaseDelay, then BaseDelay*Multiplier^(n-1), capped
// at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
		delay = time.Duration(float64(delay) * multiplier)
	}
	return p.Cap(delay)
}

// Cap clamps a delay to the policy maximum.
func (p Policy) Cap(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Attempts returns the attempt budget, never less than one.
func (p Policy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}
