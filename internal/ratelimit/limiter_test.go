package ratelimit_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"podmill/internal/logging"
	"podmill/internal/ratelimit"
	"podmill/internal/services"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestLimitsForTiers(t *testing.T) {
	cases := []struct {
		tier string
		want ratelimit.Limits
	}{
		{ratelimit.TierFree, ratelimit.Limits{Minute: 5, Hour: 50, Day: 200}},
		{ratelimit.TierPremium, ratelimit.Limits{Minute: 20, Hour: 500, Day: 2000}},
		{ratelimit.TierEnterprise, ratelimit.Limits{Minute: 100, Hour: 2000, Day: 10000}},
		{ratelimit.TierAdmin, ratelimit.Limits{Minute: 1000, Hour: 10000, Day: 50000}},
		{"unheard_of", ratelimit.Limits{Minute: 5, Hour: 50, Day: 200}},
	}
	for _, tc := range cases {
		if got := ratelimit.LimitsFor(tc.tier); got != tc.want {
			t.Errorf("LimitsFor(%q) = %+v, want %+v", tc.tier, got, tc.want)
		}
	}
}

func TestSixthRequestInMinuteRejected(t *testing.T) {
	at := time.Unix(1_700_000_030, 0)
	limiter := ratelimit.New(ratelimit.NewMemoryBackend(), true, logging.NewNop(),
		ratelimit.WithClock(fixedClock(at)))
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		decision, err := limiter.Check(ctx, "u1", "process", ratelimit.TierFree, 1)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d rejected inside the ceiling", i)
		}
	}

	decision, err := limiter.Check(ctx, "u1", "process", ratelimit.TierFree, 1)
	if err != nil {
		t.Fatalf("sixth check: %v", err)
	}
	if decision.Allowed {
		t.Fatal("sixth request in the minute must be rejected")
	}
	if decision.LimitType != ratelimit.WindowMinute {
		t.Fatalf("LimitType = %q, want minute", decision.LimitType)
	}
	if decision.RetryAfter <= 0 || decision.RetryAfter > time.Minute {
		t.Fatalf("RetryAfter = %v, want within (0, 60s]", decision.RetryAfter)
	}
	if got := decision.Violated(); got.Used != 5 || got.Limit != 5 || got.Remaining != 0 {
		t.Fatalf("violated window = %+v", got)
	}
}

func TestRejectionCitesDayWindow(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	backend := ratelimit.NewMemoryBackend(ratelimit.WithMemoryClock(fixedClock(at)))
	limiter := ratelimit.New(backend, true, logging.NewNop(), ratelimit.WithClock(fixedClock(at)))
	ctx := context.Background()

	// Exhaust only the day window, leaving minute and hour clear.
	dayKey := "ratelimit:u1:process:day:" + strconv.FormatInt(at.Unix()/86400, 10)
	if err := backend.Admit(ctx, []string{dayKey}, []time.Duration{24 * time.Hour}, 200); err != nil {
		t.Fatalf("seed day counter: %v", err)
	}

	decision, err := limiter.Check(ctx, "u1", "process", ratelimit.TierFree, 1)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected rejection against the day ceiling")
	}
	if decision.LimitType != ratelimit.WindowDay {
		t.Fatalf("LimitType = %q, want day", decision.LimitType)
	}
	if decision.RetryAfter > 24*time.Hour {
		t.Fatalf("RetryAfter = %v beyond the day window", decision.RetryAfter)
	}
	if decision.Minute.Used != 0 {
		t.Fatalf("minute window charged on rejection: %+v", decision.Minute)
	}
}

func TestWindowRollsOver(t *testing.T) {
	at := time.Unix(1_700_000_030, 0)
	now := at
	clock := func() time.Time { return now }
	backend := ratelimit.NewMemoryBackend(ratelimit.WithMemoryClock(clock))
	limiter := ratelimit.New(backend, true, logging.NewNop(), ratelimit.WithClock(clock))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if decision, _ := limiter.Check(ctx, "u1", "process", ratelimit.TierFree, 1); !decision.Allowed {
			t.Fatalf("warmup request %d rejected", i)
		}
	}
	if decision, _ := limiter.Check(ctx, "u1", "process", ratelimit.TierFree, 1); decision.Allowed {
		t.Fatal("expected minute ceiling hit")
	}

	// Crossing the minute boundary opens a fresh window.
	now = at.Add(time.Minute)
	decision, err := limiter.Check(ctx, "u1", "process", ratelimit.TierFree, 1)
	if err != nil {
		t.Fatalf("check after rollover: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("request after minute rollover must be admitted")
	}
	if decision.Hour.Used != 6 {
		t.Fatalf("hour window lost its count across the minute boundary: %+v", decision.Hour)
	}
}

func TestWeightChargesAllWindows(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	limiter := ratelimit.New(
		ratelimit.NewMemoryBackend(ratelimit.WithMemoryClock(fixedClock(at))),
		true, logging.NewNop(), ratelimit.WithClock(fixedClock(at)))
	ctx := context.Background()

	decision, err := limiter.Check(ctx, "u1", "process", ratelimit.TierFree, 3)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("first weighted request must be admitted")
	}
	if decision.Minute.Used != 3 || decision.Minute.Remaining != 2 {
		t.Fatalf("minute usage = %+v", decision.Minute)
	}
	if decision.Day.Used != 3 || decision.Day.Remaining != 197 {
		t.Fatalf("day usage = %+v", decision.Day)
	}

	// 3 used + 3 more would exceed the free minute ceiling of 5.
	decision, err = limiter.Check(ctx, "u1", "process", ratelimit.TierFree, 3)
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if decision.Allowed {
		t.Fatal("second weighted request must be rejected")
	}
}

func TestUsersAndEndpointsIsolated(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	limiter := ratelimit.New(
		ratelimit.NewMemoryBackend(ratelimit.WithMemoryClock(fixedClock(at))),
		true, logging.NewNop(), ratelimit.WithClock(fixedClock(at)))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		limiter.Check(ctx, "u1", "process", ratelimit.TierFree, 1)
	}
	if decision, _ := limiter.Check(ctx, "u1", "process", ratelimit.TierFree, 1); decision.Allowed {
		t.Fatal("u1 process should be exhausted")
	}
	if decision, _ := limiter.Check(ctx, "u2", "process", ratelimit.TierFree, 1); !decision.Allowed {
		t.Fatal("another user must not share u1's counters")
	}
	if decision, _ := limiter.Check(ctx, "u1", "upload", ratelimit.TierFree, 1); !decision.Allowed {
		t.Fatal("another endpoint must not share the process counters")
	}
}

type downBackend struct{}

var errDown = errors.New("connection refused")

func (downBackend) Counts(context.Context, []string) ([]int64, error) { return nil, errDown }
func (downBackend) Admit(context.Context, []string, []time.Duration, int64) error {
	return errDown
}
func (downBackend) QueuePush(context.Context, string, string, map[string]string, time.Duration) error {
	return errDown
}
func (downBackend) QueuePop(context.Context, []string) (string, map[string]string, bool, error) {
	return "", nil, false, errDown
}
func (downBackend) QueueDepths(context.Context, []string) ([]int64, error) { return nil, errDown }
func (downBackend) Ping(context.Context) error                            { return errDown }

func TestBackendDownFailsOpen(t *testing.T) {
	limiter := ratelimit.New(downBackend{}, true, logging.NewNop())
	decision, err := limiter.Check(context.Background(), "u1", "process", ratelimit.TierFree, 1)
	if err != nil {
		t.Fatalf("fail-open check returned error: %v", err)
	}
	if !decision.Allowed || !decision.FailedOpen {
		t.Fatalf("decision = %+v, want allowed and flagged as failed open", decision)
	}
}

func TestBackendDownFailsClosed(t *testing.T) {
	limiter := ratelimit.New(downBackend{}, false, logging.NewNop())
	_, err := limiter.Check(context.Background(), "u1", "process", ratelimit.TierFree, 1)
	if err == nil {
		t.Fatal("expected error when failing closed")
	}
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected unavailable marker, got %v", err)
	}
}
