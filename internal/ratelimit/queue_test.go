package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"podmill/internal/logging"
	"podmill/internal/ratelimit"
)

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewMemoryBackend(), true, logging.NewNop())
	ctx := context.Background()

	id, err := limiter.Enqueue(ctx, ratelimit.QueuedRequest{
		User:     "u1",
		Endpoint: "process",
		Payload:  "upload_1700000000_u1",
		Priority: 3,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated request ID")
	}

	got, err := limiter.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if got == nil {
		t.Fatal("expected queued request")
	}
	if got.ID != id || got.User != "u1" || got.Endpoint != "process" || got.Payload != "upload_1700000000_u1" || got.Priority != 3 {
		t.Fatalf("dequeued %+v", got)
	}
	if got.QueuedAt.IsZero() {
		t.Fatal("QueuedAt not preserved")
	}
}

func TestDequeueDrainsHigherPrioritiesFirst(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewMemoryBackend(), true, logging.NewNop())
	ctx := context.Background()

	low, _ := limiter.Enqueue(ctx, ratelimit.QueuedRequest{User: "u1", Priority: 7})
	first, _ := limiter.Enqueue(ctx, ratelimit.QueuedRequest{User: "u2", Priority: 0})
	second, _ := limiter.Enqueue(ctx, ratelimit.QueuedRequest{User: "u3", Priority: 0})

	order := []string{}
	for i := 0; i < 3; i++ {
		req, err := limiter.Dequeue(ctx)
		if err != nil || req == nil {
			t.Fatalf("dequeue %d: req=%v err=%v", i, req, err)
		}
		order = append(order, req.ID)
	}
	if order[0] != first || order[1] != second || order[2] != low {
		t.Fatalf("drain order = %v, want [%s %s %s]", order, first, second, low)
	}
}

func TestDequeueEmptyReturnsNil(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewMemoryBackend(), true, logging.NewNop())
	req, err := limiter.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if req != nil {
		t.Fatalf("expected nil on empty queues, got %+v", req)
	}
}

func TestEnqueueClampsPriority(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewMemoryBackend(), true, logging.NewNop())
	ctx := context.Background()

	if _, err := limiter.Enqueue(ctx, ratelimit.QueuedRequest{User: "u1", Priority: 42}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := limiter.Enqueue(ctx, ratelimit.QueuedRequest{User: "u2", Priority: -3}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	stats, err := limiter.QueueStats(ctx)
	if err != nil {
		t.Fatalf("QueueStats: %v", err)
	}
	if stats.Depths[ratelimit.LowestPriority] != 1 {
		t.Fatalf("priority 42 not clamped to %d: %+v", ratelimit.LowestPriority, stats.Depths)
	}
	if stats.Depths[ratelimit.HighestPriority] != 1 {
		t.Fatalf("priority -3 not clamped to %d: %+v", ratelimit.HighestPriority, stats.Depths)
	}
}

func TestQueueStatsCountsEveryPriority(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewMemoryBackend(), true, logging.NewNop())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		limiter.Enqueue(ctx, ratelimit.QueuedRequest{User: "u1", Priority: 2})
	}
	limiter.Enqueue(ctx, ratelimit.QueuedRequest{User: "u1", Priority: 9})

	stats, err := limiter.QueueStats(ctx)
	if err != nil {
		t.Fatalf("QueueStats: %v", err)
	}
	if stats.Depths[2] != 4 || stats.Depths[9] != 1 {
		t.Fatalf("depths = %+v", stats.Depths)
	}
	if stats.Total != 5 {
		t.Fatalf("Total = %d, want 5", stats.Total)
	}
}

func TestDequeueAfterMetadataExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	backend := ratelimit.NewMemoryBackend(ratelimit.WithMemoryClock(clock))
	limiter := ratelimit.New(backend, true, logging.NewNop(),
		ratelimit.WithClock(clock), ratelimit.WithQueueTTL(time.Hour))
	ctx := context.Background()

	id, err := limiter.Enqueue(ctx, ratelimit.QueuedRequest{User: "u1", Endpoint: "process", Priority: 1})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	now = now.Add(time.Hour + time.Minute)
	req, err := limiter.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if req == nil {
		t.Fatal("queued ID should still pop")
	}
	if req.ID != id {
		t.Fatalf("ID = %q, want %q", req.ID, id)
	}
	if req.User != "" || req.Endpoint != "" {
		t.Fatalf("expired metadata should read empty, got %+v", req)
	}
}
