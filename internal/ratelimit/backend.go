package ratelimit

import (
	"context"
	"time"
)

// Backend is the counter and queue storage contract. RedisBackend is the
// production implementation; MemoryBackend serves development and tests.
type Backend interface {
	// Counts returns the current value of each counter key. Missing keys
	// count as zero.
	Counts(ctx context.Context, keys []string) ([]int64, error)
	// Admit increments each counter key by weight and stamps its expiry in a
	// single round trip.
	Admit(ctx context.Context, keys []string, ttls []time.Duration, weight int64) error
	// QueuePush appends id to a queue and stores its metadata with a TTL.
	QueuePush(ctx context.Context, queue, id string, meta map[string]string, metaTTL time.Duration) error
	// QueuePop removes the oldest id from the first non-empty queue, in the
	// order given, and returns its metadata. ok is false when every queue is
	// empty.
	QueuePop(ctx context.Context, queues []string) (id string, meta map[string]string, ok bool, err error)
	// QueueDepths returns the length of each queue.
	QueueDepths(ctx context.Context, queues []string) ([]int64, error)
	Ping(ctx context.Context) error
}
