package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect dials Redis from a URL and verifies the connection with a ping.
// The returned client is shared by rate limiting, the priority queue, and
// the response cache.
func Connect(ctx context.Context, url string, dialTimeout time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if dialTimeout > 0 {
		opts.DialTimeout = dialTimeout
	}
	client := redis.NewClient(opts)

	pingCtx := ctx
	if dialTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, dialTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// RedisBackend stores counters and queues in Redis, shared by every
// instance.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend wraps an already connected client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Counts(ctx context.Context, keys []string) ([]int64, error) {
	values, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	counts := make([]int64, len(keys))
	for i, value := range values {
		text, ok := value.(string)
		if !ok {
			continue
		}
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			counts[i] = n
		}
	}
	return counts, nil
}

func (b *RedisBackend) Admit(ctx context.Context, keys []string, ttls []time.Duration, weight int64) error {
	_, err := b.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			pipe.IncrBy(ctx, key, weight)
			pipe.Expire(ctx, key, ttls[i])
		}
		return nil
	})
	return err
}

func (b *RedisBackend) QueuePush(ctx context.Context, queue, id string, meta map[string]string, metaTTL time.Duration) error {
	_, err := b.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, queue, id)
		pipe.Expire(ctx, queue, metaTTL)
		pipe.HSet(ctx, queueMetaKey(id), meta)
		pipe.Expire(ctx, queueMetaKey(id), metaTTL)
		return nil
	})
	return err
}

func (b *RedisBackend) QueuePop(ctx context.Context, queues []string) (string, map[string]string, bool, error) {
	for _, queue := range queues {
		id, err := b.client.RPop(ctx, queue).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return "", nil, false, err
		}
		meta, err := b.client.HGetAll(ctx, queueMetaKey(id)).Result()
		if err != nil {
			return "", nil, false, err
		}
		b.client.Del(ctx, queueMetaKey(id))
		return id, meta, true, nil
	}
	return "", nil, false, nil
}

func (b *RedisBackend) QueueDepths(ctx context.Context, queues []string) ([]int64, error) {
	cmds := make([]*redis.IntCmd, len(queues))
	_, err := b.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, queue := range queues {
			cmds[i] = pipe.LLen(ctx, queue)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	depths := make([]int64, len(queues))
	for i, cmd := range cmds {
		depths[i] = cmd.Val()
	}
	return depths, nil
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
