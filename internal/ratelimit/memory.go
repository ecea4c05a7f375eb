package ratelimit

import (
	"context"
	"maps"
	"sync"
	"time"
)

type counterEntry struct {
	value     int64
	expiresAt time.Time
}

type metaEntry struct {
	meta      map[string]string
	expiresAt time.Time
}

// MemoryBackend is a process-local backend for development and tests.
type MemoryBackend struct {
	mu       sync.Mutex
	counters map[string]counterEntry
	queues   map[string][]string
	metas    map[string]metaEntry
	now      func() time.Time
}

// MemoryOption adjusts a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithMemoryClock overrides the backend's time source.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(b *MemoryBackend) {
		if now != nil {
			b.now = now
		}
	}
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	b := &MemoryBackend{
		counters: make(map[string]counterEntry),
		queues:   make(map[string][]string),
		metas:    make(map[string]metaEntry),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *MemoryBackend) Counts(_ context.Context, keys []string) ([]int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	counts := make([]int64, len(keys))
	for i, key := range keys {
		entry, ok := b.counters[key]
		if !ok {
			continue
		}
		if now.After(entry.expiresAt) {
			delete(b.counters, key)
			continue
		}
		counts[i] = entry.value
	}
	return counts, nil
}

func (b *MemoryBackend) Admit(_ context.Context, keys []string, ttls []time.Duration, weight int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	for i, key := range keys {
		entry, ok := b.counters[key]
		if !ok || now.After(entry.expiresAt) {
			entry = counterEntry{}
		}
		entry.value += weight
		entry.expiresAt = now.Add(ttls[i])
		b.counters[key] = entry
	}
	return nil
}

func (b *MemoryBackend) QueuePush(_ context.Context, queue, id string, meta map[string]string, metaTTL time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[queue] = append(b.queues[queue], id)
	b.metas[id] = metaEntry{meta: maps.Clone(meta), expiresAt: b.now().Add(metaTTL)}
	return nil
}

func (b *MemoryBackend) QueuePop(_ context.Context, queues []string) (string, map[string]string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, queue := range queues {
		pending := b.queues[queue]
		if len(pending) == 0 {
			continue
		}
		id := pending[0]
		b.queues[queue] = pending[1:]
		meta := map[string]string{}
		if entry, ok := b.metas[id]; ok {
			if !b.now().After(entry.expiresAt) {
				meta = maps.Clone(entry.meta)
			}
			delete(b.metas, id)
		}
		return id, meta, true, nil
	}
	return "", nil, false, nil
}

func (b *MemoryBackend) QueueDepths(_ context.Context, queues []string) ([]int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	depths := make([]int64, len(queues))
	for i, queue := range queues {
		depths[i] = int64(len(b.queues[queue]))
	}
	return depths, nil
}

func (b *MemoryBackend) Ping(context.Context) error { return nil }
