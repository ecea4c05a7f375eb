package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"podmill/internal/logging"
)

// Cache type names. Each type carries its own default TTL; unknown types fall
// back to DefaultTTL.
const (
	TypeUserData        = "user_data"
	TypeWorkspaceData   = "workspace_data"
	TypePodcastMetadata = "podcast_metadata"
	TypeAPIResponses    = "api_responses"
	TypeSystemConfig    = "system_config"
)

// DefaultTTL applies to cache types without an entry in the TTL table.
const DefaultTTL = 5 * time.Minute

var typeTTLs = map[string]time.Duration{
	TypeUserData:        5 * time.Minute,
	TypeWorkspaceData:   10 * time.Minute,
	TypePodcastMetadata: 30 * time.Minute,
	TypeAPIResponses:    time.Hour,
	TypeSystemConfig:    2 * time.Hour,
}

// TTLFor returns the default TTL for a cache type.
func TTLFor(cacheType string) time.Duration {
	if ttl, ok := typeTTLs[cacheType]; ok {
		return ttl
	}
	return DefaultTTL
}

// Key builds the namespaced backend key for a cache type and key.
func Key(cacheType, key string) string {
	return "cache:" + cacheType + ":" + key
}

// Store is the key-value contract the manager needs from a backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
	Ping(ctx context.Context) error
}

// Manager caches JSON-encoded values with per-type TTLs.
type Manager struct {
	store  Store
	logger *slog.Logger
}

// New returns a manager backed by store.
func New(store Store, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logging.NewComponentLogger(logger, "cache"),
	}
}

// Get decodes the cached payload for (cacheType, key) into dest. It returns
// false on a miss, on backend failure, and on a payload that no longer
// decodes.
func (m *Manager) Get(ctx context.Context, cacheType, key string, dest any) bool {
	payload, ok := m.Raw(ctx, cacheType, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		m.logger.Warn("cache payload no longer decodes, treating as miss",
			logging.String("cache_type", cacheType),
			logging.String("key", key),
			logging.Error(err))
		return false
	}
	return true
}

// Raw returns the cached payload bytes for (cacheType, key), or false on a
// miss or backend failure.
func (m *Manager) Raw(ctx context.Context, cacheType, key string) ([]byte, bool) {
	payload, found, err := m.store.Get(ctx, Key(cacheType, key))
	if err != nil {
		m.logger.Warn("cache read failed, treating as miss",
			logging.String("cache_type", cacheType),
			logging.String("key", key),
			logging.Error(err))
		return nil, false
	}
	return payload, found
}

// Set stores value under (cacheType, key) with the type's default TTL.
func (m *Manager) Set(ctx context.Context, cacheType, key string, value any) {
	m.SetWithTTL(ctx, cacheType, key, value, 0)
}

// SetWithTTL stores value with an explicit TTL. A non-positive ttl uses the
// type default. Backend failures are logged and swallowed.
func (m *Manager) SetWithTTL(ctx context.Context, cacheType, key string, value any, ttl time.Duration) {
	payload, err := json.Marshal(value)
	if err != nil {
		m.logger.Warn("cache value does not encode, skipping store",
			logging.String("cache_type", cacheType),
			logging.String("key", key),
			logging.Error(err))
		return
	}
	m.setRaw(ctx, cacheType, key, payload, ttl)
}

func (m *Manager) setRaw(ctx context.Context, cacheType, key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = TTLFor(cacheType)
	}
	if err := m.store.Set(ctx, Key(cacheType, key), payload, ttl); err != nil {
		m.logger.Warn("cache write failed",
			logging.String("cache_type", cacheType),
			logging.String("key", key),
			logging.Error(err))
	}
}

// Delete removes a single entry. Backend failures are logged and swallowed.
func (m *Manager) Delete(ctx context.Context, cacheType, key string) {
	if err := m.store.Delete(ctx, Key(cacheType, key)); err != nil {
		m.logger.Warn("cache delete failed",
			logging.String("cache_type", cacheType),
			logging.String("key", key),
			logging.Error(err))
	}
}

// ClearType removes every entry of a cache type and reports how many were
// removed. Backend failures are logged; the count covers what succeeded.
func (m *Manager) ClearType(ctx context.Context, cacheType string) int64 {
	removed, err := m.store.DeleteByPrefix(ctx, "cache:"+cacheType+":")
	if err != nil {
		m.logger.Warn("cache clear failed",
			logging.String("cache_type", cacheType),
			logging.Error(err))
	}
	return removed
}

// GetOrCompute returns the cached value for (cacheType, key) decoded into
// dest, computing and storing it on a miss. A non-positive ttl uses the type
// default. Backend failures degrade to computing every time.
func (m *Manager) GetOrCompute(ctx context.Context, cacheType, key string, dest any, ttl time.Duration, compute func(context.Context) (any, error)) error {
	if m.Get(ctx, cacheType, key, dest) {
		return nil
	}
	value, err := compute(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache %s/%s: encode computed value: %w", cacheType, key, err)
	}
	m.setRaw(ctx, cacheType, key, payload, ttl)
	return json.Unmarshal(payload, dest)
}

// Ping reports backend health.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}
