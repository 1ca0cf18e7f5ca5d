package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PayloadCache stores fetched catalogs for a limited time
type PayloadCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachingHandler serves recently fetched catalogs from a PayloadCache.
// Requests with ForceRefresh always reach the upstream and refresh the entry.
type CachingHandler struct {
	inner SourceHandler
	cache PayloadCache
	ttl   time.Duration
}

var _ SourceHandler = (*CachingHandler)(nil)

// NewCachingHandler wraps inner with cache
func NewCachingHandler(inner SourceHandler, cache PayloadCache, ttl time.Duration) *CachingHandler {
	return &CachingHandler{inner: inner, cache: cache, ttl: ttl}
}

// Provider returns the wrapped handler's provider
func (c *CachingHandler) Provider() string {
	return c.inner.Provider()
}

// FetchCatalog returns a cached catalog when one is available
func (c *CachingHandler) FetchCatalog(ctx context.Context, req FetchRequest) (*RawCatalog, error) {
	if req.Integration == nil {
		return c.inner.FetchCatalog(ctx, req)
	}
	key := cacheKey(req.Integration.ID, req.StoreID)

	if !req.ForceRefresh {
		if raw, ok := c.lookup(ctx, key); ok {
			return raw, nil
		}
	}

	raw, err := c.inner.FetchCatalog(ctx, req)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(raw)
	if err == nil {
		err = c.cache.Set(ctx, key, data, c.ttl)
	}
	if err != nil {
		slog.Warn("Failed to cache fetched catalog", "key", key, "error", err)
	}
	return raw, nil
}

func (c *CachingHandler) lookup(ctx context.Context, key string) (*RawCatalog, bool) {
	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("Fetch cache lookup failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var raw RawCatalog
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Warn("Discarding unreadable cached catalog", "key", key, "error", err)
		return nil, false
	}
	slog.Debug("Serving catalog from fetch cache", "key", key)
	return &raw, true
}

func cacheKey(integrationID string, storeID int64) string {
	return fmt.Sprintf("catalog:%s:%d", integrationID, storeID)
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a process-local PayloadCache
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty MemoryCache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get returns an unexpired entry
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores value until ttl elapses
func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

// RedisCache is a PayloadCache shared between server instances
type RedisCache struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisCache creates a RedisCache; keys are namespaced with keyPrefix
func NewRedisCache(client redis.UniversalClient, keyPrefix string) *RedisCache {
	return &RedisCache{client: client, keyPrefix: keyPrefix}
}

// Get returns the cached value, reporting a miss for absent keys
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

// Set stores value with an expiry
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
