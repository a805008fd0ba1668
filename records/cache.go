package records

import (
	"context"
	"sync"
	"time"
)

// Cache holds looked-up records keyed by entity type and id.
// This allows swapping the in-memory cache for a shared one.
type Cache interface {
	// Get returns the cached record, nil on miss or expiry
	Get(entityType, id string) *Record

	Set(rec *Record)

	// Invalidate drops one record, forcing a fetch on next Get
	Invalidate(entityType, id string)

	// Purge drops everything
	Purge()
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries.
	// Set to 0 for no expiration (manual invalidation only)
	TTL time.Duration
}

// DefaultCacheConfig keeps records for a minute
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: time.Minute}
}

type cacheEntry struct {
	rec      Record
	cachedAt time.Time
}

// InMemoryCache is a map-backed Cache. Safe for concurrent use.
type InMemoryCache struct {
	entries map[string]cacheEntry
	config  CacheConfig
	mu      sync.RWMutex
}

func NewInMemoryCache(config CacheConfig) *InMemoryCache {
	return &InMemoryCache{
		entries: make(map[string]cacheEntry),
		config:  config,
	}
}

func (c *InMemoryCache) Get(entityType, id string) *Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key(entityType, id)]
	if !ok {
		return nil
	}
	if c.config.TTL > 0 && time.Since(e.cachedAt) > c.config.TTL {
		return nil
	}

	// copy so callers cannot modify the cached entry
	rec := e.rec
	return &rec
}

func (c *InMemoryCache) Set(rec *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key(rec.EntityType, rec.ID)] = cacheEntry{rec: *rec, cachedAt: time.Now()}
}

func (c *InMemoryCache) Invalidate(entityType, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key(entityType, id))
}

func (c *InMemoryCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}

// CachedStore puts a Cache in front of a Store. Writes through the
// CachedStore invalidate the cached copy.
type CachedStore struct {
	store Store
	cache Cache
}

func NewCachedStore(store Store, cache Cache) *CachedStore {
	return &CachedStore{store: store, cache: cache}
}

func (s *CachedStore) Lookup(ctx context.Context, entityType, id string) (*Record, error) {
	if rec := s.cache.Get(entityType, id); rec != nil {
		return rec, nil
	}

	rec, err := s.store.Lookup(ctx, entityType, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(rec)
	return rec, nil
}

func (s *CachedStore) Put(ctx context.Context, rec *Record) error {
	if err := s.store.Put(ctx, rec); err != nil {
		return err
	}
	s.cache.Invalidate(rec.EntityType, rec.ID)
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, entityType, id string) error {
	if err := s.store.Delete(ctx, entityType, id); err != nil {
		return err
	}
	s.cache.Invalidate(entityType, id)
	return nil
}
