// Package snapcache is a small ristretto-backed byte cache for hot read
// paths: the HTTP API serves the serialized state snapshot from it
// instead of re-serializing per request. Fills are not cached.
package snapcache

import (
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// Cache caches byte snapshots by key with a TTL.
type Cache struct {
	cache  *ristretto.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// Config holds cache configuration.
type Config struct {
	// MaxSnapshots caps the number of cached entries.
	MaxSnapshots int64
	// TTL expires entries so a stale snapshot never outlives a batch
	// interval by much.
	TTL    time.Duration
	Logger *zap.Logger
}

// New creates a snapshot cache.
func New(cfg *Config) (*Cache, error) {
	if cfg.MaxSnapshots <= 0 {
		cfg.MaxSnapshots = 64
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.MaxSnapshots * 10,
		MaxCost:     cfg.MaxSnapshots,
		BufferItems: 64,
		Metrics:     true,
		// Count only the caller's cost so MaxCost is an entry count.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{cache: cache, ttl: cfg.TTL, logger: cfg.Logger}, nil
}

// Get returns a cached snapshot.
func (c *Cache) Get(key string) ([]byte, bool) {
	value, found := c.cache.Get(key)
	if !found {
		MissesTotal.Inc()
		return nil, false
	}
	HitsTotal.Inc()
	blob, ok := value.([]byte)
	return blob, ok
}

// Set stores a snapshot; each entry costs one slot.
func (c *Cache) Set(key string, blob []byte) {
	if c.cache.SetWithTTL(key, blob, 1, c.ttl) {
		SetsTotal.Inc()
		c.logger.Debug("snapshot-cached",
			zap.String("key", key),
			zap.Int("bytes", len(blob)))
	}
}

// Invalidate drops a snapshot; the HTTP handlers call this after a
// cancel or a resolution. Batches do not invalidate; entries expire by TTL.
func (c *Cache) Invalidate(key string) {
	c.cache.Del(key)
}

// Wait blocks until pending writes are applied. Tests use it.
func (c *Cache) Wait() {
	c.cache.Wait()
}

// Close releases cache resources.
func (c *Cache) Close() {
	c.cache.Close()
	c.logger.Info("snapshot-cache-closed")
}
