package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pennant-io/pennant/cmd/pennant/internal/store"
	"github.com/pennant-io/pennant/pkg/flags"
	"github.com/pennant-io/pennant/pkg/telemetry"
)

type entry struct {
	doc       flags.Document
	expiresAt time.Time
}

// DocumentCache keeps recently loaded tenant documents in memory for the
// evaluation path. Entries expire after a TTL; invalidation messages from
// the management side evict them early. Cached documents are shared between
// readers and must be treated as read-only.
type DocumentCache struct {
	store  store.Store
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time

	mu   sync.RWMutex
	docs map[string]entry

	stats Stats
}

// Stats holds cache performance counters.
type Stats struct {
	Hits      int64     `json:"hits"`
	Misses    int64     `json:"misses"`
	Evictions int64     `json:"evictions"`
	Size      int       `json:"size"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewDocumentCache creates a cache in front of s. A non-positive TTL
// disables caching and every read goes to the store.
func NewDocumentCache(s store.Store, ttl time.Duration, logger zerolog.Logger) *DocumentCache {
	return &DocumentCache{
		store:  s,
		ttl:    ttl,
		logger: logger.With().Str("component", "document_cache").Logger(),
		now:    time.Now,
		docs:   make(map[string]entry),
	}
}

// GetDocument returns the tenant document, serving from memory while the
// entry is fresh.
func (c *DocumentCache) GetDocument(ctx context.Context, tenant flags.Tenant) (flags.Document, error) {
	if c.ttl <= 0 {
		return c.store.GetDocument(ctx, tenant)
	}

	key := tenant.Key()
	now := c.now()

	c.mu.RLock()
	e, ok := c.docs[key]
	c.mu.RUnlock()

	if ok && now.Before(e.expiresAt) {
		c.recordHit()
		return e.doc, nil
	}

	c.recordMiss()
	c.logger.Debug().Str("tenant", tenant.String()).Msg("Document cache miss, loading from store")

	doc, err := c.store.GetDocument(ctx, tenant)
	if err != nil {
		return flags.Document{}, err
	}

	c.mu.Lock()
	c.docs[key] = entry{doc: doc, expiresAt: now.Add(c.ttl)}
	c.stats.UpdatedAt = now
	c.mu.Unlock()

	return doc, nil
}

// Invalidate evicts the tenant document so the next read hits the store.
func (c *DocumentCache) Invalidate(tenant flags.Tenant) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.docs[tenant.Key()]; ok {
		delete(c.docs, tenant.Key())
		c.stats.Evictions++
		c.logger.Info().Str("tenant", tenant.String()).Msg("Document invalidated")
	}
}

// Warmup preloads documents for the given tenants.
func (c *DocumentCache) Warmup(ctx context.Context, tenants []flags.Tenant) error {
	for _, tenant := range tenants {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if _, err := c.GetDocument(ctx, tenant); err != nil {
				c.logger.Warn().Err(err).Str("tenant", tenant.String()).Msg("Failed to warm up document")
			}
		}
	}
	return nil
}

// GetStats returns cache performance counters.
func (c *DocumentCache) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Size = len(c.docs)
	return stats
}

// HitRatio returns the cache hit ratio as a percentage.
func (c *DocumentCache) HitRatio() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.stats.Hits + c.stats.Misses
	if total == 0 {
		return 0
	}
	return float64(c.stats.Hits) / float64(total) * 100
}

func (c *DocumentCache) recordHit() {
	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	telemetry.DocumentCacheHits.Inc()
}

func (c *DocumentCache) recordMiss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
	telemetry.DocumentCacheMisses.Inc()
}
