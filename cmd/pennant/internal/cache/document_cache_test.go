package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennant-io/pennant/cmd/pennant/internal/store"
	"github.com/pennant-io/pennant/pkg/flags"
)

// countingStore wraps a memory store and counts document loads.
type countingStore struct {
	*store.MemoryStore
	loads int
}

func (s *countingStore) GetDocument(ctx context.Context, tenant flags.Tenant) (flags.Document, error) {
	s.loads++
	return s.MemoryStore.GetDocument(ctx, tenant)
}

func newFixture(t *testing.T, ttl time.Duration) (*countingStore, *DocumentCache, flags.Tenant) {
	t.Helper()

	backing := &countingStore{MemoryStore: store.NewMemoryStore()}
	tenant := flags.NewTenant("storefront", "prod")

	_, err := backing.Mutate(context.Background(), tenant, func(doc flags.Document) (flags.Document, error) {
		return store.PutFlag(doc, flags.Definition{ID: "new-dashboard", Type: flags.TypeBoolean, Enabled: true})
	})
	require.NoError(t, err)

	return backing, NewDocumentCache(backing, ttl, zerolog.Nop()), tenant
}

func TestDocumentCacheServesFromMemory(t *testing.T) {
	backing, c, tenant := newFixture(t, time.Minute)

	for i := 0; i < 3; i++ {
		doc, err := c.GetDocument(context.Background(), tenant)
		require.NoError(t, err)
		assert.Contains(t, doc.Flags, "new-dashboard")
	}

	assert.Equal(t, 1, backing.loads, "only the first read should hit the store")
	stats := c.GetStats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestDocumentCacheExpires(t *testing.T) {
	backing, c, tenant := newFixture(t, time.Minute)

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	_, err := c.GetDocument(context.Background(), tenant)
	require.NoError(t, err)

	clock = clock.Add(30 * time.Second)
	_, err = c.GetDocument(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, backing.loads, "entry is still fresh")

	clock = clock.Add(31 * time.Second)
	_, err = c.GetDocument(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, 2, backing.loads, "expired entry reloads")
}

func TestDocumentCacheInvalidate(t *testing.T) {
	backing, c, tenant := newFixture(t, time.Minute)

	_, err := c.GetDocument(context.Background(), tenant)
	require.NoError(t, err)

	c.Invalidate(tenant)

	_, err = c.GetDocument(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, 2, backing.loads)
	assert.Equal(t, int64(1), c.GetStats().Evictions)
}

func TestDocumentCacheDisabled(t *testing.T) {
	backing, c, tenant := newFixture(t, 0)

	for i := 0; i < 3; i++ {
		_, err := c.GetDocument(context.Background(), tenant)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, backing.loads)
}

func TestDocumentCacheWarmup(t *testing.T) {
	backing, c, tenant := newFixture(t, time.Minute)

	require.NoError(t, c.Warmup(context.Background(), []flags.Tenant{tenant}))
	assert.Equal(t, 1, backing.loads)

	_, err := c.GetDocument(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, backing.loads, "warmed entry serves reads")
}
