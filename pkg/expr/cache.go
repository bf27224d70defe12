package expr

import "github.com/dgraph-io/ristretto"

// Cache memoises compiled programs keyed by source text. Definitions repeat
// the same handful of expressions across thousands of evaluations, so the
// parse cost is paid once per distinct source. Safe for concurrent use.
type Cache struct {
	inner *ristretto.Cache
}

// NewCache builds a cache holding up to maxPrograms compiled programs.
func NewCache(maxPrograms int64) (*Cache, error) {
	if maxPrograms <= 0 {
		maxPrograms = 1024
	}
	inner, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxPrograms * 10,
		MaxCost:     maxPrograms,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner}, nil
}

// Compile returns the cached program for src, parsing and admitting it on a
// miss. Parse failures are not cached; they are rare and cheap to rediscover.
func (c *Cache) Compile(src string) (*Program, error) {
	if hit, ok := c.inner.Get(src); ok {
		return hit.(*Program), nil
	}
	p, err := Parse(src)
	if err != nil {
		return nil, err
	}
	c.inner.Set(src, p, 1)
	return p, nil
}

// Close releases the cache's internal goroutines.
func (c *Cache) Close() {
	c.inner.Close()
}
