package cache

import (
	"sync"
	"time"

	"ConfluenceCal/internal/domain/models"
)

type entry struct {
	rec      models.PublishedWeights
	storedAt time.Time
}

// WeightCache keeps the last published weights per symbol in process. The
// caller supplies the clock on every call, so expiry is checked against the
// caller's notion of now.
type WeightCache struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]entry
}

// NewWeightCache creates a cache whose entries expire after ttl. A ttl <= 0
// keeps entries until they are replaced or invalidated.
func NewWeightCache(ttl time.Duration) *WeightCache {
	return &WeightCache{ttl: ttl, m: make(map[string]entry)}
}

func (c *WeightCache) TTL() time.Duration { return c.ttl }

// Get returns the entry for symbol if it was stored less than ttl before now.
func (c *WeightCache) Get(symbol string, now time.Time) (models.PublishedWeights, bool) {
	c.mu.RLock()
	e, ok := c.m[symbol]
	c.mu.RUnlock()
	if !ok {
		return models.PublishedWeights{}, false
	}
	if c.ttl > 0 && now.Sub(e.storedAt) >= c.ttl {
		c.mu.Lock()
		if cur, ok := c.m[symbol]; ok && cur.storedAt.Equal(e.storedAt) {
			delete(c.m, symbol)
		}
		c.mu.Unlock()
		return models.PublishedWeights{}, false
	}
	return e.rec, true
}

func (c *WeightCache) Set(rec models.PublishedWeights, now time.Time) {
	c.mu.Lock()
	c.m[rec.Symbol] = entry{rec: rec, storedAt: now}
	c.mu.Unlock()
}

func (c *WeightCache) Invalidate(symbol string) {
	c.mu.Lock()
	delete(c.m, symbol)
	c.mu.Unlock()
}

func (c *WeightCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
