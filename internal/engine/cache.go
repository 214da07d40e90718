package engine

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"cadence/internal/domain"
)

type cacheKey struct {
	userID string
	gen    uint64
	start  string
	end    string
}

// rangeCache memoizes aggregated ranges. Invalidation bumps a per-user
// generation so stale entries become unreachable and age out of the
// LRU on their own.
type rangeCache struct {
	mu  sync.Mutex
	gen map[string]uint64
	lru *expirable.LRU[cacheKey, []domain.AgendaItem]
}

func newRangeCache() *rangeCache {
	return &rangeCache{
		gen: map[string]uint64{},
		lru: expirable.NewLRU[cacheKey, []domain.AgendaItem](256, nil, 5*time.Minute),
	}
}

func (c *rangeCache) key(userID, start, end string) cacheKey {
	c.mu.Lock()
	g := c.gen[userID]
	c.mu.Unlock()
	return cacheKey{userID: userID, gen: g, start: start, end: end}
}

func (c *rangeCache) get(userID, start, end string) ([]domain.AgendaItem, bool) {
	return c.lru.Get(c.key(userID, start, end))
}

func (c *rangeCache) put(userID, start, end string, items []domain.AgendaItem) {
	c.lru.Add(c.key(userID, start, end), items)
}

func (c *rangeCache) invalidateUser(userID string) {
	c.mu.Lock()
	c.gen[userID]++
	c.mu.Unlock()
}
