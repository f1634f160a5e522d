package worker

import (
	"sync"
	"time"
)

type cacheKey struct {
	userID int64
	period string
}

type cacheEntry[T any] struct {
	value     T
	fetchedAt time.Time
}

// StatCache holds the latest result per (user, period). The sync engine is
// its only writer; readers get copies. Cached payloads are never mutated.
type StatCache[T any] struct {
	mu      sync.RWMutex
	entries map[cacheKey]cacheEntry[T]
}

func NewStatCache[T any]() *StatCache[T] {
	return &StatCache[T]{entries: make(map[cacheKey]cacheEntry[T])}
}

func (c *StatCache[T]) Put(userID int64, period string, value T, fetchedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{userID, period}] = cacheEntry[T]{value: value, fetchedAt: fetchedAt}
}

func (c *StatCache[T]) Get(userID int64, period string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[cacheKey{userID, period}]
	return e.value, ok
}

// Fresh reports whether the entry exists and is younger than ttl at now.
func (c *StatCache[T]) Fresh(userID int64, period string, now time.Time, ttl time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[cacheKey{userID, period}]
	return ok && now.Sub(e.fetchedAt) < ttl
}

// Snapshot returns the cached values for userIDs in input order, skipping
// misses, plus the ids that were not cached.
func (c *StatCache[T]) Snapshot(userIDs []int64, period string) ([]T, []int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(userIDs))
	var missing []int64
	for _, id := range userIDs {
		if e, ok := c.entries[cacheKey{id, period}]; ok {
			out = append(out, e.value)
		} else {
			missing = append(missing, id)
		}
	}
	return out, missing
}

// PruneBefore drops entries whose period sorts before cutoff and returns
// how many were removed. Periods must be YYYY-MM-DD keys.
func (c *StatCache[T]) PruneBefore(cutoff string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if k.period < cutoff {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *StatCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
