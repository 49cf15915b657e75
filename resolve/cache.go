package resolve

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// CacheStats summarizes cache usage for a run.
type CacheStats struct {
	Hits     int `json:"hits"`
	Misses   int `json:"misses"`
	Entries  int `json:"entries"`
	NotFound int `json:"not_found"`
}

type cacheEntry struct {
	entity Entity
	err    error
}

// Cache memoizes resolutions for one batch run, keyed by the raw mention
// text and target locale. Not-found outcomes are remembered too, so a
// mention that failed once is not looked up again in the same run.
//
// A Cache is safe for concurrent use; concurrent lookups of the same key
// share a single resolution.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	hits    int
	misses  int

	group singleflight.Group
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

func cacheKey(mention, locale string) string {
	return locale + "\x00" + mention
}

// Put stores a successful resolution, replacing any cached outcome.
func (c *Cache) Put(mention, locale string, ent Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(mention, locale)] = cacheEntry{entity: ent}
}

// Resolve returns the cached outcome for mention or resolves it with src.
// Successes and not-found failures are cached; other errors, such as a
// cancelled context, are returned without being remembered.
func (c *Cache) Resolve(ctx context.Context, src Source, mention, locale string) (Entity, error) {
	key := cacheKey(mention, locale)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.hits++
		c.mu.Unlock()
		return e.entity, e.err
	}
	c.misses++
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		e, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return e, nil
		}

		ent, err := src.Resolve(ctx, mention, locale)
		e = cacheEntry{entity: ent, err: err}
		if err == nil || (IsNotFound(err) && !isContextErr(err)) {
			c.mu.Lock()
			c.entries[key] = e
			c.mu.Unlock()
		}
		return e, nil
	})
	if err != nil {
		return Entity{}, err
	}
	e := v.(cacheEntry)
	return e.entity, e.err
}

// Len returns the number of cached mentions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := CacheStats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
	for _, e := range c.entries {
		if e.err != nil {
			s.NotFound++
		}
	}
	return s
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
