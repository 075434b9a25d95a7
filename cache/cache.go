package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/pricescout/models"
)

// maxRetention bounds how long any outcome is kept, whatever max_age asks.
const maxRetention = time.Hour

// entry holds a cached outcome with its creation timestamp.
type entry struct {
	outcome   *models.PipelineOutcome
	createdAt time.Time
}

// Cache is a simple in-memory cache for search outcomes.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	now        func() time.Time
	done       chan struct{}
}

// New creates a new Cache with the given maximum number of entries.
// A background goroutine runs every 5 minutes to evict entries older than
// an hour; Stop ends it.
func New(maxEntries int) *Cache {
	c := newCache(maxEntries, time.Now)
	go c.cleanupLoop()
	return c
}

func newCache(maxEntries int, now func() time.Time) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		now:        now,
		done:       make(chan struct{}),
	}
}

// Key derives the cache key of a query. Case and spacing differences map
// to the same key.
func Key(query string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Get retrieves a cached outcome if it exists and is younger than maxAge.
// If maxAge <= 0, no cache lookup is performed. The returned outcome is a
// copy the caller may annotate.
func (c *Cache) Get(key string, maxAge time.Duration) (*models.PipelineOutcome, bool) {
	if maxAge <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.createdAt) > maxAge {
		return nil, false
	}

	out := *e.outcome
	return &out, true
}

// Set stores an outcome. Terminal outcomes (blocked, timed out) are not
// cached so the next request retries the site. If the cache is at
// capacity, a random entry is evicted to make room.
func (c *Cache) Set(key string, outcome *models.PipelineOutcome) {
	if outcome == nil || outcome.Diagnostic.Terminal() {
		return
	}
	stored := *outcome
	stored.CacheStatus = ""

	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict one random entry if at capacity (map iteration is random in Go).
	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		outcome:   &stored,
		createdAt: c.now(),
	}
}

// Len returns the number of stored outcomes.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Stop ends the cleanup goroutine.
func (c *Cache) Stop() {
	close(c.done)
}

// cleanupLoop evicts entries older than maxRetention every 5 minutes.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evictBefore(c.now().Add(-maxRetention))
		case <-c.done:
			return
		}
	}
}

func (c *Cache) evictBefore(cutoff time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
