// Package cache provides a short-TTL project-key cache with negative
// caching and singleflight-coalesced misses, grounded in
// golang.org/x/sync/singleflight (luci-go imports golang.org/x/sync
// throughout its own concurrency utilities, though not this exact
// package — this is the natural extension of that convention).
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Resolver looks up a project id for a DSN public key, the backing
// call the cache coalesces and remembers.
type Resolver func(ctx context.Context, publicKey string) (int64, bool, error)

type entry struct {
	projectID int64
	found     bool
	expiresAt time.Time
}

// ProjectCache caches (public_key -> project_id) lookups, including
// negative results, for ttl. Concurrent misses on the same key share
// one backing call.
type ProjectCache struct {
	ttl      time.Duration
	resolve  Resolver
	group    singleflight.Group
	mu       sync.RWMutex
	entries  map[string]entry
}

// New creates a ProjectCache with the given TTL and backing resolver.
func New(ttl time.Duration, resolve Resolver) *ProjectCache {
	return &ProjectCache{
		ttl:     ttl,
		resolve: resolve,
		entries: make(map[string]entry),
	}
}

// Resolve returns the project id for publicKey, using the cache when
// fresh and falling through to the resolver (coalesced across
// concurrent callers) on miss or expiry.
func (c *ProjectCache) Resolve(ctx context.Context, publicKey string) (int64, bool, error) {
	if e, ok := c.lookup(publicKey); ok {
		return e.projectID, e.found, nil
	}

	v, err, _ := c.group.Do(publicKey, func() (interface{}, error) {
		projectID, found, err := c.resolve(ctx, publicKey)
		if err != nil {
			return nil, err
		}
		c.store(publicKey, entry{projectID: projectID, found: found, expiresAt: time.Now().Add(c.ttl)})
		return entry{projectID: projectID, found: found}, nil
	})
	if err != nil {
		return 0, false, err
	}
	e := v.(entry)
	return e.projectID, e.found, nil
}

func (c *ProjectCache) lookup(key string) (entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return entry{}, false
	}
	return e, true
}

func (c *ProjectCache) store(key string, e entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
}
