package dal

import (
	"context"
	"sync"
	"time"

	"github.com/coral-mesh/profilestore/internal/objectstore"
)

// Clock is a test seam for cache-staleness decisions.
type Clock func() time.Time

type snapshot struct {
	keys       []string
	resolvedAt time.Time
}

// CachedProvider wraps a path prefix under the object store behind a
// single mutex: the first caller past max_cache_stale_duration
// re-enumerates files under the prefix and installs the refreshed listing
// atomically, every other caller reuses the cached listing (spec §4.12,
// §5 "a stale-cache refresh is performed by the first caller past the TTL
// and installed atomically").
type CachedProvider struct {
	store    objectstore.Store
	prefix   string
	maxStale time.Duration
	clock    Clock

	mu     sync.Mutex
	cached *snapshot
}

// NewCachedProvider constructs a CachedProvider over prefix.
func NewCachedProvider(store objectstore.Store, prefix string, maxStale time.Duration) *CachedProvider {
	return &CachedProvider{store: store, prefix: prefix, maxStale: maxStale, clock: time.Now}
}

// SetClock overrides the staleness clock; test hook only.
func (p *CachedProvider) SetClock(c Clock) {
	p.clock = c
}

// Keys returns the cached file listing, re-resolving it first if the
// cache has aged past max_cache_stale_duration.
func (p *CachedProvider) Keys(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	if p.cached != nil && now.Sub(p.cached.resolvedAt) < p.maxStale {
		return p.cached.keys, nil
	}

	keys, err := p.store.List(ctx, p.prefix)
	if err != nil {
		return nil, err
	}
	p.cached = &snapshot{keys: keys, resolvedAt: now}
	return keys, nil
}
