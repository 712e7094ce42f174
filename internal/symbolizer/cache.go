// Package symbolizer implements C7 (the bounded symbolizer cache) and C8
// (the per-build-id liner that resolves addresses to lines via DWARF or a
// symbol table). Grounded on the teacher's internal/agent/debug/symbolizer.go,
// which already does exactly this job for one live process; this package
// generalizes it to the server's "parse once per query, cache by
// (build_id, normalized address)" shape.
package symbolizer

import (
	"fmt"

	"github.com/coral-mesh/profilestore/internal/location"
	"github.com/coral-mesh/profilestore/internal/lrucache"
)

// Line is a single resolved source line: an alias of location.Line, and
// cached values are serialized with C1's frame codec (see serializeLines).
type Line = location.Line

// Cache is the bounded (build_id, normalized_address) -> []Line map (C7).
type Cache struct {
	inner *lrucache.Cache[string, []byte]
}

// NewCache creates a Cache bounded to capacity entries.
func NewCache(capacity int) *Cache {
	return &Cache{inner: lrucache.New[string, []byte](capacity)}
}

func cacheKey(buildID string, normAddr uint64) string {
	return fmt.Sprintf("%s/0x%x", buildID, normAddr)
}

// Get returns the cached lines for (buildID, normAddr), or ok=false on miss.
func (c *Cache) Get(buildID string, normAddr uint64) ([]Line, bool) {
	raw, ok := c.inner.Get(cacheKey(buildID, normAddr))
	if !ok {
		return nil, false
	}
	lines, err := deserializeLines(raw)
	if err != nil {
		return nil, false
	}
	return lines, true
}

// Set overwrites the cached lines for (buildID, normAddr).
func (c *Cache) Set(buildID string, normAddr uint64, lines []Line) {
	c.inner.Set(cacheKey(buildID, normAddr), serializeLines(lines))
}

// serializeLines is a deterministic, size-prefixed encoding reusing C1's
// frame codec machinery at the line level so cached values are safe to
// store in any byte cache (spec §4.7).
func serializeLines(lines []Line) []byte {
	f := location.Frame{Lines: lines}
	return location.Encode(f)
}

func deserializeLines(b []byte) ([]Line, error) {
	f, err := location.Decode(b)
	if err != nil {
		return nil, err
	}
	return f.Lines, nil
}
