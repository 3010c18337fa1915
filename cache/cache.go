// Package cache holds the reactor's memoization table: a concurrent map
// from QueryId to Cached, the immutable record of one query's last
// successful (or failed) run.
package cache

import (
	"sync"

	"github.com/kvlabs/queries/fingerprint"
	"github.com/kvlabs/queries/permap"
	"github.com/kvlabs/queries/qid"
)

// DepMap is a persistent map from QueryId to the fingerprint observed
// for that id, used for world_state, direct_world_state and deps_state.
type DepMap = *permap.PerMap[qid.QueryId, fingerprint.Fingerprint]

// EmptyDepMap returns a DepMap with no entries.
func EmptyDepMap() DepMap {
	return permap.Empty[qid.QueryId, fingerprint.Fingerprint](qid.Hash)
}

// Result is the outcome of one body run: either a fingerprinted value or
// an error. A failed result is retained in the cache and is served as a
// fast hit while its world_state still verifies, like any other entry;
// it is never salvaged by recheck, so once its inputs change it is rerun.
type Result struct {
	Value       qid.Object
	Fingerprint fingerprint.Fingerprint
	Err         error
}

// OK reports whether the body run succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Cached is the immutable record stored per QueryId.
type Cached struct {
	Result           Result
	WorldState       DepMap
	DirectWorldState DepMap
	DepsState        DepMap
}

// Cache is the interface the reactor drives the memoization table
// through. Implementations (e.g. a tracing wrapper) may interpose on
// every operation.
type Cache interface {
	Push(key qid.QueryId, entry Cached)
	Pull(key qid.QueryId) (Cached, bool)
	Remove(key qid.QueryId) (Cached, bool)
	Modify(key qid.QueryId, f func(*Cached)) bool
}

// Map is the default Cache: a single mutex guarding a plain Go map. The
// cache is strongly consistent per key; it gives no cross-key atomicity,
// matching §4.E.
type Map struct {
	mu sync.RWMutex
	m  map[qid.QueryId]Cached
}

// NewMap returns an empty cache.
func NewMap() *Map {
	return &Map{m: map[qid.QueryId]Cached{}}
}

func (c *Map) Push(key qid.QueryId, entry Cached) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = entry
}

func (c *Map) Pull(key qid.QueryId) (Cached, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.m[key]
	return entry, ok
}

func (c *Map) Remove(key qid.QueryId) (Cached, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.m[key]
	if ok {
		delete(c.m, key)
	}
	return entry, ok
}

func (c *Map) Modify(key qid.QueryId, f func(*Cached)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.m[key]
	if !ok {
		return false
	}
	f(&entry)
	c.m[key] = entry
	return true
}
