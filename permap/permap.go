// Package permap implements a persistent, immutable hash-array-mapped
// trie (HAMT): PerMap[K, V] and the PerSet[K] built on top of it. Every
// mutating operation returns a new map; the receiver is left untouched
// and subtrees that did not change are shared with the original via Go
// pointers, the same structural-sharing a reference-counted Arc would
// give in a language without a tracing GC.
package permap

import "iter"

// HashFunc hashes a key to 64 bits, consumed four bits at a time from
// the low end by the trie. Two equal keys must hash identically; unequal
// keys are permitted (even required, for clash-tolerance tests) to
// collide.
type HashFunc[K comparable] func(K) uint64

// PerMap is an immutable map from K to V with structural sharing between
// snapshots.
type PerMap[K comparable, V any] struct {
	root *node[K, V]
	hash HashFunc[K]
}

// Empty returns an empty PerMap using hash to address keys.
func Empty[K comparable, V any](hash HashFunc[K]) *PerMap[K, V] {
	return &PerMap[K, V]{hash: hash}
}

// Len returns the number of distinct keys stored.
func (m *PerMap[K, V]) Len() int {
	if m.root == nil {
		return 0
	}
	return m.root.weight
}

// IsEmpty reports whether the map has no entries.
func (m *PerMap[K, V]) IsEmpty() bool {
	return m.Len() == 0
}

// Insert returns a new map with key bound to value, leaving m unchanged.
func (m *PerMap[K, V]) Insert(key K, value V) *PerMap[K, V] {
	addr := newBitShifter(m.hash(key))
	return &PerMap[K, V]{root: insert(m.root, key, value, addr), hash: m.hash}
}

// Get looks up key, reporting whether it was present.
func (m *PerMap[K, V]) Get(key K) (V, bool) {
	addr := newBitShifter(m.hash(key))
	return get(m.root, key, addr)
}

// Remove returns a new map without key, leaving m unchanged. Removing an
// absent key is a no-op that returns an equivalent map.
func (m *PerMap[K, V]) Remove(key K) *PerMap[K, V] {
	addr := newBitShifter(m.hash(key))
	return &PerMap[K, V]{root: remove(m.root, key, addr), hash: m.hash}
}

// Union returns a new map containing every key of both m and other; on a
// shared key, other's value wins.
func (m *PerMap[K, V]) Union(other *PerMap[K, V]) *PerMap[K, V] {
	return &PerMap[K, V]{root: merge(m.root, other.root), hash: m.hash}
}

// NonOverridingUnion returns a new map containing every key of both m
// and other, provided every shared key carries an equal value (per
// equal) on both sides. If some shared key disagrees, it returns a
// *Conflict describing the first disagreement found and no map.
func (m *PerMap[K, V]) NonOverridingUnion(other *PerMap[K, V], equal func(a, b V) bool) (*PerMap[K, V], *Conflict[K, V]) {
	root, conflict := nonOverridingMerge(m.root, other.root, equal)
	if conflict != nil {
		return nil, conflict
	}
	return &PerMap[K, V]{root: root, hash: m.hash}, nil
}

// All returns an iterator over (key, value) pairs in an order that is
// stable for one snapshot but unspecified across snapshots.
func (m *PerMap[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		each(m.root, yield)
	}
}
