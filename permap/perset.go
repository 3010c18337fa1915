package permap

import "iter"

type unit struct{}

// PerSet is a persistent, immutable set built directly on PerMap[K, unit].
type PerSet[K comparable] struct {
	m *PerMap[K, unit]
}

// EmptySet returns an empty PerSet using hash to address keys.
func EmptySet[K comparable](hash HashFunc[K]) *PerSet[K] {
	return &PerSet[K]{m: Empty[K, unit](hash)}
}

// Len returns the number of distinct keys in the set.
func (s *PerSet[K]) Len() int {
	return s.m.Len()
}

// IsEmpty reports whether the set has no members.
func (s *PerSet[K]) IsEmpty() bool {
	return s.m.IsEmpty()
}

// Insert returns a new set containing key in addition to s's members.
func (s *PerSet[K]) Insert(key K) *PerSet[K] {
	return &PerSet[K]{m: s.m.Insert(key, unit{})}
}

// Contains reports whether key is a member of the set.
func (s *PerSet[K]) Contains(key K) bool {
	_, ok := s.m.Get(key)
	return ok
}

// Union returns a new set containing every member of both s and other.
func (s *PerSet[K]) Union(other *PerSet[K]) *PerSet[K] {
	return &PerSet[K]{m: s.m.Union(other.m)}
}

// All returns an iterator over the set's members.
func (s *PerSet[K]) All() iter.Seq[K] {
	return func(yield func(K) bool) {
		s.m.All()(func(k K, _ unit) bool {
			return yield(k)
		})
	}
}
