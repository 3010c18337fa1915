package permap

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func snapshot[K comparable, V any](m *PerMap[K, V]) map[K]V {
	out := map[K]V{}
	for k, v := range m.All() {
		out[k] = v
	}
	return out
}

func fnvHash(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

func constantHash(string) uint64 {
	return 7
}

func TestInsertThenGetFaithful(t *testing.T) {
	m := Empty[string, int](fnvHash)
	m = m.Insert("a", 1)
	m = m.Insert("b", 2)
	m = m.Insert("c", 3)

	cases := map[string]int{"a": 1, "b": 2, "c": 3}
	for k, want := range cases {
		got, ok := m.Get(k)
		if !ok || got != want {
			t.Fatalf("Get(%q) = %d, %v, want %d, true", k, got, ok, want)
		}
	}
	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", m.Len())
	}
}

func TestUnrelatedKeysUnaffected(t *testing.T) {
	m := Empty[string, int](fnvHash).Insert("x", 1).Insert("y", 2)
	m2 := m.Insert("x", 99)
	if got, _ := m2.Get("y"); got != 2 {
		t.Fatalf("unrelated key y changed: got %d", got)
	}
	if got, _ := m.Get("x"); got != 1 {
		t.Fatalf("original map mutated: Get(x) = %d, want 1", got)
	}
}

func TestImmutability(t *testing.T) {
	m := Empty[string, int](fnvHash).Insert("k", 1)
	m2 := m.Insert("k", 2)
	if got, _ := m.Get("k"); got != 1 {
		t.Fatalf("original changed after derived insert: got %d, want 1", got)
	}
	if got, _ := m2.Get("k"); got != 2 {
		t.Fatalf("derived map wrong: got %d, want 2", got)
	}
}

func TestHashClashRobustness(t *testing.T) {
	m := Empty[string, int](constantHash)
	keys := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	for i, k := range keys {
		m = m.Insert(k, i)
	}
	if m.Len() != len(keys) {
		t.Fatalf("Len() = %d, want %d", m.Len(), len(keys))
	}
	for i, k := range keys {
		got, ok := m.Get(k)
		if !ok || got != i {
			t.Fatalf("Get(%q) = %d, %v, want %d, true", k, got, ok, i)
		}
	}
	m = m.Remove("gamma")
	if _, ok := m.Get("gamma"); ok {
		t.Fatalf("gamma should be removed")
	}
	if got, _ := m.Get("delta"); got != 3 {
		t.Fatalf("Get(delta) = %d, want 3 after removing a colliding sibling", got)
	}
}

func TestUnionTotality(t *testing.T) {
	left := Empty[string, int](fnvHash).Insert("a", 1).Insert("shared", 10)
	right := Empty[string, int](fnvHash).Insert("b", 2).Insert("shared", 20)

	u := left.Union(right)
	if got, _ := u.Get("shared"); got != 20 {
		t.Fatalf("Union conflict resolution: got %d, want right's 20", got)
	}
	if got, _ := u.Get("a"); got != 1 {
		t.Fatalf("Get(a) = %d, want 1", got)
	}
	if got, _ := u.Get("b"); got != 2 {
		t.Fatalf("Get(b) = %d, want 2", got)
	}

	seen := map[string]bool{}
	for k := range u.All() {
		seen[k] = true
	}
	for _, k := range []string{"a", "b", "shared"} {
		if !seen[k] {
			t.Fatalf("Union missing key %q", k)
		}
	}
	if u.Len() != 3 {
		t.Fatalf("Union Len() = %d, want 3", u.Len())
	}
}

func TestNonOverridingUnionSucceedsOnAgreement(t *testing.T) {
	left := Empty[string, int](fnvHash).Insert("a", 1).Insert("shared", 5)
	right := Empty[string, int](fnvHash).Insert("b", 2).Insert("shared", 5)

	u, conflict := left.NonOverridingUnion(right, func(a, b int) bool { return a == b })
	if conflict != nil {
		t.Fatalf("unexpected conflict: %+v", conflict)
	}
	if u.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", u.Len())
	}
}

func TestNonOverridingUnionReportsConflict(t *testing.T) {
	left := Empty[string, int](fnvHash).Insert("shared", 5)
	right := Empty[string, int](fnvHash).Insert("shared", 6)

	_, conflict := left.NonOverridingUnion(right, func(a, b int) bool { return a == b })
	if conflict == nil {
		t.Fatalf("expected conflict")
	}
	if conflict.Key != "shared" || conflict.Left != 5 || conflict.Right != 6 {
		t.Fatalf("conflict = %+v, want key=shared left=5 right=6", conflict)
	}
}

func TestManyKeysSurviveFnvHash(t *testing.T) {
	m := Empty[string, int](fnvHash)
	n := 500
	for i := 0; i < n; i++ {
		m = m.Insert(fmt.Sprintf("key-%d", i), i)
	}
	if m.Len() != n {
		t.Fatalf("Len() = %d, want %d", m.Len(), n)
	}
	for i := 0; i < n; i++ {
		got, ok := m.Get(fmt.Sprintf("key-%d", i))
		if !ok || got != i {
			t.Fatalf("Get(key-%d) = %d, %v, want %d, true", i, got, ok, i)
		}
	}
}

func TestSnapshotUnaffectedByLaterInserts(t *testing.T) {
	m := Empty[string, int](fnvHash).Insert("a", 1).Insert("b", 2)
	before := snapshot(m)

	_ = m.Insert("c", 3).Insert("a", 99)

	after := snapshot(m)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("snapshot of m changed after deriving new maps from it (-before +after):\n%s", diff)
	}
	want := map[string]int{"a": 1, "b": 2}
	if diff := cmp.Diff(want, after); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestPerSet(t *testing.T) {
	s := EmptySet[string](fnvHash).Insert("a").Insert("b")
	if !s.Contains("a") || !s.Contains("b") {
		t.Fatalf("set missing inserted members")
	}
	if s.Contains("c") {
		t.Fatalf("set should not contain c")
	}
	other := EmptySet[string](fnvHash).Insert("c")
	u := s.Union(other)
	for _, k := range []string{"a", "b", "c"} {
		if !u.Contains(k) {
			t.Fatalf("union missing %q", k)
		}
	}
}
