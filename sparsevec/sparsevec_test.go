package sparsevec

import "testing"

func TestInsertGet(t *testing.T) {
	v := New[string]()
	v.Insert(3, "three")
	v.Insert(0, "zero")
	v.Insert(15, "fifteen")

	if got, ok := v.Get(3); !ok || got != "three" {
		t.Fatalf("Get(3) = %q, %v", got, ok)
	}
	if got, ok := v.Get(0); !ok || got != "zero" {
		t.Fatalf("Get(0) = %q, %v", got, ok)
	}
	if got, ok := v.Get(15); !ok || got != "fifteen" {
		t.Fatalf("Get(15) = %q, %v", got, ok)
	}
	if _, ok := v.Get(7); ok {
		t.Fatalf("Get(7) should be absent")
	}
	if v.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", v.Len())
	}
}

func TestInsertOverwritePreservesLen(t *testing.T) {
	v := New[int]()
	v.Insert(5, 1)
	v.Insert(5, 2)
	if v.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", v.Len())
	}
	if got, _ := v.Get(5); got != 2 {
		t.Fatalf("Get(5) = %d, want 2", got)
	}
}

func TestSwapRoundTrips(t *testing.T) {
	v := New[int]()
	if _, had := v.Swap(2, 10); had {
		t.Fatalf("Swap into empty slot should report absent")
	}
	old, had := v.Swap(2, 20)
	if !had || old != 10 {
		t.Fatalf("Swap(2, 20) = %d, %v, want 10, true", old, had)
	}
	if got, _ := v.Get(2); got != 20 {
		t.Fatalf("Get(2) = %d, want 20", got)
	}
}

func TestRemove(t *testing.T) {
	v := New[int]()
	v.Insert(1, 1)
	v.Insert(2, 2)
	v.Insert(3, 3)

	val, ok := v.Remove(2)
	if !ok || val != 2 {
		t.Fatalf("Remove(2) = %d, %v, want 2, true", val, ok)
	}
	if v.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", v.Len())
	}
	if got, _ := v.Get(1); got != 1 {
		t.Fatalf("Get(1) = %d, want 1", got)
	}
	if got, _ := v.Get(3); got != 3 {
		t.Fatalf("Get(3) = %d, want 3", got)
	}
	if _, ok := v.Remove(2); ok {
		t.Fatalf("second Remove(2) should report absent")
	}
}

func TestIterAscending(t *testing.T) {
	v := New[int]()
	for _, pos := range []int{9, 0, 5, 15, 3} {
		v.Insert(pos, pos)
	}
	var got []int
	v.Iter(func(val int) bool {
		got = append(got, val)
		return true
	})
	want := []int{0, 3, 5, 9, 15}
	if len(got) != len(want) {
		t.Fatalf("Iter yielded %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Iter yielded %v, want %v", got, want)
		}
	}
}

func TestIterStopsEarly(t *testing.T) {
	v := New[int]()
	v.Insert(0, 0)
	v.Insert(1, 1)
	v.Insert(2, 2)
	count := 0
	v.Iter(func(int) bool {
		count++
		return count < 2
	})
	if count != 2 {
		t.Fatalf("Iter called yield %d times, want 2", count)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	v := New[int]()
	v.Insert(4, 100)
	clone := v.Clone()
	clone.Insert(4, 200)
	if got, _ := v.Get(4); got != 100 {
		t.Fatalf("original mutated via clone: Get(4) = %d, want 100", got)
	}
	if got, _ := clone.Get(4); got != 200 {
		t.Fatalf("clone Get(4) = %d, want 200", got)
	}
}

func TestKeysAscending(t *testing.T) {
	v := New[int]()
	for _, pos := range []int{12, 1, 8} {
		v.Insert(pos, pos)
	}
	keys := v.Keys()
	want := []int{1, 8, 12}
	if len(keys) != len(want) {
		t.Fatalf("Keys() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Keys() = %v, want %v", keys, want)
		}
	}
}
