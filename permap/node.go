package permap

import "github.com/kvlabs/queries/sparsevec"

// entry is a single key/value pair stored in a leaf.
type entry[K comparable, V any] struct {
	key   K
	value V
}

// node is either a leaf holding colliding keys (linear-scanned) or a
// branch holding up to 16 children indexed by one 4-bit hash chunk.
// Nodes are immutable once built: every mutating operation returns a
// new node, sharing untouched subtrees with the original.
type node[K comparable, V any] struct {
	isLeaf bool
	leaf   []entry[K, V]
	branch *sparsevec.SparseVec[*node[K, V]]
	weight int
}

func emptyBranch[K comparable, V any]() *node[K, V] {
	return &node[K, V]{branch: sparsevec.New[*node[K, V]]()}
}

func (n *node[K, V]) cloneLeaf() []entry[K, V] {
	out := make([]entry[K, V], len(n.leaf))
	copy(out, n.leaf)
	return out
}

// insert returns a new tree with key/value inserted, following the path
// dictated by address. eq is the key-equality predicate (always Go's
// native == via the comparable constraint).
func insert[K comparable, V any](n *node[K, V], key K, value V, address bitShifter) *node[K, V] {
	if n == nil {
		n = emptyBranch[K, V]()
	}
	if n.isLeaf {
		for i, e := range n.leaf {
			if e.key == key {
				newLeaf := n.cloneLeaf()
				newLeaf[i] = entry[K, V]{key, value}
				return &node[K, V]{isLeaf: true, leaf: newLeaf, weight: n.weight}
			}
		}
		newLeaf := n.cloneLeaf()
		newLeaf = append(newLeaf, entry[K, V]{key, value})
		return &node[K, V]{isLeaf: true, leaf: newLeaf, weight: n.weight + 1}
	}

	chunk, rest, ok := address.next()
	if !ok {
		// Hash space exhausted (every bit consumed): degrade this
		// branch into a leaf so colliding keys share one linear scan.
		leaf := &node[K, V]{isLeaf: true}
		return insert(leaf, key, value, address)
	}

	newBranch := n.branch.Clone()
	child, had := newBranch.Get(chunk)
	if !had {
		newChild := allocate[K, V](key, value, rest)
		newBranch.Insert(chunk, newChild)
		return &node[K, V]{branch: newBranch, weight: n.weight + 1}
	}
	newChild := insert(child, key, value, rest)
	newBranch.Insert(chunk, newChild)
	return &node[K, V]{branch: newBranch, weight: n.weight + newChild.weight - child.weight}
}

// allocate builds a fresh single-key path for key/value starting at address.
func allocate[K comparable, V any](key K, value V, address bitShifter) *node[K, V] {
	chunk, rest, ok := address.next()
	if !ok {
		return &node[K, V]{isLeaf: true, leaf: []entry[K, V]{{key, value}}, weight: 1}
	}
	child := allocate[K, V](key, value, rest)
	branch := sparsevec.New[*node[K, V]]()
	branch.Insert(chunk, child)
	return &node[K, V]{branch: branch, weight: 1}
}

// get descends the tree following address, linear-scanning the leaf it
// bottoms out at.
func get[K comparable, V any](n *node[K, V], key K, address bitShifter) (V, bool) {
	if n == nil {
		var zero V
		return zero, false
	}
	if n.isLeaf {
		for _, e := range n.leaf {
			if e.key == key {
				return e.value, true
			}
		}
		var zero V
		return zero, false
	}
	chunk, rest, ok := address.next()
	if !ok {
		var zero V
		return zero, false
	}
	child, had := n.branch.Get(chunk)
	if !had {
		var zero V
		return zero, false
	}
	return get(child, key, rest)
}

// remove returns a tree with key removed, if present. No structural
// compaction is performed: empty branches are left in place.
func remove[K comparable, V any](n *node[K, V], key K, address bitShifter) *node[K, V] {
	if n == nil {
		return nil
	}
	if n.isLeaf {
		for i, e := range n.leaf {
			if e.key == key {
				newLeaf := make([]entry[K, V], 0, len(n.leaf)-1)
				newLeaf = append(newLeaf, n.leaf[:i]...)
				newLeaf = append(newLeaf, n.leaf[i+1:]...)
				return &node[K, V]{isLeaf: true, leaf: newLeaf, weight: n.weight - 1}
			}
		}
		return n
	}
	chunk, rest, ok := address.next()
	if !ok {
		return n
	}
	child, had := n.branch.Get(chunk)
	if !had {
		return n
	}
	newChild := remove(child, key, rest)
	if newChild == child {
		return n
	}
	newBranch := n.branch.Clone()
	newBranch.Insert(chunk, newChild)
	return &node[K, V]{branch: newBranch, weight: n.weight + newChild.weight - child.weight}
}

// merge recursively overwrites left with right on key conflicts.
func merge[K comparable, V any](left, right *node[K, V]) *node[K, V] {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	if left.isLeaf || right.isLeaf {
		out := left.cloneLeaf()
		for _, re := range rightLeafEntries(right) {
			replaced := false
			for i, e := range out {
				if e.key == re.key {
					out[i] = re
					replaced = true
					break
				}
			}
			if !replaced {
				out = append(out, re)
			}
		}
		return &node[K, V]{isLeaf: true, leaf: out, weight: len(out)}
	}

	merged := sparsevec.New[*node[K, V]]()
	weight := 0
	seen := map[int]bool{}
	for _, i := range left.branch.Keys() {
		lc, _ := left.branch.Get(i)
		var combined *node[K, V]
		if rc, had := right.branch.Get(i); had {
			combined = merge(lc, rc)
		} else {
			combined = lc
		}
		merged.Insert(i, combined)
		weight += combined.weight
		seen[i] = true
	}
	for _, i := range right.branch.Keys() {
		if seen[i] {
			continue
		}
		rc, _ := right.branch.Get(i)
		merged.Insert(i, rc)
		weight += rc.weight
	}
	return &node[K, V]{branch: merged, weight: weight}
}

// rightLeafEntries treats a branch node as a degenerate empty leaf so
// merge can be written uniformly; this only happens when the hash space
// is exhausted on one side but not the other, which cannot occur in
// practice since both sides walk identical addresses. Kept defensive.
func rightLeafEntries[K comparable, V any](n *node[K, V]) []entry[K, V] {
	if n.isLeaf {
		return n.leaf
	}
	return nil
}

// Conflict is returned by nonOverridingMerge when the same key carries
// different values on each side.
type Conflict[K comparable, V any] struct {
	Key   K
	Left  V
	Right V
}

func (c *Conflict[K, V]) Error() string {
	return "conflicting values for the same key in a non-overriding union"
}

func nonOverridingMerge[K comparable, V any](left, right *node[K, V], equal func(a, b V) bool) (*node[K, V], *Conflict[K, V]) {
	if left == nil {
		return right, nil
	}
	if right == nil {
		return left, nil
	}
	if left.isLeaf || right.isLeaf {
		out := left.cloneLeaf()
		for _, re := range rightLeafEntries(right) {
			found := false
			for i, e := range out {
				if e.key == re.key {
					found = true
					if !equal(e.value, re.value) {
						return nil, &Conflict[K, V]{Key: re.key, Left: e.value, Right: re.value}
					}
					out[i] = re
					break
				}
			}
			if !found {
				out = append(out, re)
			}
		}
		return &node[K, V]{isLeaf: true, leaf: out, weight: len(out)}, nil
	}

	merged := sparsevec.New[*node[K, V]]()
	weight := 0
	seen := map[int]bool{}
	for _, i := range left.branch.Keys() {
		lc, _ := left.branch.Get(i)
		var combined *node[K, V]
		if rc, had := right.branch.Get(i); had {
			var conflict *Conflict[K, V]
			combined, conflict = nonOverridingMerge(lc, rc, equal)
			if conflict != nil {
				return nil, conflict
			}
		} else {
			combined = lc
		}
		merged.Insert(i, combined)
		weight += combined.weight
		seen[i] = true
	}
	for _, i := range right.branch.Keys() {
		if seen[i] {
			continue
		}
		rc, _ := right.branch.Get(i)
		merged.Insert(i, rc)
		weight += rc.weight
	}
	return &node[K, V]{branch: merged, weight: weight}, nil
}

// each walks the tree depth-first using an explicit stack of branch
// iterators rather than recursion, matching the iteration strategy the
// persistent-map design calls for.
func each[K comparable, V any](root *node[K, V], yield func(K, V) bool) {
	if root == nil {
		return
	}
	if root.isLeaf {
		for _, e := range root.leaf {
			if !yield(e.key, e.value) {
				return
			}
		}
		return
	}
	type frame struct {
		n    *node[K, V]
		next int
	}
	stack := []*frame{{n: root}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		keys := top.n.branch.Keys()
		if top.next >= len(keys) {
			stack = stack[:len(stack)-1]
			continue
		}
		idx := keys[top.next]
		top.next++
		child, _ := top.n.branch.Get(idx)
		if child.isLeaf {
			for _, e := range child.leaf {
				if !yield(e.key, e.value) {
					return
				}
			}
		} else {
			stack = append(stack, &frame{n: child})
		}
	}
}
