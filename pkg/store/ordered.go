package store

import (
	"sync"

	"github.com/google/btree"
)

const btreeDegree = 16

// Ordered is a sorted map shard store over a user comparator. Iteration
// order is ascending by the comparator.
type Ordered[K, V any] struct {
	mu   sync.Mutex
	less func(K, K) bool
	tree *btree.BTreeG[Entry[K, V]]
}

// NewOrdered creates an empty ordered store sorted by less.
func NewOrdered[K, V any](less func(K, K) bool) *Ordered[K, V] {
	return &Ordered[K, V]{
		less: less,
		tree: btree.NewG(btreeDegree, func(a, b Entry[K, V]) bool {
			return less(a.Key, b.Key)
		}),
	}
}

// Put inserts or replaces the value for key. Last writer wins.
func (o *Ordered[K, V]) Put(key K, value V) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tree.ReplaceOrInsert(Entry[K, V]{Key: key, Value: value})
}

// Get returns the value for key and whether it was present.
func (o *Ordered[K, V]) Get(key K) (V, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.tree.Get(Entry[K, V]{Key: key})
	return e.Value, ok
}

// Erase removes key and reports whether it was present.
func (o *Ordered[K, V]) Erase(key K) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.tree.Delete(Entry[K, V]{Key: key})
	return ok
}

// All returns every entry in ascending key order.
func (o *Ordered[K, V]) All() []Entry[K, V] {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Entry[K, V], 0, o.tree.Len())
	o.tree.Ascend(func(e Entry[K, V]) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Len returns the number of entries.
func (o *Ordered[K, V]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tree.Len()
}

// ContainsRange returns the entries related to key under the containment
// relation: every entry whose key contains key or is contained by key. The
// scan is centred on the lower bound of key and walks outward-right, so it
// only visits the contiguous interval of related keys; correctness requires
// the comparator to keep keys related to any probe adjacent in the order.
//
// A store holding a single entry returns that entry without consulting the
// relation at all.
func (o *Ordered[K, V]) ContainsRange(key K, contains func(outer, inner K) bool) []Entry[K, V] {
	o.mu.Lock()
	defer o.mu.Unlock()

	related := func(e Entry[K, V]) bool {
		return contains(key, e.Key) || contains(e.Key, key)
	}

	switch o.tree.Len() {
	case 0:
		return nil
	case 1:
		e, _ := o.tree.Min()
		return []Entry[K, V]{e}
	}

	probe := Entry[K, V]{Key: key}

	// Least entry >= key. Nothing at or after key means nothing to scan.
	var start Entry[K, V]
	found := false
	o.tree.AscendGreaterOrEqual(probe, func(e Entry[K, V]) bool {
		start = e
		found = true
		return false
	})
	if !found {
		return nil
	}

	// Step one position left when the predecessor is still related to key.
	var pred Entry[K, V]
	havePred := false
	o.tree.DescendLessOrEqual(start, func(e Entry[K, V]) bool {
		if !o.less(e.Key, start.Key) {
			// The lower bound itself; keep descending.
			return true
		}
		pred = e
		havePred = true
		return false
	})
	if havePred && related(pred) {
		start = pred
	}

	var out []Entry[K, V]
	o.tree.AscendGreaterOrEqual(start, func(e Entry[K, V]) bool {
		if !related(e) {
			return false
		}
		out = append(out, e)
		return true
	})
	return out
}
