package index

import "github.com/mnohosten/laura-core/pkg/storage"

// Iterator walks a leaf chain left to right starting from the first key
// greater than or equal to its lower bound. Each leaf is decoded and
// released immediately rather than held pinned across calls to Next.
type Iterator[K any, V any] struct {
	tree *BPlusTree[K, V]
	leaf *node[K, V]
	idx  int
}

// RangeScan returns an Iterator positioned at the first key >= start.
func (t *BPlusTree[K, V]) RangeScan(start K) (*Iterator[K, V], error) {
	rootID, err := t.getRootPageID()
	if err != nil {
		return nil, err
	}
	if rootID == storage.InvalidPageID {
		return &Iterator[K, V]{tree: t}, nil
	}

	curID := rootID
	for {
		latch := t.latches.get(curID)
		latch.RLock()
		_, n, err := t.fetchNode(curID)
		if err != nil {
			latch.RUnlock()
			return nil, err
		}
		t.pool.UnpinPage(curID, false)

		if n.header.Kind == nodeLeaf {
			latch.RUnlock()
			return &Iterator[K, V]{tree: t, leaf: n, idx: t.insertPos(n.keys, start)}, nil
		}
		childID := t.findChild(n, start)
		latch.RUnlock()
		curID = childID
	}
}

// Next returns the next (key, value) pair in ascending order, or false once
// the scan is exhausted.
func (it *Iterator[K, V]) Next() (K, V, bool) {
	var zeroK K
	var zeroV V

	for {
		if it.leaf == nil {
			return zeroK, zeroV, false
		}
		if it.idx < len(it.leaf.keys) {
			k, v := it.leaf.keys[it.idx], it.leaf.values[it.idx]
			it.idx++
			return k, v, true
		}

		nextID := it.leaf.header.NextPageID
		if nextID == storage.InvalidPageID {
			it.leaf = nil
			return zeroK, zeroV, false
		}

		latch := it.tree.latches.get(nextID)
		latch.RLock()
		_, n, err := it.tree.fetchNode(nextID)
		latch.RUnlock()
		if err != nil {
			it.leaf = nil
			return zeroK, zeroV, false
		}
		it.tree.pool.UnpinPage(nextID, false)
		it.leaf, it.idx = n, 0
	}
}
