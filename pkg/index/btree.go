package index

import (
	"fmt"
	"sync"

	"github.com/mnohosten/laura-core/pkg/storage"
)

// Comparator orders two keys: negative if a < b, zero if equal, positive if
// a > b. The tree never compares keys any other way, so any total order
// works.
type Comparator[K any] func(a, b K) int

// node is the decoded, in-memory form of one tree page. Leaf nodes carry
// keys and values; internal nodes carry keys and children (len(children)
// == len(keys)+1).
type node[K any, V any] struct {
	pageID storage.PageID
	header nodeHeader

	keys     []K
	values   []V
	children []storage.PageID
}

// BPlusTree is a generic, disk-paged, concurrent B+-Tree: unique keys,
// order preserved via Comparator, pages fetched and pinned
// through a storage.BufferPoolManager, and latch crabbing for concurrent
// readers. Structural modifications (Insert, Remove) serialize on a single
// tree-wide mutex; this codebase does not attempt finer-grained write
// concurrency for structural modifications.
type BPlusTree[K any, V any] struct {
	pool         *storage.BufferPoolManager
	headerPageID storage.PageID

	cmp      Comparator[K]
	keyCodec Codec[K]
	valCodec Codec[V]

	leafMaxSize     int
	internalMaxSize int
	minLeafSize     int
	minInternalSize int

	mu      sync.Mutex
	latches *latchTable
}

// NewBPlusTree opens a tree backed by pool. Pass fresh=true the first time
// an index is created against an empty data file (this allocates page 0 as
// the header page); pass fresh=false to reopen an index whose header page
// already exists. leafMaxSize/internalMaxSize of 0 default to the largest
// size each page can physically hold for the given codecs.
func NewBPlusTree[K any, V any](
	pool *storage.BufferPoolManager,
	fresh bool,
	cmp Comparator[K],
	keyCodec Codec[K],
	valCodec Codec[V],
	leafMaxSize, internalMaxSize int,
) (*BPlusTree[K, V], error) {
	leafCap, internalCap := maxEntriesFor(keyCodec.Size, valCodec.Size)
	if leafMaxSize <= 0 || leafMaxSize > leafCap {
		leafMaxSize = leafCap
	}
	if internalMaxSize <= 0 || internalMaxSize > internalCap {
		internalMaxSize = internalCap
	}

	t := &BPlusTree[K, V]{
		pool:            pool,
		headerPageID:    storage.HeaderPageID,
		cmp:             cmp,
		keyCodec:        keyCodec,
		valCodec:        valCodec,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		minLeafSize:     (leafMaxSize + 1) / 2,
		minInternalSize: (internalMaxSize + 1) / 2,
		latches:         newLatchTable(),
	}

	if fresh {
		page, err := pool.NewPage()
		if err != nil {
			return nil, fmt.Errorf("bplustree: allocate header page: %w", err)
		}
		if page.ID != storage.HeaderPageID {
			return nil, fmt.Errorf("bplustree: expected header page id %d, got %d (pool already in use)", storage.HeaderPageID, page.ID)
		}
		copy(page.Data, encodeHeaderPage(headerPageData{RootPageID: storage.InvalidPageID}))
		if err := pool.UnpinPage(page.ID, true); err != nil {
			return nil, err
		}
		return t, nil
	}

	if _, err := pool.FetchPage(storage.HeaderPageID); err != nil {
		return nil, fmt.Errorf("bplustree: fetch header page: %w", err)
	}
	defer pool.UnpinPage(storage.HeaderPageID, false)
	return t, nil
}

func (t *BPlusTree[K, V]) getRootPageID() (storage.PageID, error) {
	page, err := t.pool.FetchPage(t.headerPageID)
	if err != nil {
		return storage.InvalidPageID, err
	}
	defer t.pool.UnpinPage(t.headerPageID, false)
	return decodeHeaderPage(page.Data).RootPageID, nil
}

func (t *BPlusTree[K, V]) setRootPageID(id storage.PageID) error {
	page, err := t.pool.FetchPage(t.headerPageID)
	if err != nil {
		return err
	}
	copy(page.Data, encodeHeaderPage(headerPageData{RootPageID: id}))
	return t.pool.UnpinPage(t.headerPageID, true)
}

func (t *BPlusTree[K, V]) decodeNode(pageID storage.PageID, data []byte) *node[K, V] {
	h := decodeHeader(data)
	n := &node[K, V]{pageID: pageID, header: h}
	off := nodeHeaderSize

	if h.Kind == nodeLeaf {
		n.keys = make([]K, h.KeyCount)
		n.values = make([]V, h.KeyCount)
		for i := 0; i < int(h.KeyCount); i++ {
			n.keys[i] = t.keyCodec.Decode(data[off : off+t.keyCodec.Size])
			off += t.keyCodec.Size
			n.values[i] = t.valCodec.Decode(data[off : off+t.valCodec.Size])
			off += t.valCodec.Size
		}
		return n
	}

	n.keys = make([]K, h.KeyCount)
	n.children = make([]storage.PageID, h.KeyCount+1)
	n.children[0] = decodeChildPointer(data[off : off+childPointerSize])
	off += childPointerSize
	for i := 0; i < int(h.KeyCount); i++ {
		n.keys[i] = t.keyCodec.Decode(data[off : off+t.keyCodec.Size])
		off += t.keyCodec.Size
		n.children[i+1] = decodeChildPointer(data[off : off+childPointerSize])
		off += childPointerSize
	}
	return n
}

func (t *BPlusTree[K, V]) encodeNode(n *node[K, V]) []byte {
	buf := make([]byte, storage.PageSize)
	h := nodeHeader{
		Kind:         n.header.Kind,
		KeyCount:     uint16(len(n.keys)),
		ParentPageID: n.header.ParentPageID,
		NextPageID:   n.header.NextPageID,
		MaxSize:      n.header.MaxSize,
	}
	copy(buf, encodeHeader(h))
	off := nodeHeaderSize

	if h.Kind == nodeLeaf {
		for i := range n.keys {
			copy(buf[off:], t.keyCodec.Encode(n.keys[i]))
			off += t.keyCodec.Size
			copy(buf[off:], t.valCodec.Encode(n.values[i]))
			off += t.valCodec.Size
		}
		return buf
	}

	encodeChildPointer(buf[off:], n.children[0])
	off += childPointerSize
	for i := range n.keys {
		copy(buf[off:], t.keyCodec.Encode(n.keys[i]))
		off += t.keyCodec.Size
		encodeChildPointer(buf[off:], n.children[i+1])
		off += childPointerSize
	}
	return buf
}

func (t *BPlusTree[K, V]) fetchNode(id storage.PageID) (*storage.Page, *node[K, V], error) {
	page, err := t.pool.FetchPage(id)
	if err != nil {
		return nil, nil, err
	}
	return page, t.decodeNode(id, page.Data), nil
}

func (t *BPlusTree[K, V]) writeNode(page *storage.Page, n *node[K, V]) {
	copy(page.Data, t.encodeNode(n))
}

// findChild returns which child of internal node n a search for key must
// descend into.
func (t *BPlusTree[K, V]) findChild(n *node[K, V], key K) storage.PageID {
	i := 0
	for i < len(n.keys) && t.cmp(key, n.keys[i]) >= 0 {
		i++
	}
	return n.children[i]
}

func (t *BPlusTree[K, V]) findInLeaf(n *node[K, V], key K) (int, bool) {
	for i, k := range n.keys {
		if t.cmp(key, k) == 0 {
			return i, true
		}
	}
	return 0, false
}

// insertPos returns the index at which key belongs to keep keys sorted.
func (t *BPlusTree[K, V]) insertPos(keys []K, key K) int {
	i := 0
	for i < len(keys) && t.cmp(keys[i], key) < 0 {
		i++
	}
	return i
}

func (t *BPlusTree[K, V]) indexOfChild(parent *node[K, V], id storage.PageID) int {
	for i, c := range parent.children {
		if c == id {
			return i
		}
	}
	return -1
}

// GetValue looks up key, crabbing read latches root to leaf: a child's
// latch is acquired before its parent's is released, so no writer can
// observe a half-updated path.
func (t *BPlusTree[K, V]) GetValue(key K) (V, error) {
	var zero V

	rootID, err := t.getRootPageID()
	if err != nil {
		return zero, err
	}
	if rootID == storage.InvalidPageID {
		return zero, ErrKeyNotFound
	}

	curID := rootID
	curLatch := t.latches.get(curID)
	curLatch.RLock()
	_, curNode, err := t.fetchNode(curID)
	if err != nil {
		curLatch.RUnlock()
		return zero, err
	}

	for curNode.header.Kind == nodeInternal {
		childID := t.findChild(curNode, key)
		childLatch := t.latches.get(childID)
		childLatch.RLock()

		_, childNode, err := t.fetchNode(childID)
		if err != nil {
			childLatch.RUnlock()
			curLatch.RUnlock()
			t.pool.UnpinPage(curID, false)
			return zero, err
		}

		curLatch.RUnlock()
		t.pool.UnpinPage(curID, false)
		curID, curNode, curLatch = childID, childNode, childLatch
	}

	idx, found := t.findInLeaf(curNode, key)
	curLatch.RUnlock()
	t.pool.UnpinPage(curID, false)
	if !found {
		return zero, ErrKeyNotFound
	}
	return curNode.values[idx], nil
}

// pathStep is one locked, pinned, decoded node on a root-to-leaf write path.
type pathStep[K any, V any] struct {
	page *storage.Page
	node *node[K, V]
}

// lockPathForWrite descends from rootID to the leaf that would hold key,
// taking a write latch on every node along the way and leaving them all
// held (and pinned) on return. The caller is responsible for releasing
// them via unlockPath.
func (t *BPlusTree[K, V]) lockPathForWrite(rootID storage.PageID, key K) ([]pathStep[K, V], error) {
	var path []pathStep[K, V]
	curID := rootID
	for {
		latch := t.latches.get(curID)
		latch.Lock()
		page, n, err := t.fetchNode(curID)
		if err != nil {
			latch.Unlock()
			t.unlockPath(path)
			return nil, err
		}
		path = append(path, pathStep[K, V]{page: page, node: n})
		if n.header.Kind == nodeLeaf {
			return path, nil
		}
		curID = t.findChild(n, key)
	}
}

func (t *BPlusTree[K, V]) unlockPath(path []pathStep[K, V]) {
	for _, step := range path {
		t.pool.UnpinPage(step.node.pageID, false)
		t.latches.get(step.node.pageID).Unlock()
	}
}

// Insert adds key/value, returning ErrDuplicateKey if key is already
// present (this index enforces uniqueness).
func (t *BPlusTree[K, V]) Insert(key K, value V) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rootID, err := t.getRootPageID()
	if err != nil {
		return err
	}
	if rootID == storage.InvalidPageID {
		return t.startNewTree(key, value)
	}

	path, err := t.lockPathForWrite(rootID, key)
	if err != nil {
		return err
	}
	defer t.unlockPath(path)

	leafIdx := len(path) - 1
	leaf := path[leafIdx].node
	if _, found := t.findInLeaf(leaf, key); found {
		return ErrDuplicateKey
	}

	pos := t.insertPos(leaf.keys, key)
	leaf.keys = append(leaf.keys, key)
	copy(leaf.keys[pos+1:], leaf.keys[pos:])
	leaf.keys[pos] = key
	leaf.values = append(leaf.values, value)
	copy(leaf.values[pos+1:], leaf.values[pos:])
	leaf.values[pos] = value
	t.writeNode(path[leafIdx].page, leaf)

	if len(leaf.keys) <= t.leafMaxSize {
		return nil
	}

	siblingPage, siblingNode, splitKey, err := t.splitLeaf(leaf)
	if err != nil {
		return err
	}
	t.writeNode(path[leafIdx].page, leaf)
	t.writeNode(siblingPage, siblingNode)
	if err := t.pool.UnpinPage(siblingNode.pageID, true); err != nil {
		return err
	}

	return t.insertIntoParent(path, leafIdx-1, leaf.pageID, splitKey, siblingNode.pageID)
}

func (t *BPlusTree[K, V]) startNewTree(key K, value V) error {
	page, err := t.pool.NewPage()
	if err != nil {
		return fmt.Errorf("bplustree: allocate root leaf: %w", err)
	}
	root := &node[K, V]{
		pageID: page.ID,
		header: nodeHeader{Kind: nodeLeaf, ParentPageID: storage.InvalidPageID, NextPageID: storage.InvalidPageID, MaxSize: uint16(t.leafMaxSize)},
		keys:   []K{key},
		values: []V{value},
	}
	t.writeNode(page, root)
	if err := t.pool.UnpinPage(page.ID, true); err != nil {
		return err
	}
	return t.setRootPageID(page.ID)
}

// splitLeaf moves the upper half of leaf's entries into a freshly allocated
// sibling, splicing it into the leaf chain.
func (t *BPlusTree[K, V]) splitLeaf(leaf *node[K, V]) (*storage.Page, *node[K, V], K, error) {
	var zero K
	page, err := t.pool.NewPage()
	if err != nil {
		return nil, nil, zero, fmt.Errorf("bplustree: allocate leaf sibling: %w", err)
	}

	mid := len(leaf.keys) / 2
	sibling := &node[K, V]{
		pageID: page.ID,
		header: nodeHeader{
			Kind:         nodeLeaf,
			ParentPageID: leaf.header.ParentPageID,
			NextPageID:   leaf.header.NextPageID,
			MaxSize:      leaf.header.MaxSize,
		},
		keys:   append([]K(nil), leaf.keys[mid:]...),
		values: append([]V(nil), leaf.values[mid:]...),
	}
	leaf.keys = leaf.keys[:mid]
	leaf.values = leaf.values[:mid]
	leaf.header.NextPageID = page.ID

	return page, sibling, sibling.keys[0], nil
}

// splitInternal moves the upper half of n's keys/children into a freshly
// allocated sibling, promoting the middle key rather than copying it down
// into either half (unlike a leaf split). heldChild, if non-nil, is the one
// child of n the caller already holds latched and pinned (the node it
// descended through on the write path); if that child ends up in the upper
// half, its parent pointer is updated in place instead of re-latching it.
func (t *BPlusTree[K, V]) splitInternal(n *node[K, V], heldChild *pathStep[K, V]) (*storage.Page, *node[K, V], K, error) {
	var zero K
	page, err := t.pool.NewPage()
	if err != nil {
		return nil, nil, zero, fmt.Errorf("bplustree: allocate internal sibling: %w", err)
	}

	mid := len(n.keys) / 2
	upKey := n.keys[mid]

	sibling := &node[K, V]{
		pageID: page.ID,
		header: nodeHeader{
			Kind:         nodeInternal,
			ParentPageID: n.header.ParentPageID,
			NextPageID:   storage.InvalidPageID,
			MaxSize:      n.header.MaxSize,
		},
		keys:     append([]K(nil), n.keys[mid+1:]...),
		children: append([]storage.PageID(nil), n.children[mid+1:]...),
	}
	n.keys = n.keys[:mid]
	n.children = n.children[:mid+1]

	for _, childID := range sibling.children {
		if heldChild != nil && heldChild.node.pageID == childID {
			heldChild.node.header.ParentPageID = sibling.pageID
			t.writeNode(heldChild.page, heldChild.node)
			continue
		}
		if err := t.updateChildParent(childID, sibling.pageID); err != nil {
			return nil, nil, zero, err
		}
	}

	return page, sibling, upKey, nil
}

// insertIntoParent splices a newly split (leftID, rightID) pair into the
// ancestor at path[idx], promoting splitKey as their separator, and cascades
// upward — possibly growing a new root — if that ancestor overflows in turn.
func (t *BPlusTree[K, V]) insertIntoParent(path []pathStep[K, V], idx int, leftID storage.PageID, splitKey K, rightID storage.PageID) error {
	if idx < 0 {
		return t.createNewRoot(path[0], splitKey, rightID)
	}

	parent := path[idx].node
	pos := t.indexOfChild(parent, leftID)

	parent.keys = append(parent.keys, splitKey)
	copy(parent.keys[pos+1:], parent.keys[pos:])
	parent.keys[pos] = splitKey

	parent.children = append(parent.children, storage.InvalidPageID)
	copy(parent.children[pos+2:], parent.children[pos+1:])
	parent.children[pos+1] = rightID
	t.updateChildParent(rightID, parent.pageID)

	if len(parent.keys) <= t.internalMaxSize {
		t.writeNode(path[idx].page, parent)
		return nil
	}

	// path[idx+1] is the child of parent that this write path already
	// descended through; it is still latched and pinned here, so
	// splitInternal must not try to re-acquire its latch.
	siblingPage, siblingNode, upKey, err := t.splitInternal(parent, &path[idx+1])
	if err != nil {
		return err
	}
	t.writeNode(path[idx].page, parent)
	t.writeNode(siblingPage, siblingNode)
	if err := t.pool.UnpinPage(siblingNode.pageID, true); err != nil {
		return err
	}

	return t.insertIntoParent(path, idx-1, parent.pageID, upKey, siblingNode.pageID)
}

// createNewRoot grows the tree by one level. leftStep is the old root,
// already latched and pinned on path[0] for the duration of the surrounding
// Insert; its parent pointer is updated in place rather than re-latched.
func (t *BPlusTree[K, V]) createNewRoot(leftStep pathStep[K, V], splitKey K, rightID storage.PageID) error {
	page, err := t.pool.NewPage()
	if err != nil {
		return fmt.Errorf("bplustree: allocate new root: %w", err)
	}
	root := &node[K, V]{
		pageID:   page.ID,
		header:   nodeHeader{Kind: nodeInternal, ParentPageID: storage.InvalidPageID, NextPageID: storage.InvalidPageID, MaxSize: uint16(t.internalMaxSize)},
		keys:     []K{splitKey},
		children: []storage.PageID{leftStep.node.pageID, rightID},
	}
	t.writeNode(page, root)
	if err := t.pool.UnpinPage(page.ID, true); err != nil {
		return err
	}
	if err := t.setRootPageID(page.ID); err != nil {
		return err
	}
	leftStep.node.header.ParentPageID = page.ID
	t.writeNode(leftStep.page, leftStep.node)
	return t.updateChildParent(rightID, page.ID)
}

func (t *BPlusTree[K, V]) updateChildParent(childID, parentID storage.PageID) error {
	if childID == storage.InvalidPageID {
		return nil
	}
	latch := t.latches.get(childID)
	latch.Lock()
	defer latch.Unlock()

	page, n, err := t.fetchNode(childID)
	if err != nil {
		return err
	}
	n.header.ParentPageID = parentID
	t.writeNode(page, n)
	return t.pool.UnpinPage(childID, true)
}

// Remove deletes key, redistributing or coalescing with a sibling if the
// leaf (or any ancestor) underflows below its minimum size.
func (t *BPlusTree[K, V]) Remove(key K) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rootID, err := t.getRootPageID()
	if err != nil {
		return err
	}
	if rootID == storage.InvalidPageID {
		return ErrKeyNotFound
	}

	path, err := t.lockPathForWrite(rootID, key)
	if err != nil {
		return err
	}

	leafIdx := len(path) - 1
	leaf := path[leafIdx].node
	pos, found := t.findInLeaf(leaf, key)
	if !found {
		t.unlockPath(path)
		return ErrKeyNotFound
	}
	leaf.keys = append(leaf.keys[:pos], leaf.keys[pos+1:]...)
	leaf.values = append(leaf.values[:pos], leaf.values[pos+1:]...)
	t.writeNode(path[leafIdx].page, leaf)

	return t.rebalanceAfterRemove(path, leafIdx)
}

func (t *BPlusTree[K, V]) nodeMinSize(n *node[K, V]) int {
	if n.header.Kind == nodeLeaf {
		return t.minLeafSize
	}
	return t.minInternalSize
}

func (t *BPlusTree[K, V]) canMerge(a, b *node[K, V]) bool {
	if a.header.Kind == nodeLeaf {
		return len(a.keys)+len(b.keys) <= t.leafMaxSize
	}
	return len(a.keys)+len(b.keys)+1 <= t.internalMaxSize
}

// mergeNodes folds right's entries into left. separator is the parent
// key between them; it is ignored for leaves (which have no separator of
// their own) and spliced in as left's new middle key for internal nodes.
func (t *BPlusTree[K, V]) mergeNodes(left, right *node[K, V], separator K) {
	if left.header.Kind == nodeLeaf {
		left.keys = append(left.keys, right.keys...)
		left.values = append(left.values, right.values...)
		left.header.NextPageID = right.header.NextPageID
		return
	}
	left.keys = append(left.keys, separator)
	left.keys = append(left.keys, right.keys...)
	left.children = append(left.children, right.children...)
	for _, childID := range right.children {
		t.updateChildParent(childID, left.pageID)
	}
}

func (t *BPlusTree[K, V]) removeChild(parent *node[K, V], keyIdx, childIdx int) {
	parent.keys = append(parent.keys[:keyIdx], parent.keys[keyIdx+1:]...)
	parent.children = append(parent.children[:childIdx], parent.children[childIdx+1:]...)
}

func (t *BPlusTree[K, V]) redistributeFromLeft(left, n, parent *node[K, V], childIdx int) {
	if n.header.Kind == nodeLeaf {
		last := len(left.keys) - 1
		borrowedKey, borrowedVal := left.keys[last], left.values[last]
		left.keys = left.keys[:last]
		left.values = left.values[:last]

		n.keys = append([]K{borrowedKey}, n.keys...)
		n.values = append([]V{borrowedVal}, n.values...)
		parent.keys[childIdx-1] = borrowedKey
		return
	}

	lastKey := len(left.keys) - 1
	borrowedKey := left.keys[lastKey]
	borrowedChild := left.children[len(left.children)-1]
	left.keys = left.keys[:lastKey]
	left.children = left.children[:len(left.children)-1]

	n.keys = append([]K{parent.keys[childIdx-1]}, n.keys...)
	n.children = append([]storage.PageID{borrowedChild}, n.children...)
	parent.keys[childIdx-1] = borrowedKey
	t.updateChildParent(borrowedChild, n.pageID)
}

func (t *BPlusTree[K, V]) redistributeFromRight(n, right, parent *node[K, V], childIdx int) {
	if n.header.Kind == nodeLeaf {
		borrowedKey, borrowedVal := right.keys[0], right.values[0]
		right.keys = right.keys[1:]
		right.values = right.values[1:]

		n.keys = append(n.keys, borrowedKey)
		n.values = append(n.values, borrowedVal)
		parent.keys[childIdx] = right.keys[0]
		return
	}

	borrowedKey := right.keys[0]
	borrowedChild := right.children[0]
	right.keys = right.keys[1:]
	right.children = right.children[1:]

	n.keys = append(n.keys, parent.keys[childIdx])
	n.children = append(n.children, borrowedChild)
	parent.keys[childIdx] = borrowedKey
	t.updateChildParent(borrowedChild, n.pageID)
}

// deletePage asks the buffer pool to deallocate an unpinned, unlinked page.
// Best-effort: a failure here means the page leaks on disk but the tree
// structure itself (already repointed away from it) stays correct.
func (t *BPlusTree[K, V]) deletePage(id storage.PageID) {
	t.pool.DeletePage(id)
}

// rebalanceAfterRemove repairs underflow starting at path[idx] and walking
// toward the root, merging with or borrowing from a sibling as needed. It
// always leaves every remaining entry of path unpinned and unlatched by the
// time it returns.
func (t *BPlusTree[K, V]) rebalanceAfterRemove(path []pathStep[K, V], idx int) error {
	n := path[idx].node
	t.writeNode(path[idx].page, n)

	if idx == 0 {
		if n.header.Kind == nodeInternal && len(n.children) == 1 {
			newRootID := n.children[0]
			if err := t.setRootPageID(newRootID); err != nil {
				t.unlockPath(path)
				return err
			}
			t.updateChildParent(newRootID, storage.InvalidPageID)
			t.pool.UnpinPage(n.pageID, false)
			t.latches.get(n.pageID).Unlock()
			t.latches.forget(n.pageID)
			t.deletePage(n.pageID)
			return nil
		}
		if n.header.Kind == nodeLeaf && len(n.keys) == 0 {
			if err := t.setRootPageID(storage.InvalidPageID); err != nil {
				t.unlockPath(path)
				return err
			}
			t.pool.UnpinPage(n.pageID, false)
			t.latches.get(n.pageID).Unlock()
			t.latches.forget(n.pageID)
			t.deletePage(n.pageID)
			return nil
		}
		t.unlockPath(path)
		return nil
	}

	if len(n.keys) >= t.nodeMinSize(n) {
		t.unlockPath(path)
		return nil
	}

	parent := path[idx-1].node
	childIdx := t.indexOfChild(parent, n.pageID)

	if childIdx > 0 {
		leftID := parent.children[childIdx-1]
		leftLatch := t.latches.get(leftID)
		leftLatch.Lock()
		leftPage, leftNode, err := t.fetchNode(leftID)
		if err != nil {
			leftLatch.Unlock()
			t.unlockPath(path)
			return err
		}

		if t.canMerge(leftNode, n) {
			separator := parent.keys[childIdx-1]
			t.mergeNodes(leftNode, n, separator)
			t.writeNode(leftPage, leftNode)
			t.pool.UnpinPage(leftID, true)
			leftLatch.Unlock()

			t.pool.UnpinPage(n.pageID, false)
			t.latches.get(n.pageID).Unlock()
			t.latches.forget(n.pageID)
			t.deletePage(n.pageID)

			t.removeChild(parent, childIdx-1, childIdx)
			return t.rebalanceAfterRemove(path[:idx], idx-1)
		}

		t.redistributeFromLeft(leftNode, n, parent, childIdx)
		t.writeNode(leftPage, leftNode)
		t.writeNode(path[idx].page, n)
		t.writeNode(path[idx-1].page, parent)
		t.pool.UnpinPage(leftID, true)
		leftLatch.Unlock()
		t.unlockPath(path)
		return nil
	}

	rightID := parent.children[childIdx+1]
	rightLatch := t.latches.get(rightID)
	rightLatch.Lock()
	rightPage, rightNode, err := t.fetchNode(rightID)
	if err != nil {
		rightLatch.Unlock()
		t.unlockPath(path)
		return err
	}

	if t.canMerge(n, rightNode) {
		separator := parent.keys[childIdx]
		t.mergeNodes(n, rightNode, separator)
		t.writeNode(path[idx].page, n)
		t.pool.UnpinPage(n.pageID, true)
		t.latches.get(n.pageID).Unlock()

		t.pool.UnpinPage(rightID, false)
		rightLatch.Unlock()

		t.latches.forget(rightID)
		t.deletePage(rightID)

		t.removeChild(parent, childIdx, childIdx+1)
		return t.rebalanceAfterRemove(path[:idx], idx-1)
	}

	t.redistributeFromRight(n, rightNode, parent, childIdx)
	t.writeNode(path[idx].page, n)
	t.writeNode(rightPage, rightNode)
	t.writeNode(path[idx-1].page, parent)
	t.pool.UnpinPage(rightID, true)
	rightLatch.Unlock()
	t.unlockPath(path)
	return nil
}
