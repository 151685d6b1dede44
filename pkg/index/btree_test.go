package index

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/mnohosten/laura-core/pkg/storage"
)

func int32Codec() Codec[int32] {
	return Codec[int32]{
		Size: 4,
		Encode: func(v int32) []byte {
			buf := make([]byte, 4)
			binary.LittleEndian.PutUint32(buf, uint32(v))
			return buf
		},
		Decode: func(b []byte) int32 {
			return int32(binary.LittleEndian.Uint32(b))
		},
	}
}

func compareInt32(a, b int32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func newTestTree(t *testing.T, leafMax, internalMax int) *BPlusTree[int32, int32] {
	t.Helper()
	cfg := storage.DefaultConfig(filepath.Join(t.TempDir(), "index"))
	cfg.BufferPoolSize = 32
	engine, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	tree, err := NewBPlusTree[int32, int32](engine.BufferPool(), true, compareInt32, int32Codec(), int32Codec(), leafMax, internalMax)
	if err != nil {
		t.Fatalf("NewBPlusTree: %v", err)
	}
	return tree
}

// TestBPlusTreeInsertAndGetValue covers a basic case: with
// a small leaf size forcing frequent splits, every inserted key must be
// retrievable afterward.
func TestBPlusTreeInsertAndGetValue(t *testing.T) {
	tree := newTestTree(t, 4, 4)

	for i := int32(1); i <= 20; i++ {
		if err := tree.Insert(i, i*10); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	for i := int32(1); i <= 20; i++ {
		got, err := tree.GetValue(i)
		if err != nil {
			t.Fatalf("GetValue(%d): %v", i, err)
		}
		if got != i*10 {
			t.Errorf("GetValue(%d) = %d, want %d", i, got, i*10)
		}
	}

	if _, err := tree.GetValue(999); err != ErrKeyNotFound {
		t.Fatalf("GetValue(999) = %v, want ErrKeyNotFound", err)
	}
}

// TestBPlusTreeRejectsDuplicateKeys mirrors BPT-2: this index enforces key
// uniqueness.
func TestBPlusTreeRejectsDuplicateKeys(t *testing.T) {
	tree := newTestTree(t, 4, 4)

	if err := tree.Insert(5, 50); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tree.Insert(5, 999); err != ErrDuplicateKey {
		t.Fatalf("Insert duplicate = %v, want ErrDuplicateKey", err)
	}
	got, err := tree.GetValue(5)
	if err != nil || got != 50 {
		t.Fatalf("GetValue(5) = %d, %v, want 50, nil (duplicate insert must not overwrite)", got, err)
	}
}

// TestBPlusTreeRangeScan mirrors BPT-3: a range scan from a lower bound
// must return every key from that point on, in ascending order.
func TestBPlusTreeRangeScan(t *testing.T) {
	tree := newTestTree(t, 4, 4)

	for i := int32(0); i < 30; i++ {
		if err := tree.Insert(i, i*i); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	it, err := tree.RangeScan(10)
	if err != nil {
		t.Fatalf("RangeScan: %v", err)
	}

	want := int32(10)
	count := 0
	for {
		k, v, ok := it.Next()
		if !ok {
			break
		}
		if k != want {
			t.Fatalf("scan returned key %d out of order, want %d", k, want)
		}
		if v != k*k {
			t.Fatalf("scan returned value %d for key %d, want %d", v, k, k*k)
		}
		want++
		count++
	}
	if count != 20 {
		t.Fatalf("scan returned %d entries, want 20 (keys 10..29)", count)
	}
}

// TestBPlusTreeRemoveTriggersRebalance inserts enough keys to build a
// multi-level tree, then removes most of them, checking that every
// remaining key is still reachable and every removed key is gone.
func TestBPlusTreeRemoveTriggersRebalance(t *testing.T) {
	tree := newTestTree(t, 4, 4)

	const n = 50
	for i := int32(0); i < n; i++ {
		if err := tree.Insert(i, i); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	for i := int32(0); i < n; i++ {
		if i%2 == 0 {
			if err := tree.Remove(i); err != nil {
				t.Fatalf("Remove(%d): %v", i, err)
			}
		}
	}

	for i := int32(0); i < n; i++ {
		got, err := tree.GetValue(i)
		if i%2 == 0 {
			if err != ErrKeyNotFound {
				t.Errorf("GetValue(%d) after removal = %v, want ErrKeyNotFound", i, err)
			}
			continue
		}
		if err != nil || got != i {
			t.Errorf("GetValue(%d) = %d, %v, want %d, nil", i, got, err, i)
		}
	}

	if err := tree.Remove(999); err != ErrKeyNotFound {
		t.Fatalf("Remove(999) = %v, want ErrKeyNotFound", err)
	}
}

func TestBPlusTreeEmptyTreeOperations(t *testing.T) {
	tree := newTestTree(t, 4, 4)

	if _, err := tree.GetValue(1); err != ErrKeyNotFound {
		t.Fatalf("GetValue on empty tree = %v, want ErrKeyNotFound", err)
	}
	if err := tree.Remove(1); err != ErrKeyNotFound {
		t.Fatalf("Remove on empty tree = %v, want ErrKeyNotFound", err)
	}
	it, err := tree.RangeScan(0)
	if err != nil {
		t.Fatalf("RangeScan on empty tree: %v", err)
	}
	if _, _, ok := it.Next(); ok {
		t.Fatalf("Next on empty tree iterator should return false")
	}
}
