package storage

import "testing"

func identityHash(key int) uint64 {
	return uint64(key)
}

// TestExtendibleHashTableSplitsAndFinds covers a worked example:
// inserting keys 1..9 with bucket capacity 2 under an identity hash should
// leave directory slots 0-3 at local depths 2, 3, 2, 2 and keep every
// inserted key reachable.
func TestExtendibleHashTableSplitsAndFinds(t *testing.T) {
	table := NewExtendibleHashTable[int, string](2, identityHash)

	values := map[int]string{
		1: "a", 2: "b", 3: "c", 4: "d", 5: "e",
		6: "f", 7: "g", 8: "h", 9: "i",
	}
	for k := 1; k <= 9; k++ {
		table.Insert(k, values[k])
	}

	wantLocalDepths := []int{2, 3, 2, 2}
	for slot, want := range wantLocalDepths {
		got, ok := table.LocalDepthAt(slot)
		if !ok {
			t.Fatalf("directory slot %d missing", slot)
		}
		if got != want {
			t.Errorf("LocalDepthAt(%d) = %d, want %d", slot, got, want)
		}
	}

	cases := []struct {
		key     int
		want    string
		present bool
	}{
		{9, "i", true},
		{8, "h", true},
		{2, "b", true},
		{10, "", false},
	}
	for _, c := range cases {
		got, ok := table.Find(c.key)
		if ok != c.present {
			t.Errorf("Find(%d) present = %v, want %v", c.key, ok, c.present)
			continue
		}
		if ok && got != c.want {
			t.Errorf("Find(%d) = %q, want %q", c.key, got, c.want)
		}
	}
}

func TestExtendibleHashTableOverwriteAndRemove(t *testing.T) {
	table := NewExtendibleHashTable[int, string](2, identityHash)

	table.Insert(1, "a")
	table.Insert(1, "a-overwritten")
	got, ok := table.Find(1)
	if !ok || got != "a-overwritten" {
		t.Fatalf("Find(1) = %q, %v, want %q, true", got, ok, "a-overwritten")
	}

	if !table.Remove(1) {
		t.Fatalf("Remove(1) = false, want true")
	}
	if _, ok := table.Find(1); ok {
		t.Fatalf("Find(1) found after Remove")
	}
	if table.Remove(1) {
		t.Fatalf("Remove(1) = true on already-removed key")
	}
}

func TestExtendibleHashTableGrowsDirectory(t *testing.T) {
	table := NewExtendibleHashTable[int, int](1, identityHash)

	for i := 0; i < 16; i++ {
		table.Insert(i, i*i)
	}
	if got := table.DirectorySize(); got < 16 {
		t.Errorf("DirectorySize() = %d, want at least 16 for bucket capacity 1", got)
	}
	for i := 0; i < 16; i++ {
		got, ok := table.Find(i)
		if !ok || got != i*i {
			t.Errorf("Find(%d) = %d, %v, want %d, true", i, got, ok, i*i)
		}
	}
}
