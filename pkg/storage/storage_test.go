package storage

import (
	"path/filepath"
	"testing"
)

func TestEngineOpenAllocateFetchClose(t *testing.T) {
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "data"))
	cfg.BufferPoolSize = 4

	engine, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	page, err := engine.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	copy(page.Data, []byte("persisted"))
	if err := engine.UnpinPage(page.ID, true); err != nil {
		t.Fatalf("UnpinPage: %v", err)
	}

	if err := engine.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	stats := engine.Stats()
	if _, ok := stats["disk"]; !ok {
		t.Fatalf("Stats() missing disk section: %+v", stats)
	}

	if err := engine.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening over the same data dir must recover the page.
	reopened, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	fetched, err := reopened.FetchPage(page.ID)
	if err != nil {
		t.Fatalf("FetchPage after reopen: %v", err)
	}
	if string(fetched.Data[:9]) != "persisted" {
		t.Fatalf("recovered data = %q, want %q", fetched.Data[:9], "persisted")
	}
	reopened.UnpinPage(page.ID, false)
}

func TestEngineRejectsNonPositivePoolSize(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.BufferPoolSize = 0
	if _, err := Open(cfg); err == nil {
		t.Fatalf("Open with BufferPoolSize=0 should fail")
	}
}
