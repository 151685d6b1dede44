package storage

import (
	"fmt"
	"sync"

	"github.com/mnohosten/laura-core/pkg/events"
)

func pageIDHash(id PageID) uint64 {
	return uint64(uint32(id))
}

// BufferPoolManager is the fixed-capacity, pin-counted page cache of
// the storage engine. It fetches pages through a DiskManager, caches them in a
// fixed array of frames, and evicts a replacement victim — first from a
// free list, then from an LRUReplacer — only when every frame is occupied.
//
// The page table mapping PageID to FrameID is an ExtendibleHashTable,
// exercising the same generic hash table structure as its own
// independent component.
type BufferPoolManager struct {
	mu sync.Mutex

	disk DiskManager
	log  *LogManager

	pages     []*Page
	pageTable *ExtendibleHashTable[PageID, FrameID]
	replacer  *LRUReplacer
	freeList  []FrameID
	events    *events.Bus
}

// NewBufferPoolManager creates a pool of poolSize frames. log may be nil, in
// which case dirty pages are flushed straight to disk with no write-ahead
// log ordering enforced. bus may be nil; when set, every eviction publishes
// a "buffer_pool.evict" event for the admin server's /watch subscribers.
func NewBufferPoolManager(poolSize int, disk DiskManager, log *LogManager, bus *events.Bus) *BufferPoolManager {
	pages := make([]*Page, poolSize)
	freeList := make([]FrameID, poolSize)
	for i := 0; i < poolSize; i++ {
		freeList[i] = FrameID(poolSize - 1 - i)
	}
	return &BufferPoolManager{
		disk:      disk,
		log:       log,
		pages:     pages,
		pageTable: NewExtendibleHashTable[PageID, FrameID](4, pageIDHash),
		replacer:  NewLRUReplacer(),
		freeList:  freeList,
		events:    bus,
	}
}

// FetchPage returns the page for id, pinning it, loading it from disk (via
// an evicted frame) if it is not already resident.
func (bp *BufferPoolManager) FetchPage(id PageID) (*Page, error) {
	if id == InvalidPageID {
		return nil, ErrInvalidPageID
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	if frame, ok := bp.pageTable.Find(id); ok {
		page := bp.pages[frame]
		page.Pin()
		bp.replacer.Erase(frame)
		return page, nil
	}

	frame, ok := bp.findVictimLocked()
	if !ok {
		return nil, ErrPoolExhausted
	}
	if err := bp.evictFrameLocked(frame); err != nil {
		return nil, err
	}

	page, err := bp.disk.ReadPage(id)
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", id, err)
	}
	page.Pin()
	bp.pages[frame] = page
	bp.pageTable.Insert(id, frame)
	return page, nil
}

// NewPage allocates a fresh page on disk, installs it in an evicted frame,
// and returns it pinned.
func (bp *BufferPoolManager) NewPage() (*Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frame, ok := bp.findVictimLocked()
	if !ok {
		return nil, ErrPoolExhausted
	}
	if err := bp.evictFrameLocked(frame); err != nil {
		return nil, err
	}

	id, err := bp.disk.AllocatePage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}
	page := NewPage(id)
	page.Pin()
	bp.pages[frame] = page
	bp.pageTable.Insert(id, frame)
	return page, nil
}

// UnpinPage releases one reference to page id, marking it dirty if isDirty
// is set. Once the pin count reaches zero the frame becomes eviction
// eligible.
func (bp *BufferPoolManager) UnpinPage(id PageID, isDirty bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frame, ok := bp.pageTable.Find(id)
	if !ok {
		return ErrPageNotFound
	}
	page := bp.pages[frame]
	if isDirty {
		page.MarkDirty()
	}
	if !page.IsPinned() {
		return fmt.Errorf("unpin page %d: pin count already zero", id)
	}
	page.Unpin()
	if !page.IsPinned() {
		bp.replacer.Insert(frame)
	}
	return nil
}

// FlushPage forces page id to disk regardless of its dirty flag's staleness,
// observing write-ahead logging if a LogManager is attached. It does not
// clear the dirty flag: the caller decides whether further mutation
// occurred between the write and this call.
func (bp *BufferPoolManager) FlushPage(id PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frame, ok := bp.pageTable.Find(id)
	if !ok {
		return ErrPageNotFound
	}
	return bp.flushPageLocked(bp.pages[frame])
}

// FlushAllPages flushes every dirty resident page and clears each one's
// dirty flag once its write has landed.
func (bp *BufferPoolManager) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for _, page := range bp.pages {
		if page != nil && page.IsDirty {
			if err := bp.flushPageLocked(page); err != nil {
				return err
			}
			page.IsDirty = false
		}
	}
	return nil
}

// DeletePage evicts id from the pool (refusing if it is pinned) and asks
// the disk manager to deallocate it.
func (bp *BufferPoolManager) DeletePage(id PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if frame, ok := bp.pageTable.Find(id); ok {
		page := bp.pages[frame]
		if page.IsPinned() {
			return ErrPagePinned
		}
		bp.pageTable.Remove(id)
		bp.replacer.Erase(frame)
		bp.pages[frame] = nil
		bp.freeList = append(bp.freeList, frame)
	}
	return bp.disk.DeallocatePage(id)
}

// Stats reports pool occupancy counters for the admin server.
func (bp *BufferPoolManager) Stats() map[string]interface{} {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	pinned := 0
	for _, page := range bp.pages {
		if page != nil && page.IsPinned() {
			pinned++
		}
	}
	return map[string]interface{}{
		"pool_size":     len(bp.pages),
		"free_frames":   len(bp.freeList),
		"pinned_pages":  pinned,
		"replacer_size": bp.replacer.Size(),
	}
}

// findVictimLocked picks a frame to (re)use: the free list first, then the
// LRU replacer. Must be called with bp.mu held.
func (bp *BufferPoolManager) findVictimLocked() (FrameID, bool) {
	if n := len(bp.freeList); n > 0 {
		frame := bp.freeList[n-1]
		bp.freeList = bp.freeList[:n-1]
		return frame, true
	}
	return bp.replacer.Victim()
}

// evictFrameLocked clears frame of whatever page currently occupies it,
// flushing it first if dirty. Must be called with bp.mu held.
func (bp *BufferPoolManager) evictFrameLocked(frame FrameID) error {
	old := bp.pages[frame]
	if old == nil {
		return nil
	}
	if old.IsPinned() {
		return fmt.Errorf("internal error: victim frame %d still pinned", frame)
	}
	if old.IsDirty {
		if err := bp.flushPageLocked(old); err != nil {
			return err
		}
		old.IsDirty = false
	}
	bp.pageTable.Remove(old.ID)
	bp.pages[frame] = nil
	bp.events.Publish("buffer_pool.evict", map[string]interface{}{
		"page_id": int32(old.ID),
		"frame":   int(frame),
	})
	return nil
}

// flushPageLocked enforces write-ahead logging (flush the log manager's
// buffer before any dirty page reaches disk) and writes page out. It leaves
// page.IsDirty untouched; callers clear it themselves when that is the
// right thing to do for their path. Must be called with bp.mu held.
func (bp *BufferPoolManager) flushPageLocked(page *Page) error {
	if bp.log != nil {
		if err := bp.log.Flush(); err != nil {
			return fmt.Errorf("flush log before page %d: %w", page.ID, err)
		}
	}
	if err := bp.disk.WritePage(page); err != nil {
		return fmt.Errorf("flush page %d: %w", page.ID, err)
	}
	return nil
}
