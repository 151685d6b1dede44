package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

// physical on-disk framing of one page slot:
//   [16-byte checksum][1-byte flags][4-byte payload length][payload ... padded to PageSize]
// flags bit 0 set means the payload is zstd-compressed; the decompressed
// form is always exactly PageSize bytes. Compression that does not shrink
// the payload below PageSize is rejected by the writer, so the slot never
// needs to grow past physicalPageSize.
const (
	pageFlagsSize    = 1
	payloadLenSize   = 4
	physicalOverhead = checksumSize + pageFlagsSize + payloadLenSize
	physicalPageSize = PageSize + physicalOverhead

	flagCompressed = 1 << 0
)

// DiskManager provides fixed-size page I/O plus monotonic page allocation,
// deallocation, and an append-only log file.
type DiskManager interface {
	ReadPage(id PageID) (*Page, error)
	WritePage(page *Page) error
	AllocatePage() (PageID, error)
	DeallocatePage(id PageID) error
	AppendLog(data []byte) error
	Sync() error
	Close() error
	Stats() map[string]interface{}
}

// fileDiskManager is the file-backed DiskManager implementation.
type fileDiskManager struct {
	mu          sync.Mutex
	dataFile    *os.File
	logFile     *os.File
	nextPageID  PageID
	freeList    *freePageList
	compression CompressionMode

	totalReads  int64
	totalWrites int64
}

// NewFileDiskManager opens (creating if necessary) a data file at dataPath
// and a log file at logPath.
func NewFileDiskManager(dataPath, logPath string, compression CompressionMode) (*fileDiskManager, error) {
	dataFile, err := os.OpenFile(dataPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		dataFile.Close()
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := dataFile.Stat()
	if err != nil {
		dataFile.Close()
		logFile.Close()
		return nil, fmt.Errorf("failed to stat data file: %w", err)
	}

	dm := &fileDiskManager{
		dataFile:    dataFile,
		logFile:     logFile,
		nextPageID:  PageID(info.Size() / physicalPageSize),
		freeList:    newFreePageList(),
		compression: compression,
	}

	return dm, nil
}

// ReadPage fills a Page with PageSize bytes of data for id. Reading a page
// past the end of the file (never yet written) returns a freshly zeroed
// page, matching the source's "new page" semantics on first fetch.
func (dm *fileDiskManager) ReadPage(id PageID) (*Page, error) {
	if id == InvalidPageID {
		return nil, ErrInvalidPageID
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	offset := int64(id) * physicalPageSize
	buf := make([]byte, physicalPageSize)
	n, err := dm.dataFile.ReadAt(buf, offset)
	if err != nil && n < physicalPageSize {
		page := NewPage(id)
		return page, nil
	}

	var checksum [checksumSize]byte
	copy(checksum[:], buf[:checksumSize])
	flags := buf[checksumSize]
	payloadLen := binary.LittleEndian.Uint32(buf[checksumSize+pageFlagsSize : physicalOverhead])
	payload := buf[physicalOverhead : physicalOverhead+int(payloadLen)]

	if err := verifyPageChecksum(id, payload, checksum); err != nil {
		return nil, err
	}

	data := payload
	if flags&flagCompressed != 0 {
		data, err = decompressPage(payload, PageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress page %d: %w", id, err)
		}
	}

	page := NewPage(id)
	copy(page.Data, data)
	dm.totalReads++
	return page, nil
}

// WritePage durably writes page.Data to its slot.
func (dm *fileDiskManager) WritePage(page *Page) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.writePageLocked(page)
}

func (dm *fileDiskManager) writePageLocked(page *Page) error {
	payload := page.Data
	flags := byte(0)

	if dm.compression == CompressionZstd {
		compressed, err := compressPage(page.Data)
		if err == nil && len(compressed) < len(page.Data) {
			payload = compressed
			flags |= flagCompressed
		}
	}

	if len(payload)+physicalOverhead > physicalPageSize {
		return fmt.Errorf("page %d: payload %d bytes does not fit in physical slot", page.ID, len(payload))
	}

	checksum := pageChecksum(payload)
	buf := make([]byte, physicalPageSize)
	copy(buf[:checksumSize], checksum[:])
	buf[checksumSize] = flags
	binary.LittleEndian.PutUint32(buf[checksumSize+pageFlagsSize:physicalOverhead], uint32(len(payload)))
	copy(buf[physicalOverhead:], payload)

	offset := int64(page.ID) * physicalPageSize
	if _, err := dm.dataFile.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("failed to write page %d: %w", page.ID, err)
	}
	dm.totalWrites++
	return nil
}

// AllocatePage returns a fresh monotonically increasing PageID, reusing a
// deallocated page id when the free list has one.
func (dm *fileDiskManager) AllocatePage() (PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.freeList.count > 0 {
		id, ok := dm.freeList.pop()
		if ok {
			return id, nil
		}
	}

	id := dm.nextPageID
	dm.nextPageID++
	return id, nil
}

// DeallocatePage marks id free for reuse. It adds the id to an in-memory
// free list that AllocatePage drains first.
func (dm *fileDiskManager) DeallocatePage(id PageID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if id >= dm.nextPageID {
		return fmt.Errorf("invalid page id %d: next id is %d", id, dm.nextPageID)
	}
	dm.freeList.push(id)
	return nil
}

// AppendLog appends bytes to the log file.
func (dm *fileDiskManager) AppendLog(data []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if _, err := dm.logFile.Write(data); err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

// Sync flushes both the data file and the log file to stable storage.
func (dm *fileDiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if err := dm.dataFile.Sync(); err != nil {
		return err
	}
	return dm.logFile.Sync()
}

// Close syncs and closes both files.
func (dm *fileDiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if err := dm.dataFile.Sync(); err != nil {
		return err
	}
	if err := dm.dataFile.Close(); err != nil {
		return err
	}
	if err := dm.logFile.Sync(); err != nil {
		return err
	}
	return dm.logFile.Close()
}

// Stats reports disk manager counters for the admin server.
func (dm *fileDiskManager) Stats() map[string]interface{} {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	return map[string]interface{}{
		"next_page_id": dm.nextPageID,
		"free_pages":   dm.freeList.count,
		"total_reads":  dm.totalReads,
		"total_writes": dm.totalWrites,
	}
}

// freePageList is a simple in-memory stack of deallocated page ids. Page
// deallocation only needs to be a best-effort hint for reuse within a
// process lifetime, so an in-memory list is sufficient; it is not persisted
// across restarts.
type freePageList struct {
	ids   []PageID
	count int
}

func newFreePageList() *freePageList {
	return &freePageList{}
}

func (f *freePageList) push(id PageID) {
	f.ids = append(f.ids, id)
	f.count++
}

func (f *freePageList) pop() (PageID, bool) {
	if f.count == 0 {
		return 0, false
	}
	id := f.ids[f.count-1]
	f.ids = f.ids[:f.count-1]
	f.count--
	return id, true
}
