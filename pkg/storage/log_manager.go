package storage

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// LogRecordType identifies the kind of change a LogRecord describes.
type LogRecordType uint8

const (
	LogRecordInvalid LogRecordType = iota
	LogRecordInsert
	LogRecordUpdate
	LogRecordDelete
	LogRecordNewPage
	LogRecordCommit
	LogRecordAbort
	LogRecordBeginCheckpoint
	LogRecordEndCheckpoint
)

// logRecordHeaderSize is LSN(8) + PrevLSN(8) + TxnID(8) + Type(1) + PageID(4)
// + DataLen(4).
const logRecordHeaderSize = 8 + 8 + 8 + 1 + 4 + 4

// LogRecord is the append-only log unit behind the append_log hook and the
// WAL-before-write invariant: a frame may not be flushed to disk until its
// associated LSN is <= the log manager's
// persistent LSN.
type LogRecord struct {
	LSN     int64
	PrevLSN int64
	TxnID   int64
	Type    LogRecordType
	PageID  PageID
	Data    []byte
}

func serializeLogRecord(rec *LogRecord) []byte {
	buf := make([]byte, logRecordHeaderSize+len(rec.Data))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(rec.LSN))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(rec.PrevLSN))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(rec.TxnID))
	buf[24] = byte(rec.Type)
	binary.LittleEndian.PutUint32(buf[25:29], uint32(rec.PageID))
	binary.LittleEndian.PutUint32(buf[29:33], uint32(len(rec.Data)))
	copy(buf[logRecordHeaderSize:], rec.Data)
	return buf
}

func deserializeLogRecord(buf []byte) (*LogRecord, int, error) {
	if len(buf) < logRecordHeaderSize {
		return nil, 0, fmt.Errorf("log record: truncated header (%d bytes)", len(buf))
	}
	rec := &LogRecord{
		LSN:     int64(binary.LittleEndian.Uint64(buf[0:8])),
		PrevLSN: int64(binary.LittleEndian.Uint64(buf[8:16])),
		TxnID:   int64(binary.LittleEndian.Uint64(buf[16:24])),
		Type:    LogRecordType(buf[24]),
		PageID:  PageID(binary.LittleEndian.Uint32(buf[25:29])),
	}
	dataLen := int(binary.LittleEndian.Uint32(buf[29:33]))
	end := logRecordHeaderSize + dataLen
	if len(buf) < end {
		return nil, 0, fmt.Errorf("log record: truncated data, want %d bytes have %d", dataLen, len(buf)-logRecordHeaderSize)
	}
	rec.Data = append([]byte(nil), buf[logRecordHeaderSize:end]...)
	return rec, end, nil
}

// DeserializeLogRecords parses a contiguous run of serialized records, as
// produced by one or more LogManager.Flush calls concatenated on disk.
func DeserializeLogRecords(buf []byte) ([]*LogRecord, error) {
	var records []*LogRecord
	for len(buf) > 0 {
		rec, n, err := deserializeLogRecord(buf)
		if err != nil {
			return records, err
		}
		records = append(records, rec)
		buf = buf[n:]
	}
	return records, nil
}

const defaultLogBufferSize = 4 * PageSize

// LogManager batches LogRecords into a double buffer and swaps it out to the
// DiskManager's append-only log, either when the active buffer fills or on
// a timer. This is the structure the original implementation's
// log_manager.cpp uses, adapted here onto the DiskManager interface instead
// of a raw log file handle.
type LogManager struct {
	disk DiskManager

	mu          sync.Mutex
	active      []byte
	flushing    []byte
	bufferBytes int

	nextLSN       int64
	persistentLSN int64

	flushInterval time.Duration
	trigger       chan struct{}
	stop          chan struct{}
	done          chan struct{}
	running       bool
}

// NewLogManager creates a LogManager writing through disk. flushInterval is
// the period of the background flush goroutine started by RunFlushThread;
// it is ignored if RunFlushThread is never called.
func NewLogManager(disk DiskManager, flushInterval time.Duration) *LogManager {
	return &LogManager{
		disk:          disk,
		active:        make([]byte, 0, defaultLogBufferSize),
		flushing:      make([]byte, 0, defaultLogBufferSize),
		bufferBytes:   defaultLogBufferSize,
		persistentLSN: -1,
		flushInterval: flushInterval,
		trigger:       make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// AppendLogRecord assigns rec the next LSN, serializes it into the active
// buffer (flushing first if it would not fit), and returns the assigned LSN.
// The record is only durable once Flush (or the background thread) has run.
func (lm *LogManager) AppendLogRecord(rec *LogRecord) (int64, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lsn := lm.nextLSN
	rec.LSN = lsn

	encoded := serializeLogRecord(rec)
	if len(lm.active)+len(encoded) > lm.bufferBytes {
		if err := lm.flushLocked(); err != nil {
			return lsn, err
		}
	}
	lm.nextLSN++
	lm.active = append(lm.active, encoded...)
	return lsn, nil
}

// Flush swaps the active buffer out and appends it to the disk manager's log
// file, advancing the persistent LSN watermark.
func (lm *LogManager) Flush() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.flushLocked()
}

func (lm *LogManager) flushLocked() error {
	if len(lm.active) == 0 {
		return nil
	}

	lm.active, lm.flushing = lm.flushing[:0], lm.active
	if err := lm.disk.AppendLog(lm.flushing); err != nil {
		return fmt.Errorf("log manager flush: %w", err)
	}
	atomic.StoreInt64(&lm.persistentLSN, lm.nextLSN-1)
	return nil
}

// PersistentLSN returns the highest LSN known to be durable. Callers
// enforcing write-ahead logging must not let the buffer pool flush a page
// whose LSN exceeds this value.
func (lm *LogManager) PersistentLSN() int64 {
	return atomic.LoadInt64(&lm.persistentLSN)
}

// RunFlushThread starts a background goroutine that flushes on a timer or
// whenever TriggerFlush is called, until StopFlushThread is invoked.
func (lm *LogManager) RunFlushThread() {
	lm.mu.Lock()
	if lm.running {
		lm.mu.Unlock()
		return
	}
	lm.running = true
	lm.mu.Unlock()

	go func() {
		defer close(lm.done)
		ticker := time.NewTicker(lm.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				lm.Flush()
			case <-lm.trigger:
				lm.Flush()
			case <-lm.stop:
				lm.Flush()
				return
			}
		}
	}()
}

// StopFlushThread signals the background goroutine to flush once more and
// exit, blocking until it has.
func (lm *LogManager) StopFlushThread() {
	lm.mu.Lock()
	if !lm.running {
		lm.mu.Unlock()
		return
	}
	lm.mu.Unlock()

	close(lm.stop)
	<-lm.done
}

// TriggerFlush asks the background goroutine to flush soon, without
// blocking the caller.
func (lm *LogManager) TriggerFlush() {
	select {
	case lm.trigger <- struct{}{}:
	default:
	}
}
