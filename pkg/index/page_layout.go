// Package index implements a generic, disk-paged, concurrent B+-Tree
// index, backed by the storage package's buffer pool and disk manager
// rather than by in-process memory alone.
package index

import (
	"encoding/binary"

	"github.com/mnohosten/laura-core/pkg/storage"
)

// nodeHeaderSize is the fixed prefix every tree page carries: NodeType(1) +
// reserved(1) + KeyCount(2) + ParentPageID(4) + NextPageID(4) + MaxSize(2) +
// reserved(2).
const nodeHeaderSize = 16

type nodeKind byte

const (
	nodeInternal nodeKind = 0
	nodeLeaf     nodeKind = 1
)

// nodeHeader is the decoded form of a tree page's fixed header.
type nodeHeader struct {
	Kind         nodeKind
	KeyCount     uint16
	ParentPageID storage.PageID
	// NextPageID chains leaf pages left-to-right for range iteration
	// for range iteration. Unused (InvalidPageID) on internal pages.
	NextPageID storage.PageID
	MaxSize    uint16
}

func encodeHeader(h nodeHeader) []byte {
	buf := make([]byte, nodeHeaderSize)
	buf[0] = byte(h.Kind)
	binary.LittleEndian.PutUint16(buf[2:4], h.KeyCount)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.ParentPageID))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.NextPageID))
	binary.LittleEndian.PutUint16(buf[12:14], h.MaxSize)
	return buf
}

func decodeHeader(buf []byte) nodeHeader {
	return nodeHeader{
		Kind:         nodeKind(buf[0]),
		KeyCount:     binary.LittleEndian.Uint16(buf[2:4]),
		ParentPageID: storage.PageID(int32(binary.LittleEndian.Uint32(buf[4:8]))),
		NextPageID:   storage.PageID(int32(binary.LittleEndian.Uint32(buf[8:12]))),
		MaxSize:      binary.LittleEndian.Uint16(buf[12:14]),
	}
}

// Codec describes how a tree marshals one fixed-width field (a key or a
// value) to and from its on-page byte representation. Size must be constant
// for every value of T the tree ever stores, since the page layout packs
// entries back to back with no length prefix.
type Codec[T any] struct {
	Size   int
	Encode func(T) []byte
	Decode func([]byte) T
}

// childPointerSize is the encoded width of a child PageID in an internal
// node.
const childPointerSize = 4

func encodeChildPointer(buf []byte, id storage.PageID) {
	binary.LittleEndian.PutUint32(buf, uint32(id))
}

func decodeChildPointer(buf []byte) storage.PageID {
	return storage.PageID(int32(binary.LittleEndian.Uint32(buf)))
}

// maxEntriesFor computes how many (key, value)-sized entries fit in a leaf
// page after the header, and how many separator keys (with childPointerSize
// children) fit in an internal page after the header and its first child
// pointer.
func maxEntriesFor(keySize, valueSize int) (leafCapacity, internalCapacity int) {
	avail := storage.PageSize - nodeHeaderSize
	leafCapacity = avail / (keySize + valueSize)
	internalCapacity = (avail - childPointerSize) / (keySize + childPointerSize)
	return leafCapacity, internalCapacity
}
