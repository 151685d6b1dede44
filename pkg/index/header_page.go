package index

import (
	"encoding/binary"

	"github.com/mnohosten/laura-core/pkg/storage"
)

// headerPageData is the layout of the index's page-0 directory page: just
// the current root page id. Reopening an existing index reads this page to
// find where the tree starts.
type headerPageData struct {
	RootPageID storage.PageID
}

func encodeHeaderPage(h headerPageData) []byte {
	buf := make([]byte, storage.PageSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.RootPageID))
	return buf
}

func decodeHeaderPage(buf []byte) headerPageData {
	return headerPageData{
		RootPageID: storage.PageID(int32(binary.LittleEndian.Uint32(buf[0:4]))),
	}
}
