package storage

import (
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// checksumSize is the length, in bytes, of the per-page integrity checksum
// stored alongside every physical page.
const checksumSize = 16

// pageChecksum returns a 16-byte blake2b digest of data, truncated from the
// 32-byte blake2b-256 output. A full 32-byte MAC would be overkill for
// corruption detection on a 4KB page and would shrink the space left for
// the page body in the worst (incompressible) case.
func pageChecksum(data []byte) [checksumSize]byte {
	full := blake2b.Sum256(data)
	var out [checksumSize]byte
	copy(out[:], full[:checksumSize])
	return out
}

// verifyPageChecksum recomputes the checksum over data and compares it to
// want, returning an error describing the mismatch if corruption is found.
func verifyPageChecksum(pageID PageID, data []byte, want [checksumSize]byte) error {
	got := pageChecksum(data)
	if got != want {
		return fmt.Errorf("%w: page %d checksum mismatch (disk corruption or torn write)", ErrPageCorrupt, pageID)
	}
	return nil
}
