package storage

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// CompressionMode selects whether page bodies are compressed before being
// written to disk. Mirrors the Algorithm/Config split used elsewhere in this
// codebase's ambient stack, narrowed to the one algorithm the page store
// needs.
type CompressionMode uint8

const (
	// CompressionNone writes page bodies uncompressed (default).
	CompressionNone CompressionMode = iota
	// CompressionZstd compresses a page body with zstd before writing it,
	// falling back to uncompressed storage whenever compression does not
	// shrink the page (the physical slot has no room to grow).
	CompressionZstd
)

var (
	zstdEncoder  *zstd.Encoder
	zstdDecoder  *zstd.Decoder
	zstdInitOnce sync.Once
	zstdInitErr  error
)

func initZstd() {
	zstdEncoder, zstdInitErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if zstdInitErr != nil {
		return
	}
	zstdDecoder, zstdInitErr = zstd.NewReader(nil)
}

// compressPage compresses data with zstd. The caller is responsible for
// falling back to the uncompressed form when the result does not fit.
func compressPage(data []byte) ([]byte, error) {
	zstdInitOnce.Do(initZstd)
	if zstdInitErr != nil {
		return nil, fmt.Errorf("zstd init: %w", zstdInitErr)
	}
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data))), nil
}

// decompressPage reverses compressPage. wantLen is the expected decompressed
// length (the page's logical PageSize) and is used to presize the buffer.
func decompressPage(compressed []byte, wantLen int) ([]byte, error) {
	zstdInitOnce.Do(initZstd)
	if zstdInitErr != nil {
		return nil, fmt.Errorf("zstd init: %w", zstdInitErr)
	}
	out, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, wantLen))
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	if len(out) != wantLen {
		return nil, fmt.Errorf("zstd decode: expected %d bytes, got %d", wantLen, len(out))
	}
	return out, nil
}
