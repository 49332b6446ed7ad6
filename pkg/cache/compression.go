package cache

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// CompressionThreshold is the payload size above which cached values are
// gzip-compressed before storage.
const CompressionThreshold = 512 * 1024

// gzip magic bytes, used to recognize compressed payloads on read.
var gzipMagic = []byte{0x1f, 0x8b}

// MaybeCompress gzips value when it exceeds CompressionThreshold, otherwise
// returns it unchanged.
func MaybeCompress(value []byte) ([]byte, error) {
	if len(value) <= CompressionThreshold {
		return value, nil
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(value); err != nil {
		return nil, fmt.Errorf("cache: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("cache: compress: %w", err)
	}
	return buf.Bytes(), nil
}

// MaybeDecompress reverses MaybeCompress, detecting gzip by magic bytes.
func MaybeDecompress(value []byte) ([]byte, error) {
	if !bytes.HasPrefix(value, gzipMagic) {
		return value, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(value))
	if err != nil {
		return nil, fmt.Errorf("cache: decompress: %w", err)
	}
	defer func() { _ = r.Close() }()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("cache: decompress: %w", err)
	}
	return out, nil
}
