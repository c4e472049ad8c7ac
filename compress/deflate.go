package compress

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

var deflateWriterPool = sync.Pool{
	New: func() any {
		w, err := flate.NewWriter(nil, flate.BestCompression)
		if err != nil {
			panic(fmt.Sprintf("failed to create deflate writer for pool: %v", err))
		}

		return w
	},
}

// DeflateCompressor produces raw DEFLATE streams (RFC 1951) without a zlib or gzip wrapper.
type DeflateCompressor struct{}

var _ Codec = (*DeflateCompressor)(nil)

// NewDeflateCompressor creates a new DEFLATE compressor.
func NewDeflateCompressor() DeflateCompressor {
	return DeflateCompressor{}
}

// Compress compresses the input data at the best compression level.
func (c DeflateCompressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	w, _ := deflateWriterPool.Get().(*flate.Writer)
	defer deflateWriterPool.Put(w)
	w.Reset(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decompress decompresses a raw DEFLATE stream of at most MaxDecompressedSize bytes.
func (c DeflateCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, MaxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("deflate decompression failed: %w", err)
	}
	if len(out) > MaxDecompressedSize {
		return nil, fmt.Errorf("deflate: %w (%d bytes)", ErrDecompressedTooLarge, MaxDecompressedSize)
	}

	return out, nil
}
