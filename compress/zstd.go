package compress

// ZstdCompressor provides Zstandard compression.
//
// The default build uses the pure Go klauspost/compress implementation; building
// with the gozstd tag switches to the cgo binding of the reference library.
// Both produce standard zstd frames and decode each other's output.
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a new Zstd compressor with default settings.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
