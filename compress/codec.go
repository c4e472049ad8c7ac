package compress

import (
	"errors"
	"fmt"

	"github.com/arloliu/courier/format"
)

// MaxDecompressedSize bounds the output of every Decompress. It is well above
// the largest payload any transport accepts.
const MaxDecompressedSize = 16 * 1024 * 1024

// ErrDecompressedTooLarge is returned when a stream inflates beyond MaxDecompressedSize.
var ErrDecompressedTooLarge = errors.New("decompressed size exceeds limit")

// Compressor compresses a complete payload body.
//
// The returned slice is owned by the caller; the input is not modified.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor reverses a Compressor.
//
// Implementations return an error when the input is corrupted or was produced
// by a different algorithm.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both compression and decompression capabilities.
type Codec interface {
	Compressor
	Decompressor
}

// CompressionStats describes the outcome of compressing one payload body.
type CompressionStats struct {
	// Algorithm identifies the compression algorithm used
	Algorithm format.CompressionType

	// OriginalSize is the size of input data before compression
	OriginalSize int64

	// CompressedSize is the size of data after compression
	CompressedSize int64
}

// CompressionRatio returns the compression ratio (compressed size / original size).
//
// Returns:
//   - float64: Compression ratio (0.0 if original size is zero)
func (s CompressionStats) CompressionRatio() float64 {
	if s.OriginalSize == 0 {
		return 0.0
	}

	return float64(s.CompressedSize) / float64(s.OriginalSize)
}

// SpaceSavings returns the space savings as a percentage.
// Negative values mean the algorithm expanded the input.
func (s CompressionStats) SpaceSavings() float64 {
	return (1.0 - s.CompressionRatio()) * 100.0
}

// CreateCodec is a factory function that creates a Codec based on the specified compression type.
//
// Parameters:
//   - compressionType: Type of compression (None, Deflate, Zstd, LZ4 or S2)
//   - target: Description of target usage (for error messages)
//
// Returns:
//   - Codec: Compressor instance for the specified type
//   - error: Invalid compression type error
func CreateCodec(compressionType format.CompressionType, target string) (Codec, error) {
	switch compressionType {
	case format.CompressionNone:
		return NewNoOpCompressor(), nil
	case format.CompressionDeflate:
		return NewDeflateCompressor(), nil
	case format.CompressionZstd:
		return NewZstdCompressor(), nil
	case format.CompressionLZ4:
		return NewLZ4Compressor(), nil
	case format.CompressionS2:
		return NewS2Compressor(), nil
	default:
		return nil, fmt.Errorf("invalid %s compression: %s", target, compressionType)
	}
}

var builtinCodecs = map[format.CompressionType]Codec{
	format.CompressionNone:    NewNoOpCompressor(),
	format.CompressionDeflate: NewDeflateCompressor(),
	format.CompressionZstd:    NewZstdCompressor(),
	format.CompressionLZ4:     NewLZ4Compressor(),
	format.CompressionS2:      NewS2Compressor(),
}

// GetCodec retrieves a built-in Codec for the specified compression type.
func GetCodec(compressionType format.CompressionType) (Codec, error) {
	if codec, ok := builtinCodecs[compressionType]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("unsupported compression type: %s", compressionType)
}

// Smallest compresses data with every candidate and returns the smallest result.
// Ties go to the earlier candidate, so listing CompressionNone first makes it win
// whenever no algorithm saves a byte.
//
// Parameters:
//   - data: Input data to compress
//   - candidates: Compression types to try, in preference order
//
// Returns:
//   - format.CompressionType: The winning compression type
//   - []byte: Output of the winning codec
//   - error: Error from an unknown type or a failing codec
func Smallest(data []byte, candidates ...format.CompressionType) (format.CompressionType, []byte, error) {
	if len(candidates) == 0 {
		return 0, nil, fmt.Errorf("no compression candidates")
	}

	var (
		best    format.CompressionType
		bestOut []byte
		found   bool
	)
	for _, ct := range candidates {
		codec, err := GetCodec(ct)
		if err != nil {
			return 0, nil, err
		}
		out, err := codec.Compress(data)
		if err != nil {
			return 0, nil, fmt.Errorf("%s compression failed: %w", ct, err)
		}
		if !found || len(out) < len(bestOut) {
			best, bestOut, found = ct, out, true
		}
	}

	return best, bestOut, nil
}
