// Package compress provides the compression codecs used by courier payloads.
//
// A records payload is compressed as a whole after its records have been
// serialised into bits. Every wire candidate is tried and the smallest output
// wins (see Smallest); the winner is announced by a 2-bit flag in the payload
// header, so the candidate set is fixed:
//
//	Flag | Algorithm | Implementation
//	-----|-----------|---------------------------------------------
//	0    | None      | NoOpCompressor
//	1    | Deflate   | raw DEFLATE, github.com/klauspost/compress/flate
//	2    | Zstd      | github.com/klauspost/compress/zstd (default build)
//	     |           | github.com/valyala/gozstd (-tags gozstd)
//	3    | LZ4       | LZ4 block format, github.com/pierrec/lz4/v4
//
// S2 is available through the same Codec interface but never appears on the
// wire; the bbolt transmission store uses it for part bodies.
//
// # Architecture
//
//	type Codec interface {
//	    Compress(data []byte) ([]byte, error)
//	    Decompress(data []byte) ([]byte, error)
//	}
//
// Codecs are stateless values; pooled encoders and decoders are shared
// internally, so every codec is safe for concurrent use.
//
// # Example
//
//	ct, out, err := compress.Smallest(body, format.WireCompressions...)
//	if err != nil {
//	    return err
//	}
//	codec, _ := compress.GetCodec(ct)
//	original, err := codec.Decompress(out)
package compress
