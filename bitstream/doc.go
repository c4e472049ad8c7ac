// Package bitstream provides bit-granular serialisation primitives.
//
// Everything courier puts on the wire is built on three types:
//
//   - BitArray: a fixed-length, index-addressable sequence of bits.
//   - Writer: an append-only bit sink with an optional capacity in bits.
//   - Reader: the exact dual of Writer, reading from a BitArray.
//
// Bits are packed most significant bit first: bit 0 of a BitArray is the high
// bit of its first byte. Converting a BitArray to bytes zero-pads the final
// byte.
//
// # Capacity
//
// A Writer created with a non-zero capacity refuses any write that would grow
// it beyond that many bits. The refused write is not applied partially and the
// returned error wraps errs.ErrCapacityExceeded. The payload codec relies on
// this to detect that a batch of records no longer fits a transmission:
//
//	w := bitstream.NewWriter(16 * 130 * 8)
//	defer w.Finish()
//	if err := w.WriteBits(v, 12); errors.Is(err, errs.ErrCapacityExceeded) {
//	    // start a new transmission
//	}
//
// # Integer ranges
//
// IntRange maps a logical integer range onto the minimal number of bits.
// The range [lo, hi] is stored as the offset v-lo using bits.Len64(hi-lo)
// bits, so negative and 64-bit ranges are handled uniformly:
//
//	version := bitstream.IntRangeForSize(2, 2) // values 2..5 in 2 bits
//	count := bitstream.NewIntRange(1, 1000)     // 10 bits
//
// Reading past the end of a Reader returns an error wrapping errs.ErrFormat.
package bitstream
