package bitstream

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/arloliu/courier/errs"
)

// IntRange maps the integer range [lo, hi] onto Size() bits by storing v-lo.
type IntRange struct {
	lo   int64
	hi   int64
	size int
}

// NewIntRange creates a mapping for [lo, hi].
// Panics if hi < lo.
func NewIntRange(lo, hi int64) IntRange {
	if hi < lo {
		panic(fmt.Sprintf("bitstream: invalid range [%d, %d]", lo, hi))
	}

	return IntRange{lo: lo, hi: hi, size: bits.Len64(uint64(hi) - uint64(lo))}
}

// IntRangeForSize creates the mapping whose values start at lo and fill exactly size bits.
// The high bound is clamped to math.MaxInt64.
func IntRangeForSize(lo int64, size int) IntRange {
	if size < 0 || size > 64 {
		panic(fmt.Sprintf("bitstream: invalid range size %d", size))
	}

	var span uint64 = math.MaxUint64
	if size < 64 {
		span = (uint64(1) << size) - 1
	}

	hi := int64(math.MaxInt64)
	if headroom := uint64(math.MaxInt64) - uint64(lo); span <= headroom {
		hi = int64(uint64(lo) + span)
	}

	return IntRange{lo: lo, hi: hi, size: size}
}

// Size returns the number of bits used per value.
func (m IntRange) Size() int {
	return m.size
}

// Low returns the lowest representable value.
func (m IntRange) Low() int64 {
	return m.lo
}

// High returns the highest value accepted by the range.
func (m IntRange) High() int64 {
	return m.hi
}

// Contains reports whether v lies in [lo, hi].
func (m IntRange) Contains(v int64) bool {
	return v >= m.lo && v <= m.hi
}

// Write writes v using Size() bits.
func (m IntRange) Write(w *Writer, v int64) error {
	if !m.Contains(v) {
		return fmt.Errorf("%w: %d not in [%d, %d]", errs.ErrValueOutOfRange, v, m.lo, m.hi)
	}

	return w.WriteBits(uint64(v)-uint64(m.lo), m.size)
}

// Read reads a value written by Write.
// A stored offset beyond hi is a format error.
func (m IntRange) Read(r *Reader) (int64, error) {
	raw, err := r.ReadBits(m.size)
	if err != nil {
		return 0, err
	}

	v := int64(uint64(m.lo) + raw)
	if !m.Contains(v) {
		return 0, fmt.Errorf("%w: decoded %d not in [%d, %d]", errs.ErrFormat, v, m.lo, m.hi)
	}

	return v, nil
}

// ReadInt is Read returning an int.
func (m IntRange) ReadInt(r *Reader) (int, error) {
	v, err := m.Read(r)
	return int(v), err
}

func (m IntRange) String() string {
	return fmt.Sprintf("[%d, %d] (%d bits)", m.lo, m.hi, m.size)
}
