package bitstream

import (
	"bytes"
	"fmt"
	"strings"
)

// BitArray is a fixed-length sequence of bits packed MSB first.
//
// The zero value is an empty array. Unused bits of the final byte are always
// zero, so two arrays holding the same bits compare equal regardless of how
// they were built.
type BitArray struct {
	data []byte
	n    int
}

// NewBitArray returns a zeroed BitArray of n bits.
func NewBitArray(n int) BitArray {
	if n < 0 {
		panic("bitstream: negative length")
	}

	return BitArray{data: make([]byte, bytesFor(n)), n: n}
}

// FromBytes returns a BitArray holding all bits of b (len(b)*8 bits).
// The bytes are copied.
func FromBytes(b []byte) BitArray {
	data := make([]byte, len(b))
	copy(data, b)

	return BitArray{data: data, n: len(b) * 8}
}

// FromBytesLen returns a BitArray holding the first n bits of b.
// When b holds fewer than n bits the array is shortened to len(b)*8.
func FromBytesLen(b []byte, n int) BitArray {
	if n < 0 {
		panic("bitstream: negative length")
	}
	if n > len(b)*8 {
		n = len(b) * 8
	}

	data := make([]byte, bytesFor(n))
	copy(data, b)
	if r := n % 8; r != 0 {
		data[len(data)-1] &= byte(0xFF << (8 - r))
	}

	return BitArray{data: data, n: n}
}

// Len returns the number of bits in the array.
func (a BitArray) Len() int {
	return a.n
}

// Get returns the bit at index i.
// Panics if i is out of range.
func (a BitArray) Get(i int) bool {
	a.check(i)
	return a.data[i>>3]&(0x80>>(i&7)) != 0
}

// Set sets the bit at index i.
// Panics if i is out of range.
func (a BitArray) Set(i int, v bool) {
	a.check(i)
	if v {
		a.data[i>>3] |= 0x80 >> (i & 7)
	} else {
		a.data[i>>3] &^= 0x80 >> (i & 7)
	}
}

func (a BitArray) check(i int) {
	if i < 0 || i >= a.n {
		panic(fmt.Sprintf("bitstream: index %d out of bounds [0, %d)", i, a.n))
	}
}

// Sub returns a copy of the bits starting at offset, at most n of them.
// The result is shorter than n when the array ends first.
// Panics if offset is outside [0, Len()].
func (a BitArray) Sub(offset, n int) BitArray {
	if offset < 0 || offset > a.n {
		panic(fmt.Sprintf("bitstream: offset %d out of bounds [0, %d]", offset, a.n))
	}
	if n < 0 {
		n = 0
	}
	if offset+n > a.n {
		n = a.n - offset
	}

	if offset%8 == 0 {
		return FromBytesLen(a.data[offset/8:], n)
	}

	sub := NewBitArray(n)
	for i := range n {
		if a.Get(offset + i) {
			sub.Set(i, true)
		}
	}

	return sub
}

// Bytes returns the bits packed MSB first, zero-padded on the final byte.
// The returned slice is a copy.
func (a BitArray) Bytes() []byte {
	out := make([]byte, len(a.data))
	copy(out, a.data)

	return out
}

// Equal reports whether a and b hold the same bits.
func (a BitArray) Equal(b BitArray) bool {
	if a.n != b.n {
		return false
	}
	full := a.n / 8
	if !bytes.Equal(a.data[:full], b.data[:full]) {
		return false
	}
	if r := a.n % 8; r != 0 {
		mask := byte(0xFF << (8 - r))
		return a.data[full]&mask == b.data[full]&mask
	}

	return true
}

// String renders the bits as a string of '0' and '1'.
func (a BitArray) String() string {
	var sb strings.Builder
	sb.Grow(a.n)
	for i := range a.n {
		if a.Get(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}

	return sb.String()
}

func bytesFor(bits int) int {
	return (bits + 7) / 8
}
