package bitstream

import (
	"fmt"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/internal/pool"
)

// Writer appends bits MSB first into a pooled byte buffer.
//
// A Writer with a non-zero capacity refuses writes that would exceed it; see
// the package documentation. Call Finish when done to return the buffer to
// the pool. Bytes and BitArray return copies, so their results stay valid
// after Finish.
type Writer struct {
	buf      *pool.ByteBuffer
	bitLen   int
	capacity int
}

// NewWriter creates a Writer limited to capacity bits. A capacity of 0 means unlimited.
func NewWriter(capacity int) *Writer {
	if capacity < 0 {
		capacity = 0
	}

	return &Writer{
		buf:      pool.GetBitBuffer(),
		capacity: capacity,
	}
}

// Capacity returns the capacity in bits, 0 when unlimited.
func (w *Writer) Capacity() int {
	return w.capacity
}

// BitLen returns the number of bits written so far.
func (w *Writer) BitLen() int {
	return w.bitLen
}

// Remaining returns the number of bits that can still be written, or -1 when unlimited.
func (w *Writer) Remaining() int {
	if w.capacity == 0 {
		return -1
	}

	return w.capacity - w.bitLen
}

func (w *Writer) reserve(n int) error {
	if w.buf == nil {
		panic("bitstream: writer already finished")
	}
	if w.capacity > 0 && w.bitLen+n > w.capacity {
		return &errs.CapacityError{Subject: "bit stream", Need: w.bitLen + n, Max: w.capacity, Unit: "bits"}
	}

	return nil
}

// WriteBool writes a single bit.
func (w *Writer) WriteBool(v bool) error {
	if v {
		return w.WriteBits(1, 1)
	}

	return w.WriteBits(0, 1)
}

// WriteBits writes the n least significant bits of v, most significant first.
//
// Parameters:
//   - v: the value; bits above n are ignored
//   - n: number of bits, 0-64
//
// Returns:
//   - error: capacity error when the bits do not fit
func (w *Writer) WriteBits(v uint64, n int) error {
	if n < 0 || n > 64 {
		return fmt.Errorf("%w: cannot write %d bits at once", errs.ErrValueOutOfRange, n)
	}
	if err := w.reserve(n); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	if n < 64 {
		v &= (1 << n) - 1
	}

	for n > 0 {
		used := w.bitLen & 7
		if used == 0 {
			w.buf.Grow(1)
			_ = w.buf.WriteByte(0)
		}
		free := 8 - used
		take := min(free, n)
		chunk := byte((v >> (n - take)) & ((1 << take) - 1))
		w.buf.B[len(w.buf.B)-1] |= chunk << (free - take)
		w.bitLen += take
		n -= take
	}

	return nil
}

// WriteBytes writes every bit of b. The stream does not need to be byte aligned.
func (w *Writer) WriteBytes(b []byte) error {
	if err := w.reserve(len(b) * 8); err != nil {
		return err
	}

	if w.bitLen&7 == 0 {
		w.buf.MustWrite(b)
		w.bitLen += len(b) * 8

		return nil
	}

	for _, c := range b {
		if err := w.WriteBits(uint64(c), 8); err != nil {
			return err
		}
	}

	return nil
}

// WriteBitArray writes all bits of a.
func (w *Writer) WriteBitArray(a BitArray) error {
	if err := w.reserve(a.Len()); err != nil {
		return err
	}

	full := a.Len() / 8
	if err := w.WriteBytes(a.data[:full]); err != nil {
		return err
	}
	if r := a.Len() % 8; r != 0 {
		return w.WriteBits(uint64(a.data[full]>>(8-r)), r)
	}

	return nil
}

// Bytes returns a copy of the written bits packed MSB first, zero-padded on the final byte.
func (w *Writer) Bytes() []byte {
	if w.buf == nil {
		panic("bitstream: writer already finished")
	}
	out := make([]byte, w.buf.Len())
	copy(out, w.buf.Bytes())

	return out
}

// BitArray returns a copy of the written bits.
func (w *Writer) BitArray() BitArray {
	return BitArray{data: w.Bytes(), n: w.bitLen}
}

// Finish returns the internal buffer to the pool. The Writer is unusable afterwards.
func (w *Writer) Finish() {
	if w.buf == nil {
		return
	}
	pool.PutBitBuffer(w.buf)
	w.buf = nil
}
