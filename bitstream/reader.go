package bitstream

import (
	"fmt"

	"github.com/arloliu/courier/errs"
)

// Reader reads bits from a BitArray, MSB first.
type Reader struct {
	src BitArray
	pos int
}

// NewReader creates a Reader positioned at the first bit of src.
func NewReader(src BitArray) *Reader {
	return &Reader{src: src}
}

// NewBytesReader creates a Reader over all bits of b.
func NewBytesReader(b []byte) *Reader {
	return &Reader{src: FromBytes(b)}
}

// Pos returns the number of bits consumed so far.
func (r *Reader) Pos() int {
	return r.pos
}

// Available returns the number of unread bits.
func (r *Reader) Available() int {
	return r.src.n - r.pos
}

// AvailableBytes returns the number of whole unread bytes.
func (r *Reader) AvailableBytes() int {
	return r.Available() / 8
}

func (r *Reader) need(n int) error {
	if n > r.Available() {
		return fmt.Errorf("%w: need %d bits at position %d, only %d available", errs.ErrFormat, n, r.pos, r.Available())
	}

	return nil
}

// ReadBool reads a single bit.
func (r *Reader) ReadBool() (bool, error) {
	if err := r.need(1); err != nil {
		return false, err
	}
	v := r.src.data[r.pos>>3]&(0x80>>(r.pos&7)) != 0
	r.pos++

	return v, nil
}

// ReadBits reads n bits (0-64) and returns them right-aligned.
func (r *Reader) ReadBits(n int) (uint64, error) {
	if n < 0 || n > 64 {
		return 0, fmt.Errorf("%w: cannot read %d bits at once", errs.ErrValueOutOfRange, n)
	}
	if err := r.need(n); err != nil {
		return 0, err
	}

	var v uint64
	for n > 0 {
		used := r.pos & 7
		avail := 8 - used
		take := min(avail, n)
		b := r.src.data[r.pos>>3]
		chunk := (b >> (avail - take)) & byte((1<<take)-1)
		v = v<<take | uint64(chunk)
		r.pos += take
		n -= take
	}

	return v, nil
}

// ReadBytes reads n whole bytes. The stream does not need to be byte aligned.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative byte count %d", errs.ErrFormat, n)
	}
	if err := r.need(n * 8); err != nil {
		return nil, err
	}

	out := make([]byte, n)
	if r.pos&7 == 0 {
		copy(out, r.src.data[r.pos/8:r.pos/8+n])
		r.pos += n * 8

		return out, nil
	}

	for i := range out {
		v, err := r.ReadBits(8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}

	return out, nil
}

// ReadBitArray reads n bits into a new BitArray.
func (r *Reader) ReadBitArray(n int) (BitArray, error) {
	if n < 0 {
		return BitArray{}, fmt.Errorf("%w: negative bit count %d", errs.ErrFormat, n)
	}
	if err := r.need(n); err != nil {
		return BitArray{}, err
	}
	sub := r.src.Sub(r.pos, n)
	r.pos += n

	return sub, nil
}
