package bitstream

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/courier/errs"
)

func TestBitArray_GetSet(t *testing.T) {
	a := NewBitArray(10)
	require.Equal(t, 10, a.Len())
	require.Equal(t, "0000000000", a.String())

	a.Set(0, true)
	a.Set(9, true)
	a.Set(3, true)
	require.Equal(t, "1001000001", a.String())
	require.True(t, a.Get(9))
	require.False(t, a.Get(8))

	a.Set(3, false)
	require.Equal(t, "1000000001", a.String())

	require.Panics(t, func() { a.Get(10) })
	require.Panics(t, func() { a.Set(-1, true) })
}

func TestBitArray_Bytes(t *testing.T) {
	a := NewBitArray(10)
	a.Set(0, true)
	a.Set(9, true)

	// MSB first, final byte zero-padded
	require.Equal(t, []byte{0x80, 0x40}, a.Bytes())

	b := FromBytes([]byte{0xA5, 0x0F})
	require.Equal(t, 16, b.Len())
	require.Equal(t, "1010010100001111", b.String())
}

func TestBitArray_FromBytesLen(t *testing.T) {
	a := FromBytesLen([]byte{0xFF, 0xFF}, 11)
	require.Equal(t, 11, a.Len())
	require.Equal(t, []byte{0xFF, 0xE0}, a.Bytes(), "bits beyond the length must be cleared")

	short := FromBytesLen([]byte{0x01}, 100)
	require.Equal(t, 8, short.Len())
}

func TestBitArray_Equal(t *testing.T) {
	a := FromBytesLen([]byte{0xF0}, 4)
	b := FromBytesLen([]byte{0xFF}, 4)
	require.True(t, a.Equal(b), "padding bits must not affect equality")

	c := FromBytesLen([]byte{0xF0}, 5)
	require.False(t, a.Equal(c))

	d := NewBitArray(4)
	require.False(t, a.Equal(d))

	require.True(t, NewBitArray(0).Equal(BitArray{}))
}

func TestBitArray_Sub(t *testing.T) {
	a := FromBytes([]byte{0b10110011, 0b01011100})

	require.Equal(t, "1011", a.Sub(0, 4).String())
	require.Equal(t, "0011010", a.Sub(4, 7).String())
	require.Equal(t, "01011100", a.Sub(8, 8).String())
	require.Equal(t, "100", a.Sub(13, 10).String(), "sub array is clamped to the end")
	require.Equal(t, 0, a.Sub(16, 4).Len())

	require.Panics(t, func() { a.Sub(17, 1) })
}

func TestWriter_WriteBits(t *testing.T) {
	w := NewWriter(0)
	defer w.Finish()

	require.NoError(t, w.WriteBits(0b101, 3))
	require.NoError(t, w.WriteBool(true))
	require.NoError(t, w.WriteBits(0xABC, 12))
	require.NoError(t, w.WriteBits(0, 0))
	require.Equal(t, 16, w.BitLen())
	require.Equal(t, "1011101010111100", w.BitArray().String())

	err := w.WriteBits(1, 65)
	require.ErrorIs(t, err, errs.ErrValueOutOfRange)
}

func TestWriter_Capacity(t *testing.T) {
	w := NewWriter(10)
	defer w.Finish()

	require.NoError(t, w.WriteBits(0x3F, 6))
	require.Equal(t, 4, w.Remaining())

	err := w.WriteBits(0x1F, 5)
	require.ErrorIs(t, err, errs.ErrCapacityExceeded)
	require.Equal(t, 6, w.BitLen(), "a refused write must not be applied partially")

	err = w.WriteBytes([]byte{0x01})
	require.ErrorIs(t, err, errs.ErrCapacityExceeded)

	require.NoError(t, w.WriteBits(0xF, 4))
	require.Equal(t, 0, w.Remaining())
	require.ErrorIs(t, w.WriteBool(false), errs.ErrCapacityExceeded)

	var capErr *errs.CapacityError
	require.ErrorAs(t, w.WriteBool(true), &capErr)
	require.Equal(t, 10, capErr.Max)
	require.Equal(t, 11, capErr.Need)
}

func TestWriter_Unlimited(t *testing.T) {
	w := NewWriter(0)
	defer w.Finish()
	require.Equal(t, -1, w.Remaining())
	require.NoError(t, w.WriteBytes(make([]byte, 10000)))
	require.Equal(t, 80000, w.BitLen())
}

func TestWriter_FinishedPanics(t *testing.T) {
	w := NewWriter(0)
	w.Finish()
	w.Finish()
	require.Panics(t, func() { _ = w.WriteBool(true) })
	require.Panics(t, func() { _ = w.Bytes() })
}

func TestReader_RoundTrip(t *testing.T) {
	w := NewWriter(0)
	defer w.Finish()

	require.NoError(t, w.WriteBool(true))
	require.NoError(t, w.WriteBytes([]byte("hi")))
	require.NoError(t, w.WriteBits(math.MaxUint64, 64))
	require.NoError(t, w.WriteBitArray(FromBytesLen([]byte{0xA0}, 3)))
	require.NoError(t, w.WriteBits(0x2A, 7))

	r := NewReader(w.BitArray())
	b, err := r.ReadBool()
	require.NoError(t, err)
	require.True(t, b)

	s, err := r.ReadBytes(2)
	require.NoError(t, err)
	require.Equal(t, "hi", string(s))

	v, err := r.ReadBits(64)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), v)

	arr, err := r.ReadBitArray(3)
	require.NoError(t, err)
	require.Equal(t, "101", arr.String())

	v, err = r.ReadBits(7)
	require.NoError(t, err)
	require.Equal(t, uint64(0x2A), v)

	require.Equal(t, 0, r.Available())
	_, err = r.ReadBool()
	require.ErrorIs(t, err, errs.ErrFormat)
}

func TestReader_PastEnd(t *testing.T) {
	r := NewBytesReader([]byte{0xFF})

	_, err := r.ReadBits(9)
	require.ErrorIs(t, err, errs.ErrFormat)
	require.Equal(t, 0, r.Pos(), "failed read must not consume bits")

	_, err = r.ReadBytes(2)
	require.ErrorIs(t, err, errs.ErrFormat)

	_, err = r.ReadBitArray(9)
	require.ErrorIs(t, err, errs.ErrFormat)

	require.Equal(t, 1, r.AvailableBytes())
}

func TestWriterReader_RandomRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	type item struct {
		v uint64
		n int
	}
	items := make([]item, 500)
	w := NewWriter(0)
	defer w.Finish()
	for i := range items {
		n := rng.Intn(65)
		v := rng.Uint64()
		if n < 64 {
			v &= (uint64(1) << n) - 1
		}
		items[i] = item{v: v, n: n}
		require.NoError(t, w.WriteBits(v, n))
	}

	r := NewReader(w.BitArray())
	for _, it := range items {
		got, err := r.ReadBits(it.n)
		require.NoError(t, err)
		require.Equal(t, it.v, got)
	}
	require.Equal(t, 0, r.Available())
}

func TestIntRange(t *testing.T) {
	tests := []struct {
		name string
		rng  IntRange
		size int
		vals []int64
	}{
		{"single value", NewIntRange(7, 7), 0, []int64{7}},
		{"unsigned byte", NewIntRange(0, 255), 8, []int64{0, 1, 128, 255}},
		{"negative", NewIntRange(-10, 10), 5, []int64{-10, -1, 0, 10}},
		{"version field", IntRangeForSize(2, 2), 2, []int64{2, 3, 4, 5}},
		{"model id", IntRangeForSize(0, 56), 56, []int64{0, 1 << 55, (1 << 56) - 1}},
		{"full int64", NewIntRange(math.MinInt64, math.MaxInt64), 64, []int64{math.MinInt64, -1, 0, math.MaxInt64}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.size, tt.rng.Size())

			w := NewWriter(0)
			defer w.Finish()
			for _, v := range tt.vals {
				require.NoError(t, tt.rng.Write(w, v))
			}
			require.Equal(t, tt.size*len(tt.vals), w.BitLen())

			r := NewReader(w.BitArray())
			for _, v := range tt.vals {
				got, err := tt.rng.Read(r)
				require.NoError(t, err)
				require.Equal(t, v, got)
			}
		})
	}
}

func TestIntRange_Bounds(t *testing.T) {
	m := NewIntRange(1, 5)
	require.Equal(t, 3, m.Size())
	require.True(t, m.Contains(5))
	require.False(t, m.Contains(0))

	w := NewWriter(0)
	defer w.Finish()
	require.ErrorIs(t, m.Write(w, 6), errs.ErrValueOutOfRange)
	require.ErrorIs(t, m.Write(w, 0), errs.ErrValueOutOfRange)

	// offset 7 decodes to 8, which is outside [1, 5]
	require.NoError(t, w.WriteBits(7, 3))
	_, err := m.Read(NewReader(w.BitArray()))
	require.ErrorIs(t, err, errs.ErrFormat)

	require.Panics(t, func() { NewIntRange(3, 2) })

	clamped := IntRangeForSize(math.MaxInt64-1, 8)
	require.Equal(t, int64(math.MaxInt64), clamped.High())
	require.Equal(t, 8, clamped.Size())
}
