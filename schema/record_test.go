package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/courier/bitstream"
	"github.com/arloliu/courier/errs"
)

func TestRecord_SetGet(t *testing.T) {
	s := observationSchema(t)
	r := s.NewRecord()

	require.NoError(t, r.Set("device", 12))
	require.Equal(t, int64(12), r.Get("device"))
	require.Nil(t, r.Get("missing"))

	require.ErrorIs(t, r.Set("missing", 1), errs.ErrInvalidValue)
	require.ErrorIs(t, r.Set("device", 5000), errs.ErrValueOutOfRange)
	require.ErrorIs(t, r.SetAt(99, 1), errs.ErrValueOutOfRange)
	require.Equal(t, int64(12), r.At(1), "failed set keeps the old value")
}

func TestRecord_IsFilled(t *testing.T) {
	s := observationSchema(t)
	r, err := NewRecord(s, nil, 1, time.Unix(1_700_000_000, 0), 50.8, 4.3)
	require.NoError(t, err)

	require.False(t, r.IsFilled(s.LocalColumns()))
	require.Equal(t, []string{"flagged"}, r.Unfilled(s.LocalColumns()))

	require.NoError(t, r.Set("flagged", false))
	require.True(t, r.IsFilled(s.LocalColumns()), "optional note and local id may be nil")
	require.False(t, r.IsFilled(nil), "local id is required when not skipped")

	_, err = NewRecord(s, 1, 2, 3, 4, 5, 6, 7, 8)
	require.ErrorIs(t, err, errs.ErrInvalidValue)
}

func TestRecord_EncodeDecode(t *testing.T) {
	s := observationSchema(t)
	r, err := NewRecord(s, 77, 5, time.UnixMilli(1_700_000_000_123), 50.85, 4.35, "near the oak", true)
	require.NoError(t, err)

	skip := s.LocalColumns()
	w := bitstream.NewWriter(0)
	defer w.Finish()
	require.NoError(t, r.Encode(w, skip, true))

	back, err := DecodeRecord(s, bitstream.NewReader(w.BitArray()), skip, true)
	require.NoError(t, err)
	require.Nil(t, back.At(0), "skipped columns stay nil")
	require.True(t, r.EqualExcept(back, skip))
	require.False(t, r.Equal(back))

	clone := r.Clone()
	require.True(t, r.Equal(clone))
	require.NoError(t, clone.Set("note", nil))
	require.False(t, r.Equal(clone))
	require.Contains(t, r.String(), "note: near the oak")
}

func TestDecodeRecord_Partial(t *testing.T) {
	s := observationSchema(t)
	r, err := NewRecord(s, nil, 5, time.Unix(1_700_000_000, 0), 1.0, 2.0, nil, true)
	require.NoError(t, err)

	skip := s.LocalColumns()
	w := bitstream.NewWriter(0)
	defer w.Finish()
	require.NoError(t, r.Encode(w, skip, false))

	// cut inside the second float
	bits := w.BitArray().Sub(0, 10+40+32+8)
	partial, err := DecodeRecord(s, bitstream.NewReader(bits), skip, false)
	require.ErrorIs(t, err, errs.ErrFormat)
	require.NotNil(t, partial)
	require.Equal(t, int64(5), partial.At(1))
	require.Nil(t, partial.At(4))
}

func TestRecord_EncodeUnfilled(t *testing.T) {
	s := observationSchema(t)
	r := s.NewRecord()

	w := bitstream.NewWriter(0)
	defer w.Finish()
	require.ErrorIs(t, r.Encode(w, s.LocalColumns(), true), errs.ErrRecordNotFilled)
}
