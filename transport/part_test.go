package transport

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
	"github.com/arloliu/courier/internal/hash"
)

func TestPart_Framing(t *testing.T) {
	p := Part{SenderID: format.MaxSenderID, Index: 64, Total: 64, PayloadHash: 0xCAFEBABE, Body: []byte("body")}

	frame, err := p.Bytes()
	require.NoError(t, err)
	require.Len(t, frame, HeaderSize+4)
	require.Equal(t, Marker, frame[0])
	require.Equal(t, []byte{0xFF, 0xFF, 0xFF}, frame[1:4])

	back, err := ParsePart(frame)
	require.NoError(t, err)
	require.Equal(t, p, back)

	first := Part{SenderID: 1, Index: 1, Total: 1, PayloadHash: 0}
	frame, err = first.Bytes()
	require.NoError(t, err)
	require.Equal(t, []byte{Marker, 0, 0, 1, 0, 0, 0, 0, 0, 0}, frame)
}

func TestPart_AppendTo(t *testing.T) {
	p := Part{SenderID: 7, Index: 2, Total: 3, PayloadHash: 42, Body: []byte("second")}
	want, err := p.Bytes()
	require.NoError(t, err)

	prefix := []byte("prefix")
	got, err := p.AppendTo(prefix)
	require.NoError(t, err)
	require.Equal(t, append([]byte("prefix"), want...), got)

	bad := Part{Index: 0, Total: 1}
	got, err = bad.AppendTo(prefix)
	require.ErrorIs(t, err, errs.ErrValueOutOfRange)
	require.Equal(t, prefix, got, "an invalid part leaves dst untouched")
}

func TestPart_Invalid(t *testing.T) {
	tests := []struct {
		name string
		part Part
	}{
		{"sender id too large", Part{SenderID: format.MaxSenderID + 1, Index: 1, Total: 1}},
		{"zero index", Part{Index: 0, Total: 1}},
		{"index beyond total", Part{Index: 3, Total: 2}},
		{"too many parts", Part{Index: 1, Total: format.MaxParts + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.part.Bytes()
			require.ErrorIs(t, err, errs.ErrValueOutOfRange)
		})
	}
}

func TestParsePart_Malformed(t *testing.T) {
	good, err := Part{SenderID: 5, Index: 2, Total: 3, PayloadHash: 9, Body: []byte{1}}.Bytes()
	require.NoError(t, err)

	_, err = ParsePart(good[:HeaderSize-1])
	require.ErrorIs(t, err, errs.ErrFormat)

	badMarker := bytes.Clone(good)
	badMarker[0] = 0x00
	_, err = ParsePart(badMarker)
	require.ErrorIs(t, err, errs.ErrFormat)

	reserved := bytes.Clone(good)
	reserved[9] |= 0x01
	_, err = ParsePart(reserved)
	require.ErrorIs(t, err, errs.ErrFormat)

	// index 4 of 3
	swapped := bytes.Clone(good)
	swapped[4] = 3 << 2
	_, err = ParsePart(swapped)
	require.ErrorIs(t, err, errs.ErrFormat)
}

func TestSplit(t *testing.T) {
	limits := Limits{MaxParts: 4, PartSize: 10}
	data := make([]byte, 35)
	rand.New(rand.NewSource(1)).Read(data)

	parts, err := Split(data, 77, limits)
	require.NoError(t, err)
	require.Len(t, parts, 4)
	for i, p := range parts {
		require.Equal(t, uint32(77), p.SenderID)
		require.Equal(t, i+1, p.Index)
		require.Equal(t, 4, p.Total)
		require.Equal(t, hash.Payload(data), p.PayloadHash)
	}
	require.Len(t, parts[3].Body, 5)

	exact, err := Split(data[:10], 1, limits)
	require.NoError(t, err)
	require.Len(t, exact, 1)

	_, err = Split(make([]byte, 41), 1, limits)
	require.ErrorIs(t, err, errs.ErrCapacityExceeded)
	var ce *errs.CapacityError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, 40, ce.Max)

	_, err = Split(nil, 1, limits)
	require.ErrorIs(t, err, errs.ErrInvalidValue)

	_, err = Split(data, format.MaxSenderID+1, limits)
	require.ErrorIs(t, err, errs.ErrValueOutOfRange)

	_, err = Split(data, 1, Limits{MaxParts: 65, PartSize: 1})
	require.ErrorIs(t, err, errs.ErrValueOutOfRange)
}

func TestLimits(t *testing.T) {
	require.Equal(t, 2080, BinarySMSLimits.MaxPayloadBytes())
	require.Equal(t, 130, BinarySMSLimits.PartSize)
	require.Equal(t, HTTPLimits, LimitsFor(format.TransportHTTP))
	require.Equal(t, BinarySMSLimits, LimitsFor(format.TransportBinarySMS))
	require.NoError(t, LoopbackLimits.Validate())
	require.ErrorIs(t, Limits{MaxParts: 1}.Validate(), errs.ErrValueOutOfRange)
	require.Equal(t, "16 x 130 bytes", BinarySMSLimits.String())
}
