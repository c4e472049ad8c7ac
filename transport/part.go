package transport

import (
	"encoding/binary"
	"fmt"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
	"github.com/arloliu/courier/internal/hash"
)

const (
	// HeaderSize is the size of a framed part header in bytes.
	HeaderSize = 10
	// Marker is the first byte of every framed part.
	Marker byte = 0xC5
)

// Part is one fragment of a transmission body. Parts are immutable once created.
type Part struct {
	// SenderID is the sender-side id of the transmission, at most format.MaxSenderID.
	SenderID uint32
	// Index is the 1-based position of the part.
	Index int
	// Total is the number of parts of the transmission.
	Total int
	// PayloadHash is the hash of the complete transmission body.
	PayloadHash uint32
	// Body is the part's slice of the transmission body.
	Body []byte
}

// Validate checks that the part can be framed.
func (p Part) Validate() error {
	if p.SenderID > format.MaxSenderID {
		return fmt.Errorf("%w: sender id %d", errs.ErrValueOutOfRange, p.SenderID)
	}
	if p.Total < 1 || p.Total > format.MaxParts {
		return fmt.Errorf("%w: total parts %d", errs.ErrValueOutOfRange, p.Total)
	}
	if p.Index < 1 || p.Index > p.Total {
		return fmt.Errorf("%w: part %d of %d", errs.ErrValueOutOfRange, p.Index, p.Total)
	}

	return nil
}

// Bytes frames the part: header followed by the body.
func (p Part) Bytes() ([]byte, error) {
	return p.AppendTo(make([]byte, 0, HeaderSize+len(p.Body)))
}

// AppendTo appends the framed part to dst and returns the extended slice.
// dst is returned unchanged when the part is invalid.
func (p Part) AppendTo(dst []byte) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return dst, err
	}

	var h [HeaderSize]byte
	h[0] = Marker
	h[1] = byte(p.SenderID >> 16)
	h[2] = byte(p.SenderID >> 8)
	h[3] = byte(p.SenderID)
	// index-1 (6) | total-1 (6) | hash (32) | reserved (4)
	packed := uint64(p.Index-1)<<42 | uint64(p.Total-1)<<36 | uint64(p.PayloadHash)<<4
	binary.BigEndian.PutUint16(h[4:6], uint16(packed>>32))
	binary.BigEndian.PutUint32(h[6:10], uint32(packed))

	dst = append(dst, h[:]...)

	return append(dst, p.Body...), nil
}

// ParsePart parses a framed part. The body of the returned part is a copy.
//
// Parameters:
//   - data: Header followed by the body
//
// Returns:
//   - Part: The parsed part
//   - error: ErrFormat on a short frame, a wrong marker or non-zero reserved bits
func ParsePart(data []byte) (Part, error) {
	if len(data) < HeaderSize {
		return Part{}, fmt.Errorf("%w: part frame of %d bytes", errs.ErrFormat, len(data))
	}
	if data[0] != Marker {
		return Part{}, fmt.Errorf("%w: part marker %#02x", errs.ErrFormat, data[0])
	}

	packed := uint64(binary.BigEndian.Uint16(data[4:6]))<<32 | uint64(binary.BigEndian.Uint32(data[6:10]))
	if packed&0xF != 0 {
		return Part{}, fmt.Errorf("%w: reserved part header bits set", errs.ErrFormat)
	}

	p := Part{
		SenderID:    uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3]),
		Index:       int(packed>>42&0x3F) + 1,
		Total:       int(packed>>36&0x3F) + 1,
		PayloadHash: uint32(packed >> 4),
		Body:        append([]byte(nil), data[HeaderSize:]...),
	}
	if p.Index > p.Total {
		return Part{}, fmt.Errorf("%w: part %d of %d", errs.ErrFormat, p.Index, p.Total)
	}

	return p, nil
}

func (p Part) String() string {
	return fmt.Sprintf("Part{sender_id=%d, %d/%d, hash=%#08x, bytes=%d}", p.SenderID, p.Index, p.Total, p.PayloadHash, len(p.Body))
}

// Split cuts a transmission body into parts of at most limits.PartSize bytes.
//
// Parameters:
//   - data: The encoded transmission body
//   - senderID: Sender-side transmission id written in every part
//   - limits: Transport limits
//
// Returns:
//   - []Part: ceil(len(data)/PartSize) parts with 1-based indices
//   - error: A *errs.CapacityError when data needs more than limits.MaxParts parts
func Split(data []byte, senderID uint32, limits Limits) ([]Part, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if senderID > format.MaxSenderID {
		return nil, fmt.Errorf("%w: sender id %d", errs.ErrValueOutOfRange, senderID)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty transmission body", errs.ErrInvalidValue)
	}
	if len(data) > limits.MaxPayloadBytes() {
		return nil, &errs.CapacityError{
			Subject: fmt.Sprintf("transmission %d", senderID),
			Need:    len(data),
			Max:     limits.MaxPayloadBytes(),
			Unit:    "bytes",
		}
	}

	payloadHash := hash.Payload(data)
	total := (len(data) + limits.PartSize - 1) / limits.PartSize
	parts := make([]Part, total)
	for i := range parts {
		lo := i * limits.PartSize
		hi := min(lo+limits.PartSize, len(data))
		parts[i] = Part{
			SenderID:    senderID,
			Index:       i + 1,
			Total:       total,
			PayloadHash: payloadHash,
			Body:        append([]byte(nil), data[lo:hi]...),
		}
	}

	return parts, nil
}
