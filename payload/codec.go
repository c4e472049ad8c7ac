package payload

import (
	"fmt"
	"time"

	"github.com/arloliu/courier/bitstream"
	"github.com/arloliu/courier/compress"
	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
	"github.com/arloliu/courier/internal/options"
	"github.com/arloliu/courier/schema"
)

var (
	senderIDField   = bitstream.NewIntRange(0, format.MaxSenderID)
	totalPartsField = bitstream.NewIntRange(1, format.MaxParts)
	receivedAtField = bitstream.IntRangeForSize(0, 40)
	lengthField     = bitstream.IntRangeForSize(0, 24)
)

// Codec turns payloads into transmission bodies and back.
//
// A transmission body starts with the 5-bit payload type followed by the
// payload itself. The body never exceeds the configured capacity. A Codec is
// safe for concurrent use as long as its registry is.
type Codec struct {
	registry *schema.Registry
	cfg      *CodecConfig
}

// NewCodec creates a codec resolving model ids against registry.
//
// Parameters:
//   - registry: Models known to this side; records of other models cannot be decoded
//   - opts: Optional configuration (WithCapacity, WithCompression, WithFactoring, ...)
//
// Returns:
//   - *Codec: The configured codec
//   - error: An option rejected its argument
func NewCodec(registry *schema.Registry, opts ...CodecOption) (*Codec, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: nil registry", errs.ErrInvalidValue)
	}

	cfg := NewDefaultCodecConfig()
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	return &Codec{registry: registry, cfg: cfg}, nil
}

// Registry returns the registry the codec resolves models against.
func (c *Codec) Registry() *schema.Registry { return c.registry }

// Config returns the codec settings.
func (c *Codec) Config() *CodecConfig { return c.cfg }

// CapacityBytes returns the maximum size of an encoded transmission body.
func (c *Codec) CapacityBytes() int { return c.cfg.capacityBytes }

// Lossless reports whether records payloads created by the codec use lossless encoding.
func (c *Codec) Lossless() bool { return c.cfg.lossless }

// NewRecords creates an empty records payload for model, attached to the codec
// so that TryAdd enforces its capacity.
func (c *Codec) NewRecords(model *schema.Model) *Records {
	p := NewRecords(model, c.cfg.lossless)
	p.codec = c

	return p
}

func (c *Codec) skipColumns(s *schema.Schema) schema.ColumnSet {
	return c.cfg.filter(s)
}

// Encode serialises p into a transmission body.
// Encoding a *Records payload seals it.
func (c *Codec) Encode(p Payload) ([]byte, error) {
	data, _, err := c.EncodeWithStats(p)
	return data, err
}

// EncodeWithStats is Encode also returning the compression outcome of a records payload.
// For other payloads the stats report CompressionNone and the body size.
func (c *Codec) EncodeWithStats(p Payload) ([]byte, compress.CompressionStats, error) {
	if rp, ok := p.(*Records); ok {
		data, stats, err := c.encode(rp)
		if err != nil {
			return nil, stats, err
		}
		rp.sealed = true

		return data, stats, nil
	}

	w := bitstream.NewWriter(c.cfg.capacityBytes * 8)
	defer w.Finish()

	if err := w.WriteBits(uint64(p.Type()), format.PayloadTypeBits); err != nil {
		return nil, compress.CompressionStats{}, err
	}
	if err := c.writeControl(w, p); err != nil {
		return nil, compress.CompressionStats{}, fmt.Errorf("encoding %s payload: %w", p.Type(), err)
	}

	data := w.Bytes()
	size := int64(len(data))

	return data, compress.CompressionStats{Algorithm: format.CompressionNone, OriginalSize: size, CompressedSize: size}, nil
}

func (c *Codec) writeControl(w *bitstream.Writer, p Payload) error {
	switch v := p.(type) {
	case *Ack:
		if err := writeSubject(w, v.SubjectSenderID, v.SubjectHash); err != nil {
			return err
		}

		return receivedAtField.Write(w, v.ReceivedAt.Unix())
	case *ResendRequest:
		if err := v.validate(); err != nil {
			return err
		}
		if err := writeSubject(w, v.SubjectSenderID, v.SubjectHash); err != nil {
			return err
		}
		if err := totalPartsField.Write(w, int64(v.TotalParts)); err != nil {
			return err
		}
		requested := bitstream.NewBitArray(v.TotalParts)
		for _, part := range v.Parts {
			requested.Set(part-1, true)
		}

		return w.WriteBitArray(requested)
	case *ModelRequest:
		return schema.ModelIDRange.Write(w, int64(v.ModelID))
	case *Model:
		data, err := schema.MarshalDescriptor(v.Descriptor)
		if err != nil {
			return err
		}

		return writeBlock(w, data)
	case *Custom:
		if !v.Code.IsCustom() {
			return fmt.Errorf("%w: custom payload code %d", errs.ErrValueOutOfRange, v.Code)
		}

		return writeBlock(w, v.Data)
	default:
		return fmt.Errorf("%w: %T", errs.ErrUnknownPayloadType, p)
	}
}

func writeSubject(w *bitstream.Writer, senderID, payloadHash uint32) error {
	if err := senderIDField.Write(w, int64(senderID)); err != nil {
		return err
	}

	return w.WriteBits(uint64(payloadHash), 32)
}

func writeBlock(w *bitstream.Writer, data []byte) error {
	if err := lengthField.Write(w, int64(len(data))); err != nil {
		return err
	}

	return w.WriteBytes(data)
}

// PeekType returns the payload type of an encoded transmission body without decoding it.
func PeekType(data []byte) (format.PayloadType, error) {
	v, err := bitstream.NewBytesReader(data).ReadBits(format.PayloadTypeBits)
	if err != nil {
		return 0, err
	}

	return format.PayloadType(v), nil
}

// Decode parses a transmission body produced by Encode.
//
// Decoding is all-or-nothing. Failures are reported as *errs.DecodeError;
// a records payload of a model missing from the registry fails with an error
// that also matches errs.ErrUnknownModel and carries an *errs.UnknownModelError.
// A decoded *Records payload is sealed.
func (c *Codec) Decode(data []byte) (Payload, error) {
	rd := bitstream.NewBytesReader(data)
	code, err := rd.ReadBits(format.PayloadTypeBits)
	if err != nil {
		return nil, &errs.DecodeError{Subject: "payload type", Err: err}
	}

	pt := format.PayloadType(code)
	if pt == format.PayloadRecords {
		return c.decodeRecords(rd)
	}

	p, err := c.readControl(rd, pt)
	if err != nil {
		return nil, &errs.DecodeError{Subject: pt.String() + " payload", Err: err}
	}

	return p, nil
}

func (c *Codec) readControl(rd *bitstream.Reader, pt format.PayloadType) (Payload, error) {
	switch {
	case pt == format.PayloadAck:
		senderID, payloadHash, err := readSubject(rd)
		if err != nil {
			return nil, err
		}
		sec, err := receivedAtField.Read(rd)
		if err != nil {
			return nil, err
		}

		return &Ack{SubjectSenderID: senderID, SubjectHash: payloadHash, ReceivedAt: time.Unix(sec, 0).UTC()}, nil
	case pt == format.PayloadResendRequest:
		senderID, payloadHash, err := readSubject(rd)
		if err != nil {
			return nil, err
		}
		total, err := totalPartsField.ReadInt(rd)
		if err != nil {
			return nil, err
		}
		requested, err := rd.ReadBitArray(total)
		if err != nil {
			return nil, err
		}
		rr := &ResendRequest{SubjectSenderID: senderID, SubjectHash: payloadHash, TotalParts: total}
		for i := range total {
			if requested.Get(i) {
				rr.Parts = append(rr.Parts, i+1)
			}
		}
		if err := rr.validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", errs.ErrFormat, err)
		}

		return rr, nil
	case pt == format.PayloadModelRequest:
		id, err := schema.ModelIDRange.Read(rd)
		if err != nil {
			return nil, err
		}

		return &ModelRequest{ModelID: uint64(id)}, nil
	case pt == format.PayloadModel:
		data, err := readBlock(rd)
		if err != nil {
			return nil, err
		}
		d, err := schema.UnmarshalDescriptor(data)
		if err != nil {
			return nil, err
		}

		return &Model{Descriptor: d}, nil
	case pt.IsCustom():
		data, err := readBlock(rd)
		if err != nil {
			return nil, err
		}

		return &Custom{Code: pt, Data: data}, nil
	default:
		return nil, fmt.Errorf("%w: %d", errs.ErrUnknownPayloadType, pt)
	}
}

func readSubject(rd *bitstream.Reader) (uint32, uint32, error) {
	senderID, err := senderIDField.Read(rd)
	if err != nil {
		return 0, 0, err
	}
	payloadHash, err := rd.ReadBits(32)
	if err != nil {
		return 0, 0, err
	}

	return uint32(senderID), uint32(payloadHash), nil
}

func readBlock(rd *bitstream.Reader) ([]byte, error) {
	n, err := lengthField.ReadInt(rd)
	if err != nil {
		return nil, err
	}

	return rd.ReadBytes(n)
}
