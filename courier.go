// Package courier moves application records between peers over constrained,
// lossy links such as binary SMS, storing every transmission until the peer
// acknowledges it.
//
// The work is split across packages:
//
//   - bitstream: bit-granular reader and writer with range-bounded integers
//   - schema: models, schemata, columns and records
//   - payload: the payload codec, including compression selection and factoring
//   - transport: part framing, splitting, reassembly and the transports themselves
//   - transmission: the controller tracking acks, resend requests and timeouts
//
// # Basic Usage
//
// Encoding records into framed parts for a binary SMS link:
//
//	codec, _ := courier.NewDefaultCodec(registry, format.TransportBinarySMS)
//	p := codec.NewRecords(model)
//	_, _ = p.Fill(records)
//	body, _ := codec.Encode(p)
//	parts, _ := courier.Split(body, senderID, format.TransportBinarySMS)
//
// Reading them back on the other side:
//
//	body, _ := courier.Reassemble(parts)
//	decoded, _ := codec.Decode(body)
//
// Peers that should track acks and resends use transmission.NewController.
//
// This package provides convenient top-level wrappers for the most common use
// cases. For fine-grained control, use the packages directly.
package courier

import (
	"fmt"
	"time"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
	"github.com/arloliu/courier/payload"
	"github.com/arloliu/courier/schema"
	"github.com/arloliu/courier/transport"
)

// NewCodec creates a payload codec with custom options.
//
// Parameters:
//   - registry: Models the codec can encode and decode
//   - opts: Optional configuration (payload.WithCapacity, payload.WithCompression, ...)
//
// Returns:
//   - *payload.Codec: The codec
//   - error: An invalid option
func NewCodec(registry *schema.Registry, opts ...payload.CodecOption) (*payload.Codec, error) {
	return payload.NewCodec(registry, opts...)
}

// NewDefaultCodec creates a payload codec sized for the default limits of a
// transport kind. Both peers must use the same capacity, so peers on custom
// limits should use NewCodec with payload.WithCapacity instead.
//
// Parameters:
//   - registry: Models the codec can encode and decode
//   - kind: The transport kind payloads travel over
//   - opts: Further options, applied before the capacity
//
// Returns:
//   - *payload.Codec: The codec
//   - error: An invalid option
func NewDefaultCodec(registry *schema.Registry, kind format.TransportKind, opts ...payload.CodecOption) (*payload.Codec, error) {
	opts = append(opts, payload.WithCapacity(transport.LimitsFor(kind).MaxPayloadBytes()))
	return payload.NewCodec(registry, opts...)
}

// Split cuts an encoded transmission body into parts fitting the default
// limits of a transport kind.
//
// Returns:
//   - []transport.Part: The parts, indexed from 1
//   - error: A capacity error when the body needs too many parts
func Split(body []byte, senderID uint32, kind format.TransportKind) ([]transport.Part, error) {
	return transport.Split(body, senderID, transport.LimitsFor(kind))
}

// Reassemble joins the parts of one transmission, in any order and with
// duplicates, and verifies the payload hash.
//
// Returns:
//   - []byte: The transmission body
//   - error: ErrFormat for missing parts or a hash mismatch, ErrProtocolMismatch
//     for parts of different transmissions
func Reassemble(parts []transport.Part) ([]byte, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: no parts", errs.ErrInvalidValue)
	}

	asm := transport.NewAssembly(parts[0].SenderID, parts[0].PayloadHash)
	now := time.Now()
	for _, p := range parts {
		if _, err := asm.Add(p, now); err != nil {
			return nil, err
		}
	}

	return asm.Payload()
}

// ModelID returns the id a model descriptor derives to.
func ModelID(d schema.Descriptor) (uint64, error) {
	return schema.DeriveModelID(d)
}
