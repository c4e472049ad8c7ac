package format

import "strconv"

type (
	CompressionType uint8
	PayloadType     uint8
	TransportKind   uint8
)

// Compression types. The first four are the candidates of a records payload
// and their values are the 2-bit compression flag on the wire; S2 is only used
// for local storage.
const (
	CompressionNone    CompressionType = 0x0 // CompressionNone represents no compression.
	CompressionDeflate CompressionType = 0x1 // CompressionDeflate represents raw DEFLATE compression.
	CompressionZstd    CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionLZ4     CompressionType = 0x3 // CompressionLZ4 represents LZ4 block compression.
	CompressionS2      CompressionType = 0x4 // CompressionS2 represents S2 compression.
)

// CompressionFlagBits is the size of the compression flag in a records payload header.
const CompressionFlagBits = 2

// WireCompressions lists the records payload candidates in flag order.
var WireCompressions = []CompressionType{CompressionNone, CompressionDeflate, CompressionZstd, CompressionLZ4}

// Payload type codes. Codes 5-31 are free for application payloads.
const (
	PayloadAck           PayloadType = 0x0 // PayloadAck acknowledges a complete transmission.
	PayloadResendRequest PayloadType = 0x1 // PayloadResendRequest asks for missing parts.
	PayloadRecords       PayloadType = 0x2 // PayloadRecords carries records of one model.
	PayloadModelRequest  PayloadType = 0x3 // PayloadModelRequest asks for a model descriptor.
	PayloadModel         PayloadType = 0x4 // PayloadModel carries a model descriptor.

	PayloadCustomMin PayloadType = 0x5  // PayloadCustomMin is the lowest application payload code.
	PayloadTypeMax   PayloadType = 0x1F // PayloadTypeMax is the highest code that fits the type field.
)

// PayloadTypeBits is the size of the payload type field at the start of every transmission.
const PayloadTypeBits = 5

// Transmission addressing limits shared by the payload and transport layers.
const (
	// SenderIDBits is the width of the sender-side transmission id in part
	// frames, acks and resend requests.
	SenderIDBits = 24
	// MaxSenderID is the largest sender-side transmission id.
	MaxSenderID = 1<<SenderIDBits - 1
	// MaxParts is the largest number of parts a transmission can be split into.
	MaxParts = 64
)

// Transport kinds.
const (
	TransportLoopback  TransportKind = 0x0 // TransportLoopback is the in-process transport.
	TransportBinarySMS TransportKind = 0x1 // TransportBinarySMS is the binary SMS transport.
	TransportHTTP      TransportKind = 0x2 // TransportHTTP is the HTTP transport.
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionDeflate:
		return "Deflate"
	case CompressionZstd:
		return "Zstd"
	case CompressionLZ4:
		return "LZ4"
	case CompressionS2:
		return "S2"
	default:
		return "Unknown"
	}
}

// IsWire reports whether c can be announced in a records payload header.
func (c CompressionType) IsWire() bool {
	return c <= CompressionLZ4
}

// ParseCompression returns the compression type named s, case sensitive as returned by String.
func ParseCompression(s string) (CompressionType, bool) {
	for _, c := range []CompressionType{CompressionNone, CompressionDeflate, CompressionZstd, CompressionLZ4, CompressionS2} {
		if c.String() == s {
			return c, true
		}
	}

	return 0, false
}

func (p PayloadType) String() string {
	switch p {
	case PayloadAck:
		return "Ack"
	case PayloadResendRequest:
		return "ResendRequest"
	case PayloadRecords:
		return "Records"
	case PayloadModelRequest:
		return "ModelRequest"
	case PayloadModel:
		return "Model"
	default:
		if p >= PayloadCustomMin && p <= PayloadTypeMax {
			return "Custom(" + strconv.Itoa(int(p)) + ")"
		}

		return "Unknown"
	}
}

// IsCustom reports whether p is an application payload code.
func (p PayloadType) IsCustom() bool {
	return p >= PayloadCustomMin && p <= PayloadTypeMax
}

// Acknowledged reports whether a transmission of this type expects an ack.
// Control payloads are fire and forget.
func (p PayloadType) Acknowledged() bool {
	return p == PayloadRecords || p == PayloadModel
}

func (k TransportKind) String() string {
	switch k {
	case TransportLoopback:
		return "Loopback"
	case TransportBinarySMS:
		return "BinarySMS"
	case TransportHTTP:
		return "HTTP"
	default:
		return "Unknown"
	}
}

// ParseTransportKind returns the transport kind named s.
func ParseTransportKind(s string) (TransportKind, bool) {
	for _, k := range []TransportKind{TransportLoopback, TransportBinarySMS, TransportHTTP} {
		if k.String() == s {
			return k, true
		}
	}

	return 0, false
}
