package transport

import (
	"fmt"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
)

// Limits bounds the transmissions of a transport.
type Limits struct {
	// MaxParts is the largest number of parts per transmission, at most format.MaxParts.
	MaxParts int `yaml:"max_parts"`
	// PartSize is the largest part body in bytes, excluding the part header.
	PartSize int `yaml:"part_size"`
}

var (
	// BinarySMSLimits fits each part in one 140-byte binary SMS.
	BinarySMSLimits = Limits{MaxParts: 16, PartSize: 140 - HeaderSize}
	// HTTPLimits sends every transmission as a single part of up to 1 MiB.
	HTTPLimits = Limits{MaxParts: 1, PartSize: 1 << 20}
	// LoopbackLimits is the default for in-process networks.
	LoopbackLimits = BinarySMSLimits
)

// LimitsFor returns the default limits of a transport kind.
func LimitsFor(kind format.TransportKind) Limits {
	switch kind {
	case format.TransportHTTP:
		return HTTPLimits
	case format.TransportBinarySMS:
		return BinarySMSLimits
	default:
		return LoopbackLimits
	}
}

// MaxPayloadBytes returns the largest transmission body that can be split.
func (l Limits) MaxPayloadBytes() int {
	return l.MaxParts * l.PartSize
}

// Validate checks that the limits can be expressed in part headers.
func (l Limits) Validate() error {
	if l.MaxParts < 1 || l.MaxParts > format.MaxParts {
		return fmt.Errorf("%w: max parts %d not in [1, %d]", errs.ErrValueOutOfRange, l.MaxParts, format.MaxParts)
	}
	if l.PartSize < 1 {
		return fmt.Errorf("%w: part size %d", errs.ErrValueOutOfRange, l.PartSize)
	}

	return nil
}

func (l Limits) String() string {
	return fmt.Sprintf("%d x %d bytes", l.MaxParts, l.PartSize)
}
