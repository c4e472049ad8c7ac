package payload

import (
	"fmt"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
	"github.com/arloliu/courier/internal/options"
	"github.com/arloliu/courier/schema"
)

const (
	// DefaultCapacityBytes is the body capacity of a binary SMS transmission (16 parts of 130 bytes).
	DefaultCapacityBytes = 16 * 130

	// MinCapacityBytes is the smallest accepted capacity; it leaves room for a records header.
	MinCapacityBytes = 16
)

// ColumnFilter returns the columns of s that are never transmitted.
type ColumnFilter func(s *schema.Schema) schema.ColumnSet

// LocalColumns is the default ColumnFilter: it skips the columns declared Local.
func LocalColumns(s *schema.Schema) schema.ColumnSet {
	return s.LocalColumns()
}

// CodecConfig holds the settings of a Codec.
type CodecConfig struct {
	capacityBytes int
	compression   format.CompressionType
	forced        bool
	factoring     bool
	lossless      bool
	filter        ColumnFilter
}

// NewDefaultCodecConfig returns the default settings: SMS capacity, best
// compression, factoring enabled, lossless values, Local columns skipped.
func NewDefaultCodecConfig() *CodecConfig {
	return &CodecConfig{
		capacityBytes: DefaultCapacityBytes,
		factoring:     true,
		lossless:      true,
		filter:        LocalColumns,
	}
}

// CapacityBytes returns the maximum size of an encoded transmission body.
func (c *CodecConfig) CapacityBytes() int { return c.capacityBytes }

// Compression returns the forced compression and whether one is forced.
func (c *CodecConfig) Compression() (format.CompressionType, bool) { return c.compression, c.forced }

// Factoring reports whether constant columns are factored out.
func (c *CodecConfig) Factoring() bool { return c.factoring }

// Lossless reports whether new records payloads encode values at full precision.
func (c *CodecConfig) Lossless() bool { return c.lossless }

func (c *CodecConfig) setCapacity(n int) error {
	if n < MinCapacityBytes {
		return fmt.Errorf("%w: capacity %d bytes, minimum %d", errs.ErrValueOutOfRange, n, MinCapacityBytes)
	}
	c.capacityBytes = n

	return nil
}

func (c *CodecConfig) setCompression(ct format.CompressionType) error {
	if !ct.IsWire() {
		return fmt.Errorf("%w: %s cannot be used in a records payload", errs.ErrInvalidValue, ct)
	}
	c.compression = ct
	c.forced = true

	return nil
}

func (c *CodecConfig) candidates() []format.CompressionType {
	if c.forced {
		return []format.CompressionType{c.compression}
	}

	return format.WireCompressions
}

// CodecOption configures a Codec.
type CodecOption = options.Option[*CodecConfig]

// WithCapacity sets the maximum size in bytes of an encoded transmission body.
// Sender and receiver must use the same capacity for a transport kind, since it
// determines the width of the record count fields.
func WithCapacity(bytes int) CodecOption {
	return options.New(func(c *CodecConfig) error {
		return c.setCapacity(bytes)
	})
}

// WithCompression forces one compression mode instead of picking the smallest output.
// Only None, Deflate, Zstd and LZ4 can be announced in a records payload.
func WithCompression(ct format.CompressionType) CodecOption {
	return options.New(func(c *CodecConfig) error {
		return c.setCompression(ct)
	})
}

// WithBestCompression restores the default: every wire compression is tried and
// the smallest output wins.
func WithBestCompression() CodecOption {
	return options.NoError(func(c *CodecConfig) {
		c.forced = false
	})
}

// WithFactoring enables or disables factoring of constant columns.
func WithFactoring(enabled bool) CodecOption {
	return options.NoError(func(c *CodecConfig) {
		c.factoring = enabled
	})
}

// WithLossless selects full-precision (true) or compact (false) value encoding
// for records payloads created by the codec.
func WithLossless(lossless bool) CodecOption {
	return options.NoError(func(c *CodecConfig) {
		c.lossless = lossless
	})
}

// WithColumnFilter sets the function selecting columns that are never transmitted.
func WithColumnFilter(filter ColumnFilter) CodecOption {
	return options.New(func(c *CodecConfig) error {
		if filter == nil {
			return fmt.Errorf("%w: nil column filter", errs.ErrInvalidValue)
		}
		c.filter = filter

		return nil
	})
}
