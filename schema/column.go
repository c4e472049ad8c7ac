package schema

import (
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/arloliu/courier/bitstream"
	"github.com/arloliu/courier/errs"
)

// Kind identifies the value type of a column.
type Kind uint8

const (
	KindBool Kind = iota + 1
	KindInt
	KindFloat
	KindString
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// ParseKind returns the kind named s.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{KindBool, KindInt, KindFloat, KindString, KindTime} {
		if k.String() == s {
			return k, nil
		}
	}

	return 0, fmt.Errorf("%w: column kind %q", errs.ErrInvalidValue, s)
}

// Column is one typed field of a Schema.
//
// Values passed to WriteValue must have been normalised by Normalize (Record.Set
// does this); ReadValue returns normalised values.
type Column interface {
	Name() string
	Kind() Kind
	// Optional reports whether the column may hold nil; such columns carry a presence bit.
	Optional() bool
	// Local reports whether the column stays on the device and is never transmitted.
	Local() bool
	// Normalize converts v to the column's canonical Go type and validates it.
	Normalize(v any) (any, error)
	// WriteValue writes v, including the presence bit of optional columns.
	WriteValue(w *bitstream.Writer, v any, lossless bool) error
	// ReadValue reads a value written by WriteValue.
	ReadValue(r *bitstream.Reader, lossless bool) (any, error)
	// MinBits returns the fewest bits any value of this column occupies.
	MinBits(lossless bool) int

	descriptor() ColumnDescriptor
}

// ColumnOption configures the flags shared by every column kind.
type ColumnOption func(*columnBase)

// Optional marks a column as nullable.
func Optional() ColumnOption {
	return func(c *columnBase) { c.optional = true }
}

// Local marks a column as never transmitted.
func Local() ColumnOption {
	return func(c *columnBase) { c.local = true }
}

type columnBase struct {
	name     string
	optional bool
	local    bool
}

func newBase(name string, opts []ColumnOption) columnBase {
	b := columnBase{name: name}
	for _, opt := range opts {
		opt(&b)
	}

	return b
}

func (c *columnBase) Name() string   { return c.name }
func (c *columnBase) Optional() bool { return c.optional }
func (c *columnBase) Local() bool    { return c.local }

// writePresence writes the presence bit of optional columns and reports
// whether a value follows.
func (c *columnBase) writePresence(w *bitstream.Writer, v any) (bool, error) {
	if v == nil {
		if !c.optional {
			return false, fmt.Errorf("%w: column %q is nil", errs.ErrRecordNotFilled, c.name)
		}

		return false, w.WriteBool(false)
	}
	if c.optional {
		return true, w.WriteBool(true)
	}

	return true, nil
}

func (c *columnBase) readPresence(r *bitstream.Reader) (bool, error) {
	if !c.optional {
		return true, nil
	}

	return r.ReadBool()
}

func (c *columnBase) minBits(valueBits int) int {
	if c.optional {
		return 1
	}

	return valueBits
}

func (c *columnBase) typeError(v any, want string) error {
	return fmt.Errorf("%w: column %q wants %s, got %T", errs.ErrInvalidValue, c.name, want, v)
}

func (c *columnBase) baseDescriptor(kind Kind) ColumnDescriptor {
	return ColumnDescriptor{Name: c.name, Kind: kind.String(), Optional: c.optional, Local: c.local}
}

// BoolColumn holds bool values.
type BoolColumn struct {
	columnBase
}

var _ Column = (*BoolColumn)(nil)

// NewBoolColumn creates a bool column.
func NewBoolColumn(name string, opts ...ColumnOption) *BoolColumn {
	return &BoolColumn{columnBase: newBase(name, opts)}
}

func (c *BoolColumn) Kind() Kind { return KindBool }

func (c *BoolColumn) Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil, c.typeError(v, "bool")
	}

	return b, nil
}

func (c *BoolColumn) WriteValue(w *bitstream.Writer, v any, _ bool) error {
	present, err := c.writePresence(w, v)
	if err != nil || !present {
		return err
	}

	return w.WriteBool(v.(bool))
}

func (c *BoolColumn) ReadValue(r *bitstream.Reader, _ bool) (any, error) {
	present, err := c.readPresence(r)
	if err != nil || !present {
		return nil, err
	}

	return r.ReadBool()
}

func (c *BoolColumn) MinBits(bool) int { return c.minBits(1) }

func (c *BoolColumn) descriptor() ColumnDescriptor { return c.baseDescriptor(KindBool) }

// IntColumn holds int64 values within [min, max], stored in the minimal number of bits.
type IntColumn struct {
	columnBase
	rng bitstream.IntRange
}

var _ Column = (*IntColumn)(nil)

// NewIntColumn creates an integer column accepting [lo, hi].
// Panics if hi < lo.
func NewIntColumn(name string, lo, hi int64, opts ...ColumnOption) *IntColumn {
	return &IntColumn{columnBase: newBase(name, opts), rng: bitstream.NewIntRange(lo, hi)}
}

func (c *IntColumn) Kind() Kind { return KindInt }

// Range returns the range mapping of the column.
func (c *IntColumn) Range() bitstream.IntRange { return c.rng }

func (c *IntColumn) Normalize(v any) (any, error) {
	var n int64
	switch x := v.(type) {
	case nil:
		return nil, nil
	case int:
		n = int64(x)
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, fmt.Errorf("%w: column %q value %d", errs.ErrValueOutOfRange, c.name, x)
		}
		n = int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("%w: column %q value %d", errs.ErrValueOutOfRange, c.name, x)
		}
		n = int64(x)
	default:
		return nil, c.typeError(v, "an integer")
	}
	if !c.rng.Contains(n) {
		return nil, fmt.Errorf("%w: column %q value %d not in %s", errs.ErrValueOutOfRange, c.name, n, c.rng)
	}

	return n, nil
}

func (c *IntColumn) WriteValue(w *bitstream.Writer, v any, _ bool) error {
	present, err := c.writePresence(w, v)
	if err != nil || !present {
		return err
	}

	return c.rng.Write(w, v.(int64))
}

func (c *IntColumn) ReadValue(r *bitstream.Reader, _ bool) (any, error) {
	present, err := c.readPresence(r)
	if err != nil || !present {
		return nil, err
	}

	return c.rng.Read(r)
}

func (c *IntColumn) MinBits(bool) int { return c.minBits(c.rng.Size()) }

func (c *IntColumn) descriptor() ColumnDescriptor {
	d := c.baseDescriptor(KindInt)
	lo, hi := c.rng.Low(), c.rng.High()
	d.Min, d.Max = &lo, &hi

	return d
}

// FloatColumn holds float64 values. Lossy mode stores them as float32.
type FloatColumn struct {
	columnBase
}

var _ Column = (*FloatColumn)(nil)

// NewFloatColumn creates a floating point column.
func NewFloatColumn(name string, opts ...ColumnOption) *FloatColumn {
	return &FloatColumn{columnBase: newBase(name, opts)}
}

func (c *FloatColumn) Kind() Kind { return KindFloat }

func (c *FloatColumn) Normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	default:
		return nil, c.typeError(v, "a float")
	}
}

func (c *FloatColumn) WriteValue(w *bitstream.Writer, v any, lossless bool) error {
	present, err := c.writePresence(w, v)
	if err != nil || !present {
		return err
	}
	f := v.(float64)
	if lossless {
		return w.WriteBits(math.Float64bits(f), 64)
	}

	return w.WriteBits(uint64(math.Float32bits(float32(f))), 32)
}

func (c *FloatColumn) ReadValue(r *bitstream.Reader, lossless bool) (any, error) {
	present, err := c.readPresence(r)
	if err != nil || !present {
		return nil, err
	}
	if lossless {
		raw, err := r.ReadBits(64)
		if err != nil {
			return nil, err
		}

		return math.Float64frombits(raw), nil
	}

	raw, err := r.ReadBits(32)
	if err != nil {
		return nil, err
	}

	return float64(math.Float32frombits(uint32(raw))), nil
}

func (c *FloatColumn) MinBits(lossless bool) int {
	if lossless {
		return c.minBits(64)
	}

	return c.minBits(32)
}

func (c *FloatColumn) descriptor() ColumnDescriptor { return c.baseDescriptor(KindFloat) }

// StringColumn holds UTF-8 strings of at most MaxLength bytes, length prefixed.
type StringColumn struct {
	columnBase
	length bitstream.IntRange
}

var _ Column = (*StringColumn)(nil)

// DefaultStringMaxLength is the byte limit of string columns declared without one.
const DefaultStringMaxLength = 255

// NewStringColumn creates a string column holding at most maxLength bytes.
// A maxLength <= 0 selects DefaultStringMaxLength.
func NewStringColumn(name string, maxLength int, opts ...ColumnOption) *StringColumn {
	if maxLength <= 0 {
		maxLength = DefaultStringMaxLength
	}

	return &StringColumn{columnBase: newBase(name, opts), length: bitstream.NewIntRange(0, int64(maxLength))}
}

func (c *StringColumn) Kind() Kind { return KindString }

// MaxLength returns the byte limit of the column.
func (c *StringColumn) MaxLength() int { return int(c.length.High()) }

func (c *StringColumn) Normalize(v any) (any, error) {
	var s string
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		return nil, c.typeError(v, "a string")
	}
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("%w: column %q holds invalid UTF-8", errs.ErrInvalidValue, c.name)
	}
	if len(s) > c.MaxLength() {
		return nil, fmt.Errorf("%w: column %q string of %d bytes, max %d", errs.ErrValueOutOfRange, c.name, len(s), c.MaxLength())
	}

	return s, nil
}

func (c *StringColumn) WriteValue(w *bitstream.Writer, v any, _ bool) error {
	present, err := c.writePresence(w, v)
	if err != nil || !present {
		return err
	}
	s := v.(string)
	if err := c.length.Write(w, int64(len(s))); err != nil {
		return err
	}

	return w.WriteBytes([]byte(s))
}

func (c *StringColumn) ReadValue(r *bitstream.Reader, _ bool) (any, error) {
	present, err := c.readPresence(r)
	if err != nil || !present {
		return nil, err
	}
	n, err := c.length.ReadInt(r)
	if err != nil {
		return nil, err
	}
	b, err := r.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(b) {
		return nil, fmt.Errorf("%w: column %q holds invalid UTF-8", errs.ErrFormat, c.name)
	}

	return string(b), nil
}

func (c *StringColumn) MinBits(bool) int { return c.minBits(c.length.Size()) }

func (c *StringColumn) descriptor() ColumnDescriptor {
	d := c.baseDescriptor(KindString)
	d.MaxLength = c.MaxLength()

	return d
}

var (
	lossyTimeRange    = bitstream.IntRangeForSize(-(1 << 39), 40)
	losslessTimeRange = bitstream.NewIntRange(math.MinInt64, math.MaxInt64)
)

// TimeColumn holds instants. Lossless mode keeps milliseconds, lossy mode whole seconds.
type TimeColumn struct {
	columnBase
}

var _ Column = (*TimeColumn)(nil)

// NewTimeColumn creates a time column.
func NewTimeColumn(name string, opts ...ColumnOption) *TimeColumn {
	return &TimeColumn{columnBase: newBase(name, opts)}
}

func (c *TimeColumn) Kind() Kind { return KindTime }

func (c *TimeColumn) Normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if !lossyTimeRange.Contains(x.Unix()) {
			return nil, fmt.Errorf("%w: column %q time %s", errs.ErrValueOutOfRange, c.name, x)
		}

		return x.Truncate(time.Millisecond).UTC(), nil
	default:
		return nil, c.typeError(v, "a time.Time")
	}
}

func (c *TimeColumn) WriteValue(w *bitstream.Writer, v any, lossless bool) error {
	present, err := c.writePresence(w, v)
	if err != nil || !present {
		return err
	}
	t := v.(time.Time)
	if lossless {
		return losslessTimeRange.Write(w, t.UnixMilli())
	}

	return lossyTimeRange.Write(w, t.Unix())
}

func (c *TimeColumn) ReadValue(r *bitstream.Reader, lossless bool) (any, error) {
	present, err := c.readPresence(r)
	if err != nil || !present {
		return nil, err
	}
	if lossless {
		ms, err := losslessTimeRange.Read(r)
		if err != nil {
			return nil, err
		}

		return time.UnixMilli(ms).UTC(), nil
	}

	s, err := lossyTimeRange.Read(r)
	if err != nil {
		return nil, err
	}

	return time.Unix(s, 0).UTC(), nil
}

func (c *TimeColumn) MinBits(lossless bool) int {
	if lossless {
		return c.minBits(losslessTimeRange.Size())
	}

	return c.minBits(lossyTimeRange.Size())
}

func (c *TimeColumn) descriptor() ColumnDescriptor { return c.baseDescriptor(KindTime) }

// valuesEqual compares two normalised values of the same column.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}

	return a == b
}
