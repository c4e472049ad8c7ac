package schema

import (
	"fmt"
	"strings"

	"github.com/arloliu/courier/bitstream"
	"github.com/arloliu/courier/errs"
)

// Record assigns one value per column of its schema. Values are stored
// normalised (see Column.Normalize); nil means "no value".
type Record struct {
	schema *Schema
	values []any
}

// NewRecord returns an empty record of s.
func (s *Schema) NewRecord() *Record {
	return &Record{schema: s, values: make([]any, len(s.columns))}
}

// NewRecord creates a record of s from positional values. Missing trailing values stay nil.
func NewRecord(s *Schema, values ...any) (*Record, error) {
	if len(values) > len(s.columns) {
		return nil, fmt.Errorf("%w: %d values for %d columns of schema %q", errs.ErrInvalidValue, len(values), len(s.columns), s.name)
	}

	r := s.NewRecord()
	for i, v := range values {
		if err := r.SetAt(i, v); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Schema returns the schema of the record.
func (r *Record) Schema() *Schema { return r.schema }

// Set assigns v to the column called name.
func (r *Record) Set(name string, v any) error {
	i, ok := r.schema.ColumnIndex(name)
	if !ok {
		return fmt.Errorf("%w: schema %q has no column %q", errs.ErrInvalidValue, r.schema.name, name)
	}

	return r.SetAt(i, v)
}

// SetAt assigns v to the column at index i.
func (r *Record) SetAt(i int, v any) error {
	if i < 0 || i >= len(r.values) {
		return fmt.Errorf("%w: column index %d of schema %q", errs.ErrValueOutOfRange, i, r.schema.name)
	}
	nv, err := r.schema.columns[i].Normalize(v)
	if err != nil {
		return err
	}
	r.values[i] = nv

	return nil
}

// Get returns the value of the column called name.
func (r *Record) Get(name string) any {
	i, ok := r.schema.ColumnIndex(name)
	if !ok {
		return nil
	}

	return r.values[i]
}

// At returns the value of the column at index i.
func (r *Record) At(i int) any { return r.values[i] }

// IsFilled reports whether every non-optional column outside skip holds a value.
func (r *Record) IsFilled(skip ColumnSet) bool {
	return len(r.Unfilled(skip)) == 0
}

// Unfilled returns the names of non-optional columns outside skip that hold no value.
func (r *Record) Unfilled(skip ColumnSet) []string {
	var names []string
	for i, c := range r.schema.columns {
		if !skip.Has(i) && !c.Optional() && r.values[i] == nil {
			names = append(names, c.Name())
		}
	}

	return names
}

// Equal reports whether o has the same schema and the same values.
func (r *Record) Equal(o *Record) bool {
	return r.EqualExcept(o, nil)
}

// EqualExcept is Equal ignoring the columns in skip.
func (r *Record) EqualExcept(o *Record, skip ColumnSet) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.schema != o.schema {
		return false
	}
	for i := range r.values {
		if skip.Has(i) {
			continue
		}
		if !valuesEqual(r.values[i], o.values[i]) {
			return false
		}
	}

	return true
}

// Clone returns a copy of r sharing its schema.
func (r *Record) Clone() *Record {
	return &Record{schema: r.schema, values: append([]any(nil), r.values...)}
}

// Encode writes the values of all columns outside skip, in schema order.
func (r *Record) Encode(w *bitstream.Writer, skip ColumnSet, lossless bool) error {
	for i, c := range r.schema.columns {
		if skip.Has(i) {
			continue
		}
		if err := c.WriteValue(w, r.values[i], lossless); err != nil {
			return fmt.Errorf("schema %q column %q: %w", r.schema.name, c.Name(), err)
		}
	}

	return nil
}

// DecodeRecord reads a record written by Encode. Columns in skip are left nil.
// On error the partially decoded record is returned with the error.
func DecodeRecord(s *Schema, rd *bitstream.Reader, skip ColumnSet, lossless bool) (*Record, error) {
	r := s.NewRecord()
	for i, c := range s.columns {
		if skip.Has(i) {
			continue
		}
		v, err := c.ReadValue(rd, lossless)
		if err != nil {
			return r, fmt.Errorf("schema %q column %q: %w", s.name, c.Name(), err)
		}
		r.values[i] = v
	}

	return r, nil
}

func (r *Record) String() string {
	var sb strings.Builder
	sb.WriteString(r.schema.name)
	sb.WriteByte('{')
	for i, c := range r.schema.columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %v", c.Name(), r.values[i])
	}
	sb.WriteByte('}')

	return sb.String()
}
