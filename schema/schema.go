package schema

import (
	"fmt"
	"sort"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/internal/collision"
)

// ColumnSet is a set of column indices. The nil set is empty.
type ColumnSet map[int]struct{}

// NewColumnSet returns a set holding indices.
func NewColumnSet(indices ...int) ColumnSet {
	s := make(ColumnSet, len(indices))
	for _, i := range indices {
		s[i] = struct{}{}
	}

	return s
}

// Has reports whether i is in the set.
func (s ColumnSet) Has(i int) bool {
	_, ok := s[i]
	return ok
}

// Union returns a new set holding the indices of s and o.
func (s ColumnSet) Union(o ColumnSet) ColumnSet {
	u := make(ColumnSet, len(s)+len(o))
	for i := range s {
		u[i] = struct{}{}
	}
	for i := range o {
		u[i] = struct{}{}
	}

	return u
}

// Sorted returns the indices in ascending order.
func (s ColumnSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	sort.Ints(out)

	return out
}

// SchemaOption configures a Schema.
type SchemaOption func(*Schema)

// NotTransmittable marks a schema whose records never leave the device.
func NotTransmittable() SchemaOption {
	return func(s *Schema) { s.transmittable = false }
}

// Schema is an ordered, named list of columns.
//
// A Schema is immutable once created. It becomes part of exactly one Model,
// which assigns its model id and position.
type Schema struct {
	name          string
	columns       []Column
	byName        map[string]int
	transmittable bool

	owned    bool
	modelID  uint64
	position int
}

// NewSchema creates a schema. Column names must be unique and non-empty.
func NewSchema(name string, columns []Column, opts ...SchemaOption) (*Schema, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty schema name", errs.ErrInvalidValue)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: schema %q has no columns", errs.ErrInvalidValue, name)
	}

	tracker := collision.NewTracker("column")
	byName := make(map[string]int, len(columns))
	for i, c := range columns {
		if c == nil {
			return nil, fmt.Errorf("%w: schema %q column %d is nil", errs.ErrInvalidValue, name, i)
		}
		if err := tracker.Track(c.Name()); err != nil {
			return nil, fmt.Errorf("schema %q: %w", name, err)
		}
		byName[c.Name()] = i
	}

	s := &Schema{
		name:          name,
		columns:       append([]Column(nil), columns...),
		byName:        byName,
		transmittable: true,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// MustNewSchema is NewSchema panicking on error, for static declarations.
func MustNewSchema(name string, columns []Column, opts ...SchemaOption) *Schema {
	s, err := NewSchema(name, columns, opts...)
	if err != nil {
		panic(err)
	}

	return s
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Transmittable reports whether records of this schema may be sent.
func (s *Schema) Transmittable() bool { return s.transmittable }

// ModelID returns the id of the owning model, 0 before the schema joins one.
func (s *Schema) ModelID() uint64 { return s.modelID }

// Position returns the index of the schema within its model.
func (s *Schema) Position() int { return s.position }

// NumColumns returns the number of columns.
func (s *Schema) NumColumns() int { return len(s.columns) }

// Column returns the column at index i.
func (s *Schema) Column(i int) Column { return s.columns[i] }

// Columns returns the columns in declaration order. The slice must not be modified.
func (s *Schema) Columns() []Column { return s.columns }

// ColumnIndex returns the index of the column called name.
func (s *Schema) ColumnIndex(name string) (int, bool) {
	i, ok := s.byName[name]
	return i, ok
}

// LocalColumns returns the indices of columns that are never transmitted.
func (s *Schema) LocalColumns() ColumnSet {
	set := ColumnSet{}
	for i, c := range s.columns {
		if c.Local() {
			set[i] = struct{}{}
		}
	}

	return set
}

// MinRecordBits returns the smallest encoded size of a record, skipping the columns in skip.
func (s *Schema) MinRecordBits(skip ColumnSet, lossless bool) int {
	n := 0
	for i, c := range s.columns {
		if !skip.Has(i) {
			n += c.MinBits(lossless)
		}
	}

	return n
}

func (s *Schema) String() string {
	return fmt.Sprintf("schema %q (%d columns)", s.name, len(s.columns))
}
