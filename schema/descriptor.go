package schema

import (
	"fmt"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/internal/codec"
)

// Descriptor is the portable definition of a Model. It is exchanged in Model
// payloads (CBOR) and loaded from configuration files (YAML).
type Descriptor struct {
	ID       uint64             `yaml:"id,omitempty" cbor:"1,keyasint,omitempty"`
	Name     string             `yaml:"name" cbor:"2,keyasint"`
	Version  int                `yaml:"version" cbor:"3,keyasint"`
	Schemata []SchemaDescriptor `yaml:"schemata" cbor:"4,keyasint"`
}

// SchemaDescriptor describes one Schema.
type SchemaDescriptor struct {
	Name string `yaml:"name" cbor:"1,keyasint"`
	// Local schemata are not transmittable.
	Local   bool               `yaml:"local,omitempty" cbor:"2,keyasint,omitempty"`
	Columns []ColumnDescriptor `yaml:"columns" cbor:"3,keyasint"`
}

// ColumnDescriptor describes one Column.
type ColumnDescriptor struct {
	Name     string `yaml:"name" cbor:"1,keyasint"`
	Kind     string `yaml:"kind" cbor:"2,keyasint"`
	Optional bool   `yaml:"optional,omitempty" cbor:"3,keyasint,omitempty"`
	Local    bool   `yaml:"local,omitempty" cbor:"4,keyasint,omitempty"`
	// Min and Max bound int columns.
	Min *int64 `yaml:"min,omitempty" cbor:"5,keyasint,omitempty"`
	Max *int64 `yaml:"max,omitempty" cbor:"6,keyasint,omitempty"`
	// MaxLength bounds string columns, in bytes.
	MaxLength int `yaml:"max_length,omitempty" cbor:"7,keyasint,omitempty"`
}

// Descriptor returns the portable definition of m, including its id.
func (m *Model) Descriptor() Descriptor {
	d := Descriptor{ID: m.id, Name: m.name, Version: m.version}
	for _, s := range m.schemata {
		sd := SchemaDescriptor{Name: s.name, Local: !s.transmittable}
		for _, c := range s.columns {
			sd.Columns = append(sd.Columns, c.descriptor())
		}
		d.Schemata = append(d.Schemata, sd)
	}

	return d
}

// FromDescriptor builds a Model. A zero id is derived from the descriptor.
func FromDescriptor(d Descriptor) (*Model, error) {
	schemata := make([]*Schema, 0, len(d.Schemata))
	for _, sd := range d.Schemata {
		columns := make([]Column, 0, len(sd.Columns))
		for _, cd := range sd.Columns {
			c, err := cd.column()
			if err != nil {
				return nil, fmt.Errorf("model %q schema %q: %w", d.Name, sd.Name, err)
			}
			columns = append(columns, c)
		}

		var opts []SchemaOption
		if sd.Local {
			opts = append(opts, NotTransmittable())
		}
		s, err := NewSchema(sd.Name, columns, opts...)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", d.Name, err)
		}
		schemata = append(schemata, s)
	}

	if d.ID == 0 {
		return NewModel(d.Name, d.Version, schemata...)
	}

	return NewModelWithID(d.ID, d.Name, d.Version, schemata...)
}

func (cd ColumnDescriptor) column() (Column, error) {
	kind, err := ParseKind(cd.Kind)
	if err != nil {
		return nil, fmt.Errorf("column %q: %w", cd.Name, err)
	}

	var opts []ColumnOption
	if cd.Optional {
		opts = append(opts, Optional())
	}
	if cd.Local {
		opts = append(opts, Local())
	}

	switch kind {
	case KindBool:
		return NewBoolColumn(cd.Name, opts...), nil
	case KindInt:
		if cd.Min == nil || cd.Max == nil || *cd.Max < *cd.Min {
			return nil, fmt.Errorf("%w: int column %q needs min <= max", errs.ErrInvalidValue, cd.Name)
		}

		return NewIntColumn(cd.Name, *cd.Min, *cd.Max, opts...), nil
	case KindFloat:
		return NewFloatColumn(cd.Name, opts...), nil
	case KindString:
		if cd.MaxLength < 0 {
			return nil, fmt.Errorf("%w: string column %q has negative max_length", errs.ErrInvalidValue, cd.Name)
		}

		return NewStringColumn(cd.Name, cd.MaxLength, opts...), nil
	default:
		return NewTimeColumn(cd.Name, opts...), nil
	}
}

// MarshalDescriptor encodes d as deterministic CBOR.
func MarshalDescriptor(d Descriptor) ([]byte, error) {
	data, err := codec.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal model descriptor %q: %w", d.Name, err)
	}

	return data, nil
}

// UnmarshalDescriptor decodes a descriptor produced by MarshalDescriptor.
func UnmarshalDescriptor(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := codec.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("%w: model descriptor: %v", errs.ErrFormat, err)
	}

	return d, nil
}
