package schema

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/arloliu/courier/bitstream"
	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/internal/collision"
)

// ModelIDBits is the width of a model id on the wire.
const ModelIDBits = 56

// MaxModelID is the largest model id.
const MaxModelID = 1<<ModelIDBits - 1

// ModelIDRange maps model ids onto their wire field.
var ModelIDRange = bitstream.IntRangeForSize(0, ModelIDBits)

// Model is an identified, versioned, ordered collection of schemata.
type Model struct {
	id       uint64
	name     string
	version  int
	schemata []*Schema
	byName   map[string]*Schema
}

// NewModel creates a model whose id is derived from its descriptor.
// The schemata join the model and cannot be added to another one.
func NewModel(name string, version int, schemata ...*Schema) (*Model, error) {
	m, err := newModel(name, version, schemata)
	if err != nil {
		return nil, err
	}

	id, err := DeriveModelID(m.Descriptor())
	if err != nil {
		return nil, err
	}
	m.adopt(id)

	return m, nil
}

// NewModelWithID creates a model with an explicit id.
func NewModelWithID(id uint64, name string, version int, schemata ...*Schema) (*Model, error) {
	if id > MaxModelID {
		return nil, fmt.Errorf("%w: model id %d exceeds %d bits", errs.ErrValueOutOfRange, id, ModelIDBits)
	}
	m, err := newModel(name, version, schemata)
	if err != nil {
		return nil, err
	}
	m.adopt(id)

	return m, nil
}

func newModel(name string, version int, schemata []*Schema) (*Model, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty model name", errs.ErrInvalidValue)
	}
	if len(schemata) == 0 {
		return nil, fmt.Errorf("%w: model %q has no schemata", errs.ErrInvalidValue, name)
	}

	tracker := collision.NewTracker("schema")
	byName := make(map[string]*Schema, len(schemata))
	for _, s := range schemata {
		if s == nil {
			return nil, fmt.Errorf("%w: model %q holds a nil schema", errs.ErrInvalidValue, name)
		}
		if s.owned {
			return nil, fmt.Errorf("%w: schema %q already belongs to model %d", errs.ErrInvalidValue, s.name, s.modelID)
		}
		if err := tracker.Track(s.name); err != nil {
			return nil, fmt.Errorf("model %q: %w", name, err)
		}
		byName[s.name] = s
	}

	return &Model{
		name:     name,
		version:  version,
		schemata: append([]*Schema(nil), schemata...),
		byName:   byName,
	}, nil
}

func (m *Model) adopt(id uint64) {
	m.id = id
	for i, s := range m.schemata {
		s.owned = true
		s.modelID = id
		s.position = i
	}
}

// MustNewModel is NewModel panicking on error, for static declarations.
func MustNewModel(name string, version int, schemata ...*Schema) *Model {
	m, err := NewModel(name, version, schemata...)
	if err != nil {
		panic(err)
	}

	return m
}

// DeriveModelID returns the first 56 bits of the BLAKE3 digest of the
// descriptor's CBOR encoding, ignoring any id it carries.
func DeriveModelID(d Descriptor) (uint64, error) {
	d.ID = 0
	data, err := MarshalDescriptor(d)
	if err != nil {
		return 0, err
	}
	sum := blake3.Sum256(data)

	var buf [8]byte
	copy(buf[1:], sum[:7])

	return binary.BigEndian.Uint64(buf[:]), nil
}

// ID returns the 56-bit model id.
func (m *Model) ID() uint64 { return m.id }

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// Version returns the model version.
func (m *Model) Version() int { return m.version }

// NumSchemata returns the number of schemata.
func (m *Model) NumSchemata() int { return len(m.schemata) }

// Schemata returns the schemata in model order. The slice must not be modified.
func (m *Model) Schemata() []*Schema { return m.schemata }

// SchemaAt returns the schema at position i.
func (m *Model) SchemaAt(i int) *Schema { return m.schemata[i] }

// Schema returns the schema called name.
func (m *Model) Schema(name string) (*Schema, bool) {
	s, ok := m.byName[name]
	return s, ok
}

// Owns reports whether s is one of the model's schemata.
func (m *Model) Owns(s *Schema) bool {
	return s != nil && s.owned && s.modelID == m.id && s.position < len(m.schemata) && m.schemata[s.position] == s
}

func (m *Model) String() string {
	return fmt.Sprintf("model %q v%d (id %#x)", m.name, m.version, m.id)
}
