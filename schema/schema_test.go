package schema

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/courier/bitstream"
	"github.com/arloliu/courier/errs"
)

func observationSchema(t *testing.T) *Schema {
	t.Helper()

	s, err := NewSchema("observation", []Column{
		NewIntColumn("local_id", 0, math.MaxInt32, Local()),
		NewIntColumn("device", 0, 1023),
		NewTimeColumn("taken_at"),
		NewFloatColumn("lat"),
		NewFloatColumn("lon"),
		NewStringColumn("note", 40, Optional()),
		NewBoolColumn("flagged"),
	})
	require.NoError(t, err)

	return s
}

func TestColumn_Normalize(t *testing.T) {
	ic := NewIntColumn("n", -5, 5)
	v, err := ic.Normalize(int32(3))
	require.NoError(t, err)
	require.Equal(t, int64(3), v)

	_, err = ic.Normalize(6)
	require.ErrorIs(t, err, errs.ErrValueOutOfRange)

	_, err = ic.Normalize(uint64(math.MaxUint64))
	require.ErrorIs(t, err, errs.ErrValueOutOfRange)

	_, err = ic.Normalize("3")
	require.ErrorIs(t, err, errs.ErrInvalidValue)

	fc := NewFloatColumn("f")
	v, err = fc.Normalize(float32(1.5))
	require.NoError(t, err)
	require.Equal(t, 1.5, v)

	sc := NewStringColumn("s", 4)
	_, err = sc.Normalize("abcde")
	require.ErrorIs(t, err, errs.ErrValueOutOfRange)
	_, err = sc.Normalize(string([]byte{0xff}))
	require.ErrorIs(t, err, errs.ErrInvalidValue)
	require.Equal(t, DefaultStringMaxLength, NewStringColumn("d", 0).MaxLength())

	tc := NewTimeColumn("t")
	at := time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.FixedZone("X", 3600))
	v, err = tc.Normalize(at)
	require.NoError(t, err)
	require.Equal(t, at.Truncate(time.Millisecond).UTC(), v)

	v, err = NewBoolColumn("b").Normalize(nil)
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestColumn_RoundTrip(t *testing.T) {
	at := time.Date(2023, 11, 2, 10, 30, 15, 250_000_000, time.UTC)

	tests := []struct {
		name     string
		col      Column
		value    any
		lossless bool
		want     any
		bits     int
	}{
		{"bool", NewBoolColumn("b"), true, true, true, 1},
		{"int", NewIntColumn("i", -100, 100), int64(-42), false, int64(-42), 8},
		{"float lossless", NewFloatColumn("f"), 0.1, true, 0.1, 64},
		{"float lossy", NewFloatColumn("f"), 0.1, false, float64(float32(0.1)), 32},
		{"string", NewStringColumn("s", 10), "héllo", true, "héllo", 4 + 6*8},
		{"time lossless", NewTimeColumn("t"), at, true, at, 64},
		{"time lossy", NewTimeColumn("t"), at, false, at.Truncate(time.Second), 40},
		{"optional present", NewIntColumn("o", 0, 7, Optional()), int64(5), true, int64(5), 4},
		{"optional absent", NewIntColumn("o", 0, 7, Optional()), nil, true, nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := bitstream.NewWriter(0)
			defer w.Finish()

			v, err := tt.col.Normalize(tt.value)
			require.NoError(t, err)
			require.NoError(t, tt.col.WriteValue(w, v, tt.lossless))
			require.Equal(t, tt.bits, w.BitLen())

			got, err := tt.col.ReadValue(bitstream.NewReader(w.BitArray()), tt.lossless)
			require.NoError(t, err)
			require.True(t, valuesEqual(tt.want, got), "want %v, got %v", tt.want, got)
			require.LessOrEqual(t, tt.col.MinBits(tt.lossless), tt.bits)
		})
	}
}

func TestColumn_NilNotOptional(t *testing.T) {
	w := bitstream.NewWriter(0)
	defer w.Finish()

	err := NewFloatColumn("f").WriteValue(w, nil, true)
	require.ErrorIs(t, err, errs.ErrRecordNotFilled)
}

func TestNewSchema(t *testing.T) {
	s := observationSchema(t)
	require.Equal(t, 7, s.NumColumns())
	require.True(t, s.Transmittable())

	i, ok := s.ColumnIndex("lat")
	require.True(t, ok)
	require.Equal(t, 3, i)
	require.Equal(t, []int{0}, s.LocalColumns().Sorted())

	// device 10 + time 40 + 2 floats 64 + optional note 1 + bool 1
	require.Equal(t, 10+40+64+1+1, s.MinRecordBits(s.LocalColumns(), false))

	_, err := NewSchema("dup", []Column{NewBoolColumn("a"), NewBoolColumn("a")})
	require.ErrorIs(t, err, errs.ErrDuplicateName)

	_, err = NewSchema("", []Column{NewBoolColumn("a")})
	require.ErrorIs(t, err, errs.ErrInvalidValue)

	_, err = NewSchema("empty", nil)
	require.ErrorIs(t, err, errs.ErrInvalidValue)

	hidden := MustNewSchema("hidden", []Column{NewBoolColumn("a")}, NotTransmittable())
	require.False(t, hidden.Transmittable())
}

func TestColumnSet(t *testing.T) {
	var empty ColumnSet
	require.False(t, empty.Has(0))

	u := NewColumnSet(3, 1).Union(NewColumnSet(2))
	require.Equal(t, []int{1, 2, 3}, u.Sorted())
}

func TestModel(t *testing.T) {
	s := observationSchema(t)
	m, err := NewModel("survey", 1, s)
	require.NoError(t, err)

	require.NotZero(t, m.ID())
	require.LessOrEqual(t, m.ID(), uint64(MaxModelID))
	require.Equal(t, m.ID(), s.ModelID())
	require.Equal(t, 0, s.Position())
	require.True(t, m.Owns(s))

	got, ok := m.Schema("observation")
	require.True(t, ok)
	require.Same(t, s, got)

	_, err = NewModel("other", 1, s)
	require.ErrorIs(t, err, errs.ErrInvalidValue, "a schema belongs to one model")

	_, err = NewModelWithID(MaxModelID+1, "big", 1, MustNewSchema("x", []Column{NewBoolColumn("b")}))
	require.ErrorIs(t, err, errs.ErrValueOutOfRange)

	_, err = NewModel("dups", 1,
		MustNewSchema("x", []Column{NewBoolColumn("b")}),
		MustNewSchema("x", []Column{NewBoolColumn("c")}))
	require.ErrorIs(t, err, errs.ErrDuplicateName)
}

func TestModelID_Deterministic(t *testing.T) {
	m1, err := NewModel("survey", 1, observationSchema(t))
	require.NoError(t, err)
	m2, err := NewModel("survey", 1, observationSchema(t))
	require.NoError(t, err)
	require.Equal(t, m1.ID(), m2.ID())

	m3, err := NewModel("survey", 2, observationSchema(t))
	require.NoError(t, err)
	require.NotEqual(t, m1.ID(), m3.ID())
}

func TestDescriptor_RoundTrip(t *testing.T) {
	m, err := NewModel("survey", 3,
		observationSchema(t),
		MustNewSchema("settings", []Column{NewStringColumn("key", 0)}, NotTransmittable()))
	require.NoError(t, err)

	data, err := MarshalDescriptor(m.Descriptor())
	require.NoError(t, err)

	d, err := UnmarshalDescriptor(data)
	require.NoError(t, err)
	require.Equal(t, m.Descriptor(), d)

	back, err := FromDescriptor(d)
	require.NoError(t, err)
	require.Equal(t, m.ID(), back.ID())
	require.Equal(t, m.Descriptor(), back.Descriptor())
	require.False(t, back.SchemaAt(1).Transmittable())

	lat, _ := back.SchemaAt(0).ColumnIndex("lat")
	require.Equal(t, KindFloat, back.SchemaAt(0).Column(lat).Kind())

	// an id-less descriptor derives the same id
	d.ID = 0
	derived, err := FromDescriptor(d)
	require.NoError(t, err)
	require.Equal(t, m.ID(), derived.ID())

	_, err = UnmarshalDescriptor([]byte{0xFF})
	require.ErrorIs(t, err, errs.ErrFormat)
}

func TestDescriptor_Invalid(t *testing.T) {
	_, err := FromDescriptor(Descriptor{
		Name:     "bad",
		Schemata: []SchemaDescriptor{{Name: "s", Columns: []ColumnDescriptor{{Name: "c", Kind: "decimal"}}}},
	})
	require.ErrorIs(t, err, errs.ErrInvalidValue)

	_, err = FromDescriptor(Descriptor{
		Name:     "bad",
		Schemata: []SchemaDescriptor{{Name: "s", Columns: []ColumnDescriptor{{Name: "c", Kind: "int"}}}},
	})
	require.ErrorIs(t, err, errs.ErrInvalidValue)
}

func TestRegistry(t *testing.T) {
	m := MustNewModel("survey", 1, observationSchema(t))
	r, err := NewRegistry(m)
	require.NoError(t, err)

	got, err := r.Model(m.ID())
	require.NoError(t, err)
	require.Same(t, m, got)
	require.True(t, r.Has(m.ID()))

	_, err = r.Model(12345)
	require.ErrorIs(t, err, errs.ErrUnknownModel)

	// same definition again is accepted
	require.NoError(t, r.Register(MustNewModel("survey", 1, observationSchema(t))))

	clash, err := NewModelWithID(m.ID(), "other", 1, MustNewSchema("x", []Column{NewBoolColumn("b")}))
	require.NoError(t, err)
	require.ErrorIs(t, r.Register(clash), errs.ErrModelMismatch)

	require.NoError(t, r.Register(MustNewModel("second", 1, MustNewSchema("y", []Column{NewBoolColumn("b")}))))
	models := r.Models()
	require.Len(t, models, 2)
	require.Less(t, models[0].ID(), models[1].ID())
}
