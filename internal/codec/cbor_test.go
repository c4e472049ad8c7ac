package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type row struct {
	ID      uint64            `cbor:"1,keyasint"`
	Name    string            `cbor:"2,keyasint"`
	Created time.Time         `cbor:"3,keyasint"`
	Labels  map[string]string `cbor:"4,keyasint,omitempty"`
}

func TestMarshal_Deterministic(t *testing.T) {
	r := row{
		ID:      42,
		Name:    "observation",
		Created: time.UnixMicro(1_700_000_000_123_456).UTC(),
		Labels:  map[string]string{"z": "1", "a": "2", "m": "3"},
	}

	first, err := Marshal(r)
	require.NoError(t, err)
	for range 20 {
		again, err := Marshal(r)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}

	var back row
	require.NoError(t, Unmarshal(first, &back))
	require.Equal(t, r.ID, back.ID)
	require.Equal(t, r.Name, back.Name)
	require.True(t, r.Created.Equal(back.Created))
	require.Equal(t, r.Labels, back.Labels)
}

func TestUnmarshal_UnknownFieldsIgnored(t *testing.T) {
	type wider struct {
		ID    uint64 `cbor:"1,keyasint"`
		Extra string `cbor:"9,keyasint"`
	}
	data, err := Marshal(wider{ID: 7, Extra: "future"})
	require.NoError(t, err)

	var r row
	require.NoError(t, Unmarshal(data, &r))
	require.Equal(t, uint64(7), r.ID)
}

func TestUnmarshal_AnyMap(t *testing.T) {
	data, err := Marshal(map[string]any{"k": "v"})
	require.NoError(t, err)

	var v any
	require.NoError(t, Unmarshal(data, &v))
	require.IsType(t, map[string]any{}, v)
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]int{"a": 1})
	require.NoError(t, err)

	diag, err := Diagnose(data)
	require.NoError(t, err)
	require.Equal(t, `{"a": 1}`, diag)
}

func TestUnmarshal_Garbage(t *testing.T) {
	var r row
	require.Error(t, Unmarshal([]byte{0xFF, 0x00}, &r))
}
