package collision

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/courier/errs"
)

func TestTracker_Track(t *testing.T) {
	tr := NewTracker("column")

	require.NoError(t, tr.Track("id"))
	require.NoError(t, tr.Track("temperature"))
	require.NoError(t, tr.Track("Temperature"), "names are case sensitive")

	err := tr.Track("temperature")
	require.ErrorIs(t, err, errs.ErrDuplicateName)
	require.ErrorContains(t, err, `column "temperature"`)

	err = tr.Track("")
	require.ErrorIs(t, err, errs.ErrInvalidValue)
}

func TestTracker_Many(t *testing.T) {
	tr := NewTracker("column")
	for i := range 1000 {
		require.NoError(t, tr.Track(fmt.Sprintf("col_%d", i)))
	}
	for i := range 1000 {
		require.ErrorIs(t, tr.Track(fmt.Sprintf("col_%d", i)), errs.ErrDuplicateName)
	}
}
