package transmission

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
	"github.com/arloliu/courier/transport"
)

func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"bolt": func(t *testing.T) Store {
			s, err := OpenBoltStore(filepath.Join(t.TempDir(), "courier.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })

			return s
		},
	}
}

func sampleTransmission(t *testing.T, s Store, dir Direction, corr uuid.UUID) *Transmission {
	t.Helper()

	id, err := s.NextLocalID(context.Background())
	require.NoError(t, err)
	parts, err := transport.Split([]byte("a transmission body spanning parts"), uint32(id), transport.Limits{MaxParts: 8, PartSize: 10})
	require.NoError(t, err)

	return &Transmission{
		LocalID:       id,
		SenderID:      uint32(id),
		Correspondent: corr,
		Kind:          format.TransportBinarySMS,
		Direction:     dir,
		PayloadType:   format.PayloadRecords,
		PayloadHash:   parts[0].PayloadHash,
		CreatedAt:     time.Unix(1_700_000_000, 123).UTC(),
		Parts:         parts,
		TotalParts:    len(parts),
	}
}

func TestStore_Transmissions(t *testing.T) {
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			corr := uuid.New()

			first, err := s.NextLocalID(ctx)
			require.NoError(t, err)
			require.Equal(t, uint64(1), first)

			out := sampleTransmission(t, s, Outgoing, corr)
			require.Equal(t, uint64(2), out.LocalID)
			require.NoError(t, s.Put(ctx, out))
			require.ErrorIs(t, s.Put(ctx, &Transmission{}), errs.ErrInvalidValue)

			got, err := s.Get(ctx, out.LocalID)
			require.NoError(t, err)
			require.Equal(t, out, got)

			// returned copies are detached from the store
			got.Parts[0].Index = 99
			got.TotalParts = 1
			again, err := s.Get(ctx, out.LocalID)
			require.NoError(t, err)
			require.Equal(t, out, again)

			_, err = s.Get(ctx, 1000)
			require.ErrorIs(t, err, errs.ErrNotFound)

			sentAt := time.Unix(1_700_000_100, 0).UTC()
			updated, err := s.Update(ctx, out.LocalID, func(t *Transmission) error {
				t.SentAt = sentAt
				return nil
			})
			require.NoError(t, err)
			require.Equal(t, sentAt, updated.SentAt)
			require.Equal(t, StatusSent, updated.Status())

			_, err = s.Update(ctx, 1000, func(*Transmission) error { return nil })
			require.ErrorIs(t, err, errs.ErrNotFound)
			_, err = s.Update(ctx, out.LocalID, func(*Transmission) error { return errs.ErrFormat })
			require.ErrorIs(t, err, errs.ErrFormat)

			found, err := s.FindOutgoing(ctx, out.SenderID, out.PayloadHash)
			require.NoError(t, err)
			require.Equal(t, out.LocalID, found.LocalID)
			_, err = s.FindOutgoing(ctx, out.SenderID, out.PayloadHash+1)
			require.ErrorIs(t, err, errs.ErrNotFound)

			in := sampleTransmission(t, s, Incoming, corr)
			in.Parts = in.Parts[1:]
			in.UpdatedAt = time.Unix(1_700_000_200, 0).UTC()
			require.NoError(t, s.Put(ctx, in))

			found, err = s.FindIncoming(ctx, in.Key())
			require.NoError(t, err)
			require.Equal(t, in, found)
			require.Equal(t, StatusPartial, found.Status())
			_, err = s.FindIncoming(ctx, out.Key())
			require.ErrorIs(t, err, errs.ErrNotFound, "outgoing transmissions are not indexed as incoming")

			all, err := s.List(ctx, nil)
			require.NoError(t, err)
			require.Len(t, all, 2)
			require.Equal(t, out.LocalID, all[0].LocalID)
			require.Equal(t, in.LocalID, all[1].LocalID)

			incoming, err := s.List(ctx, func(t *Transmission) bool { return t.Direction == Incoming })
			require.NoError(t, err)
			require.Len(t, incoming, 1)

			require.NoError(t, s.Delete(ctx, in.LocalID))
			require.NoError(t, s.Delete(ctx, in.LocalID))
			_, err = s.FindIncoming(ctx, in.Key())
			require.ErrorIs(t, err, errs.ErrNotFound)
		})
	}
}

func TestStore_Correspondents(t *testing.T) {
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			zoe, err := NewCorrespondent("zoe", "+15550100", format.TransportBinarySMS)
			require.NoError(t, err)
			adam, err := NewCorrespondent("adam", "http://adam.example", format.TransportHTTP)
			require.NoError(t, err)
			require.NoError(t, s.PutCorrespondent(ctx, zoe))
			require.NoError(t, s.PutCorrespondent(ctx, adam))
			require.ErrorIs(t, s.PutCorrespondent(ctx, Correspondent{Name: "x"}), errs.ErrInvalidValue)

			got, err := s.Correspondent(ctx, zoe.ID)
			require.NoError(t, err)
			require.Equal(t, zoe, got)
			_, err = s.Correspondent(ctx, uuid.New())
			require.ErrorIs(t, err, errs.ErrNotFound)

			got, err = s.FindCorrespondent(ctx, format.TransportHTTP, "http://adam.example")
			require.NoError(t, err)
			require.Equal(t, adam, got)
			_, err = s.FindCorrespondent(ctx, format.TransportHTTP, "+15550100")
			require.ErrorIs(t, err, errs.ErrNotFound)

			all, err := s.Correspondents(ctx)
			require.NoError(t, err)
			require.Equal(t, []Correspondent{adam, zoe}, all)

			out := sampleTransmission(t, s, Outgoing, zoe.ID)
			require.NoError(t, s.Put(ctx, out))
			in := sampleTransmission(t, s, Incoming, zoe.ID)
			require.NoError(t, s.Put(ctx, in))
			other := sampleTransmission(t, s, Outgoing, adam.ID)
			require.NoError(t, s.Put(ctx, other))

			require.NoError(t, s.DeleteCorrespondent(ctx, zoe.ID))
			_, err = s.Correspondent(ctx, zoe.ID)
			require.ErrorIs(t, err, errs.ErrNotFound)
			_, err = s.FindIncoming(ctx, in.Key())
			require.ErrorIs(t, err, errs.ErrNotFound)

			left, err := s.List(ctx, nil)
			require.NoError(t, err)
			require.Len(t, left, 1)
			require.Equal(t, other.LocalID, left[0].LocalID)
		})
	}
}

func TestBoltStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "courier.db")

	s, err := OpenBoltStore(path)
	require.NoError(t, err)
	corr, err := NewCorrespondent("base", "+15550199", format.TransportBinarySMS)
	require.NoError(t, err)
	require.NoError(t, s.PutCorrespondent(ctx, corr))
	in := sampleTransmission(t, s, Incoming, corr.ID)
	in.ReceivedAt = time.Unix(1_700_000_300, 0).UTC()
	in.ResendRequests = 2
	in.LastResendRequest = time.Unix(1_700_000_250, 0).UTC()
	require.NoError(t, s.Put(ctx, in))
	require.NoError(t, s.Close())

	s, err = OpenBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.FindIncoming(ctx, in.Key())
	require.NoError(t, err)
	require.Equal(t, in, got)
	require.Equal(t, StatusReceived, got.Status())

	next, err := s.NextLocalID(ctx)
	require.NoError(t, err)
	require.Equal(t, in.LocalID+1, next, "the id sequence survives a restart")

	got2, err := s.Correspondent(ctx, corr.ID)
	require.NoError(t, err)
	require.Equal(t, corr, got2)
}
