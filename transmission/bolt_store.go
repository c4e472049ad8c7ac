package transmission

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/arloliu/courier/compress"
	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
	"github.com/arloliu/courier/internal/codec"
	"github.com/arloliu/courier/transport"
)

var (
	transmissionsBucket  = []byte("transmissions")
	incomingBucket       = []byte("incoming")
	correspondentsBucket = []byte("correspondents")
)

// BoltStore is a Store on top of a bbolt database file.
//
// Transmissions are CBOR rows keyed by their big-endian local id; part bodies
// are S2 compressed. A secondary bucket indexes incoming transmissions by key.
type BoltStore struct {
	db    *bbolt.DB
	parts compress.Codec
}

var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens or creates the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{transmissionsBucket, incomingBucket, correspondentsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}

		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	parts, err := compress.CreateCodec(format.CompressionS2, "store")
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db, parts: parts}, nil
}

type partRow struct {
	Index int    `cbor:"1,keyasint"`
	Body  []byte `cbor:"2,keyasint"`
}

type transmissionRow struct {
	LocalID           uint64    `cbor:"1,keyasint"`
	SenderID          uint32    `cbor:"2,keyasint"`
	Correspondent     uuid.UUID `cbor:"3,keyasint"`
	Kind              uint8     `cbor:"4,keyasint"`
	Direction         uint8     `cbor:"5,keyasint"`
	PayloadType       uint8     `cbor:"6,keyasint"`
	PayloadHash       uint32    `cbor:"7,keyasint"`
	CreatedAt         int64     `cbor:"8,keyasint,omitempty"`
	SentAt            int64     `cbor:"9,keyasint,omitempty"`
	ReceivedAt        int64     `cbor:"10,keyasint,omitempty"`
	TotalParts        int       `cbor:"11,keyasint,omitempty"`
	Parts             []partRow `cbor:"12,keyasint,omitempty"`
	ResendRequests    int       `cbor:"13,keyasint,omitempty"`
	LastResendRequest int64     `cbor:"14,keyasint,omitempty"`
	PendingModelID    uint64    `cbor:"15,keyasint,omitempty"`
	UpdatedAt         int64     `cbor:"16,keyasint,omitempty"`
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}

	return time.Unix(0, n).UTC()
}

func (s *BoltStore) encodeRow(t *Transmission) ([]byte, error) {
	row := transmissionRow{
		LocalID:           t.LocalID,
		SenderID:          t.SenderID,
		Correspondent:     t.Correspondent,
		Kind:              uint8(t.Kind),
		Direction:         uint8(t.Direction),
		PayloadType:       uint8(t.PayloadType),
		PayloadHash:       t.PayloadHash,
		CreatedAt:         unixNano(t.CreatedAt),
		SentAt:            unixNano(t.SentAt),
		ReceivedAt:        unixNano(t.ReceivedAt),
		TotalParts:        t.TotalParts,
		ResendRequests:    t.ResendRequests,
		LastResendRequest: unixNano(t.LastResendRequest),
		PendingModelID:    t.PendingModelID,
		UpdatedAt:         unixNano(t.UpdatedAt),
	}
	for _, p := range t.Parts {
		body, err := s.parts.Compress(p.Body)
		if err != nil {
			return nil, err
		}
		row.Parts = append(row.Parts, partRow{Index: p.Index, Body: body})
	}

	return codec.Marshal(row)
}

func (s *BoltStore) decodeRow(data []byte) (*Transmission, error) {
	var row transmissionRow
	if err := codec.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("%w: transmission row: %w", errs.ErrFormat, err)
	}

	t := &Transmission{
		LocalID:           row.LocalID,
		SenderID:          row.SenderID,
		Correspondent:     row.Correspondent,
		Kind:              format.TransportKind(row.Kind),
		Direction:         Direction(row.Direction),
		PayloadType:       format.PayloadType(row.PayloadType),
		PayloadHash:       row.PayloadHash,
		CreatedAt:         fromUnixNano(row.CreatedAt),
		SentAt:            fromUnixNano(row.SentAt),
		ReceivedAt:        fromUnixNano(row.ReceivedAt),
		TotalParts:        row.TotalParts,
		ResendRequests:    row.ResendRequests,
		LastResendRequest: fromUnixNano(row.LastResendRequest),
		PendingModelID:    row.PendingModelID,
		UpdatedAt:         fromUnixNano(row.UpdatedAt),
	}
	for _, pr := range row.Parts {
		body, err := s.parts.Decompress(pr.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: part %d of transmission %d: %w", errs.ErrFormat, pr.Index, row.LocalID, err)
		}
		t.Parts = append(t.Parts, transport.Part{
			SenderID:    row.SenderID,
			Index:       pr.Index,
			Total:       row.TotalParts,
			PayloadHash: row.PayloadHash,
			Body:        body,
		})
	}

	return t, nil
}

func idKey(id uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, id)

	return k
}

func incomingKey(k Key) []byte {
	b := make([]byte, 0, 24)
	b = append(b, k.Correspondent[:]...)
	b = binary.BigEndian.AppendUint32(b, k.SenderID)

	return binary.BigEndian.AppendUint32(b, k.PayloadHash)
}

func (s *BoltStore) NextLocalID(context.Context) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		id, err = tx.Bucket(transmissionsBucket).NextSequence()
		return err
	})

	return id, err
}

func (s *BoltStore) Put(_ context.Context, t *Transmission) error {
	if t.LocalID == 0 {
		return fmt.Errorf("%w: transmission without local id", errs.ErrInvalidValue)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return s.put(tx, t)
	})
}

func (s *BoltStore) put(tx *bbolt.Tx, t *Transmission) error {
	data, err := s.encodeRow(t)
	if err != nil {
		return err
	}
	if err := s.unindex(tx, t.LocalID); err != nil {
		return err
	}
	if err := tx.Bucket(transmissionsBucket).Put(idKey(t.LocalID), data); err != nil {
		return err
	}
	if t.Direction == Incoming {
		return tx.Bucket(incomingBucket).Put(incomingKey(t.Key()), idKey(t.LocalID))
	}

	return nil
}

// unindex drops the incoming index entry of the stored version of a transmission.
func (s *BoltStore) unindex(tx *bbolt.Tx, localID uint64) error {
	old, err := s.get(tx, localID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if old.Direction == Incoming {
		return tx.Bucket(incomingBucket).Delete(incomingKey(old.Key()))
	}

	return nil
}

func (s *BoltStore) get(tx *bbolt.Tx, localID uint64) (*Transmission, error) {
	data := tx.Bucket(transmissionsBucket).Get(idKey(localID))
	if data == nil {
		return nil, fmt.Errorf("%w: transmission %d", errs.ErrNotFound, localID)
	}

	return s.decodeRow(data)
}

func (s *BoltStore) Get(_ context.Context, localID uint64) (*Transmission, error) {
	var t *Transmission
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		t, err = s.get(tx, localID)
		return err
	})

	return t, err
}

func (s *BoltStore) Update(_ context.Context, localID uint64, fn func(t *Transmission) error) (*Transmission, error) {
	var t *Transmission
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		if t, err = s.get(tx, localID); err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		t.LocalID = localID

		return s.put(tx, t)
	})
	if err != nil {
		return nil, err
	}

	return t, nil
}

func (s *BoltStore) FindOutgoing(_ context.Context, senderID, payloadHash uint32) (*Transmission, error) {
	var found *Transmission
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(transmissionsBucket).Cursor()
		// newest first
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			t, err := s.decodeRow(v)
			if err != nil {
				return err
			}
			if t.Direction == Outgoing && t.SenderID == senderID && t.PayloadHash == payloadHash {
				found = t
				return nil
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: outgoing transmission %d/%#08x", errs.ErrNotFound, senderID, payloadHash)
	}

	return found, nil
}

func (s *BoltStore) FindIncoming(_ context.Context, k Key) (*Transmission, error) {
	var t *Transmission
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(incomingBucket).Get(incomingKey(k))
		if id == nil {
			return fmt.Errorf("%w: incoming transmission %s", errs.ErrNotFound, k)
		}
		var err error
		t, err = s.get(tx, binary.BigEndian.Uint64(id))

		return err
	})

	return t, err
}

func (s *BoltStore) List(_ context.Context, filter Filter) ([]*Transmission, error) {
	var out []*Transmission
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(transmissionsBucket).ForEach(func(_, v []byte) error {
			t, err := s.decodeRow(v)
			if err != nil {
				return err
			}
			if filter == nil || filter(t) {
				out = append(out, t)
			}

			return nil
		})
	})

	return out, err
}

func (s *BoltStore) Delete(_ context.Context, localID uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return s.delete(tx, localID)
	})
}

func (s *BoltStore) delete(tx *bbolt.Tx, localID uint64) error {
	if err := s.unindex(tx, localID); err != nil {
		return err
	}

	return tx.Bucket(transmissionsBucket).Delete(idKey(localID))
}

func (s *BoltStore) PutCorrespondent(_ context.Context, c Correspondent) error {
	if c.ID == uuid.Nil {
		return fmt.Errorf("%w: correspondent without id", errs.ErrInvalidValue)
	}
	data, err := codec.Marshal(c)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(correspondentsBucket).Put(c.ID[:], data)
	})
}

func (s *BoltStore) Correspondent(_ context.Context, id uuid.UUID) (Correspondent, error) {
	var c Correspondent
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(correspondentsBucket).Get(id[:])
		if data == nil {
			return fmt.Errorf("%w: correspondent %s", errs.ErrNotFound, id)
		}

		return codec.Unmarshal(data, &c)
	})

	return c, err
}

func (s *BoltStore) FindCorrespondent(ctx context.Context, kind format.TransportKind, address string) (Correspondent, error) {
	all, err := s.Correspondents(ctx)
	if err != nil {
		return Correspondent{}, err
	}
	for _, c := range all {
		if c.Kind == kind && c.Address == address {
			return c, nil
		}
	}

	return Correspondent{}, fmt.Errorf("%w: %s correspondent at %q", errs.ErrNotFound, kind, address)
}

func (s *BoltStore) Correspondents(context.Context) ([]Correspondent, error) {
	var out []Correspondent
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(correspondentsBucket).ForEach(func(_, v []byte) error {
			var c Correspondent
			if err := codec.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("%w: correspondent row: %w", errs.ErrFormat, err)
			}
			out = append(out, c)

			return nil
		})
	})
	sortCorrespondents(out)

	return out, err
}

func (s *BoltStore) DeleteCorrespondent(_ context.Context, id uuid.UUID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(correspondentsBucket).Delete(id[:]); err != nil {
			return err
		}

		var doomed []uint64
		err := tx.Bucket(transmissionsBucket).ForEach(func(k, v []byte) error {
			t, err := s.decodeRow(v)
			if err != nil {
				return err
			}
			if t.Correspondent == id {
				doomed = append(doomed, binary.BigEndian.Uint64(k))
			}

			return nil
		})
		if err != nil {
			return err
		}
		for _, localID := range doomed {
			if err := s.delete(tx, localID); err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
