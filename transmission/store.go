package transmission

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
)

// Filter selects transmissions in Store.List. A nil Filter selects all.
type Filter func(t *Transmission) bool

// Store persists transmissions and correspondents.
//
// Implementations return copies: mutating a returned transmission does not
// change the stored one until it is put back. All methods are safe for
// concurrent use.
type Store interface {
	// NextLocalID reserves a new local transmission id. Ids start at 1.
	NextLocalID(ctx context.Context) (uint64, error)
	// Put inserts or replaces t.
	Put(ctx context.Context, t *Transmission) error
	// Get returns the transmission with the given local id, or ErrNotFound.
	Get(ctx context.Context, localID uint64) (*Transmission, error)
	// Update applies fn to the stored transmission atomically and returns the result.
	Update(ctx context.Context, localID uint64, fn func(t *Transmission) error) (*Transmission, error)
	// FindOutgoing returns the latest outgoing transmission with the given wire identity, or ErrNotFound.
	FindOutgoing(ctx context.Context, senderID, payloadHash uint32) (*Transmission, error)
	// FindIncoming returns the incoming transmission with key k, or ErrNotFound.
	FindIncoming(ctx context.Context, k Key) (*Transmission, error)
	// List returns the transmissions selected by filter, ordered by local id.
	List(ctx context.Context, filter Filter) ([]*Transmission, error)
	// Delete removes a transmission. Deleting a missing id is not an error.
	Delete(ctx context.Context, localID uint64) error

	// PutCorrespondent inserts or replaces c.
	PutCorrespondent(ctx context.Context, c Correspondent) error
	// Correspondent returns the correspondent with the given id, or ErrNotFound.
	Correspondent(ctx context.Context, id uuid.UUID) (Correspondent, error)
	// FindCorrespondent returns the correspondent with the given kind and address, or ErrNotFound.
	FindCorrespondent(ctx context.Context, kind format.TransportKind, address string) (Correspondent, error)
	// Correspondents returns all correspondents ordered by name.
	Correspondents(ctx context.Context) ([]Correspondent, error)
	// DeleteCorrespondent removes a correspondent and all its transmissions.
	DeleteCorrespondent(ctx context.Context, id uuid.UUID) error

	Close() error
}

// MemoryStore is a Store kept in memory.
type MemoryStore struct {
	mu             sync.RWMutex
	seq            uint64
	transmissions  map[uint64]*Transmission
	incoming       map[Key]uint64
	correspondents map[uuid.UUID]Correspondent
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transmissions:  make(map[uint64]*Transmission),
		incoming:       make(map[Key]uint64),
		correspondents: make(map[uuid.UUID]Correspondent),
	}
}

func (s *MemoryStore) NextLocalID(context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++

	return s.seq, nil
}

func (s *MemoryStore) Put(_ context.Context, t *Transmission) error {
	if t.LocalID == 0 {
		return fmt.Errorf("%w: transmission without local id", errs.ErrInvalidValue)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(t.Clone())

	return nil
}

func (s *MemoryStore) put(t *Transmission) {
	if old, ok := s.transmissions[t.LocalID]; ok && old.Direction == Incoming {
		delete(s.incoming, old.Key())
	}
	s.transmissions[t.LocalID] = t
	if t.Direction == Incoming {
		s.incoming[t.Key()] = t.LocalID
	}
}

func (s *MemoryStore) Get(_ context.Context, localID uint64) (*Transmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transmissions[localID]
	if !ok {
		return nil, fmt.Errorf("%w: transmission %d", errs.ErrNotFound, localID)
	}

	return t.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, localID uint64, fn func(t *Transmission) error) (*Transmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transmissions[localID]
	if !ok {
		return nil, fmt.Errorf("%w: transmission %d", errs.ErrNotFound, localID)
	}
	updated := t.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}
	updated.LocalID = localID
	s.put(updated)

	return updated.Clone(), nil
}

func (s *MemoryStore) FindOutgoing(_ context.Context, senderID, payloadHash uint32) (*Transmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *Transmission
	for _, t := range s.transmissions {
		if t.Direction != Outgoing || t.SenderID != senderID || t.PayloadHash != payloadHash {
			continue
		}
		if found == nil || t.LocalID > found.LocalID {
			found = t
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: outgoing transmission %d/%#08x", errs.ErrNotFound, senderID, payloadHash)
	}

	return found.Clone(), nil
}

func (s *MemoryStore) FindIncoming(_ context.Context, k Key) (*Transmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.incoming[k]
	if !ok {
		return nil, fmt.Errorf("%w: incoming transmission %s", errs.ErrNotFound, k)
	}

	return s.transmissions[id].Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, filter Filter) ([]*Transmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Transmission
	for _, t := range s.transmissions {
		if filter == nil || filter(t) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalID < out[j].LocalID })

	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, localID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.transmissions[localID]; ok {
		if t.Direction == Incoming {
			delete(s.incoming, t.Key())
		}
		delete(s.transmissions, localID)
	}

	return nil
}

func (s *MemoryStore) PutCorrespondent(_ context.Context, c Correspondent) error {
	if c.ID == uuid.Nil {
		return fmt.Errorf("%w: correspondent without id", errs.ErrInvalidValue)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.correspondents[c.ID] = c

	return nil
}

func (s *MemoryStore) Correspondent(_ context.Context, id uuid.UUID) (Correspondent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.correspondents[id]
	if !ok {
		return Correspondent{}, fmt.Errorf("%w: correspondent %s", errs.ErrNotFound, id)
	}

	return c, nil
}

func (s *MemoryStore) FindCorrespondent(_ context.Context, kind format.TransportKind, address string) (Correspondent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.correspondents {
		if c.Kind == kind && c.Address == address {
			return c, nil
		}
	}

	return Correspondent{}, fmt.Errorf("%w: %s correspondent at %q", errs.ErrNotFound, kind, address)
}

func (s *MemoryStore) Correspondents(context.Context) ([]Correspondent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Correspondent, 0, len(s.correspondents))
	for _, c := range s.correspondents {
		out = append(out, c)
	}
	sortCorrespondents(out)

	return out, nil
}

func (s *MemoryStore) DeleteCorrespondent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.correspondents, id)
	for localID, t := range s.transmissions {
		if t.Correspondent != id {
			continue
		}
		if t.Direction == Incoming {
			delete(s.incoming, t.Key())
		}
		delete(s.transmissions, localID)
	}

	return nil
}

func (s *MemoryStore) Close() error { return nil }

func sortCorrespondents(cs []Correspondent) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Name != cs[j].Name {
			return cs[i].Name < cs[j].Name
		}

		return cs[i].ID.String() < cs[j].ID.String()
	})
}
