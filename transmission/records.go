package transmission

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/arloliu/courier/schema"
)

// RecordStore is the application's record storage as seen by the controller.
type RecordStore interface {
	// RetrieveUnsent returns the transmittable records of model that were not sent yet.
	RetrieveUnsent(ctx context.Context, model *schema.Model) ([]*schema.Record, error)
	// Store saves records received from a correspondent.
	Store(ctx context.Context, from Correspondent, records []*schema.Record) error
	// MarkSent records that records went out in transmission t.
	MarkSent(ctx context.Context, records []*schema.Record, t *Transmission) error
	// MarkReceived records that transmission t was acknowledged by its receiver.
	MarkReceived(ctx context.Context, t *Transmission) error
}

// ReceivedRecord is a record kept by MemoryRecordStore.Store.
type ReceivedRecord struct {
	From   uuid.UUID
	Record *schema.Record
}

type recordEntry struct {
	record    *schema.Record
	sentIn    uint64
	delivered bool
}

// MemoryRecordStore is a RecordStore kept in memory. It is used by the CLI
// and tests.
type MemoryRecordStore struct {
	mu       sync.Mutex
	entries  []*recordEntry
	received []ReceivedRecord
}

var _ RecordStore = (*MemoryRecordStore)(nil)

// NewMemoryRecordStore creates an empty record store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{}
}

// Add queues local records for sending.
func (s *MemoryRecordStore) Add(records ...*schema.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		s.entries = append(s.entries, &recordEntry{record: r})
	}
}

func (s *MemoryRecordStore) RetrieveUnsent(_ context.Context, model *schema.Model) ([]*schema.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*schema.Record
	for _, e := range s.entries {
		sc := e.record.Schema()
		if e.sentIn == 0 && sc.Transmittable() && model.Owns(sc) {
			out = append(out, e.record)
		}
	}

	return out, nil
}

func (s *MemoryRecordStore) Store(_ context.Context, from Correspondent, records []*schema.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		s.received = append(s.received, ReceivedRecord{From: from.ID, Record: r})
	}

	return nil
}

func (s *MemoryRecordStore) MarkSent(_ context.Context, records []*schema.Record, t *Transmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sent := make(map[*schema.Record]struct{}, len(records))
	for _, r := range records {
		sent[r] = struct{}{}
	}
	for _, e := range s.entries {
		if _, ok := sent[e.record]; ok {
			e.sentIn = t.LocalID
		}
	}

	return nil
}

func (s *MemoryRecordStore) MarkReceived(_ context.Context, t *Transmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.sentIn == t.LocalID {
			e.delivered = true
		}
	}

	return nil
}

// Received returns the records stored so far, in arrival order.
func (s *MemoryRecordStore) Received() []ReceivedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ReceivedRecord, len(s.received))
	copy(out, s.received)

	return out
}

// Delivered returns the local records whose transmission was acknowledged.
func (s *MemoryRecordStore) Delivered() []*schema.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*schema.Record
	for _, e := range s.entries {
		if e.delivered {
			out = append(out, e.record)
		}
	}

	return out
}

// Unsent returns the number of queued records not sent yet.
func (s *MemoryRecordStore) Unsent() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if e.sentIn == 0 {
			n++
		}
	}

	return n
}
