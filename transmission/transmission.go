package transmission

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/courier/format"
	"github.com/arloliu/courier/internal/hash"
	"github.com/arloliu/courier/transport"
)

// Direction tells sent and received transmissions apart.
type Direction uint8

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}

	return "outgoing"
}

// Status summarises where a transmission is in its life cycle.
type Status uint8

const (
	StatusPending       Status = iota // outgoing, not completely sent yet
	StatusSent                        // outgoing, sent and waiting for an ack if one is due
	StatusAcknowledged                // outgoing, acknowledged by the receiver
	StatusPartial                     // incoming, parts missing
	StatusReceived                    // incoming, complete and handled
	StatusAwaitingModel               // incoming, complete but its model is unknown
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSent:
		return "sent"
	case StatusAcknowledged:
		return "acknowledged"
	case StatusPartial:
		return "partial"
	case StatusReceived:
		return "received"
	case StatusAwaitingModel:
		return "awaiting-model"
	default:
		return "unknown"
	}
}

// Key identifies a transmission between two peers.
type Key struct {
	Correspondent uuid.UUID
	SenderID      uint32
	PayloadHash   uint32
}

func (k Key) shard(n int) int {
	return int(hash.AssemblyKey(k.Correspondent.String(), k.SenderID, k.PayloadHash) % uint64(n))
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%#08x", k.Correspondent, k.SenderID, k.PayloadHash)
}

// Transmission is one payload on its way to or from a correspondent.
type Transmission struct {
	// LocalID is assigned by the Store and unique per peer.
	LocalID uint64
	// SenderID is the id on the wire: the sender's local id truncated to 24 bits.
	SenderID      uint32
	Correspondent uuid.UUID
	Kind          format.TransportKind
	Direction     Direction
	PayloadType   format.PayloadType
	PayloadHash   uint32

	CreatedAt time.Time
	// SentAt is when the last part was handed to the transport (outgoing only).
	SentAt time.Time
	// ReceivedAt is when the transmission was completely received; for outgoing
	// transmissions it is the time reported by the receiver's ack.
	ReceivedAt time.Time

	// Parts are ordered by index. Incoming transmissions hold the parts received so far.
	Parts []transport.Part
	// TotalParts is the number of parts of the transmission, 0 while unknown.
	TotalParts int
	// UpdatedAt is when the last new part arrived (incoming only).
	UpdatedAt time.Time

	ResendRequests    int
	LastResendRequest time.Time

	// PendingModelID is the unknown model of a received records payload, 0 otherwise.
	PendingModelID uint64
}

// Key returns the key of the transmission.
func (t *Transmission) Key() Key {
	return Key{Correspondent: t.Correspondent, SenderID: t.SenderID, PayloadHash: t.PayloadHash}
}

// Acknowledged reports whether an outgoing transmission has been acknowledged.
func (t *Transmission) Acknowledged() bool {
	return t.Direction == Outgoing && !t.ReceivedAt.IsZero()
}

// Complete reports whether an incoming transmission has every part.
func (t *Transmission) Complete() bool {
	return t.Direction == Incoming && !t.ReceivedAt.IsZero()
}

// Status returns the life cycle status.
func (t *Transmission) Status() Status {
	switch {
	case t.Direction == Outgoing && t.Acknowledged():
		return StatusAcknowledged
	case t.Direction == Outgoing && !t.SentAt.IsZero():
		return StatusSent
	case t.Direction == Outgoing:
		return StatusPending
	case t.PendingModelID != 0:
		return StatusAwaitingModel
	case t.Complete():
		return StatusReceived
	default:
		return StatusPartial
	}
}

// PartIndices returns the indices of the parts held, ascending.
func (t *Transmission) PartIndices() []int {
	out := make([]int, len(t.Parts))
	for i, p := range t.Parts {
		out[i] = p.Index
	}

	return out
}

// Part returns the part with the given 1-based index.
func (t *Transmission) Part(index int) (transport.Part, bool) {
	i, ok := slices.BinarySearchFunc(t.Parts, index, func(p transport.Part, idx int) int {
		return p.Index - idx
	})
	if !ok {
		return transport.Part{}, false
	}

	return t.Parts[i], true
}

// addPart inserts p keeping the parts ordered. It reports false for a known index.
func (t *Transmission) addPart(p transport.Part) bool {
	i, found := slices.BinarySearchFunc(t.Parts, p.Index, func(q transport.Part, idx int) int {
		return q.Index - idx
	})
	if found {
		return false
	}
	t.Parts = slices.Insert(t.Parts, i, p)

	return true
}

// Clone returns a copy that shares part bodies but no other state.
func (t *Transmission) Clone() *Transmission {
	c := *t
	c.Parts = slices.Clone(t.Parts)

	return &c
}

func (t *Transmission) String() string {
	return fmt.Sprintf("Transmission{id=%d, %s %s, sender_id=%d, hash=%#08x, parts=%d/%d, status=%s}",
		t.LocalID, t.Direction, t.PayloadType, t.SenderID, t.PayloadHash, len(t.Parts), t.TotalParts, t.Status())
}
