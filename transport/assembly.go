package transport

import (
	"fmt"
	"time"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/internal/hash"
)

// State is the reassembly state of an incoming transmission.
type State uint8

const (
	StateEmpty    State = iota // no part received yet
	StatePartial               // some parts received
	StateComplete              // every part received
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "Empty"
	case StatePartial:
		return "Partial"
	case StateComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Assembly collects the parts of one incoming transmission.
//
// Assembly is not safe for concurrent use; the transmission controller
// guards each assembly with its shard lock.
type Assembly struct {
	senderID    uint32
	payloadHash uint32
	total       int
	bodies      [][]byte
	received    int
	firstSeen   time.Time
	lastSeen    time.Time
}

// NewAssembly creates an empty assembly for the transmission identified by senderID and payloadHash.
func NewAssembly(senderID, payloadHash uint32) *Assembly {
	return &Assembly{senderID: senderID, payloadHash: payloadHash}
}

// SenderID returns the sender-side id of the transmission.
func (a *Assembly) SenderID() uint32 { return a.senderID }

// PayloadHash returns the payload hash of the transmission.
func (a *Assembly) PayloadHash() uint32 { return a.payloadHash }

// Total returns the number of parts, 0 while empty.
func (a *Assembly) Total() int { return a.total }

// Received returns the number of distinct parts received.
func (a *Assembly) Received() int { return a.received }

// FirstSeen returns when the first part arrived.
func (a *Assembly) FirstSeen() time.Time { return a.firstSeen }

// LastSeen returns when the most recent new part arrived.
func (a *Assembly) LastSeen() time.Time { return a.lastSeen }

// State returns the reassembly state.
func (a *Assembly) State() State {
	switch {
	case a.received == 0:
		return StateEmpty
	case a.received < a.total:
		return StatePartial
	default:
		return StateComplete
	}
}

// Complete reports whether every part has been received.
func (a *Assembly) Complete() bool {
	return a.State() == StateComplete
}

// Add records p, received at now.
//
// Returns:
//   - bool: false when p duplicates a part already received
//   - error: ErrProtocolMismatch when p belongs to another transmission or disagrees on the total
func (a *Assembly) Add(p Part, now time.Time) (bool, error) {
	if p.SenderID != a.senderID || p.PayloadHash != a.payloadHash {
		return false, fmt.Errorf("%w: %s added to assembly of transmission %d/%#08x", errs.ErrProtocolMismatch, p, a.senderID, a.payloadHash)
	}
	if err := p.Validate(); err != nil {
		return false, err
	}

	if a.total == 0 {
		a.total = p.Total
		a.bodies = make([][]byte, p.Total)
		a.firstSeen = now
	} else if p.Total != a.total {
		return false, fmt.Errorf("%w: %s, earlier parts announced %d parts", errs.ErrProtocolMismatch, p, a.total)
	}

	if a.bodies[p.Index-1] != nil {
		return false, nil
	}
	body := p.Body
	if body == nil {
		body = []byte{}
	}
	a.bodies[p.Index-1] = body
	a.received++
	a.lastSeen = now

	return true, nil
}

// Missing returns the 1-based indices of the parts not received yet, ascending.
// It returns nil while the total is unknown.
func (a *Assembly) Missing() []int {
	var missing []int
	for i, b := range a.bodies {
		if b == nil {
			missing = append(missing, i+1)
		}
	}

	return missing
}

// Payload concatenates the part bodies in index order and verifies the payload hash.
func (a *Assembly) Payload() ([]byte, error) {
	if !a.Complete() {
		return nil, fmt.Errorf("%w: transmission %d has %d of %d parts", errs.ErrFormat, a.senderID, a.received, a.total)
	}

	size := 0
	for _, b := range a.bodies {
		size += len(b)
	}
	data := make([]byte, 0, size)
	for _, b := range a.bodies {
		data = append(data, b...)
	}

	if got := hash.Payload(data); got != a.payloadHash {
		return nil, fmt.Errorf("%w: transmission %d payload hash %#08x, announced %#08x", errs.ErrFormat, a.senderID, got, a.payloadHash)
	}

	return data, nil
}
