package payload

import (
	"fmt"
	"slices"
	"time"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
	"github.com/arloliu/courier/schema"
)

// Payload is the content of a transmission. The set of implementations is
// closed: *Records, *Ack, *ResendRequest, *ModelRequest, *Model and *Custom.
type Payload interface {
	// Type returns the payload type code written at the start of the transmission body.
	Type() format.PayloadType
	// Acknowledged reports whether the receiver answers this payload with an Ack.
	Acknowledged() bool

	isPayload()
}

// Ack acknowledges the complete reception of a transmission.
type Ack struct {
	// SubjectSenderID is the sender-side id of the acknowledged transmission.
	SubjectSenderID uint32
	// SubjectHash is the payload hash of the acknowledged transmission.
	SubjectHash uint32
	// ReceivedAt is when the subject was completely received, in whole seconds.
	ReceivedAt time.Time
}

var _ Payload = (*Ack)(nil)

func (*Ack) Type() format.PayloadType { return format.PayloadAck }
func (*Ack) Acknowledged() bool       { return false }
func (*Ack) isPayload()               {}

// Matches reports whether the ack applies to the transmission with the given sender id and hash.
func (a *Ack) Matches(senderID, payloadHash uint32) bool {
	return a.SubjectSenderID == senderID && a.SubjectHash == payloadHash
}

func (a *Ack) String() string {
	return fmt.Sprintf("Ack{sender_id=%d, hash=%#08x, received_at=%s}", a.SubjectSenderID, a.SubjectHash, a.ReceivedAt.UTC().Format(time.RFC3339))
}

// ResendRequest asks the sender of a transmission to send some of its parts again.
type ResendRequest struct {
	SubjectSenderID uint32
	SubjectHash     uint32
	// TotalParts is the number of parts of the subject transmission.
	TotalParts int
	// Parts lists the requested 1-based part indices in ascending order.
	Parts []int
}

var _ Payload = (*ResendRequest)(nil)

// NewResendRequest creates a resend request for parts of a transmission split into total parts.
func NewResendRequest(senderID, payloadHash uint32, total int, parts []int) (*ResendRequest, error) {
	rr := &ResendRequest{
		SubjectSenderID: senderID,
		SubjectHash:     payloadHash,
		TotalParts:      total,
		Parts:           slices.Compact(slices.Sorted(slices.Values(parts))),
	}
	if err := rr.validate(); err != nil {
		return nil, err
	}

	return rr, nil
}

func (*ResendRequest) Type() format.PayloadType { return format.PayloadResendRequest }
func (*ResendRequest) Acknowledged() bool       { return false }
func (*ResendRequest) isPayload()               {}

// Matches reports whether the request applies to the transmission with the given sender id and hash.
func (rr *ResendRequest) Matches(senderID, payloadHash uint32) bool {
	return rr.SubjectSenderID == senderID && rr.SubjectHash == payloadHash
}

func (rr *ResendRequest) validate() error {
	if rr.TotalParts < 1 || rr.TotalParts > format.MaxParts {
		return fmt.Errorf("%w: resend request for %d parts", errs.ErrValueOutOfRange, rr.TotalParts)
	}
	if len(rr.Parts) == 0 {
		return fmt.Errorf("%w: resend request names no parts", errs.ErrInvalidValue)
	}
	for _, p := range rr.Parts {
		if p < 1 || p > rr.TotalParts {
			return fmt.Errorf("%w: part %d of %d", errs.ErrValueOutOfRange, p, rr.TotalParts)
		}
	}

	return nil
}

func (rr *ResendRequest) String() string {
	return fmt.Sprintf("ResendRequest{sender_id=%d, hash=%#08x, parts=%v/%d}", rr.SubjectSenderID, rr.SubjectHash, rr.Parts, rr.TotalParts)
}

// ModelRequest asks a peer for the descriptor of a model it referred to.
type ModelRequest struct {
	ModelID uint64
}

var _ Payload = (*ModelRequest)(nil)

func (*ModelRequest) Type() format.PayloadType { return format.PayloadModelRequest }
func (*ModelRequest) Acknowledged() bool       { return false }
func (*ModelRequest) isPayload()               {}

func (mr *ModelRequest) String() string {
	return fmt.Sprintf("ModelRequest{model=%#x}", mr.ModelID)
}

// Model carries a model descriptor, the answer to a ModelRequest.
type Model struct {
	Descriptor schema.Descriptor
}

var _ Payload = (*Model)(nil)

// NewModel creates a Model payload describing m.
func NewModel(m *schema.Model) *Model {
	return &Model{Descriptor: m.Descriptor()}
}

func (*Model) Type() format.PayloadType { return format.PayloadModel }
func (*Model) Acknowledged() bool       { return true }
func (*Model) isPayload()               {}

func (m *Model) String() string {
	return fmt.Sprintf("Model{id=%#x, name=%q, version=%d}", m.Descriptor.ID, m.Descriptor.Name, m.Descriptor.Version)
}

// Custom is an application payload the core does not interpret.
type Custom struct {
	Code format.PayloadType
	Data []byte
}

var _ Payload = (*Custom)(nil)

// NewCustom creates a custom payload. The code must be in [5, 31].
func NewCustom(code format.PayloadType, data []byte) (*Custom, error) {
	if !code.IsCustom() {
		return nil, fmt.Errorf("%w: custom payload code %d", errs.ErrValueOutOfRange, code)
	}

	return &Custom{Code: code, Data: data}, nil
}

func (c *Custom) Type() format.PayloadType { return c.Code }
func (*Custom) Acknowledged() bool         { return false }
func (*Custom) isPayload()                 {}

func (c *Custom) String() string {
	return fmt.Sprintf("Custom{code=%d, bytes=%d}", c.Code, len(c.Data))
}
