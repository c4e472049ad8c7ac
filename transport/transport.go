package transport

import (
	"context"

	"github.com/arloliu/courier/format"
)

// Transport sends framed parts to a correspondent address.
//
// Implementations wrap delivery failures with errs.ErrTransportFailure and
// must be safe for concurrent use.
type Transport interface {
	// Kind returns the transport kind, matched against a correspondent's kind.
	Kind() format.TransportKind
	// Limits returns the part limits of the transport.
	Limits() Limits
	// Send delivers one part to address.
	Send(ctx context.Context, address string, p Part) error
}

// Receiver consumes parts arriving from the peer at address from.
type Receiver func(ctx context.Context, from string, p Part) error
