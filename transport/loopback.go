package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
	"github.com/arloliu/courier/internal/logging"
	"github.com/arloliu/courier/internal/options"
	"github.com/arloliu/courier/internal/pool"
)

// Interceptor rewrites the delivery of a part sent from one loopback address
// to another. It returns the parts to deliver right away: nil drops p,
// returning p twice duplicates it. Parts held back can be delivered later
// with Network.Deliver, which reorders them.
type Interceptor func(from, to string, p Part) []Part

// NetworkConfig holds the settings of a loopback Network.
type NetworkConfig struct {
	limits      Limits
	interceptor Interceptor
}

// NetworkOption configures a loopback Network.
type NetworkOption = options.Option[*NetworkConfig]

// WithLimits sets the part limits of every transport of the network.
func WithLimits(l Limits) NetworkOption {
	return options.New(func(c *NetworkConfig) error {
		if err := l.Validate(); err != nil {
			return err
		}
		c.limits = l

		return nil
	})
}

// WithInterceptor installs an interceptor applied to every sent part.
func WithInterceptor(fn Interceptor) NetworkOption {
	return options.NoError(func(c *NetworkConfig) {
		c.interceptor = fn
	})
}

// Network is an in-process network of loopback transports. Parts are framed
// and parsed on the way, then handed synchronously to the receiver listening
// on the destination address.
type Network struct {
	mu        sync.RWMutex
	receivers map[string]Receiver
	cfg       NetworkConfig
	log       *logging.Logger
}

// NewNetwork creates an empty loopback network.
func NewNetwork(opts ...NetworkOption) (*Network, error) {
	cfg := NetworkConfig{limits: LoopbackLimits}
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	return &Network{
		receivers: make(map[string]Receiver),
		cfg:       cfg,
		log:       logging.MustGetLogger("loopback"),
	}, nil
}

// Listen registers recv as the receiver of parts sent to address, replacing any previous one.
func (n *Network) Listen(address string, recv Receiver) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.receivers[address] = recv
}

// Remove unregisters the receiver of address. Later sends to it fail.
func (n *Network) Remove(address string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.receivers, address)
}

// SetInterceptor replaces the interceptor; nil delivers every part unchanged.
func (n *Network) SetInterceptor(fn Interceptor) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cfg.interceptor = fn
}

// Transport returns the transport used by the peer at address from.
func (n *Network) Transport(from string) *Loopback {
	return &Loopback{net: n, from: from}
}

// Deliver hands p to the receiver of to, bypassing the interceptor.
func (n *Network) Deliver(ctx context.Context, from, to string, p Part) error {
	n.mu.RLock()
	recv, ok := n.receivers[to]
	n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no loopback peer at %q", errs.ErrTransportFailure, to)
	}

	frame := pool.GetFrameBuffer()
	defer pool.PutFrameBuffer(frame)

	var err error
	if frame.B, err = p.AppendTo(frame.B); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrTransportFailure, err)
	}
	parsed, err := ParsePart(frame.Bytes())
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrTransportFailure, err)
	}

	return recv(ctx, from, parsed)
}

func (n *Network) send(ctx context.Context, from, to string, p Part) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrTransportFailure, err)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrTransportFailure, err)
	}
	if len(p.Body) > n.cfg.limits.PartSize {
		return fmt.Errorf("%w: part body of %d bytes exceeds %d", errs.ErrTransportFailure, len(p.Body), n.cfg.limits.PartSize)
	}

	n.mu.RLock()
	intercept := n.cfg.interceptor
	_, ok := n.receivers[to]
	n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no loopback peer at %q", errs.ErrTransportFailure, to)
	}

	deliver := []Part{p}
	if intercept != nil {
		deliver = intercept(from, to, p)
	}
	for _, q := range deliver {
		if err := n.Deliver(ctx, from, to, q); err != nil {
			// the receiver's own failures do not fail the sender
			n.log.WithError(err).WithField("to", to).Warn("Loopback delivery failed")
		}
	}

	return nil
}

// Loopback is the Transport of one peer of a Network.
type Loopback struct {
	net  *Network
	from string
}

var _ Transport = (*Loopback)(nil)

// Address returns the address of the peer owning the transport.
func (l *Loopback) Address() string { return l.from }

func (l *Loopback) Kind() format.TransportKind { return format.TransportLoopback }

func (l *Loopback) Limits() Limits { return l.net.cfg.limits }

func (l *Loopback) Send(ctx context.Context, address string, p Part) error {
	return l.net.send(ctx, l.from, address, p)
}
