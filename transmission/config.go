package transmission

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
	"github.com/arloliu/courier/internal/clock"
	"github.com/arloliu/courier/internal/options"
	"github.com/arloliu/courier/payload"
	"github.com/arloliu/courier/transport"
)

const (
	// DefaultResendTimeout is how long a transmission may stay incomplete or
	// unacknowledged before a resend request is issued.
	DefaultResendTimeout = 10 * time.Minute
	// DefaultMaxResendRequests bounds the resend requests issued per transmission.
	DefaultMaxResendRequests = 3
	// DefaultShards is the number of assembly shards.
	DefaultShards = 32
)

// CustomHandler handles application payloads received from a correspondent.
type CustomHandler func(ctx context.Context, from Correspondent, p *payload.Custom) error

// Config holds the controller settings.
type Config struct {
	resendTimeout     time.Duration
	maxResendRequests int
	clock             clock.Clock
	shards            int
	customHandler     CustomHandler
	codecOptions      []payload.CodecOption
	transports        map[format.TransportKind]transport.Transport
}

// NewDefaultConfig returns the default controller settings with no transports.
func NewDefaultConfig() *Config {
	return &Config{
		resendTimeout:     DefaultResendTimeout,
		maxResendRequests: DefaultMaxResendRequests,
		clock:             clock.Real(),
		shards:            DefaultShards,
		transports:        make(map[format.TransportKind]transport.Transport),
	}
}

// ResendTimeout returns the resend timeout.
func (c *Config) ResendTimeout() time.Duration { return c.resendTimeout }

// MaxResendRequests returns the resend request bound per transmission.
func (c *Config) MaxResendRequests() int { return c.maxResendRequests }

// Option configures a Controller.
type Option = options.Option[*Config]

// WithResendTimeout sets the resend timeout. It must be positive.
func WithResendTimeout(d time.Duration) Option {
	return options.New(func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("%w: resend timeout %s", errs.ErrValueOutOfRange, d)
		}
		c.resendTimeout = d

		return nil
	})
}

// WithMaxResendRequests sets how many resend requests a transmission may
// trigger. Zero disables resend requests.
func WithMaxResendRequests(n int) Option {
	return options.New(func(c *Config) error {
		if n < 0 {
			return fmt.Errorf("%w: max resend requests %d", errs.ErrValueOutOfRange, n)
		}
		c.maxResendRequests = n

		return nil
	})
}

// WithClock replaces the clock, for tests.
func WithClock(clk clock.Clock) Option {
	return options.New(func(c *Config) error {
		if clk == nil {
			return fmt.Errorf("%w: nil clock", errs.ErrInvalidValue)
		}
		c.clock = clk

		return nil
	})
}

// WithShards sets the number of assembly shards.
func WithShards(n int) Option {
	return options.New(func(c *Config) error {
		if n < 1 {
			return fmt.Errorf("%w: %d shards", errs.ErrValueOutOfRange, n)
		}
		c.shards = n

		return nil
	})
}

// WithCustomHandler sets the handler of application payloads.
// Without one, custom payloads are logged and ignored.
func WithCustomHandler(h CustomHandler) Option {
	return options.NoError(func(c *Config) {
		c.customHandler = h
	})
}

// WithCodecOptions adds payload codec options applied to every transport kind.
// The capacity is always taken from the transport limits.
func WithCodecOptions(opts ...payload.CodecOption) Option {
	return options.NoError(func(c *Config) {
		c.codecOptions = append(c.codecOptions, opts...)
	})
}

// WithTransport registers the transport used for correspondents of its kind.
func WithTransport(t transport.Transport) Option {
	return options.New(func(c *Config) error {
		if t == nil {
			return fmt.Errorf("%w: nil transport", errs.ErrInvalidValue)
		}
		if err := t.Limits().Validate(); err != nil {
			return err
		}
		c.transports[t.Kind()] = t

		return nil
	})
}
