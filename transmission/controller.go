package transmission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
	"github.com/arloliu/courier/internal/logging"
	"github.com/arloliu/courier/internal/options"
	"github.com/arloliu/courier/payload"
	"github.com/arloliu/courier/schema"
	"github.com/arloliu/courier/transport"
)

var allKinds = []format.TransportKind{format.TransportLoopback, format.TransportBinarySMS, format.TransportHTTP}

// pending is the reassembly state of one incoming transmission.
type pending struct {
	asm *transport.Assembly
	t   *Transmission
}

type shard struct {
	mu      sync.Mutex
	entries map[Key]*pending
}

// Controller sends payloads as transmissions and handles incoming parts.
//
// A Controller is safe for concurrent use. Incoming parts of different
// transmissions only contend when their keys fall into the same shard.
type Controller struct {
	cfg      *Config
	registry *schema.Registry
	store    Store
	records  RecordStore
	codecs   map[format.TransportKind]*payload.Codec
	shards   []*shard
	corrMu   sync.Mutex
	log      *logging.Logger
}

// NewController creates a controller.
//
// Parameters:
//   - registry: Models this peer can encode and decode; models received from peers are added to it
//   - store: Transmission and correspondent storage
//   - records: Application record storage
//   - opts: Optional configuration (WithTransport, WithResendTimeout, ...)
//
// Returns:
//   - *Controller: The controller
//   - error: A nil collaborator or an invalid option
func NewController(registry *schema.Registry, store Store, records RecordStore, opts ...Option) (*Controller, error) {
	if registry == nil || store == nil || records == nil {
		return nil, fmt.Errorf("%w: controller needs a registry, a store and a record store", errs.ErrInvalidValue)
	}

	cfg := NewDefaultConfig()
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:      cfg,
		registry: registry,
		store:    store,
		records:  records,
		codecs:   make(map[format.TransportKind]*payload.Codec, len(allKinds)),
		shards:   make([]*shard, cfg.shards),
		log:      logging.MustGetLogger("transmission"),
	}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[Key]*pending)}
	}

	// one codec per kind: the capacity fixes the width of record count fields
	// and must match between peers
	for _, kind := range allKinds {
		limits := transport.LimitsFor(kind)
		if t, ok := cfg.transports[kind]; ok {
			limits = t.Limits()
		}
		codecOpts := append([]payload.CodecOption{}, cfg.codecOptions...)
		codecOpts = append(codecOpts, payload.WithCapacity(limits.MaxPayloadBytes()))
		codec, err := payload.NewCodec(registry, codecOpts...)
		if err != nil {
			return nil, fmt.Errorf("codec for %s transport: %w", kind, err)
		}
		c.codecs[kind] = codec
	}

	return c, nil
}

// Config returns the controller settings.
func (c *Controller) Config() *Config { return c.cfg }

// Store returns the transmission store.
func (c *Controller) Store() Store { return c.store }

// Codec returns the payload codec used for correspondents of the given kind.
func (c *Controller) Codec(kind format.TransportKind) *payload.Codec {
	return c.codecs[kind]
}

// AddCorrespondent stores a new correspondent.
func (c *Controller) AddCorrespondent(ctx context.Context, name, address string, kind format.TransportKind) (Correspondent, error) {
	corr, err := NewCorrespondent(name, address, kind)
	if err != nil {
		return Correspondent{}, err
	}
	if err := c.store.PutCorrespondent(ctx, corr); err != nil {
		return Correspondent{}, err
	}

	return corr, nil
}

// Receiver returns the transport receiver feeding parts of the given kind into the controller.
func (c *Controller) Receiver(kind format.TransportKind) transport.Receiver {
	return func(ctx context.Context, from string, p transport.Part) error {
		return c.ReceivePart(ctx, kind, from, p)
	}
}

func (c *Controller) transportFor(to Correspondent) (transport.Transport, error) {
	t, ok := c.cfg.transports[to.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrNoTransport, to)
	}

	return t, nil
}

func (c *Controller) entry(t *Transmission) *logrus.Entry {
	return c.log.WithFields(logrus.Fields{
		"id":            t.LocalID,
		"sender_id":     t.SenderID,
		"hash":          fmt.Sprintf("%#08x", t.PayloadHash),
		"total":         t.TotalParts,
		"correspondent": t.Correspondent,
	})
}

// Send encodes p, splits it into parts and hands every part to the
// correspondent's transport.
//
// The transmission is stored before its first part is sent, so a failed send
// leaves a pending transmission behind that can be inspected or resent.
//
// Returns:
//   - *Transmission: The stored transmission; non-nil once it was stored, even on error
//   - error: ErrNoTransport, a capacity error from the codec, or a transport failure
func (c *Controller) Send(ctx context.Context, p payload.Payload, to Correspondent) (*Transmission, error) {
	tr, err := c.transportFor(to)
	if err != nil {
		return nil, err
	}

	data, stats, err := c.codecs[to.Kind].EncodeWithStats(p)
	if err != nil {
		return nil, err
	}

	id, err := c.store.NextLocalID(ctx)
	if err != nil {
		return nil, err
	}
	senderID := uint32(id & format.MaxSenderID)

	parts, err := transport.Split(data, senderID, tr.Limits())
	if err != nil {
		return nil, err
	}

	t := &Transmission{
		LocalID:       id,
		SenderID:      senderID,
		Correspondent: to.ID,
		Kind:          to.Kind,
		Direction:     Outgoing,
		PayloadType:   p.Type(),
		PayloadHash:   parts[0].PayloadHash,
		CreatedAt:     c.cfg.clock.Now(),
		Parts:         parts,
		TotalParts:    len(parts),
	}
	if err := c.store.Put(ctx, t); err != nil {
		return nil, err
	}
	log := c.entry(t).WithField("type", p.Type())
	log.WithFields(logrus.Fields{
		"compression": stats.Algorithm,
		"ratio":       stats.CompressionRatio(),
		"savings":     stats.SpaceSavings(),
	}).Debug("Sending transmission")

	for _, part := range parts {
		if err := tr.Send(ctx, to.Address, part); err != nil {
			log.WithError(err).WithField("part", part.Index).Warn("Failed to send part")
			return t, fmt.Errorf("transmission %d part %d/%d: %w", id, part.Index, part.Total, err)
		}
	}

	// an ack may already have arrived over a synchronous transport
	sent, err := c.store.Update(ctx, id, func(t *Transmission) error {
		t.SentAt = c.cfg.clock.Now()
		return nil
	})
	if err != nil {
		return t, err
	}
	log.Info("Sent transmission")

	return sent, nil
}

// SendRecords sends every unsent record of model to a correspondent.
//
// Records are packed greedily: each payload takes records until the next one
// no longer fits, then goes out as one transmission, and the loop continues
// until the record store reports nothing unsent.
//
// Returns:
//   - []*Transmission: The transmissions sent, also on error
//   - error: A record that does not fit an empty payload, a record store failure or a send failure
func (c *Controller) SendRecords(ctx context.Context, model *schema.Model, to Correspondent) ([]*Transmission, error) {
	if _, err := c.transportFor(to); err != nil {
		return nil, err
	}
	codec := c.codecs[to.Kind]

	var sent []*Transmission
	for {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		unsent, err := c.records.RetrieveUnsent(ctx, model)
		if err != nil {
			return sent, err
		}
		if len(unsent) == 0 {
			return sent, nil
		}

		p := codec.NewRecords(model)
		n, err := p.Fill(unsent)
		if err != nil {
			if n == 0 && errors.Is(err, errs.ErrCapacityExceeded) {
				return sent, fmt.Errorf("record of schema %q does not fit an empty payload: %w", unsent[0].Schema().Name(), err)
			}

			return sent, err
		}

		t, err := c.Send(ctx, p, to)
		if err != nil {
			return sent, err
		}
		if err := c.records.MarkSent(ctx, p.Records(), t); err != nil {
			return sent, err
		}
		sent = append(sent, t)
	}
}

// resend sends the given parts of an outgoing transmission again.
func (c *Controller) resend(ctx context.Context, t *Transmission, indices []int) error {
	to, err := c.store.Correspondent(ctx, t.Correspondent)
	if err != nil {
		return err
	}
	tr, err := c.transportFor(to)
	if err != nil {
		return err
	}

	log := c.entry(t)
	for _, i := range indices {
		part, ok := t.Part(i)
		if !ok {
			log.WithField("part", i).Warn("Resend requested for unknown part")
			continue
		}
		if err := tr.Send(ctx, to.Address, part); err != nil {
			return fmt.Errorf("resending transmission %d part %d/%d: %w", t.LocalID, part.Index, part.Total, err)
		}
	}
	log.WithField("parts", indices).Info("Resent parts")

	return nil
}
