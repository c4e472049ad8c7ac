package transmission

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
	"github.com/arloliu/courier/payload"
	"github.com/arloliu/courier/schema"
	"github.com/arloliu/courier/transport"
)

// ReceivePart handles one part received over a transport of the given kind
// from the peer at address from.
//
// Unknown senders become anonymous correspondents. Duplicate parts, including
// parts of transmissions already complete, are dropped. When the part
// completes its transmission, the payload is decoded and handled before
// ReceivePart returns; payloads that demand it are acknowledged. A repeated
// last part of a completed transmission is acknowledged again, so a sender
// whose ack was lost stops resending.
//
// Returns:
//   - error: ErrProtocolMismatch or ErrFormat for inconsistent parts, or an
//     error from handling the completed payload
func (c *Controller) ReceivePart(ctx context.Context, kind format.TransportKind, from string, p transport.Part) error {
	if err := p.Validate(); err != nil {
		return err
	}

	corr, err := c.resolveCorrespondent(ctx, kind, from)
	if err != nil {
		return err
	}

	t, body, err := c.accumulate(ctx, corr, p)
	if err != nil || t == nil {
		return err
	}
	if body == nil {
		c.entry(t).Info("Acknowledging repeated transmission")
		return c.ack(ctx, corr, t)
	}

	return c.handle(ctx, corr, t, body)
}

func (c *Controller) resolveCorrespondent(ctx context.Context, kind format.TransportKind, address string) (Correspondent, error) {
	c.corrMu.Lock()
	defer c.corrMu.Unlock()

	corr, err := c.store.FindCorrespondent(ctx, kind, address)
	if err == nil {
		return corr, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return Correspondent{}, err
	}

	corr, err = NewCorrespondent(AnonymousName, address, kind)
	if err != nil {
		return Correspondent{}, err
	}
	if err := c.store.PutCorrespondent(ctx, corr); err != nil {
		return Correspondent{}, err
	}
	c.log.WithField("correspondent", corr).Info("Added correspondent for unknown sender")

	return corr, nil
}

func (c *Controller) shardOf(k Key) *shard {
	return c.shards[k.shard(len(c.shards))]
}

// load returns the reassembly state of an incomplete incoming transmission,
// restoring it from the store when needed. It returns nil when the store has
// no such transmission, and the stored transmission as done when it is
// already complete. Callers hold the shard lock.
func (c *Controller) load(ctx context.Context, sh *shard, k Key) (e *pending, done *Transmission, err error) {
	if e, ok := sh.entries[k]; ok {
		return e, nil, nil
	}

	t, err := c.store.FindIncoming(ctx, k)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if t.Complete() {
		return nil, t, nil
	}

	asm := transport.NewAssembly(k.SenderID, k.PayloadHash)
	for _, p := range t.Parts {
		if _, err := asm.Add(p, t.UpdatedAt); err != nil {
			return nil, nil, fmt.Errorf("restoring transmission %d: %w", t.LocalID, err)
		}
	}
	e = &pending{asm: asm, t: t}
	sh.entries[k] = e

	return e, nil, nil
}

// accumulate adds p to its transmission. It returns the transmission and its
// body once p completed it, the transmission without a body when p repeats
// the last part of a completed transmission that wants a new ack, and a nil
// transmission otherwise.
func (c *Controller) accumulate(ctx context.Context, corr Correspondent, p transport.Part) (*Transmission, []byte, error) {
	k := Key{Correspondent: corr.ID, SenderID: p.SenderID, PayloadHash: p.PayloadHash}
	sh := c.shardOf(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	log := c.log.WithFields(logrus.Fields{
		"sender_id":     p.SenderID,
		"hash":          fmt.Sprintf("%#08x", p.PayloadHash),
		"part":          p.Index,
		"total":         p.Total,
		"correspondent": corr.ID,
	})

	e, done, err := c.load(ctx, sh, k)
	if err != nil {
		return nil, nil, err
	}
	if done != nil {
		log.Debug("Dropped part of completed transmission")
		if p.Index == p.Total && done.PayloadType.Acknowledged() && done.PendingModelID == 0 {
			return done, nil, nil
		}

		return nil, nil, nil
	}

	now := c.cfg.clock.Now()
	if e == nil {
		id, err := c.store.NextLocalID(ctx)
		if err != nil {
			return nil, nil, err
		}
		e = &pending{
			asm: transport.NewAssembly(p.SenderID, p.PayloadHash),
			t: &Transmission{
				LocalID:       id,
				SenderID:      p.SenderID,
				Correspondent: corr.ID,
				Kind:          corr.Kind,
				Direction:     Incoming,
				PayloadHash:   p.PayloadHash,
				CreatedAt:     now,
				TotalParts:    p.Total,
			},
		}
		sh.entries[k] = e
	}

	added, err := e.asm.Add(p, now)
	if err != nil {
		log.WithError(err).Warn("Rejected part")
		return nil, nil, err
	}
	if !added {
		log.Debug("Dropped duplicate part")
		return nil, nil, nil
	}
	e.t.addPart(p)
	e.t.UpdatedAt = now
	log.WithField("id", e.t.LocalID).Debug("Received part")

	if !e.asm.Complete() {
		return nil, nil, c.store.Put(ctx, e.t)
	}

	delete(sh.entries, k)
	body, err := e.asm.Payload()
	if err != nil {
		log.WithError(err).Warn("Discarded transmission")
		if derr := c.store.Delete(ctx, e.t.LocalID); derr != nil {
			return nil, nil, errors.Join(err, derr)
		}

		return nil, nil, err
	}

	e.t.ReceivedAt = now
	if pt, err := payload.PeekType(body); err == nil {
		e.t.PayloadType = pt
	}
	if err := c.store.Put(ctx, e.t); err != nil {
		return nil, nil, err
	}
	c.entry(e.t).WithField("type", e.t.PayloadType).Info("Received transmission")

	return e.t, body, nil
}

// handle decodes the body of a complete incoming transmission and dispatches it.
func (c *Controller) handle(ctx context.Context, from Correspondent, t *Transmission, body []byte) error {
	p, err := c.codecs[t.Kind].Decode(body)

	var unknown *errs.UnknownModelError
	if errors.As(err, &unknown) {
		if _, uerr := c.store.Update(ctx, t.LocalID, func(t *Transmission) error {
			t.PendingModelID = unknown.ModelID
			return nil
		}); uerr != nil {
			return uerr
		}
		c.entry(t).WithField("model", fmt.Sprintf("%#x", unknown.ModelID)).Info("Requesting unknown model")
		_, err = c.Send(ctx, &payload.ModelRequest{ModelID: unknown.ModelID}, from)

		return err
	}
	if err != nil {
		c.entry(t).WithError(err).Warn("Failed to decode transmission")
		return err
	}

	if err := c.dispatch(ctx, from, t, p); err != nil {
		c.entry(t).WithError(err).Warn("Failed to handle transmission")
		// forget it so that a resend of the whole transmission is handled again
		if derr := c.store.Delete(ctx, t.LocalID); derr != nil {
			return errors.Join(err, derr)
		}

		return err
	}

	if !p.Acknowledged() {
		return nil
	}

	return c.ack(ctx, from, t)
}

func (c *Controller) ack(ctx context.Context, from Correspondent, t *Transmission) error {
	ack := &payload.Ack{SubjectSenderID: t.SenderID, SubjectHash: t.PayloadHash, ReceivedAt: t.ReceivedAt}
	_, err := c.Send(ctx, ack, from)

	return err
}

func (c *Controller) dispatch(ctx context.Context, from Correspondent, t *Transmission, p payload.Payload) error {
	switch p := p.(type) {
	case *payload.Records:
		return c.records.Store(ctx, from, p.Records())
	case *payload.Ack:
		return c.handleAck(ctx, from, p)
	case *payload.ResendRequest:
		return c.handleResendRequest(ctx, from, p)
	case *payload.ModelRequest:
		return c.handleModelRequest(ctx, from, p)
	case *payload.Model:
		return c.handleModel(ctx, p)
	case *payload.Custom:
		if c.cfg.customHandler == nil {
			c.entry(t).WithField("type", p.Type()).Info("Ignored custom payload")
			return nil
		}

		return c.cfg.customHandler(ctx, from, p)
	default:
		return fmt.Errorf("%w: %T", errs.ErrUnknownPayloadType, p)
	}
}

// handleAck marks the acknowledged outgoing transmission received. Only the
// correspondent the transmission was sent to can acknowledge it.
func (c *Controller) handleAck(ctx context.Context, from Correspondent, ack *payload.Ack) error {
	t, err := c.store.FindOutgoing(ctx, ack.SubjectSenderID, ack.SubjectHash)
	if errors.Is(err, errs.ErrNotFound) {
		c.log.WithField("ack", ack).Warn("Ack for unknown transmission")
		return nil
	}
	if err != nil {
		return err
	}
	if t.Correspondent != from.ID {
		c.entry(t).WithField("from", from.Name).Warn("Ack from a correspondent the transmission was not sent to")
		return nil
	}

	receivedAt := ack.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = c.cfg.clock.Now()
	}
	t, err = c.store.Update(ctx, t.LocalID, func(t *Transmission) error {
		if t.ReceivedAt.IsZero() {
			t.ReceivedAt = receivedAt
		}

		return nil
	})
	if err != nil {
		return err
	}
	c.entry(t).Info("Transmission acknowledged")

	return c.records.MarkReceived(ctx, t)
}

func (c *Controller) handleResendRequest(ctx context.Context, from Correspondent, rr *payload.ResendRequest) error {
	t, err := c.store.FindOutgoing(ctx, rr.SubjectSenderID, rr.SubjectHash)
	if errors.Is(err, errs.ErrNotFound) {
		c.log.WithField("request", rr).Warn("Resend request for unknown transmission")
		return nil
	}
	if err != nil {
		return err
	}
	if t.Correspondent != from.ID {
		c.entry(t).WithField("from", from.Name).Warn("Resend request from a correspondent the transmission was not sent to")
		return nil
	}
	if rr.TotalParts != t.TotalParts {
		c.entry(t).WithField("request", rr).Warn("Resend request disagrees on part count")
		return nil
	}

	return c.resend(ctx, t, rr.Parts)
}

func (c *Controller) handleModelRequest(ctx context.Context, from Correspondent, mr *payload.ModelRequest) error {
	m, err := c.registry.Model(mr.ModelID)
	if err != nil {
		c.log.WithField("model", fmt.Sprintf("%#x", mr.ModelID)).Warn("Model request for unknown model")
		return nil
	}
	_, err = c.Send(ctx, payload.NewModel(m), from)

	return err
}

// handleModel registers a received model and handles the transmissions that were waiting for it.
func (c *Controller) handleModel(ctx context.Context, p *payload.Model) error {
	m, err := schema.FromDescriptor(p.Descriptor)
	if err != nil {
		return err
	}
	if err := c.registry.Register(m); err != nil {
		return err
	}
	c.log.WithField("model", m).Info("Registered model")

	waiting, err := c.store.List(ctx, func(t *Transmission) bool {
		return t.Direction == Incoming && t.PendingModelID == m.ID()
	})
	if err != nil {
		return err
	}

	var errList []error
	for _, t := range waiting {
		if err := c.retry(ctx, t); err != nil {
			errList = append(errList, fmt.Errorf("transmission %d: %w", t.LocalID, err))
		}
	}

	return errors.Join(errList...)
}

// retry handles a complete incoming transmission again from its stored parts.
func (c *Controller) retry(ctx context.Context, t *Transmission) error {
	asm := transport.NewAssembly(t.SenderID, t.PayloadHash)
	for _, p := range t.Parts {
		if _, err := asm.Add(p, t.UpdatedAt); err != nil {
			return err
		}
	}
	body, err := asm.Payload()
	if err != nil {
		return err
	}

	from, err := c.store.Correspondent(ctx, t.Correspondent)
	if err != nil {
		return err
	}
	t, err = c.store.Update(ctx, t.LocalID, func(t *Transmission) error {
		t.PendingModelID = 0
		return nil
	})
	if err != nil {
		return err
	}

	return c.handle(ctx, from, t, body)
}
