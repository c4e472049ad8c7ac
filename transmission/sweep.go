package transmission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/payload"
)

var errNotDue = errors.New("resend not due")

// due reports whether a transmission last active at ref, with count resend
// requests issued so far, may get another one at now.
func (c *Controller) due(ref, last time.Time, count int, now time.Time) bool {
	if count >= c.cfg.maxResendRequests {
		return false
	}
	if last.After(ref) {
		ref = last
	}

	return now.Sub(ref) >= c.cfg.resendTimeout
}

// SweepIncomplete asks the senders of incomplete incoming transmissions for
// their missing parts.
//
// A transmission qualifies once no new part arrived for the resend timeout.
// Each transmission gets at most MaxResendRequests requests, never two within
// one timeout, so running the sweep again before the parts arrive sends nothing.
//
// Returns:
//   - []*payload.ResendRequest: The requests sent
//   - error: Store failures and send failures, joined
func (c *Controller) SweepIncomplete(ctx context.Context) ([]*payload.ResendRequest, error) {
	candidates, err := c.store.List(ctx, func(t *Transmission) bool {
		return t.Direction == Incoming && !t.Complete()
	})
	if err != nil {
		return nil, err
	}

	var (
		sent    []*payload.ResendRequest
		errList []error
	)
	for _, cand := range candidates {
		rr, err := c.claimIncomplete(ctx, cand.Key())
		if err != nil {
			errList = append(errList, err)
			continue
		}
		if rr == nil {
			continue
		}

		to, err := c.store.Correspondent(ctx, cand.Correspondent)
		if err != nil {
			errList = append(errList, err)
			continue
		}
		if _, err := c.Send(ctx, rr, to); err != nil {
			errList = append(errList, fmt.Errorf("resend request for transmission %d: %w", cand.LocalID, err))
			continue
		}
		c.entry(cand).WithField("parts", rr.Parts).Info("Requested missing parts")
		sent = append(sent, rr)
	}

	return sent, errors.Join(errList...)
}

// claimIncomplete builds the resend request of one incomplete transmission and
// records it, under the shard lock. It returns nil when no request is due.
func (c *Controller) claimIncomplete(ctx context.Context, k Key) (*payload.ResendRequest, error) {
	sh := c.shardOf(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, _, err := c.load(ctx, sh, k)
	if err != nil || e == nil {
		return nil, err
	}

	t := e.t
	now := c.cfg.clock.Now()
	if !c.due(t.UpdatedAt, t.LastResendRequest, t.ResendRequests, now) {
		return nil, nil
	}

	rr, err := payload.NewResendRequest(t.SenderID, t.PayloadHash, t.TotalParts, e.asm.Missing())
	if err != nil {
		return nil, err
	}
	t.ResendRequests++
	t.LastResendRequest = now
	if err := c.store.Put(ctx, t); err != nil {
		return nil, err
	}

	return rr, nil
}

// SweepUnacknowledged resends outgoing transmissions whose ack is overdue.
//
// For every payload that demands an ack and got none within the resend
// timeout of being sent, a resend request naming all its parts is issued
// locally and served by sending every part again. The same bound and
// spacing as in SweepIncomplete apply.
//
// Returns:
//   - []*payload.ResendRequest: The requests served
//   - error: Store failures and send failures, joined
func (c *Controller) SweepUnacknowledged(ctx context.Context) ([]*payload.ResendRequest, error) {
	candidates, err := c.store.List(ctx, func(t *Transmission) bool {
		return t.Direction == Outgoing && t.PayloadType.Acknowledged() && !t.Acknowledged()
	})
	if err != nil {
		return nil, err
	}

	var (
		served  []*payload.ResendRequest
		errList []error
	)
	for _, cand := range candidates {
		now := c.cfg.clock.Now()
		t, err := c.store.Update(ctx, cand.LocalID, func(t *Transmission) error {
			ref := t.SentAt
			if ref.IsZero() {
				ref = t.CreatedAt
			}
			if t.Acknowledged() || !c.due(ref, t.LastResendRequest, t.ResendRequests, now) {
				return errNotDue
			}
			t.ResendRequests++
			t.LastResendRequest = now

			return nil
		})
		if errors.Is(err, errNotDue) {
			continue
		}
		if err != nil {
			errList = append(errList, err)
			continue
		}

		rr, err := payload.NewResendRequest(t.SenderID, t.PayloadHash, t.TotalParts, t.PartIndices())
		if err != nil {
			errList = append(errList, err)
			continue
		}
		if err := c.resend(ctx, t, rr.Parts); err != nil {
			errList = append(errList, err)
			continue
		}
		served = append(served, rr)
	}

	return served, errors.Join(errList...)
}

// Abandon drops an incomplete incoming transmission. Nothing is sent to its sender.
func (c *Controller) Abandon(ctx context.Context, k Key) error {
	sh := c.shardOf(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	delete(sh.entries, k)
	t, err := c.store.FindIncoming(ctx, k)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if t.Complete() {
		return nil
	}

	return c.store.Delete(ctx, t.LocalID)
}

// AbandonCorrespondent deletes a correspondent together with its
// transmissions and reassembly state.
func (c *Controller) AbandonCorrespondent(ctx context.Context, id uuid.UUID) error {
	for _, sh := range c.shards {
		sh.mu.Lock()
		for k := range sh.entries {
			if k.Correspondent == id {
				delete(sh.entries, k)
			}
		}
		sh.mu.Unlock()
	}

	return c.store.DeleteCorrespondent(ctx, id)
}

// Run sweeps every interval until ctx is done. It returns ctx.Err().
func (c *Controller) Run(ctx context.Context, interval time.Duration) error {
	ticker := c.cfg.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := c.SweepIncomplete(ctx); err != nil {
				c.log.WithError(err).Warn("Incomplete transmission sweep failed")
			}
			if _, err := c.SweepUnacknowledged(ctx); err != nil {
				c.log.WithError(err).Warn("Unacknowledged transmission sweep failed")
			}
		}
	}
}
