package payload

import (
	"errors"
	"fmt"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
	"github.com/arloliu/courier/schema"
)

// Records carries records of one model, grouped by schema.
//
// A Records payload created by Codec.NewRecords is attached to that codec:
// every TryAdd serialises the payload and is undone when it no longer fits the
// codec's capacity. Once the payload has been encoded for sending, or when it
// was decoded from the wire, it is sealed and TryAdd fails with ErrPayloadSealed.
type Records struct {
	codec    *Codec
	model    *schema.Model
	lossless bool
	bySchema map[*schema.Schema][]*schema.Record
	count    int
	sealed   bool
}

var _ Payload = (*Records)(nil)

// NewRecords creates a detached payload for records of model. A detached
// payload performs the filled and model checks but no capacity check.
func NewRecords(model *schema.Model, lossless bool) *Records {
	return &Records{
		model:    model,
		lossless: lossless,
		bySchema: make(map[*schema.Schema][]*schema.Record),
	}
}

func (*Records) Type() format.PayloadType { return format.PayloadRecords }
func (*Records) Acknowledged() bool       { return true }
func (*Records) isPayload()               {}

// Model returns the model of the records.
func (p *Records) Model() *schema.Model { return p.model }

// Lossless reports whether values are encoded at full precision.
func (p *Records) Lossless() bool { return p.lossless }

// Len returns the number of records.
func (p *Records) Len() int { return p.count }

// IsEmpty reports whether the payload holds no records.
func (p *Records) IsEmpty() bool { return p.count == 0 }

// Sealed reports whether the payload can no longer be modified.
func (p *Records) Sealed() bool { return p.sealed }

// RecordsOf returns the records of schema s in insertion order.
func (p *Records) RecordsOf(s *schema.Schema) []*schema.Record {
	return p.bySchema[s]
}

// Records returns all records, grouped by schema in model order.
func (p *Records) Records() []*schema.Record {
	out := make([]*schema.Record, 0, p.count)
	for _, s := range p.model.Schemata() {
		out = append(out, p.bySchema[s]...)
	}

	return out
}

// Schemata returns the schemata that have records, in model order.
func (p *Records) Schemata() []*schema.Schema {
	var out []*schema.Schema
	for _, s := range p.model.Schemata() {
		if len(p.bySchema[s]) > 0 {
			out = append(out, s)
		}
	}

	return out
}

// TryAdd adds r to the payload.
//
// The record must belong to a transmittable schema of the payload's model and
// hold a value in every non-optional transmittable column. When the payload is
// attached to a codec, the payload is serialised with r included, compressed
// only when the uncompressed form exceeds the capacity; if that fails, r is
// removed again and the error (typically a *errs.CapacityError) is returned.
// On error the payload is unchanged.
func (p *Records) TryAdd(r *schema.Record) error {
	if p.sealed {
		return errs.ErrPayloadSealed
	}

	s := r.Schema()
	if !s.Transmittable() {
		return fmt.Errorf("%w: %s", errs.ErrSchemaNotTransmittable, s.Name())
	}
	if !p.model.Owns(s) {
		return fmt.Errorf("%w: schema %q is not part of %s", errs.ErrModelMismatch, s.Name(), p.model)
	}
	if p.codec != nil {
		if missing := r.Unfilled(p.codec.skipColumns(s)); len(missing) > 0 {
			return fmt.Errorf("%w: schema %q columns %v", errs.ErrRecordNotFilled, s.Name(), missing)
		}
	} else if missing := r.Unfilled(s.LocalColumns()); len(missing) > 0 {
		return fmt.Errorf("%w: schema %q columns %v", errs.ErrRecordNotFilled, s.Name(), missing)
	}

	p.bySchema[s] = append(p.bySchema[s], r)
	p.count++

	if p.codec == nil {
		return nil
	}

	// compression is only tried once the uncompressed body no longer fits
	fits, err := p.codec.fitsUncompressed(p)
	if err == nil && !fits {
		_, _, err = p.codec.encode(p)
	}
	if err != nil {
		p.removeLast(s)
		return err
	}

	return nil
}

func (p *Records) removeLast(s *schema.Schema) {
	recs := p.bySchema[s]
	recs[len(recs)-1] = nil
	recs = recs[:len(recs)-1]
	if len(recs) == 0 {
		delete(p.bySchema, s)
	} else {
		p.bySchema[s] = recs
	}
	p.count--
}

// Fill adds records in order until one does not fit.
// It returns the number of records added; a capacity error on the first record
// and every other error are returned, while a capacity error on a later record
// just ends the batch.
func (p *Records) Fill(records []*schema.Record) (int, error) {
	for i, r := range records {
		if err := p.TryAdd(r); err != nil {
			if i > 0 && errors.Is(err, errs.ErrCapacityExceeded) {
				return i, nil
			}

			return i, err
		}
	}

	return len(records), nil
}

func (p *Records) String() string {
	name := "<nil>"
	if p.model != nil {
		name = p.model.Name()
	}

	return fmt.Sprintf("Records{model=%s, records=%d, lossless=%t}", name, p.count, p.lossless)
}
