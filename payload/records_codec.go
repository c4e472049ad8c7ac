package payload

import (
	"errors"
	"fmt"
	"slices"

	"github.com/arloliu/courier/bitstream"
	"github.com/arloliu/courier/compress"
	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
	"github.com/arloliu/courier/schema"
)

// FormatVersion is the records payload format version written by this package.
const FormatVersion = 2

// Records payload header: version 2 bits, lossless flag, model id,
// one occurrence bit per schema of the model, compression flag.
const (
	formatVersionBits = 2
	losslessBits      = 1
)

var formatVersionField = bitstream.IntRangeForSize(FormatVersion, formatVersionBits)

func recordsHeaderBits(model *schema.Model) int {
	return format.PayloadTypeBits + formatVersionBits + losslessBits + schema.ModelIDBits + model.NumSchemata() + format.CompressionFlagBits
}

// recordCountField returns the per-schema record count field. The bound is
// the number of 1-bit records that would fit the capacity uncompressed,
// shared among the schemata present, so compression is never limited by it.
func (c *Codec) recordCountField(model *schema.Model, schemataInPayload int) bitstream.IntRange {
	maxBits := c.cfg.capacityBytes*8 - recordsHeaderBits(model)
	hi := (maxBits + schemataInPayload - 1) / schemataInPayload

	return bitstream.NewIntRange(1, int64(max(hi, 1)))
}

// encode serialises p without sealing it.
func (c *Codec) encode(p *Records) ([]byte, compress.CompressionStats, error) {
	var stats compress.CompressionStats
	if p.IsEmpty() {
		return nil, stats, errs.ErrEmptyPayload
	}

	body, err := c.encodeBody(p)
	if err != nil {
		return nil, stats, err
	}
	defer body.Finish()

	raw := body.Bytes()
	ct, packed, err := compress.Smallest(raw, c.cfg.candidates()...)
	if err != nil {
		return nil, stats, err
	}
	stats = compress.CompressionStats{Algorithm: ct, OriginalSize: int64(len(raw)), CompressedSize: int64(len(packed))}

	bodyBits := body.BitLen()
	if ct != format.CompressionNone {
		bodyBits = len(packed) * 8
	}
	need := recordsHeaderBits(p.model) + bodyBits
	if limit := c.cfg.capacityBytes * 8; need > limit {
		return nil, stats, &errs.CapacityError{Subject: "records payload of " + p.model.String(), Need: need, Max: limit, Unit: "bits"}
	}

	w := bitstream.NewWriter(c.cfg.capacityBytes * 8)
	defer w.Finish()

	if err := c.writeRecordsHeader(w, p, ct); err != nil {
		return nil, stats, err
	}
	if ct == format.CompressionNone {
		err = w.WriteBitArray(body.BitArray())
	} else {
		err = w.WriteBytes(packed)
	}
	if err != nil {
		return nil, stats, err
	}

	return w.Bytes(), stats, nil
}

// encodeBody serialises the uncompressed body of p. The caller finishes the
// returned writer.
func (c *Codec) encodeBody(p *Records) (*bitstream.Writer, error) {
	present := p.Schemata()
	body := bitstream.NewWriter(0)

	countField := c.recordCountField(p.model, len(present))
	for _, s := range present {
		if err := c.encodeSchemaRecords(body, s, p.bySchema[s], countField, p.lossless); err != nil {
			body.Finish()
			return nil, err
		}
	}

	return body, nil
}

// fitsUncompressed reports whether p fits the capacity without compressing it.
// When CompressionNone is a candidate, encode never picks an output larger than
// the uncompressed body, so a true result means encode succeeds. A false result
// only means compression has to be tried.
func (c *Codec) fitsUncompressed(p *Records) (bool, error) {
	if !slices.Contains(c.cfg.candidates(), format.CompressionNone) {
		return false, nil
	}

	body, err := c.encodeBody(p)
	if err != nil {
		return false, err
	}
	defer body.Finish()

	return recordsHeaderBits(p.model)+body.BitLen() <= c.cfg.capacityBytes*8, nil
}

func (c *Codec) writeRecordsHeader(w *bitstream.Writer, p *Records, ct format.CompressionType) error {
	if err := w.WriteBits(uint64(format.PayloadRecords), format.PayloadTypeBits); err != nil {
		return err
	}
	if err := formatVersionField.Write(w, FormatVersion); err != nil {
		return err
	}
	if err := w.WriteBool(p.lossless); err != nil {
		return err
	}
	if err := schema.ModelIDRange.Write(w, int64(p.model.ID())); err != nil {
		return err
	}
	for _, s := range p.model.Schemata() {
		if err := w.WriteBool(len(p.bySchema[s]) > 0); err != nil {
			return err
		}
	}

	return w.WriteBits(uint64(ct), format.CompressionFlagBits)
}

func (c *Codec) encodeSchemaRecords(w *bitstream.Writer, s *schema.Schema, recs []*schema.Record, countField bitstream.IntRange, lossless bool) error {
	if !countField.Contains(int64(len(recs))) {
		return &errs.CapacityError{Subject: "schema " + s.Name(), Need: len(recs), Max: int(countField.High()), Unit: "records"}
	}
	if err := countField.Write(w, int64(len(recs))); err != nil {
		return err
	}

	skip := c.skipColumns(s)
	if len(recs) > 1 {
		factored, err := c.writeFactoring(w, s, recs, skip, lossless)
		if err != nil {
			return err
		}
		skip = skip.Union(factored)
	}

	for _, r := range recs {
		if err := r.Encode(w, skip, lossless); err != nil {
			return err
		}
	}

	return nil
}

// writeFactoring writes the factoring section of a schema with more than one
// record and returns the factored column indices. A column is factored when
// its encoded value, presence bit included, is the same in every record.
func (c *Codec) writeFactoring(w *bitstream.Writer, s *schema.Schema, recs []*schema.Record, skip schema.ColumnSet, lossless bool) (schema.ColumnSet, error) {
	if !c.cfg.factoring {
		return nil, w.WriteBool(false)
	}

	var (
		columns  []int
		values   = map[int]bitstream.BitArray{}
		factored = schema.ColumnSet{}
	)
	for i, col := range s.Columns() {
		if skip.Has(i) {
			continue
		}
		columns = append(columns, i)

		first, err := encodeValue(col, recs[0].At(i), lossless)
		if err != nil {
			return nil, err
		}
		same := true
		for _, r := range recs[1:] {
			other, err := encodeValue(col, r.At(i), lossless)
			if err != nil {
				return nil, err
			}
			if !first.Equal(other) {
				same = false
				break
			}
		}
		if same {
			factored[i] = struct{}{}
			values[i] = first
		}
	}

	if len(factored) == 0 {
		return nil, w.WriteBool(false)
	}
	if err := w.WriteBool(true); err != nil {
		return nil, err
	}
	for _, i := range columns {
		_, ok := factored[i]
		if err := w.WriteBool(ok); err != nil {
			return nil, err
		}
		if ok {
			if err := w.WriteBitArray(values[i]); err != nil {
				return nil, err
			}
		}
	}

	return factored, nil
}

func encodeValue(col schema.Column, v any, lossless bool) (bitstream.BitArray, error) {
	w := bitstream.NewWriter(0)
	defer w.Finish()

	if err := col.WriteValue(w, v, lossless); err != nil {
		return bitstream.BitArray{}, fmt.Errorf("column %q: %w", col.Name(), err)
	}

	return w.BitArray(), nil
}

func (c *Codec) decodeRecords(rd *bitstream.Reader) (Payload, error) {
	p, partial, err := c.readRecords(rd)
	if err != nil {
		de := &errs.DecodeError{Subject: "Records payload", Err: err}
		if partial != nil {
			de.Partial = partial
		}

		return nil, de
	}
	p.sealed = true

	return p, nil
}

// readRecords returns the record being decoded alongside any error raised inside it.
func (c *Codec) readRecords(rd *bitstream.Reader) (*Records, *schema.Record, error) {
	version, err := formatVersionField.ReadInt(rd)
	if err != nil {
		return nil, nil, err
	}
	if version != FormatVersion {
		return nil, nil, fmt.Errorf("%w: records format version %d", errs.ErrUnsupportedVersion, version)
	}
	lossless, err := rd.ReadBool()
	if err != nil {
		return nil, nil, err
	}
	id, err := schema.ModelIDRange.Read(rd)
	if err != nil {
		return nil, nil, err
	}
	model, err := c.registry.Model(uint64(id))
	if err != nil {
		if errors.Is(err, errs.ErrUnknownModel) {
			return nil, nil, &errs.UnknownModelError{ModelID: uint64(id)}
		}

		return nil, nil, err
	}

	var present []*schema.Schema
	for _, s := range model.Schemata() {
		occurs, err := rd.ReadBool()
		if err != nil {
			return nil, nil, err
		}
		if occurs {
			present = append(present, s)
		}
	}
	if len(present) == 0 {
		return nil, nil, fmt.Errorf("%w: records payload of %s names no schema", errs.ErrFormat, model)
	}

	flag, err := rd.ReadBits(format.CompressionFlagBits)
	if err != nil {
		return nil, nil, err
	}
	body, err := c.bodyReader(rd, format.CompressionType(flag))
	if err != nil {
		return nil, nil, err
	}

	p := NewRecords(model, lossless)
	countField := c.recordCountField(model, len(present))
	for _, s := range present {
		recs, partial, err := c.decodeSchemaRecords(body, s, countField, lossless)
		if err != nil {
			return nil, partial, err
		}
		p.bySchema[s] = recs
		p.count += len(recs)
	}

	return p, nil, nil
}

func (c *Codec) bodyReader(rd *bitstream.Reader, ct format.CompressionType) (*bitstream.Reader, error) {
	if ct == format.CompressionNone {
		bits, err := rd.ReadBitArray(rd.Available())
		if err != nil {
			return nil, err
		}

		return bitstream.NewReader(bits), nil
	}

	packed, err := rd.ReadBytes(rd.AvailableBytes())
	if err != nil {
		return nil, err
	}
	codec, err := compress.GetCodec(ct)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrFormat, err)
	}
	raw, err := codec.Decompress(packed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s body: %w", errs.ErrFormat, ct, err)
	}

	return bitstream.NewBytesReader(raw), nil
}

func (c *Codec) decodeSchemaRecords(rd *bitstream.Reader, s *schema.Schema, countField bitstream.IntRange, lossless bool) ([]*schema.Record, *schema.Record, error) {
	count, err := countField.ReadInt(rd)
	if err != nil {
		return nil, nil, fmt.Errorf("schema %q record count: %w", s.Name(), err)
	}

	skip := c.skipColumns(s)
	factored := map[int]any{}
	if count > 1 {
		hasFactored, err := rd.ReadBool()
		if err != nil {
			return nil, nil, err
		}
		if hasFactored {
			for i, col := range s.Columns() {
				if skip.Has(i) {
					continue
				}
				isFactored, err := rd.ReadBool()
				if err != nil {
					return nil, nil, err
				}
				if !isFactored {
					continue
				}
				v, err := col.ReadValue(rd, lossless)
				if err != nil {
					return nil, nil, fmt.Errorf("schema %q factored column %q: %w", s.Name(), col.Name(), err)
				}
				factored[i] = v
			}
		}
	}

	recordSkip := skip
	if len(factored) > 0 {
		recordSkip = skip.Union(schema.ColumnSet{})
		for i := range factored {
			recordSkip[i] = struct{}{}
		}
	}

	minBits := s.MinRecordBits(recordSkip, lossless)
	recs := make([]*schema.Record, 0, min(count, rd.Available()/max(minBits, 1)))
	for len(recs) < count && rd.Available() >= minBits {
		r, err := schema.DecodeRecord(s, rd, recordSkip, lossless)
		if err != nil {
			return nil, r, err
		}
		for i, v := range factored {
			if v == nil {
				continue
			}
			if err := r.SetAt(i, v); err != nil {
				return nil, r, err
			}
		}
		recs = append(recs, r)
	}

	return recs, nil, nil
}
