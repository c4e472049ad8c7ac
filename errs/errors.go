// Package errs defines the sentinel errors shared by the courier packages.
//
// Callers should test for error kinds with errors.Is; the concrete error values
// returned by the codecs and the controller wrap these sentinels with context
// (which transmission, which schema, how many bits).
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExceeded is returned when a payload or a transport capacity would be violated.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrFormat is returned when encoded input is malformed or truncated.
	ErrFormat = errors.New("malformed input")

	// ErrUnsupportedVersion is returned when a payload uses a format version newer than supported.
	ErrUnsupportedVersion = errors.New("unsupported format version")

	// ErrUnknownModel is returned when a model id is not present in the registry.
	ErrUnknownModel = errors.New("unknown model")

	// ErrProtocolMismatch is returned when a part conflicts with previously received parts.
	ErrProtocolMismatch = errors.New("protocol mismatch")

	// ErrTransportFailure is returned when a transport fails to send a part.
	ErrTransportFailure = errors.New("transport failure")

	// ErrValueOutOfRange is returned when a value cannot be represented by its field.
	ErrValueOutOfRange = errors.New("value out of range")

	// ErrInvalidValue is returned when a value has the wrong Go type for its column.
	ErrInvalidValue = errors.New("invalid column value")

	// ErrRecordNotFilled is returned when a non-optional transmittable column holds no value.
	ErrRecordNotFilled = errors.New("record not filled")

	// ErrSchemaNotTransmittable is returned when adding a record whose schema is not transmittable.
	ErrSchemaNotTransmittable = errors.New("schema not transmittable")

	// ErrModelMismatch is returned when records of different models are mixed in one payload.
	ErrModelMismatch = errors.New("records belong to different models")

	// ErrPayloadSealed is returned when adding records to a payload that was already serialised or received.
	ErrPayloadSealed = errors.New("payload is sealed")

	// ErrEmptyPayload is returned when serialising a records payload that holds no records.
	ErrEmptyPayload = errors.New("payload contains no records")

	// ErrDuplicateName is returned when a model or schema declares the same name twice.
	ErrDuplicateName = errors.New("duplicate name")

	// ErrUnknownPayloadType is returned when a payload type code cannot be decoded.
	ErrUnknownPayloadType = errors.New("unknown payload type")

	// ErrNoTransport is returned when no transport is registered for a correspondent's kind.
	ErrNoTransport = errors.New("no transport for correspondent")

	// ErrNotFound is returned by stores when a transmission or correspondent does not exist.
	ErrNotFound = errors.New("not found")
)

// CapacityError reports a capacity violation attributable to a specific payload or transmission.
type CapacityError struct {
	Subject string // e.g. "transmission 12" or "schema Observation"
	Need    int    // bits or bytes needed, 0 when unknown
	Max     int    // bits or bytes available
	Unit    string // "bits", "bytes", "records" or "parts"
}

func (e *CapacityError) Error() string {
	if e.Need > 0 {
		return fmt.Sprintf("%s: %s needs %d %s, max %d", ErrCapacityExceeded, e.Subject, e.Need, e.Unit, e.Max)
	}

	return fmt.Sprintf("%s: %s exceeds max %d %s", ErrCapacityExceeded, e.Subject, e.Max, e.Unit)
}

func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}

// DecodeError reports a payload decode failure.
//
// Decoding is all-or-nothing: when a DecodeError is returned no records of the
// payload are kept. Partial holds the record that was being read when the
// failure occurred, for diagnostics; it is nil when the failure happened
// outside a record.
type DecodeError struct {
	Subject string
	Partial any
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.Subject, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// UnknownModelError reports a payload referring to a model missing from the registry.
// The receiver answers it with a model request for ModelID.
type UnknownModelError struct {
	ModelID uint64
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("%s: %#x", ErrUnknownModel, e.ModelID)
}

func (e *UnknownModelError) Unwrap() error {
	return ErrUnknownModel
}
