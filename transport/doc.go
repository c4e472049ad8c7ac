// Package transport splits transmission bodies into fixed-capacity parts and
// reassembles them on the receiving side.
//
// A part travels as a 10-byte header followed by its slice of the body:
//
//	┌────────┬───────────┬─────────┬─────────┬──────────────┬──────────┐
//	│ marker │ sender id │ index-1 │ total-1 │ payload hash │ reserved │
//	│ 8 bits │ 24 bits   │ 6 bits  │ 6 bits  │ 32 bits      │ 4 bits   │
//	└────────┴───────────┴─────────┴─────────┴──────────────┴──────────┘
//
// All fields are big-endian. The payload hash is the low 32 bits of the
// xxHash64 of the complete body and identifies the transmission together with
// the sender id.
//
// An Assembly collects the parts of one incoming transmission. It ignores
// duplicates, tolerates any arrival order, and rejects parts that disagree on
// the total. Transports deliver parts between peers: Loopback connects peers
// inside one process, HTTPTransport and NewHTTPHandler connect them over HTTP.
package transport
