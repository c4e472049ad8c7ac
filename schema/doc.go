// Package schema is the record model shared by the payload codec and the
// transmission controller.
//
// A Model is an identified, ordered collection of Schemata; a Schema is an
// ordered list of typed Columns; a Record assigns one value per column. Models
// are owned by a Registry and looked up by their 56-bit id. Records only hold a
// pointer to their Schema, and a Schema only stores the id of its Model, so the
// graph has no cycles.
//
// Every column knows how to write its value to a bitstream.Writer and read it
// back, in a lossless or a lossy (lower precision) mode:
//
//	Kind   | Go value  | Lossy bits          | Lossless bits
//	-------|-----------|---------------------|------------------------
//	Bool   | bool      | 1                   | 1
//	Int    | int64     | bits of [min, max]  | bits of [min, max]
//	Float  | float64   | 32 (float32)        | 64
//	String | string    | length + 8 per byte | length + 8 per byte
//	Time   | time.Time | 40 (seconds)        | 64 (milliseconds)
//
// Optional columns are preceded by a presence bit. Local columns (for example
// an auto-incremented key) are never transmitted.
//
// Model ids are derived from a BLAKE3 digest of the model descriptor unless
// the descriptor names one, so two peers loading the same descriptor agree on
// the id without coordination.
package schema
