// Package payload defines the content carried by a transmission and its bit-exact
// wire encoding.
//
// Every transmission body starts with a 5-bit payload type followed by the
// payload itself:
//
//	Type | Payload        | Acknowledged
//	-----|----------------|-------------
//	0    | Ack            | no
//	1    | ResendRequest  | no
//	2    | Records        | yes
//	3    | ModelRequest   | no
//	4    | Model          | yes
//	5-31 | Custom         | no
//
// # Records payload
//
// A Records payload carries records of a single model, grouped by schema:
//
//	[format version 2][lossless 1][model id 56][occurrence bit per schema][compression 2][body]
//
// The body holds, for each schema present, a record count, the factoring
// header and the records themselves. It is compressed with every candidate
// algorithm and the smallest result is kept; a compressed body is written as
// bytes, an uncompressed one as raw bits without padding.
//
// Records are added with TryAdd, which serialises the payload against the
// codec's capacity and rolls the record back when it no longer fits. This is
// how a sender fills a transmission without knowing the compressed size in
// advance.
package payload
