// Package transmission drives records and control payloads over lossy
// transports: it fills payloads greedily, persists every transmission before
// sending it, reassembles incoming parts, acknowledges what it receives and
// asks for what went missing.
//
// # Sending
//
// Controller.SendRecords fetches the unsent records of a model from a
// RecordStore and packs them into as few records payloads as the transport
// allows, relying on payload.Records.TryAdd to detect when a payload is full.
// Each payload becomes an outgoing Transmission that is stored as in flight,
// split into parts and handed to the transport registered for the
// correspondent's kind.
//
// # Receiving
//
// Transports push parts into Controller.ReceivePart. Parts are collected per
// (correspondent, sender id, payload hash) in a sharded map, so transmissions
// from different peers never contend. A complete transmission is decoded and
// dispatched by payload type; records and models are acknowledged.
//
// # Timeouts
//
// SweepIncomplete asks peers for the missing parts of incoming transmissions
// that stalled, and SweepUnacknowledged resends outgoing transmissions that
// were never acknowledged. Both are bounded by a retry count and send at most
// one request per transmission and timeout window, so running them more often
// is harmless. Controller.Run schedules both on the controller's clock.
package transmission
