package hash

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// ID computes the xxHash64 of the given string.
func ID(data string) uint64 {
	return xxhash.Sum64String(data)
}

// Payload returns the 32-bit payload hash carried by every part of a transmission:
// the low 32 bits of the xxHash64 of the serialised payload.
func Payload(data []byte) uint32 {
	return uint32(xxhash.Sum64(data))
}

// AssemblyKey hashes the key of an incoming transmission for shard selection.
func AssemblyKey(correspondent string, senderID, payloadHash uint32) uint64 {
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], senderID)
	binary.BigEndian.PutUint32(buf[4:], payloadHash)

	d := xxhash.New()
	_, _ = d.WriteString(correspondent)
	_, _ = d.Write(buf[:])

	return d.Sum64()
}
