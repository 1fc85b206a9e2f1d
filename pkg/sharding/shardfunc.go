package sharding

import "hash/crc64"

// KeyFunc maps an encoded routing key to a shard. The function must be
// deterministic: identical input bytes yield the same shard on every
// participant in the job.
type KeyFunc func(key []byte) int

var crc64table = crc64.MakeTable(crc64.ECMA)

// NewKeySharder returns a KeyFunc that hashes the encoded key and reduces it
// modulo the shard count.
func NewKeySharder(numShards int) KeyFunc {
	return func(key []byte) int {
		return int(crc64.Checksum(key, crc64table) % uint64(numShards))
	}
}

// IntSharder shards integer identifiers with a plain mod operation. Used by
// tooling that wants to reason about numeric key ranges directly.
func IntSharder(val uint64, numShards int) int {
	return int(val % uint64(numShards))
}
