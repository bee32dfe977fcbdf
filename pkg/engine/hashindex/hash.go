package hashindex

import (
	"encoding/binary"
	"hash/fnv"
)

// HashString FNV-hashes a string key.
func HashString(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

// HashInt64 FNV-hashes an int64 key's big-endian bytes.
func HashInt64(v int64) uint32 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	h := fnv.New32a()
	_, _ = h.Write(buf[:])
	return h.Sum32()
}
