package common

import "hash/fnv"

// Hash32 is the FNV-1a hash used to fold node names into the address range.
func Hash32(data []byte) uint32 {
	h := fnv.New32a()
	h.Write(data)
	return h.Sum32()
}
