package arena

import "github.com/zeebo/xxh3"

// Hash returns the 64-bit xxh3 hash of an item. A chain of arenas hashes an
// item once with Hash and queries every arena with AddHash/TestHash.
func Hash(item []byte) uint64 {
	return xxh3.Hash(item)
}

// HashString is Hash for strings, without the []byte conversion.
func HashString(item string) uint64 {
	return xxh3.HashString(item)
}

// locate splits a 64-bit hash into block index and intra-block hash.
func locate(h uint64, numBlocks uint64) (blockIdx uint64, intraHash uint32) {
	// Upper 32 bits select the block; lower 32 bits drive the partitions.
	blockIdx = (h >> 32) % numBlocks
	intraHash = uint32(h)
	return
}
