// Package rowhash derives one column per row of a counter matrix from a
// single xxhash of the item, using double hashing h1 + row*h2.
package rowhash

import "github.com/cespare/xxhash/v2"

// Hashes holds the two base hashes of an item.
type Hashes struct {
	H1, H2 uint64
}

// Sum hashes item. H2 is a SplitMix64 finalization of H1 so the two are
// decorrelated without hashing the item twice.
func Sum(item string) Hashes {
	h := xxhash.Sum64String(item)
	h2 := h
	h2 ^= h2 >> 30
	h2 *= 0xbf58476d1ce4e5b9
	h2 ^= h2 >> 27
	h2 *= 0x94d049bb133111eb
	h2 ^= h2 >> 31
	return Hashes{H1: h, H2: h2}
}

// Column returns the column of row in a matrix of the given width.
func (h Hashes) Column(row, width uint32) uint32 {
	return uint32((h.H1 + uint64(row)*h.H2) % uint64(width))
}
