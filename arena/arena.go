// Package arena implements the packed bit storage behind the scaling Bloom
// filter: a fixed-size array of cache-line sized blocks addressed with
// one-hashing.
//
// Every item touches exactly one 512-bit block. Its single xxh3 hash selects
// the block with the upper 32 bits, and the lower 32 bits taken modulo k
// distinct partition sizes select one bit inside each partition of the block.
package arena

import (
	"fmt"
	"math/bits"
	"unsafe"

	"github.com/jcalabro/sketchkv/internal/wire"
	"github.com/jcalabro/sketchkv/sketcherr"
	"github.com/zeebo/xxh3"
)

// cacheLineSize is the size of a CPU cache line in bytes.
const cacheLineSize = 64

// Arena is a fixed-size blocked bit array. It is not safe for concurrent use.
type Arena struct {
	raw       []byte   // backing allocation, keeps the aligned view alive
	blocks    []uint64 // BlockWords words per block, cache-line aligned
	numBlocks uint64
	k         uint32
	primes    []uint32
	offsets   []uint32
	count     uint64 // number of Add calls
}

// New returns an arena sized for capacity items at the given false positive rate.
func New(capacity uint64, fpRate float64) *Arena {
	numBlocks, k, _ := OptimalParams(capacity, fpRate)
	return NewWithParams(numBlocks, k)
}

// NewWithParams returns an arena of numBlocks 512-bit blocks split into k
// partitions. Out of range values are clamped, numBlocks to
// [1, MaxNumBlocks]. Callers that must not silently shrink check Fits first.
func NewWithParams(numBlocks uint64, k uint32) *Arena {
	numBlocks = min(max(numBlocks, 1), MaxNumBlocks)
	k = min(max(k, MinK), MaxK)
	primes := partition(k)
	raw, blocks := makeAlignedUint64Slice(int(numBlocks * BlockWords))
	return &Arena{
		raw:       raw,
		blocks:    blocks,
		numBlocks: numBlocks,
		k:         k,
		primes:    primes,
		offsets:   partitionOffsets(primes),
	}
}

// makeAlignedUint64Slice allocates a cache-line aligned slice of n uint64s.
// The raw slice must stay reachable for as long as the aligned one is used.
func makeAlignedUint64Slice(n int) ([]byte, []uint64) {
	raw := make([]byte, n*8+cacheLineSize-1)
	addr := uintptr(unsafe.Pointer(&raw[0]))
	offset := (cacheLineSize - int(addr%cacheLineSize)) % cacheLineSize
	aligned := unsafe.Slice((*uint64)(unsafe.Pointer(&raw[offset])), n)
	return raw, aligned
}

// Add sets the bits for item.
func (a *Arena) Add(item []byte) {
	a.AddHash(Hash(item))
}

// AddString sets the bits for item.
func (a *Arena) AddString(item string) {
	a.AddHash(HashString(item))
}

// AddHash sets the bits for an item whose Hash is h.
func (a *Arena) AddHash(h uint64) {
	blockIdx, intraHash := locate(h, a.numBlocks)
	base := blockIdx * BlockWords
	for i := uint32(0); i < a.k; i++ {
		bitPos := a.offsets[i] + intraHash%a.primes[i]
		a.blocks[base+uint64(bitPos/64)] |= 1 << (bitPos % 64)
	}
	a.count++
}

// Test reports whether item may have been added. False means definitely not.
func (a *Arena) Test(item []byte) bool {
	return a.TestHash(Hash(item))
}

// TestString reports whether item may have been added.
func (a *Arena) TestString(item string) bool {
	return a.TestHash(HashString(item))
}

// TestHash reports whether an item whose Hash is h may have been added.
func (a *Arena) TestHash(h uint64) bool {
	blockIdx, intraHash := locate(h, a.numBlocks)
	base := blockIdx * BlockWords
	for i := uint32(0); i < a.k; i++ {
		bitPos := a.offsets[i] + intraHash%a.primes[i]
		if a.blocks[base+uint64(bitPos/64)]&(1<<(bitPos%64)) == 0 {
			return false
		}
	}
	return true
}

// Bits returns the size of the arena in bits.
func (a *Arena) Bits() uint64 {
	return a.numBlocks * BlockBits
}

// Bytes returns the size of the bit array in bytes.
func (a *Arena) Bytes() uint64 {
	return a.numBlocks * BlockBits / 8
}

// K returns the number of partitions set per item.
func (a *Arena) K() uint32 {
	return a.k
}

// Count returns the number of items added.
func (a *Arena) Count() uint64 {
	return a.count
}

// NumBlocks returns the number of 512-bit blocks.
func (a *Arena) NumBlocks() uint64 {
	return a.numBlocks
}

// FillRatio returns the proportion of bits that are set.
func (a *Arena) FillRatio() float64 {
	var set uint64
	for _, word := range a.blocks {
		set += uint64(bits.OnesCount64(word))
	}
	return float64(set) / float64(a.Bits())
}

// EstimatedFalsePositiveRate estimates the current false positive rate from
// the number of items added.
func (a *Arena) EstimatedFalsePositiveRate() float64 {
	return EstimateFalsePositiveRate(a.numBlocks, a.k, a.count)
}

// Digest returns an xxh3 hash of the bit array. Two arenas with equal
// digests and parameters hold identical bits with overwhelming probability.
func (a *Arena) Digest() uint64 {
	h := xxh3.New()
	var word [8]byte
	for _, w := range a.blocks {
		for i := range word {
			word[i] = byte(w >> (8 * i))
		}
		_, _ = h.Write(word[:])
	}
	return h.Sum64()
}

const (
	// serializeVersion is the current serialization format version.
	serializeVersion byte = 1

	// headerSize is Version (1) + K (4) + NumBlocks (8) + Count (8).
	headerSize = 21
)

// MarshalBinary encodes the arena as:
//   - Version (1 byte)
//   - K (4 bytes, little-endian)
//   - NumBlocks (8 bytes, little-endian)
//   - Count (8 bytes, little-endian)
//   - Blocks (NumBlocks * 64 bytes, little-endian uint64s)
//
// Partition sizes are derived from K and not stored.
func (a *Arena) MarshalBinary() ([]byte, error) {
	w := wire.NewWriter(headerSize + int(a.Bytes()))
	w.Uint8(serializeVersion)
	w.Uint32(a.k)
	w.Uint64(a.numBlocks)
	w.Uint64(a.count)
	for _, word := range a.blocks {
		w.Uint64(word)
	}
	return w.Data(), nil
}

// UnmarshalBinary decodes an arena produced by MarshalBinary.
func UnmarshalBinary(data []byte) (*Arena, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: arena too short (got %d bytes, need at least %d)",
			sketcherr.ErrInvalidData, len(data), headerSize)
	}

	r := wire.NewReader(data)
	if version := r.Uint8(); version != serializeVersion {
		return nil, fmt.Errorf("%w: arena version %d, expected %d",
			sketcherr.ErrUnsupportedVersion, version, serializeVersion)
	}
	k := r.Uint32()
	numBlocks := r.Uint64()
	count := r.Uint64()

	primes := partition(k)
	if primes == nil {
		return nil, fmt.Errorf("%w: k=%d is not supported (valid range: %d-%d)",
			sketcherr.ErrInvalidData, k, MinK, MaxK)
	}
	if numBlocks == 0 || numBlocks > MaxNumBlocks {
		return nil, fmt.Errorf("%w: invalid block count %d", sketcherr.ErrInvalidData, numBlocks)
	}
	if want := headerSize + numBlocks*BlockWords*8; uint64(len(data)) != want {
		return nil, fmt.Errorf("%w: arena length mismatch (got %d bytes, expected %d)",
			sketcherr.ErrInvalidData, len(data), want)
	}

	raw, blocks := makeAlignedUint64Slice(int(numBlocks * BlockWords))
	for i := range blocks {
		blocks[i] = r.Uint64()
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}

	return &Arena{
		raw:       raw,
		blocks:    blocks,
		numBlocks: numBlocks,
		k:         k,
		primes:    primes,
		offsets:   partitionOffsets(primes),
		count:     count,
	}, nil
}
