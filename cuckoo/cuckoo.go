// Package cuckoo implements a Cuckoo filter: a set-membership filter that
// stores 16-bit fingerprints in buckets, supports deletion and counting, and
// grows by appending sub-filters.
//
// Each item has two candidate buckets, i1 = hash & mask and
// i2 = i1 ^ hash(fingerprint) & mask, so either bucket can be derived from
// the other and the fingerprint alone. Insertion relocates resident
// fingerprints between their candidate buckets for a bounded number of
// kicks; a failed walk is rolled back so the filter never loses an item.
package cuckoo

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/jcalabro/sketchkv/sketcherr"
	"github.com/zeebo/xxh3"
)

// Creation defaults and limits.
const (
	DefaultBucketSize    = 2
	DefaultMaxIterations = 20
	DefaultExpansion     = 1

	MaxBucketSize = 255
	MaxIterations = 65535
	MaxExpansion  = 32768

	// MaxSlotsPerSub bounds one sub-filter to 1 GiB of fingerprints.
	MaxSlotsPerSub = 1 << 29
)

// emptySlot marks an unused slot; fingerprints are never zero.
const emptySlot = 0

// altMultiplier scatters a fingerprint before it is xor-ed into a bucket index.
const altMultiplier = 0x5bd1e995

// PCG seeds for the relocation victim choice.
const (
	rngSeed1 = 0x2545f4914f6cdd1d
	rngSeed2 = 0x9e3779b97f4a7c15
)

// Options are the optional creation parameters of a Filter. Nil fields
// select the defaults. An explicit zero bucket size or iteration limit is
// rejected; an explicit zero expansion disables growth.
type Options struct {
	BucketSize    *uint16
	MaxIterations *uint16
	Expansion     *uint16
}

// Filter is a growable Cuckoo filter. It is not safe for concurrent use.
type Filter struct {
	capacity      uint64
	bucketSize    uint16
	maxIterations uint16
	expansion     uint16
	subs          []*subFilter
	inserted      uint64 // cumulative successful insertions
	deleted       uint64 // cumulative successful deletions
	pcg           *rand.PCG
	rng           *rand.Rand
}

// subFilter is a fixed table of numBuckets*bucketSize fingerprint slots.
type subFilter struct {
	numBuckets uint64 // power of two
	bucketSize uint64
	slots      []uint16
}

// New returns a filter whose first sub-filter holds capacity fingerprints.
func New(capacity uint64, opts Options) (*Filter, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("%w: cuckoo: capacity must be positive", sketcherr.ErrConfiguration)
	}
	f := &Filter{
		capacity:      capacity,
		bucketSize:    DefaultBucketSize,
		maxIterations: DefaultMaxIterations,
		expansion:     DefaultExpansion,
	}
	if opts.BucketSize != nil {
		f.bucketSize = *opts.BucketSize
	}
	if opts.MaxIterations != nil {
		f.maxIterations = *opts.MaxIterations
	}
	if opts.Expansion != nil {
		f.expansion = *opts.Expansion
	}
	if f.bucketSize == 0 || f.bucketSize > MaxBucketSize {
		return nil, fmt.Errorf("%w: cuckoo: bucket size must be in [1, %d], got %d", sketcherr.ErrConfiguration, MaxBucketSize, f.bucketSize)
	}
	if f.maxIterations == 0 {
		return nil, fmt.Errorf("%w: cuckoo: max iterations must be positive", sketcherr.ErrConfiguration)
	}
	if f.expansion > MaxExpansion {
		return nil, fmt.Errorf("%w: cuckoo: expansion must be in [0, %d], got %d", sketcherr.ErrConfiguration, MaxExpansion, f.expansion)
	}
	sub, ok := newSubFilter(capacity, uint64(f.bucketSize))
	if !ok {
		return nil, fmt.Errorf("%w: cuckoo: capacity %d exceeds %d slots",
			sketcherr.ErrConfiguration, capacity, MaxSlotsPerSub)
	}
	f.subs = []*subFilter{sub}
	f.seed(rand.NewPCG(rngSeed1, rngSeed2))
	return f, nil
}

func (f *Filter) seed(pcg *rand.PCG) {
	f.pcg = pcg
	f.rng = rand.New(pcg)
}

// newSubFilter returns an empty sub-filter for capacity fingerprints, or
// false if its slots would exceed MaxSlotsPerSub.
func newSubFilter(capacity, bucketSize uint64) (*subFilter, bool) {
	buckets := capacity / bucketSize
	if capacity%bucketSize != 0 {
		buckets++
	}
	if buckets > MaxSlotsPerSub/bucketSize {
		return nil, false
	}
	numBuckets := nextPowerOf2(buckets)
	if !subFits(numBuckets, bucketSize) {
		return nil, false
	}
	return &subFilter{
		numBuckets: numBuckets,
		bucketSize: bucketSize,
		slots:      make([]uint16, numBuckets*bucketSize),
	}, true
}

func subFits(numBuckets, bucketSize uint64) bool {
	return numBuckets <= MaxSlotsPerSub/bucketSize
}

// nextPowerOf2 returns the smallest power of 2 >= n.
func nextPowerOf2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// hashItem returns the item's 64-bit hash and its non-zero fingerprint.
func hashItem(item string) (uint64, uint16) {
	h := xxh3.HashString(item)
	fp := uint16(h >> 48)
	if fp == emptySlot {
		fp = 1
	}
	return h, fp
}

func (s *subFilter) mask() uint64 {
	return s.numBuckets - 1
}

func (s *subFilter) index(h uint64) uint64 {
	return h & s.mask()
}

func (s *subFilter) alt(idx uint64, fp uint16) uint64 {
	return (idx ^ uint64(fp)*altMultiplier) & s.mask()
}

func (s *subFilter) bucket(idx uint64) []uint16 {
	return s.slots[idx*s.bucketSize : (idx+1)*s.bucketSize]
}

func (s *subFilter) insert(idx uint64, fp uint16) bool {
	b := s.bucket(idx)
	for i := range b {
		if b[i] == emptySlot {
			b[i] = fp
			return true
		}
	}
	return false
}

func (s *subFilter) count(idx uint64, fp uint16) uint64 {
	var n uint64
	for _, v := range s.bucket(idx) {
		if v == fp {
			n++
		}
	}
	return n
}

func (s *subFilter) remove(idx uint64, fp uint16) bool {
	b := s.bucket(idx)
	for i := range b {
		if b[i] == fp {
			b[i] = emptySlot
			return true
		}
	}
	return false
}

// candidates returns the two candidate buckets of h in s.
func (s *subFilter) candidates(h uint64, fp uint16) (uint64, uint64) {
	i1 := s.index(h)
	return i1, s.alt(i1, fp)
}

// Add inserts item. Duplicates are stored again. It fails with
// sketcherr.ErrCapacityExceeded when no slot can be found and the filter may
// not grow.
func (f *Filter) Add(item string) error {
	h, fp := hashItem(item)

	for i := len(f.subs) - 1; i >= 0; i-- {
		s := f.subs[i]
		i1, i2 := s.candidates(h, fp)
		if s.insert(i1, fp) || s.insert(i2, fp) {
			f.inserted++
			return nil
		}
	}

	newest := f.subs[len(f.subs)-1]
	if f.kickInsert(newest, h, fp) {
		f.inserted++
		return nil
	}

	if f.expansion == 0 {
		return fmt.Errorf("%w: cuckoo: filter is full", sketcherr.ErrCapacityExceeded)
	}
	sub, err := f.grow()
	if err != nil {
		return err
	}
	i1, _ := sub.candidates(h, fp)
	sub.insert(i1, fp)
	f.inserted++
	return nil
}

// AddNX inserts item unless it already tests present, and reports whether
// it was inserted.
func (f *Filter) AddNX(item string) (bool, error) {
	if f.Exists(item) {
		return false, nil
	}
	if err := f.Add(item); err != nil {
		return false, err
	}
	return true, nil
}

// kickInsert walks a relocation chain in s starting from one of the item's
// candidate buckets. When the walk exceeds maxIterations every swap is undone.
func (f *Filter) kickInsert(s *subFilter, h uint64, fp uint16) bool {
	type swap struct {
		pos  uint64
		prev uint16
	}

	i1, i2 := s.candidates(h, fp)
	idx := i1
	if f.rng.IntN(2) == 1 {
		idx = i2
	}

	path := make([]swap, 0, f.maxIterations)
	for range f.maxIterations {
		pos := idx*s.bucketSize + uint64(f.rng.IntN(int(s.bucketSize)))
		path = append(path, swap{pos: pos, prev: s.slots[pos]})
		fp, s.slots[pos] = s.slots[pos], fp

		idx = s.alt(idx, fp)
		if s.insert(idx, fp) {
			return true
		}
	}

	for j := len(path) - 1; j >= 0; j-- {
		s.slots[path[j].pos] = path[j].prev
	}
	return false
}

func (f *Filter) grow() (*subFilter, error) {
	capacity := f.capacity
	for range len(f.subs) {
		if capacity > math.MaxUint64/uint64(f.expansion) {
			return nil, fmt.Errorf("%w: cuckoo: next capacity overflows", sketcherr.ErrCapacityExceeded)
		}
		capacity *= uint64(f.expansion)
	}
	sub, ok := newSubFilter(capacity, uint64(f.bucketSize))
	if !ok {
		return nil, fmt.Errorf("%w: cuckoo: sub-filter of %d items exceeds %d slots",
			sketcherr.ErrCapacityExceeded, capacity, MaxSlotsPerSub)
	}
	f.subs = append(f.subs, sub)
	return sub, nil
}

// Exists reports whether item may be in the filter.
func (f *Filter) Exists(item string) bool {
	h, fp := hashItem(item)
	for i := len(f.subs) - 1; i >= 0; i-- {
		s := f.subs[i]
		i1, i2 := s.candidates(h, fp)
		if s.count(i1, fp) > 0 || s.count(i2, fp) > 0 {
			return true
		}
	}
	return false
}

// Count returns the number of stored fingerprints matching item. It never
// undercounts the item's live insertions but may include colliding items.
func (f *Filter) Count(item string) uint64 {
	h, fp := hashItem(item)
	var n uint64
	for _, s := range f.subs {
		i1, i2 := s.candidates(h, fp)
		n += s.count(i1, fp)
		if i2 != i1 {
			n += s.count(i2, fp)
		}
	}
	return n
}

// Delete removes one fingerprint matching item, searching the newest
// sub-filter first, and reports whether one was found.
func (f *Filter) Delete(item string) bool {
	h, fp := hashItem(item)
	for i := len(f.subs) - 1; i >= 0; i-- {
		s := f.subs[i]
		i1, i2 := s.candidates(h, fp)
		if s.remove(i1, fp) || s.remove(i2, fp) {
			f.deleted++
			return true
		}
	}
	return false
}

// Info describes a filter.
type Info struct {
	Size          uint64 `json:"size"`
	NumBuckets    uint64 `json:"numBuckets"`
	FilterNum     int    `json:"filterNum"`
	InsertedNum   uint64 `json:"insertedNum"`
	DeletedNum    uint64 `json:"deletedNum"`
	BucketSize    uint16 `json:"bucketSize"`
	ExpansionRate uint16 `json:"expansionRate"`
	MaxIterations uint16 `json:"maxIterations"`
	Capacity      uint64 `json:"capacity"`
}

// Info returns the filter's counters and parameters.
func (f *Filter) Info() Info {
	info := Info{
		FilterNum:     len(f.subs),
		InsertedNum:   f.inserted,
		DeletedNum:    f.deleted,
		BucketSize:    f.bucketSize,
		ExpansionRate: f.expansion,
		MaxIterations: f.maxIterations,
	}
	for _, s := range f.subs {
		info.NumBuckets += s.numBuckets
		info.Size += uint64(len(s.slots)) * 2
		info.Capacity += s.numBuckets * s.bucketSize
	}
	return info
}
