package cuckoo

import (
	"fmt"
	"math/rand/v2"

	"github.com/jcalabro/sketchkv/internal/wire"
	"github.com/jcalabro/sketchkv/sketcherr"
	"github.com/zeebo/xxh3"
)

const serializeVersion byte = 1

// MarshalBinary encodes the filter parameters, counters, random source state
// and every sub-filter's slots in little-endian order.
func (f *Filter) MarshalBinary() ([]byte, error) {
	pcg, err := f.pcg.MarshalBinary()
	if err != nil {
		return nil, err
	}

	size := 64 + len(pcg)
	for _, s := range f.subs {
		size += 8 + 2*len(s.slots)
	}
	w := wire.NewWriter(size)
	w.Uint8(serializeVersion)
	w.Uint64(f.capacity)
	w.Uint16(f.bucketSize)
	w.Uint16(f.maxIterations)
	w.Uint16(f.expansion)
	w.Uint64(f.inserted)
	w.Uint64(f.deleted)
	w.Bytes(pcg)
	w.Uint32(uint32(len(f.subs)))
	for _, s := range f.subs {
		w.Uint64(s.numBuckets)
		for _, fp := range s.slots {
			w.Uint16(fp)
		}
	}
	return w.Data(), nil
}

// UnmarshalBinary decodes a filter produced by MarshalBinary.
func UnmarshalBinary(data []byte) (*Filter, error) {
	r := wire.NewReader(data)
	if version := r.Uint8(); r.Err() == nil && version != serializeVersion {
		return nil, fmt.Errorf("%w: cuckoo version %d, expected %d", sketcherr.ErrUnsupportedVersion, version, serializeVersion)
	}

	f := &Filter{
		capacity:      r.Uint64(),
		bucketSize:    r.Uint16(),
		maxIterations: r.Uint16(),
		expansion:     r.Uint16(),
		inserted:      r.Uint64(),
		deleted:       r.Uint64(),
	}
	pcgState := r.Bytes()
	numSubs := r.Uint32()
	if err := r.Err(); err != nil {
		return nil, err
	}
	switch {
	case f.capacity == 0:
		r.Fail("cuckoo capacity is zero")
	case f.bucketSize == 0 || f.bucketSize > MaxBucketSize:
		r.Fail("cuckoo bucket size %d", f.bucketSize)
	case f.maxIterations == 0:
		r.Fail("cuckoo max iterations is zero")
	case f.expansion > MaxExpansion:
		r.Fail("cuckoo expansion %d", f.expansion)
	case f.deleted > f.inserted:
		r.Fail("cuckoo deletions %d exceed insertions %d", f.deleted, f.inserted)
	case numSubs == 0:
		r.Fail("cuckoo has no sub-filters")
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	pcg := new(rand.PCG)
	if err := pcg.UnmarshalBinary(pcgState); err != nil {
		return nil, fmt.Errorf("%w: cuckoo random state: %v", sketcherr.ErrInvalidData, err)
	}
	f.seed(pcg)

	bucketSize := uint64(f.bucketSize)
	for range numSubs {
		numBuckets := r.Uint64()
		if r.Err() != nil {
			break
		}
		if numBuckets == 0 || numBuckets&(numBuckets-1) != 0 || !subFits(numBuckets, bucketSize) ||
			numBuckets*bucketSize*2 > uint64(r.Remaining()) {
			r.Fail("cuckoo sub-filter with %d buckets", numBuckets)
			break
		}
		s := &subFilter{
			numBuckets: numBuckets,
			bucketSize: bucketSize,
			slots:      make([]uint16, numBuckets*bucketSize),
		}
		for i := range s.slots {
			s.slots[i] = r.Uint16()
		}
		f.subs = append(f.subs, s)
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return f, nil
}

// Debug returns a summary line followed by one line per sub-filter, with a
// digest of its slots for comparing filters.
func (f *Filter) Debug() []string {
	info := f.Info()
	lines := []string{fmt.Sprintf("bktsize:%d buckets:%d items:%d deletes:%d filters:%d max_iterations:%d expansion:%d",
		info.BucketSize, info.NumBuckets, info.InsertedNum-info.DeletedNum, info.DeletedNum,
		info.FilterNum, info.MaxIterations, info.ExpansionRate)}
	for _, s := range f.subs {
		w := wire.NewWriter(2 * len(s.slots))
		for _, fp := range s.slots {
			w.Uint16(fp)
		}
		lines = append(lines, fmt.Sprintf("buckets:%d slots:%d digest:%016x", s.numBuckets, len(s.slots), xxh3.Hash(w.Data())))
	}
	return lines
}
