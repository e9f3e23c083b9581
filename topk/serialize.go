package topk

import (
	"fmt"
	"math/rand/v2"

	"github.com/jcalabro/sketchkv/internal/wire"
	"github.com/jcalabro/sketchkv/sketcherr"
	"github.com/zeebo/xxh3"
)

const serializeVersion byte = 1

// MarshalBinary encodes the parameters, random source state, counter matrix
// and heap slots of the tracker.
func (t *Tracker) MarshalBinary() ([]byte, error) {
	pcg, err := t.pcg.MarshalBinary()
	if err != nil {
		return nil, err
	}
	w := wire.NewWriter(32 + len(pcg) + 8*len(t.buckets) + 16*len(t.heap))
	w.Uint8(serializeVersion)
	w.Uint32(t.k)
	w.Uint32(t.width)
	w.Uint32(t.depth)
	w.Float64(t.decay)
	w.Bytes(pcg)
	t.writeBuckets(w)
	for _, e := range t.heap {
		w.Uint32(e.count)
		w.Uint32(e.fp)
		w.String(e.item)
	}
	return w.Data(), nil
}

func (t *Tracker) writeBuckets(w *wire.Writer) {
	for _, b := range t.buckets {
		w.Uint32(b.fp)
		w.Uint32(b.count)
	}
}

// UnmarshalBinary decodes a tracker produced by MarshalBinary.
func UnmarshalBinary(data []byte) (*Tracker, error) {
	r := wire.NewReader(data)
	if version := r.Uint8(); r.Err() == nil && version != serializeVersion {
		return nil, fmt.Errorf("%w: topk version %d, expected %d", sketcherr.ErrUnsupportedVersion, version, serializeVersion)
	}
	k, width, depth, decay := r.Uint32(), r.Uint32(), r.Uint32(), r.Float64()
	pcgState := r.Bytes()
	if err := r.Err(); err != nil {
		return nil, err
	}

	cells := uint64(width) * uint64(depth)
	if k == 0 || k > maxK || cells == 0 || cells > maxCells || !(decay > 0 && decay < 1) ||
		cells*8+uint64(k)*16 > uint64(r.Remaining()) {
		return nil, fmt.Errorf("%w: topk parameters k=%d %dx%d decay=%v", sketcherr.ErrInvalidData, k, width, depth, decay)
	}

	pcg := new(rand.PCG)
	if err := pcg.UnmarshalBinary(pcgState); err != nil {
		return nil, fmt.Errorf("%w: topk random state: %v", sketcherr.ErrInvalidData, err)
	}

	t := &Tracker{
		k:       k,
		width:   width,
		depth:   depth,
		decay:   decay,
		buckets: make([]bucket, cells),
		heap:    make([]heapItem, k),
	}
	t.init(pcg)
	for i := range t.buckets {
		t.buckets[i] = bucket{fp: r.Uint32(), count: r.Uint32()}
	}
	for i := range t.heap {
		t.heap[i] = heapItem{count: r.Uint32(), fp: r.Uint32(), item: r.String()}
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return t, nil
}

// Debug returns the tracker parameters, a digest of the counter matrix and
// the raw heap slots in heap order.
func (t *Tracker) Debug() []string {
	w := wire.NewWriter(8 * len(t.buckets))
	t.writeBuckets(w)
	lines := []string{fmt.Sprintf("k:%d width:%d depth:%d decay:%g digest:%016x",
		t.k, t.width, t.depth, t.decay, xxh3.Hash(w.Data()))}
	for i, e := range t.heap {
		lines = append(lines, fmt.Sprintf("heap[%d] count:%d fp:%08x item:%q", i, e.count, e.fp, e.item))
	}
	return lines
}
