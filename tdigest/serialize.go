package tdigest

import (
	"fmt"
	"math"

	"github.com/jcalabro/sketchkv/internal/wire"
	"github.com/jcalabro/sketchkv/sketcherr"
	"github.com/zeebo/xxh3"
)

const serializeVersion byte = 1

// MarshalBinary encodes the digest, including its unmerged buffer, so that a
// decoded digest answers every query identically.
func (d *Digest) MarshalBinary() ([]byte, error) {
	w := wire.NewWriter(64 + 16*(len(d.merged)+len(d.unmerged)))
	w.Uint8(serializeVersion)
	w.Float64(d.compression)
	w.Float64(d.min)
	w.Float64(d.max)
	w.Float64(d.mergedWeight)
	w.Float64(d.unmergedWeight)
	w.Uint64(d.totalCompressions)
	writeCentroids(w, d.merged)
	writeCentroids(w, d.unmerged)
	return w.Data(), nil
}

func writeCentroids(w *wire.Writer, cs []centroid) {
	w.Uint32(uint32(len(cs)))
	for _, c := range cs {
		w.Float64(c.mean)
		w.Float64(c.weight)
	}
}

func readCentroids(r *wire.Reader) []centroid {
	n := r.Uint32()
	if r.Err() != nil {
		return nil
	}
	if uint64(n)*16 > uint64(r.Remaining()) {
		r.Fail("tdigest centroid count %d exceeds input", n)
		return nil
	}
	cs := make([]centroid, n)
	for i := range cs {
		cs[i] = centroid{mean: r.Float64(), weight: r.Float64()}
		if math.IsNaN(cs[i].mean) || !(cs[i].weight > 0) {
			r.Fail("tdigest centroid %d is invalid", i)
			return nil
		}
	}
	return cs
}

// UnmarshalBinary decodes a digest produced by MarshalBinary.
func UnmarshalBinary(data []byte) (*Digest, error) {
	r := wire.NewReader(data)
	if version := r.Uint8(); r.Err() == nil && version != serializeVersion {
		return nil, fmt.Errorf("%w: tdigest version %d, expected %d", sketcherr.ErrUnsupportedVersion, version, serializeVersion)
	}
	d := &Digest{
		compression:       r.Float64(),
		min:               r.Float64(),
		max:               r.Float64(),
		mergedWeight:      r.Float64(),
		unmergedWeight:    r.Float64(),
		totalCompressions: r.Uint64(),
	}
	if r.Err() == nil && !(d.compression > 0 && d.compression <= maxCompression) {
		r.Fail("tdigest compression %v", d.compression)
	}
	d.merged = readCentroids(r)
	d.unmerged = readCentroids(r)
	if err := r.Finish(); err != nil {
		return nil, err
	}
	d.capacity = int(6*d.compression) + 10
	if len(d.merged)+len(d.unmerged) > d.capacity {
		return nil, fmt.Errorf("%w: tdigest holds %d centroids, capacity %d",
			sketcherr.ErrInvalidData, len(d.merged)+len(d.unmerged), d.capacity)
	}
	return d, nil
}

// Debug returns the digest counters and a digest of its centroids.
func (d *Digest) Debug() []string {
	data, _ := d.MarshalBinary()
	info := d.Info()
	return []string{fmt.Sprintf("compression:%g capacity:%d merged_nodes:%d unmerged_nodes:%d merged_weight:%g unmerged_weight:%g total_compressions:%d digest:%016x",
		info.Compression, info.Capacity, info.MergedNodes, info.UnmergedNodes,
		info.MergedWeight, info.UnmergedWeight, info.TotalCompressions, xxh3.Hash(data))}
}
