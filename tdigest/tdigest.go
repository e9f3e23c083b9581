// Package tdigest implements a merging t-digest: a compact summary of a
// distribution of weighted values that answers quantile and CDF queries with
// accuracy that is highest near the tails.
//
// Additions are appended to an unmerged buffer. When the buffer fills, or
// before any query, buffered and merged centroids are sorted together and
// adjacent centroids are combined while the combined centroid stays within
// the size bound for its position in the distribution:
//
//	w <= total * q(1-q) * 2*pi*ln(total) / compression
//
// so centroids near q=0 and q=1 stay small.
package tdigest

import (
	"fmt"
	"math"
	"sort"

	"github.com/jcalabro/sketchkv/sketcherr"
)

// maxCompression bounds the configured compression.
const maxCompression = 1 << 20

// Digest is a merging t-digest. It is not safe for concurrent use.
type Digest struct {
	compression       float64
	capacity          int
	merged            []centroid // sorted by mean
	unmerged          []centroid
	mergedWeight      float64
	unmergedWeight    float64
	min, max          float64
	totalCompressions uint64
}

type centroid struct {
	mean   float64
	weight float64
}

// New returns an empty digest. Larger compression keeps more centroids and
// gives more accurate estimates.
func New(compression float64) (*Digest, error) {
	if !(compression > 0 && compression <= maxCompression) {
		return nil, fmt.Errorf("%w: tdigest: compression must be in (0, %d], got %v",
			sketcherr.ErrConfiguration, maxCompression, compression)
	}
	d := &Digest{
		compression: compression,
		capacity:    int(6*compression) + 10,
	}
	d.Reset()
	return d, nil
}

// Reset removes every observation while keeping the compression.
func (d *Digest) Reset() {
	d.merged = d.merged[:0]
	d.unmerged = d.unmerged[:0]
	d.mergedWeight = 0
	d.unmergedWeight = 0
	d.min = math.Inf(1)
	d.max = math.Inf(-1)
	d.totalCompressions = 0
}

// Add records value with the given positive weight.
func (d *Digest) Add(value, weight float64) error {
	if err := validate(value, weight); err != nil {
		return err
	}
	d.add(value, weight)
	return nil
}

// AddBatch records values with their weights. Every pair is validated
// before any is recorded.
func (d *Digest) AddBatch(values, weights []float64) error {
	if len(values) != len(weights) {
		return fmt.Errorf("%w: tdigest: %d values but %d weights", sketcherr.ErrArityMismatch, len(values), len(weights))
	}
	for i := range values {
		if err := validate(values[i], weights[i]); err != nil {
			return err
		}
	}
	for i := range values {
		d.add(values[i], weights[i])
	}
	return nil
}

func validate(value, weight float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: tdigest: value %v is not finite", sketcherr.ErrInvalidArgument, value)
	}
	if !(weight > 0) || math.IsInf(weight, 0) {
		return fmt.Errorf("%w: tdigest: weight %v must be positive and finite", sketcherr.ErrInvalidArgument, weight)
	}
	return nil
}

func (d *Digest) add(value, weight float64) {
	if len(d.merged)+len(d.unmerged) >= d.capacity {
		d.Compress()
	}
	d.unmerged = append(d.unmerged, centroid{mean: value, weight: weight})
	d.unmergedWeight += weight
	d.min = math.Min(d.min, value)
	d.max = math.Max(d.max, value)
}

// Merge adds every observation of src to d. src is compressed first.
func (d *Digest) Merge(src *Digest) {
	src.Compress()
	// Copy first: src may be d.
	nodes := append([]centroid(nil), src.merged...)
	for _, c := range nodes {
		d.add(c.mean, c.weight)
	}
	if len(nodes) > 0 {
		d.min = math.Min(d.min, src.min)
		d.max = math.Max(d.max, src.max)
	}
}

// Compress folds the unmerged buffer into the merged centroids.
func (d *Digest) Compress() {
	if len(d.unmerged) == 0 {
		return
	}
	nodes := append(d.merged, d.unmerged...)
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].mean < nodes[j].mean })

	total := d.mergedWeight + d.unmergedWeight
	// ln(total) is clamped to 1 so that digests of small total weight
	// still merge.
	normalizer := d.compression / (2 * math.Pi * total * math.Log(max(total, math.E)))

	cur := 0
	var weightSoFar float64
	for i := 1; i < len(nodes); i++ {
		proposed := nodes[cur].weight + nodes[i].weight
		z := proposed * normalizer
		q0 := weightSoFar / total
		q2 := (weightSoFar + proposed) / total
		if z <= q0*(1-q0) && z <= q2*(1-q2) {
			nodes[cur].weight = proposed
			nodes[cur].mean += (nodes[i].mean - nodes[cur].mean) * nodes[i].weight / proposed
		} else {
			weightSoFar += nodes[cur].weight
			cur++
			nodes[cur] = nodes[i]
		}
	}

	d.merged = nodes[:cur+1]
	d.unmerged = d.unmerged[:0]
	d.mergedWeight = total
	d.unmergedWeight = 0
	d.totalCompressions++
}

// Min returns the smallest value added, or NaN for an empty digest.
func (d *Digest) Min() float64 {
	if d.empty() {
		return math.NaN()
	}
	return d.min
}

// Max returns the largest value added, or NaN for an empty digest.
func (d *Digest) Max() float64 {
	if d.empty() {
		return math.NaN()
	}
	return d.max
}

func (d *Digest) empty() bool {
	return len(d.merged) == 0 && len(d.unmerged) == 0
}

// TotalWeight returns the sum of all weights added.
func (d *Digest) TotalWeight() float64 {
	return d.mergedWeight + d.unmergedWeight
}

// weightedAverage interpolates between x1 and x2, clamped to their range.
func weightedAverage(x1, w1, x2, w2 float64) float64 {
	if x1 > x2 {
		x1, w1, x2, w2 = x2, w2, x1, w1
	}
	v := (x1*w1 + x2*w2) / (w1 + w2)
	return math.Max(x1, math.Min(v, x2))
}

// Quantile returns the estimated value below which a fraction q of the
// weight lies. Quantile(0) is the minimum and Quantile(1) the maximum. It
// returns NaN for an empty digest or q outside [0, 1].
func (d *Digest) Quantile(q float64) float64 {
	d.Compress()
	n := len(d.merged)
	if n == 0 || !(q >= 0 && q <= 1) {
		return math.NaN()
	}
	if n == 1 && q != 0 && q != 1 {
		return d.merged[0].mean
	}

	total := d.mergedWeight
	index := q * total
	if index < 1 {
		return d.min
	}
	if index > total-1 {
		return d.max
	}

	nodes := d.merged
	first, last := nodes[0], nodes[n-1]
	if first.weight > 1 && index < first.weight/2 {
		return d.min + (index-1)/(first.weight/2-1)*(first.mean-d.min)
	}
	if last.weight > 1 && total-index <= last.weight/2 {
		return d.max - (total-index-1)/(last.weight/2-1)*(d.max-last.mean)
	}

	weightSoFar := first.weight / 2
	for i := 0; i < n-1; i++ {
		dw := (nodes[i].weight + nodes[i+1].weight) / 2
		if weightSoFar+dw > index {
			var leftUnit, rightUnit float64
			if nodes[i].weight == 1 {
				if index-weightSoFar < 0.5 {
					return nodes[i].mean
				}
				leftUnit = 0.5
			}
			if nodes[i+1].weight == 1 {
				if weightSoFar+dw-index <= 0.5 {
					return nodes[i+1].mean
				}
				rightUnit = 0.5
			}
			z1 := index - weightSoFar - leftUnit
			z2 := weightSoFar + dw - index - rightUnit
			return weightedAverage(nodes[i].mean, z2, nodes[i+1].mean, z1)
		}
		weightSoFar += dw
	}

	z1 := index - total - last.weight/2
	z2 := last.weight/2 - z1
	return weightedAverage(last.mean, z1, d.max, z2)
}

// CDF returns the estimated fraction of weight at or below value, counting
// half of the weight of a centroid located exactly at value. It returns NaN
// for an empty digest.
func (d *Digest) CDF(value float64) float64 {
	d.Compress()
	n := len(d.merged)
	if n == 0 || math.IsNaN(value) {
		return math.NaN()
	}
	if value < d.min {
		return 0
	}
	if value > d.max {
		return 1
	}
	if n == 1 {
		if d.max-d.min == 0 {
			return 0.5
		}
		return (value - d.min) / (d.max - d.min)
	}

	total := d.mergedWeight
	nodes := d.merged
	first, last := nodes[0], nodes[n-1]

	if value < first.mean {
		if first.mean-d.min > 0 {
			if value == d.min {
				return 0.5 / total
			}
			return (1 + (value-d.min)/(first.mean-d.min)*(first.weight/2-1)) / total
		}
		return 0
	}
	if value > last.mean {
		if d.max-last.mean > 0 {
			if value == d.max {
				return 1 - 0.5/total
			}
			return 1 - (1+(d.max-value)/(d.max-last.mean)*(last.weight/2-1))/total
		}
		return 1
	}

	var weightSoFar float64
	for i := 0; i < n-1; i++ {
		cur, next := nodes[i], nodes[i+1]
		if cur.mean == value {
			var dw float64
			for j := i; j < n && nodes[j].mean == value; j++ {
				dw += nodes[j].weight
			}
			return (weightSoFar + dw/2) / total
		}
		if cur.mean <= value && value < next.mean {
			if next.mean-cur.mean > 0 {
				var leftExcluded, rightExcluded float64
				if cur.weight == 1 {
					if next.weight == 1 {
						return (weightSoFar + 1) / total
					}
					leftExcluded = 0.5
				} else if next.weight == 1 {
					rightExcluded = 0.5
				}
				dw := (cur.weight + next.weight) / 2
				base := weightSoFar + cur.weight/2 + leftExcluded
				return (base + (dw-leftExcluded-rightExcluded)*(value-cur.mean)/(next.mean-cur.mean)) / total
			}
			return (weightSoFar + (cur.weight+next.weight)/2) / total
		}
		weightSoFar += cur.weight
	}
	// value == last.mean
	return 1 - 0.5/total
}

// Info describes a digest.
type Info struct {
	Compression       float64 `json:"compression"`
	Capacity          int     `json:"capacity"`
	MergedNodes       int     `json:"mergedNodes"`
	UnmergedNodes     int     `json:"unmergedNodes"`
	MergedWeight      float64 `json:"mergedWeight"`
	UnmergedWeight    float64 `json:"unmergedWeight"`
	TotalCompressions uint64  `json:"totalCompressions"`
}

// Info returns the digest's counters without compressing it.
func (d *Digest) Info() Info {
	return Info{
		Compression:       d.compression,
		Capacity:          d.capacity,
		MergedNodes:       len(d.merged),
		UnmergedNodes:     len(d.unmerged),
		MergedWeight:      d.mergedWeight,
		UnmergedWeight:    d.unmergedWeight,
		TotalCompressions: d.totalCompressions,
	}
}
