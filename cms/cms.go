// Package cms implements a Count-Min Sketch: a depth x width matrix of
// counters whose row-wise minimum bounds an item's frequency from above.
package cms

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/jcalabro/sketchkv/internal/rowhash"
	"github.com/jcalabro/sketchkv/sketcherr"
)

// maxCells bounds width*depth.
const maxCells = uint64(1) << 32

// Sketch is a Count-Min Sketch. It is not safe for concurrent use.
type Sketch struct {
	width    uint32
	depth    uint32
	counters []uint64 // row-major, depth rows of width counters
	count    uint64   // total weight added
}

// NewWithDim returns an empty sketch of the given dimensions.
func NewWithDim(width, depth uint32) (*Sketch, error) {
	if width == 0 || depth == 0 {
		return nil, fmt.Errorf("%w: cms: width and depth must be positive, got %dx%d",
			sketcherr.ErrConfiguration, width, depth)
	}
	if uint64(width)*uint64(depth) > maxCells {
		return nil, fmt.Errorf("%w: cms: %dx%d counters is too large", sketcherr.ErrConfiguration, width, depth)
	}
	return &Sketch{
		width:    width,
		depth:    depth,
		counters: make([]uint64, uint64(width)*uint64(depth)),
	}, nil
}

// NewWithProb returns a sketch whose estimates exceed the true count by at
// most epsilon * total with probability 1 - delta.
//
//	width = ceil(e / epsilon), depth = ceil(ln(1 / delta))
func NewWithProb(epsilon, delta float64) (*Sketch, error) {
	if !(epsilon > 0 && epsilon < 1) || !(delta > 0 && delta < 1) {
		return nil, fmt.Errorf("%w: cms: error and probability must be in (0, 1), got %v and %v",
			sketcherr.ErrConfiguration, epsilon, delta)
	}
	width, depth := DimFromProb(epsilon, delta)
	return NewWithDim(width, depth)
}

// DimFromProb converts error bounds into sketch dimensions.
func DimFromProb(epsilon, delta float64) (width, depth uint32) {
	w := math.Ceil(math.E / epsilon)
	d := math.Ceil(math.Log(1 / delta))
	return uint32(min(w, math.MaxUint32)), uint32(max(min(d, math.MaxUint32), 1))
}

// IncrBy adds incr to item's counters and returns its new estimate.
// Counters saturate instead of wrapping.
func (s *Sketch) IncrBy(item string, incr uint64) uint64 {
	h := rowhash.Sum(item)
	est := uint64(math.MaxUint64)
	for row := range s.depth {
		c := &s.counters[uint64(row)*uint64(s.width)+uint64(h.Column(row, s.width))]
		*c = saturatingAdd(*c, incr)
		est = min(est, *c)
	}
	s.count = saturatingAdd(s.count, incr)
	return est
}

// Query returns item's estimated count.
func (s *Sketch) Query(item string) uint64 {
	h := rowhash.Sum(item)
	est := uint64(math.MaxUint64)
	for row := range s.depth {
		est = min(est, s.counters[uint64(row)*uint64(s.width)+uint64(h.Column(row, s.width))])
	}
	return est
}

// Merge adds the weighted sum of sources into s:
//
//	s[r][c] += sum(weights[i] * sources[i][r][c])
//
// A nil weights slice weighs every source by one. The receiver may also
// appear among the sources. Nothing is modified when Merge fails.
func (s *Sketch) Merge(sources []*Sketch, weights []int64) error {
	if weights != nil && len(weights) != len(sources) {
		return fmt.Errorf("%w: cms: %d sources but %d weights", sketcherr.ErrArityMismatch, len(sources), len(weights))
	}
	for i, src := range sources {
		if src.width != s.width || src.depth != s.depth {
			return fmt.Errorf("%w: cms: source %d is %dx%d, destination is %dx%d",
				sketcherr.ErrDimensionMismatch, i, src.width, src.depth, s.width, s.depth)
		}
		if weights != nil && weights[i] < 0 {
			return fmt.Errorf("%w: cms: weight %d is negative", sketcherr.ErrInvalidArgument, weights[i])
		}
	}

	merged := make([]uint64, len(s.counters))
	copy(merged, s.counters)
	count := s.count
	for i, src := range sources {
		w := uint64(1)
		if weights != nil {
			w = uint64(weights[i])
		}
		for j, c := range src.counters {
			merged[j] = saturatingAdd(merged[j], saturatingMul(w, c))
		}
		count = saturatingAdd(count, saturatingMul(w, src.count))
	}

	s.counters = merged
	s.count = count
	return nil
}

func saturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

func saturatingMul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

// Width returns the number of counters per row.
func (s *Sketch) Width() uint32 { return s.width }

// Depth returns the number of rows.
func (s *Sketch) Depth() uint32 { return s.depth }

// Count returns the total weight added.
func (s *Sketch) Count() uint64 { return s.count }

// Info describes a sketch.
type Info struct {
	Width uint32 `json:"width"`
	Depth uint32 `json:"depth"`
	Count uint64 `json:"count"`
}

func (s *Sketch) Info() Info {
	return Info{Width: s.width, Depth: s.depth, Count: s.count}
}
