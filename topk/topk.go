// Package topk tracks the k most frequent items of a stream with the Heavy
// Keeper algorithm: a depth x width matrix of fingerprinted counters that
// decay probabilistically under contention, feeding a k-slot min-heap.
package topk

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/jcalabro/sketchkv/internal/rowhash"
	"github.com/jcalabro/sketchkv/sketcherr"
)

// Defaults used when a tracker is reserved with only k.
const (
	DefaultWidth = 8
	DefaultDepth = 7
	DefaultDecay = 0.9
)

const (
	// decayLookupSize caches decay^n for small counters.
	decayLookupSize = 256

	maxCells = uint64(1) << 32
	maxK     = uint32(1) << 20

	rngSeed1 = 0x853c49e6748fea9b
	rngSeed2 = 0xda3e39cb94b95bdb
)

// Tracker is a Heavy Keeper top-k tracker. It is not safe for concurrent use.
type Tracker struct {
	k       uint32
	width   uint32
	depth   uint32
	decay   float64
	buckets []bucket   // depth rows of width buckets
	heap    []heapItem // min-heap on count; empty slots have count 0
	lookup  [decayLookupSize]float64
	pcg     *rand.PCG
	rng     *rand.Rand
}

type bucket struct {
	fp    uint32
	count uint32
}

type heapItem struct {
	count uint32
	fp    uint32
	item  string
}

// New returns an empty tracker for the k heaviest items.
func New(k, width, depth uint32, decay float64) (*Tracker, error) {
	switch {
	case k == 0 || k > maxK:
		return nil, fmt.Errorf("%w: topk: k must be in [1, %d], got %d", sketcherr.ErrConfiguration, maxK, k)
	case width == 0 || depth == 0:
		return nil, fmt.Errorf("%w: topk: width and depth must be positive, got %dx%d", sketcherr.ErrConfiguration, width, depth)
	case uint64(width)*uint64(depth) > maxCells:
		return nil, fmt.Errorf("%w: topk: %dx%d counters is too large", sketcherr.ErrConfiguration, width, depth)
	case !(decay > 0 && decay < 1):
		return nil, fmt.Errorf("%w: topk: decay must be in (0, 1), got %v", sketcherr.ErrConfiguration, decay)
	}
	t := &Tracker{
		k:       k,
		width:   width,
		depth:   depth,
		decay:   decay,
		buckets: make([]bucket, uint64(width)*uint64(depth)),
		heap:    make([]heapItem, k),
	}
	t.init(rand.NewPCG(rngSeed1, rngSeed2))
	return t, nil
}

func (t *Tracker) init(pcg *rand.PCG) {
	for i := range t.lookup {
		t.lookup[i] = math.Pow(t.decay, float64(i))
	}
	t.pcg = pcg
	t.rng = rand.New(pcg)
}

func fingerprint(h rowhash.Hashes) uint32 {
	return uint32(h.H1)
}

// decayChance returns decay^count.
func (t *Tracker) decayChance(count uint32) float64 {
	if count < decayLookupSize {
		return t.lookup[count]
	}
	const last = decayLookupSize - 1
	return math.Pow(t.lookup[last], float64(count/last)) * t.lookup[count%last]
}

// Add counts one occurrence of item. When item enters the top-k by
// displacing another item, the displaced item is returned with ok set.
func (t *Tracker) Add(item string) (expelled string, ok bool) {
	return t.IncrBy(item, 1)
}

// IncrBy counts incr occurrences of item. See Add.
func (t *Tracker) IncrBy(item string, incr uint32) (expelled string, ok bool) {
	if incr == 0 {
		return "", false
	}
	h := rowhash.Sum(item)
	fp := fingerprint(h)
	heapMin := t.heap[0].count
	pos := t.heapIndex(item, fp)

	var maxCount uint32
	for row := range t.depth {
		b := &t.buckets[uint64(row)*uint64(t.width)+uint64(h.Column(row, t.width))]
		switch {
		case b.count == 0:
			b.fp = fp
			b.count = incr
			maxCount = max(maxCount, b.count)
		case b.fp == fp:
			// Counters of items outside the heap stop growing once they
			// pass the heap minimum, until the item is admitted.
			if pos >= 0 || b.count <= heapMin {
				b.count = saturatingAdd(b.count, incr)
			}
			maxCount = max(maxCount, b.count)
		default:
			for remaining := incr; remaining > 0; remaining-- {
				if t.rng.Float64() < t.decayChance(b.count) {
					b.count--
					if b.count == 0 {
						b.fp = fp
						b.count = remaining
						maxCount = max(maxCount, b.count)
						break
					}
				}
			}
		}
	}

	if maxCount < heapMin {
		return "", false
	}
	if pos >= 0 {
		t.heap[pos].count = maxCount
		t.heapifyDown(pos)
		return "", false
	}

	prev := t.heap[0]
	t.heap[0] = heapItem{count: maxCount, fp: fp, item: item}
	t.heapifyDown(0)
	if prev.count == 0 {
		return "", false
	}
	return prev.item, true
}

func saturatingAdd(a, b uint32) uint32 {
	if a > math.MaxUint32-b {
		return math.MaxUint32
	}
	return a + b
}

// heapIndex returns the heap slot tracking item, or -1.
func (t *Tracker) heapIndex(item string, fp uint32) int {
	for i := len(t.heap) - 1; i >= 0; i-- {
		if e := t.heap[i]; e.count > 0 && e.fp == fp && e.item == item {
			return i
		}
	}
	return -1
}

// heapifyDown restores the min-heap property below start. A child with a
// count equal to the moved item is still swapped up.
func (t *Tracker) heapifyDown(start int) {
	h := t.heap
	n := len(h)
	if n < 2 || (n-2)/2 < start {
		return
	}
	child := 2*start + 1
	if child+1 < n && h[child].count > h[child+1].count {
		child++
	}
	if h[child].count > h[start].count {
		return
	}

	top := h[start]
	for {
		h[start] = h[child]
		start = child
		if (n-2)/2 < child {
			break
		}
		child = 2*child + 1
		if child+1 < n && h[child].count > h[child+1].count {
			child++
		}
		if h[child].count >= top.count {
			break
		}
	}
	h[start] = top
}

// Query reports whether item is currently tracked in the top-k.
func (t *Tracker) Query(item string) bool {
	return t.heapIndex(item, fingerprint(rowhash.Sum(item))) >= 0
}

// Count returns the sketch's estimate for item: the largest counter among
// the item's buckets that still carry its fingerprint. It is zero for items
// never seen and may be non-zero for items outside the top-k.
func (t *Tracker) Count(item string) uint32 {
	h := rowhash.Sum(item)
	fp := fingerprint(h)
	var n uint32
	for row := range t.depth {
		b := t.buckets[uint64(row)*uint64(t.width)+uint64(h.Column(row, t.width))]
		if b.fp == fp {
			n = max(n, b.count)
		}
	}
	return n
}

// ItemCount is a tracked item with its estimated count.
type ItemCount struct {
	Item  string `json:"item"`
	Count uint32 `json:"count"`
}

// ListWithCount returns the tracked items by descending count. Items with
// equal counts keep their heap order.
func (t *Tracker) ListWithCount() []ItemCount {
	out := make([]ItemCount, 0, len(t.heap))
	for _, e := range t.heap {
		if e.count > 0 {
			out = append(out, ItemCount{Item: e.item, Count: e.count})
		}
	}
	slices.SortStableFunc(out, func(a, b ItemCount) int {
		switch {
		case a.Count > b.Count:
			return -1
		case a.Count < b.Count:
			return 1
		}
		return 0
	})
	return out
}

// List returns the tracked items by descending count.
func (t *Tracker) List() []string {
	counts := t.ListWithCount()
	out := make([]string, len(counts))
	for i, c := range counts {
		out[i] = c.Item
	}
	return out
}

// Info describes a tracker.
type Info struct {
	K     uint32  `json:"k"`
	Width uint32  `json:"width"`
	Depth uint32  `json:"depth"`
	Decay float64 `json:"decay"`
}

func (t *Tracker) Info() Info {
	return Info{K: t.k, Width: t.width, Depth: t.depth, Decay: t.decay}
}
