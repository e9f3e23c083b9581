// Package bloom implements a scalable Bloom filter: an append-only chain of
// fixed-size arenas that grows geometrically as each one saturates.
//
// Membership is the union of the chain. New items always go to the newest
// arena; older arenas are never written again. A non-scaling filter keeps
// its single arena and rejects additions once it is full.
package bloom

import (
	"fmt"
	"math"
	"strconv"

	"github.com/jcalabro/sketchkv/arena"
	"github.com/jcalabro/sketchkv/sketcherr"
)

// DefaultExpansion is the growth factor used when none is configured.
const DefaultExpansion = 2

// Options are the optional creation parameters of a Filter.
type Options struct {
	// Expansion is the capacity growth factor between consecutive arenas.
	// Nil selects DefaultExpansion; zero disables growth.
	Expansion *uint32

	// NoScale disables growth. It may not be combined with Expansion.
	NoScale bool
}

// Filter is a scalable Bloom filter. It is not safe for concurrent use.
type Filter struct {
	errorRate float64
	expansion uint32 // 0 when non-scaling
	links     []*link
}

// link is one arena of the chain together with the number of items it was
// sized for.
type link struct {
	arena    *arena.Arena
	capacity uint64
}

func (l *link) full() bool {
	return l.arena.Count() >= l.capacity
}

// New returns a filter whose first arena holds capacity items at errorRate.
func New(errorRate float64, capacity uint64, opts Options) (*Filter, error) {
	if !(errorRate > 0 && errorRate < 1) {
		return nil, fmt.Errorf("%w: bloom: error rate must be in (0, 1), got %v", sketcherr.ErrConfiguration, errorRate)
	}
	if capacity == 0 {
		return nil, fmt.Errorf("%w: bloom: capacity must be positive", sketcherr.ErrConfiguration)
	}
	if !arena.Fits(capacity, errorRate) {
		return nil, fmt.Errorf("%w: bloom: capacity %d at error rate %v needs more than %d blocks",
			sketcherr.ErrConfiguration, capacity, errorRate, arena.MaxNumBlocks)
	}
	if opts.NoScale && opts.Expansion != nil {
		return nil, fmt.Errorf("%w: bloom: expansion and noscale are mutually exclusive", sketcherr.ErrConfiguration)
	}

	expansion := uint32(DefaultExpansion)
	switch {
	case opts.NoScale:
		expansion = 0
	case opts.Expansion != nil:
		expansion = *opts.Expansion
	}

	return &Filter{
		errorRate: errorRate,
		expansion: expansion,
		links:     []*link{newLink(capacity, errorRate)},
	}, nil
}

func newLink(capacity uint64, errorRate float64) *link {
	return &link{arena: arena.New(capacity, errorRate), capacity: capacity}
}

// Add inserts item and reports whether it was newly added. An item that
// already tests present is not inserted again and does not count toward the
// filter's size.
func (f *Filter) Add(item string) (bool, error) {
	h := arena.HashString(item)
	if f.testHash(h) {
		return false, nil
	}

	cur := f.links[len(f.links)-1]
	if cur.full() {
		if f.expansion == 0 {
			return false, fmt.Errorf("%w: bloom: non-scaling filter is full", sketcherr.ErrCapacityExceeded)
		}
		next, err := f.grow(cur)
		if err != nil {
			return false, err
		}
		cur = next
	}

	cur.arena.AddHash(h)
	return true, nil
}

func (f *Filter) grow(cur *link) (*link, error) {
	if cur.capacity > math.MaxUint64/uint64(f.expansion) {
		return nil, fmt.Errorf("%w: bloom: next capacity overflows", sketcherr.ErrCapacityExceeded)
	}
	capacity := cur.capacity * uint64(f.expansion)
	if !arena.Fits(capacity, f.errorRate) {
		return nil, fmt.Errorf("%w: bloom: next link of %d items exceeds %d blocks",
			sketcherr.ErrCapacityExceeded, capacity, arena.MaxNumBlocks)
	}
	next := newLink(capacity, f.errorRate)
	f.links = append(f.links, next)
	return next, nil
}

// Exists reports whether item may have been added.
func (f *Filter) Exists(item string) bool {
	return f.testHash(arena.HashString(item))
}

func (f *Filter) testHash(h uint64) bool {
	// Newest first: it holds the most items.
	for i := len(f.links) - 1; i >= 0; i-- {
		if f.links[i].arena.TestHash(h) {
			return true
		}
	}
	return false
}

// Info describes a filter.
type Info struct {
	Capacity      uint64  `json:"capacity"`
	Size          uint64  `json:"size"`
	FilterNum     int     `json:"filterNum"`
	InsertedNum   uint64  `json:"insertedNum"`
	ExpansionRate *uint32 `json:"expansionRate"`
	ErrorRate     float64 `json:"errorRate"`
}

// Info returns the filter's counters. ExpansionRate is nil for non-scaling filters.
func (f *Filter) Info() Info {
	info := Info{
		FilterNum: len(f.links),
		ErrorRate: f.errorRate,
	}
	for _, l := range f.links {
		info.Capacity += l.capacity
		info.Size += l.arena.Bytes()
		info.InsertedNum += l.arena.Count()
	}
	if f.expansion != 0 {
		exp := f.expansion
		info.ExpansionRate = &exp
	}
	return info
}

// Debug returns a line for the filter followed by one line per arena,
// oldest first. Each arena line carries a digest of its bits so two filters
// can be compared for bit-identical state.
func (f *Filter) Debug() []string {
	info := f.Info()
	lines := []string{"size:" + strconv.FormatUint(info.InsertedNum, 10)}
	for _, l := range f.links {
		a := l.arena
		lines = append(lines, fmt.Sprintf("bytes:%d bits:%d hashes:%d capacity:%d size:%d ratio:%g digest:%016x",
			a.Bytes(), a.Bits(), a.K(), l.capacity, a.Count(), f.errorRate, a.Digest()))
	}
	return lines
}
