package sketchkv

import (
	"fmt"

	"github.com/jcalabro/sketchkv/cms"
)

// CMSInitByDim creates a Count-Min Sketch of the given width and depth.
func (s *Store) CMSInitByDim(key string, width, depth uint32) error {
	return create(s, key, KindCMS, func() (*cms.Sketch, error) {
		return cms.NewWithDim(width, depth)
	})
}

// CMSInitByProb creates a Count-Min Sketch whose estimates exceed the true
// count by at most epsilon times the total count with probability 1-delta.
func (s *Store) CMSInitByProb(key string, epsilon, delta float64) error {
	return create(s, key, KindCMS, func() (*cms.Sketch, error) {
		return cms.NewWithProb(epsilon, delta)
	})
}

// CMSIncrBy increases the count of each item by the matching increment and
// returns the new estimates.
func (s *Store) CMSIncrBy(key string, items []string, increments []uint64) ([]uint64, error) {
	if len(items) != len(increments) {
		return nil, fmt.Errorf("%w: %d items but %d increments", ErrArityMismatch, len(items), len(increments))
	}
	var counts []uint64
	err := view(s, key, KindCMS, func(sk *cms.Sketch) error {
		counts = make([]uint64, len(items))
		for i, item := range items {
			counts[i] = sk.IncrBy(item, increments[i])
		}
		return nil
	})
	return counts, err
}

// CMSQuery returns the estimated count of each item.
func (s *Store) CMSQuery(key string, items ...string) ([]uint64, error) {
	var counts []uint64
	err := view(s, key, KindCMS, func(sk *cms.Sketch) error {
		counts = make([]uint64, len(items))
		for i, item := range items {
			counts[i] = sk.Query(item)
		}
		return nil
	})
	return counts, err
}

// CMSMerge adds the weighted counters of the sketches under sources into the
// sketch under dest. A nil weights slice weighs every source by one. All
// sketches must have the same dimensions. dest may also be a source.
func (s *Store) CMSMerge(dest string, sources []string, weights []int64) error {
	if len(sources) == 0 {
		return fmt.Errorf("%w: cms merge needs at least one source", ErrInvalidArgument)
	}
	if weights != nil && len(weights) != len(sources) {
		return fmt.Errorf("%w: %d sources but %d weights", ErrArityMismatch, len(sources), len(weights))
	}

	entries, unlock, err := s.acquireAll(append([]string{dest}, sources...))
	if err != nil {
		return err
	}
	defer unlock()

	sketch := func(key string) (*cms.Sketch, error) {
		v, err := entries[key].structure(key, KindCMS)
		if err != nil {
			return nil, err
		}
		return v.(*cms.Sketch), nil
	}
	dst, err := sketch(dest)
	if err != nil {
		return err
	}
	srcs := make([]*cms.Sketch, len(sources))
	for i, key := range sources {
		if srcs[i], err = sketch(key); err != nil {
			return err
		}
	}
	return dst.Merge(srcs, weights)
}

// CMSInfo returns the dimensions and total count of the sketch under key.
func (s *Store) CMSInfo(key string) (cms.Info, error) {
	var info cms.Info
	err := view(s, key, KindCMS, func(sk *cms.Sketch) error {
		info = sk.Info()
		return nil
	})
	return info, err
}
