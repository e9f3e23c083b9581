package sketchkv

import (
	"fmt"

	"github.com/jcalabro/sketchkv/topk"
)

// TopKReserve creates a Top-K tracker under key.
func (s *Store) TopKReserve(key string, k, width, depth uint32, decay float64) error {
	return create(s, key, KindTopK, func() (*topk.Tracker, error) {
		return topk.New(k, width, depth, decay)
	})
}

// TopKAdd counts one occurrence of each item. For every item it returns the
// item expelled from the top-k as a result, or nil.
func (s *Store) TopKAdd(key string, items ...string) ([]*string, error) {
	var expelled []*string
	err := view(s, key, KindTopK, func(t *topk.Tracker) error {
		expelled = make([]*string, len(items))
		for i, item := range items {
			if out, ok := t.Add(item); ok {
				expelled[i] = &out
			}
		}
		return nil
	})
	return expelled, err
}

// TopKIncrBy counts increments[i] occurrences of items[i]. See TopKAdd.
func (s *Store) TopKIncrBy(key string, items []string, increments []uint32) ([]*string, error) {
	if len(items) != len(increments) {
		return nil, fmt.Errorf("%w: %d items but %d increments", ErrArityMismatch, len(items), len(increments))
	}
	var expelled []*string
	err := view(s, key, KindTopK, func(t *topk.Tracker) error {
		expelled = make([]*string, len(items))
		for i, item := range items {
			if out, ok := t.IncrBy(item, increments[i]); ok {
				expelled[i] = &out
			}
		}
		return nil
	})
	return expelled, err
}

// TopKQuery reports for each item whether it is currently in the top-k.
func (s *Store) TopKQuery(key string, items ...string) ([]bool, error) {
	var found []bool
	err := view(s, key, KindTopK, func(t *topk.Tracker) error {
		found = make([]bool, len(items))
		for i, item := range items {
			found[i] = t.Query(item)
		}
		return nil
	})
	return found, err
}

// TopKCount returns the estimated count of each item.
func (s *Store) TopKCount(key string, items ...string) ([]uint32, error) {
	var counts []uint32
	err := view(s, key, KindTopK, func(t *topk.Tracker) error {
		counts = make([]uint32, len(items))
		for i, item := range items {
			counts[i] = t.Count(item)
		}
		return nil
	})
	return counts, err
}

// TopKList returns the tracked items by descending count.
func (s *Store) TopKList(key string) ([]string, error) {
	var items []string
	err := view(s, key, KindTopK, func(t *topk.Tracker) error {
		items = t.List()
		return nil
	})
	return items, err
}

// TopKListWithCount returns the tracked items and their counts by
// descending count.
func (s *Store) TopKListWithCount(key string) ([]topk.ItemCount, error) {
	var items []topk.ItemCount
	err := view(s, key, KindTopK, func(t *topk.Tracker) error {
		items = t.ListWithCount()
		return nil
	})
	return items, err
}

// TopKInfo returns the parameters of the tracker under key.
func (s *Store) TopKInfo(key string) (topk.Info, error) {
	var info topk.Info
	err := view(s, key, KindTopK, func(t *topk.Tracker) error {
		info = t.Info()
		return nil
	})
	return info, err
}
