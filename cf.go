package sketchkv

import (
	"github.com/jcalabro/sketchkv/cuckoo"
)

// DefaultCFCapacity is the capacity of Cuckoo filters created implicitly.
const DefaultCFCapacity = 1024

// CFReserve creates a Cuckoo filter under key.
func (s *Store) CFReserve(key string, capacity uint64, opts cuckoo.Options) error {
	return create(s, key, KindCuckoo, func() (*cuckoo.Filter, error) {
		return cuckoo.New(capacity, opts)
	})
}

// cuckooBuilder creates filters of capacity, or DefaultCFCapacity when
// capacity is nil.
func cuckooBuilder(capacity *uint64) func() (*cuckoo.Filter, error) {
	return func() (*cuckoo.Filter, error) {
		return cuckoo.New(deref(capacity, DefaultCFCapacity), cuckoo.Options{})
	}
}

// CFAdd adds item to the filter under key, creating a default filter if key
// is absent. Duplicates are stored again.
func (s *Store) CFAdd(key, item string) error {
	return upsert(s, key, KindCuckoo, false, cuckooBuilder(nil), func(f *cuckoo.Filter) error {
		return f.Add(item)
	})
}

// CFAddNX adds item unless it may already be present, and reports whether it
// was added.
func (s *Store) CFAddNX(key, item string) (bool, error) {
	var added bool
	err := upsert(s, key, KindCuckoo, false, cuckooBuilder(nil), func(f *cuckoo.Filter) error {
		var err error
		added, err = f.AddNX(item)
		return err
	})
	return added, err
}

// CFInsertOptions configure CFInsert and CFInsertNX.
type CFInsertOptions struct {
	// Capacity of the filter if it has to be created. Nil selects
	// DefaultCFCapacity; an explicit zero is rejected.
	Capacity *uint64

	// NoCreate fails with ErrKeyNotFound instead of creating the filter.
	NoCreate bool
}

// CFInsert adds every item to the filter under key, creating it first if
// needed. Each successful insertion reports true.
func (s *Store) CFInsert(key string, items []string, opts CFInsertOptions) ([]Result[bool], error) {
	return s.cfInsert(key, items, opts, func(f *cuckoo.Filter, item string) (bool, error) {
		if err := f.Add(item); err != nil {
			return false, err
		}
		return true, nil
	})
}

// CFInsertNX is CFInsert that skips items that may already be present.
func (s *Store) CFInsertNX(key string, items []string, opts CFInsertOptions) ([]Result[bool], error) {
	return s.cfInsert(key, items, opts, (*cuckoo.Filter).AddNX)
}

func (s *Store) cfInsert(key string, items []string, opts CFInsertOptions, add func(*cuckoo.Filter, string) (bool, error)) ([]Result[bool], error) {
	var results []Result[bool]
	err := upsert(s, key, KindCuckoo, opts.NoCreate, cuckooBuilder(opts.Capacity), func(f *cuckoo.Filter) error {
		results = make([]Result[bool], len(items))
		for i, item := range items {
			results[i].Value, results[i].Err = add(f, item)
		}
		return nil
	})
	return results, err
}

// CFExists reports whether item may be in the filter under key.
func (s *Store) CFExists(key, item string) (bool, error) {
	var found bool
	err := view(s, key, KindCuckoo, func(f *cuckoo.Filter) error {
		found = f.Exists(item)
		return nil
	})
	return found, err
}

// CFMExists is CFExists for several items.
func (s *Store) CFMExists(key string, items ...string) ([]bool, error) {
	var found []bool
	err := view(s, key, KindCuckoo, func(f *cuckoo.Filter) error {
		found = make([]bool, len(items))
		for i, item := range items {
			found[i] = f.Exists(item)
		}
		return nil
	})
	return found, err
}

// CFCount returns the number of stored fingerprints matching item. It may
// overcount on fingerprint collisions.
func (s *Store) CFCount(key, item string) (uint64, error) {
	var n uint64
	err := view(s, key, KindCuckoo, func(f *cuckoo.Filter) error {
		n = f.Count(item)
		return nil
	})
	return n, err
}

// CFDel removes one fingerprint matching item and reports whether one was
// found.
func (s *Store) CFDel(key, item string) (bool, error) {
	var deleted bool
	err := view(s, key, KindCuckoo, func(f *cuckoo.Filter) error {
		deleted = f.Delete(item)
		return nil
	})
	return deleted, err
}

// CFInfo returns the counters of the filter under key.
func (s *Store) CFInfo(key string) (cuckoo.Info, error) {
	var info cuckoo.Info
	err := view(s, key, KindCuckoo, func(f *cuckoo.Filter) error {
		info = f.Info()
		return nil
	})
	return info, err
}
