package sketchkv

import (
	"github.com/jcalabro/sketchkv/bloom"
)

// Parameters of Bloom filters created implicitly by BFAdd, BFMAdd and
// BFInsert.
const (
	DefaultBFErrorRate = 0.01
	DefaultBFCapacity  = 100
)

// BFReserve creates a Bloom filter under key holding capacity items at
// errorRate. It fails with ErrKeyExists if key is taken.
func (s *Store) BFReserve(key string, errorRate float64, capacity uint64, opts bloom.Options) error {
	return create(s, key, KindBloom, func() (*bloom.Filter, error) {
		return bloom.New(errorRate, capacity, opts)
	})
}

func newDefaultBloom() (*bloom.Filter, error) {
	return bloom.New(DefaultBFErrorRate, DefaultBFCapacity, bloom.Options{})
}

// BFAdd adds item to the filter under key, creating a default filter if key
// is absent. It reports whether the item was newly added.
func (s *Store) BFAdd(key, item string) (bool, error) {
	var added bool
	err := upsert(s, key, KindBloom, false, newDefaultBloom, func(f *bloom.Filter) error {
		var err error
		added, err = f.Add(item)
		return err
	})
	return added, err
}

// BFMAdd adds items in order. Later items observe the effect of earlier ones.
func (s *Store) BFMAdd(key string, items ...string) ([]Result[bool], error) {
	return s.BFInsert(key, items, BFInsertOptions{})
}

// BFExists reports whether item may have been added to the filter under key.
func (s *Store) BFExists(key, item string) (bool, error) {
	var found bool
	err := view(s, key, KindBloom, func(f *bloom.Filter) error {
		found = f.Exists(item)
		return nil
	})
	return found, err
}

// BFMExists is BFExists for several items.
func (s *Store) BFMExists(key string, items ...string) ([]bool, error) {
	var found []bool
	err := view(s, key, KindBloom, func(f *bloom.Filter) error {
		found = make([]bool, len(items))
		for i, item := range items {
			found[i] = f.Exists(item)
		}
		return nil
	})
	return found, err
}

// BFInsertOptions configure BFInsert. The creation parameters only apply
// when the filter does not exist yet. Nil parameters select the defaults;
// explicit values are validated like BFReserve's.
type BFInsertOptions struct {
	Capacity  *uint64  // default DefaultBFCapacity
	ErrorRate *float64 // default DefaultBFErrorRate
	Expansion *uint32
	NoScale   bool

	// NoCreate fails with ErrKeyNotFound instead of creating the filter.
	NoCreate bool
}

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// BFInsert adds items to the filter under key, creating it first if needed.
func (s *Store) BFInsert(key string, items []string, opts BFInsertOptions) ([]Result[bool], error) {
	build := func() (*bloom.Filter, error) {
		capacity := deref(opts.Capacity, DefaultBFCapacity)
		errorRate := deref(opts.ErrorRate, DefaultBFErrorRate)
		return bloom.New(errorRate, capacity, bloom.Options{Expansion: opts.Expansion, NoScale: opts.NoScale})
	}

	var results []Result[bool]
	err := upsert(s, key, KindBloom, opts.NoCreate, build, func(f *bloom.Filter) error {
		results = make([]Result[bool], len(items))
		for i, item := range items {
			results[i].Value, results[i].Err = f.Add(item)
		}
		return nil
	})
	return results, err
}

// BFInfo returns the counters of the filter under key.
func (s *Store) BFInfo(key string) (bloom.Info, error) {
	var info bloom.Info
	err := view(s, key, KindBloom, func(f *bloom.Filter) error {
		info = f.Info()
		return nil
	})
	return info, err
}
