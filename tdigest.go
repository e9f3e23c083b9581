package sketchkv

import (
	"fmt"
	"math"

	"github.com/jcalabro/sketchkv/tdigest"
)

// TDigestCreate creates a t-digest with the given compression under key.
func (s *Store) TDigestCreate(key string, compression float64) error {
	return create(s, key, KindTDigest, func() (*tdigest.Digest, error) {
		return tdigest.New(compression)
	})
}

// TDigestReset removes every observation from the digest under key.
func (s *Store) TDigestReset(key string) error {
	return view(s, key, KindTDigest, func(d *tdigest.Digest) error {
		d.Reset()
		return nil
	})
}

// TDigestAdd records values with their weights. Nothing is recorded if any
// pair is invalid.
func (s *Store) TDigestAdd(key string, values, weights []float64) error {
	return view(s, key, KindTDigest, func(d *tdigest.Digest) error {
		return d.AddBatch(values, weights)
	})
}

// TDigestMerge adds every observation of the digest under src to the digest
// under dest.
func (s *Store) TDigestMerge(dest, src string) error {
	entries, unlock, err := s.acquireAll([]string{dest, src})
	if err != nil {
		return err
	}
	defer unlock()

	d, err := entries[dest].structure(dest, KindTDigest)
	if err != nil {
		return err
	}
	from, err := entries[src].structure(src, KindTDigest)
	if err != nil {
		return err
	}
	d.(*tdigest.Digest).Merge(from.(*tdigest.Digest))
	return nil
}

func (s *Store) tdigestValue(key string, fn func(*tdigest.Digest) float64) (float64, error) {
	var v float64
	err := view(s, key, KindTDigest, func(d *tdigest.Digest) error {
		v = fn(d)
		return nil
	})
	return v, err
}

// TDigestMin returns the smallest value added, or NaN if there is none.
func (s *Store) TDigestMin(key string) (float64, error) {
	return s.tdigestValue(key, (*tdigest.Digest).Min)
}

// TDigestMax returns the largest value added, or NaN if there is none.
func (s *Store) TDigestMax(key string) (float64, error) {
	return s.tdigestValue(key, (*tdigest.Digest).Max)
}

// TDigestQuantile returns the estimated value at quantile q in [0, 1].
func (s *Store) TDigestQuantile(key string, q float64) (float64, error) {
	if !(q >= 0 && q <= 1) {
		return 0, fmt.Errorf("%w: quantile %v is outside [0, 1]", ErrInvalidArgument, q)
	}
	return s.tdigestValue(key, func(d *tdigest.Digest) float64 { return d.Quantile(q) })
}

// TDigestCDF returns the estimated fraction of the weight at or below value.
func (s *Store) TDigestCDF(key string, value float64) (float64, error) {
	if math.IsNaN(value) {
		return 0, fmt.Errorf("%w: cdf of NaN", ErrInvalidArgument)
	}
	return s.tdigestValue(key, func(d *tdigest.Digest) float64 { return d.CDF(value) })
}

// TDigestInfo returns the counters of the digest under key.
func (s *Store) TDigestInfo(key string) (tdigest.Info, error) {
	var info tdigest.Info
	err := view(s, key, KindTDigest, func(d *tdigest.Digest) error {
		info = d.Info()
		return nil
	})
	return info, err
}
