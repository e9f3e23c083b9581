package command

import (
	"github.com/jcalabro/sketchkv"
)

func (d *Dispatcher) registerTDigest() {
	d.register("TDIGEST.CREATE", 2, 2, func(s *sketchkv.Store, args []string) (any, error) {
		compression, err := parseFloat(args[1], "compression")
		if err != nil {
			return nil, err
		}
		if err := s.TDigestCreate(args[0], compression); err != nil {
			return nil, err
		}
		return OK, nil
	})
	d.register("TDIGEST.RESET", 1, 1, func(s *sketchkv.Store, args []string) (any, error) {
		if err := s.TDigestReset(args[0]); err != nil {
			return nil, err
		}
		return OK, nil
	})
	d.register("TDIGEST.ADD", 3, -1, tdigestAdd)
	d.register("TDIGEST.MERGE", 2, 2, func(s *sketchkv.Store, args []string) (any, error) {
		if err := s.TDigestMerge(args[0], args[1]); err != nil {
			return nil, err
		}
		return OK, nil
	})
	d.register("TDIGEST.MIN", 1, 1, func(s *sketchkv.Store, args []string) (any, error) {
		return floatReply(s.TDigestMin(args[0]))
	})
	d.register("TDIGEST.MAX", 1, 1, func(s *sketchkv.Store, args []string) (any, error) {
		return floatReply(s.TDigestMax(args[0]))
	})
	d.register("TDIGEST.QUANTILE", 2, 2, func(s *sketchkv.Store, args []string) (any, error) {
		q, err := parseFloat(args[1], "quantile")
		if err != nil {
			return nil, err
		}
		return floatReply(s.TDigestQuantile(args[0], q))
	})
	d.register("TDIGEST.CDF", 2, 2, func(s *sketchkv.Store, args []string) (any, error) {
		v, err := parseFloat(args[1], "value")
		if err != nil {
			return nil, err
		}
		return floatReply(s.TDigestCDF(args[0], v))
	})
	d.register("TDIGEST.INFO", 1, 1, func(s *sketchkv.Store, args []string) (any, error) {
		return s.TDigestInfo(args[0])
	})
	d.register("TDIGEST.DEBUG", 1, 1, func(s *sketchkv.Store, args []string) (any, error) {
		return s.Debug(args[0])
	})
}

// TDIGEST.ADD key value weight [value weight ...]
func tdigestAdd(s *sketchkv.Store, args []string) (any, error) {
	rawValues, rawWeights, err := pairs(args[1:], "value weight")
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(rawValues))
	weights := make([]float64, len(rawWeights))
	for i := range rawValues {
		if values[i], err = parseFloat(rawValues[i], "value"); err != nil {
			return nil, err
		}
		if weights[i], err = parseFloat(rawWeights[i], "weight"); err != nil {
			return nil, err
		}
	}
	if err := s.TDigestAdd(args[0], values, weights); err != nil {
		return nil, err
	}
	return OK, nil
}

func floatReply(v float64, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return formatFloat(v), nil
}
