package command

import (
	"fmt"
	"strings"

	"github.com/jcalabro/sketchkv"
)

func (d *Dispatcher) registerCMS() {
	d.register("CMS.INITBYDIM", 3, 3, func(s *sketchkv.Store, args []string) (any, error) {
		width, err := parseUint(args[1], "width", 32)
		if err != nil {
			return nil, err
		}
		depth, err := parseUint(args[2], "depth", 32)
		if err != nil {
			return nil, err
		}
		if err := s.CMSInitByDim(args[0], uint32(width), uint32(depth)); err != nil {
			return nil, err
		}
		return OK, nil
	})
	d.register("CMS.INITBYPROB", 3, 3, func(s *sketchkv.Store, args []string) (any, error) {
		epsilon, err := parseFloat(args[1], "error")
		if err != nil {
			return nil, err
		}
		delta, err := parseFloat(args[2], "probability")
		if err != nil {
			return nil, err
		}
		if err := s.CMSInitByProb(args[0], epsilon, delta); err != nil {
			return nil, err
		}
		return OK, nil
	})
	d.register("CMS.INCRBY", 3, -1, cmsIncrBy)
	d.register("CMS.QUERY", 2, -1, func(s *sketchkv.Store, args []string) (any, error) {
		counts, err := s.CMSQuery(args[0], args[1:]...)
		if err != nil {
			return nil, err
		}
		return uints(counts), nil
	})
	d.register("CMS.MERGE", 3, -1, cmsMerge)
	d.register("CMS.INFO", 1, 1, func(s *sketchkv.Store, args []string) (any, error) {
		return s.CMSInfo(args[0])
	})
	d.register("CMS.DEBUG", 1, 1, func(s *sketchkv.Store, args []string) (any, error) {
		return s.Debug(args[0])
	})
}

// CMS.INCRBY key item increment [item increment ...]
func cmsIncrBy(s *sketchkv.Store, args []string) (any, error) {
	items, values, err := pairs(args[1:], "item increment")
	if err != nil {
		return nil, err
	}
	increments := make([]uint64, len(values))
	for i, v := range values {
		if increments[i], err = parseUint(v, "increment", 64); err != nil {
			return nil, err
		}
	}
	counts, err := s.CMSIncrBy(args[0], items, increments)
	if err != nil {
		return nil, err
	}
	return uints(counts), nil
}

// CMS.MERGE dest numkeys src... [WEIGHTS weight...]
func cmsMerge(s *sketchkv.Store, args []string) (any, error) {
	n, err := parseUint(args[1], "numkeys", 32)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: numkeys must be positive", ErrSyntax)
	}
	rest := args[2:]
	if uint64(len(rest)) < n {
		return nil, fmt.Errorf("%w: numkeys is %d but %d keys follow", ErrSyntax, n, len(rest))
	}
	sources, rest := rest[:n], rest[n:]

	var weights []int64
	if len(rest) > 0 {
		if !strings.EqualFold(rest[0], "WEIGHTS") {
			return nil, fmt.Errorf("%w: unexpected argument %q", ErrSyntax, rest[0])
		}
		weights = make([]int64, 0, len(rest)-1)
		for _, arg := range rest[1:] {
			w, err := parseInt(arg, "weight")
			if err != nil {
				return nil, err
			}
			weights = append(weights, w)
		}
	}
	if err := s.CMSMerge(args[0], sources, weights); err != nil {
		return nil, err
	}
	return OK, nil
}

func uints[T uint32 | uint64](vs []T) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = uint64(v)
	}
	return out
}
