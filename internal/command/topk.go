package command

import (
	"fmt"
	"strings"

	"github.com/jcalabro/sketchkv"
)

const (
	defaultTopKWidth = 8
	defaultTopKDepth = 7
	defaultTopKDecay = 0.9
)

func (d *Dispatcher) registerTopK() {
	d.register("TOPK.RESERVE", 2, 5, topkReserve)
	d.register("TOPK.ADD", 2, -1, func(s *sketchkv.Store, args []string) (any, error) {
		expelled, err := s.TopKAdd(args[0], args[1:]...)
		if err != nil {
			return nil, err
		}
		return expelledItems(expelled), nil
	})
	d.register("TOPK.INCRBY", 3, -1, func(s *sketchkv.Store, args []string) (any, error) {
		items, values, err := pairs(args[1:], "item increment")
		if err != nil {
			return nil, err
		}
		increments := make([]uint32, len(values))
		for i, v := range values {
			n, err := parseUint(v, "increment", 32)
			if err != nil {
				return nil, err
			}
			increments[i] = uint32(n)
		}
		expelled, err := s.TopKIncrBy(args[0], items, increments)
		if err != nil {
			return nil, err
		}
		return expelledItems(expelled), nil
	})
	d.register("TOPK.QUERY", 2, -1, func(s *sketchkv.Store, args []string) (any, error) {
		found, err := s.TopKQuery(args[0], args[1:]...)
		if err != nil {
			return nil, err
		}
		return boolInts(found), nil
	})
	d.register("TOPK.COUNT", 2, -1, func(s *sketchkv.Store, args []string) (any, error) {
		counts, err := s.TopKCount(args[0], args[1:]...)
		if err != nil {
			return nil, err
		}
		return uints(counts), nil
	})
	d.register("TOPK.LIST", 1, 2, func(s *sketchkv.Store, args []string) (any, error) {
		if len(args) == 1 {
			return s.TopKList(args[0])
		}
		if !strings.EqualFold(args[1], "WITHCOUNT") {
			return nil, fmt.Errorf("%w: unexpected argument %q", ErrSyntax, args[1])
		}
		items, err := s.TopKListWithCount(args[0])
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, 2*len(items))
		for _, it := range items {
			out = append(out, it.Item, int64(it.Count))
		}
		return out, nil
	})
	d.register("TOPK.INFO", 1, 1, func(s *sketchkv.Store, args []string) (any, error) {
		return s.TopKInfo(args[0])
	})
	d.register("TOPK.DEBUG", 1, 1, func(s *sketchkv.Store, args []string) (any, error) {
		return s.Debug(args[0])
	})
}

// TOPK.RESERVE key k [width depth decay]
func topkReserve(s *sketchkv.Store, args []string) (any, error) {
	if len(args) != 2 && len(args) != 5 {
		return nil, fmt.Errorf("%w: TOPK.RESERVE takes k alone or k width depth decay", ErrSyntax)
	}
	k, err := parseUint(args[1], "k", 32)
	if err != nil {
		return nil, err
	}
	width, depth, decay := uint64(defaultTopKWidth), uint64(defaultTopKDepth), defaultTopKDecay
	if len(args) == 5 {
		if width, err = parseUint(args[2], "width", 32); err != nil {
			return nil, err
		}
		if depth, err = parseUint(args[3], "depth", 32); err != nil {
			return nil, err
		}
		if decay, err = parseFloat(args[4], "decay"); err != nil {
			return nil, err
		}
	}
	if err := s.TopKReserve(args[0], uint32(k), uint32(width), uint32(depth), decay); err != nil {
		return nil, err
	}
	return OK, nil
}

// expelledItems renders evictions as item names, with nil where nothing was
// expelled.
func expelledItems(expelled []*string) []any {
	out := make([]any, len(expelled))
	for i, item := range expelled {
		if item != nil {
			out[i] = *item
		}
	}
	return out
}
