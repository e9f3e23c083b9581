package command

import (
	"fmt"
	"strings"

	"github.com/jcalabro/sketchkv"
	"github.com/jcalabro/sketchkv/bloom"
)

func (d *Dispatcher) registerBloom() {
	d.register("BF.RESERVE", 3, 6, bfReserve)
	d.register("BF.ADD", 2, 2, func(s *sketchkv.Store, args []string) (any, error) {
		added, err := s.BFAdd(args[0], args[1])
		return boolInt(added), err
	})
	d.register("BF.MADD", 2, -1, func(s *sketchkv.Store, args []string) (any, error) {
		rs, err := s.BFMAdd(args[0], args[1:]...)
		if err != nil {
			return nil, err
		}
		return results(rs), nil
	})
	d.register("BF.EXISTS", 2, 2, func(s *sketchkv.Store, args []string) (any, error) {
		found, err := s.BFExists(args[0], args[1])
		return boolInt(found), err
	})
	d.register("BF.MEXISTS", 2, -1, func(s *sketchkv.Store, args []string) (any, error) {
		found, err := s.BFMExists(args[0], args[1:]...)
		if err != nil {
			return nil, err
		}
		return boolInts(found), nil
	})
	d.register("BF.INSERT", 3, -1, bfInsert)
	d.register("BF.INFO", 1, 1, func(s *sketchkv.Store, args []string) (any, error) {
		return s.BFInfo(args[0])
	})
	d.register("BF.DEBUG", 1, 1, func(s *sketchkv.Store, args []string) (any, error) {
		return s.Debug(args[0])
	})
	d.register("BF.SCANDUMP", 2, 2, scanDump(sketchkv.KindBloom))
	d.register("BF.LOADCHUNK", 3, 3, loadChunk)
}

// BF.RESERVE key error_rate capacity [EXPANSION expansion] [NONSCALING]
func bfReserve(s *sketchkv.Store, args []string) (any, error) {
	errorRate, err := parseFloat(args[1], "error rate")
	if err != nil {
		return nil, err
	}
	capacity, err := parseUint(args[2], "capacity", 64)
	if err != nil {
		return nil, err
	}
	var opts bloom.Options
	for i := 3; i < len(args); i++ {
		switch strings.ToUpper(args[i]) {
		case "EXPANSION":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%w: EXPANSION needs a value", ErrSyntax)
			}
			i++
			v, err := parseUint(args[i], "expansion", 32)
			if err != nil {
				return nil, err
			}
			expansion := uint32(v)
			opts.Expansion = &expansion
		case "NONSCALING":
			opts.NoScale = true
		default:
			return nil, fmt.Errorf("%w: unexpected argument %q", ErrSyntax, args[i])
		}
	}
	if err := s.BFReserve(args[0], errorRate, capacity, opts); err != nil {
		return nil, err
	}
	return OK, nil
}

// BF.INSERT key [CAPACITY cap] [ERROR error] [EXPANSION expansion] [NOCREATE]
// [NONSCALING] ITEMS item...
func bfInsert(s *sketchkv.Store, args []string) (any, error) {
	var opts sketchkv.BFInsertOptions
	i := 1
loop:
	for ; i < len(args); i++ {
		switch strings.ToUpper(args[i]) {
		case "ITEMS":
			i++
			break loop
		case "NOCREATE":
			opts.NoCreate = true
		case "NONSCALING":
			opts.NoScale = true
		case "CAPACITY", "ERROR", "EXPANSION":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%w: %s needs a value", ErrSyntax, args[i])
			}
			name, value := strings.ToUpper(args[i]), args[i+1]
			i++
			var err error
			switch name {
			case "CAPACITY":
				var v uint64
				v, err = parseUint(value, "capacity", 64)
				opts.Capacity = &v
			case "ERROR":
				var v float64
				v, err = parseFloat(value, "error rate")
				opts.ErrorRate = &v
			case "EXPANSION":
				var v uint64
				v, err = parseUint(value, "expansion", 32)
				expansion := uint32(v)
				opts.Expansion = &expansion
			}
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: unexpected argument %q", ErrSyntax, args[i])
		}
	}
	if i >= len(args) {
		return nil, fmt.Errorf("%w: BF.INSERT needs ITEMS followed by at least one item", ErrSyntax)
	}
	rs, err := s.BFInsert(args[0], args[i:], opts)
	if err != nil {
		return nil, err
	}
	return results(rs), nil
}
