package command

import (
	"fmt"
	"strings"

	"github.com/jcalabro/sketchkv"
	"github.com/jcalabro/sketchkv/cuckoo"
)

func (d *Dispatcher) registerCuckoo() {
	d.register("CF.RESERVE", 2, 8, cfReserve)
	d.register("CF.ADD", 2, 2, func(s *sketchkv.Store, args []string) (any, error) {
		if err := s.CFAdd(args[0], args[1]); err != nil {
			return nil, err
		}
		return int64(1), nil
	})
	d.register("CF.ADDNX", 2, 2, func(s *sketchkv.Store, args []string) (any, error) {
		added, err := s.CFAddNX(args[0], args[1])
		return boolInt(added), err
	})
	d.register("CF.INSERT", 3, -1, cfInsert(false))
	d.register("CF.INSERTNX", 3, -1, cfInsert(true))
	d.register("CF.EXISTS", 2, 2, func(s *sketchkv.Store, args []string) (any, error) {
		found, err := s.CFExists(args[0], args[1])
		return boolInt(found), err
	})
	d.register("CF.MEXISTS", 2, -1, func(s *sketchkv.Store, args []string) (any, error) {
		found, err := s.CFMExists(args[0], args[1:]...)
		if err != nil {
			return nil, err
		}
		return boolInts(found), nil
	})
	d.register("CF.COUNT", 2, 2, func(s *sketchkv.Store, args []string) (any, error) {
		n, err := s.CFCount(args[0], args[1])
		return int64(n), err
	})
	d.register("CF.DEL", 2, 2, func(s *sketchkv.Store, args []string) (any, error) {
		deleted, err := s.CFDel(args[0], args[1])
		return boolInt(deleted), err
	})
	d.register("CF.INFO", 1, 1, func(s *sketchkv.Store, args []string) (any, error) {
		return s.CFInfo(args[0])
	})
	d.register("CF.DEBUG", 1, 1, func(s *sketchkv.Store, args []string) (any, error) {
		return s.Debug(args[0])
	})
	d.register("CF.SCANDUMP", 2, 2, scanDump(sketchkv.KindCuckoo))
	d.register("CF.LOADCHUNK", 3, 3, loadChunk)
}

// CF.RESERVE key capacity [BUCKETSIZE size] [MAXITERATIONS n] [EXPANSION e]
func cfReserve(s *sketchkv.Store, args []string) (any, error) {
	capacity, err := parseUint(args[1], "capacity", 64)
	if err != nil {
		return nil, err
	}
	var opts cuckoo.Options
	for i := 2; i < len(args); i += 2 {
		if i+1 >= len(args) {
			return nil, fmt.Errorf("%w: %s needs a value", ErrSyntax, args[i])
		}
		v, err := parseUint(args[i+1], strings.ToLower(args[i]), 16)
		if err != nil {
			return nil, err
		}
		n := uint16(v)
		switch strings.ToUpper(args[i]) {
		case "BUCKETSIZE":
			opts.BucketSize = &n
		case "MAXITERATIONS":
			opts.MaxIterations = &n
		case "EXPANSION":
			opts.Expansion = &n
		default:
			return nil, fmt.Errorf("%w: unexpected argument %q", ErrSyntax, args[i])
		}
	}
	if err := s.CFReserve(args[0], capacity, opts); err != nil {
		return nil, err
	}
	return OK, nil
}

// CF.INSERT[NX] key [CAPACITY capacity] [NOCREATE] ITEMS item...
func cfInsert(nx bool) handler {
	return func(s *sketchkv.Store, args []string) (any, error) {
		var opts sketchkv.CFInsertOptions
		i := 1
	loop:
		for ; i < len(args); i++ {
			switch strings.ToUpper(args[i]) {
			case "ITEMS":
				i++
				break loop
			case "NOCREATE":
				opts.NoCreate = true
			case "CAPACITY":
				if i+1 >= len(args) {
					return nil, fmt.Errorf("%w: CAPACITY needs a value", ErrSyntax)
				}
				i++
				v, err := parseUint(args[i], "capacity", 64)
				if err != nil {
					return nil, err
				}
				opts.Capacity = &v
			default:
				return nil, fmt.Errorf("%w: unexpected argument %q", ErrSyntax, args[i])
			}
		}
		if i >= len(args) {
			return nil, fmt.Errorf("%w: ITEMS must be followed by at least one item", ErrSyntax)
		}

		insert := s.CFInsert
		if nx {
			insert = s.CFInsertNX
		}
		rs, err := insert(args[0], args[i:], opts)
		if err != nil {
			return nil, err
		}
		return results(rs), nil
	}
}
