package command

import (
	"encoding/base64"
	"fmt"

	"github.com/jcalabro/sketchkv"
)

func (d *Dispatcher) registerGeneric() {
	d.register("DEL", 1, -1, func(s *sketchkv.Store, args []string) (any, error) {
		var n int64
		for _, key := range args {
			if s.Del(key) {
				n++
			}
		}
		return n, nil
	})
	d.register("TYPE", 1, 1, func(s *sketchkv.Store, args []string) (any, error) {
		return s.Type(args[0]).String(), nil
	})
	d.register("KEYS", 0, 0, func(s *sketchkv.Store, args []string) (any, error) {
		return s.Keys(), nil
	})
	d.register("DEBUG", 1, 1, func(s *sketchkv.Store, args []string) (any, error) {
		return s.Debug(args[0])
	})
	d.register("SCANDUMP", 2, 2, scanDump(sketchkv.KindNone))
	d.register("LOADCHUNK", 3, 3, loadChunk)
}

// scanDump returns a SCANDUMP handler. A kind other than KindNone restricts
// it to keys of that kind. The reply is [next iterator, base64 chunk].
func scanDump(kind sketchkv.Kind) handler {
	return func(s *sketchkv.Store, args []string) (any, error) {
		it, err := parseInt(args[1], "iterator")
		if err != nil {
			return nil, err
		}
		if kind != sketchkv.KindNone {
			if got := s.Type(args[0]); got != kind && got != sketchkv.KindNone {
				return nil, fmt.Errorf("%w: %q holds a %s, not a %s", sketchkv.ErrTypeMismatch, args[0], got, kind)
			}
		}
		next, data, err := s.ScanDump(args[0], it)
		if err != nil {
			return nil, err
		}
		return []any{next, base64.StdEncoding.EncodeToString(data)}, nil
	}
}

func loadChunk(s *sketchkv.Store, args []string) (any, error) {
	it, err := parseInt(args[1], "iterator")
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(args[2])
	if err != nil {
		return nil, fmt.Errorf("%w: chunk is not valid base64: %v", ErrSyntax, err)
	}
	if err := s.LoadChunk(args[0], it, data); err != nil {
		return nil, err
	}
	return OK, nil
}
