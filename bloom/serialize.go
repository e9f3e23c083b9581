package bloom

import (
	"fmt"

	"github.com/jcalabro/sketchkv/arena"
	"github.com/jcalabro/sketchkv/internal/wire"
	"github.com/jcalabro/sketchkv/sketcherr"
)

const serializeVersion byte = 1

// MarshalBinary encodes the filter as:
//   - Version (1 byte)
//   - ErrorRate (8 bytes, float64 bits)
//   - Expansion (4 bytes, 0 when non-scaling)
//   - NumLinks (4 bytes)
//   - per link: Capacity (8 bytes), then the length-prefixed arena encoding
func (f *Filter) MarshalBinary() ([]byte, error) {
	w := wire.NewWriter(17 + len(f.links)*64)
	w.Uint8(serializeVersion)
	w.Float64(f.errorRate)
	w.Uint32(f.expansion)
	w.Uint32(uint32(len(f.links)))
	for _, l := range f.links {
		data, err := l.arena.MarshalBinary()
		if err != nil {
			return nil, err
		}
		w.Uint64(l.capacity)
		w.Bytes(data)
	}
	return w.Data(), nil
}

// UnmarshalBinary decodes a filter produced by MarshalBinary.
func UnmarshalBinary(data []byte) (*Filter, error) {
	r := wire.NewReader(data)
	if version := r.Uint8(); r.Err() == nil && version != serializeVersion {
		return nil, fmt.Errorf("%w: bloom version %d, expected %d", sketcherr.ErrUnsupportedVersion, version, serializeVersion)
	}

	f := &Filter{
		errorRate: r.Float64(),
		expansion: r.Uint32(),
	}
	numLinks := r.Uint32()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if !(f.errorRate > 0 && f.errorRate < 1) {
		return nil, fmt.Errorf("%w: bloom error rate %v", sketcherr.ErrInvalidData, f.errorRate)
	}
	if numLinks == 0 || uint64(numLinks) > uint64(r.Remaining()) {
		return nil, fmt.Errorf("%w: bloom link count %d", sketcherr.ErrInvalidData, numLinks)
	}
	if f.expansion == 0 && numLinks != 1 {
		return nil, fmt.Errorf("%w: non-scaling bloom filter with %d links", sketcherr.ErrInvalidData, numLinks)
	}

	f.links = make([]*link, 0, numLinks)
	for range numLinks {
		capacity := r.Uint64()
		raw := r.Bytes()
		if err := r.Err(); err != nil {
			return nil, err
		}
		a, err := arena.UnmarshalBinary(raw)
		if err != nil {
			return nil, err
		}
		if capacity == 0 {
			return nil, fmt.Errorf("%w: bloom link capacity is zero", sketcherr.ErrInvalidData)
		}
		f.links = append(f.links, &link{arena: a, capacity: capacity})
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return f, nil
}
