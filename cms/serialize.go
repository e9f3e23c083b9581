package cms

import (
	"fmt"

	"github.com/jcalabro/sketchkv/internal/wire"
	"github.com/jcalabro/sketchkv/sketcherr"
	"github.com/zeebo/xxh3"
)

const (
	serializeVersion byte = 1

	// headerSize is Version (1) + Width (4) + Depth (4) + Count (8).
	headerSize = 17
)

// MarshalBinary encodes the sketch as a 17 byte header followed by the
// counters in row-major order, all little-endian.
func (s *Sketch) MarshalBinary() ([]byte, error) {
	w := wire.NewWriter(headerSize + 8*len(s.counters))
	w.Uint8(serializeVersion)
	w.Uint32(s.width)
	w.Uint32(s.depth)
	w.Uint64(s.count)
	for _, c := range s.counters {
		w.Uint64(c)
	}
	return w.Data(), nil
}

// UnmarshalBinary decodes a sketch produced by MarshalBinary.
func UnmarshalBinary(data []byte) (*Sketch, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: cms data too short (got %d bytes, need at least %d)",
			sketcherr.ErrInvalidData, len(data), headerSize)
	}
	r := wire.NewReader(data)
	if version := r.Uint8(); version != serializeVersion {
		return nil, fmt.Errorf("%w: cms version %d, expected %d", sketcherr.ErrUnsupportedVersion, version, serializeVersion)
	}
	width, depth, count := r.Uint32(), r.Uint32(), r.Uint64()
	if width == 0 || depth == 0 || uint64(width)*uint64(depth) > maxCells {
		return nil, fmt.Errorf("%w: cms dimensions %dx%d", sketcherr.ErrInvalidData, width, depth)
	}
	cells := uint64(width) * uint64(depth)
	if want := headerSize + 8*cells; uint64(len(data)) != want {
		return nil, fmt.Errorf("%w: cms length mismatch (got %d bytes, expected %d)", sketcherr.ErrInvalidData, len(data), want)
	}

	s := &Sketch{width: width, depth: depth, count: count, counters: make([]uint64, cells)}
	for i := range s.counters {
		s.counters[i] = r.Uint64()
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return s, nil
}

// Debug returns the sketch dimensions and a digest of its counters.
func (s *Sketch) Debug() []string {
	data, _ := s.MarshalBinary()
	return []string{fmt.Sprintf("width:%d depth:%d count:%d digest:%016x",
		s.width, s.depth, s.count, xxh3.Hash(data[headerSize:]))}
}
