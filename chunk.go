package sketchkv

import (
	"bytes"
	"fmt"

	"github.com/zeebo/xxh3"

	"github.com/jcalabro/sketchkv/bloom"
	"github.com/jcalabro/sketchkv/cms"
	"github.com/jcalabro/sketchkv/cuckoo"
	"github.com/jcalabro/sketchkv/internal/wire"
	"github.com/jcalabro/sketchkv/tdigest"
	"github.com/jcalabro/sketchkv/topk"
)

// Dump format
//
// ScanDump emits a header chunk followed by the structure's binary encoding
// split into data chunks. The header is:
//
//	Offset  Size  Field
//	0       4     Magic "SKVD"
//	4       1     Version
//	5       1     Kind
//	6       8     Payload length (uint64, little-endian)
//	14      8     xxh3 checksum of the payload (uint64, little-endian)
//
// The header chunk is returned with iterator 1. A data chunk covering
// payload bytes [off, off+n) is returned with iterator off+n+1, so the
// iterator passed back to ScanDump is one past the last byte sent and
// LoadChunk can tell from the iterator where the chunk belongs.
const (
	dumpMagic      = "SKVD"
	dumpVersion    = 1
	dumpHeaderSize = 22
)

// Chunk is one element of a dump sequence.
type Chunk struct {
	Iterator int64
	Data     []byte
}

// pendingLoad collects the payload of a load in progress.
type pendingLoad struct {
	kind     Kind
	size     uint64
	checksum uint64
	payload  []byte
}

// ScanDump returns the chunk following iterator it of the dump of key and
// the iterator to pass to the next call. The first call passes 0. A returned
// iterator of 0 ends the sequence.
//
// ScanDump takes a snapshot of the structure when called with iterator 0.
// Modifying the key before the sequence ends may yield chunks from different
// snapshots.
func (s *Store) ScanDump(key string, it int64) (int64, []byte, error) {
	if it < 0 {
		return 0, nil, fmt.Errorf("%w: negative dump iterator %d", ErrInvalidArgument, it)
	}
	e, err := s.acquire(key, false)
	if err != nil {
		return 0, nil, err
	}
	defer s.release(key, e)

	v, err := e.structure(key, e.kind)
	if err != nil {
		return 0, nil, err
	}

	payload, ok := s.dumps.Get(key)
	if it == 0 || !ok {
		if payload, err = v.(sketch).MarshalBinary(); err != nil {
			return 0, nil, err
		}
		s.dumps.Add(key, payload)
	}

	if it == 0 {
		w := wire.NewWriter(dumpHeaderSize)
		w.Raw([]byte(dumpMagic))
		w.Uint8(dumpVersion)
		w.Uint8(uint8(e.kind))
		w.Uint64(uint64(len(payload)))
		w.Uint64(xxh3.Hash(payload))
		return 1, w.Data(), nil
	}

	off := uint64(it - 1)
	if off >= uint64(len(payload)) {
		s.dumps.Remove(key)
		return 0, nil, nil
	}
	end := min(off+uint64(s.chunkSize), uint64(len(payload)))
	chunk := bytes.Clone(payload[off:end])
	return int64(end) + 1, chunk, nil
}

// LoadChunk applies a chunk returned by ScanDump, passing the iterator that
// ScanDump returned with it. Chunks must be applied in the order ScanDump
// produced them. The structure replaces the content of key once its last
// chunk has been applied; until then the key reports ErrKeyNotFound unless
// it already held a structure of the same kind.
//
// A header chunk for a key holding a different kind of structure fails with
// ErrTypeMismatch. A data chunk that does not continue the load in progress
// fails with ErrOutOfOrderChunk and leaves the load unchanged.
func (s *Store) LoadChunk(key string, it int64, data []byte) error {
	if it <= 0 {
		return fmt.Errorf("%w: iterator %d", ErrOutOfOrderChunk, it)
	}
	if it == 1 {
		return s.loadHeader(key, data)
	}

	e, err := s.acquire(key, false)
	if err != nil {
		return fmt.Errorf("%w: no load in progress for %q", ErrOutOfOrderChunk, key)
	}
	defer s.release(key, e)

	load := e.load
	if load == nil {
		return fmt.Errorf("%w: no load in progress for %q", ErrOutOfOrderChunk, key)
	}
	off := uint64(len(load.payload))
	if len(data) == 0 || uint64(it-1) != off+uint64(len(data)) {
		return fmt.Errorf("%w: chunk ending at %d does not follow offset %d", ErrOutOfOrderChunk, it-1, off)
	}
	if off+uint64(len(data)) > load.size {
		return fmt.Errorf("%w: chunk overruns the %d byte payload", ErrInvalidData, load.size)
	}
	load.payload = append(load.payload, data...)
	if uint64(len(load.payload)) < load.size {
		return nil
	}

	e.load = nil
	if got := xxh3.Hash(load.payload); got != load.checksum {
		return fmt.Errorf("%w: payload checksum %016x, expected %016x", ErrInvalidData, got, load.checksum)
	}
	v, err := decode(load.kind, load.payload)
	if err != nil {
		return err
	}
	e.kind, e.value = load.kind, v
	s.dumps.Remove(key)
	return nil
}

// loadHeader validates a header chunk and starts a load for key, replacing
// any load already in progress.
func (s *Store) loadHeader(key string, data []byte) error {
	r := wire.NewReader(data)
	magic := r.Raw(len(dumpMagic))
	version := r.Uint8()
	kind := Kind(r.Uint8())
	size := r.Uint64()
	checksum := r.Uint64()
	if err := r.Finish(); err != nil {
		return err
	}
	if string(magic) != dumpMagic {
		return fmt.Errorf("%w: bad dump magic %q", ErrInvalidData, magic)
	}
	if version != dumpVersion {
		return fmt.Errorf("%w: dump version %d, expected %d", ErrUnsupportedVersion, version, dumpVersion)
	}
	if !kind.valid() {
		return fmt.Errorf("%w: unknown structure kind %d", ErrInvalidData, kind)
	}
	if size == 0 {
		return fmt.Errorf("%w: empty dump payload", ErrInvalidData)
	}

	e, err := s.acquire(key, true)
	if err != nil {
		return err
	}
	defer s.release(key, e)

	if e.kind != KindNone && e.kind != kind {
		return fmt.Errorf("%w: %q holds a %s, dump is a %s", ErrTypeMismatch, key, e.kind, kind)
	}
	e.load = &pendingLoad{
		kind:     kind,
		size:     size,
		checksum: checksum,
		payload:  make([]byte, 0, min(size, uint64(s.chunkSize))),
	}
	return nil
}

func decode(kind Kind, payload []byte) (any, error) {
	switch kind {
	case KindBloom:
		return bloom.UnmarshalBinary(payload)
	case KindCuckoo:
		return cuckoo.UnmarshalBinary(payload)
	case KindCMS:
		return cms.UnmarshalBinary(payload)
	case KindTopK:
		return topk.UnmarshalBinary(payload)
	case KindTDigest:
		return tdigest.UnmarshalBinary(payload)
	}
	return nil, fmt.Errorf("%w: unknown structure kind %d", ErrInvalidData, kind)
}
