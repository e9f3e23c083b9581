package sketchkv

import (
	"encoding"
	"fmt"
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jcalabro/sketchkv/bloom"
	"github.com/jcalabro/sketchkv/cms"
	"github.com/jcalabro/sketchkv/cuckoo"
	"github.com/jcalabro/sketchkv/tdigest"
	"github.com/jcalabro/sketchkv/topk"
)

// Kind identifies the structure held by a key.
type Kind uint8

const (
	KindNone Kind = iota
	KindBloom
	KindCuckoo
	KindCMS
	KindTopK
	KindTDigest
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBloom:
		return "bloom"
	case KindCuckoo:
		return "cuckoo"
	case KindCMS:
		return "cms"
	case KindTopK:
		return "topk"
	case KindTDigest:
		return "tdigest"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) valid() bool {
	return k > KindNone && k <= KindTDigest
}

const (
	// DefaultChunkSize is the largest data chunk ScanDump returns by default.
	DefaultChunkSize = 16 << 20

	// DefaultDumpCacheSize is the number of dump snapshots kept between
	// ScanDump calls by default.
	DefaultDumpCacheSize = 64
)

// Options configure a Store.
type Options struct {
	// ChunkSize bounds the size of the data chunks returned by ScanDump.
	ChunkSize int

	// DumpCacheSize bounds the number of keys whose serialized snapshot is
	// kept while a ScanDump sequence is in progress. A key evicted from the
	// cache is serialized again on its next ScanDump call.
	DumpCacheSize int
}

// Result is the outcome of one item of a batch operation.
type Result[T any] struct {
	Value T
	Err   error
}

// Store maps keys to probabilistic structures. It is safe for concurrent use.
// Operations on the same key are serialized.
type Store struct {
	chunkSize int

	mu      sync.RWMutex
	entries map[string]*entry

	dumps *lru.Cache[string, []byte]
}

// entry is the slot of one key. Its fields are guarded by mu. An entry that
// was removed from the store is marked dead so that goroutines that looked
// it up before the removal retry the lookup.
type entry struct {
	mu    sync.Mutex
	dead  bool
	kind  Kind
	value any
	load  *pendingLoad
}

// New returns an empty store with default options.
func New() *Store {
	s, err := NewWithOptions(Options{})
	if err != nil {
		panic(err)
	}
	return s
}

// NewWithOptions returns an empty store. Zero option values select the defaults.
func NewWithOptions(opts Options) (*Store, error) {
	if opts.ChunkSize < 0 || opts.DumpCacheSize < 0 {
		return nil, fmt.Errorf("%w: chunk size and dump cache size must not be negative", ErrConfiguration)
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.DumpCacheSize == 0 {
		opts.DumpCacheSize = DefaultDumpCacheSize
	}
	dumps, err := lru.New[string, []byte](opts.DumpCacheSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return &Store{
		chunkSize: opts.ChunkSize,
		entries:   make(map[string]*entry),
		dumps:     dumps,
	}, nil
}

// acquire returns the locked entry for key. With create set, a missing key
// gets an empty entry which release removes again unless it was filled.
func (s *Store) acquire(key string, create bool) (*entry, error) {
	for {
		s.mu.RLock()
		e := s.entries[key]
		s.mu.RUnlock()

		if e == nil {
			if !create {
				return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
			}
			s.mu.Lock()
			e = s.entries[key]
			if e == nil {
				e = &entry{}
				s.entries[key] = e
			}
			s.mu.Unlock()
		}

		e.mu.Lock()
		if !e.dead {
			return e, nil
		}
		e.mu.Unlock()
	}
}

// release unlocks e, dropping it from the store when it holds nothing.
func (s *Store) release(key string, e *entry) {
	if e.kind == KindNone && e.load == nil && !e.dead {
		s.remove(key, e)
	}
	e.mu.Unlock()
}

// remove drops the locked entry e from the store.
func (s *Store) remove(key string, e *entry) {
	s.mu.Lock()
	if s.entries[key] == e {
		delete(s.entries, key)
	}
	s.mu.Unlock()
	e.dead = true
	e.kind = KindNone
	e.value = nil
	e.load = nil
	s.dumps.Remove(key)
}

// acquireAll locks the entries of every distinct key in sorted order. The
// returned map is keyed by key; on error nothing remains locked.
func (s *Store) acquireAll(keys []string) (map[string]*entry, func(), error) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	locked := make(map[string]*entry, len(sorted))
	unlock := func() {
		for k, e := range locked {
			s.release(k, e)
		}
	}
	for _, k := range sorted {
		e, err := s.acquire(k, false)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		locked[k] = e
	}
	return locked, unlock, nil
}

// structure returns the value of e if it holds a structure of kind.
func (e *entry) structure(key string, kind Kind) (any, error) {
	if e.kind == KindNone {
		if e.load != nil {
			return nil, fmt.Errorf("%w: %q is still loading", ErrKeyNotFound, key)
		}
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	if e.kind != kind {
		return nil, fmt.Errorf("%w: %q holds a %s, not a %s", ErrTypeMismatch, key, e.kind, kind)
	}
	return e.value, nil
}

// view runs fn with the structure of kind stored under key.
func view[T any](s *Store, key string, kind Kind, fn func(T) error) error {
	e, err := s.acquire(key, false)
	if err != nil {
		return err
	}
	defer s.release(key, e)

	v, err := e.structure(key, kind)
	if err != nil {
		return err
	}
	return fn(v.(T))
}

// upsert runs fn with the structure of kind stored under key, first creating
// it with build when the key is absent and noCreate is not set.
func upsert[T any](s *Store, key string, kind Kind, noCreate bool, build func() (T, error), fn func(T) error) error {
	e, err := s.acquire(key, !noCreate)
	if err != nil {
		return err
	}
	defer s.release(key, e)

	if e.kind == KindNone && e.load == nil {
		v, err := build()
		if err != nil {
			return err
		}
		e.kind, e.value = kind, v
	}
	v, err := e.structure(key, kind)
	if err != nil {
		return err
	}
	return fn(v.(T))
}

// create stores the structure returned by build under key, which must be
// absent.
func create[T any](s *Store, key string, kind Kind, build func() (T, error)) error {
	e, err := s.acquire(key, true)
	if err != nil {
		return err
	}
	defer s.release(key, e)

	if e.kind != KindNone || e.load != nil {
		return fmt.Errorf("%w: %q", ErrKeyExists, key)
	}
	v, err := build()
	if err != nil {
		return err
	}
	e.kind, e.value = kind, v
	return nil
}

// Type returns the kind of structure stored under key, or KindNone.
func (s *Store) Type(key string) Kind {
	s.mu.RLock()
	e := s.entries[key]
	s.mu.RUnlock()
	if e == nil {
		return KindNone
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return KindNone
	}
	return e.kind
}

// Del removes key and any load in progress for it. It reports whether the
// key existed.
func (s *Store) Del(key string) bool {
	e, err := s.acquire(key, false)
	if err != nil {
		return false
	}
	existed := e.kind != KindNone || e.load != nil
	s.remove(key, e)
	e.mu.Unlock()
	return existed
}

// Keys returns the keys holding a structure, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.entries))
	entries := make([]*entry, 0, len(s.entries))
	for k, e := range s.entries {
		names = append(names, k)
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	keys := names[:0]
	for i, e := range entries {
		e.mu.Lock()
		if !e.dead && e.kind != KindNone {
			keys = append(keys, names[i])
		}
		e.mu.Unlock()
	}
	slices.Sort(keys)
	return keys
}

// sketch is implemented by every structure kind.
type sketch interface {
	encoding.BinaryMarshaler
	Debug() []string
}

// Debug returns a description of the internal state of the structure stored
// under key. Two structures with equal Debug output hold identical state.
func (s *Store) Debug(key string) ([]string, error) {
	e, err := s.acquire(key, false)
	if err != nil {
		return nil, err
	}
	defer s.release(key, e)

	v, err := e.structure(key, e.kind)
	if err != nil {
		return nil, err
	}
	return append([]string{"type:" + e.kind.String()}, v.(sketch).Debug()...), nil
}

var (
	_ sketch = (*bloom.Filter)(nil)
	_ sketch = (*cuckoo.Filter)(nil)
	_ sketch = (*cms.Sketch)(nil)
	_ sketch = (*topk.Tracker)(nil)
	_ sketch = (*tdigest.Digest)(nil)
)
