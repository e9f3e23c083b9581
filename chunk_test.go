package sketchkv

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/jcalabro/sketchkv/bloom"
	"github.com/jcalabro/sketchkv/cuckoo"
)

func dumpAll(t *testing.T, s *Store, key string) []Chunk {
	t.Helper()
	var chunks []Chunk
	for it := int64(0); ; {
		next, data, err := s.ScanDump(key, it)
		if err != nil {
			t.Fatalf("ScanDump(%q, %d): %v", key, it, err)
		}
		if next == 0 {
			return chunks
		}
		chunks = append(chunks, Chunk{Iterator: next, Data: data})
		it = next
	}
}

func loadAll(t *testing.T, s *Store, key string, chunks []Chunk) {
	t.Helper()
	for _, c := range chunks {
		if err := s.LoadChunk(key, c.Iterator, c.Data); err != nil {
			t.Fatalf("LoadChunk(%q, %d): %v", key, c.Iterator, err)
		}
	}
}

func mustDebug(t *testing.T, s *Store, key string) []string {
	t.Helper()
	lines, err := s.Debug(key)
	if err != nil {
		t.Fatalf("Debug(%q): %v", key, err)
	}
	return lines
}

func TestBFDumpLoad(t *testing.T) {
	s, err := NewWithOptions(Options{ChunkSize: 512})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.BFReserve("myBloom", 0.0001, 1000, bloom.Options{}); err != nil {
		t.Fatal(err)
	}

	verify := func() {
		t.Helper()
		var falsePositives int
		for x := range 1000 {
			if _, err := s.BFAdd("myBloom", fmt.Sprint(x)); err != nil {
				t.Fatal(err)
			}
			if ok, _ := s.BFExists("myBloom", fmt.Sprint(x)); !ok {
				t.Fatalf("%d missing", x)
			}
			if ok, _ := s.BFExists("myBloom", fmt.Sprintf("nonexist_%d", x)); ok {
				falsePositives++
			}
		}
		if falsePositives >= 5 {
			t.Errorf("%d false positives", falsePositives)
		}
	}
	verify()

	chunks := dumpAll(t, s, "myBloom")
	if len(chunks) < 3 {
		t.Fatalf("expected a header and several data chunks, got %d chunks", len(chunks))
	}
	before := mustDebug(t, s, "myBloom")

	s.Del("myBloom")
	loadAll(t, s, "myBloom", chunks)

	if after := mustDebug(t, s, "myBloom"); !slices.Equal(before, after) {
		t.Fatalf("debug mismatch after reload:\n got %q\nwant %q", after, before)
	}
	verify()
}

func TestDumpLoadAllKinds(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *Store, key string) error
	}{
		{"bloom", func(s *Store, key string) error {
			_, err := s.BFInsert(key, []string{"a", "b", "c"}, BFInsertOptions{Capacity: ptr[uint64](2)})
			return err
		}},
		{"cuckoo", func(s *Store, key string) error {
			_, err := s.CFInsert(key, []string{"a", "b", "a"}, CFInsertOptions{Capacity: ptr[uint64](100)})
			if err == nil {
				_, err = s.CFDel(key, "b")
			}
			return err
		}},
		{"cms", func(s *Store, key string) error {
			if err := s.CMSInitByProb(key, 0.01, 0.01); err != nil {
				return err
			}
			_, err := s.CMSIncrBy(key, []string{"a", "b"}, []uint64{3, 7})
			return err
		}},
		{"topk", func(s *Store, key string) error {
			if err := s.TopKReserve(key, 3, 20, 4, 0.9); err != nil {
				return err
			}
			_, err := s.TopKAdd(key, "a", "b", "c", "d", "a", "a", "e", "b")
			return err
		}},
		{"tdigest", func(s *Store, key string) error {
			if err := s.TDigestCreate(key, 50); err != nil {
				return err
			}
			values := make([]float64, 500)
			for i := range values {
				values[i] = float64(i * i)
			}
			return s.TDigestAdd(key, values, ones(len(values)))
		}},
		{"tdigest fractional weights", func(s *Store, key string) error {
			if err := s.TDigestCreate(key, 10); err != nil {
				return err
			}
			values := make([]float64, 5000)
			weights := make([]float64, len(values))
			for i := range values {
				values[i], weights[i] = float64(i), 1e-4
			}
			return s.TDigestAdd(key, values, weights)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewWithOptions(Options{ChunkSize: 64})
			if err != nil {
				t.Fatal(err)
			}
			if err := tt.setup(s, "src"); err != nil {
				t.Fatal(err)
			}
			chunks := dumpAll(t, s, "src")
			loadAll(t, s, "dst", chunks)

			if s.Type("dst") != s.Type("src") {
				t.Errorf("type %v, want %v", s.Type("dst"), s.Type("src"))
			}
			if got, want := mustDebug(t, s, "dst"), mustDebug(t, s, "src"); !slices.Equal(got, want) {
				t.Errorf("debug mismatch:\n got %q\nwant %q", got, want)
			}

			// A reloaded structure dumps to the same chunks.
			again := dumpAll(t, s, "dst")
			if len(again) != len(chunks) {
				t.Fatalf("%d chunks on second dump, want %d", len(again), len(chunks))
			}
			for i := range chunks {
				if again[i].Iterator != chunks[i].Iterator || !bytes.Equal(again[i].Data, chunks[i].Data) {
					t.Fatalf("chunk %d differs", i)
				}
			}
		})
	}
}

func TestLoadChunkErrors(t *testing.T) {
	s, err := NewWithOptions(Options{ChunkSize: 32})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CFReserve("cf", 64, cuckoo.Options{}); err != nil {
		t.Fatal(err)
	}
	if err := s.CFAdd("cf", "x"); err != nil {
		t.Fatal(err)
	}
	chunks := dumpAll(t, s, "cf")
	if len(chunks) < 4 {
		t.Fatalf("need at least 3 data chunks, got %d chunks", len(chunks))
	}
	header := chunks[0]

	t.Run("data without header", func(t *testing.T) {
		err := s.LoadChunk("fresh", chunks[1].Iterator, chunks[1].Data)
		if !errors.Is(err, ErrOutOfOrderChunk) {
			t.Errorf("got %v, want ErrOutOfOrderChunk", err)
		}
	})

	t.Run("skipped chunk", func(t *testing.T) {
		if err := s.LoadChunk("skip", header.Iterator, header.Data); err != nil {
			t.Fatal(err)
		}
		if _, err := s.CFExists("skip", "x"); !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("key mid-load: got %v, want ErrKeyNotFound", err)
		}
		if slices.Contains(s.Keys(), "skip") {
			t.Error("loading key listed by Keys")
		}
		err := s.LoadChunk("skip", chunks[2].Iterator, chunks[2].Data)
		if !errors.Is(err, ErrOutOfOrderChunk) {
			t.Fatalf("got %v, want ErrOutOfOrderChunk", err)
		}
		// The load is still usable after a rejected chunk.
		loadAll(t, s, "skip", chunks[1:])
		if ok, err := s.CFExists("skip", "x"); err != nil || !ok {
			t.Errorf("CFExists after load = %v, %v", ok, err)
		}
	})

	t.Run("restart with header", func(t *testing.T) {
		if err := s.LoadChunk("restart", header.Iterator, header.Data); err != nil {
			t.Fatal(err)
		}
		if err := s.LoadChunk("restart", chunks[1].Iterator, chunks[1].Data); err != nil {
			t.Fatal(err)
		}
		loadAll(t, s, "restart", chunks)
		if got, want := mustDebug(t, s, "restart"), mustDebug(t, s, "cf"); !slices.Equal(got, want) {
			t.Errorf("debug mismatch: %q vs %q", got, want)
		}
	})

	t.Run("type mismatch", func(t *testing.T) {
		if err := s.CMSInitByDim("cms", 10, 2); err != nil {
			t.Fatal(err)
		}
		err := s.LoadChunk("cms", header.Iterator, header.Data)
		if !errors.Is(err, ErrTypeMismatch) {
			t.Errorf("got %v, want ErrTypeMismatch", err)
		}
		if _, err := s.CMSInfo("cms"); err != nil {
			t.Errorf("sketch damaged by rejected load: %v", err)
		}
	})

	t.Run("same kind replaces", func(t *testing.T) {
		if err := s.CFReserve("other", 1000, cuckoo.Options{}); err != nil {
			t.Fatal(err)
		}
		loadAll(t, s, "other", chunks)
		info, err := s.CFInfo("other")
		if err != nil {
			t.Fatal(err)
		}
		if info.Capacity != 64 {
			t.Errorf("capacity = %d, want the loaded filter's 64", info.Capacity)
		}
	})

	t.Run("corrupt payload", func(t *testing.T) {
		bad := slices.Clone(chunks)
		last := len(bad) - 1
		bad[last].Data = slices.Clone(bad[last].Data)
		bad[last].Data[0] ^= 0xff

		for _, c := range bad[:last] {
			if err := s.LoadChunk("corrupt", c.Iterator, c.Data); err != nil {
				t.Fatal(err)
			}
		}
		err := s.LoadChunk("corrupt", bad[last].Iterator, bad[last].Data)
		if !errors.Is(err, ErrInvalidData) {
			t.Errorf("got %v, want ErrInvalidData", err)
		}
		if s.Type("corrupt") != KindNone {
			t.Error("corrupt load left a key behind")
		}
	})

	t.Run("bad header", func(t *testing.T) {
		tests := []struct {
			name string
			data []byte
			want error
		}{
			{"short", header.Data[:10], ErrInvalidData},
			{"magic", append([]byte("XXXX"), header.Data[4:]...), ErrInvalidData},
			{"version", append(append([]byte(dumpMagic), 9), header.Data[5:]...), ErrUnsupportedVersion},
			{"kind", append(append([]byte(dumpMagic), dumpVersion, 42), header.Data[6:]...), ErrInvalidData},
		}
		for _, tt := range tests {
			if err := s.LoadChunk("hdr", 1, tt.data); !errors.Is(err, tt.want) {
				t.Errorf("%s: got %v, want %v", tt.name, err, tt.want)
			}
		}
		if s.Type("hdr") != KindNone {
			t.Error("rejected header created a key")
		}
	})

	t.Run("zero iterator", func(t *testing.T) {
		if err := s.LoadChunk("cf", 0, header.Data); !errors.Is(err, ErrOutOfOrderChunk) {
			t.Errorf("got %v, want ErrOutOfOrderChunk", err)
		}
	})
}

func TestScanDumpErrors(t *testing.T) {
	s := New()
	if _, _, err := s.ScanDump("missing", 0); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("got %v, want ErrKeyNotFound", err)
	}
	if err := s.TDigestCreate("td", 10); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.ScanDump("td", -1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("got %v, want ErrInvalidArgument", err)
	}
	if next, data, err := s.ScanDump("td", 1<<40); err != nil || next != 0 || data != nil {
		t.Errorf("past the end: %d, %v, %v", next, data, err)
	}
}
