package archive

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/jcalabro/sketchkv"
	"github.com/jcalabro/sketchkv/bloom"
)

func openArchive(t *testing.T, store *sketchkv.Store) *Archive {
	t.Helper()
	a, err := Open(context.Background(), filepath.Join(t.TempDir(), "archive.db"), store)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func seed(t *testing.T, s *sketchkv.Store) {
	t.Helper()
	if err := s.BFReserve("bf", 0.01, 1000, bloom.Options{}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.BFMAdd("bf", "a", "b", "c"); err != nil {
		t.Fatal(err)
	}
	if err := s.CMSInitByDim("cms", 64, 4); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CMSIncrBy("cms", []string{"x"}, []uint64{42}); err != nil {
		t.Fatal(err)
	}
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src, err := sketchkv.NewWithOptions(sketchkv.Options{ChunkSize: 100})
	if err != nil {
		t.Fatal(err)
	}
	seed(t, src)
	a := openArchive(t, src)

	exp, err := a.Export(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if exp.ID == "" || exp.Keys != 2 || exp.Bytes == 0 || exp.Size == "" {
		t.Fatalf("unexpected export %+v", exp)
	}

	// Import into a fresh store sharing the same database.
	dst := sketchkv.New()
	b := &Archive{db: a.db, store: dst}
	keys, err := b.Import(ctx, exp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(keys, []string{"bf", "cms"}) {
		t.Errorf("imported %v", keys)
	}
	for _, key := range keys {
		want, _ := src.Debug(key)
		got, err := dst.Debug(key)
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(got, want) {
			t.Errorf("%s: debug mismatch\n got %q\nwant %q", key, got, want)
		}
	}
	if counts, _ := dst.CMSQuery("cms", "x"); counts[0] != 42 {
		t.Errorf("cms count after import = %d", counts[0])
	}

	// Importing twice replaces the keys.
	if _, err := b.Import(ctx, exp.ID); err != nil {
		t.Fatal(err)
	}
}

func TestExportExplicitKeys(t *testing.T) {
	ctx := context.Background()
	s := sketchkv.New()
	seed(t, s)
	a := openArchive(t, s)

	exp, err := a.Export(ctx, []string{"cms"})
	if err != nil {
		t.Fatal(err)
	}
	if exp.Keys != 1 {
		t.Errorf("keys = %d, want 1", exp.Keys)
	}

	if _, err := a.Export(ctx, []string{"cms", "missing"}); !errors.Is(err, sketchkv.ErrKeyNotFound) {
		t.Errorf("got %v, want ErrKeyNotFound", err)
	}
	// The failed export left nothing behind.
	exports, err := a.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(exports) != 1 || exports[0].ID != exp.ID {
		t.Errorf("exports = %+v", exports)
	}
}

func TestListDelete(t *testing.T) {
	ctx := context.Background()
	s := sketchkv.New()
	seed(t, s)
	a := openArchive(t, s)

	exports, err := a.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(exports) != 0 {
		t.Fatalf("fresh archive lists %d exports", len(exports))
	}

	exp, err := a.Export(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	exports, err = a.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(exports) != 1 {
		t.Fatalf("got %d exports", len(exports))
	}
	got := exports[0]
	if got.ID != exp.ID || got.Keys != exp.Keys || got.Bytes != exp.Bytes || got.Size != exp.Size || !got.CreatedAt.Equal(exp.CreatedAt) {
		t.Errorf("listed %+v, exported %+v", got, exp)
	}

	if err := a.Delete(ctx, exp.ID); err != nil {
		t.Fatal(err)
	}
	if err := a.Delete(ctx, exp.ID); !errors.Is(err, ErrExportNotFound) {
		t.Errorf("second delete: got %v", err)
	}
	if _, err := a.Import(ctx, exp.ID); !errors.Is(err, ErrExportNotFound) {
		t.Errorf("import deleted: got %v", err)
	}
}
