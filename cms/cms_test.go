package cms

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/jcalabro/sketchkv/sketcherr"
)

func mustDim(t *testing.T, width, depth uint32) *Sketch {
	t.Helper()
	s, err := NewWithDim(width, depth)
	if err != nil {
		t.Fatalf("NewWithDim failed: %v", err)
	}
	return s
}

func query(s *Sketch, items ...string) []uint64 {
	out := make([]uint64, len(items))
	for i, item := range items {
		out[i] = s.Query(item)
	}
	return out
}

func TestIncrByQuery(t *testing.T) {
	s := mustDim(t, 1000, 5)

	if got := s.IncrBy("foo", 5); got != 5 {
		t.Errorf("IncrBy(foo, 5) = %d, want 5", got)
	}
	if got := s.Query("notexist"); got != 0 {
		t.Errorf("Query(notexist) = %d, want 0", got)
	}
	if got := s.Query("foo"); got != 5 {
		t.Errorf("Query(foo) = %d, want 5", got)
	}
	if got := []uint64{s.IncrBy("foo", 5), s.IncrBy("bar", 15)}; !slices.Equal(got, []uint64{10, 15}) {
		t.Errorf("IncrBy = %v, want [10 15]", got)
	}
	if got := query(s, "foo", "bar"); !slices.Equal(got, []uint64{10, 15}) {
		t.Errorf("Query = %v, want [10 15]", got)
	}

	info := s.Info()
	if info.Width != 1000 || info.Depth != 5 || info.Count != 25 {
		t.Errorf("Info = %+v, want {1000 5 25}", info)
	}
}

func TestNeverUnderestimates(t *testing.T) {
	s := mustDim(t, 50, 4)
	truth := make(map[string]uint64)
	for i := range 2000 {
		item := fmt.Sprintf("item-%d", i%300)
		s.IncrBy(item, uint64(i%7+1))
		truth[item] += uint64(i%7 + 1)
	}
	for item, want := range truth {
		if got := s.Query(item); got < want {
			t.Fatalf("Query(%s) = %d, below true count %d", item, got, want)
		}
	}
}

func TestNewWithProb(t *testing.T) {
	s, err := NewWithProb(0.01, 0.01)
	if err != nil {
		t.Fatalf("NewWithProb failed: %v", err)
	}
	width, depth := DimFromProb(0.01, 0.01)
	if s.Width() != width || s.Depth() != depth {
		t.Errorf("dims = %dx%d, want %dx%d", s.Width(), s.Depth(), width, depth)
	}
	if width != 272 || depth != 5 {
		t.Errorf("DimFromProb(0.01, 0.01) = %dx%d, want 272x5", width, depth)
	}

	for _, tt := range []struct{ eps, delta float64 }{{0, 0.1}, {1, 0.1}, {0.1, 0}, {0.1, 1}, {math.NaN(), 0.1}} {
		if _, err := NewWithProb(tt.eps, tt.delta); !errors.Is(err, sketcherr.ErrConfiguration) {
			t.Errorf("NewWithProb(%v, %v): got %v, want ErrConfiguration", tt.eps, tt.delta, err)
		}
	}
}

func TestNewWithDimInvalid(t *testing.T) {
	for _, tt := range []struct{ w, d uint32 }{{0, 5}, {5, 0}, {math.MaxUint32, math.MaxUint32}} {
		if _, err := NewWithDim(tt.w, tt.d); !errors.Is(err, sketcherr.ErrConfiguration) {
			t.Errorf("NewWithDim(%d, %d): got %v, want ErrConfiguration", tt.w, tt.d, err)
		}
	}
}

func TestMergeAccumulates(t *testing.T) {
	a, b, c := mustDim(t, 1000, 5), mustDim(t, 1000, 5), mustDim(t, 1000, 5)
	for i, item := range []string{"foo", "bar", "baz"} {
		a.IncrBy(item, []uint64{5, 3, 9}[i])
		b.IncrBy(item, []uint64{2, 3, 1}[i])
	}

	steps := []struct {
		weights []int64
		want    []uint64
	}{
		{nil, []uint64{7, 6, 10}},
		{[]int64{1, 2}, []uint64{16, 15, 21}},
		{[]int64{2, 3}, []uint64{32, 30, 42}},
	}
	for i, step := range steps {
		if err := c.Merge([]*Sketch{a, b}, step.weights); err != nil {
			t.Fatalf("merge %d failed: %v", i, err)
		}
		if got := query(c, "foo", "bar", "baz"); !slices.Equal(got, step.want) {
			t.Errorf("after merge %d: got %v, want %v", i, got, step.want)
		}
	}
	if want := uint64((17 + 6) + (17 + 12) + (34 + 18)); c.Count() != want {
		t.Errorf("Count = %d, want %d", c.Count(), want)
	}
}

func TestMergeWeightLinear(t *testing.T) {
	a, b, c := mustDim(t, 1000, 5), mustDim(t, 1000, 5), mustDim(t, 1000, 5)
	a.IncrBy("x", 5)
	b.IncrBy("x", 2)
	if err := c.Merge([]*Sketch{a, b}, []int64{1, 1}); err != nil {
		t.Fatal(err)
	}
	if err := c.Merge([]*Sketch{a, b}, []int64{2, 3}); err != nil {
		t.Fatal(err)
	}
	if got, want := c.Query("x"), uint64(1*5+1*2+2*5+3*2); got != want {
		t.Errorf("Query(x) = %d, want %d", got, want)
	}
}

func TestMergeErrors(t *testing.T) {
	a, b := mustDim(t, 100, 5), mustDim(t, 100, 4)
	dst := mustDim(t, 100, 5)
	dst.IncrBy("keep", 3)

	if err := dst.Merge([]*Sketch{a, b}, nil); !errors.Is(err, sketcherr.ErrDimensionMismatch) {
		t.Errorf("got %v, want ErrDimensionMismatch", err)
	}
	if err := dst.Merge([]*Sketch{a}, []int64{1, 2}); !errors.Is(err, sketcherr.ErrArityMismatch) {
		t.Errorf("got %v, want ErrArityMismatch", err)
	}
	if err := dst.Merge([]*Sketch{a}, []int64{-1}); !errors.Is(err, sketcherr.ErrInvalidArgument) {
		t.Errorf("got %v, want ErrInvalidArgument", err)
	}
	if dst.Query("keep") != 3 || dst.Count() != 3 {
		t.Error("failed merge modified the destination")
	}
}

func TestMergeIntoSelf(t *testing.T) {
	s := mustDim(t, 100, 3)
	s.IncrBy("x", 4)
	if err := s.Merge([]*Sketch{s}, []int64{2}); err != nil {
		t.Fatal(err)
	}
	if got := s.Query("x"); got != 12 {
		t.Errorf("Query(x) = %d, want 12", got)
	}
}

func TestSaturation(t *testing.T) {
	s := mustDim(t, 10, 2)
	s.IncrBy("x", math.MaxUint64-1)
	if got := s.IncrBy("x", 10); got != math.MaxUint64 {
		t.Errorf("IncrBy past max = %d, want saturation", got)
	}
}

func TestSerializeRoundtrip(t *testing.T) {
	s := mustDim(t, 64, 4)
	for i := range 500 {
		s.IncrBy(fmt.Sprintf("item-%d", i%50), uint64(i))
	}
	data, err := s.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	restored, err := UnmarshalBinary(data)
	if err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if !slices.Equal(s.Debug(), restored.Debug()) {
		t.Errorf("Debug mismatch: got %v, want %v", restored.Debug(), s.Debug())
	}
	if restored.Info() != s.Info() {
		t.Errorf("Info mismatch: got %+v, want %+v", restored.Info(), s.Info())
	}

	for _, bad := range [][]byte{nil, data[:headerSize], data[:len(data)-1], append([]byte{2}, data[1:]...)} {
		if _, err := UnmarshalBinary(bad); err == nil {
			t.Errorf("expected error for %d byte input", len(bad))
		}
	}
}
