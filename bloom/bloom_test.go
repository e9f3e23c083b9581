package bloom

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/jcalabro/sketchkv/sketcherr"
)

func uint32p(v uint32) *uint32 { return &v }

func mustNew(t *testing.T, errorRate float64, capacity uint64, opts Options) *Filter {
	t.Helper()
	f, err := New(errorRate, capacity, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return f
}

func TestFilterAdd(t *testing.T) {
	f := mustNew(t, 0.01, 1000, Options{})

	steps := []struct {
		item string
		want bool
	}{
		{"foo", true},
		{"foo", false},
		{"bar", true},
		{"foo", false},
		{"bar", false},
		{"baz", true},
	}
	for _, s := range steps {
		got, err := f.Add(s.item)
		if err != nil {
			t.Fatalf("Add(%q) failed: %v", s.item, err)
		}
		if got != s.want {
			t.Errorf("Add(%q) = %v, want %v", s.item, got, s.want)
		}
	}

	if !f.Exists("foo") {
		t.Error("expected foo to exist")
	}
	if f.Exists("noexist") {
		t.Error("expected noexist to be absent")
	}

	info := f.Info()
	if info.InsertedNum != 3 {
		t.Errorf("InsertedNum: got %d, want 3", info.InsertedNum)
	}
	if info.Capacity != 1000 {
		t.Errorf("Capacity: got %d, want 1000", info.Capacity)
	}
	if info.FilterNum != 1 {
		t.Errorf("FilterNum: got %d, want 1", info.FilterNum)
	}
}

func TestFilterOptions(t *testing.T) {
	tests := []struct {
		name          string
		errorRate     float64
		capacity      uint64
		opts          Options
		wantErr       error
		wantExpansion *uint32
	}{
		{"default", 0.01, 1000, Options{}, nil, uint32p(DefaultExpansion)},
		{"expansion", 0.0001, 1000, Options{Expansion: uint32p(4)}, nil, uint32p(4)},
		{"nonscaling", 0.0001, 1000, Options{NoScale: true}, nil, nil},
		{"zero expansion", 0.01, 1000, Options{Expansion: uint32p(0)}, nil, nil},
		{"expansion and noscale", 0.0001, 1000, Options{Expansion: uint32p(4), NoScale: true}, sketcherr.ErrConfiguration, nil},
		{"zero error", 0, 1000, Options{}, sketcherr.ErrConfiguration, nil},
		{"error of one", 1, 1000, Options{}, sketcherr.ErrConfiguration, nil},
		{"zero capacity", 0.01, 0, Options{}, sketcherr.ErrConfiguration, nil},
		{"oversized capacity", 0.01, 1_000_000_000_000_000_000, Options{}, sketcherr.ErrConfiguration, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.errorRate, tt.capacity, tt.opts)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got error %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			got := f.Info().ExpansionRate
			switch {
			case tt.wantExpansion == nil && got != nil:
				t.Errorf("ExpansionRate: got %d, want nil", *got)
			case tt.wantExpansion != nil && (got == nil || *got != *tt.wantExpansion):
				t.Errorf("ExpansionRate: got %v, want %d", got, *tt.wantExpansion)
			}
		})
	}
}

func TestFilterScaling(t *testing.T) {
	f := mustNew(t, 0.01, 100, Options{})

	for i := range 1000 {
		if _, err := f.Add(fmt.Sprintf("item-%d", i)); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	for i := range 1000 {
		if !f.Exists(fmt.Sprintf("item-%d", i)) {
			t.Fatalf("false negative for item-%d", i)
		}
	}

	info := f.Info()
	if info.FilterNum != 4 {
		t.Errorf("FilterNum: got %d, want 4", info.FilterNum)
	}
	if info.Capacity != 100+200+400+800 {
		t.Errorf("Capacity: got %d, want 1500", info.Capacity)
	}
	if info.InsertedNum > 1000 {
		t.Errorf("InsertedNum: got %d, want <= 1000", info.InsertedNum)
	}
	for i, l := range f.links[:len(f.links)-1] {
		if !l.full() {
			t.Errorf("link %d grew before it was full", i)
		}
	}
}

func TestFilterNonScalingFull(t *testing.T) {
	f := mustNew(t, 0.01, 10, Options{NoScale: true})

	var added int
	var err error
	for i := 0; i < 1000 && err == nil; i++ {
		var ok bool
		ok, err = f.Add(fmt.Sprintf("item-%d", i))
		if ok {
			added++
		}
	}
	if !errors.Is(err, sketcherr.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if added != 10 {
		t.Errorf("added %d items before full, want 10", added)
	}
	if f.Info().FilterNum != 1 {
		t.Errorf("non-scaling filter grew to %d links", f.Info().FilterNum)
	}

	// Items already present are still answered without error.
	if ok, err := f.Add("item-0"); ok || err != nil {
		t.Errorf("Add of existing item: got (%v, %v), want (false, nil)", ok, err)
	}
}

func TestFilterGrowthLimit(t *testing.T) {
	f := mustNew(t, 0.01, 100, Options{})

	// grow only reads the capacity of the current link.
	_, err := f.grow(&link{capacity: 600_000_000})
	if !errors.Is(err, sketcherr.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if f.Info().FilterNum != 1 {
		t.Errorf("failed growth appended a link: FilterNum %d", f.Info().FilterNum)
	}
}

func TestFilterFalsePositives(t *testing.T) {
	f := mustNew(t, 0.0001, 1000, Options{})

	var fp int
	for i := range 1000 {
		if _, err := f.Add(fmt.Sprint(i)); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if !f.Exists(fmt.Sprint(i)) {
			t.Fatalf("false negative for %d", i)
		}
		if f.Exists(fmt.Sprintf("nonexist_%d", i)) {
			fp++
		}
	}
	if fp >= 5 {
		t.Errorf("got %d false positives, want < 5", fp)
	}
}

func TestFilterSerialize(t *testing.T) {
	f := mustNew(t, 0.001, 50, Options{Expansion: uint32p(3)})
	for i := range 500 {
		if _, err := f.Add(fmt.Sprintf("item-%d", i)); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	data, err := f.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	restored, err := UnmarshalBinary(data)
	if err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}

	if !slices.Equal(f.Debug(), restored.Debug()) {
		t.Errorf("Debug mismatch:\n got %v\nwant %v", restored.Debug(), f.Debug())
	}
	if got, want := restored.Info(), f.Info(); got.InsertedNum != want.InsertedNum || got.FilterNum != want.FilterNum {
		t.Errorf("Info mismatch: got %+v, want %+v", got, want)
	}

	// The restored filter keeps growing with the same expansion.
	for i := 500; i < 2000; i++ {
		if _, err := restored.Add(fmt.Sprintf("item-%d", i)); err != nil {
			t.Fatalf("Add after restore failed: %v", err)
		}
	}
	if restored.Info().FilterNum <= f.Info().FilterNum {
		t.Error("expected restored filter to grow")
	}
}

func TestUnmarshalInvalid(t *testing.T) {
	f := mustNew(t, 0.01, 100, Options{})
	valid, _ := f.MarshalBinary()

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, sketcherr.ErrInvalidData},
		{"bad version", append([]byte{9}, valid[1:]...), sketcherr.ErrUnsupportedVersion},
		{"truncated", valid[:len(valid)-3], sketcherr.ErrInvalidData},
		{"trailing", append(append([]byte(nil), valid...), 0), sketcherr.ErrInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnmarshalBinary(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDebugFormat(t *testing.T) {
	f := mustNew(t, 0.01, 1000, Options{})
	_, _ = f.Add("x")
	lines := f.Debug()
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0] != "size:1" {
		t.Errorf("first line: got %q, want size:1", lines[0])
	}
}
