package wire

import (
	"errors"
	"math"
	"testing"

	"github.com/jcalabro/sketchkv/sketcherr"
)

func TestWriterReader(t *testing.T) {
	w := NewWriter(0)
	w.Uint8(7)
	w.Uint16(0xBEEF)
	w.Uint32(123456)
	w.Uint64(math.MaxUint64)
	w.Float64(0.25)
	w.String("hello")
	w.Bytes([]byte{1, 2, 3})

	r := NewReader(w.Data())
	if got := r.Uint8(); got != 7 {
		t.Errorf("Uint8: got %d, want 7", got)
	}
	if got := r.Uint16(); got != 0xBEEF {
		t.Errorf("Uint16: got %x, want beef", got)
	}
	if got := r.Uint32(); got != 123456 {
		t.Errorf("Uint32: got %d, want 123456", got)
	}
	if got := r.Uint64(); got != math.MaxUint64 {
		t.Errorf("Uint64: got %d", got)
	}
	if got := r.Float64(); got != 0.25 {
		t.Errorf("Float64: got %v, want 0.25", got)
	}
	if got := r.String(); got != "hello" {
		t.Errorf("String: got %q, want hello", got)
	}
	if got := r.Bytes(); len(got) != 3 || got[2] != 3 {
		t.Errorf("Bytes: got %v", got)
	}
	if err := r.Finish(); err != nil {
		t.Errorf("Finish: %v", err)
	}
}

func TestReaderTruncated(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	_ = r.Uint64()
	if !errors.Is(r.Err(), sketcherr.ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData, got %v", r.Err())
	}
	// Sticky: later reads return zero values.
	if got := r.Uint8(); got != 0 {
		t.Errorf("read after error: got %d, want 0", got)
	}
}

func TestReaderTrailingBytes(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_ = r.Uint8()
	if err := r.Finish(); !errors.Is(err, sketcherr.ErrInvalidData) {
		t.Errorf("expected ErrInvalidData for trailing bytes, got %v", err)
	}
}

func TestReaderHugeLengthPrefix(t *testing.T) {
	w := NewWriter(8)
	w.Uint64(math.MaxUint64)
	r := NewReader(w.Data())
	if b := r.Bytes(); b != nil {
		t.Errorf("expected nil bytes, got %v", b)
	}
	if !errors.Is(r.Err(), sketcherr.ErrInvalidData) {
		t.Errorf("expected ErrInvalidData, got %v", r.Err())
	}
}
