// Package wire holds the little-endian encoding helpers shared by the
// versioned binary formats of the sketch packages.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jcalabro/sketchkv/sketcherr"
)

// Writer appends little-endian fields to a byte slice.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with room for sizeHint bytes.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

func (w *Writer) Uint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) Uint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *Writer) Uint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) Uint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *Writer) Float64(v float64) {
	w.Uint64(math.Float64bits(v))
}

// Bytes writes a length-prefixed byte string.
func (w *Writer) Bytes(b []byte) {
	w.Uint64(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// String writes a length-prefixed string.
func (w *Writer) String(s string) {
	w.Uint64(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// Raw appends b without a length prefix.
func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// Data returns the encoded bytes.
func (w *Writer) Data() []byte {
	return w.buf
}

// Reader consumes little-endian fields. The first short read is remembered
// and every later read returns zero values, so callers check Err once.
type Reader struct {
	data []byte
	off  int
	err  error
}

// NewReader returns a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.data)-r.off < n {
		r.err = fmt.Errorf("%w: truncated at offset %d (need %d bytes, have %d)",
			sketcherr.ErrInvalidData, r.off, n, len(r.data)-r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Uint8() uint8 {
	if b := r.next(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *Reader) Uint16() uint16 {
	if b := r.next(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *Reader) Uint32() uint32 {
	if b := r.next(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *Reader) Uint64() uint64 {
	if b := r.next(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *Reader) Float64() float64 {
	return math.Float64frombits(r.Uint64())
}

// Bytes reads a length-prefixed byte string. The result aliases the input.
func (r *Reader) Bytes() []byte {
	n := r.Uint64()
	if n > uint64(len(r.data)) {
		r.Fail("length prefix %d exceeds input", n)
		return nil
	}
	return r.next(int(n))
}

// String reads a length-prefixed string.
func (r *Reader) String() string {
	return string(r.Bytes())
}

// Raw reads n bytes without a length prefix.
func (r *Reader) Raw(n int) []byte {
	return r.next(n)
}

// Remaining reports the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Fail records a validation error unless one is already pending.
func (r *Reader) Fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: "+format, append([]any{sketcherr.ErrInvalidData}, args...)...)
	}
}

// Err returns the first error encountered.
func (r *Reader) Err() error {
	return r.err
}

// Finish returns the first error, or an error if unread bytes remain.
func (r *Reader) Finish() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.data) {
		return fmt.Errorf("%w: %d trailing bytes", sketcherr.ErrInvalidData, len(r.data)-r.off)
	}
	return nil
}
