package wfn

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// decoder reads little-endian words and keeps the first error.
type decoder struct {
	r   *bufio.Reader
	buf [8]byte
	off int64
	err error
}

func newDecoder(r io.Reader) *decoder {
	return &decoder{r: bufio.NewReaderSize(r, 1<<16)}
}

func (d *decoder) read(n int) []byte {
	if d.err != nil {
		return d.buf[:n]
	}
	if _, err := io.ReadFull(d.r, d.buf[:n]); err != nil {
		d.err = fmt.Errorf("%w: short read at byte %d: %v", ErrFormat, d.off, err)
	}
	d.off += int64(n)
	return d.buf[:n]
}

func (d *decoder) int() int {
	return int(int32(binary.LittleEndian.Uint32(d.read(4))))
}

func (d *decoder) int64() int64 {
	return int64(binary.LittleEndian.Uint64(d.read(8)))
}

func (d *decoder) float() float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(d.read(4)))
}

func (d *decoder) skip(words int) {
	for i := 0; i < words && d.err == nil; i++ {
		d.read(4)
	}
}

func (d *decoder) discard(n int) {
	if d.err != nil {
		return
	}
	got, err := d.r.Discard(n)
	d.off += int64(got)
	if err != nil {
		d.err = fmt.Errorf("%w: cannot skip %d bytes at %d: %v", ErrFormat, n, d.off, err)
	}
}

// fail records a format error unless one is already set.
func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: "+format, append([]any{ErrFormat}, args...)...)
	}
}

type encoder struct {
	w   *bufio.Writer
	buf [8]byte
	err error
}

func newEncoder(w io.Writer) *encoder {
	return &encoder{w: bufio.NewWriterSize(w, 1<<16)}
}

func (e *encoder) write(b []byte) {
	if e.err == nil {
		_, e.err = e.w.Write(b)
	}
}

func (e *encoder) int(v int) {
	binary.LittleEndian.PutUint32(e.buf[:4], uint32(int32(v)))
	e.write(e.buf[:4])
}

func (e *encoder) ints(vs ...int) {
	for _, v := range vs {
		e.int(v)
	}
}

func (e *encoder) int64(v int64) {
	binary.LittleEndian.PutUint64(e.buf[:8], uint64(v))
	e.write(e.buf[:8])
}

func (e *encoder) float(v float32) {
	binary.LittleEndian.PutUint32(e.buf[:4], math.Float32bits(v))
	e.write(e.buf[:4])
}

func (e *encoder) flush() error {
	if e.err != nil {
		return e.err
	}
	return e.w.Flush()
}
