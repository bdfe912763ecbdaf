package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MaxPeriodicRate is the upper bound of the scaled periodic-rate field, in Hz
const MaxPeriodicRate = 1092.0

// writer appends little-endian fields to a growing buffer
type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) u16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *writer) u32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) u64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *writer) f64(v float64) {
	w.u64(math.Float64bits(v))
}

func (w *writer) rate(v float64) {
	w.u16(scaleRate(v))
}

func (w *writer) blob(b []byte) {
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// reader consumes little-endian fields and remembers the first error
type reader struct {
	buf []byte
	off int
	err error
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if len(r.buf)-r.off < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrShortBuffer, n, r.off, len(r.buf)-r.off)
		return false
	}
	return true
}

func (r *reader) u8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *reader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *reader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *reader) f64() float64 {
	return math.Float64frombits(r.u64())
}

func (r *reader) rate() float64 {
	return unscaleRate(r.u16())
}

func (r *reader) blob() []byte {
	n := r.u32()
	if !r.need(int(n)) {
		return nil
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+int(n)])
	r.off += int(n)
	return out
}

// finish returns the first read error, or ErrTrailingBytes if input remains
func (r *reader) finish() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.buf) {
		return fmt.Errorf("%w: %d left", ErrTrailingBytes, len(r.buf)-r.off)
	}
	return nil
}

// scaleRate maps [0, MaxPeriodicRate] onto the full uint16 range
func scaleRate(v float64) uint16 {
	if v <= 0 {
		return 0
	}
	if v >= MaxPeriodicRate {
		return math.MaxUint16
	}
	return uint16(math.Round(v / MaxPeriodicRate * math.MaxUint16))
}

func unscaleRate(raw uint16) float64 {
	return float64(raw) * MaxPeriodicRate / math.MaxUint16
}
