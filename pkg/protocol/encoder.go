package protocol

import (
	"encoding/binary"
	"math"
)

// Encoder builds a frame payload by appending to a growable buffer. All
// writes are infallible; the cost model is one amortized append per field,
// with zero allocations once the buffer has grown to its working size.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an encoder sized for a typical small frame.
func NewEncoder() *Encoder {
	return NewEncoderWithCap(256)
}

// NewEncoderWithCap returns an encoder with room for cap bytes before the
// first growth. Callers that know the payload size (attachment-bearing
// events) use this to avoid regrowth.
func NewEncoderWithCap(cap int) *Encoder {
	return &Encoder{buf: make([]byte, 0, cap)}
}

// Reset empties the encoder, keeping the buffer for reuse.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Bytes returns the accumulated payload. The slice aliases the internal
// buffer: it is invalidated by the next write or Reset.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len reports how many bytes have been written since the last Reset.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// WriteByte appends one byte. It deviates from io.ByteWriter's signature:
// appends cannot fail, so there is no error to return.
func (e *Encoder) WriteByte(b byte) {
	e.buf = append(e.buf, b)
}

// WriteBytes appends b verbatim, with no length prefix.
func (e *Encoder) WriteBytes(b []byte) {
	e.buf = append(e.buf, b...)
}

// WriteUvarint appends v in LEB128 form, 7 bits per byte.
func (e *Encoder) WriteUvarint(v uint64) {
	e.buf = binary.AppendUvarint(e.buf, v)
}

// WriteSvarint appends v zigzag-mapped onto a uvarint, so small magnitudes
// of either sign stay short on the wire.
func (e *Encoder) WriteSvarint(v int64) {
	e.buf = binary.AppendVarint(e.buf, v)
}

// WriteString appends a uvarint byte count followed by the string bytes.
func (e *Encoder) WriteString(s string) {
	e.buf = binary.AppendUvarint(e.buf, uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// WriteLenBytes appends a uvarint byte count followed by b.
func (e *Encoder) WriteLenBytes(b []byte) {
	e.buf = binary.AppendUvarint(e.buf, uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// WriteBool appends 0x01 for true, 0x00 for false.
func (e *Encoder) WriteBool(v bool) {
	var b byte
	if v {
		b = 1
	}
	e.buf = append(e.buf, b)
}

// WriteUint16 appends v big-endian.
func (e *Encoder) WriteUint16(v uint16) {
	e.buf = binary.BigEndian.AppendUint16(e.buf, v)
}

// WriteUint32 appends v big-endian.
func (e *Encoder) WriteUint32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

// WriteUint64 appends v big-endian.
func (e *Encoder) WriteUint64(v uint64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, v)
}

// WriteFloat64 appends the IEEE 754 bits of v big-endian.
func (e *Encoder) WriteFloat64(v float64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, math.Float64bits(v))
}
