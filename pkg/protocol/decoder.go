package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// Limits applied while decoding untrusted input. Length prefixes and
// collection counts are claims made by the peer; nothing is allocated on
// their behalf until the claim passes these checks.
const (
	// DefaultMaxAllocation caps any single decoded string, byte slice, or
	// attachment at 4 MiB.
	DefaultMaxAllocation = 4 * 1024 * 1024

	// HardMaxAllocation is the ceiling no configuration can raise the
	// allocation cap past (16 MiB).
	HardMaxAllocation = 16 * 1024 * 1024

	// MaxCollectionCount caps the declared element count of argument
	// lists, arrays, objects, and attachment sections. Large counts with
	// tiny per-item cost are how a short payload requests a huge
	// allocation.
	MaxCollectionCount = 100_000
)

// Common decoding errors.
var (
	ErrBufferTooShort     = errors.New("protocol: buffer too short")
	ErrVarintOverflow     = errors.New("protocol: varint overflow")
	ErrAllocationTooLarge = errors.New("protocol: allocation size exceeds limit")
	ErrCollectionTooLarge = errors.New("protocol: collection count exceeds limit")
)

// Decoder consumes a frame payload front to back. It never copies the
// input except where documented; truncated input surfaces as
// io.ErrUnexpectedEOF from whichever read hit the end.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder wraps buf for decoding. The decoder reads from buf in place,
// so the caller must not mutate it until decoding is done.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// EOF reports whether the input is exhausted.
func (d *Decoder) EOF() bool {
	return d.pos >= len(d.buf)
}

// Position returns the offset of the next read.
func (d *Decoder) Position() int {
	return d.pos
}

// Skip discards the next n bytes.
func (d *Decoder) Skip(n int) error {
	_, err := d.take(n)
	return err
}

// take consumes n bytes and returns them as a window into the input.
func (d *Decoder) take(n int) ([]byte, error) {
	if n > len(d.buf)-d.pos {
		return nil, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// ReadByte consumes one byte.
func (d *Decoder) ReadByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

// ReadBytes consumes exactly n bytes. The result aliases the decoder's
// input; callers that retain it must copy.
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	return d.take(n)
}

// ReadUvarint consumes one LEB128 unsigned varint.
func (d *Decoder) ReadUvarint() (uint64, error) {
	var v uint64
	for shift := uint(0); ; shift += 7 {
		if shift >= 64 {
			return 0, ErrVarintOverflow
		}
		if d.pos >= len(d.buf) {
			return 0, io.ErrUnexpectedEOF
		}
		b := d.buf[d.pos]
		d.pos++
		v |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
}

// ReadSvarint consumes one zigzag-encoded signed varint.
func (d *Decoder) ReadSvarint() (int64, error) {
	uv, err := d.ReadUvarint()
	if err != nil {
		return 0, err
	}
	return int64(uv>>1) ^ -int64(uv&1), nil
}

// lenPrefix reads a uvarint byte count and validates it. The allocation
// limit is checked before the bounds check so an oversized claim is
// reported as a limit violation even when the buffer is also short.
func (d *Decoder) lenPrefix() (int, error) {
	length, err := d.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if length > DefaultMaxAllocation {
		return 0, ErrAllocationTooLarge
	}
	if length > uint64(d.Remaining()) {
		return 0, io.ErrUnexpectedEOF
	}
	return int(length), nil
}

// ReadString consumes a length-prefixed UTF-8 string. The string is a
// copy, safe to retain.
func (d *Decoder) ReadString() (string, error) {
	n, err := d.lenPrefix()
	if err != nil {
		return "", err
	}
	b, _ := d.take(n)
	return string(b), nil
}

// ReadLenBytes consumes length-prefixed bytes and returns a copy, safe to
// retain after the frame buffer is reused.
func (d *Decoder) ReadLenBytes() ([]byte, error) {
	n, err := d.lenPrefix()
	if err != nil {
		return nil, err
	}
	b, _ := d.take(n)
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadBool consumes one byte; zero is false, anything else is true.
func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// ReadUint16 consumes a big-endian uint16.
func (d *Decoder) ReadUint16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadUint32 consumes a big-endian uint32.
func (d *Decoder) ReadUint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadUint64 consumes a big-endian uint64.
func (d *Decoder) ReadUint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadFloat64 consumes a big-endian IEEE 754 float64.
func (d *Decoder) ReadFloat64() (float64, error) {
	v, err := d.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadCollectionCount reads an element count and validates it, both
// against MaxCollectionCount and against the bytes actually remaining
// (every element costs at least one byte).
func (d *Decoder) ReadCollectionCount() (int, error) {
	count, err := d.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if count > MaxCollectionCount {
		return 0, ErrCollectionTooLarge
	}
	if count > uint64(d.Remaining()) {
		return 0, io.ErrUnexpectedEOF
	}
	return int(count), nil
}
