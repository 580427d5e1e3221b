// Package codec implements the positional binary format used for every
// value that crosses the wire or lands in the database. Integers are
// big-endian fixed width, variable length byte sequences carry a 32 bit
// length prefix, containers carry a 32 bit count, and sum types carry a
// single tag byte before the variant payload.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrBadEncoding is returned on truncation, a tag out of range, or a
// length field exceeding the remaining buffer.
var ErrBadEncoding = errors.New("bad encoding")

// maxLength bounds any single length or count field. Frames on the wire
// can't exceed the u16 framing limit and database values stay well under
// this, so anything larger is a corrupt or hostile payload.
const maxLength = 1 << 26

// =============================================================================

// Writer accumulates the encoded representation of a set of values. The
// zero value is ready for use.
type Writer struct {
	buf bytes.Buffer
}

// Bytes returns the encoded bytes accumulated so far.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes accumulated so far.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// WriteUint8 appends a single byte.
func (w *Writer) WriteUint8(v uint8) {
	w.buf.WriteByte(v)
}

// WriteUint16 appends a big-endian 16 bit integer.
func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

// WriteUint32 appends a big-endian 32 bit integer.
func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

// WriteUint64 appends a big-endian 64 bit integer.
func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// WriteFixed appends the bytes as-is. The reader side must know the
// width from the declared type.
func (w *Writer) WriteFixed(b []byte) {
	w.buf.Write(b)
}

// WriteBytes appends a 32 bit length prefix followed by the bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteUint32(uint32(len(b)))
	w.buf.Write(b)
}

// WriteString appends the string with a 32 bit length prefix.
func (w *Writer) WriteString(s string) {
	w.WriteUint32(uint32(len(s)))
	w.buf.WriteString(s)
}

// WriteCount appends a container count.
func (w *Writer) WriteCount(n int) {
	w.WriteUint32(uint32(n))
}

// WriteBool appends a presence tag for Option-style sum types.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
		return
	}
	w.buf.WriteByte(0)
}

// =============================================================================

// Reader decodes values from a buffer in the order they were written.
type Reader struct {
	data []byte
	off  int
}

// NewReader constructs a Reader over the specified buffer.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining returns the number of bytes not consumed yet.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// take consumes n bytes from the buffer.
func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, fmt.Errorf("need %d bytes, have %d: %w", n, r.Remaining(), ErrBadEncoding)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

// ReadUint8 consumes a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16 consumes a big-endian 16 bit integer.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadUint32 consumes a big-endian 32 bit integer.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadUint64 consumes a big-endian 64 bit integer.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadFixed consumes exactly n bytes and returns a copy.
func (r *Reader) ReadFixed(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	cp := make([]byte, n)
	copy(cp, b)
	return cp, nil
}

// ReadBytes consumes a 32 bit length prefix and that many bytes.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if n > maxLength {
		return nil, fmt.Errorf("length %d exceeds limit: %w", n, ErrBadEncoding)
	}
	return r.ReadFixed(int(n))
}

// ReadString consumes a length-prefixed string.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadCount consumes a container count.
func (r *Reader) ReadCount() (int, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	if n > maxLength {
		return 0, fmt.Errorf("count %d exceeds limit: %w", n, ErrBadEncoding)
	}
	return int(n), nil
}

// ReadBool consumes a presence tag. Any value other than 0 or 1
// fails the decode.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadUint8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("presence tag %d out of range: %w", b, ErrBadEncoding)
}
