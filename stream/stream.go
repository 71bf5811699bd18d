// Package stream provides the byte-buffer helpers the wire codec uses to
// read and write big-endian fields, adapted from the teacher's stream
// package to return errors instead of silently truncating.
package stream

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// ErrShortBuffer is returned when a read would consume more bytes than
// remain in the buffer.
var ErrShortBuffer = errors.New("stream: short buffer")

// Reader wraps a byte slice with a cursor, used by the decoders in
// package wire.
type Reader struct {
	buf []byte
	pos int
}

// NewReader creates a Reader over buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len returns the number of unread bytes remaining.
func (r *Reader) Len() int {
	return len(r.buf) - r.pos
}

// Bytes reads n bytes and advances the cursor.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, ErrShortBuffer
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Rest returns every remaining unread byte without advancing the cursor.
func (r *Reader) Rest() []byte {
	return r.buf[r.pos:]
}

// Byte reads a single octet.
func (r *Reader) Byte() (byte, error) {
	b, err := r.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 reads a 2-octet big-endian unsigned integer.
func (r *Reader) Uint16() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// Uint32 reads a 4-octet big-endian unsigned integer.
func (r *Reader) Uint32() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Writer accumulates encoded octets, used by the encoders in package
// wire.
type Writer struct {
	buf []byte
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of octets written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// WriteByte appends a single octet. Implements io.ByteWriter.
func (w *Writer) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

// Write appends raw bytes. Implements io.Writer.
func (w *Writer) Write(b []byte) (int, error) {
	w.buf = append(w.buf, b...)
	return len(b), nil
}

// WriteUint16 appends a 2-octet big-endian unsigned integer.
func (w *Writer) WriteUint16(v uint16) {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	w.buf = append(w.buf, b...)
}

// WriteUint32 appends a 4-octet big-endian unsigned integer.
func (w *Writer) WriteUint32(v uint32) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	w.buf = append(w.buf, b...)
}

// ReadFull reads exactly count bytes from r, blocking until the buffer
// fills, EOF, or error.
func ReadFull(r io.Reader, count int) ([]byte, error) {
	b := make([]byte, count)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
