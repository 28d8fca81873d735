// Package wire implements the canonical, deterministic serialization
// primitives used for hashing, signing, and on-disk/on-wire encoding
// throughout the consensus engine: fixed-width big-endian
// integers, length-prefixed variable fields, and lexicographically sorted
// map keys. Modeled on wire/common.go's ReadElement/
// WriteElement idiom, adapted from little-endian varints to an
// explicit big-endian fixed-width encoding.
package wire

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"
)

// Writer accumulates canonical-serialization bytes. It never returns an
// error; callers that need an io.Writer-shaped API can wrap a
// *bytes.Buffer directly, but the helpers below are built around Writer to
// keep calling code free of error-checking boilerplate on every field.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated canonical serialization.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// WriteUint8 appends a single byte.
func (w *Writer) WriteUint8(v uint8) { w.buf.WriteByte(v) }

// WriteUint32 appends v as 4 big-endian bytes.
func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

// WriteUint64 appends v as 8 big-endian bytes.
func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// WriteInt64 appends v as 8 big-endian bytes (two's complement).
func (w *Writer) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

// WriteVarBytes appends a 4-byte big-endian length prefix followed by b.
func (w *Writer) WriteVarBytes(b []byte) {
	w.WriteUint32(uint32(len(b)))
	w.buf.Write(b)
}

// WriteVarString appends a length-prefixed UTF-8 string.
func (w *Writer) WriteVarString(s string) {
	w.WriteVarBytes([]byte(s))
}

// WriteSortedStringMap appends a length-prefixed sequence of
// (key,value)-as-VarBytes pairs, ordered lexicographically by key, giving a
// deterministic encoding of a map regardless of Go's randomized map
// iteration order.
func (w *Writer) WriteSortedStringMap(m map[string][]byte) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w.WriteUint32(uint32(len(keys)))
	for _, k := range keys {
		w.WriteVarString(k)
		w.WriteVarBytes(m[k])
	}
}

// Reader consumes canonical-serialization bytes produced by Writer.
type Reader struct {
	buf *bytes.Reader
}

// NewReader wraps b for sequential canonical-format reads.
func NewReader(b []byte) *Reader {
	return &Reader{buf: bytes.NewReader(b)}
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	return r.buf.ReadByte()
}

// ReadUint32 reads 4 big-endian bytes.
func (r *Reader) ReadUint32() (uint32, error) {
	var b [4]byte
	if _, err := readFull(r.buf, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// ReadUint64 reads 8 big-endian bytes.
func (r *Reader) ReadUint64() (uint64, error) {
	var b [8]byte
	if _, err := readFull(r.buf, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// ReadInt64 reads 8 big-endian bytes as a two's-complement int64.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// MaxVarBytesLen bounds a single length-prefixed field to guard against a
// corrupt or hostile length prefix causing an unbounded allocation.
const MaxVarBytesLen = 32 * 1024 * 1024

// ReadVarBytes reads a 4-byte big-endian length prefix followed by that
// many bytes.
func (r *Reader) ReadVarBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if n > MaxVarBytesLen {
		return nil, errors.Errorf("wire: var bytes length %d exceeds maximum %d", n, MaxVarBytesLen)
	}
	b := make([]byte, n)
	if _, err := readFull(r.buf, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadVarString reads a length-prefixed UTF-8 string.
func (r *Reader) ReadVarString() (string, error) {
	b, err := r.ReadVarBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadSortedStringMap reads back a map written by WriteSortedStringMap.
func (r *Reader) ReadSortedStringMap() (map[string][]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	m := make(map[string][]byte, n)
	for i := uint32(0); i < n; i++ {
		k, err := r.ReadVarString()
		if err != nil {
			return nil, err
		}
		v, err := r.ReadVarBytes()
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

// Len returns the number of unread bytes remaining.
func (r *Reader) Len() int { return r.buf.Len() }

func readFull(r *bytes.Reader, b []byte) (int, error) {
	n, err := r.Read(b)
	if err != nil {
		return n, errors.Wrap(err, "wire: short read")
	}
	if n != len(b) {
		return n, errors.Errorf("wire: short read: got %d bytes, want %d", n, len(b))
	}
	return n, nil
}
