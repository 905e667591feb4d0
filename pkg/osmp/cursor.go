package osmp

import (
	"bytes"
	"encoding/binary"
	"math/bits"
)

// Cursor is a bounds-checked view over an untrusted byte region. Every
// accessor validates that the requested span lies inside the region before
// touching it; no decoding elsewhere in this package indexes raw bytes.
type Cursor struct {
	b []byte
}

// NewCursor returns a cursor over b. The cursor borrows b.
func NewCursor(b []byte) Cursor {
	return Cursor{b: b}
}

// Len returns the region size in bytes.
func (c Cursor) Len() uint64 {
	return uint64(len(c.b))
}

func (c Cursor) span(off, n uint64) (int, int, error) {
	end, carry := bits.Add64(off, n, 0)
	if carry != 0 || end > uint64(len(c.b)) {
		return 0, 0, &BoundsError{Off: off, Len: n, Size: uint64(len(c.b))}
	}
	return int(off), int(end), nil
}

// Bytes returns the n bytes at off without copying.
func (c Cursor) Bytes(off, n uint64) ([]byte, error) {
	start, end, err := c.span(off, n)
	if err != nil {
		return nil, err
	}
	return c.b[start:end:end], nil
}

// Sub returns a cursor over the n bytes at off.
func (c Cursor) Sub(off, n uint64) (Cursor, error) {
	b, err := c.Bytes(off, n)
	if err != nil {
		return Cursor{}, err
	}
	return Cursor{b: b}, nil
}

func (c Cursor) Uint16(off uint64) (uint16, error) {
	b, err := c.Bytes(off, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c Cursor) Uint32(off uint64) (uint32, error) {
	b, err := c.Bytes(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c Cursor) Uint64(off uint64) (uint64, error) {
	b, err := c.Bytes(off, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// CString reads a NUL-terminated string starting at off. The terminator must
// appear within max bytes of off (max <= 0 means anywhere before the region
// end); otherwise a *BoundsError is returned.
func (c Cursor) CString(off uint64, max int) (string, error) {
	size := uint64(len(c.b))
	if off >= size {
		return "", &BoundsError{Off: off, Len: 1, Size: size}
	}
	window := c.b[off:]
	if max > 0 && uint64(max) < uint64(len(window)) {
		window = window[:max]
	}
	i := bytes.IndexByte(window, 0)
	if i < 0 {
		return "", &BoundsError{Off: off, Len: uint64(len(window)) + 1, Size: size}
	}
	return string(window[:i]), nil
}

// FixedString reads an n-byte NUL-padded field at off. A field with no NUL
// yields all n bytes.
func (c Cursor) FixedString(off, n uint64) (string, error) {
	b, err := c.Bytes(off, n)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), nil
}
