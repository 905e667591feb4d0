package osmp

import (
	"errors"
	"fmt"
)

var (
	// ErrIO reports an open, stat, read or map failure of the backing file.
	ErrIO = errors.New("osmp: i/o error")
	// ErrFormat reports a bad magic, unsupported version or malformed header.
	ErrFormat = errors.New("osmp: invalid format")
	// ErrBounds reports a declared offset or size outside its region.
	ErrBounds = errors.New("osmp: out of bounds")
	// ErrNotFound reports a name, path or index lookup miss.
	ErrNotFound = errors.New("osmp: not found")
	// ErrAccessDenied reports an attempt to open anything for writing.
	ErrAccessDenied = errors.New("osmp: access denied")
	// ErrClosed reports use of a stream or container after Close.
	ErrClosed = errors.New("osmp: closed")
)

// BoundsError describes a read of n bytes at Off from a region of Size bytes.
type BoundsError struct {
	Off  uint64
	Len  uint64
	Size uint64
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("osmp: read of %d bytes at offset %d exceeds region of %d bytes", e.Len, e.Off, e.Size)
}

func (e *BoundsError) Unwrap() error { return ErrBounds }
