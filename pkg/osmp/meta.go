package osmp

import (
	"fmt"
	"iter"
)

// MetaEntry describes one file of the metadata archive. Offset is the
// partition-relative position of the payload.
type MetaEntry struct {
	Path   string
	Size   uint64
	Offset uint64
}

// Archive reads the metadata partition: a bare sequence of 264-byte headers
// each followed by its payload. There is no index, so every lookup walks the
// sequence from the start.
//
// A trailing region too short for a header, or a header claiming more payload
// than remains, ends the walk. That entry is not exposed and Truncated
// reports true.
//
// An archive obtained from a Container behaves as empty once the container
// is closed; Entries, Entry and ReadFile return ErrClosed.
type Archive struct {
	owner *Container
	part  Cursor
}

// OpenArchive returns an archive over partition. It never fails; an empty
// partition is an empty archive.
func OpenArchive(partition []byte) *Archive {
	return &Archive{part: NewCursor(partition)}
}

// Size returns the partition size in bytes.
func (a *Archive) Size() uint64 {
	if a == nil {
		return 0
	}
	return a.part.Len()
}

// walk visits entries in order until fn returns false, holding the owner
// open for the duration. fn must not call back into the archive. walk
// reports whether the walk ended on a malformed trailing entry.
func (a *Archive) walk(fn func(i int, e MetaEntry) bool) (truncated bool, err error) {
	if a == nil {
		return false, nil
	}
	if err := a.owner.acquire(); err != nil {
		return false, err
	}
	defer a.owner.done()
	return a.scan(fn), nil
}

// scan is walk without the lifetime check.
func (a *Archive) scan(fn func(i int, e MetaEntry) bool) (truncated bool) {
	var off uint64
	size := a.part.Len()
	for i := 0; off < size; i++ {
		hdr, err := a.part.Sub(off, metaHeaderSize)
		if err != nil {
			return true
		}
		path, err := hdr.FixedString(0, MaxPathLen)
		if err != nil {
			return true
		}
		n, err := hdr.Uint64(MaxPathLen)
		if err != nil {
			return true
		}
		payload := off + metaHeaderSize
		if n > size-payload {
			return true
		}
		if !fn(i, MetaEntry{Path: path, Size: n, Offset: payload}) {
			return false
		}
		off = payload + n
	}
	return false
}

// Entries returns every well-formed entry in archive order.
func (a *Archive) Entries() ([]MetaEntry, error) {
	var out []MetaEntry
	_, err := a.walk(func(_ int, e MetaEntry) bool {
		out = append(out, e)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// All yields every well-formed entry in archive order. Nothing is yielded
// once the owning container is closed.
func (a *Archive) All() iter.Seq2[int, MetaEntry] {
	return func(yield func(int, MetaEntry) bool) {
		entries, _ := a.Entries()
		for i, e := range entries {
			if !yield(i, e) {
				return
			}
		}
	}
}

// Count returns the number of well-formed entries.
func (a *Archive) Count() int {
	n := 0
	_, _ = a.walk(func(int, MetaEntry) bool {
		n++
		return true
	})
	return n
}

// Truncated reports whether enumeration stops before the partition end
// because of a short header or an oversized payload.
func (a *Archive) Truncated() bool {
	truncated, _ := a.walk(func(int, MetaEntry) bool { return true })
	return truncated
}

// Entry returns the index-th entry.
func (a *Archive) Entry(index int) (MetaEntry, error) {
	var (
		found MetaEntry
		ok    bool
	)
	_, err := a.walk(func(i int, e MetaEntry) bool {
		if i == index {
			found, ok = e, true
			return false
		}
		return true
	})
	if err != nil {
		return MetaEntry{}, err
	}
	if !ok {
		return MetaEntry{}, fmt.Errorf("metadata entry %d: %w", index, ErrNotFound)
	}
	return found, nil
}

// Lookup returns the first entry whose path equals path.
func (a *Archive) Lookup(path string) (MetaEntry, bool) {
	var (
		found MetaEntry
		ok    bool
	)
	_, _ = a.walk(func(_ int, e MetaEntry) bool {
		if e.Path == path {
			found, ok = e, true
			return false
		}
		return true
	})
	return found, ok
}

// Find returns a zero-copy slice over the payload of the file at path. The
// slice is only valid until the owning Container is closed.
func (a *Archive) Find(path string) ([]byte, bool) {
	if a == nil || a.owner.acquire() != nil {
		return nil, false
	}
	defer a.owner.done()
	return a.find(path)
}

func (a *Archive) find(path string) ([]byte, bool) {
	var (
		found MetaEntry
		ok    bool
	)
	a.scan(func(_ int, e MetaEntry) bool {
		if e.Path == path {
			found, ok = e, true
			return false
		}
		return true
	})
	if !ok {
		return nil, false
	}
	b, err := a.part.Bytes(found.Offset, found.Size)
	if err != nil {
		return nil, false
	}
	return b, true
}

// ReadFile copies the payload of path starting at off into dst. Reading at
// or past the end copies nothing.
func (a *Archive) ReadFile(path string, dst []byte, off uint64) (int, error) {
	if a == nil {
		return 0, fmt.Errorf("metadata file %q: %w", path, ErrNotFound)
	}
	if err := a.owner.acquire(); err != nil {
		return 0, err
	}
	defer a.owner.done()

	b, ok := a.find(path)
	if !ok {
		return 0, fmt.Errorf("metadata file %q: %w", path, ErrNotFound)
	}
	if off >= uint64(len(b)) {
		return 0, nil
	}
	return copy(dst, b[off:]), nil
}
