package osmp

import (
	"fmt"
	"iter"
	"math/bits"
)

// InstrumentInfo is the sample description stored with an instrument.
type InstrumentInfo struct {
	Format     uint32
	SampleRate uint32
	Channels   uint16
	BitDepth   uint16
}

// InstrumentTable is a parsed view over an InstFS partition. Entries and
// names are decoded and validated once at open; instrument data is returned
// as slices of the partition bytes, which usually reference a mapping.
//
// A table obtained from a Container keeps answering name and entry queries
// after Close, but Data and Read return ErrClosed.
type InstrumentTable struct {
	owner   *Container
	part    Cursor
	hdr     InstFSHeader
	entries []InstrumentEntry
	names   []string
}

// OpenInstrumentTable validates partition and returns a table over it. An
// empty partition yields an empty table. Any entry whose name or data range
// falls outside the partition fails the whole open.
func OpenInstrumentTable(partition []byte) (*InstrumentTable, error) {
	if len(partition) == 0 {
		return &InstrumentTable{}, nil
	}
	c := NewCursor(partition)
	hdr, err := decodeInstFSHeader(c)
	if err != nil {
		return nil, err
	}
	if string(hdr.Magic[:len(MagicInstFS)]) != MagicInstFS {
		return nil, fmt.Errorf("%w: bad instfs magic %q", ErrFormat, hdr.Magic[:len(MagicInstFS)])
	}
	if hdr.Version != InstFSVersion {
		return nil, fmt.Errorf("%w: unsupported instfs version %#x", ErrFormat, hdr.Version)
	}

	tableSize := uint64(hdr.NumInstruments) * instrumentEntrySize
	tableEnd, carry := bits.Add64(hdr.TableOffset, tableSize, 0)
	if carry != 0 || tableEnd > c.Len() {
		return nil, fmt.Errorf("%w: instrument table [%d,+%d) exceeds partition of %d bytes",
			ErrFormat, hdr.TableOffset, tableSize, c.Len())
	}

	t := &InstrumentTable{
		part:    c,
		hdr:     hdr,
		entries: make([]InstrumentEntry, hdr.NumInstruments),
		names:   make([]string, hdr.NumInstruments),
	}
	for i := range t.entries {
		rec, err := c.Sub(hdr.TableOffset+uint64(i)*instrumentEntrySize, instrumentEntrySize)
		if err != nil {
			return nil, err
		}
		e, err := decodeInstrumentEntry(rec)
		if err != nil {
			return nil, err
		}
		name, err := c.CString(e.NameOffset, 0)
		if err != nil {
			return nil, fmt.Errorf("instrument %d name: %w", i, err)
		}
		if _, err := c.Bytes(e.DataOffset, e.DataSize); err != nil {
			return nil, fmt.Errorf("instrument %d (%s) data: %w", i, name, err)
		}
		t.entries[i] = e
		t.names[i] = name
	}
	return t, nil
}

// Header returns the decoded partition header.
func (t *InstrumentTable) Header() InstFSHeader {
	return t.hdr
}

// Count returns the number of instruments.
func (t *InstrumentTable) Count() int {
	return len(t.entries)
}

// Size returns the partition size in bytes.
func (t *InstrumentTable) Size() uint64 {
	return t.part.Len()
}

func (t *InstrumentTable) check(i int) error {
	if i < 0 || i >= len(t.entries) {
		return fmt.Errorf("instrument index %d of %d: %w", i, len(t.entries), ErrBounds)
	}
	return nil
}

// Entry returns the raw table record of instrument i.
func (t *InstrumentTable) Entry(i int) (InstrumentEntry, error) {
	if err := t.check(i); err != nil {
		return InstrumentEntry{}, err
	}
	return t.entries[i], nil
}

// Name returns the name of instrument i.
func (t *InstrumentTable) Name(i int) (string, error) {
	if err := t.check(i); err != nil {
		return "", err
	}
	return t.names[i], nil
}

// Find returns the index of the first instrument called name.
func (t *InstrumentTable) Find(name string) (int, bool) {
	for i, n := range t.names {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

// Data returns a zero-copy slice over instrument i's bytes. The slice is
// only valid until the owning Container is closed.
func (t *InstrumentTable) Data(i int) ([]byte, error) {
	if err := t.owner.acquire(); err != nil {
		return nil, err
	}
	defer t.owner.done()
	return t.data(i)
}

// data is Data without the lifetime check; the caller holds the owner lock.
func (t *InstrumentTable) data(i int) ([]byte, error) {
	if err := t.check(i); err != nil {
		return nil, err
	}
	e := t.entries[i]
	return t.part.Bytes(e.DataOffset, e.DataSize)
}

// Info returns the sample description of instrument i.
func (t *InstrumentTable) Info(i int) (InstrumentInfo, error) {
	if err := t.check(i); err != nil {
		return InstrumentInfo{}, err
	}
	e := t.entries[i]
	return InstrumentInfo{
		Format:     e.Format,
		SampleRate: e.SampleRate,
		Channels:   e.Channels,
		BitDepth:   e.BitDepth,
	}, nil
}

// Read copies instrument i's bytes starting at off into dst and returns the
// number of bytes copied. Reading at or past the end copies nothing.
func (t *InstrumentTable) Read(i int, dst []byte, off uint64) (int, error) {
	if err := t.owner.acquire(); err != nil {
		return 0, err
	}
	defer t.owner.done()

	data, err := t.data(i)
	if err != nil {
		return 0, err
	}
	if off >= uint64(len(data)) {
		return 0, nil
	}
	return copy(dst, data[off:]), nil
}

// All yields every instrument index and name in table order.
func (t *InstrumentTable) All() iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		for i, n := range t.names {
			if !yield(i, n) {
				return
			}
		}
	}
}
