package osmp

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
)

// Container is a mounted OSMP file. It owns the partition mappings (or, for
// MountMemory, borrows the caller's bytes) and every Stream opened from it.
// Close releases the mappings exactly once, after force-closing any streams
// that are still open.
type Container struct {
	mu      sync.RWMutex
	closed  bool
	streams map[*Stream]struct{}

	header   MasterHeader
	fileSize uint64
	meta     *region
	inst     *region

	table   *InstrumentTable
	archive *Archive
}

// region is one partition. data is the logical partition view; when the
// partition is mapped, raw is the page-aligned mapping and data starts delta
// bytes into it.
type region struct {
	raw     []byte
	data    []byte
	delta   uint64
	mmapped bool
}

// AlignRange computes the page-aligned mapping that covers [off, off+size):
// the mapping starts at aligned, spans length bytes and the partition begins
// delta bytes into it.
func AlignRange(off, size, page uint64) (aligned, length, delta uint64) {
	if page == 0 {
		return off, size, 0
	}
	delta = off % page
	return off - delta, size + delta, delta
}

// PageSize returns the page size partition mappings are aligned to.
func PageSize() int {
	return pageSize()
}

// Mount opens path, validates the master header and maps both partitions.
// Each non-empty partition gets its own page-aligned mapping; callers only
// ever see the logical partition bytes. Where mmap is unavailable the
// partitions are read into memory instead.
func Mount(path string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}
	size64 := st.Size()
	if size64 < 0 || uint64(size64) > math.MaxInt {
		// cannot index this file safely as []byte on this architecture.
		return nil, fmt.Errorf("%w: %s: unsupported file size %d", ErrIO, path, size64)
	}

	var raw [masterHeaderSize]byte
	n, err := f.ReadAt(raw[:], 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: read header: %w", ErrIO, err)
	}
	hdr, err := parseMasterHeader(raw[:n], uint64(size64))
	if err != nil {
		return nil, err
	}

	c := &Container{header: hdr, fileSize: uint64(size64)}
	page := uint64(pageSize())
	if c.meta, err = mapRegion(f, hdr.MetaOffset, hdr.MetaSize, page); err != nil {
		return nil, fmt.Errorf("%w: map metadata partition: %w", ErrIO, err)
	}
	if c.inst, err = mapRegion(f, hdr.InstFSOffset, hdr.InstFSSize, page); err != nil {
		_ = c.meta.release()
		return nil, fmt.Errorf("%w: map instfs partition: %w", ErrIO, err)
	}
	if err := c.parse(); err != nil {
		_ = c.release()
		return nil, err
	}
	return c, nil
}

// MountMemory mounts a container held in b. The container borrows b: the
// caller must keep it alive and unmodified until Close.
func MountMemory(b []byte) (*Container, error) {
	hdr, err := parseMasterHeader(b, uint64(len(b)))
	if err != nil {
		return nil, err
	}
	whole := NewCursor(b)
	meta, err := whole.Bytes(hdr.MetaOffset, hdr.MetaSize)
	if err != nil {
		return nil, err
	}
	inst, err := whole.Bytes(hdr.InstFSOffset, hdr.InstFSSize)
	if err != nil {
		return nil, err
	}
	c := &Container{
		header:   hdr,
		fileSize: uint64(len(b)),
		meta:     &region{data: meta},
		inst:     &region{data: inst},
	}
	if err := c.parse(); err != nil {
		return nil, err
	}
	return c, nil
}

func parseMasterHeader(b []byte, fileSize uint64) (MasterHeader, error) {
	hdr, err := decodeMasterHeader(NewCursor(b))
	if !hdr.Valid() {
		return hdr, fmt.Errorf("%w: bad container magic %q", ErrFormat, hdr.Magic[:])
	}
	if err != nil {
		return hdr, err
	}
	if err := hdr.checkRanges(fileSize); err != nil {
		return hdr, err
	}
	return hdr, nil
}

func (c *Container) parse() error {
	table, err := OpenInstrumentTable(c.inst.data)
	if err != nil {
		return err
	}
	table.owner = c
	c.table = table
	c.archive = OpenArchive(c.meta.data)
	c.archive.owner = c
	return nil
}

// acquire takes the read lock for callers about to touch partition bytes.
// A nil container is a standalone table or archive and is always open.
func (c *Container) acquire() error {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrClosed
	}
	return nil
}

func (c *Container) done() {
	if c != nil {
		c.mu.RUnlock()
	}
}

func (c *Container) release() error {
	var errs []error
	for _, r := range []*region{c.meta, c.inst} {
		if err := r.release(); err != nil {
			errs = append(errs, err)
		}
	}
	c.meta, c.inst = nil, nil
	return errors.Join(errs...)
}

// Close closes every open stream and releases the mappings. It is safe to
// call more than once.
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	for s := range c.streams {
		s.closed = true
	}
	c.streams = nil
	return c.release()
}

// Closed reports whether Close has been called.
func (c *Container) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Header returns a copy of the master header.
func (c *Container) Header() MasterHeader {
	return c.header
}

// FileSize returns the size of the container in bytes.
func (c *Container) FileSize() uint64 {
	return c.fileSize
}

// Instruments returns the instrument table. After Close its Data and Read
// return ErrClosed.
func (c *Container) Instruments() *InstrumentTable {
	return c.table
}

// Metadata returns the metadata archive. After Close it behaves as empty.
func (c *Container) Metadata() *Archive {
	return c.archive
}

// Mapped reports whether the instrument partition is backed by a mapping.
func (c *Container) Mapped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inst != nil && c.inst.mmapped
}

// PartitionStats summarises the InstFS partition.
type PartitionStats struct {
	TotalSize      uint64
	NumInstruments int
}

// Stats returns the InstFS partition size and instrument count.
func (c *Container) Stats() PartitionStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.table == nil {
		return PartitionStats{}
	}
	return PartitionStats{TotalSize: c.table.Size(), NumInstruments: c.table.Count()}
}

// OpenStream opens a stream over instrument index. The mode hint is applied
// best-effort; failing to apply it does not fail the open.
func (c *Container) OpenStream(index int, mode AccessMode) (*Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	entry, err := c.table.Entry(index)
	if err != nil {
		return nil, err
	}
	data, err := c.table.data(index)
	if err != nil {
		return nil, err
	}
	name, _ := c.table.Name(index)

	s := &Stream{
		owner: c,
		index: index,
		name:  name,
		entry: entry,
		data:  data,
		mode:  mode,
	}
	_ = c.inst.advise(entry.DataOffset, entry.DataSize, mode.hint())

	if c.streams == nil {
		c.streams = make(map[*Stream]struct{})
	}
	c.streams[s] = struct{}{}
	return s, nil
}

// OpenStreamByName opens a stream over the first instrument called name.
func (c *Container) OpenStreamByName(name string, mode AccessMode) (*Stream, error) {
	if c.Closed() {
		return nil, ErrClosed
	}
	idx, ok := c.table.Find(name)
	if !ok {
		return nil, fmt.Errorf("instrument %q: %w", name, ErrNotFound)
	}
	return c.OpenStream(idx, mode)
}

func (c *Container) closeStream(s *Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	delete(c.streams, s)
	if c.inst != nil {
		_ = c.inst.advise(s.entry.DataOffset, s.entry.DataSize, HintNormal)
	}
}

// OpenStreams returns the number of streams not yet closed.
func (c *Container) OpenStreams() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.streams)
}

func readRegion(r io.ReaderAt, off, size uint64) ([]byte, error) {
	out := make([]byte, size)
	var n uint64
	for n < size {
		m, err := r.ReadAt(out[n:], int64(off+n))
		n += uint64(m)
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) && n == size {
			break
		}
		return nil, err
	}
	return out, nil
}

func (r *region) advise(off, n uint64, h Hint) error {
	if r == nil || !r.mmapped {
		return errors.ErrUnsupported
	}
	if n == 0 || off >= uint64(len(r.data)) {
		return nil
	}
	n = min(n, uint64(len(r.data))-off)
	return adviseMapping(r.raw, r.delta+off, n, h)
}

func (r *region) release() error {
	if r == nil {
		return nil
	}
	var err error
	if r.mmapped {
		err = unmap(r.raw)
	}
	r.raw, r.data, r.mmapped = nil, nil, false
	return err
}
