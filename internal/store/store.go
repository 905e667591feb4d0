// Package store wraps a mounted OSMP container for the mount adapter, the
// HTTP view and the CLI. It gives every mount an instance id, logs its
// lifecycle, resolves names across the flat namespace and records stream
// metrics.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/samcharles93/osmp/internal/logger"
	"github.com/samcharles93/osmp/internal/metrics"
	"github.com/samcharles93/osmp/pkg/osmp"
)

// Kind distinguishes the two sources of the flat namespace.
type Kind int

const (
	KindInstrument Kind = iota + 1
	KindMetadata
)

func (k Kind) String() string {
	switch k {
	case KindInstrument:
		return "instrument"
	case KindMetadata:
		return "metadata"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Entry is one name in the flat namespace. Index is the instrument index or
// the metadata entry position.
type Entry struct {
	Kind  Kind
	Name  string
	Size  uint64
	Index int
	Info  osmp.InstrumentInfo
}

// Store is a mounted container.
type Store struct {
	id   uuid.UUID
	path string
	c    *osmp.Container
	log  logger.Logger

	mu      sync.Mutex
	streams map[*Stream]struct{}

	closeOnce sync.Once
	closeErr  error
}

// Open mounts the container at path.
func Open(path string, log logger.Logger) (*Store, error) {
	c, err := osmp.Mount(path)
	if err != nil {
		metrics.MountsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return newStore(path, c, log), nil
}

// OpenMemory mounts a container held in b. b must outlive the store.
func OpenMemory(b []byte, log logger.Logger) (*Store, error) {
	c, err := osmp.MountMemory(b)
	if err != nil {
		metrics.MountsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	return newStore("", c, log), nil
}

func newStore(path string, c *osmp.Container, log logger.Logger) *Store {
	if log == nil {
		log = logger.Discard()
	}
	s := &Store{id: uuid.New(), path: path, c: c}
	s.log = log.With("mount_id", s.id.String())

	metrics.MountsTotal.WithLabelValues("ok").Inc()
	metrics.ContainersMounted.Inc()

	stats := c.Stats()
	meta := c.Metadata()
	s.log.Info("container mounted",
		"path", path,
		"instruments", stats.NumInstruments,
		"instfs_bytes", stats.TotalSize,
		"metadata_files", meta.Count(),
		"mapped", c.Mapped(),
	)
	if meta.Truncated() {
		s.log.Warn("metadata archive truncated; trailing entries ignored", "path", path)
	}
	return s
}

// ID returns the instance id assigned at mount.
func (s *Store) ID() uuid.UUID { return s.id }

// Path returns the container path, empty for memory mounts.
func (s *Store) Path() string { return s.path }

// Container returns the underlying container.
func (s *Store) Container() *osmp.Container { return s.c }

// Logger returns the store logger, tagged with the mount id.
func (s *Store) Logger() logger.Logger { return s.log }

// Close unmounts the container. Streams still open are closed with it and
// their counters recorded.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closeErr = s.c.Close()
		open := s.streams
		s.streams = nil
		s.mu.Unlock()

		for st := range open {
			_ = st.finish()
		}
		metrics.ContainersMounted.Dec()
		if len(open) > 0 {
			s.log.Warn("closed container with open streams", "streams", len(open))
		}
		if s.closeErr != nil {
			s.log.Error("unmount failed", "error", s.closeErr)
			return
		}
		s.log.Info("container unmounted", "path", s.path)
	})
	return s.closeErr
}

// live returns ErrClosed once the container is closed.
func (s *Store) live() error {
	if s.c.Closed() {
		return osmp.ErrClosed
	}
	return nil
}

// miss reports a failed lookup, preferring ErrClosed when the container was
// closed underneath it.
func (s *Store) miss(err error) error {
	if s.c.Closed() {
		return osmp.ErrClosed
	}
	return err
}

// Instruments lists every instrument in table order.
func (s *Store) Instruments() ([]Entry, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	t := s.c.Instruments()
	out := make([]Entry, 0, t.Count())
	for i := range t.All() {
		e, err := instrumentEntry(t, i)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// MetaFiles lists every metadata file in archive order.
func (s *Store) MetaFiles() ([]Entry, error) {
	entries, err := s.c.Metadata().Entries()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(entries))
	for i, m := range entries {
		out = append(out, Entry{Kind: KindMetadata, Name: m.Path, Size: m.Size, Index: i})
	}
	return out, nil
}

// List returns the flat namespace: instruments first, then metadata files.
func (s *Store) List() ([]Entry, error) {
	inst, err := s.Instruments()
	if err != nil {
		return nil, err
	}
	meta, err := s.MetaFiles()
	if err != nil {
		return nil, err
	}
	return append(inst, meta...), nil
}

// Instrument resolves an instrument by name.
func (s *Store) Instrument(name string) (Entry, error) {
	if err := s.live(); err != nil {
		return Entry{}, err
	}
	t := s.c.Instruments()
	i, ok := t.Find(name)
	if !ok {
		return Entry{}, fmt.Errorf("instrument %q: %w", name, osmp.ErrNotFound)
	}
	return instrumentEntry(t, i)
}

// MetaFile resolves a metadata file by path.
func (s *Store) MetaFile(path string) (Entry, error) {
	if err := s.live(); err != nil {
		return Entry{}, err
	}
	m, ok := s.c.Metadata().Lookup(path)
	if !ok {
		return Entry{}, s.miss(fmt.Errorf("metadata file %q: %w", path, osmp.ErrNotFound))
	}
	return Entry{Kind: KindMetadata, Name: m.Path, Size: m.Size, Index: -1}, nil
}

// Lookup resolves name against the instrument table, then the metadata
// archive. The first match wins.
func (s *Store) Lookup(name string) (Entry, error) {
	e, err := s.Instrument(name)
	if !errors.Is(err, osmp.ErrNotFound) {
		return e, err
	}
	e, err = s.MetaFile(name)
	if errors.Is(err, osmp.ErrNotFound) {
		return Entry{}, fmt.Errorf("%q: %w", name, osmp.ErrNotFound)
	}
	return e, err
}

// ReadAt copies the bytes of e starting at off into dst. Instruments are read
// by index; metadata files are resolved again by path on every call.
func (s *Store) ReadAt(e Entry, dst []byte, off uint64) (int, error) {
	switch e.Kind {
	case KindInstrument:
		return s.c.Instruments().Read(e.Index, dst, off)
	case KindMetadata:
		n, err := s.c.Metadata().ReadFile(e.Name, dst, off)
		if errors.Is(err, osmp.ErrNotFound) {
			err = s.miss(err)
		}
		return n, err
	default:
		return 0, fmt.Errorf("read %q: %w", e.Name, osmp.ErrNotFound)
	}
}

// ReadMeta returns a copy of the metadata file at path.
func (s *Store) ReadMeta(path string) ([]byte, error) {
	e, err := s.MetaFile(path)
	if err != nil {
		return nil, err
	}
	out := make([]byte, e.Size)
	n, err := s.ReadAt(e, out, 0)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func instrumentEntry(t *osmp.InstrumentTable, i int) (Entry, error) {
	name, err := t.Name(i)
	if err != nil {
		return Entry{}, err
	}
	raw, err := t.Entry(i)
	if err != nil {
		return Entry{}, err
	}
	info, err := t.Info(i)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Kind: KindInstrument, Name: name, Size: raw.DataSize, Index: i, Info: info}, nil
}
