// Package vfs projects a mounted container onto a flat, read-only POSIX
// directory: every instrument and every metadata file appears as a regular
// file in the root directory. FS holds all adapter state; fuse.go binds it
// to the kernel through go-fuse.
package vfs

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"strings"
	"sync"
	"syscall"

	"github.com/samcharles93/osmp/internal/logger"
	"github.com/samcharles93/osmp/internal/metrics"
	"github.com/samcharles93/osmp/internal/store"
	"github.com/samcharles93/osmp/pkg/osmp"
)

// State is the mount state of an FS.
type State int

const (
	StateUnmounted State = iota
	StateMounted
)

func (s State) String() string {
	if s == StateMounted {
		return "mounted"
	}
	return "unmounted"
}

var (
	// ErrNotMounted is returned by every operation outside Init/Destroy.
	ErrNotMounted = errors.New("vfs: not mounted")
	// ErrBadHandle is returned for an unknown or released file handle.
	ErrBadHandle = errors.New("vfs: bad file handle")
)

const (
	dirMode  = iofs.ModeDir | 0o555
	fileMode = iofs.FileMode(0o444)
)

// Attr describes a file or the root directory.
type Attr struct {
	Mode  iofs.FileMode
	Size  uint64
	Nlink uint32
}

// DirEntry is one name returned by ReadDir.
type DirEntry struct {
	Name string
	Mode iofs.FileMode
}

type handle struct {
	path  string
	entry store.Entry
}

// FS is the filesystem adapter for one container.
type FS struct {
	path string
	log  logger.Logger

	mu      sync.Mutex
	state   State
	st      *store.Store
	handles map[uint64]*handle
	nextFH  uint64
}

// New returns an unmounted adapter for the container at path.
func New(path string, log logger.Logger) *FS {
	if log == nil {
		log = logger.Discard()
	}
	return &FS{path: path, log: log.With("component", "vfs")}
}

// NewFromStore returns an adapter already mounted over st. Destroy closes st.
func NewFromStore(st *store.Store, log logger.Logger) *FS {
	f := New(st.Path(), log)
	f.st = st
	f.state = StateMounted
	f.handles = make(map[uint64]*handle)
	return f
}

// State reports the mount state.
func (f *FS) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Init mounts the container.
func (f *FS) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == StateMounted {
		return nil
	}
	st, err := store.Open(f.path, f.log)
	if err != nil {
		f.log.Error("mount failed", "path", f.path, "error", err)
		return err
	}
	f.st = st
	f.state = StateMounted
	f.handles = make(map[uint64]*handle)
	return nil
}

// Destroy drops every open handle and unmounts the container.
func (f *FS) Destroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == StateUnmounted {
		return nil
	}
	if n := len(f.handles); n > 0 {
		f.log.Debug("dropping open handles", "handles", n)
	}
	f.handles = nil
	err := f.st.Close()
	f.st = nil
	f.state = StateUnmounted
	return err
}

func (f *FS) mounted() (*store.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateMounted {
		return nil, ErrNotMounted
	}
	return f.st, nil
}

// splitPath maps "/name" to name. The root maps to "" and any nested path
// is not found, since the namespace has no subdirectories.
func splitPath(path string) (string, error) {
	name := strings.TrimPrefix(path, "/")
	if strings.Contains(name, "/") {
		return "", fmt.Errorf("%q: %w", path, osmp.ErrNotFound)
	}
	return name, nil
}

// Getattr returns the attributes of path.
func (f *FS) Getattr(path string) (attr Attr, err error) {
	defer func() { observe("getattr", err) }()

	st, err := f.mounted()
	if err != nil {
		return Attr{}, err
	}
	name, err := splitPath(path)
	if err != nil {
		return Attr{}, err
	}
	if name == "" {
		return Attr{Mode: dirMode, Nlink: 2}, nil
	}
	e, err := st.Lookup(name)
	if err != nil {
		return Attr{}, err
	}
	return Attr{Mode: fileMode, Size: e.Size, Nlink: 1}, nil
}

// ReadDir lists the root directory: ".", "..", every instrument, then every
// metadata file. Names shared by an instrument and a metadata file are
// listed twice, matching the tables; lookups resolve to the instrument.
func (f *FS) ReadDir(path string) (out []DirEntry, err error) {
	defer func() { observe("readdir", err) }()

	st, err := f.mounted()
	if err != nil {
		return nil, err
	}
	name, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if name != "" {
		if _, err := st.Lookup(name); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("readdir %q: %w", path, syscall.ENOTDIR)
	}
	entries, err := st.List()
	if err != nil {
		return nil, err
	}
	out = make([]DirEntry, 0, len(entries)+2)
	out = append(out, DirEntry{Name: ".", Mode: dirMode}, DirEntry{Name: "..", Mode: dirMode})
	for _, e := range entries {
		if !listable(e.Name) {
			f.log.Debug("readdir: skipping unaddressable name", "name", e.Name, "kind", e.Kind.String())
			continue
		}
		out = append(out, DirEntry{Name: e.Name, Mode: fileMode})
	}
	return out, nil
}

// listable reports whether name can appear as a directory entry.
func listable(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.Contains(name, "/")
}

// Open opens path for reading and returns a file handle. Any flag asking for
// write access fails with osmp.ErrAccessDenied.
func (f *FS) Open(path string, flags int) (fh uint64, err error) {
	defer func() { observe("open", err) }()

	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC|syscall.O_APPEND|syscall.O_CREAT) != 0 {
		return 0, fmt.Errorf("open %q for writing: %w", path, osmp.ErrAccessDenied)
	}
	st, err := f.mounted()
	if err != nil {
		return 0, err
	}
	name, err := splitPath(path)
	if err != nil {
		return 0, err
	}
	if name == "" {
		return 0, fmt.Errorf("open %q: %w", path, syscall.EISDIR)
	}
	e, err := st.Lookup(name)
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateMounted {
		return 0, ErrNotMounted
	}
	f.nextFH++
	f.handles[f.nextFH] = &handle{path: path, entry: e}
	return f.nextFH, nil
}

// Read copies the bytes of an open file at off into dst. Metadata files are
// resolved by path on every read; instruments are read by table index.
func (f *FS) Read(fh uint64, dst []byte, off int64) (n int, err error) {
	defer func() {
		observe("read", err)
		metrics.FSBytesRead.Add(float64(n))
	}()

	if off < 0 {
		return 0, fmt.Errorf("read at %d: %w", off, syscall.EINVAL)
	}
	st, h, err := f.handle(fh)
	if err != nil {
		return 0, err
	}
	return st.ReadAt(h.entry, dst, uint64(off))
}

// ReadPath reads path without an open handle.
func (f *FS) ReadPath(path string, dst []byte, off int64) (n int, err error) {
	defer func() {
		observe("read", err)
		metrics.FSBytesRead.Add(float64(n))
	}()

	if off < 0 {
		return 0, fmt.Errorf("read at %d: %w", off, syscall.EINVAL)
	}
	st, err := f.mounted()
	if err != nil {
		return 0, err
	}
	name, err := splitPath(path)
	if err != nil {
		return 0, err
	}
	e, err := st.Lookup(name)
	if err != nil {
		return 0, err
	}
	return st.ReadAt(e, dst, uint64(off))
}

// Release closes a file handle.
func (f *FS) Release(fh uint64) (err error) {
	defer func() { observe("release", err) }()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateMounted {
		return ErrNotMounted
	}
	if _, ok := f.handles[fh]; !ok {
		return ErrBadHandle
	}
	delete(f.handles, fh)
	return nil
}

// OpenHandles returns the number of handles not yet released.
func (f *FS) OpenHandles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

func (f *FS) handle(fh uint64) (*store.Store, *handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateMounted {
		return nil, nil, ErrNotMounted
	}
	h, ok := f.handles[fh]
	if !ok {
		return nil, nil, ErrBadHandle
	}
	return f.st, h, nil
}

// Errno maps an adapter error to the errno reported to the kernel.
func Errno(err error) syscall.Errno {
	var errno syscall.Errno
	switch {
	case err == nil:
		return 0
	case errors.Is(err, osmp.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, osmp.ErrAccessDenied):
		return syscall.EACCES
	case errors.Is(err, ErrBadHandle):
		return syscall.EBADF
	case errors.As(err, &errno):
		return errno
	default:
		return syscall.EIO
	}
}

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = errnoName(Errno(err))
	}
	metrics.RecordFS(op, result)
}

func errnoName(e syscall.Errno) string {
	switch e {
	case syscall.ENOENT:
		return "enoent"
	case syscall.EACCES:
		return "eacces"
	case syscall.EBADF:
		return "ebadf"
	case syscall.EISDIR:
		return "eisdir"
	case syscall.ENOTDIR:
		return "enotdir"
	case syscall.EINVAL:
		return "einval"
	default:
		return "eio"
	}
}
