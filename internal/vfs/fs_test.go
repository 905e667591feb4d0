package vfs

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/samcharles93/osmp/internal/store"
	"github.com/samcharles93/osmp/pkg/osmp"
)

func writeTestContainer(t *testing.T) string {
	t.Helper()
	w := osmp.NewWriter()
	info := osmp.InstrumentInfo{Format: 1, SampleRate: 44100, Channels: 2, BitDepth: 16}
	if err := w.AddInstrument("kick", info, []byte("ABC")); err != nil {
		t.Fatalf("add instrument: %v", err)
	}
	if err := w.AddInstrument("snare", info, []byte("DEFGH")); err != nil {
		t.Fatalf("add instrument: %v", err)
	}
	if err := w.AddMetadata("kit.json", []byte(`{"kit":"acoustic"}`)); err != nil {
		t.Fatalf("add metadata: %v", err)
	}
	if err := w.AddMetadata("snare", []byte("shadowed")); err != nil {
		t.Fatalf("add metadata: %v", err)
	}
	b, err := w.Bytes()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "kit.osmp")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func mountedFS(t *testing.T) *FS {
	t.Helper()
	f := New(writeTestContainer(t), nil)
	if err := f.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = f.Destroy() })
	return f
}

func TestLifecycle(t *testing.T) {
	t.Parallel()

	f := New(writeTestContainer(t), nil)
	if f.State() != StateUnmounted {
		t.Fatalf("new FS must start unmounted")
	}
	if _, err := f.Getattr("/kick"); !errors.Is(err, ErrNotMounted) {
		t.Fatalf("getattr before init: got %v want ErrNotMounted", err)
	}
	if err := f.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := f.Init(); err != nil {
		t.Fatalf("second init: %v", err)
	}
	if f.State() != StateMounted {
		t.Fatalf("state after init: %v", f.State())
	}
	fh, err := f.Open("/kick", os.O_RDONLY)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := f.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if err := f.Destroy(); err != nil {
		t.Fatalf("second destroy: %v", err)
	}
	if _, err := f.Read(fh, make([]byte, 1), 0); !errors.Is(err, ErrNotMounted) {
		t.Fatalf("read after destroy: got %v want ErrNotMounted", err)
	}
	if Errno(ErrNotMounted) != syscall.EIO {
		t.Fatalf("not mounted must surface as EIO")
	}
}

func TestInitMissingContainer(t *testing.T) {
	t.Parallel()

	f := New(filepath.Join(t.TempDir(), "missing.osmp"), nil)
	err := f.Init()
	if !errors.Is(err, osmp.ErrIO) {
		t.Fatalf("init: got %v want ErrIO", err)
	}
	if f.State() != StateUnmounted {
		t.Fatalf("failed init must leave the FS unmounted")
	}
}

func TestGetattr(t *testing.T) {
	t.Parallel()
	f := mountedFS(t)

	root, err := f.Getattr("/")
	if err != nil || !root.Mode.IsDir() || root.Mode.Perm() != 0o555 || root.Nlink != 2 {
		t.Fatalf("root: got %+v, %v", root, err)
	}

	tests := []struct {
		path string
		size uint64
		err  error
	}{
		{path: "/kick", size: 3},
		{path: "/snare", size: 5},
		{path: "/kit.json", size: uint64(len(`{"kit":"acoustic"}`))},
		{path: "/missing", err: osmp.ErrNotFound},
		{path: "/sub/kick", err: osmp.ErrNotFound},
	}
	for _, tt := range tests {
		attr, err := f.Getattr(tt.path)
		if tt.err != nil {
			if !errors.Is(err, tt.err) || Errno(err) != syscall.ENOENT {
				t.Fatalf("getattr %s: got %v want %v", tt.path, err, tt.err)
			}
			continue
		}
		if err != nil || attr.Size != tt.size || attr.Mode != iofs.FileMode(0o444) || attr.Nlink != 1 {
			t.Fatalf("getattr %s: got %+v, %v", tt.path, attr, err)
		}
	}
}

func TestReadDir(t *testing.T) {
	t.Parallel()
	f := mountedFS(t)

	entries, err := f.ReadDir("/")
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	want := []string{".", "..", "kick", "snare", "kit.json", "snare"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Fatalf("readdir: got %v want %v", names, want)
	}
	if !entries[0].Mode.IsDir() || entries[2].Mode.IsDir() {
		t.Fatalf("readdir modes: %+v", entries)
	}

	if _, err := f.ReadDir("/kick"); Errno(err) != syscall.ENOTDIR {
		t.Fatalf("readdir on a file: got %v want ENOTDIR", err)
	}
	if _, err := f.ReadDir("/missing"); Errno(err) != syscall.ENOENT {
		t.Fatalf("readdir on a missing name: got %v want ENOENT", err)
	}
}

func TestReadDirSkipsUnaddressableNames(t *testing.T) {
	t.Parallel()

	w := osmp.NewWriter()
	if err := w.AddMetadata("x", []byte("blank")); err != nil {
		t.Fatalf("add metadata: %v", err)
	}
	if err := w.AddMetadata("dir/notes.txt", []byte("nested")); err != nil {
		t.Fatalf("add metadata: %v", err)
	}
	if err := w.AddMetadata("kit.json", []byte("{}")); err != nil {
		t.Fatalf("add metadata: %v", err)
	}
	b, err := w.Bytes()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// Blank out the first path: metadata starts right after the 80-byte
	// master header.
	b[80] = 0

	st, err := store.OpenMemory(b, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f := NewFromStore(st, nil)
	t.Cleanup(func() { _ = f.Destroy() })

	entries, err := f.ReadDir("/")
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	want := []string{".", "..", "kit.json"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Fatalf("readdir: got %q want %q", names, want)
	}
}

func TestOpenRejectsWrites(t *testing.T) {
	t.Parallel()
	f := mountedFS(t)

	for _, flags := range []int{
		os.O_WRONLY,
		os.O_RDWR,
		os.O_RDONLY | os.O_TRUNC,
		os.O_RDONLY | os.O_APPEND,
		os.O_WRONLY | os.O_CREATE,
	} {
		_, err := f.Open("/kick", flags)
		if !errors.Is(err, osmp.ErrAccessDenied) || Errno(err) != syscall.EACCES {
			t.Fatalf("open flags %#x: got %v want EACCES", flags, err)
		}
	}
	if f.OpenHandles() != 0 {
		t.Fatalf("rejected opens must not allocate handles")
	}
	if _, err := f.Open("/", os.O_RDONLY); Errno(err) != syscall.EISDIR {
		t.Fatalf("open root: got %v want EISDIR", err)
	}
	if _, err := f.Open("/missing", os.O_RDONLY); Errno(err) != syscall.ENOENT {
		t.Fatalf("open missing: got %v want ENOENT", err)
	}
}

func TestReadScenarioE(t *testing.T) {
	t.Parallel()
	f := mountedFS(t)

	fh, err := f.Open("/snare", os.O_RDONLY)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = f.Release(fh) }()

	buf := make([]byte, 16)
	n, err := f.Read(fh, buf, 100)
	if n != 0 || err != nil {
		t.Fatalf("read beyond size: got %d, %v want 0, nil", n, err)
	}
	n, err = f.ReadPath("/kick", buf, 3)
	if n != 0 || err != nil {
		t.Fatalf("path read at size: got %d, %v want 0, nil", n, err)
	}
	if _, err := f.Read(fh, buf, -1); Errno(err) != syscall.EINVAL {
		t.Fatalf("negative offset: got %v want EINVAL", err)
	}
}

func TestReadTieBreakAndMetadata(t *testing.T) {
	t.Parallel()
	f := mountedFS(t)

	buf := make([]byte, 16)
	n, err := f.ReadPath("/snare", buf, 0)
	if err != nil || string(buf[:n]) != "DEFGH" {
		t.Fatalf("shared name must resolve to the instrument: got %q, %v", buf[:n], err)
	}

	fh, err := f.Open("/kit.json", os.O_RDONLY)
	if err != nil {
		t.Fatalf("open metadata: %v", err)
	}
	n, err = f.Read(fh, buf, 1)
	if err != nil || string(buf[:n]) != `"kit":"acoustic"` {
		t.Fatalf("metadata handle read: got %q, %v", buf[:n], err)
	}
	n, err = f.Read(fh, buf[:4], 14)
	if err != nil || string(buf[:n]) != `ic"}` {
		t.Fatalf("metadata tail read: got %q, %v", buf[:n], err)
	}
	if err := f.Release(fh); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := f.Release(fh); !errors.Is(err, ErrBadHandle) || Errno(err) != syscall.EBADF {
		t.Fatalf("double release: got %v want EBADF", err)
	}
	if _, err := f.Read(fh, buf, 0); !errors.Is(err, ErrBadHandle) {
		t.Fatalf("read after release: got %v want ErrBadHandle", err)
	}
}

func TestErrno(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want syscall.Errno
	}{
		{err: nil, want: 0},
		{err: fmt.Errorf("wrapped: %w", osmp.ErrNotFound), want: syscall.ENOENT},
		{err: osmp.ErrAccessDenied, want: syscall.EACCES},
		{err: osmp.ErrFormat, want: syscall.EIO},
		{err: &osmp.BoundsError{Off: 1, Len: 2, Size: 1}, want: syscall.EIO},
		{err: osmp.ErrClosed, want: syscall.EIO},
		{err: errors.New("anything else"), want: syscall.EIO},
	}
	for _, tt := range tests {
		if got := Errno(tt.err); got != tt.want {
			t.Fatalf("Errno(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
