//go:build linux || darwin

package vfs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/samcharles93/osmp/internal/logger"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory the container is mounted on. It is
	// created if it does not exist.
	Mountpoint string

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Debug logs every FUSE request at debug level.
	Debug bool
}

// Mount binds a mounted FS to opts.Mountpoint. The caller must Unmount the
// returned server; Serve does this for the common case.
func Mount(fsys *FS, opts Options) (*fuse.Server, error) {
	if opts.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if fsys.State() != StateMounted {
		return nil, ErrNotMounted
	}
	if err := os.MkdirAll(opts.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", opts.Mountpoint, err)
	}

	// The container is immutable while mounted, so the kernel may cache
	// entries and attributes freely.
	entryTimeout := 10 * time.Second
	attrTimeout := 10 * time.Second
	negativeTimeout := time.Second

	std := logger.Std(fsys.log, slog.LevelDebug)
	server, err := gofuse.Mount(opts.Mountpoint, &rootNode{fs: fsys}, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		Logger:          std,
		MountOptions: fuse.MountOptions{
			FsName:     "osmp",
			Name:       "instfs",
			AllowOther: opts.AllowOther,
			Debug:      opts.Debug,
			Logger:     std,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", opts.Mountpoint, err)
	}
	fsys.log.Info("filesystem mounted", "mountpoint", opts.Mountpoint, "container", fsys.path)
	return server, nil
}

// Serve mounts the container, serves FUSE requests until ctx is cancelled or
// the filesystem is unmounted externally, then tears everything down.
func Serve(ctx context.Context, fsys *FS, opts Options) error {
	if err := fsys.Init(); err != nil {
		return err
	}
	server, err := Mount(fsys, opts)
	if err != nil {
		_ = fsys.Destroy()
		return err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if err := server.Unmount(); err != nil {
				fsys.log.Error("unmount failed", "mountpoint", opts.Mountpoint, "error", err)
			}
		case <-done:
		}
	}()
	server.Wait()
	close(done)

	fsys.log.Info("filesystem unmounted", "mountpoint", opts.Mountpoint)
	return fsys.Destroy()
}

// rootNode is the only directory. Children are resolved on every lookup.
type rootNode struct {
	gofuse.Inode
	fs *FS
}

var _ gofuse.InodeEmbedder = (*rootNode)(nil)
var _ gofuse.NodeGetattrer = (*rootNode)(nil)
var _ gofuse.NodeLookuper = (*rootNode)(nil)
var _ gofuse.NodeReaddirer = (*rootNode)(nil)
var _ gofuse.NodeCreater = (*rootNode)(nil)
var _ gofuse.NodeMkdirer = (*rootNode)(nil)
var _ gofuse.NodeUnlinker = (*rootNode)(nil)
var _ gofuse.NodeRmdirer = (*rootNode)(nil)
var _ gofuse.NodeRenamer = (*rootNode)(nil)
var _ gofuse.NodeSetattrer = (*rootNode)(nil)

func (r *rootNode) Getattr(ctx context.Context, fh gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := r.fs.Getattr("/")
	if err != nil {
		return Errno(err)
	}
	fillAttr(&out.Attr, attr)
	return 0
}

func (r *rootNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	attr, err := r.fs.Getattr("/" + name)
	if err != nil {
		return nil, Errno(err)
	}
	fillAttr(&out.Attr, attr)
	child := r.NewInode(ctx, &fileNode{fs: r.fs, path: "/" + name}, gofuse.StableAttr{Mode: syscall.S_IFREG})
	return child, 0
}

func (r *rootNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	entries, err := r.fs.ReadDir("/")
	if err != nil {
		return nil, Errno(err)
	}
	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		out = append(out, fuse.DirEntry{Name: e.Name, Mode: syscall.S_IFREG})
	}
	return &sliceDirStream{entries: out}, 0
}

func (r *rootNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	return nil, nil, 0, syscall.EACCES
}

func (r *rootNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	return nil, syscall.EACCES
}

func (r *rootNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return syscall.EACCES
}

func (r *rootNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	return syscall.EACCES
}

func (r *rootNode) Rename(ctx context.Context, name string, newParent gofuse.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	return syscall.EACCES
}

func (r *rootNode) Setattr(ctx context.Context, fh gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return syscall.EACCES
}

// fileNode is an instrument or metadata file, addressed by path.
type fileNode struct {
	gofuse.Inode
	fs   *FS
	path string
}

var _ gofuse.InodeEmbedder = (*fileNode)(nil)
var _ gofuse.NodeGetattrer = (*fileNode)(nil)
var _ gofuse.NodeOpener = (*fileNode)(nil)
var _ gofuse.NodeSetattrer = (*fileNode)(nil)

func (n *fileNode) Getattr(ctx context.Context, fh gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := n.fs.Getattr(n.path)
	if err != nil {
		return Errno(err)
	}
	fillAttr(&out.Attr, attr)
	return 0
}

func (n *fileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	fh, err := n.fs.Open(n.path, int(flags))
	if err != nil {
		return nil, 0, Errno(err)
	}
	return &fileHandle{fs: n.fs, fh: fh}, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *fileNode) Setattr(ctx context.Context, fh gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return syscall.EACCES
}

type fileHandle struct {
	fs *FS
	fh uint64
}

var _ gofuse.FileReader = (*fileHandle)(nil)
var _ gofuse.FileReleaser = (*fileHandle)(nil)

func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := h.fs.Read(h.fh, dest, off)
	if err != nil {
		return nil, Errno(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (h *fileHandle) Release(ctx context.Context) syscall.Errno {
	return Errno(h.fs.Release(h.fh))
}

func fillAttr(out *fuse.Attr, attr Attr) {
	if attr.Mode.IsDir() {
		out.Mode = syscall.S_IFDIR | uint32(attr.Mode.Perm())
	} else {
		out.Mode = syscall.S_IFREG | uint32(attr.Mode.Perm())
	}
	out.Size = attr.Size
	out.Nlink = attr.Nlink
	out.Blocks = (attr.Size + 511) / 512
}

// sliceDirStream implements fs.DirStream from a slice of entries.
type sliceDirStream struct {
	entries []fuse.DirEntry
	index   int
}

func (s *sliceDirStream) HasNext() bool {
	return s.index < len(s.entries)
}

func (s *sliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry := s.entries[s.index]
	s.index++
	return entry, 0
}

func (s *sliceDirStream) Close() {}
