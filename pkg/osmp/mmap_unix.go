//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package osmp

import (
	"os"

	"golang.org/x/sys/unix"
)

func pageSize() int {
	return unix.Getpagesize()
}

// mapRegion maps [off, off+size) of f read-only. mmap requires a page-aligned
// file offset, so the mapping starts at the page containing off and the
// returned region's data skips the leading delta bytes.
func mapRegion(f *os.File, off, size, page uint64) (*region, error) {
	if size == 0 {
		return &region{}, nil
	}
	aligned, length, delta := AlignRange(off, size, page)
	raw, err := unix.Mmap(int(f.Fd()), int64(aligned), int(length), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		// Fallback path that does not require mmap support.
		data, rerr := readRegion(f, off, size)
		if rerr != nil {
			return nil, rerr
		}
		return &region{data: data}, nil
	}
	return &region{
		raw:     raw,
		data:    raw[delta : delta+size : delta+size],
		delta:   delta,
		mmapped: true,
	}, nil
}

func unmap(raw []byte) error {
	return unix.Munmap(raw)
}

// adviseMapping applies h to [off, off+n) of a page-aligned mapping. madvise
// needs a page-aligned address, so the range is widened down to its page.
func adviseMapping(raw []byte, off, n uint64, h Hint) error {
	page := uint64(unix.Getpagesize())
	start := off - off%page
	end := off + n
	if end > uint64(len(raw)) {
		end = uint64(len(raw))
	}
	return unix.Madvise(raw[start:end], h.advice())
}

func (h Hint) advice() int {
	switch h {
	case HintSequential:
		return unix.MADV_SEQUENTIAL
	case HintRandom:
		return unix.MADV_RANDOM
	case HintWillNeed:
		return unix.MADV_WILLNEED
	case HintDontNeed:
		return unix.MADV_DONTNEED
	default:
		return unix.MADV_NORMAL
	}
}
