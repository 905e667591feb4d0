//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package osmp

import (
	"errors"
	"os"
)

func pageSize() int {
	return os.Getpagesize()
}

// mapRegion reads the partition into memory; this platform has no mapping
// support through x/sys/unix.
func mapRegion(f *os.File, off, size, _ uint64) (*region, error) {
	if size == 0 {
		return &region{}, nil
	}
	data, err := readRegion(f, off, size)
	if err != nil {
		return nil, err
	}
	return &region{data: data}, nil
}

func unmap([]byte) error {
	return nil
}

func adviseMapping([]byte, uint64, uint64, Hint) error {
	return errors.ErrUnsupported
}
