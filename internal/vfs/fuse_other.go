//go:build !(linux || darwin)

package vfs

import (
	"context"
	"errors"
)

// Options configures the FUSE mount.
type Options struct {
	Mountpoint string
	AllowOther bool
	Debug      bool
}

// Serve reports that FUSE is not available on this platform.
func Serve(context.Context, *FS, Options) error {
	return errors.ErrUnsupported
}
