package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/osmp/internal/logger"
	"github.com/samcharles93/osmp/internal/vfs"
)

func mountCmd() *cli.Command {
	var (
		mountpoint string
		allowOther bool
		debugFUSE  bool
	)

	flags := append(containerFlags(),
		&cli.StringFlag{
			Name:        "mountpoint",
			Aliases:     []string{"d"},
			Usage:       "directory to mount the container on",
			Destination: &mountpoint,
		},
		&cli.BoolFlag{
			Name:        "allow-other",
			Usage:       "allow other users to access the mount",
			Destination: &allowOther,
		},
		&cli.BoolFlag{
			Name:        "debug-fuse",
			Usage:       "log every FUSE request",
			Destination: &debugFUSE,
		},
	)

	return &cli.Command{
		Name:  "mount",
		Usage: "Mount a container as a read-only filesystem until interrupted",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cfg, err := prepare(ctx, c)
			if err != nil {
				return err
			}
			applyMountConfig(c, cfg, &mountpoint, &allowOther)
			if mountpoint == "" {
				return errors.New("mount: --mountpoint is required")
			}

			path, err := resolveContainerPath(containerPath, os.Stdin, os.Stderr)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(ctx)
			defer stop()

			fsys := vfs.New(path, logger.FromContext(ctx))
			return vfs.Serve(ctx, fsys, vfs.Options{
				Mountpoint: mountpoint,
				AllowOther: allowOther,
				Debug:      debugFUSE,
			})
		},
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
