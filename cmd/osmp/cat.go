package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/osmp/internal/logger"
	"github.com/samcharles93/osmp/internal/store"
	"github.com/samcharles93/osmp/pkg/osmp"
)

type catOptions struct {
	Meta   bool
	Offset int64
	Length int64
	Pretty bool
	Mode   osmp.AccessMode
}

func catCmd() *cli.Command {
	var opts catOptions

	flags := append(containerFlags(), streamFlags()...)
	flags = append(flags,
		&cli.BoolFlag{Name: "meta", Usage: "read a metadata file even if an instrument has the same name", Destination: &opts.Meta},
		&cli.Int64Flag{Name: "offset", Usage: "byte offset to start at", Destination: &opts.Offset},
		&cli.Int64Flag{Name: "length", Aliases: []string{"n"}, Usage: "bytes to copy (0 = to the end)", Destination: &opts.Length},
		&cli.BoolFlag{Name: "pretty", Usage: "indent JSON metadata", Destination: &opts.Pretty},
	)

	return &cli.Command{
		Name:      "cat",
		Usage:     "Write an instrument or metadata file to stdout",
		ArgsUsage: "name",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cfg, err := prepare(ctx, c)
			if err != nil {
				return err
			}
			applyContainerConfig(c, cfg)

			if c.Args().Len() != 1 {
				return errors.New("cat: exactly one name is required")
			}
			opts.Mode, err = osmp.ParseAccessMode(streamMode)
			if err != nil {
				return fmt.Errorf("cat: %w", err)
			}

			path, err := resolveContainerPath(containerPath, os.Stdin, os.Stderr)
			if err != nil {
				return err
			}
			log := logger.FromContext(ctx)
			st, err := store.Open(path, log)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			n, err := catEntry(os.Stdout, st, c.Args().First(), opts)
			if err != nil {
				return fmt.Errorf("cat: %w", err)
			}
			log.Debug("cat complete", "name", c.Args().First(), "bytes", n)
			return nil
		},
	}
}

// catEntry copies the named entry to w. Instruments are read through a
// stream; metadata files are copied whole and optionally reindented.
func catEntry(w io.Writer, st *store.Store, name string, opts catOptions) (int64, error) {
	if opts.Offset < 0 || opts.Length < 0 {
		return 0, errors.New("offset and length must not be negative")
	}

	var (
		e   store.Entry
		err error
	)
	if opts.Meta {
		e, err = st.MetaFile(name)
	} else {
		e, err = st.Lookup(name)
	}
	if err != nil {
		return 0, err
	}

	if e.Kind == store.KindMetadata {
		return catMeta(w, st, e.Name, opts)
	}
	if opts.Pretty {
		return 0, fmt.Errorf("--pretty applies to metadata files, %q is an instrument", name)
	}

	stream, err := st.OpenStream(e.Name, opts.Mode)
	if err != nil {
		return 0, err
	}
	defer func() { _ = stream.Close() }()

	if _, err := stream.Seek(opts.Offset, io.SeekStart); err != nil {
		return 0, err
	}
	var r io.Reader = stream
	if opts.Length > 0 {
		r = io.LimitReader(stream, opts.Length)
	}
	return io.Copy(w, r)
}

func catMeta(w io.Writer, st *store.Store, path string, opts catOptions) (int64, error) {
	b, err := st.ReadMeta(path)
	if err != nil {
		return 0, err
	}
	off := min(opts.Offset, int64(len(b)))
	b = b[off:]
	if opts.Length > 0 && opts.Length < int64(len(b)) {
		b = b[:opts.Length]
	}
	if opts.Pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, b, "", "  "); err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
		buf.WriteByte('\n')
		b = buf.Bytes()
	}
	n, err := w.Write(b)
	return int64(n), err
}
