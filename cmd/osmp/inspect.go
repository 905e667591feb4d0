package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/osmp/internal/logger"
	"github.com/samcharles93/osmp/internal/store"
)

const previewLimit = 200

type inspectReport struct {
	Path        string             `json:"path"`
	ID          string             `json:"mount_id"`
	FileSize    uint64             `json:"file_size"`
	Mapped      bool               `json:"mapped"`
	Header      headerReport       `json:"header"`
	InstFS      instfsReport       `json:"instfs"`
	Metadata    metadataReport     `json:"metadata"`
	Instruments []instrumentReport `json:"instruments"`
	MetaFiles   []metaFileReport   `json:"metadata_files"`
}

type headerReport struct {
	Magic        string `json:"magic"`
	Version      uint32 `json:"version"`
	MetaOffset   uint64 `json:"metadata_offset"`
	MetaSize     uint64 `json:"metadata_size"`
	InstFSOffset uint64 `json:"instfs_offset"`
	InstFSSize   uint64 `json:"instfs_size"`
}

type instfsReport struct {
	TotalSize      uint64 `json:"total_size"`
	NumInstruments int    `json:"num_instruments"`
}

type metadataReport struct {
	Files     int  `json:"files"`
	Truncated bool `json:"truncated,omitempty"`
}

type instrumentReport struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Size       uint64 `json:"size"`
	Format     uint32 `json:"format"`
	SampleRate uint32 `json:"sample_rate"`
	Channels   uint16 `json:"channels"`
	BitDepth   uint16 `json:"bit_depth"`
}

type metaFileReport struct {
	Index   int    `json:"index"`
	Path    string `json:"path"`
	Size    uint64 `json:"size"`
	Preview string `json:"-"`
}

func inspectCmd() *cli.Command {
	var (
		asJSON  bool
		preview bool
	)

	flags := append(containerFlags(),
		&cli.BoolFlag{Name: "json", Usage: "print the report as JSON", Destination: &asJSON},
		&cli.BoolFlag{Name: "preview", Usage: "preview JSON metadata files", Value: true, Destination: &preview},
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect the contents of an .osmp container",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cfg, err := prepare(ctx, c)
			if err != nil {
				return err
			}
			applyContainerConfig(c, cfg)

			path, err := resolveContainerPath(containerPath, os.Stdin, os.Stderr)
			if err != nil {
				return err
			}
			st, err := store.Open(path, logger.FromContext(ctx))
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			report, err := buildReport(st, preview && !asJSON)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			writeReport(os.Stdout, report)
			return nil
		},
	}
}

func buildReport(st *store.Store, withPreview bool) (inspectReport, error) {
	cont := st.Container()
	h := cont.Header()
	stats := cont.Stats()

	r := inspectReport{
		Path:     st.Path(),
		ID:       st.ID().String(),
		FileSize: cont.FileSize(),
		Mapped:   cont.Mapped(),
		Header: headerReport{
			Magic:        strings.TrimRight(string(h.Magic[:]), "\x00"),
			Version:      h.Version,
			MetaOffset:   h.MetaOffset,
			MetaSize:     h.MetaSize,
			InstFSOffset: h.InstFSOffset,
			InstFSSize:   h.InstFSSize,
		},
		InstFS: instfsReport{
			TotalSize:      stats.TotalSize,
			NumInstruments: stats.NumInstruments,
		},
		Instruments: []instrumentReport{},
		MetaFiles:   []metaFileReport{},
	}

	inst, err := st.Instruments()
	if err != nil {
		return inspectReport{}, err
	}
	for _, e := range inst {
		r.Instruments = append(r.Instruments, instrumentReport{
			Index:      e.Index,
			Name:       e.Name,
			Size:       e.Size,
			Format:     e.Info.Format,
			SampleRate: e.Info.SampleRate,
			Channels:   e.Info.Channels,
			BitDepth:   e.Info.BitDepth,
		})
	}

	meta, err := st.MetaFiles()
	if err != nil {
		return inspectReport{}, err
	}
	for _, e := range meta {
		m := metaFileReport{Index: e.Index, Path: e.Name, Size: e.Size}
		if withPreview && strings.Contains(e.Name, ".json") && e.Size > 0 {
			buf := make([]byte, min(e.Size, previewLimit))
			n, err := st.ReadAt(e, buf, 0)
			if err != nil {
				return inspectReport{}, err
			}
			m.Preview = previewText(buf[:n], e.Size > previewLimit)
		}
		r.MetaFiles = append(r.MetaFiles, m)
	}
	r.Metadata = metadataReport{
		Files:     len(meta),
		Truncated: cont.Metadata().Truncated(),
	}
	return r, nil
}

// previewText keeps printable ASCII and line breaks, indenting every line.
func previewText(b []byte, more bool) string {
	var sb strings.Builder
	sb.WriteString("        ")
	for _, c := range b {
		switch {
		case c == '\n':
			sb.WriteString("\n        ")
		case c >= 32 && c < 127:
			sb.WriteByte(c)
		}
	}
	if more {
		sb.WriteString("...")
	}
	return sb.String()
}

func writeReport(w io.Writer, r inspectReport) {
	p := func(format string, args ...any) { _, _ = fmt.Fprintf(w, format, args...) }

	p("File: %s\n", r.Path)
	p("Mount: %s (%d bytes, mapped=%t)\n\n", r.ID, r.FileSize, r.Mapped)

	p("Master Header:\n")
	p("  Magic:          %s\n", r.Header.Magic)
	p("  Version:        %d\n", r.Header.Version)
	p("  Metadata:       offset=%d, size=%d bytes\n", r.Header.MetaOffset, r.Header.MetaSize)
	p("  InstFS:         offset=%d, size=%d bytes\n\n", r.Header.InstFSOffset, r.Header.InstFSSize)

	p("InstFS Partition:\n")
	p("  Total Size:     %d bytes\n", r.InstFS.TotalSize)
	p("  Instruments:    %d\n\n", r.InstFS.NumInstruments)
	if len(r.Instruments) > 0 {
		p("Instrument List:\n")
		for _, in := range r.Instruments {
			p("  [%3d] %-40s %10d bytes  fmt=%d %dHz %dch %dbit\n",
				in.Index, in.Name, in.Size, in.Format, in.SampleRate, in.Channels, in.BitDepth)
		}
		p("\n")
	}

	p("Metadata Archive:\n")
	p("  Files:          %d\n", r.Metadata.Files)
	if r.Metadata.Truncated {
		p("  Truncated:      trailing bytes ignored\n")
	}
	p("\n")
	if len(r.MetaFiles) > 0 {
		p("Metadata Files:\n")
		for _, m := range r.MetaFiles {
			p("  [%3d] %-40s %10d bytes\n", m.Index, m.Path, m.Size)
			if m.Preview != "" {
				p("\n        Preview (first %d chars):\n%s\n\n", previewLimit, m.Preview)
			}
		}
	}
}
