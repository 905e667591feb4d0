package osmp

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

type PackOptions struct {
	// OutputPath is the .osmp file to create.
	OutputPath string

	// MetaDir holds the metadata files. Only regular files directly inside
	// it are archived, under their base names, in name order. Empty skips
	// the metadata archive.
	MetaDir string

	// Instruments are the instrument files, named by base name in the table.
	Instruments []string

	// Info is stamped on every instrument. The zero value selects the
	// reference builder defaults (format 1, 44100 Hz, 2 channels, 16 bit).
	Info InstrumentInfo
}

// PackResult summarises a packed container.
type PackResult struct {
	Header      MasterHeader
	MetaFiles   int
	Instruments int
	Bytes       int64
}

// Pack builds a container from a metadata directory and instrument files.
func Pack(opts PackOptions) (PackResult, error) {
	if opts.OutputPath == "" {
		return PackResult{}, errors.New("osmp: pack: OutputPath required")
	}
	if opts.Info == (InstrumentInfo{}) {
		opts.Info = InstrumentInfo{
			Format:     DefaultFormat,
			SampleRate: DefaultSampleRate,
			Channels:   DefaultChannels,
			BitDepth:   DefaultBitDepth,
		}
	}

	w := NewWriter()
	if opts.MetaDir != "" {
		entries, err := os.ReadDir(opts.MetaDir)
		if err != nil {
			return PackResult{}, fmt.Errorf("osmp: pack: read metadata dir: %w", err)
		}
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			if err := w.AddMetadataFile(e.Name(), filepath.Join(opts.MetaDir, e.Name())); err != nil {
				return PackResult{}, fmt.Errorf("osmp: pack: %w", err)
			}
		}
	}
	for _, file := range opts.Instruments {
		if err := w.AddInstrumentFile(file, opts.Info); err != nil {
			return PackResult{}, fmt.Errorf("osmp: pack: %w", err)
		}
	}

	outF, err := os.Create(opts.OutputPath)
	if err != nil {
		return PackResult{}, err
	}
	n, err := w.WriteTo(outF)
	if cerr := outF.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(opts.OutputPath)
		return PackResult{}, fmt.Errorf("osmp: pack: %w", err)
	}

	return PackResult{
		Header:      w.Layout().Header,
		MetaFiles:   len(w.meta),
		Instruments: len(w.inst),
		Bytes:       n,
	}, nil
}
