package main

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/osmp/internal/logger"
	"github.com/samcharles93/osmp/pkg/osmp"
)

func packCmd() *cli.Command {
	var (
		outPath    string
		metaDir    string
		format     int64
		sampleRate int64
		channels   int64
		bitDepth   int64
	)

	return &cli.Command{
		Name:      "pack",
		Usage:     "Build an .osmp container from a metadata directory and instrument files",
		ArgsUsage: "instrument...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output .osmp file (default $OSMP_PACK_OUT_DIR or ./out, named after the metadata directory)",
				Destination: &outPath,
			},
			&cli.StringFlag{
				Name:        "meta-dir",
				Aliases:     []string{"m"},
				Usage:       "directory of metadata files to archive",
				Destination: &metaDir,
			},
			&cli.Int64Flag{Name: "format", Usage: "sample format code stamped on every instrument", Value: int64(osmp.DefaultFormat), Destination: &format},
			&cli.Int64Flag{Name: "sample-rate", Aliases: []string{"rate"}, Usage: "sample rate in Hz", Value: int64(osmp.DefaultSampleRate), Destination: &sampleRate},
			&cli.Int64Flag{Name: "channels", Usage: "channel count", Value: int64(osmp.DefaultChannels), Destination: &channels},
			&cli.Int64Flag{Name: "bit-depth", Aliases: []string{"bits"}, Usage: "bits per sample", Value: int64(osmp.DefaultBitDepth), Destination: &bitDepth},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, _, err := prepare(ctx, c)
			if err != nil {
				return err
			}
			log := logger.FromContext(ctx)

			instruments := c.Args().Slice()
			if len(instruments) == 0 && metaDir == "" {
				return errors.New("pack: nothing to pack; give instrument files or --meta-dir")
			}
			info, err := packInfo(format, sampleRate, channels, bitDepth)
			if err != nil {
				return fmt.Errorf("pack: %w", err)
			}

			out, defaulted, err := resolvePackOut(metaDir, outPath)
			if err != nil {
				return fmt.Errorf("pack: %w", err)
			}
			if defaulted {
				log.Info("pack output defaulted", "path", out)
			}

			res, err := osmp.Pack(osmp.PackOptions{
				OutputPath:  out,
				MetaDir:     metaDir,
				Instruments: instruments,
				Info:        info,
			})
			if err != nil {
				return err
			}
			log.Info("container packed",
				"path", out,
				"bytes", res.Bytes,
				"metadata_files", res.MetaFiles,
				"instruments", res.Instruments,
			)
			fmt.Printf("wrote %s (%d bytes, %d metadata files, %d instruments)\n",
				out, res.Bytes, res.MetaFiles, res.Instruments)
			return nil
		},
	}
}

func packInfo(format, rate, channels, bits int64) (osmp.InstrumentInfo, error) {
	if format < 0 || format > math.MaxUint32 {
		return osmp.InstrumentInfo{}, fmt.Errorf("format %d out of range", format)
	}
	if rate < 0 || rate > math.MaxUint32 {
		return osmp.InstrumentInfo{}, fmt.Errorf("sample rate %d out of range", rate)
	}
	if channels < 0 || channels > math.MaxUint16 {
		return osmp.InstrumentInfo{}, fmt.Errorf("channels %d out of range", channels)
	}
	if bits < 0 || bits > math.MaxUint16 {
		return osmp.InstrumentInfo{}, fmt.Errorf("bit depth %d out of range", bits)
	}
	return osmp.InstrumentInfo{
		Format:     uint32(format),
		SampleRate: uint32(rate),
		Channels:   uint16(channels),
		BitDepth:   uint16(bits),
	}, nil
}
