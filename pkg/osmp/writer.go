package osmp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const writerCopyBufSize = 1 << 20 // 1 MiB

// Writer builds an OSMP container in the layout produced by the reference
// builder: master header, metadata archive, then the InstFS partition
// (header, entry table, NUL-terminated names, instrument data).
//
// Payloads added from files are streamed at write time; their sizes are
// fixed when they are added, so the whole layout is known before the first
// byte is written.
type Writer struct {
	meta []metaSource
	inst []instSource
}

type payload struct {
	size uint64
	open func() (io.ReadCloser, error)
}

type metaSource struct {
	path string
	payload
}

type instSource struct {
	name string
	info InstrumentInfo
	payload
}

// NewWriter returns an empty container writer.
func NewWriter() *Writer {
	return &Writer{}
}

func bytesPayload(data []byte) payload {
	return payload{
		size: uint64(len(data)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func filePayload(file string) (payload, error) {
	st, err := os.Stat(file)
	if err != nil {
		return payload{}, err
	}
	if !st.Mode().IsRegular() {
		return payload{}, fmt.Errorf("%s: not a regular file", file)
	}
	return payload{
		size: uint64(st.Size()),
		open: func() (io.ReadCloser, error) { return os.Open(file) },
	}, nil
}

func validMetaPath(path string) error {
	if path == "" {
		return errors.New("osmp: empty metadata path")
	}
	if len(path) >= MaxPathLen {
		return fmt.Errorf("osmp: metadata path %q longer than %d bytes", path, MaxPathLen-1)
	}
	if strings.IndexByte(path, 0) >= 0 {
		return errors.New("osmp: metadata path contains NUL")
	}
	return nil
}

func validInstrumentName(name string) error {
	if name == "" {
		return errors.New("osmp: empty instrument name")
	}
	if strings.IndexByte(name, 0) >= 0 {
		return errors.New("osmp: instrument name contains NUL")
	}
	return nil
}

// AddMetadata appends a metadata file with the given archive path.
func (w *Writer) AddMetadata(path string, data []byte) error {
	if err := validMetaPath(path); err != nil {
		return err
	}
	w.meta = append(w.meta, metaSource{path: path, payload: bytesPayload(data)})
	return nil
}

// AddMetadataFile appends file to the archive under path.
func (w *Writer) AddMetadataFile(path, file string) error {
	if err := validMetaPath(path); err != nil {
		return err
	}
	p, err := filePayload(file)
	if err != nil {
		return err
	}
	w.meta = append(w.meta, metaSource{path: path, payload: p})
	return nil
}

// AddInstrument appends an instrument blob.
func (w *Writer) AddInstrument(name string, info InstrumentInfo, data []byte) error {
	if err := validInstrumentName(name); err != nil {
		return err
	}
	w.inst = append(w.inst, instSource{name: name, info: info, payload: bytesPayload(data)})
	return nil
}

// AddInstrumentFile appends file as an instrument named after its base name.
func (w *Writer) AddInstrumentFile(file string, info InstrumentInfo) error {
	name := filepath.Base(file)
	if err := validInstrumentName(name); err != nil {
		return err
	}
	p, err := filePayload(file)
	if err != nil {
		return err
	}
	w.inst = append(w.inst, instSource{name: name, info: info, payload: p})
	return nil
}

// Layout describes where WriteTo places each partition.
type Layout struct {
	Header      MasterHeader
	Instruments []InstrumentEntry
}

// Layout computes the container layout for the sources added so far.
func (w *Writer) Layout() Layout {
	var metaSize uint64
	for _, m := range w.meta {
		metaSize += metaHeaderSize + m.size
	}

	entries := make([]InstrumentEntry, len(w.inst))
	nameOff := uint64(instfsHeaderSize) + uint64(len(w.inst))*instrumentEntrySize
	dataOff := nameOff
	for _, in := range w.inst {
		dataOff += uint64(len(in.name)) + 1
	}
	for i, in := range w.inst {
		entries[i] = InstrumentEntry{
			NameOffset: nameOff,
			DataOffset: dataOff,
			DataSize:   in.size,
			Format:     in.info.Format,
			SampleRate: in.info.SampleRate,
			Channels:   in.info.Channels,
			BitDepth:   in.info.BitDepth,
		}
		nameOff += uint64(len(in.name)) + 1
		dataOff += in.size
	}

	hdr := MasterHeader{
		Version:      ContainerVersion,
		MetaOffset:   masterHeaderSize,
		MetaSize:     metaSize,
		InstFSOffset: masterHeaderSize + metaSize,
		InstFSSize:   dataOff,
	}
	copy(hdr.Magic[:], MagicOSMP)
	return Layout{Header: hdr, Instruments: entries}
}

// WriteTo writes the container to out.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	layout := w.Layout()
	bw := bufio.NewWriterSize(out, writerCopyBufSize)
	cw := &countingWriter{w: bw}
	copyBuf := make([]byte, 32*1024)

	var hdr [masterHeaderSize]byte
	encodeMasterHeader(hdr[:], layout.Header)
	if _, err := cw.Write(hdr[:]); err != nil {
		return cw.n, err
	}

	var mh [metaHeaderSize]byte
	for _, m := range w.meta {
		encodeMetaHeader(mh[:], m.path, m.size)
		if _, err := cw.Write(mh[:]); err != nil {
			return cw.n, err
		}
		if err := copyPayload(cw, m.payload, copyBuf); err != nil {
			return cw.n, fmt.Errorf("metadata %q: %w", m.path, err)
		}
	}

	var ih [instfsHeaderSize]byte
	ifs := InstFSHeader{
		Version:        InstFSVersion,
		NumInstruments: uint32(len(w.inst)),
		TableOffset:    instfsHeaderSize,
	}
	copy(ifs.Magic[:], MagicInstFS)
	encodeInstFSHeader(ih[:], ifs)
	if _, err := cw.Write(ih[:]); err != nil {
		return cw.n, err
	}
	var rec [instrumentEntrySize]byte
	for _, e := range layout.Instruments {
		encodeInstrumentEntry(rec[:], e)
		if _, err := cw.Write(rec[:]); err != nil {
			return cw.n, err
		}
	}
	for _, in := range w.inst {
		if _, err := cw.Write(append([]byte(in.name), 0)); err != nil {
			return cw.n, err
		}
	}
	for _, in := range w.inst {
		if err := copyPayload(cw, in.payload, copyBuf); err != nil {
			return cw.n, fmt.Errorf("instrument %q: %w", in.name, err)
		}
	}
	return cw.n, bw.Flush()
}

// Bytes returns the encoded container.
func (w *Writer) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func copyPayload(dst io.Writer, p payload, buf []byte) error {
	if p.size == 0 {
		return nil
	}
	r, err := p.open()
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	n, err := io.CopyBuffer(dst, io.LimitReader(r, int64(p.size)), buf)
	if err != nil {
		return err
	}
	if uint64(n) != p.size {
		return fmt.Errorf("short payload: got %d bytes, want %d", n, p.size)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
