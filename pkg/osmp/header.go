package osmp

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// MasterHeader is the fixed header at the start of every container.
type MasterHeader struct {
	Magic        [8]byte
	Version      uint32
	MetaOffset   uint64
	MetaSize     uint64
	InstFSOffset uint64
	InstFSSize   uint64
}

// Valid reports whether the header carries the container signature.
func (h *MasterHeader) Valid() bool {
	return string(h.Magic[:]) == MagicOSMP
}

// checkRanges verifies both partitions lie within a file of fileSize bytes.
func (h *MasterHeader) checkRanges(fileSize uint64) error {
	if err := checkRange("metadata", h.MetaOffset, h.MetaSize, fileSize); err != nil {
		return err
	}
	return checkRange("instfs", h.InstFSOffset, h.InstFSSize, fileSize)
}

func checkRange(what string, off, size, limit uint64) error {
	end, carry := bits.Add64(off, size, 0)
	if carry != 0 || end > limit {
		return fmt.Errorf("%s partition [%d,+%d): %w", what, off, size,
			&BoundsError{Off: off, Len: size, Size: limit})
	}
	return nil
}

func decodeMasterHeader(c Cursor) (MasterHeader, error) {
	var h MasterHeader
	magic, err := c.Bytes(0, 8)
	if err != nil {
		return h, fmt.Errorf("%w: short master header", ErrFormat)
	}
	copy(h.Magic[:], magic)
	if _, err := c.Bytes(0, masterHeaderSize); err != nil {
		return h, fmt.Errorf("%w: short master header", ErrFormat)
	}
	fields := []struct {
		off uint64
		dst *uint64
	}{
		{16, &h.MetaOffset},
		{24, &h.MetaSize},
		{32, &h.InstFSOffset},
		{40, &h.InstFSSize},
	}
	if h.Version, err = c.Uint32(8); err != nil {
		return h, err
	}
	for _, f := range fields {
		if *f.dst, err = c.Uint64(f.off); err != nil {
			return h, err
		}
	}
	return h, nil
}

func encodeMasterHeader(dst []byte, h MasterHeader) bool {
	if len(dst) < masterHeaderSize {
		return false
	}
	clear(dst[:masterHeaderSize])
	copy(dst[0:8], h.Magic[:])
	binary.LittleEndian.PutUint32(dst[8:12], h.Version)
	binary.LittleEndian.PutUint64(dst[16:24], h.MetaOffset)
	binary.LittleEndian.PutUint64(dst[24:32], h.MetaSize)
	binary.LittleEndian.PutUint64(dst[32:40], h.InstFSOffset)
	binary.LittleEndian.PutUint64(dst[40:48], h.InstFSSize)
	return true
}

// InstFSHeader is the fixed header at the start of the InstFS partition.
type InstFSHeader struct {
	Magic          [8]byte
	Version        uint32
	NumInstruments uint32
	TableOffset    uint64
}

func decodeInstFSHeader(c Cursor) (InstFSHeader, error) {
	var h InstFSHeader
	if _, err := c.Bytes(0, instfsHeaderSize); err != nil {
		return h, fmt.Errorf("%w: short instfs header", ErrFormat)
	}
	magic, _ := c.Bytes(0, 8)
	copy(h.Magic[:], magic)
	var err error
	if h.Version, err = c.Uint32(8); err != nil {
		return h, err
	}
	if h.NumInstruments, err = c.Uint32(12); err != nil {
		return h, err
	}
	if h.TableOffset, err = c.Uint64(16); err != nil {
		return h, err
	}
	return h, nil
}

func encodeInstFSHeader(dst []byte, h InstFSHeader) bool {
	if len(dst) < instfsHeaderSize {
		return false
	}
	clear(dst[:instfsHeaderSize])
	copy(dst[0:8], h.Magic[:])
	binary.LittleEndian.PutUint32(dst[8:12], h.Version)
	binary.LittleEndian.PutUint32(dst[12:16], h.NumInstruments)
	binary.LittleEndian.PutUint64(dst[16:24], h.TableOffset)
	return true
}

// InstrumentEntry is one fixed-size record of the instrument table.
// Offsets are relative to the InstFS partition start.
type InstrumentEntry struct {
	NameOffset uint64
	DataOffset uint64
	DataSize   uint64
	Format     uint32
	SampleRate uint32
	Channels   uint16
	BitDepth   uint16
}

func decodeInstrumentEntry(c Cursor) (InstrumentEntry, error) {
	var e InstrumentEntry
	var err error
	if e.NameOffset, err = c.Uint64(0); err != nil {
		return e, err
	}
	if e.DataOffset, err = c.Uint64(8); err != nil {
		return e, err
	}
	if e.DataSize, err = c.Uint64(16); err != nil {
		return e, err
	}
	if e.Format, err = c.Uint32(24); err != nil {
		return e, err
	}
	if e.SampleRate, err = c.Uint32(28); err != nil {
		return e, err
	}
	if e.Channels, err = c.Uint16(32); err != nil {
		return e, err
	}
	if e.BitDepth, err = c.Uint16(34); err != nil {
		return e, err
	}
	return e, nil
}

func encodeInstrumentEntry(dst []byte, e InstrumentEntry) bool {
	if len(dst) < instrumentEntrySize {
		return false
	}
	clear(dst[:instrumentEntrySize])
	binary.LittleEndian.PutUint64(dst[0:8], e.NameOffset)
	binary.LittleEndian.PutUint64(dst[8:16], e.DataOffset)
	binary.LittleEndian.PutUint64(dst[16:24], e.DataSize)
	binary.LittleEndian.PutUint32(dst[24:28], e.Format)
	binary.LittleEndian.PutUint32(dst[28:32], e.SampleRate)
	binary.LittleEndian.PutUint16(dst[32:34], e.Channels)
	binary.LittleEndian.PutUint16(dst[34:36], e.BitDepth)
	return true
}

func encodeMetaHeader(dst []byte, path string, size uint64) bool {
	if len(dst) < metaHeaderSize || len(path) >= MaxPathLen {
		return false
	}
	clear(dst[:metaHeaderSize])
	copy(dst[:MaxPathLen], path)
	binary.LittleEndian.PutUint64(dst[MaxPathLen:metaHeaderSize], size)
	return true
}
