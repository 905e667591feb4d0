// Package osmp implements the OSMP sample container and its InstFS partition.
//
// An OSMP file is a single immutable container holding a fixed master header,
// a metadata archive (a bare sequence of path/size headers each followed by a
// payload) and an InstFS partition (a header, an instrument entry table, name
// strings and instrument blobs). Every field is decoded through Cursor, so a
// corrupt or truncated container fails to mount instead of being read past
// its end.
package osmp

// Wire constants must never change; existing containers depend on them.
const (
	// MagicOSMP is the master header signature.
	MagicOSMP = "OSMP_IMG"

	// ContainerVersion is the master header version written by Writer.
	ContainerVersion uint32 = 1

	// MagicInstFS is the InstFS signature. Only its 6 bytes are compared;
	// the remaining 2 bytes of the magic field are padding.
	MagicInstFS = "INSTFS"

	// InstFSVersion must match the partition header exactly.
	InstFSVersion uint32 = 0x00010000

	// MaxPathLen is the capacity of the metadata path field including its
	// terminator, so stored paths hold at most MaxPathLen-1 bytes.
	MaxPathLen = 256
)

// On-disk sizes. The builder writes naturally aligned structures, so the
// master header and the instrument entry each carry a 4-byte gap that is
// reproduced here as reserved bytes.
const (
	masterHeaderSize    = 80
	instfsHeaderSize    = 56
	instrumentEntrySize = 56
	metaHeaderSize      = MaxPathLen + 8
)

// Defaults the reference builder stamps on every instrument.
const (
	DefaultFormat     uint32 = 1
	DefaultSampleRate uint32 = 44100
	DefaultChannels   uint16 = 2
	DefaultBitDepth   uint16 = 16
)
