package osmp

import (
	"fmt"
	"io"
)

// AccessMode is the expected access pattern of a stream. It is advisory only.
type AccessMode int

const (
	ModeSequential AccessMode = iota
	ModeRandom
	ModeWillNeed
)

func (m AccessMode) String() string {
	switch m {
	case ModeSequential:
		return "sequential"
	case ModeRandom:
		return "random"
	case ModeWillNeed:
		return "willneed"
	default:
		return fmt.Sprintf("AccessMode(%d)", int(m))
	}
}

// ParseAccessMode converts a mode name to an AccessMode.
func ParseAccessMode(s string) (AccessMode, error) {
	switch s {
	case "", "sequential", "seq":
		return ModeSequential, nil
	case "random", "rand":
		return ModeRandom, nil
	case "willneed", "will-need":
		return ModeWillNeed, nil
	default:
		return 0, fmt.Errorf("unknown access mode %q", s)
	}
}

func (m AccessMode) hint() Hint {
	switch m {
	case ModeRandom:
		return HintRandom
	case ModeWillNeed:
		return HintWillNeed
	default:
		return HintSequential
	}
}

// Hint is an access-pattern advisory passed to the mapping layer.
type Hint int

const (
	HintNormal Hint = iota
	HintSequential
	HintRandom
	HintWillNeed
	HintDontNeed
)

// StreamStats counts the activity of one stream.
type StreamStats struct {
	TotalBytesRead uint64
	Reads          uint64
	Seeks          uint64
	CacheHits      uint64
}

// Stream is a cursor over one instrument's bytes.
//
// A Stream is not safe for concurrent use; open one stream per reader. Any
// number of streams may read the same container concurrently. Once the
// stream or its container is closed, every operation returns ErrClosed.
type Stream struct {
	owner *Container
	index int
	name  string
	entry InstrumentEntry
	data  []byte
	mode  AccessMode

	pos   int64
	stats StreamStats

	// closed is guarded by owner.mu.
	closed bool
}

var (
	_ io.ReadSeekCloser = (*Stream)(nil)
	_ io.ReaderAt       = (*Stream)(nil)
)

// lock holds the container read lock while the mapped bytes are in use.
func (s *Stream) lock() error {
	if s == nil || s.owner == nil {
		return ErrClosed
	}
	s.owner.mu.RLock()
	if s.closed {
		s.owner.mu.RUnlock()
		return ErrClosed
	}
	return nil
}

func (s *Stream) unlock() {
	s.owner.mu.RUnlock()
}

// Index returns the instrument index the stream is bound to.
func (s *Stream) Index() int { return s.index }

// Name returns the instrument name.
func (s *Stream) Name() string { return s.name }

// Mode returns the access mode the stream was opened with.
func (s *Stream) Mode() AccessMode { return s.mode }

// Info returns the instrument's sample description.
func (s *Stream) Info() InstrumentInfo {
	return InstrumentInfo{
		Format:     s.entry.Format,
		SampleRate: s.entry.SampleRate,
		Channels:   s.entry.Channels,
		BitDepth:   s.entry.BitDepth,
	}
}

// Size returns the instrument size in bytes.
func (s *Stream) Size() int64 { return int64(len(s.data)) }

// Tell returns the cursor position.
func (s *Stream) Tell() int64 { return s.pos }

// EOF reports whether the cursor is at the end of the data.
func (s *Stream) EOF() bool { return s.pos >= int64(len(s.data)) }

// Read copies up to len(p) bytes from the cursor and advances it. At the end
// of the data it returns 0, io.EOF.
func (s *Stream) Read(p []byte) (int, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.unlock()

	if s.pos >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += int64(n)
	s.stats.TotalBytesRead += uint64(n)
	s.stats.Reads++
	return n, nil
}

// ReadSamples reads whole samples of sampleSize bytes into p and returns the
// number of complete samples read. A trailing partial sample at the end of
// the data is consumed but not counted.
func (s *Stream) ReadSamples(p []byte, sampleSize int) (int, error) {
	if sampleSize <= 0 {
		return 0, fmt.Errorf("invalid sample size %d", sampleSize)
	}
	n, err := s.Read(p[:len(p)-len(p)%sampleSize])
	return n / sampleSize, err
}

// ReadAt copies bytes at off without moving the cursor. It follows the
// io.ReaderAt contract and does not update the statistics.
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.unlock()

	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Seek moves the cursor. The target is clamped into [0, Size()], so seeking
// out of range never fails; only an unknown whence is an error.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.unlock()

	size := int64(len(s.data))
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = s.pos
	case io.SeekEnd:
		base = size
	default:
		return s.pos, fmt.Errorf("invalid whence %d", whence)
	}

	var target int64
	switch {
	case offset > 0 && base > size-offset:
		target = size
	case offset < 0 && base < -offset:
		target = 0
	default:
		target = min(max(base+offset, 0), size)
	}
	s.pos = target
	s.stats.Seeks++
	return target, nil
}

// Borrow returns the unread bytes without copying, or nil at the end of the
// data. It does not move the cursor; consume with Seek. The slice is only
// valid until the next Read, Seek or Close on this stream, and must never be
// used after the container is closed.
func (s *Stream) Borrow() []byte {
	if err := s.lock(); err != nil {
		return nil
	}
	defer s.unlock()

	if s.pos >= int64(len(s.data)) {
		return nil
	}
	s.stats.CacheHits++
	return s.data[s.pos:]
}

// Advise applies h to [off, off+n) of the instrument, clamped to its size.
// It returns errors.ErrUnsupported when the data is not memory-mapped.
func (s *Stream) Advise(off, n int64, h Hint) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	if off < 0 || n <= 0 {
		return nil
	}
	return s.owner.inst.advise(s.entry.DataOffset+uint64(off), clampLen(off, n, int64(len(s.data))), h)
}

// Prefetch hints that [off, off+n) will be read soon.
func (s *Stream) Prefetch(off, n int64) error {
	return s.Advise(off, n, HintWillNeed)
}

func clampLen(off, n, size int64) uint64 {
	if off >= size {
		return 0
	}
	return uint64(min(n, size-off))
}

// Stats returns the stream counters.
func (s *Stream) Stats() StreamStats { return s.stats }

// ResetStats zeroes the stream counters.
func (s *Stream) ResetStats() { s.stats = StreamStats{} }

// Close releases the stream's hint state and detaches it from the
// container. It does not affect the container and is safe to call twice.
func (s *Stream) Close() error {
	if s == nil || s.owner == nil {
		return nil
	}
	s.owner.closeStream(s)
	return nil
}
