package store

import (
	"sync"

	"github.com/samcharles93/osmp/internal/metrics"
	"github.com/samcharles93/osmp/pkg/osmp"
)

// Stream is an osmp.Stream whose activity is added to the stream metrics
// when it is closed, either directly or by closing its Store.
type Stream struct {
	*osmp.Stream
	store *Store
	once  sync.Once
}

// OpenStream opens a stream over the instrument called name.
func (s *Store) OpenStream(name string, mode osmp.AccessMode) (*Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.c.OpenStreamByName(name, mode)
	if err != nil {
		return nil, err
	}
	w := &Stream{Stream: st, store: s}
	if s.streams == nil {
		s.streams = make(map[*Stream]struct{})
	}
	s.streams[w] = struct{}{}
	metrics.StreamsOpen.Inc()
	s.log.Debug("stream opened", "instrument", name, "mode", mode.String(), "size", st.Size())
	return w, nil
}

// Close closes the stream and records its counters.
func (st *Stream) Close() error {
	st.store.mu.Lock()
	delete(st.store.streams, st)
	st.store.mu.Unlock()
	return st.finish()
}

func (st *Stream) finish() error {
	var err error
	st.once.Do(func() {
		stats := st.Stats()
		err = st.Stream.Close()
		metrics.StreamsOpen.Dec()
		metrics.RecordStream(metrics.StreamDelta{
			Bytes:   stats.TotalBytesRead,
			Reads:   stats.Reads,
			Seeks:   stats.Seeks,
			Borrows: stats.CacheHits,
		})
	})
	return err
}
