// Package api serves a read-only HTTP view of a mounted container: the same
// flat namespace the filesystem adapter exposes, plus container details and
// Prometheus metrics.
package api

import (
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/osmp/internal/logger"
	"github.com/samcharles93/osmp/internal/metrics"
	"github.com/samcharles93/osmp/internal/store"
	"github.com/samcharles93/osmp/pkg/osmp"
)

type Config struct {
	// StreamMode is the access hint for instrument data streams.
	StreamMode osmp.AccessMode
}

type Server struct {
	st        *store.Store
	cfg       Config
	log       logger.Logger
	mountedAt time.Time
}

func NewServer(st *store.Store, cfg Config) *Server {
	return &Server{
		st:        st,
		cfg:       cfg,
		log:       st.Logger().With("component", "api"),
		mountedAt: time.Now().UTC(),
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/container", s.handleContainer)

	e.GET("/v1/instruments", s.handleListInstruments)
	e.GET("/v1/instruments/:name", s.handleGetInstrument)
	e.GET("/v1/instruments/:name/data", s.handleInstrumentData)

	e.GET("/v1/metadata", s.handleListMetadata)
	e.GET("/v1/metadata/:path", s.handleGetMetadata)

	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

func (s *Server) handleContainer(c *echo.Context) error {
	inst, err := s.st.Instruments()
	if err != nil {
		return writeStoreError(c, err, "")
	}
	meta, err := s.st.MetaFiles()
	if err != nil {
		return writeStoreError(c, err, "")
	}
	cont := s.st.Container()
	h := cont.Header()
	return c.JSON(http.StatusOK, ContainerResponse{
		Object:   "container",
		ID:       s.st.ID().String(),
		Path:     s.st.Path(),
		Version:  h.Version,
		FileSize: cont.FileSize(),
		Mapped:   cont.Mapped(),
		Metadata: PartitionSummary{
			Offset:  h.MetaOffset,
			Size:    h.MetaSize,
			Entries: len(meta),
		},
		InstFS: PartitionSummary{
			Offset:  h.InstFSOffset,
			Size:    h.InstFSSize,
			Entries: len(inst),
		},
		MetaTruncated: cont.Metadata().Truncated(),
		MountedAt:     s.mountedAt,
	})
}

func (s *Server) handleListInstruments(c *echo.Context) error {
	entries, err := s.st.Instruments()
	if err != nil {
		return writeStoreError(c, err, "")
	}
	out := ListResponse[InstrumentObject]{Object: "list", Data: make([]InstrumentObject, 0, len(entries))}
	for _, e := range entries {
		out.Data = append(out.Data, instrumentObject(e))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetInstrument(c *echo.Context) error {
	e, err := s.st.Instrument(c.Param("name"))
	if err != nil {
		return writeStoreError(c, err, "name")
	}
	return c.JSON(http.StatusOK, instrumentObject(e))
}

// handleInstrumentData serves instrument bytes from a stream, so Range and
// conditional requests are handled by http.ServeContent.
func (s *Server) handleInstrumentData(c *echo.Context) error {
	name := c.Param("name")
	stream, err := s.st.OpenStream(name, s.cfg.StreamMode)
	if err != nil {
		return writeStoreError(c, err, "name")
	}
	defer func() { _ = stream.Close() }()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, echo.MIMEOctetStream)
	http.ServeContent(w, c.Request(), name, s.mountedAt, stream)
	s.log.Debug("served instrument", "name", name, "bytes", stream.Stats().TotalBytesRead)
	return nil
}

func (s *Server) handleListMetadata(c *echo.Context) error {
	entries, err := s.st.MetaFiles()
	if err != nil {
		return writeStoreError(c, err, "")
	}
	out := ListResponse[MetaFileObject]{Object: "list", Data: make([]MetaFileObject, 0, len(entries))}
	for _, e := range entries {
		out.Data = append(out.Data, MetaFileObject{Object: "metadata_file", Index: e.Index, Path: e.Name, Size: e.Size})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetMetadata(c *echo.Context) error {
	p := c.Param("path")
	b, err := s.st.ReadMeta(p)
	if err != nil {
		return writeStoreError(c, err, "path")
	}
	ctype := mime.TypeByExtension(path.Ext(p))
	if ctype == "" {
		ctype = echo.MIMEOctetStream
	}
	return c.Blob(http.StatusOK, ctype, b)
}

func instrumentObject(e store.Entry) InstrumentObject {
	return InstrumentObject{
		Object:     "instrument",
		Index:      e.Index,
		Name:       e.Name,
		Size:       e.Size,
		Format:     e.Info.Format,
		SampleRate: e.Info.SampleRate,
		Channels:   e.Info.Channels,
		BitDepth:   e.Info.BitDepth,
	}
}
