// Package metrics holds the Prometheus collectors for container, stream and
// filesystem activity. Collectors are registered with the default registry
// at init and exported by Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ContainersMounted = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "osmp_containers_mounted",
		Help: "Number of containers currently mounted",
	})

	MountsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmp_mounts_total",
			Help: "Container mount attempts",
		},
		[]string{"result"}, // ok, error
	)

	StreamsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "osmp_streams_open",
		Help: "Number of instrument streams currently open",
	})

	StreamBytesRead = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "osmp_stream_bytes_read_total",
		Help: "Bytes copied out of instrument streams",
	})

	StreamReads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "osmp_stream_reads_total",
		Help: "Read calls served by instrument streams",
	})

	StreamSeeks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "osmp_stream_seeks_total",
		Help: "Seek calls on instrument streams",
	})

	StreamBorrows = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "osmp_stream_borrows_total",
		Help: "Zero-copy borrows of mapped instrument data",
	})

	FSOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmp_fs_operations_total",
			Help: "Virtual filesystem operations by result",
		},
		[]string{"op", "result"}, // getattr, readdir, open, read, release; ok, enoent, eacces, eio
	)

	FSBytesRead = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "osmp_fs_bytes_read_total",
		Help: "Bytes returned by virtual filesystem reads",
	})
)

func init() {
	prometheus.MustRegister(ContainersMounted, MountsTotal, StreamsOpen)
	prometheus.MustRegister(StreamBytesRead, StreamReads, StreamSeeks, StreamBorrows)
	prometheus.MustRegister(FSOperations, FSBytesRead)
}

// Handler exports the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StreamDelta is the activity of one stream since it was last recorded.
type StreamDelta struct {
	Bytes   uint64
	Reads   uint64
	Seeks   uint64
	Borrows uint64
}

// RecordStream adds d to the stream counters.
func RecordStream(d StreamDelta) {
	StreamBytesRead.Add(float64(d.Bytes))
	StreamReads.Add(float64(d.Reads))
	StreamSeeks.Add(float64(d.Seeks))
	StreamBorrows.Add(float64(d.Borrows))
}

// RecordFS counts one filesystem operation.
func RecordFS(op, result string) {
	FSOperations.WithLabelValues(op, result).Inc()
}
