package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ConnectionAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livefeed_connection_attempts_total",
			Help: "Total number of WebSocket connection attempts (count)",
		},
		[]string{"feed"},
	)

	ConnectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "livefeed_connection_state",
			Help: "Current connector state (0=idle, 1=connecting, 2=open, 3=closed, 4=exhausted)",
		},
		[]string{"feed"},
	)

	ReconnectsScheduledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livefeed_reconnects_scheduled_total",
			Help: "Total number of reconnects scheduled after a lost connection (count)",
		},
		[]string{"feed"},
	)

	ConnectionsExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livefeed_connections_exhausted_total",
			Help: "Total number of connectors that gave up after the retry budget (count)",
		},
		[]string{"feed"},
	)

	FramesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livefeed_frames_received_total",
			Help: "Total number of frames received over live connections (count)",
		},
		[]string{"feed"},
	)

	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livefeed_dispatch_total",
			Help: "Handler invocations by message type and outcome (count)",
		},
		[]string{"type", "status"},
	)

	MalformedFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "livefeed_malformed_frames_total",
			Help: "Total number of frames dropped because they could not be parsed (count)",
		},
	)

	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livefeed_events_total",
			Help: "Analytics events by topic and outcome: queued, tracked, sampled, filtered (count)",
		},
		[]string{"topic", "status"},
	)

	FlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livefeed_flushes_total",
			Help: "Analytics flushes by sink and outcome (count)",
		},
		[]string{"sink", "status"},
	)

	FlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livefeed_flush_duration_ms",
			Help:    "Analytics flush duration in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"sink"},
	)

	ArchiveRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livefeed_archive_rows_total",
			Help: "Archived frames by outcome: inserted, conflict, error (count)",
		},
		[]string{"status"},
	)
)

// Register registers every livefeed collector with reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		ConnectionAttemptsTotal,
		ConnectionState,
		ReconnectsScheduledTotal,
		ConnectionsExhaustedTotal,
		FramesReceivedTotal,
		DispatchTotal,
		MalformedFramesTotal,
		EventsTotal,
		FlushesTotal,
		FlushDuration,
		ArchiveRowsTotal,
	)
}
