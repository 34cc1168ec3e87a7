// Package metric provides Prometheus metrics for the Quicklook
// acquisition service and adapter: a registry wrapper for component
// metrics, the core platform metrics, and the metrics HTTP server.
package metric

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the core platform metrics shared across components
type Metrics struct {
	// Acquisition metrics
	AcquisitionRunning prometheus.Gauge
	SourceConnected    prometheus.Gauge
	EventsIngested     prometheus.Counter
	EventsAccepted     prometheus.Counter
	EventsRejected     *prometheus.CounterVec
	WindowsPublished   prometheus.Counter
	WindowEventCount   prometheus.Histogram
	// SnapshotAge computes the age at scrape time from the last
	// publish timestamp, so it keeps advancing between publishes.
	SnapshotAge  prometheus.GaugeFunc
	lastSnapshot atomic.Int64

	// Fanout metrics
	SinkLinesWritten *prometheus.CounterVec
	SinkWriteErrors  *prometheus.CounterVec
	SinkClients      *prometheus.GaugeVec

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		AcquisitionRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "quicklook",
				Subsystem: "acquisition",
				Name:      "running",
				Help:      "Acquisition run status (0=idle, 1=running)",
			},
		),

		SourceConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "quicklook",
				Subsystem: "acquisition",
				Name:      "source_connected",
				Help:      "Event source connection status (0=disconnected, 1=connected)",
			},
		),

		EventsIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "quicklook",
				Subsystem: "acquisition",
				Name:      "events_ingested_total",
				Help:      "Total event lines read from the source",
			},
		),

		EventsAccepted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "quicklook",
				Subsystem: "acquisition",
				Name:      "events_accepted_total",
				Help:      "Total events accepted into the aggregation window",
			},
		),

		EventsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quicklook",
				Subsystem: "acquisition",
				Name:      "events_rejected_total",
				Help:      "Total events rejected by the validator",
			},
			[]string{"reason"},
		),

		WindowsPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "quicklook",
				Subsystem: "acquisition",
				Name:      "windows_published_total",
				Help:      "Total aggregation windows closed and published as snapshots",
			},
		),

		WindowEventCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "quicklook",
				Subsystem: "acquisition",
				Name:      "window_event_count",
				Help:      "Distribution of accepted events per published window",
				Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
			},
		),

		SinkLinesWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quicklook",
				Subsystem: "fanout",
				Name:      "lines_written_total",
				Help:      "Total event lines written per sink",
			},
			[]string{"sink"},
		),

		SinkWriteErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quicklook",
				Subsystem: "fanout",
				Name:      "write_errors_total",
				Help:      "Total per-sink write failures",
			},
			[]string{"sink"},
		),

		SinkClients: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "quicklook",
				Subsystem: "fanout",
				Name:      "clients",
				Help:      "Currently connected clients per sink",
			},
			[]string{"sink"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "quicklook",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "quicklook",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}

	m.SnapshotAge = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "quicklook",
			Subsystem: "acquisition",
			Name:      "snapshot_age_seconds",
			Help:      "Wall-clock age of the latest published snapshot",
		},
		func() float64 {
			published := m.lastSnapshot.Load()
			if published == 0 {
				return 0
			}
			return time.Since(time.Unix(0, published)).Seconds()
		},
	)

	return m
}

// RecordRunning updates the acquisition run status gauge
func (m *Metrics) RecordRunning(running bool) {
	m.AcquisitionRunning.Set(boolValue(running))
}

// RecordConnected updates the source connection gauge
func (m *Metrics) RecordConnected(connected bool) {
	m.SourceConnected.Set(boolValue(connected))
}

// RecordRejected increments the rejection counter for a reason
func (m *Metrics) RecordRejected(reason string) {
	m.EventsRejected.WithLabelValues(reason).Inc()
}

// RecordWindowPublished records one closed window with its event count
func (m *Metrics) RecordWindowPublished(eventCount int) {
	m.WindowsPublished.Inc()
	m.WindowEventCount.Observe(float64(eventCount))
}

// RecordSnapshotPublished marks now as the latest snapshot publish
// time, resetting the age gauge
func (m *Metrics) RecordSnapshotPublished() {
	m.lastSnapshot.Store(time.Now().UnixNano())
}

// RecordNATSStatus updates the NATS connection gauge
func (m *Metrics) RecordNATSStatus(connected bool) {
	m.NATSConnected.Set(boolValue(connected))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
