package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MaigomAS/Quicklook/component"
	"github.com/MaigomAS/Quicklook/errors"
	"github.com/MaigomAS/Quicklook/metric"
)

// Fanout distributes each event line to every configured sink. Sinks
// fail independently: a dead downstream peer or a slow client never
// stops the console or file output.
type Fanout struct {
	sinks   []Sink
	logger  *slog.Logger
	metrics *metric.Metrics

	mu        sync.RWMutex
	running   bool
	startTime time.Time

	linesWritten atomic.Int64
	writeErrors  atomic.Int64
	lastActivity atomic.Int64 // unix nanos
}

// New creates a fanout over the given sinks
func New(sinks []Sink, logger *slog.Logger, metrics *metric.Metrics) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{
		sinks:   sinks,
		logger:  logger.With("component", "fanout"),
		metrics: metrics,
	}
}

// Initialize is a no-op; sinks are opened in Start
func (f *Fanout) Initialize() error { return nil }

// Start opens all sinks. An open failure on any sink aborts the start
// and closes the sinks already opened.
func (f *Fanout) Start(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return errors.WrapInvalid(errors.ErrAlreadyRunning, "Fanout", "Start", "check running state")
	}

	var opened []Sink
	for _, sink := range f.sinks {
		if err := sink.Open(); err != nil {
			for _, s := range opened {
				s.Close()
			}
			return errors.Wrap(err, "Fanout", "Start",
				fmt.Sprintf("open sink %s", sink.Name()))
		}
		opened = append(opened, sink)
	}

	f.running = true
	f.startTime = time.Now()

	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	f.logger.Info("fanout started", "sinks", names)
	return nil
}

// Stop closes all sinks
func (f *Fanout) Stop(_ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return nil
	}
	f.running = false

	var firstErr error
	for _, sink := range f.sinks {
		if err := sink.Close(); err != nil {
			f.logger.Warn("sink close failed", "sink", sink.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	f.logger.Info("fanout stopped")
	return firstErr
}

// Write distributes one event line to all sinks. Per-sink failures are
// counted and logged but never propagate; the return value reports how
// many sinks accepted the line.
func (f *Fanout) Write(line []byte) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	delivered := 0
	for _, sink := range f.sinks {
		if err := sink.WriteLine(line); err != nil {
			f.writeErrors.Add(1)
			if f.metrics != nil {
				f.metrics.SinkWriteErrors.WithLabelValues(sink.Name()).Inc()
			}
			if !errors.IsTransient(err) {
				f.logger.Warn("sink write failed", "sink", sink.Name(), "error", err)
			}
			continue
		}
		delivered++
		if f.metrics != nil {
			f.metrics.SinkLinesWritten.WithLabelValues(sink.Name()).Inc()
		}
	}

	f.linesWritten.Add(1)
	f.lastActivity.Store(time.Now().UnixNano())
	return delivered
}

// Meta returns component metadata
func (f *Fanout) Meta() component.Metadata {
	return component.Metadata{
		Name:        "fanout",
		Type:        "output",
		Description: "Distributes event lines to console, file, TCP and NATS sinks",
		Version:     "0.1.0",
	}
}

// Health returns the current health status
func (f *Fanout) Health() component.HealthStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var uptime time.Duration
	if f.running {
		uptime = time.Since(f.startTime)
	}
	return component.HealthStatus{
		Healthy:    f.running,
		LastCheck:  time.Now(),
		ErrorCount: int(f.writeErrors.Load()),
		Uptime:     uptime,
	}
}

// DataFlow returns current data flow metrics
func (f *Fanout) DataFlow() component.FlowMetrics {
	written := f.linesWritten.Load()
	errorCount := f.writeErrors.Load()

	var errorRate float64
	if written > 0 {
		errorRate = float64(errorCount) / float64(written)
	}

	var last time.Time
	if nanos := f.lastActivity.Load(); nanos > 0 {
		last = time.Unix(0, nanos)
	}

	return component.FlowMetrics{
		ErrorRate:    errorRate,
		LastActivity: last,
	}
}
