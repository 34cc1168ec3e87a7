// Package acquire implements the acquisition engine: a per-run
// background worker that reads line-delimited event JSON from a live
// socket, a live socket tee'd to a recording, or a paced replay file,
// validates each event, accumulates time-bounded aggregation windows
// and publishes immutable snapshots for concurrent readers.
package acquire

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MaigomAS/Quicklook/component"
	"github.com/MaigomAS/Quicklook/config"
	"github.com/MaigomAS/Quicklook/errors"
	"github.com/MaigomAS/Quicklook/metric"
)

const (
	// connectTimeout bounds the live-mode dial
	connectTimeout = 5 * time.Second
	// defaultStopTimeout bounds the join wait in StopRun
	defaultStopTimeout = 2 * time.Second
)

// Status is the run-state payload served by the status and start/stop
// operations
type Status struct {
	Running     bool    `json:"running"`
	Connected   bool    `json:"connected"`
	LastError   string  `json:"last_error,omitempty"`
	Mode        string  `json:"mode"`
	RecordPath  string  `json:"record_path,omitempty"`
	ReplayPath  string  `json:"replay_path,omitempty"`
	ReplaySpeed float64 `json:"replay_speed"`
}

// Range is an inclusive integer bound
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Limits declares the accepted bounds for config updates
type Limits struct {
	WindowS  Range `json:"window_s"`
	Channels Range `json:"channels"`
}

// DefaultLimits returns the declared configuration bounds
func DefaultLimits() Limits {
	return Limits{
		WindowS:  Range{Min: config.MinWindowSeconds, Max: config.MaxWindowSeconds},
		Channels: Range{Min: config.MinChannels, Max: config.MaxChannels},
	}
}

// ConfigPayload is the config read response: the active acquisition
// config plus its declared limits
type ConfigPayload struct {
	config.AcquisitionConfig
	Limits Limits `json:"limits"`
}

// Engine coordinates acquisition runs. One background worker exists
// per run; everything the worker and concurrent API readers share sits
// behind a single mutex. Each run carries a generation token (a UUID)
// so a worker that outlives its bounded stop join cannot touch the
// state of a later run.
type Engine struct {
	logger  *slog.Logger
	metrics *metric.Metrics

	mu            sync.Mutex
	cfg           config.AcquisitionConfig
	running       bool
	connected     bool
	stopRequested bool
	lastError     string
	runID         string
	stopCh        chan struct{}
	doneCh        chan struct{}
	window    *Window
	history   *RateHistory
	quality   QualityCounters
	latest    *Snapshot

	startTime    time.Time
	ingested     int64
	accepted     int64
	lastActivity time.Time
}

// NewEngine creates an engine with the given acquisition defaults
func NewEngine(cfg config.AcquisitionConfig, logger *slog.Logger, metrics *metric.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:  logger.With("component", "engine"),
		metrics: metrics,
		cfg:     cfg,
		window:  NewWindow(cfg.WindowS),
		history: NewRateHistory(),
	}
}

// Initialize validates the configured defaults
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Validate()
}

// Start marks the engine ready. Acquisition runs are started
// explicitly through StartRun.
func (e *Engine) Start(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startTime = time.Now()
	return nil
}

// Stop ends any active run within the given timeout
func (e *Engine) Stop(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}
	e.stopRun(timeout)
	return nil
}

// StartRun launches the background worker. Idempotent: a second call
// while running reports the current status without spawning another
// worker.
func (e *Engine) StartRun() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return e.statusLocked()
	}

	cfg := e.cfg
	runID := uuid.NewString()

	e.running = true
	e.connected = false
	e.stopRequested = false
	e.lastError = ""
	e.runID = runID
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.window = NewWindow(cfg.WindowS)
	e.history.Reset()
	e.quality.Reset()
	e.ingested = 0
	e.accepted = 0

	if e.metrics != nil {
		e.metrics.RecordRunning(true)
	}
	e.logger.Info("acquisition run starting",
		"run_id", runID,
		"mode", cfg.Mode,
		"window_s", cfg.WindowS,
		"channels", cfg.Channels)

	go e.run(runID, cfg, e.stopCh, e.doneCh)

	return e.statusLocked()
}

// StopRun signals the worker and waits up to the default stop timeout
// for it to exit, then forces not-running state either way. Idempotent
// when idle.
func (e *Engine) StopRun() Status {
	return e.stopRun(defaultStopTimeout)
}

// stopRun closes the run's stop channel exactly once, under the mutex,
// so concurrent stop calls for the same run cannot race the close.
// Only the bounded join wait happens outside the lock.
func (e *Engine) stopRun(timeout time.Duration) Status {
	e.mu.Lock()
	if !e.running {
		defer e.mu.Unlock()
		return e.statusLocked()
	}

	if !e.stopRequested {
		e.stopRequested = true
		close(e.stopCh)
	}
	doneCh := e.doneCh
	e.mu.Unlock()

	select {
	case <-doneCh:
	case <-time.After(timeout):
		e.logger.Warn("worker did not exit within stop timeout, forcing idle state",
			"timeout", timeout)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// The run token stays in place: a worker that exits late can still
	// publish its final window, but only for this run, never a new one.
	e.running = false
	e.connected = false
	if e.metrics != nil {
		e.metrics.RecordRunning(false)
		e.metrics.RecordConnected(false)
	}
	return e.statusLocked()
}

// Status returns the current run state
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

func (e *Engine) statusLocked() Status {
	return Status{
		Running:     e.running,
		Connected:   e.connected,
		LastError:   e.lastError,
		Mode:        e.cfg.Mode,
		RecordPath:  e.cfg.RecordPath,
		ReplayPath:  e.cfg.ReplayPath,
		ReplaySpeed: e.cfg.ReplaySpeed,
	}
}

// Snapshot returns the latest published snapshot, or the empty
// placeholder if no window has closed yet. Snapshots are immutable
// after publish, so returning the shared pointer is safe.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.latest != nil {
		return e.latest
	}
	return EmptySnapshot(e.cfg.WindowS)
}

// Config returns the active acquisition config and its limits
func (e *Engine) Config() ConfigPayload {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ConfigPayload{AcquisitionConfig: e.cfg, Limits: DefaultLimits()}
}

// UpdateConfig applies a partial config update. Rejected with a
// conflict while a run is active and with a validation error when the
// update is empty, names an unknown field, or violates the limits. A
// successful update resets the window, the rate history and the
// published snapshot.
func (e *Engine) UpdateConfig(update map[string]any) (ConfigPayload, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ConfigPayload{}, errors.WrapConflict(errors.ErrRunConflict,
			"Engine", "UpdateConfig", "config is immutable while a run is active")
	}
	if len(update) == 0 {
		return ConfigPayload{}, errors.WrapInvalid(
			fmt.Errorf("%w: no fields supplied", errors.ErrInvalidConfig),
			"Engine", "UpdateConfig", "check update")
	}

	patched, err := e.cfg.Patch(update)
	if err != nil {
		return ConfigPayload{}, err
	}

	e.cfg = patched
	e.window = NewWindow(patched.WindowS)
	e.history.Reset()
	e.latest = nil

	e.logger.Info("acquisition config updated",
		"mode", patched.Mode,
		"window_s", patched.WindowS,
		"channels", patched.Channels)

	return ConfigPayload{AcquisitionConfig: e.cfg, Limits: DefaultLimits()}, nil
}

// run is the worker body for one acquisition run
func (e *Engine) run(runID string, cfg config.AcquisitionConfig, stopCh chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	var runErr error
	var src lineSource
	var rec *recorder

	switch cfg.Mode {
	case config.ModeReplay:
		src, runErr = openReplay(cfg.ReplayPath)
	default:
		src, runErr = openLive(cfg.SimHost, cfg.SimPort, connectTimeout)
		if runErr == nil && cfg.Mode == config.ModeRecord {
			rec, runErr = openRecorder(cfg.RecordPath)
			if runErr != nil {
				src.Close()
			}
		}
	}
	if runErr != nil {
		e.logger.Error("acquisition source open failed", "run_id", runID, "error", runErr)
		e.finishRun(runID, runErr)
		return
	}

	defer src.Close()
	if rec != nil {
		defer rec.Close()
	}

	e.setConnected(runID, true)

	var lastTUs int64
	for {
		line, err := src.Next(stopCh)
		if err != nil {
			if !stderrors.Is(err, errStopped) && !stderrors.Is(err, io.EOF) {
				runErr = err
			}
			break
		}

		line = []byte(strings.TrimSpace(string(line)))
		if len(line) == 0 {
			continue
		}

		if rec != nil {
			if err := rec.Write(line); err != nil {
				runErr = err
				break
			}
		}

		if e.metrics != nil {
			e.metrics.EventsIngested.Inc()
		}

		ev, verdict := ValidateLine(line, cfg.Channels)

		// Pace on every line with a usable timestamp, not just accepted
		// ones, so gaps before channel-rejected lines are still honored.
		if cfg.Mode == config.ModeReplay && ev.TUs > 0 {
			if lastTUs != 0 {
				if !e.pace(stopCh, ev.TUs-lastTUs, cfg.ReplaySpeed) {
					break
				}
			}
			lastTUs = ev.TUs
		}

		e.ingest(runID, ev, verdict)
	}

	e.finishRun(runID, runErr)
}

// pace sleeps the replay inter-event gap, scaled by replay speed.
// Returns false if the stop signal fired during the sleep.
func (e *Engine) pace(stopCh <-chan struct{}, deltaUs int64, speed float64) bool {
	if deltaUs <= 0 {
		return true
	}
	if speed < config.MinReplaySpeed {
		speed = config.MinReplaySpeed
	}
	delay := time.Duration(float64(deltaUs) / speed * float64(time.Microsecond))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-stopCh:
		return false
	case <-timer.C:
		return true
	}
}

// ingest applies one validated line to the run state. Quality counter
// mutation and window aggregation share the critical section so the
// two can never disagree.
func (e *Engine) ingest(runID string, ev ValidatedEvent, verdict Rejection) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runID != runID {
		return
	}

	e.ingested++
	e.lastActivity = time.Now()

	if verdict != Accepted {
		e.quality.Record(verdict)
		if e.metrics != nil {
			e.metrics.RecordRejected(verdict.String())
		}
		return
	}

	e.accepted++
	if e.metrics != nil {
		e.metrics.EventsAccepted.Inc()
	}

	e.window.Add(ev)
	if e.window.ShouldClose() {
		e.publishLocked(runID)
	}
}

// publishLocked closes the open window into a new snapshot. Caller
// must hold e.mu.
func (e *Engine) publishLocked(runID string) {
	rates := e.window.Rates(e.cfg.Channels)
	e.history.Append(rates, e.window.TEndUs)

	snap := BuildSnapshot(e.window, e.cfg.Channels, e.history, e.quality, runID)
	eventCount := e.window.EventCount()
	e.latest = snap
	e.window.Reset()

	if e.metrics != nil {
		e.metrics.RecordWindowPublished(int(eventCount))
		e.metrics.RecordSnapshotPublished()
	}
	e.logger.Debug("window published",
		"run_id", runID,
		"t_start_us", snap.TStartUs,
		"t_end_us", snap.TEndUs,
		"events", eventCount)
}

// setConnected flips the source connection flag for the given run
func (e *Engine) setConnected(runID string, connected bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runID != runID {
		return
	}
	e.connected = connected
	if e.metrics != nil {
		e.metrics.RecordConnected(connected)
	}
}

// finishRun performs the terminal bookkeeping for a worker: final
// force-publish of a partial window, error recording, and the
// transition back to idle. Guarded by the run token so a worker that
// outlived its stop join cannot disturb a newer run.
func (e *Engine) finishRun(runID string, runErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runID != runID {
		return
	}

	if e.window.HasData() {
		e.publishLocked(runID)
	}
	e.window.Reset()

	if runErr != nil {
		e.lastError = runErr.Error()
	}
	e.running = false
	e.connected = false

	if e.metrics != nil {
		e.metrics.RecordRunning(false)
		e.metrics.RecordConnected(false)
	}
	e.logger.Info("acquisition run finished",
		"run_id", runID,
		"events_ingested", e.ingested,
		"events_accepted", e.accepted,
		"error", e.lastError)
}

// Meta returns component metadata
func (e *Engine) Meta() component.Metadata {
	return component.Metadata{
		Name:        "engine",
		Type:        "engine",
		Description: "Acquisition engine: validates, aggregates and publishes event windows",
		Version:     "0.1.0",
	}
}

// Health returns the current health status. The engine is healthy
// when idle or when a run is active with a live source; a run that
// died with an error reports unhealthy until the next start.
func (e *Engine) Health() component.HealthStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	var uptime time.Duration
	if !e.startTime.IsZero() {
		uptime = time.Since(e.startTime)
	}
	return component.HealthStatus{
		Healthy:   e.lastError == "",
		LastError: e.lastError,
		LastCheck: time.Now(),
		Uptime:    uptime,
	}
}

// DataFlow returns current data flow metrics
func (e *Engine) DataFlow() component.FlowMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errorRate float64
	if e.ingested > 0 {
		errorRate = float64(e.ingested-e.accepted) / float64(e.ingested)
	}
	return component.FlowMetrics{
		ErrorRate:    errorRate,
		LastActivity: e.lastActivity,
	}
}
