// Package http provides the REST gateway over the acquisition engine:
// run control, status, snapshot and config endpoints, plus a WebSocket
// snapshot stream for dashboards that prefer push over polling.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MaigomAS/Quicklook/acquire"
	"github.com/MaigomAS/Quicklook/component"
	"github.com/MaigomAS/Quicklook/errors"
	"github.com/MaigomAS/Quicklook/health"
)

// maxRequestSize bounds config update bodies
const maxRequestSize = 1 << 20

// getOrGenerateRequestID extracts request ID from headers or generates
// a new one for request tracing
func getOrGenerateRequestID(r *http.Request) string {
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		return reqID
	}

	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// Gateway serves the acquisition API over HTTP
type Gateway struct {
	engine      *acquire.Engine
	monitor     *health.Monitor
	corsOrigins []string
	logger      *slog.Logger

	running atomic.Bool

	mu           sync.RWMutex
	startTime    time.Time
	lastActivity time.Time

	requestsTotal  atomic.Uint64
	requestsFailed atomic.Uint64

	streamInterval time.Duration
	streamClients  atomic.Int64
}

// NewGateway creates a gateway over the given engine. Empty
// corsOrigins allows any origin.
func NewGateway(engine *acquire.Engine, monitor *health.Monitor, corsOrigins []string, logger *slog.Logger) (*Gateway, error) {
	if engine == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Gateway", "NewGateway",
			"acquisition engine is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	return &Gateway{
		engine:         engine,
		monitor:        monitor,
		corsOrigins:    corsOrigins,
		logger:         logger.With("component", "http-gateway"),
		streamInterval: time.Second,
	}, nil
}

// Initialize prepares the gateway
func (g *Gateway) Initialize() error {
	return nil
}

// Start begins serving. The HTTP server itself is owned by the caller;
// Start only flips the gateway into its running state.
func (g *Gateway) Start(_ context.Context) error {
	if g.running.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyRunning, "Gateway", "Start",
			"gateway already running")
	}

	g.mu.Lock()
	g.running.Store(true)
	g.startTime = time.Now()
	g.mu.Unlock()
	return nil
}

// Stop stops the gateway
func (g *Gateway) Stop(_ time.Duration) error {
	g.running.Store(false)
	return nil
}

// RegisterHTTPHandlers registers the acquisition routes with the mux
func (g *Gateway) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	mux.HandleFunc(prefix+"start", g.handle(http.MethodPost, g.handleStart))
	mux.HandleFunc(prefix+"stop", g.handle(http.MethodPost, g.handleStop))
	mux.HandleFunc(prefix+"status", g.handle(http.MethodGet, g.handleStatus))
	mux.HandleFunc(prefix+"snapshot", g.handle(http.MethodGet, g.handleSnapshot))
	mux.HandleFunc(prefix+"config", g.handleConfigRoute)
	mux.HandleFunc(prefix+"health", g.handle(http.MethodGet, g.handleHealth))
	mux.HandleFunc(prefix+"stream", g.handleStream)
}

// handle wraps a route with method filtering, CORS and request
// accounting
func (g *Gateway) handle(method string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := getOrGenerateRequestID(r)
		w.Header().Set("X-Request-ID", requestID)

		g.requestsTotal.Add(1)
		g.mu.Lock()
		g.lastActivity = time.Now()
		g.mu.Unlock()

		g.applyCORS(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method != method {
			g.writeError(w, http.StatusMethodNotAllowed,
				fmt.Sprintf("method %s not allowed", r.Method))
			g.requestsFailed.Add(1)
			return
		}

		fn(w, r)
	}
}

// handleConfigRoute dispatches config reads and updates
func (g *Gateway) handleConfigRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.handle(http.MethodGet, g.handleConfigGet)(w, r)
	case http.MethodPut, http.MethodPost:
		g.handle(r.Method, g.handleConfigUpdate)(w, r)
	default:
		g.handle(http.MethodGet, g.handleConfigGet)(w, r)
	}
}

func (g *Gateway) handleStart(w http.ResponseWriter, _ *http.Request) {
	status := g.engine.StartRun()
	g.writeJSON(w, http.StatusOK, map[string]any{
		"running":   status.Running,
		"connected": status.Connected,
	})
}

func (g *Gateway) handleStop(w http.ResponseWriter, _ *http.Request) {
	status := g.engine.StopRun()
	g.writeJSON(w, http.StatusOK, map[string]any{
		"running":   status.Running,
		"connected": status.Connected,
	})
}

func (g *Gateway) handleStatus(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, g.engine.Status())
}

func (g *Gateway) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, g.engine.Snapshot())
}

func (g *Gateway) handleConfigGet(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, g.engine.Config())
}

func (g *Gateway) handleConfigUpdate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize+1))
	if err != nil {
		g.writeError(w, http.StatusBadRequest, "failed to read request body")
		g.requestsFailed.Add(1)
		return
	}
	if len(body) > maxRequestSize {
		g.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		g.requestsFailed.Add(1)
		return
	}

	var update map[string]any
	if err := json.Unmarshal(body, &update); err != nil {
		g.writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		g.requestsFailed.Add(1)
		return
	}

	payload, err := g.engine.UpdateConfig(update)
	if err != nil {
		g.writeError(w, g.mapErrorToHTTPStatus(err), err.Error())
		g.requestsFailed.Add(1)
		return
	}

	g.writeJSON(w, http.StatusOK, payload)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if g.monitor == nil {
		g.writeJSON(w, http.StatusOK, health.NewHealthy("quicklook", "no monitored components"))
		return
	}

	agg := g.monitor.AggregateHealth("quicklook")
	code := http.StatusOK
	if agg.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	g.writeJSON(w, code, agg)
}

// applyCORS applies CORS headers to the response
func (g *Gateway) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")

	allowed := false
	for _, allowedOrigin := range g.corsOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			allowed = true
			break
		}
	}

	if allowed {
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "3600")
	}
}

// mapErrorToHTTPStatus maps classified errors to HTTP status codes
func (g *Gateway) mapErrorToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusInternalServerError
	case errors.IsConflict(err):
		return http.StatusConflict
	case errors.IsInvalid(err):
		return http.StatusBadRequest
	case errors.IsTransient(err):
		if strings.Contains(err.Error(), "timeout") {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (g *Gateway) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		g.logger.Warn("response write failed", "error", err)
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, statusCode int, message string) {
	g.writeJSON(w, statusCode, map[string]any{
		"error":  message,
		"status": statusCode,
	})
}

// Meta returns component metadata
func (g *Gateway) Meta() component.Metadata {
	return component.Metadata{
		Name:        "http-gateway",
		Type:        "gateway",
		Description: "REST and WebSocket gateway over the acquisition engine",
		Version:     "0.1.0",
	}
}

// Health returns the current health status
func (g *Gateway) Health() component.HealthStatus {
	g.mu.RLock()
	startTime := g.startTime
	g.mu.RUnlock()

	var uptime time.Duration
	if !startTime.IsZero() {
		uptime = time.Since(startTime)
	}
	return component.HealthStatus{
		Healthy:    g.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(g.requestsFailed.Load()),
		Uptime:     uptime,
	}
}

// DataFlow returns current data flow metrics
func (g *Gateway) DataFlow() component.FlowMetrics {
	g.mu.RLock()
	startTime := g.startTime
	lastActivity := g.lastActivity
	g.mu.RUnlock()

	total := g.requestsTotal.Load()
	failed := g.requestsFailed.Load()

	var errorRate float64
	if total > 0 {
		errorRate = float64(failed) / float64(total)
	}

	var requestsPerSecond float64
	if uptime := time.Since(startTime).Seconds(); uptime > 0 {
		requestsPerSecond = float64(total) / uptime
	}

	return component.FlowMetrics{
		MessagesPerSecond: requestsPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}
