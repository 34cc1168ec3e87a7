package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaigomAS/Quicklook/acquire"
	"github.com/MaigomAS/Quicklook/config"
	"github.com/MaigomAS/Quicklook/health"
)

func newTestGateway(t *testing.T) (*Gateway, *acquire.Engine) {
	t.Helper()

	cfg := config.DefaultAcquisition()
	cfg.Channels = 4
	engine := acquire.NewEngine(cfg, nil, nil)

	monitor := health.NewMonitor()
	monitor.UpdateHealthy("engine", "idle")

	g, err := NewGateway(engine, monitor, nil, nil)
	require.NoError(t, err)
	require.NoError(t, g.Start(context.Background()))
	t.Cleanup(func() { g.Stop(time.Second) })
	return g, engine
}

func newTestServer(t *testing.T) (*httptest.Server, *acquire.Engine) {
	t.Helper()
	g, engine := newTestGateway(t)

	mux := http.NewServeMux()
	g.RegisterHTTPHandlers("/api/acquisition", mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, engine
}

func TestGateway_StatusEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/acquisition/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var status acquire.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.False(t, status.Running)
	assert.Equal(t, config.ModeLive, status.Mode)
}

func TestGateway_SnapshotPlaceholder(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/acquisition/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()

	var snap map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, []any{"no data yet"}, snap["notes"])
}

func TestGateway_StartStopLifecycle(t *testing.T) {
	server, _ := newTestServer(t)

	// Stop while idle is a no-op.
	resp, err := http.Post(server.URL+"/api/acquisition/stop", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, false, payload["running"])

	// Method filtering: GET on a POST route.
	resp, err = http.Get(server.URL + "/api/acquisition/start")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestGateway_ConfigReadAndUpdate(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/acquisition/config")
	require.NoError(t, err)
	defer resp.Body.Close()

	var cfg map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	assert.Equal(t, float64(4), cfg["channels"])
	limits, ok := cfg["limits"].(map[string]any)
	require.True(t, ok)
	windowLimits := limits["window_s"].(map[string]any)
	assert.Equal(t, float64(3600), windowLimits["max"])

	// Valid update.
	req, err := http.NewRequest(http.MethodPut, server.URL+"/api/acquisition/config",
		strings.NewReader(`{"window_s": 7}`))
	require.NoError(t, err)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	var updated map[string]any
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&updated))
	assert.Equal(t, float64(7), updated["window_s"])
}

func TestGateway_ConfigUpdateValidation(t *testing.T) {
	server, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "empty object", body: `{}`, want: http.StatusBadRequest},
		{name: "window out of range", body: `{"window_s": 0}`, want: http.StatusBadRequest},
		{name: "too many channels", body: `{"channels": 65}`, want: http.StatusBadRequest},
		{name: "unknown field", body: `{"window_seconds": 5}`, want: http.StatusBadRequest},
		{name: "not an object", body: `[1,2]`, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPut, server.URL+"/api/acquisition/config",
				strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestGateway_ConfigUpdateConflictWhileRunning(t *testing.T) {
	// Replay a file that blocks long enough to observe the conflict.
	path := filepath.Join(t.TempDir(), "rec.jsonl")
	lines := `{"t_us":1000,"channel":0}
{"t_us":60000000,"channel":1}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	cfg := config.DefaultAcquisition()
	cfg.Mode = config.ModeReplay
	cfg.ReplayPath = path
	cfg.ReplaySpeed = 1 // 60 s gap at real speed keeps the run alive
	cfg.Channels = 4
	engine := acquire.NewEngine(cfg, nil, nil)

	g, err := NewGateway(engine, nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, g.Start(context.Background()))

	mux := http.NewServeMux()
	g.RegisterHTTPHandlers("/api/acquisition", mux)
	server := httptest.NewServer(mux)
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/acquisition/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer engine.StopRun()

	req, err := http.NewRequest(http.MethodPut, server.URL+"/api/acquisition/config",
		strings.NewReader(`{"window_s": 5}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGateway_CORSHeaders(t *testing.T) {
	server, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, server.URL+"/api/acquisition/status", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestGateway_HealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/acquisition/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status health.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.Healthy)
}

func TestGateway_SnapshotStream(t *testing.T) {
	server, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/acquisition/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap map[string]any
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, []any{"no data yet"}, snap["notes"])
}
