package acquire

import (
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaigomAS/Quicklook/config"
	"github.com/MaigomAS/Quicklook/errors"
)

func replayConfig(t *testing.T, lines string) config.AcquisitionConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recording.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	cfg := config.DefaultAcquisition()
	cfg.Mode = config.ModeReplay
	cfg.ReplayPath = path
	cfg.ReplaySpeed = 10_000 // compress replay pacing to microseconds
	cfg.WindowS = 1
	cfg.Channels = 4
	return cfg
}

func waitIdle(t *testing.T, e *Engine) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !e.Status().Running
	}, 5*time.Second, 5*time.Millisecond, "run did not finish")
}

func TestEngine_ReplayRun(t *testing.T) {
	lines := `{"t_us":1000,"channel":0,"adc_x":100,"adc_gtop":50,"adc_gbot":60}
not json at all
{"t_us":500000,"channel":1,"adc_x":200,"adc_gtop":70,"adc_gbot":80}
{"t_us":600000,"channel":9,"adc_x":10,"adc_gtop":10,"adc_gbot":10}
{"t_us":1001000,"channel":2,"adc_x":300,"adc_gtop":90,"adc_gbot":95}
`
	e := NewEngine(replayConfig(t, lines), nil, nil)
	require.NoError(t, e.Initialize())

	status := e.StartRun()
	assert.True(t, status.Running)
	assert.Equal(t, config.ModeReplay, status.Mode)

	waitIdle(t, e)

	status = e.Status()
	assert.Empty(t, status.LastError)

	snap := e.Snapshot()
	require.NotEmpty(t, snap.RunID)
	assert.Equal(t, int64(1000), snap.TStartUs)
	assert.Equal(t, int64(1_001_000), snap.TEndUs)

	// Three valid in-range events; channel 9 is outside [0,4).
	var total int64
	for _, c := range snap.CountsByChannel {
		total += c
	}
	assert.Equal(t, int64(3), total)
	assert.Equal(t, int64(1), snap.CountsByChannel["0"])
	assert.Equal(t, int64(1), snap.CountsByChannel["1"])
	assert.Equal(t, int64(1), snap.CountsByChannel["2"])

	assert.Equal(t, int64(1), snap.Quality.InvalidJSON)
	assert.Equal(t, int64(1), snap.Quality.InvalidJSONLines)
	assert.Equal(t, int64(1), snap.Quality.InvalidChannel)
	assert.Equal(t, int64(1), snap.Quality.InvalidChannelID)
	assert.Equal(t, int64(0), snap.Quality.InvalidFields)

	assert.Equal(t, []float64{1}, snap.RateHistory["0"])
	assert.Equal(t, []int64{1_001_000}, snap.RateHistoryTEndUs)
}

func TestEngine_FinalPartialWindowIsPublished(t *testing.T) {
	// Never spans a full 1 s window; only the forced final publish
	// makes this data visible.
	lines := `{"t_us":1000,"channel":0,"adc_x":100}
{"t_us":2000,"channel":1,"adc_x":200}
`
	e := NewEngine(replayConfig(t, lines), nil, nil)
	e.StartRun()
	waitIdle(t, e)

	snap := e.Snapshot()
	assert.Equal(t, int64(1), snap.CountsByChannel["0"])
	assert.Equal(t, int64(1), snap.CountsByChannel["1"])
	assert.Equal(t, int64(1000), snap.TStartUs)
	assert.Equal(t, int64(2000), snap.TEndUs)
}

func TestEngine_SnapshotPlaceholderBeforeAnyWindow(t *testing.T) {
	cfg := config.DefaultAcquisition()
	cfg.WindowS = 10
	e := NewEngine(cfg, nil, nil)

	snap := e.Snapshot()
	assert.Equal(t, 10, snap.WindowS)
	assert.Empty(t, snap.Channels)
	assert.Equal(t, []string{"no data yet"}, snap.Notes)
	assert.Empty(t, snap.RunID)
}

func TestEngine_StartIdempotentStopIdleNoop(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	hold := make(chan struct{})
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		<-hold
		conn.Close()
	}()

	addr := listener.Addr().(*net.TCPAddr)
	cfg := config.DefaultAcquisition()
	cfg.SimHost = "127.0.0.1"
	cfg.SimPort = addr.Port
	cfg.Channels = 4

	e := NewEngine(cfg, nil, nil)

	first := e.StartRun()
	second := e.StartRun()
	assert.True(t, first.Running)
	assert.True(t, second.Running)

	require.Eventually(t, func() bool {
		return e.Status().Connected
	}, 2*time.Second, 5*time.Millisecond)

	status := e.StopRun()
	assert.False(t, status.Running)
	assert.False(t, status.Connected)

	// Stopping again while idle is a no-op.
	status = e.StopRun()
	assert.False(t, status.Running)

	close(hold)
}

func TestEngine_ConcurrentStopCallsAreSafe(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	hold := make(chan struct{})
	defer close(hold)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		<-hold
		conn.Close()
	}()

	addr := listener.Addr().(*net.TCPAddr)
	cfg := config.DefaultAcquisition()
	cfg.SimHost = "127.0.0.1"
	cfg.SimPort = addr.Port
	cfg.Channels = 4

	e := NewEngine(cfg, nil, nil)
	e.StartRun()
	require.Eventually(t, func() bool {
		return e.Status().Connected
	}, 2*time.Second, 5*time.Millisecond)

	// Racing StopRun and Stop against the same run must close the stop
	// channel exactly once.
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			if i%2 == 0 {
				e.StopRun()
			} else {
				_ = e.Stop(500 * time.Millisecond)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	status := e.Status()
	assert.False(t, status.Running)
	assert.False(t, status.Connected)
}

func TestEngine_ReplayPacesGapsBeforeRejectedChannels(t *testing.T) {
	// 500 ms of event time precedes the out-of-range channel line.
	lines := `{"t_us":1000,"channel":0,"adc_x":100}
{"t_us":501000,"channel":9,"adc_x":10}
`
	cfg := replayConfig(t, lines)
	cfg.ReplaySpeed = 10 // paced down to 50 ms

	e := NewEngine(cfg, nil, nil)
	start := time.Now()
	e.StartRun()
	waitIdle(t, e)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond,
		"the gap before a channel-rejected line must still be paced")

	snap := e.Snapshot()
	assert.Equal(t, int64(1), snap.Quality.InvalidChannel)
	assert.Equal(t, int64(1), snap.CountsByChannel["0"])
}

func TestEngine_StopTimeoutAppliesToSingleCall(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	hold := make(chan struct{})
	defer close(hold)
	go func() {
		for i := 0; i < 2; i++ {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			if i == 1 {
				conn.Write([]byte("{\"t_us\":1000,\"channel\":1,\"adc_x\":50}\n"))
			}
			go func(c net.Conn) {
				<-hold
				c.Close()
			}(conn)
		}
	}()

	addr := listener.Addr().(*net.TCPAddr)
	cfg := config.DefaultAcquisition()
	cfg.SimHost = "127.0.0.1"
	cfg.SimPort = addr.Port
	cfg.Channels = 4

	e := NewEngine(cfg, nil, nil)
	e.StartRun()
	require.Eventually(t, func() bool {
		return e.Status().Connected
	}, 2*time.Second, 5*time.Millisecond)

	// A one-off aggressive timeout forces idle without the join.
	require.NoError(t, e.Stop(time.Nanosecond))
	assert.False(t, e.Status().Running)

	// The next run gets the default join wait back: once the worker
	// has ingested the event, StopRun must return only after the
	// worker flushed its final partial window.
	e.StartRun()
	require.Eventually(t, func() bool {
		return !e.DataFlow().LastActivity.IsZero()
	}, 2*time.Second, 5*time.Millisecond, "worker never ingested the event")

	status := e.StopRun()
	assert.False(t, status.Running)

	snap := e.Snapshot()
	assert.Equal(t, int64(1), snap.CountsByChannel["1"],
		"partial window published before StopRun returned")
}

func TestEngine_LiveConnectFailureRecordsLastError(t *testing.T) {
	cfg := config.DefaultAcquisition()
	cfg.SimHost = "127.0.0.1"
	cfg.SimPort = 1 // nothing listens here
	cfg.Channels = 4

	e := NewEngine(cfg, nil, nil)
	e.StartRun()
	waitIdle(t, e)

	status := e.Status()
	assert.False(t, status.Running)
	assert.False(t, status.Connected)
	assert.NotEmpty(t, status.LastError)
}

func TestEngine_RecordModeTeesToFile(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	payload := "{\"t_us\":1000,\"channel\":0,\"adc_x\":100}\n{\"t_us\":2000,\"channel\":1,\"adc_x\":200}\n"
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte(payload))
		conn.Close()
	}()

	addr := listener.Addr().(*net.TCPAddr)
	recordPath := filepath.Join(t.TempDir(), "run.jsonl")

	cfg := config.DefaultAcquisition()
	cfg.Mode = config.ModeRecord
	cfg.SimHost = "127.0.0.1"
	cfg.SimPort = addr.Port
	cfg.RecordPath = recordPath
	cfg.Channels = 4

	e := NewEngine(cfg, nil, nil)
	e.StartRun()
	waitIdle(t, e)

	recorded, err := os.ReadFile(recordPath)
	require.NoError(t, err)
	assert.Equal(t, payload, string(recorded))

	snap := e.Snapshot()
	assert.Equal(t, int64(1), snap.CountsByChannel["0"])
	assert.Equal(t, int64(1), snap.CountsByChannel["1"])
}

func TestEngine_UpdateConfig(t *testing.T) {
	cfg := config.DefaultAcquisition()
	cfg.Channels = 4
	e := NewEngine(cfg, nil, nil)

	// Validation failures.
	_, err := e.UpdateConfig(map[string]any{})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = e.UpdateConfig(map[string]any{"window_s": 0})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = e.UpdateConfig(map[string]any{"channels": 65})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// A valid update applies and resets the published snapshot.
	payload, err := e.UpdateConfig(map[string]any{"window_s": 5})
	require.NoError(t, err)
	assert.Equal(t, 5, payload.WindowS)
	assert.Equal(t, config.MaxWindowSeconds, payload.Limits.WindowS.Max)

	snap := e.Snapshot()
	assert.Equal(t, 5, snap.WindowS)
	assert.Equal(t, []string{"no data yet"}, snap.Notes)
}

func TestEngine_UpdateConfigConflictWhileRunning(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	hold := make(chan struct{})
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		<-hold
		conn.Close()
	}()

	addr := listener.Addr().(*net.TCPAddr)
	cfg := config.DefaultAcquisition()
	cfg.SimHost = "127.0.0.1"
	cfg.SimPort = addr.Port
	cfg.Channels = 4

	e := NewEngine(cfg, nil, nil)
	e.StartRun()
	defer func() {
		close(hold)
		e.StopRun()
	}()

	_, err = e.UpdateConfig(map[string]any{"window_s": 5})
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))

	assert.Equal(t, config.DefaultAcquisition().WindowS, e.Config().WindowS)
}

func TestEngine_NewRunResetsQualityAndHistory(t *testing.T) {
	lines := `garbage line
{"t_us":1000,"channel":0,"adc_x":100}
`
	cfg := replayConfig(t, lines)
	e := NewEngine(cfg, nil, nil)

	e.StartRun()
	waitIdle(t, e)
	firstRun := e.Snapshot().RunID
	assert.Equal(t, int64(1), e.Snapshot().Quality.InvalidJSON)

	e.StartRun()
	waitIdle(t, e)
	snap := e.Snapshot()
	assert.NotEqual(t, firstRun, snap.RunID, "each run carries a fresh generation token")
	assert.Equal(t, int64(1), snap.Quality.InvalidJSON, "counters reset then re-count the replayed garbage")
	assert.Len(t, snap.RateHistoryTEndUs, 1)
}
