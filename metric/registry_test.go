package metric

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_CoreMetricsRegistered(t *testing.T) {
	registry := NewRegistry()
	require.NotNil(t, registry.CoreMetrics())

	registry.Metrics.RecordRunning(true)
	registry.Metrics.RecordRejected("invalid_json")
	registry.Metrics.RecordWindowPublished(42)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}

	assert.True(t, names["quicklook_acquisition_running"])
	assert.True(t, names["quicklook_acquisition_events_rejected_total"])
	assert.True(t, names["quicklook_acquisition_windows_published_total"])
	assert.True(t, names["quicklook_acquisition_window_event_count"])
}

func TestRegistry_SnapshotAgeAdvancesAfterPublish(t *testing.T) {
	registry := NewRegistry()

	age := func() float64 {
		t.Helper()
		families, err := registry.PrometheusRegistry().Gather()
		require.NoError(t, err)
		for _, f := range families {
			if f.GetName() == "quicklook_acquisition_snapshot_age_seconds" {
				require.Len(t, f.GetMetric(), 1)
				return f.GetMetric()[0].GetGauge().GetValue()
			}
		}
		t.Fatal("snapshot age gauge not gathered")
		return 0
	}

	assert.Equal(t, 0.0, age(), "zero before the first publish")

	registry.Metrics.RecordSnapshotPublished()
	time.Sleep(20 * time.Millisecond)
	assert.Greater(t, age(), 0.0, "age keeps advancing between publishes")
}

func TestRegistry_RegisterAndUnregister(t *testing.T) {
	registry := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_test_lines",
		Help: "test counter",
	})

	err := registry.RegisterCounter("fanout", "test_lines", counter)
	require.NoError(t, err)

	// Duplicate component/metric key must be rejected.
	err = registry.RegisterCounter("fanout", "test_lines", counter)
	assert.Error(t, err)

	assert.True(t, registry.Unregister("fanout", "test_lines"))
	assert.False(t, registry.Unregister("fanout", "test_lines"))

	// After unregistering the metric can be registered again.
	err = registry.RegisterCounter("fanout", "test_lines", counter)
	assert.NoError(t, err)
}

func TestRegistry_PrometheusConflict(t *testing.T) {
	registry := NewRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_depth",
		Help: "test gauge",
	})
	other := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_depth",
		Help: "test gauge",
	})

	require.NoError(t, registry.RegisterGauge("engine", "depth", gauge))

	// Same prometheus name under a different key conflicts at the
	// prometheus layer, not at the key map.
	err := registry.RegisterGauge("engine2", "depth", other)
	assert.Error(t, err)
}
