package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveSearch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveSearch("completed", 50*time.Millisecond)
	m.ObserveSearch("completed", 10*time.Millisecond)
	m.ObserveSearch("cancelled", time.Second)

	assert.Equal(t, float64(2),
		testutil.ToFloat64(m.searchesTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.searchesTotal.WithLabelValues("cancelled")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.searchDuration))
}

func TestObserveScan(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveScan(10, 2, 7)
	m.ObserveScan(5, 0, 0)

	assert.Equal(t, float64(15), testutil.ToFloat64(m.filesScanned))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.filesSkipped))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.linesMatched))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveSearch("completed", time.Second)
		m.ObserveScan(1, 1, 1)
	})
}

func TestMetricsRegisterOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	// A second instance on the same registry is a duplicate registration.
	require.Panics(t, func() { NewMetrics(reg) })
}
