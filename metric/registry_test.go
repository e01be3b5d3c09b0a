package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_CoreMetricsRegistered(t *testing.T) {
	r := NewRegistry()
	require.NotNil(t, r.CoreMetrics())

	// Core metrics are usable immediately
	r.CoreMetrics().QueriesTotal.WithLabelValues("wikidata", "ok").Inc()
	r.CoreMetrics().LintBlocksTotal.WithLabelValues("unbounded_path").Inc()

	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["sparqlgate_query_total"])
	assert.True(t, names["sparqlgate_lint_blocks_total"])
}

func TestRegisterCounter(t *testing.T) {
	r := NewRegistry()

	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter_total",
		Help: "test",
	})
	require.NoError(t, r.RegisterCounter("test", "counter", c))

	// Same component/name pair is rejected
	err := r.RegisterCounter("test", "counter", c)
	assert.Error(t, err)
}

func TestRegisterGaugeAndHistogram(t *testing.T) {
	r := NewRegistry()

	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "test"})
	require.NoError(t, r.RegisterGauge("test", "gauge", g))

	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_hist", Help: "test"})
	require.NoError(t, r.RegisterHistogram("test", "hist", h))
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()

	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"})
	require.NoError(t, r.RegisterCounter("test", "c", c))

	assert.True(t, r.Unregister("test", "c"))
	assert.False(t, r.Unregister("test", "c"))

	// Re-registration works after unregister
	assert.NoError(t, r.RegisterCounter("test", "c", c))
}
