package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics for the query gateway.
type Metrics struct {
	// Query pipeline metrics
	QueriesTotal    *prometheus.CounterVec   // by endpoint class and terminal status
	QueryDuration   *prometheus.HistogramVec // end-to-end pipeline duration
	QueryAttempts   *prometheus.HistogramVec // attempts per query
	LintBlocksTotal *prometheus.CounterVec   // by linter rule
	RepairsTotal    *prometheus.CounterVec   // by repair kind
	CacheServed     *prometheus.CounterVec   // results served from cache

	// Throttle metrics
	ThrottleWaits   *prometheus.CounterVec // waits imposed, by endpoint class
	ThrottleBackoff *prometheus.GaugeVec   // current consecutive 429 count

	// Grounding provider metrics
	GroundingLookups *prometheus.CounterVec // by lookup kind and status
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sparqlgate",
				Subsystem: "query",
				Name:      "total",
				Help:      "Total number of queries processed, by endpoint class and terminal status",
			},
			[]string{"class", "status"},
		),

		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sparqlgate",
				Subsystem: "query",
				Name:      "duration_seconds",
				Help:      "End-to-end query pipeline duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"class"},
		),

		QueryAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sparqlgate",
				Subsystem: "query",
				Name:      "attempts",
				Help:      "Execution attempts per query including repairs",
				Buckets:   []float64{1, 2, 3},
			},
			[]string{"class"},
		),

		LintBlocksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sparqlgate",
				Subsystem: "lint",
				Name:      "blocks_total",
				Help:      "Queries blocked by the safety linter, by rule",
			},
			[]string{"rule"},
		),

		RepairsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sparqlgate",
				Subsystem: "repair",
				Name:      "total",
				Help:      "Auto-repair actions applied, by kind",
			},
			[]string{"kind"},
		),

		CacheServed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sparqlgate",
				Subsystem: "query",
				Name:      "cache_served_total",
				Help:      "Queries answered from the result cache",
			},
			[]string{"class"},
		),

		ThrottleWaits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sparqlgate",
				Subsystem: "throttle",
				Name:      "waits_total",
				Help:      "Throttle-imposed waits, by endpoint class",
			},
			[]string{"class"},
		),

		ThrottleBackoff: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "sparqlgate",
				Subsystem: "throttle",
				Name:      "consecutive_rate_limits",
				Help:      "Current consecutive rate-limit count driving backoff",
			},
			[]string{"class"},
		),

		GroundingLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sparqlgate",
				Subsystem: "grounding",
				Name:      "lookups_total",
				Help:      "Grounding provider lookups, by kind and status",
			},
			[]string{"kind", "status"},
		),
	}
}
