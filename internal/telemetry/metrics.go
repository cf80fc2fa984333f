// Package telemetry exposes Prometheus metrics for search activity.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all wsgrep metrics. Register one instance per process.
type Metrics struct {
	searchesTotal  *prometheus.CounterVec
	searchDuration prometheus.Histogram
	filesScanned   prometheus.Counter
	filesSkipped   prometheus.Counter
	linesMatched   prometheus.Counter
}

// NewMetrics creates and registers metrics on reg. Pass
// prometheus.DefaultRegisterer outside of tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		searchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wsgrep_searches_total",
			Help: "Completed search requests by terminal outcome (completed, or the failure reason).",
		}, []string{"outcome"}),
		searchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wsgrep_search_duration_seconds",
			Help:    "Wall time of the full search pipeline, submission to terminal status.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		filesScanned: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsgrep_files_scanned_total",
			Help: "Files opened and tested against the pattern.",
		}),
		filesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsgrep_files_skipped_total",
			Help: "Files that could not be evaluated (binary, unreadable, oversize).",
		}),
		linesMatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsgrep_lines_matched_total",
			Help: "Matching lines emitted across all searches.",
		}),
	}
}

// ObserveSearch records one finished search request.
func (m *Metrics) ObserveSearch(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.searchesTotal.WithLabelValues(outcome).Inc()
	m.searchDuration.Observe(elapsed.Seconds())
}

// ObserveScan records scan counters from one completed scan.
func (m *Metrics) ObserveScan(scanned, skipped, matchedLines int) {
	if m == nil {
		return
	}
	m.filesScanned.Add(float64(scanned))
	m.filesSkipped.Add(float64(skipped))
	m.linesMatched.Add(float64(matchedLines))
}
