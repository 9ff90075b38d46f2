// Package metrics exposes Prometheus collectors for the mining pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Document outcomes.
const (
	OutcomeEnriched    = "enriched"
	OutcomeEmpty       = "empty"
	OutcomeUnsupported = "unsupported"
	OutcomeFailed      = "failed"
)

// Window outcomes.
const (
	WindowOK     = "ok"
	WindowEmpty  = "empty"
	WindowFailed = "failed"
)

// Metrics groups the collectors shared by every pipeline stage.
type Metrics struct {
	documents      *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	httpRetries    prometheus.Counter
	windows        *prometheus.CounterVec
	windowDuration prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		documents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eurovoc_documents_total",
				Help: "Candidate documents processed by body-fetch outcome",
			},
			[]string{"outcome"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eurovoc_body_cache_lookups_total",
				Help: "Body cache lookups by result",
			},
			[]string{"result"}, // hit, miss
		),
		httpRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "eurovoc_http_retries_total",
			Help: "HTTP requests retried after a server error or transport failure",
		}),
		windows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eurovoc_windows_total",
				Help: "Date windows processed by outcome",
			},
			[]string{"status"},
		),
		windowDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "eurovoc_window_duration_seconds",
			Help:    "Wall time spent mining one date window",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
		}),
	}
}

// Document counts one candidate document with the given outcome.
func (m *Metrics) Document(outcome string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(outcome).Inc()
}

// CacheLookup counts a body cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Retry counts one retried HTTP attempt.
func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.httpRetries.Inc()
}

// Window records the outcome and duration of one window.
func (m *Metrics) Window(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.windows.WithLabelValues(status).Inc()
	m.windowDuration.Observe(elapsed.Seconds())
}
