// Package metrics holds the Prometheus counters exported by the engine.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a registry and the engine's counters. The zero value is not
// usable; use New or Default.
type Recorder struct {
	registry       *prometheus.Registry
	cacheRequests  *prometheus.CounterVec
	tickerOutcomes *prometheus.CounterVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "floatshare_cache_requests_total",
			Help: "Extraction cache lookups by kind and result (hit or miss).",
		}, []string{"kind", "result"}),
		tickerOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "floatshare_ticker_outcomes_total",
			Help: "Analyzed tickers by status and failing stage.",
		}, []string{"status", "stage"}),
	}
	r.registry.MustRegister(r.cacheRequests, r.tickerOutcomes)
	return r
}

var (
	defaultOnce sync.Once
	defaultRec  *Recorder
)

// Default returns the process-wide Recorder.
func Default() *Recorder {
	defaultOnce.Do(func() { defaultRec = New() })
	return defaultRec
}

// CacheLookup counts one cache lookup.
func (r *Recorder) CacheLookup(kind string, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheRequests.WithLabelValues(kind, result).Inc()
}

// TickerOutcome counts one finished ticker. stage is empty on success.
func (r *Recorder) TickerOutcome(status, stage string) {
	if r == nil {
		return
	}
	r.tickerOutcomes.WithLabelValues(status, stage).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry, mostly for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}
