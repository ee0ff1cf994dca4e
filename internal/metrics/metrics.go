// Package metrics exposes Prometheus collectors for the sync service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	syncRunsTotal              *prometheus.CounterVec
	syncDocumentsTotal         *prometheus.CounterVec
	syncArtifactsRemovedTotal  *prometheus.CounterVec
	syncFetchDurationSeconds   prometheus.Histogram
	syncActiveRuns             prometheus.Gauge
	syncDiscoveredLast         prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		syncRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_runs_total",
				Help: "Total number of sync runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		syncDocumentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_documents_total",
				Help: "Total number of documents processed, labeled by result.",
			},
			[]string{"result"},
		)

		syncArtifactsRemovedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_artifacts_removed_total",
				Help: "Total artifact removals during normalization, labeled by category.",
			},
			[]string{"category"},
		)

		syncFetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sync_fetch_duration_seconds",
				Help:    "Histogram of document fetch latencies, rendering included.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
		)

		syncActiveRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sync_active_runs",
				Help: "1 while a sync run is in flight, 0 otherwise.",
			},
		)

		syncDiscoveredLast = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sync_discovered_last",
				Help: "Number of documents discovered by the most recent run.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun increments the run counter for the given outcome and records
// how many documents that run discovered.
func ObserveRun(outcome string, discovered int) {
	syncRunsTotal.WithLabelValues(outcome).Inc()
	syncDiscoveredLast.Set(float64(discovered))
}

// ObserveDocument increments the document counter for the given result.
func ObserveDocument(result string) {
	syncDocumentsTotal.WithLabelValues(result).Inc()
}

// ObserveArtifactsRemoved adds normalization removal counts per category.
func ObserveArtifactsRemoved(category string, count int) {
	if count <= 0 {
		return
	}
	syncArtifactsRemovedTotal.WithLabelValues(category).Add(float64(count))
}

// ObserveFetch records one document fetch duration.
func ObserveFetch(duration time.Duration) {
	syncFetchDurationSeconds.Observe(duration.Seconds())
}

// RunStarted flags the active-run gauge.
func RunStarted() {
	syncActiveRuns.Set(1)
}

// RunFinished clears the active-run gauge.
func RunFinished() {
	syncActiveRuns.Set(0)
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
