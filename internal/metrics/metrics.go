// Package metrics exposes Prometheus collectors for the curation service.
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
	submoduleRunsTotal     *prometheus.CounterVec
	urlsDiscoveredTotal    *prometheus.CounterVec
	fetchesTotal           *prometheus.CounterVec
	approvalDecisionsTotal *prometheus.CounterVec
	submoduleDuration      *prometheus.HistogramVec
	httpRequestsTotal      *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		submoduleRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_submodule_runs_total",
				Help: "Total submodule executions, labeled by type, name and final status.",
			},
			[]string{"type", "name", "status"},
		)

		urlsDiscoveredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_urls_discovered_total",
				Help: "Total candidate URLs produced, labeled by submodule name.",
			},
			[]string{"submodule"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_fetches_total",
				Help: "Total fetch attempts, labeled by outcome and browser usage.",
			},
			[]string{"outcome", "browser"},
		)

		approvalDecisionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_approval_decisions_total",
				Help: "Total approval decisions, labeled by decision.",
			},
			[]string{"decision"},
		)

		submoduleDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "curator_submodule_duration_seconds",
				Help:    "Histogram of submodule execution durations, labeled by type and name.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"type", "name"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSubmoduleRun records one finished execution.
func ObserveSubmoduleRun(submoduleType, name, status string, duration time.Duration) {
	if submoduleRunsTotal == nil {
		return
	}
	submoduleRunsTotal.WithLabelValues(submoduleType, name, status).Inc()
	submoduleDuration.WithLabelValues(submoduleType, name).Observe(duration.Seconds())
}

// ObserveDiscoveredURLs adds to the candidate counter for a submodule.
func ObserveDiscoveredURLs(submodule string, count int) {
	if urlsDiscoveredTotal == nil || count <= 0 {
		return
	}
	urlsDiscoveredTotal.WithLabelValues(submodule).Add(float64(count))
}

// ObserveFetch records one fetch attempt outcome.
func ObserveFetch(outcome string, usedBrowser bool) {
	if fetchesTotal == nil {
		return
	}
	fetchesTotal.WithLabelValues(outcome, strconv.FormatBool(usedBrowser)).Inc()
}

// ObserveApprovalDecision records one human decision.
func ObserveApprovalDecision(decision string) {
	if approvalDecisionsTotal == nil {
		return
	}
	approvalDecisionsTotal.WithLabelValues(decision).Inc()
}

// ObserveHTTPRequest increments the HTTP request counter.
func ObserveHTTPRequest(method string, code int) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
