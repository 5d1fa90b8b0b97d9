package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	httpErrorsTotal       *prometheus.CounterVec
	submissionsTotal      *prometheus.CounterVec
	reviewsTotal          *prometheus.CounterVec
	progressCacheRequests *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned.",
		}, []string{"method", "route", "status"})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "submissions_total",
			Help: "Submissions processed, by problem type and verdict.",
		}, []string{"problem_type", "verdict"})

		reviewsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviews_total",
			Help: "Manual grading decisions, by resulting verdict.",
		}, []string{"verdict"})

		progressCacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progress_cache_requests_total",
			Help: "Progress snapshot lookups, by cache outcome.",
		}, []string{"outcome"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			submissionsTotal,
			reviewsTotal,
			progressCacheRequests,
		)
	})
}

// HTTPRequests exposes the counter for served requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// SubmissionsProcessed exposes the submissions counter.
func SubmissionsProcessed() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

// ReviewsRecorded exposes the manual review counter.
func ReviewsRecorded() *prometheus.CounterVec {
	RegisterMetrics()
	return reviewsTotal
}

// ProgressCache exposes the snapshot cache counter.
func ProgressCache() *prometheus.CounterVec {
	RegisterMetrics()
	return progressCacheRequests
}
