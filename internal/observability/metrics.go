package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	queueClaimsTotal     *prometheus.CounterVec
	queueResultsTotal    *prometheus.CounterVec
	queueReclaimsTotal   *prometheus.CounterVec
	xqueueRequestsTotal  *prometheus.CounterVec
	xqueueLatencySeconds *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors for the grader queue.
func RegisterMetrics() {
	registerOnce.Do(func() {
		queueClaimsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_queue_claims_total",
			Help: "Total number of claim attempts by queue and outcome.",
		}, []string{"queue", "outcome"})

		queueResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_queue_results_total",
			Help: "Total number of grader result posts by outcome.",
		}, []string{"outcome"})

		queueReclaimsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_queue_reclaims_total",
			Help: "Total number of stale pulled records reclaimed, by queue.",
		}, []string{"queue"})

		xqueueRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xqueue_requests_total",
			Help: "Total number of xqueue protocol requests served.",
		}, []string{"method", "route", "status"})

		xqueueLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "xqueue_latency_seconds",
			Help:    "Latency distribution for xqueue protocol requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		prometheus.MustRegister(
			queueClaimsTotal,
			queueResultsTotal,
			queueReclaimsTotal,
			xqueueRequestsTotal,
			xqueueLatencySeconds,
		)
	})
}

// QueueClaims exposes the claim-attempt counter.
func QueueClaims() *prometheus.CounterVec {
	RegisterMetrics()
	return queueClaimsTotal
}

// QueueResults exposes the result-post counter.
func QueueResults() *prometheus.CounterVec {
	RegisterMetrics()
	return queueResultsTotal
}

// QueueReclaims exposes the reclaim counter.
func QueueReclaims() *prometheus.CounterVec {
	RegisterMetrics()
	return queueReclaimsTotal
}

// XQueueRequests exposes the protocol request counter.
func XQueueRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return xqueueRequestsTotal
}

// XQueueLatency exposes the protocol latency histogram.
func XQueueLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return xqueueLatencySeconds
}
