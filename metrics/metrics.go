// Package metrics provides Prometheus metrics for the RxWriter server.
// HTTP traffic is measured by the Metrics middleware; the drug directory
// gateway, the lookup engine and the session store record their own series.
//
// All metrics are registered with the Prometheus default registry during
// package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (clients seen since the last prune)",
		},
	)

	DPDRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dpd_requests_total",
			Help: "Requests sent to the Drug Product Database API",
		},
		[]string{"endpoint", "outcome"},
	)

	DPDRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dpd_request_duration_seconds",
			Help:    "Drug Product Database API latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	LookupSearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookup_searches_total",
			Help: "Medication searches by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	LookupSearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lookup_search_duration_seconds",
			Help:    "End-to-end medication search latency",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	LookupResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lookup_results",
			Help:    "Number of medication options returned per search",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		},
	)

	LookupCandidatesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lookup_candidates_dropped_total",
			Help: "Drug codes dropped because their detail lookup failed",
		},
	)

	LookupStaleResults = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lookup_stale_results_total",
			Help: "Search results discarded because a newer search was issued",
		},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Sessions currently held in memory",
		},
	)

	SessionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_expired_total",
			Help: "Sessions removed by the idle sweep",
		},
	)

	PrescriptionsAdded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prescriptions_added_total",
			Help: "Prescriptions appended to a session collection",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestTotals,
		HTTPRequestDuration,
		HTTPRequestInFlight,
		RateLimiterBucketsTotal,
		DPDRequestsTotal,
		DPDRequestDuration,
		LookupSearchesTotal,
		LookupSearchDuration,
		LookupResults,
		LookupCandidatesDropped,
		LookupStaleResults,
		SessionsActive,
		SessionsExpired,
		PrescriptionsAdded,
	)
}
