package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videosearch",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "videosearch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	ClientRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videosearch",
		Name:      "client_requests_total",
		Help:      "Total requests to the video provider by call kind and result status.",
	}, []string{"call", "status"})

	ClientRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "videosearch",
		Name:      "client_request_duration_seconds",
		Help:      "Video provider request duration in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"call"})

	ClientAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "videosearch",
		Name:      "client_available",
		Help:      "Whether the provider circuit breaker is closed (1) or open (0).",
	}, []string{"client"})

	CascadeStagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videosearch",
		Name:      "cascade_stages_total",
		Help:      "Fallback stages executed by mode, stage and outcome.",
	}, []string{"mode", "stage", "outcome"})

	CombinationsPerRequest = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "videosearch",
		Name:      "combinations_per_request",
		Help:      "Number of search tasks fanned out per request.",
		Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
	}, []string{"mode"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "videosearch",
		Name:      "cache_hits_total",
		Help:      "Total number of recipe search cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "videosearch",
		Name:      "cache_misses_total",
		Help:      "Total number of recipe search cache misses.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ClientRequestsTotal,
		ClientRequestDuration,
		ClientAvailable,
		CascadeStagesTotal,
		CombinationsPerRequest,
		CacheHitsTotal,
		CacheMissesTotal,
	)
}
