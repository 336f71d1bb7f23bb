package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	AnalyticsLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tickpilot",
			Subsystem: "analytics",
			Name:      "latency_seconds",
			Help:      "Latency of diagnostics endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	AnalyticsErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tickpilot",
			Subsystem: "analytics",
			Name:      "errors_total",
			Help:      "Errors by diagnostics endpoint",
		},
		[]string{"endpoint"},
	)

	AnalyticsCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tickpilot",
			Subsystem: "analytics",
			Name:      "cache_total",
			Help:      "Response cache lookups by endpoint and result (hit, miss)",
		},
		[]string{"endpoint", "result"},
	)

	AnalyticsRateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tickpilot",
			Subsystem: "analytics",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client limiter",
		},
		[]string{"endpoint"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(AnalyticsLatency, AnalyticsErrors, AnalyticsCache, AnalyticsRateLimited)
	})
}
