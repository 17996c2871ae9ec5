package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "confluencecal",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of calibration API endpoints",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "confluencecal",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by calibration API endpoint",
		},
		[]string{"endpoint", "code"},
	)

	APIRateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "confluencecal",
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the calibration rate limiter",
		},
		[]string{"endpoint"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors, APIRateLimited)
	})
}
