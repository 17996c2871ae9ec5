package middleware

import (
	"strconv"
	"sync"
	"time"

	applogger "ConfluenceCal/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "confluencecal",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route template and status class",
	}, []string{"route", "method", "class"})

	// calibration requests run for minutes, hence the long tail
	httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "confluencecal",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   []float64{0.01, 0.05, 0.25, 1, 5, 15, 60, 180, 600},
	}, []string{"route", "method"})

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "confluencecal",
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "Requests currently being served",
	})

	httpResponseBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "confluencecal",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response body size",
		Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
	}, []string{"route"})

	registerHTTP sync.Once
)

// Metrics records per-route request metrics. Requests at or above slow are
// logged as warnings and 5xx responses as errors; l may be nil.
func Metrics(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	registerHTTP.Do(func() {
		prometheus.MustRegister(httpRequests, httpLatency, httpInFlight, httpResponseBytes)
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			httpInFlight.Inc()
			start := time.Now()

			err := next(c)
			if err != nil {
				// resolve the status now; echo's error handler skips committed responses
				c.Error(err)
			}
			elapsed := time.Since(start)
			httpInFlight.Dec()

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			res := c.Response()

			httpRequests.WithLabelValues(route, method, statusClass(res.Status)).Inc()
			httpLatency.WithLabelValues(route, method).Observe(elapsed.Seconds())
			httpResponseBytes.WithLabelValues(route).Observe(float64(res.Size))

			if l == nil {
				return err
			}
			fields := []applogger.Field{
				applogger.String("route", route),
				applogger.String("method", method),
				applogger.Int("status", res.Status),
				applogger.Duration("duration_ms", elapsed),
			}
			switch {
			case res.Status >= 500:
				l.Error("http request failed", fields...)
			case slow > 0 && elapsed >= slow:
				l.Warn("http request slow", fields...)
			}
			return err
		}
	}
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
