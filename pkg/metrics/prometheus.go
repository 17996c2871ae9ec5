package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	bestScore   *prometheus.GaugeVec
	iterations  *prometheus.CounterVec
	excluded    *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
}

// New creates a Prometheus recorder registered with the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors with reg instead.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluencecal_runs_total",
				Help: "Calibration runs by outcome",
			},
			[]string{"symbol", "outcome"},
		),
		runDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "confluencecal_run_duration_seconds",
				Help:    "Wall time of calibration runs",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"symbol"},
		),
		bestScore: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "confluencecal_best_score",
				Help: "Best score of the last calibration run per symbol",
			},
			[]string{"symbol"},
		),
		iterations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluencecal_optimizer_iterations_total",
				Help: "Optimizer iterations executed",
			},
			[]string{"symbol"},
		),
		excluded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluencecal_signals_excluded_total",
				Help: "Malformed signals excluded from calibration",
			},
			[]string{"symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluencecal_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// RecordRun counts a finished run and observes its duration.
func (r *Recorder) RecordRun(symbol, outcome string, seconds float64) {
	r.runsTotal.WithLabelValues(symbol, outcome).Inc()
	r.runDuration.WithLabelValues(symbol).Observe(seconds)
}

func (r *Recorder) RecordScore(symbol string, score float64) {
	r.bestScore.WithLabelValues(symbol).Set(score)
}

func (r *Recorder) RecordIterations(symbol string, n int) {
	r.iterations.WithLabelValues(symbol).Add(float64(n))
}

func (r *Recorder) RecordExcluded(symbol string, n int) {
	if n > 0 {
		r.excluded.WithLabelValues(symbol).Add(float64(n))
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
