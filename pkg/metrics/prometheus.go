package metrics

import (
	"strconv"

	"PriceOpt/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	trainings     *prometheus.CounterVec
	optimizations *prometheus.CounterVec
	revenueLift   *prometheus.GaugeVec
	experiments   *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New registers the pricing collectors on reg (prometheus.DefaultRegisterer in production).
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		trainings: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "priceopt_model_trainings_total",
				Help: "Model fits by kind and whether the result was degenerate",
			},
			[]string{"kind", "degenerate"},
		),
		optimizations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "priceopt_optimizations_total",
				Help: "Price optimizations by elasticity model source",
			},
			[]string{"source"},
		),
		revenueLift: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "priceopt_revenue_lift_percent",
				Help: "Expected revenue lift of the latest price decision",
			},
			[]string{"product_id"},
		),
		experiments: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "priceopt_experiment_updates_total",
				Help: "A/B test updates by resulting status",
			},
			[]string{"status"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "priceopt_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "priceopt_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordTraining(kind string, degenerate bool) {
	r.trainings.WithLabelValues(kind, strconv.FormatBool(degenerate)).Inc()
}

func (r *Recorder) RecordOptimization(productID string, source models.ModelSource, liftPercent float64) {
	r.optimizations.WithLabelValues(string(source)).Inc()
	r.revenueLift.WithLabelValues(productID).Set(liftPercent)
}

// RecordExperimentUpdate counts by status only; test IDs are unbounded.
func (r *Recorder) RecordExperimentUpdate(_ string, status models.TestStatus) {
	r.experiments.WithLabelValues(string(status)).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards all metrics.
type Nop struct{}

func (Nop) RecordTraining(string, bool)                            {}
func (Nop) RecordOptimization(string, models.ModelSource, float64) {}
func (Nop) RecordExperimentUpdate(string, models.TestStatus)       {}
func (Nop) RecordError(string)                                     {}
func (Nop) RecordLatency(string, float64)                          {}
