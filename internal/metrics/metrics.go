// Package metrics records engine activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aristath/skinsentinel/internal/domain"
)

// Prediction modes.
const (
	ModeModel    = "model"
	ModeFallback = "fallback"
)

// Allocation outcomes.
const (
	OutcomeAllocated = "allocated"
	OutcomeRejected  = "rejected"
)

// Training outcomes.
const (
	TrainingSucceeded = "succeeded"
	TrainingFailed    = "failed"
	TrainingSkipped   = "skipped"
)

// Engine holds the engine's collectors. A nil *Engine is valid and records nothing.
type Engine struct {
	predictions     *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	classifications *prometheus.CounterVec
	allocations     *prometheus.CounterVec
	trainingRuns    *prometheus.CounterVec
	trainingBuffer  prometheus.Gauge
	journalResolved prometheus.Counter
	evaluation      prometheus.Histogram
}

// New registers the engine collectors on reg.
func New(reg prometheus.Registerer) *Engine {
	factory := promauto.With(reg)
	return &Engine{
		predictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skinsentinel_predictions_total",
				Help: "Total number of price predictions by mode",
			},
			[]string{"mode"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skinsentinel_prediction_cache_lookups_total",
				Help: "Prediction cache lookups by result",
			},
			[]string{"result"},
		),
		classifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skinsentinel_classifications_total",
				Help: "Trade classifications by signal",
			},
			[]string{"signal"},
		),
		allocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skinsentinel_allocations_total",
				Help: "Allocator decisions by outcome",
			},
			[]string{"outcome"},
		),
		trainingRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skinsentinel_training_runs_total",
				Help: "Model training runs by outcome",
			},
			[]string{"outcome"},
		),
		trainingBuffer: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "skinsentinel_training_buffer_size",
				Help: "Number of examples in the training buffer",
			},
		),
		journalResolved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "skinsentinel_journal_resolved_total",
				Help: "Journal entries resolved into training examples",
			},
		),
		evaluation: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "skinsentinel_evaluation_duration_seconds",
				Help:    "Duration of batch evaluations in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// RecordPrediction counts a prediction made in the given mode.
func (e *Engine) RecordPrediction(mode string) {
	if e == nil {
		return
	}
	e.predictions.WithLabelValues(mode).Inc()
}

// RecordCacheHit counts a prediction served from cache.
func (e *Engine) RecordCacheHit() {
	if e == nil {
		return
	}
	e.cacheLookups.WithLabelValues("hit").Inc()
}

// RecordCacheMiss counts a prediction cache miss.
func (e *Engine) RecordCacheMiss() {
	if e == nil {
		return
	}
	e.cacheLookups.WithLabelValues("miss").Inc()
}

// RecordClassification counts a classification by signal.
func (e *Engine) RecordClassification(signal domain.Signal) {
	if e == nil {
		return
	}
	e.classifications.WithLabelValues(string(signal)).Inc()
}

// RecordAllocation counts an allocator decision.
func (e *Engine) RecordAllocation(outcome string) {
	if e == nil {
		return
	}
	e.allocations.WithLabelValues(outcome).Inc()
}

// RecordTraining counts a training run.
func (e *Engine) RecordTraining(outcome string) {
	if e == nil {
		return
	}
	e.trainingRuns.WithLabelValues(outcome).Inc()
}

// SetTrainingBufferSize reports the current training buffer length.
func (e *Engine) SetTrainingBufferSize(n int) {
	if e == nil {
		return
	}
	e.trainingBuffer.Set(float64(n))
}

// RecordJournalResolved counts journal entries turned into training examples.
func (e *Engine) RecordJournalResolved(n int) {
	if e == nil || n <= 0 {
		return
	}
	e.journalResolved.Add(float64(n))
}

// ObserveEvaluation records how long a batch evaluation took.
func (e *Engine) ObserveEvaluation(d time.Duration) {
	if e == nil {
		return
	}
	e.evaluation.Observe(d.Seconds())
}
