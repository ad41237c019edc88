package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics contains all Prometheus metrics for the generation and
// optimization pipeline.
type PipelineMetrics struct {
	// Generation metrics
	GenerationTotal    *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	ProviderErrors     *prometheus.CounterVec

	// Validation metrics
	ValidationFindings *prometheus.CounterVec
	ValidationTotal    *prometheus.CounterVec

	// Scoring metrics
	BestScore *prometheus.GaugeVec

	// Optimization metrics
	OptimizationTrials *prometheus.CounterVec
	OptimizationRuns   *prometheus.CounterVec
	TrialDuration      *prometheus.HistogramVec
}

// NewPipelineMetrics creates new pipeline metrics under the given namespace.
func NewPipelineMetrics(namespace string) *PipelineMetrics {
	if namespace == "" {
		namespace = "stratforge"
	}

	return &PipelineMetrics{
		GenerationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Total number of provider generation calls",
			},
			[]string{"provider", "result"},
		),
		GenerationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Duration of provider generation calls",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider"},
		),
		ProviderErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_errors_total",
				Help:      "Total provider errors by kind",
			},
			[]string{"provider", "kind"},
		),
		ValidationFindings: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_findings_total",
				Help:      "Total validation findings by stage and severity",
			},
			[]string{"stage", "severity"},
		),
		ValidationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validations_total",
				Help:      "Total code validations by outcome",
			},
			[]string{"result"},
		),
		BestScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "best_score",
				Help:      "Best confidence score of the latest coordinator invocation",
			},
			[]string{"provider"},
		),
		OptimizationTrials: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "optimization_trials_total",
				Help:      "Total optimization trials by method and result",
			},
			[]string{"method", "result"},
		),
		OptimizationRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "optimization_runs_total",
				Help:      "Total optimization runs by method and terminal state",
			},
			[]string{"method", "state"},
		),
		TrialDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "trial_duration_seconds",
				Help:      "Duration of optimization trial evaluations",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
			[]string{"method"},
		),
	}
}

// RecordGeneration records one provider generation call.
func (m *PipelineMetrics) RecordGeneration(provider string, success bool, seconds float64) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.GenerationTotal.WithLabelValues(provider, result).Inc()
	m.GenerationDuration.WithLabelValues(provider).Observe(seconds)
}

// RecordProviderError records a provider error by taxonomy kind.
func (m *PipelineMetrics) RecordProviderError(provider, kind string) {
	m.ProviderErrors.WithLabelValues(provider, kind).Inc()
}

// RecordValidation records one validation outcome and its findings.
func (m *PipelineMetrics) RecordValidation(passed bool, findings map[string]map[string]int) {
	result := "pass"
	if !passed {
		result = "fail"
	}
	m.ValidationTotal.WithLabelValues(result).Inc()
	for stage, severities := range findings {
		for severity, n := range severities {
			m.ValidationFindings.WithLabelValues(stage, severity).Add(float64(n))
		}
	}
}

// SetBestScore records the winning score of a coordinator invocation.
func (m *PipelineMetrics) SetBestScore(provider string, score float64) {
	m.BestScore.WithLabelValues(provider).Set(score)
}

// RecordTrial records one optimization trial.
func (m *PipelineMetrics) RecordTrial(method string, failed bool, seconds float64) {
	result := "success"
	if failed {
		result = "failure"
	}
	m.OptimizationTrials.WithLabelValues(method, result).Inc()
	m.TrialDuration.WithLabelValues(method).Observe(seconds)
}

// RecordRun records a finished optimization run.
func (m *PipelineMetrics) RecordRun(method, state string) {
	m.OptimizationRuns.WithLabelValues(method, state).Inc()
}

// Default is the default metrics instance.
var Default = NewPipelineMetrics("")
