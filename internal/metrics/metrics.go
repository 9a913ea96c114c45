// Package metrics provides Prometheus metrics collection for the mail scoring
// service. It defines and manages all prediction, training, and system metrics
// that are exposed via the Prometheus metrics endpoint for monitoring and
// alerting.
//
// The package includes metrics for conversion predictions, explanation
// fallbacks, send-time slot searches, artifact loads, and feature store
// health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the scoring service.
// It provides counters, gauges, and histograms for comprehensive monitoring
// of prediction serving, model training, and upstream data health.
type Metrics struct {
	// Prediction metrics
	PredictionsTotal   prometheus.Counter   // Total number of conversion predictions made
	PredictionFailures prometheus.Counter   // Total number of failed prediction calls
	FallbackUse        prometheus.Counter   // Total number of exact-attribution fallbacks
	PredictionLatency  prometheus.Histogram // End-to-end prediction latency in seconds
	PredictionScores   prometheus.Histogram // Distribution of predicted conversion probabilities

	// Send-time metrics
	SlotSearches prometheus.Counter // Total number of send-time slot searches

	// Model lifecycle metrics
	ArtifactLoads prometheus.Counter // Total number of artifact loads from the store
	TrainingRuns  prometheus.Counter // Total number of training runs started
	ModelAge      prometheus.Gauge   // Age of the loaded conversion model in seconds

	// Upstream data metrics
	FeatureStoreErrors prometheus.Counter // Total number of feature store read failures

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
// This is the standard way to create metrics for production use.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// This allows for isolated metric collection in tests without affecting
// the global Prometheus registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of conversion predictions made",
		}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of failed prediction calls",
		}),
		FallbackUse: factory.NewCounter(prometheus.CounterOpts{
			Name: "explanation_fallback_use_total",
			Help: "Total number of times the approximate explanation strategy was used after an exact-attribution failure",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Prediction latency in seconds (end-to-end)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_scores",
			Help:    "Distribution of predicted conversion probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		SlotSearches: factory.NewCounter(prometheus.CounterOpts{
			Name: "slot_searches_total",
			Help: "Total number of send-time slot searches",
		}),
		ArtifactLoads: factory.NewCounter(prometheus.CounterOpts{
			Name: "artifact_loads_total",
			Help: "Total number of artifact loads from the store",
		}),
		TrainingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_runs_total",
			Help: "Total number of training runs started",
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_age_seconds",
			Help: "Age of the loaded conversion model in seconds",
		}),
		FeatureStoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "feature_store_errors_total",
			Help: "Total number of feature store read failures",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

// GetErrorRate calculates the current error rate based on total predictions
// and failures. Returns the ratio of failures to predictions, or 0 if no
// predictions have been recorded. This is useful for health checks and
// alerting thresholds.
func (m *Metrics) GetErrorRate() float64 {
	var totalOps, totalErrors float64

	metricFamilies, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return 0
	}

	for _, mf := range metricFamilies {
		switch *mf.Name {
		case "predictions_total":
			for _, m := range mf.Metric {
				totalOps = *m.Counter.Value
			}
		case "prediction_failures_total":
			for _, m := range mf.Metric {
				totalErrors = *m.Counter.Value
			}
		}
	}

	if totalOps == 0 {
		return 0
	}

	return totalErrors / totalOps
}
