// Package metrics provides Prometheus metrics collection for the predictor.
// It defines the request, pipeline stage, feature extraction and model
// metrics exposed on the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the predictor.
type Metrics struct {
	// Request metrics
	RequestsTotal  prometheus.Counter     // Total number of uploads processed
	FailuresTotal  *prometheus.CounterVec // Failed requests by error kind
	UploadBytes    prometheus.Histogram   // Size of uploaded recordings
	RequestLatency prometheus.Histogram   // End-to-end pipeline latency
	StageLatency   *prometheus.HistogramVec

	// Feature calculation metrics
	FeatureErrors      prometheus.Counter   // Total number of feature extraction errors
	FeatureCalcLatency prometheus.Histogram // Feature extraction latency
	FeatureSamples     prometheus.Counter   // Total number of samples fed to the extractor
	MissingCellsFilled prometheus.Counter   // Missing cells zero-filled before extraction

	// Model metrics
	PredictionConfidence prometheus.Histogram // Distribution of top-1 confidence
	ModelClasses         prometheus.Gauge     // Number of classes the loaded model predicts
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		RequestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "predict_requests_total",
			Help: "Total number of prediction requests",
		}),
		FailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_failures_total",
			Help: "Total number of failed prediction requests by error kind",
		}, []string{"kind"}),
		UploadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "upload_bytes",
			Help:    "Size of uploaded recordings in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12),
		}),
		RequestLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "predict_latency_seconds",
			Help:    "End-to-end pipeline latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_stage_seconds",
			Help:    "Latency of individual pipeline stages in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}, []string{"stage"}),
		FeatureErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "feature_errors_total",
			Help: "Total number of feature extraction errors",
		}),
		FeatureCalcLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "feature_calc_seconds",
			Help:    "Feature extraction latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		FeatureSamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "feature_samples_total",
			Help: "Total number of samples passed to feature extraction",
		}),
		MissingCellsFilled: factory.NewCounter(prometheus.CounterOpts{
			Name: "missing_cells_filled_total",
			Help: "Total number of missing cells zero-filled before extraction",
		}),
		PredictionConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_confidence",
			Help:    "Distribution of top-1 prediction confidence",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ModelClasses: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_classes",
			Help: "Number of classes the loaded model predicts",
		}),
	}
}
