package metrics

import "time"

// MetricsWrapper adapts Metrics to the narrow interfaces the feature
// extractor and the pipeline depend on.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// Pipeline

func (w *MetricsWrapper) RequestsInc() {
	w.m.RequestsTotal.Inc()
}

func (w *MetricsWrapper) FailureInc(kind string) {
	w.m.FailuresTotal.WithLabelValues(kind).Inc()
}

func (w *MetricsWrapper) UploadBytesObserve(n int) {
	w.m.UploadBytes.Observe(float64(n))
}

func (w *MetricsWrapper) LatencyObserve(d time.Duration) {
	w.m.RequestLatency.Observe(d.Seconds())
}

func (w *MetricsWrapper) StageObserve(stage string, d time.Duration) {
	w.m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

func (w *MetricsWrapper) ConfidenceObserve(v float64) {
	w.m.PredictionConfidence.Observe(v)
}

func (w *MetricsWrapper) MissingFilledAdd(n int) {
	w.m.MissingCellsFilled.Add(float64(n))
}

func (w *MetricsWrapper) ModelClassesSet(n int) {
	w.m.ModelClasses.Set(float64(n))
}

// Feature extraction

func (w *MetricsWrapper) FeatureErrorsInc() {
	w.m.FeatureErrors.Inc()
}

func (w *MetricsWrapper) FeatureCalcDuration(d time.Duration) {
	w.m.FeatureCalcLatency.Observe(d.Seconds())
}

func (w *MetricsWrapper) FeatureSampleCount(count int) {
	w.m.FeatureSamples.Add(float64(count))
}
