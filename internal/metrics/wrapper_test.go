package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestMetricsWrapper_CounterOperations(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if v := testutil.ToFloat64(metrics.RequestsTotal); v != 0 {
		t.Errorf("Expected initial counter value 0, got %f", v)
	}

	wrapper.RequestsInc()
	wrapper.RequestsInc()
	if v := testutil.ToFloat64(metrics.RequestsTotal); v != 2 {
		t.Errorf("Expected counter value 2, got %f", v)
	}

	wrapper.FailureInc("shape_mismatch")
	wrapper.FailureInc("shape_mismatch")
	wrapper.FailureInc("decode")
	if v := testutil.ToFloat64(metrics.FailuresTotal.WithLabelValues("shape_mismatch")); v != 2 {
		t.Errorf("Expected shape_mismatch failures 2, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.FailuresTotal.WithLabelValues("decode")); v != 1 {
		t.Errorf("Expected decode failures 1, got %f", v)
	}

	wrapper.FeatureErrorsInc()
	if v := testutil.ToFloat64(metrics.FeatureErrors); v != 1 {
		t.Errorf("Expected feature errors 1, got %f", v)
	}

	wrapper.FeatureSampleCount(200)
	wrapper.FeatureSampleCount(200)
	if v := testutil.ToFloat64(metrics.FeatureSamples); v != 400 {
		t.Errorf("Expected feature samples 400, got %f", v)
	}

	wrapper.MissingFilledAdd(3)
	if v := testutil.ToFloat64(metrics.MissingCellsFilled); v != 3 {
		t.Errorf("Expected missing cells filled 3, got %f", v)
	}
}

func TestMetricsWrapper_GaugeOperations(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.ModelClassesSet(12)
	if v := testutil.ToFloat64(metrics.ModelClasses); v != 12 {
		t.Errorf("Expected gauge value 12, got %f", v)
	}
}

func TestMetricsWrapper_HistogramOperations(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	wrapper.LatencyObserve(15 * time.Millisecond)
	wrapper.StageObserve("parse", time.Millisecond)
	wrapper.StageObserve("extract", 2*time.Millisecond)
	wrapper.ConfidenceObserve(0.87)
	wrapper.UploadBytesObserve(9000)
	wrapper.FeatureCalcDuration(time.Millisecond)

	if n := testutil.CollectAndCount(metrics.StageLatency); n != 2 {
		t.Errorf("Expected 2 stage series, got %d", n)
	}
	if n := testutil.CollectAndCount(metrics.PredictionConfidence); n != 1 {
		t.Errorf("Expected 1 confidence series, got %d", n)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "predict_latency_seconds" {
			found = true
			if c := mf.Metric[0].Histogram.GetSampleCount(); c != 1 {
				t.Errorf("Expected 1 latency sample, got %d", c)
			}
		}
	}
	if !found {
		t.Error("predict_latency_seconds not registered")
	}
}

func TestNewWithRegistry_Isolated(t *testing.T) {
	// Two registries can hold the same metric names without panicking
	NewWithRegistry(prometheus.NewRegistry())
	NewWithRegistry(prometheus.NewRegistry())
}
