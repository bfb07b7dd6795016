package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/kiranshivaraju/callscore/pkg/models"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string, attr attribute.KeyValue) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, want Sum[int64]", name, met.Data)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attr.Key); ok && v == attr.Value {
			return dp.Value
		}
	}
	return 0
}

func TestRecordAssessment(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAssessment(ctx, models.GradeGood)
	m.RecordAssessment(ctx, models.GradeGood)
	m.RecordAssessment(ctx, models.GradePoor)

	rm := collect(t, reader)
	if got := counterValue(t, rm, "callscore.assessments", attribute.String("grade", "Good")); got != 2 {
		t.Errorf("Good = %d, want 2", got)
	}
	if got := counterValue(t, rm, "callscore.assessments", attribute.String("grade", "Poor")); got != 1 {
		t.Errorf("Poor = %d, want 1", got)
	}
}

func TestRecordFallback(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordFallback(context.Background(), "sentiment", "timeout")

	rm := collect(t, reader)
	if got := counterValue(t, rm, "callscore.classifier.fallbacks", attribute.String("reason", "timeout")); got != 1 {
		t.Errorf("timeout fallbacks = %d, want 1", got)
	}
}

func TestRecordJob(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordJob(context.Background(), models.JobStatusFailed)

	rm := collect(t, reader)
	if got := counterValue(t, rm, "callscore.jobs", attribute.String("status", "failed")); got != 1 {
		t.Errorf("failed jobs = %d, want 1", got)
	}
}

func TestHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStage(ctx, "scoring", 2*time.Millisecond)
	m.RecordStage(ctx, "scoring", 3*time.Millisecond)
	m.RecordTranscription(ctx, 4*time.Second, true)

	rm := collect(t, reader)
	tests := []struct {
		name  string
		count uint64
	}{
		{"callscore.stage.duration", 2},
		{"callscore.transcription.duration", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is %T, want Histogram[float64]", tc.name, met.Data)
			}
			var total uint64
			for _, dp := range hist.DataPoints {
				total += dp.Count
			}
			if total != tc.count {
				t.Errorf("count = %d, want %d", total, tc.count)
			}
		})
	}
}
