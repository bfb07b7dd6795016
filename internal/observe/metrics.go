// Package observe records callscore metrics through the OpenTelemetry
// metrics API. InitProvider bridges them to Prometheus for scraping on
// /metrics. Tests should build Metrics from their own MeterProvider.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kiranshivaraju/callscore/pkg/models"
)

const meterName = "github.com/kiranshivaraju/callscore"

// Metrics holds the instruments. All fields are safe for concurrent use.
type Metrics struct {
	// StageDuration tracks assessment stage latency by "stage".
	StageDuration metric.Float64Histogram

	// TranscriptionDuration tracks transcription latency by "status".
	TranscriptionDuration metric.Float64Histogram

	// Assessments counts completed assessments by "grade".
	Assessments metric.Int64Counter

	// Fallbacks counts classifier fallbacks by "component" and "reason".
	Fallbacks metric.Int64Counter

	// Jobs counts finished audio jobs by "status".
	Jobs metric.Int64Counter

	// HTTPRequestDuration tracks request time by "method", "route" and "status".
	HTTPRequestDuration metric.Float64Histogram
}

var (
	stageBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10}
	slowBuckets  = []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600}
	httpBuckets  = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
)

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("callscore.stage.duration",
		metric.WithDescription("Latency of one assessment stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("callscore.transcription.duration",
		metric.WithDescription("Latency of audio transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(slowBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Assessments, err = m.Int64Counter("callscore.assessments",
		metric.WithDescription("Completed assessments by grade."),
	); err != nil {
		return nil, err
	}
	if met.Fallbacks, err = m.Int64Counter("callscore.classifier.fallbacks",
		metric.WithDescription("Classifier calls answered by the keyword fallback."),
	); err != nil {
		return nil, err
	}
	if met.Jobs, err = m.Int64Counter("callscore.jobs",
		metric.WithDescription("Finished audio assessment jobs by status."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("callscore.http.request.duration",
		metric.WithDescription("HTTP request processing time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(httpBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *Metrics) RecordFallback(ctx context.Context, component, reason string) {
	m.Fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", component),
		attribute.String("reason", reason),
	))
}

func (m *Metrics) RecordAssessment(ctx context.Context, grade models.Grade) {
	m.Assessments.Add(ctx, 1, metric.WithAttributes(attribute.String("grade", string(grade))))
}

// RecordTranscription records one transcription attempt. degraded marks an
// attempt that fell back to an empty transcript.
func (m *Metrics) RecordTranscription(ctx context.Context, d time.Duration, degraded bool) {
	status := "ok"
	if degraded {
		status = "degraded"
	}
	m.TranscriptionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) RecordJob(ctx context.Context, status string) {
	m.Jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
