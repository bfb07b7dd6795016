// Package calls orchestrates assessments around the pipeline: duplicate
// detection, persistence, caching and background transcription jobs.
package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kiranshivaraju/callscore/internal/cache"
	"github.com/kiranshivaraju/callscore/internal/observe"
	"github.com/kiranshivaraju/callscore/internal/pipeline"
	"github.com/kiranshivaraju/callscore/internal/store"
	"github.com/kiranshivaraju/callscore/internal/transcribe"
	"github.com/kiranshivaraju/callscore/pkg/models"
)

var ErrInvalidRequest = errors.New("invalid request")

const (
	defaultAssessmentTTL = 24 * time.Hour
	defaultJobStatusTTL  = 30 * time.Minute
)

// AssessParams holds a transcript submitted for synchronous assessment.
type AssessParams struct {
	WorkerID   string
	Language   string
	Duration   float64
	Utterances []models.Utterance
}

// CallParams holds an audio recording submitted for background assessment.
type CallParams struct {
	WorkerID string
	AudioURL string
	Language string
}

// Recorder receives job and transcription telemetry.
type Recorder interface {
	RecordTranscription(ctx context.Context, d time.Duration, degraded bool)
	RecordJob(ctx context.Context, status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordTranscription(context.Context, time.Duration, bool) {}
func (nopRecorder) RecordJob(context.Context, string)                        {}

// Option configures a Service.
type Option func(*Service)

// WithTranscriber sets the audio backend. Without one, every call job is
// assessed on a degraded, empty transcript.
func WithTranscriber(t transcribe.Transcriber) Option {
	return func(s *Service) { s.transcriber = t }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithTTLs overrides the cache lifetimes. Non-positive values keep the defaults.
func WithTTLs(assessment, jobStatus time.Duration) Option {
	return func(s *Service) {
		if assessment > 0 {
			s.assessmentTTL = assessment
		}
		if jobStatus > 0 {
			s.jobStatusTTL = jobStatus
		}
	}
}

// Service assesses calls and keeps their results.
type Service struct {
	assessor      *pipeline.Assessor
	transcriber   transcribe.Transcriber
	store         store.Store
	cache         cache.Cache
	recorder      Recorder
	assessmentTTL time.Duration
	jobStatusTTL  time.Duration
}

// NewService creates a new Service.
func NewService(assessor *pipeline.Assessor, st store.Store, ca cache.Cache, opts ...Option) *Service {
	s := &Service{
		assessor:      assessor,
		store:         st,
		cache:         ca,
		recorder:      nopRecorder{},
		assessmentTTL: defaultAssessmentTTL,
		jobStatusTTL:  defaultJobStatusTTL,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Assess scores a transcript and persists the result. Resubmitting an
// identical transcript for the same worker returns the stored assessment
// with reused set. Pipeline failures wrap pipeline.ErrAssessmentFailed and
// leave nothing behind.
func (s *Service) Assess(ctx context.Context, p AssessParams) (a *models.Assessment, reused bool, err error) {
	workerID := strings.TrimSpace(p.WorkerID)
	if workerID == "" {
		return nil, false, fmt.Errorf("%w: worker_id is required", ErrInvalidRequest)
	}
	t := models.Transcript{Segments: p.Utterances, Duration: p.Duration}
	return s.assess(ctx, workerID, t, p.Language)
}

func (s *Service) assess(ctx context.Context, workerID string, t models.Transcript, language string) (*models.Assessment, bool, error) {
	var fp string
	if !t.Degraded {
		fp = pipeline.TranscriptFingerprint(t, language)
		if prev, ok := s.findByFingerprint(ctx, workerID, fp); ok {
			slog.Debug("reusing assessment", "assessment_id", prev.ID, "worker_id", workerID)
			return prev, true, nil
		}
	}

	result, err := s.assessor.AssessTranscript(ctx, t, language)
	if err != nil {
		return nil, false, err
	}

	a := &models.Assessment{
		ID:          uuid.New(),
		WorkerID:    workerID,
		Language:    result.Details.Language,
		Fingerprint: fp,
		Result:      *result,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateAssessment(ctx, a); err != nil {
		return nil, false, fmt.Errorf("storing assessment: %w", err)
	}

	if err := s.cache.SetAssessment(ctx, a, s.assessmentTTL); err != nil {
		slog.Warn("caching assessment", "assessment_id", a.ID, "error", err)
	}
	if fp != "" {
		if err := s.cache.SetFingerprint(ctx, workerID, fp, a.ID, s.assessmentTTL); err != nil {
			slog.Warn("caching fingerprint", "assessment_id", a.ID, "error", err)
		}
	}
	return a, false, nil
}

// findByFingerprint looks in the cache, then the store. Lookup errors are
// treated as misses.
func (s *Service) findByFingerprint(ctx context.Context, workerID, fp string) (*models.Assessment, bool) {
	if id, ok, err := s.cache.GetFingerprint(ctx, workerID, fp); err == nil && ok {
		if a, err := s.GetAssessment(ctx, id); err == nil {
			return a, true
		}
	}
	a, err := s.store.FindAssessmentByFingerprint(ctx, workerID, fp)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("fingerprint lookup failed", "worker_id", workerID, "error", err)
		}
		return nil, false
	}
	return a, true
}

// GetAssessment reads through the cache.
func (s *Service) GetAssessment(ctx context.Context, id uuid.UUID) (*models.Assessment, error) {
	if a, ok, err := s.cache.GetAssessment(ctx, id); err == nil && ok {
		return a, nil
	}
	a, err := s.store.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetAssessment(ctx, a, s.assessmentTTL); err != nil {
		slog.Warn("caching assessment", "assessment_id", a.ID, "error", err)
	}
	return a, nil
}

// LatestAssessment returns the newest assessment, optionally for one worker.
func (s *Service) LatestAssessment(ctx context.Context, workerID string) (*models.Assessment, error) {
	return s.store.LatestAssessment(ctx, workerID)
}

// ListAssessments returns one page of assessments and the total count.
func (s *Service) ListAssessments(ctx context.Context, filter store.AssessmentFilter) ([]*models.Assessment, int, error) {
	return s.store.ListAssessments(ctx, filter)
}

// SubmitCall creates a pending job and dispatches transcription and
// assessment in a background goroutine. The job is returned immediately.
func (s *Service) SubmitCall(ctx context.Context, p CallParams) (*models.Job, error) {
	p.WorkerID = strings.TrimSpace(p.WorkerID)
	p.AudioURL = strings.TrimSpace(p.AudioURL)
	if p.WorkerID == "" {
		return nil, fmt.Errorf("%w: worker_id is required", ErrInvalidRequest)
	}
	if p.AudioURL == "" {
		return nil, fmt.Errorf("%w: audio_url is required", ErrInvalidRequest)
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		WorkerID:  p.WorkerID,
		AudioURL:  p.AudioURL,
		Language:  strings.ToLower(strings.TrimSpace(p.Language)),
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	s.setStatus(ctx, job.ID, models.JobStatusPending)

	go s.runCall(trace.SpanContextFromContext(ctx), *job)

	return job, nil
}

// GetJob returns the job. A cached status further along than the stored
// row wins, which covers jobs whose final store update failed.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if status, ok, err := s.cache.GetJobStatus(ctx, id); err == nil && ok && rank(status) > rank(job.Status) {
		job.Status = status
	}
	return job, nil
}

// runCall performs transcription and assessment in a goroutine. The job gets
// its own trace, linked to the submitting request's span.
// It recovers from panics and always marks the job as completed or failed.
func (s *Service) runCall(submitted trace.SpanContext, job models.Job) {
	ctx, span := observe.StartSpan(context.Background(), "calls.run",
		trace.WithNewRoot(),
		trace.WithLinks(trace.Link{SpanContext: submitted}),
		trace.WithAttributes(
			attribute.String("callscore.job_id", job.ID.String()),
			attribute.String("callscore.worker_id", job.WorkerID),
		),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in runCall", "error", r, "job_id", job.ID)
			span.SetStatus(codes.Error, "panic")
			s.fail(ctx, job.ID, fmt.Sprintf("panic: %v", r))
		}
	}()

	if err := s.store.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning); err != nil {
		slog.Error("marking job running", "job_id", job.ID, "error", err)
		s.fail(ctx, job.ID, fmt.Sprintf("starting job: %v", err))
		return
	}
	s.setStatus(ctx, job.ID, models.JobStatusRunning)

	start := time.Now()
	t := transcribe.OrDegraded(ctx, s.transcriber, job.AudioURL, job.Language)
	s.recorder.RecordTranscription(ctx, time.Since(start), t.Degraded)

	span.SetAttributes(attribute.Bool("callscore.degraded", t.Degraded))

	a, _, err := s.assess(ctx, job.WorkerID, t, job.Language)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assessment failed")
		s.fail(ctx, job.ID, err.Error())
		return
	}

	if err := s.store.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted, store.WithAssessmentID(a.ID)); err != nil {
		slog.Error("marking job completed", "job_id", job.ID, "error", err)
		return
	}
	s.setStatus(ctx, job.ID, models.JobStatusCompleted)
	slog.Info("call assessed",
		"job_id", job.ID,
		"assessment_id", a.ID,
		"worker_id", job.WorkerID,
		"degraded", t.Degraded,
		"total_score", a.Result.TotalScore,
		"trace_id", observe.TraceID(ctx),
	)
}

func (s *Service) fail(ctx context.Context, jobID uuid.UUID, msg string) {
	slog.Warn("call job failed", "job_id", jobID, "error", msg)
	if err := s.store.UpdateJobStatus(ctx, jobID, models.JobStatusFailed, store.WithErrorMessage(msg)); err != nil {
		slog.Error("marking job failed", "job_id", jobID, "error", err)
	}
	s.setStatus(ctx, jobID, models.JobStatusFailed)
}

func (s *Service) setStatus(ctx context.Context, jobID uuid.UUID, status string) {
	s.recorder.RecordJob(ctx, status)
	_ = s.cache.SetJobStatus(ctx, jobID, status, s.jobStatusTTL)
}

func rank(status string) int {
	switch status {
	case models.JobStatusPending:
		return 1
	case models.JobStatusRunning:
		return 2
	case models.JobStatusCompleted, models.JobStatusFailed:
		return 3
	}
	return 0
}
