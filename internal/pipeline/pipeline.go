// Package pipeline runs the call assessment stages in their fixed order:
// speaker attribution, sentiment, resolution, conversation metrics and
// scoring. Stages share no state between calls, so one Assessor serves any
// number of concurrent assessments.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kiranshivaraju/callscore/internal/ai"
	"github.com/kiranshivaraju/callscore/internal/conversation"
	"github.com/kiranshivaraju/callscore/internal/lexicon"
	"github.com/kiranshivaraju/callscore/internal/resolution"
	"github.com/kiranshivaraju/callscore/internal/scoring"
	"github.com/kiranshivaraju/callscore/internal/sentiment"
	"github.com/kiranshivaraju/callscore/internal/speaker"
	"github.com/kiranshivaraju/callscore/pkg/models"
)

var (
	// ErrAssessmentFailed is returned for internal failures. Nothing derived
	// from a failed assessment should be persisted.
	ErrAssessmentFailed = errors.New("assessment failed")
	ErrInvalidTiming    = errors.New("invalid utterance timing")
)

const tracerName = "github.com/kiranshivaraju/callscore/internal/pipeline"

// Stage names reported to the Observer.
const (
	StageAttribution = "attribution"
	StageSentiment   = "sentiment"
	StageResolution  = "resolution"
	StageMetrics     = "metrics"
	StageScoring     = "scoring"
)

// Observer receives pipeline telemetry. All methods must be safe for
// concurrent use.
type Observer interface {
	RecordStage(ctx context.Context, stage string, d time.Duration)
	RecordFallback(ctx context.Context, component, reason string)
	RecordAssessment(ctx context.Context, grade models.Grade)
}

type nopObserver struct{}

func (nopObserver) RecordStage(context.Context, string, time.Duration) {}
func (nopObserver) RecordFallback(context.Context, string, string)     {}
func (nopObserver) RecordAssessment(context.Context, models.Grade)     {}

type settings struct {
	sentiment       ai.Accessor
	resolution      ai.Accessor
	finalSentiment  bool
	customerOnly    bool
	weights         *scoring.Weights
	observer        Observer
	defaultLanguage string
	tracer          trace.Tracer
}

// Option configures an Assessor.
type Option func(*settings)

// WithSentimentClassifier enables the sentiment model pass.
func WithSentimentClassifier(get ai.Accessor) Option {
	return func(s *settings) { s.sentiment = get }
}

// WithResolutionClassifier enables the resolution QA model.
func WithResolutionClassifier(get ai.Accessor) Option {
	return func(s *settings) { s.resolution = get }
}

// WithFinalSentiment makes the resolution modifier follow the keyword
// sentiment of the customer's closing sentences instead of staying neutral.
func WithFinalSentiment(enabled bool) Option {
	return func(s *settings) { s.finalSentiment = enabled }
}

// WithCustomerProgression restricts the sentiment progression to utterances
// attributed to the customer. By default every utterance is tracked.
func WithCustomerProgression(enabled bool) Option {
	return func(s *settings) { s.customerOnly = enabled }
}

// WithWeights overrides the scoring weights.
func WithWeights(w scoring.Weights) Option {
	return func(s *settings) { s.weights = &w }
}

// WithObserver reports stage timings, fallbacks and grades to o.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithTracerProvider traces assessments and stages with tp instead of the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *settings) { s.tracer = tp.Tracer(tracerName) }
}

// WithDefaultLanguage sets the language used when neither the caller nor the
// transcript names one.
func WithDefaultLanguage(lang string) Option {
	return func(s *settings) { s.defaultLanguage = strings.ToLower(strings.TrimSpace(lang)) }
}

// Assessor is the single entry point of the assessment core.
type Assessor struct {
	lex             *lexicon.Lexicon
	attributor      *speaker.Attributor
	estimator       *sentiment.Estimator
	detector        *resolution.Detector
	engine          *scoring.Engine
	observer        Observer
	tracer          trace.Tracer
	defaultLanguage string
	customerOnly    bool
}

// New builds an Assessor over lex.
func New(lex *lexicon.Lexicon, opts ...Option) (*Assessor, error) {
	s := settings{observer: nopObserver{}, tracer: otel.Tracer(tracerName)}
	for _, o := range opts {
		o(&s)
	}
	if s.defaultLanguage == "" {
		s.defaultLanguage = lex.DefaultLanguage()
	}

	var engineOpts []scoring.Option
	if s.weights != nil {
		engineOpts = append(engineOpts, scoring.WithWeights(*s.weights))
	}
	engine, err := scoring.New(lex, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("building scoring engine: %w", err)
	}

	estOpts := []sentiment.Option{sentiment.WithFallbackRecorder(s.observer)}
	if s.sentiment != nil {
		estOpts = append(estOpts, sentiment.WithClassifier(s.sentiment))
	}
	est := sentiment.New(lex, estOpts...)

	detOpts := []resolution.Option{resolution.WithFallbackRecorder(s.observer)}
	if s.resolution != nil {
		detOpts = append(detOpts, resolution.WithQAClassifier(s.resolution))
	}
	if s.finalSentiment {
		detOpts = append(detOpts, resolution.WithFinalSentiment(resolution.SentimentFinal(est)))
	}

	return &Assessor{
		lex:             lex,
		attributor:      speaker.New(lex),
		estimator:       est,
		detector:        resolution.New(lex, detOpts...),
		engine:          engine,
		observer:        s.observer,
		tracer:          s.tracer,
		defaultLanguage: s.defaultLanguage,
		customerOnly:    s.customerOnly,
	}, nil
}

// AssessCall scores one call. An empty language selects the default.
func (a *Assessor) AssessCall(ctx context.Context, utterances []models.Utterance, language string) (*models.AssessmentResult, error) {
	return a.AssessTranscript(ctx, models.Transcript{Segments: utterances}, language)
}

// AssessTranscript scores a transcript. The language is taken from the
// argument, then the transcript, then the default. A positive transcript
// duration is used as the call duration.
func (a *Assessor) AssessTranscript(ctx context.Context, t models.Transcript, language string) (*models.AssessmentResult, error) {
	ctx, span := a.tracer.Start(ctx, "pipeline.assess",
		trace.WithAttributes(attribute.Int("callscore.utterances", len(t.Segments))))
	defer span.End()

	analysis, err := a.Analyze(ctx, t, language)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "analysis failed")
		return nil, err
	}

	var result models.AssessmentResult
	if err := a.stage(ctx, StageScoring, func(context.Context) { result = a.engine.Score(analysis) }); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scoring failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("callscore.language", analysis.Language),
		attribute.Float64("callscore.total_score", result.TotalScore),
		attribute.String("callscore.grade", string(result.Grade)),
	)
	a.observer.RecordAssessment(ctx, result.Grade)
	slog.Debug("call assessed",
		"language", analysis.Language,
		"utterances", len(t.Segments),
		"total_score", result.TotalScore,
		"grade", result.Grade,
	)
	return &result, nil
}

// Analyze runs every stage except scoring.
func (a *Assessor) Analyze(ctx context.Context, t models.Transcript, language string) (models.CallAnalysis, error) {
	if err := validate(t.Segments); err != nil {
		return models.CallAnalysis{}, fmt.Errorf("%w: %w", ErrAssessmentFailed, err)
	}
	lang := a.language(language, t.Language)
	set := a.lex.For(lang)
	utts := speaker.Chronological(t.Segments)

	var (
		agentText, customerText string
		labels                  map[int]models.SpeakerLabel
	)
	err := a.stage(ctx, StageAttribution, func(context.Context) {
		agentText, customerText = a.attributor.Attribute(utts, lang)
		labels = make(map[int]models.SpeakerLabel, len(utts))
		for i, u := range utts {
			labels[i] = a.label(u, lang)
		}
	})
	if err != nil {
		return models.CallAnalysis{}, err
	}

	var (
		overall     models.SentimentResult
		progression []models.ProgressionEntry
	)
	err = a.stage(ctx, StageSentiment, func(ctx context.Context) {
		overall = a.estimator.Analyze(ctx, customerText, lang)
		tracked := utts
		if a.customerOnly {
			tracked = nil
			for i, u := range utts {
				if labels[i] == models.SpeakerCustomer {
					tracked = append(tracked, u)
				}
			}
		}
		progression = a.estimator.Track(tracked, lang)
	})
	if err != nil {
		return models.CallAnalysis{}, err
	}

	var res models.ResolutionResult
	err = a.stage(ctx, StageResolution, func(ctx context.Context) {
		res = a.detector.Detect(ctx, fullText(utts), customerText, lang)
	})
	if err != nil {
		return models.CallAnalysis{}, err
	}

	var metrics models.ConversationMetrics
	err = a.stage(ctx, StageMetrics, func(context.Context) {
		labelOf := func(u models.Utterance) models.SpeakerLabel { return a.label(u, lang) }
		metrics = conversation.Compute(utts, labelOf, agentText, set)
	})
	if err != nil {
		return models.CallAnalysis{}, err
	}

	return models.CallAnalysis{
		Language:     lang,
		AgentText:    agentText,
		CustomerText: customerText,
		Sentiment:    &overall,
		Progression:  progression,
		Resolution:   &res,
		Metrics:      metrics,
		Duration:     Duration(t),
	}, nil
}

// label resolves a speaker by hint, then lexically. Utterances without text
// and without a usable hint stay unknown.
func (a *Assessor) label(u models.Utterance, lang string) models.SpeakerLabel {
	if l := a.attributor.Label(u); l.Known() {
		return l
	}
	if strings.TrimSpace(u.Text) == "" {
		return models.SpeakerUnknown
	}
	return a.attributor.Resolve(u, lang)
}

func (a *Assessor) language(requested, detected string) string {
	for _, l := range []string{requested, detected} {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			return l
		}
	}
	return a.defaultLanguage
}

// stage runs fn in its own span, timing it and converting a panic into
// ErrAssessmentFailed.
func (a *Assessor) stage(ctx context.Context, name string, fn func(context.Context)) (err error) {
	start := time.Now()
	ctx, span := a.tracer.Start(ctx, "pipeline."+name)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in assessment stage", "stage", name, "error", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %s stage: panic: %v", ErrAssessmentFailed, name, r)
			span.SetStatus(codes.Error, "panic")
		}
		a.observer.RecordStage(ctx, name, time.Since(start))
	}()
	fn(ctx)
	return nil
}

// Duration is the transcript duration when known, otherwise the span from
// the earliest start to the latest end. Empty input lasts zero seconds.
func Duration(t models.Transcript) float64 {
	if t.Duration > 0 && !math.IsInf(t.Duration, 0) {
		return t.Duration
	}
	if len(t.Segments) == 0 {
		return 0
	}
	first, last := t.Segments[0].Start, t.Segments[0].End
	for _, u := range t.Segments[1:] {
		first = min(first, u.Start)
		last = max(last, u.End)
	}
	return max(0, last-first)
}

func fullText(utts []models.Utterance) string {
	parts := make([]string, 0, len(utts))
	for _, u := range utts {
		if s := strings.TrimSpace(u.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func validate(utts []models.Utterance) error {
	for i, u := range utts {
		switch {
		case math.IsNaN(u.Start) || math.IsInf(u.Start, 0) || math.IsNaN(u.End) || math.IsInf(u.End, 0):
			return fmt.Errorf("%w: utterance %d has a non-finite time", ErrInvalidTiming, i)
		case u.Start < 0:
			return fmt.Errorf("%w: utterance %d starts before zero", ErrInvalidTiming, i)
		case u.End < u.Start:
			return fmt.Errorf("%w: utterance %d ends before it starts", ErrInvalidTiming, i)
		}
	}
	return nil
}
