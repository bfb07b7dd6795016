package pipeline_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kiranshivaraju/callscore/internal/ai/mock"
	"github.com/kiranshivaraju/callscore/internal/lexicon"
	"github.com/kiranshivaraju/callscore/internal/pipeline"
	"github.com/kiranshivaraju/callscore/internal/scoring"
	"github.com/kiranshivaraju/callscore/pkg/models"
)

type recordingObserver struct {
	mu        sync.Mutex
	stages    []string
	fallbacks []string
	grades    []models.Grade
}

func (o *recordingObserver) RecordStage(_ context.Context, stage string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

func (o *recordingObserver) RecordFallback(_ context.Context, component, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks = append(o.fallbacks, component+":"+reason)
}

func (o *recordingObserver) RecordAssessment(_ context.Context, grade models.Grade) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.grades = append(o.grades, grade)
}

func newAssessor(t *testing.T, opts ...pipeline.Option) *pipeline.Assessor {
	t.Helper()
	a, err := pipeline.New(lexicon.Default(), opts...)
	require.NoError(t, err)
	return a
}

func accessor(c models.Classifier) func(context.Context) (models.Classifier, bool) {
	return func(context.Context) (models.Classifier, bool) { return c, true }
}

func russianCall() []models.Utterance {
	return []models.Utterance{
		{Text: "Здравствуйте, чем могу помочь?", Start: 0, End: 2, SpeakerHint: models.NameHint("agent")},
		{Text: "У меня проблема с картой", Start: 2, End: 5, SpeakerHint: models.NameHint("customer")},
		{Text: "Понимаю, решим. Спасибо за обращение", Start: 5, End: 9, SpeakerHint: models.NameHint("agent")},
	}
}

func TestAssessCall_RussianScenario(t *testing.T) {
	a := newAssessor(t)

	analysis, err := a.Analyze(context.Background(), models.Transcript{Segments: russianCall()}, "ru")
	require.NoError(t, err)
	assert.True(t, analysis.Metrics.Greeting)
	assert.True(t, analysis.Metrics.Closing)
	assert.Equal(t, 0, analysis.Metrics.Interruptions)
	assert.Equal(t, []float64{0}, analysis.Metrics.ResponseTimes)
	require.NotNil(t, analysis.Resolution)
	assert.Equal(t, models.StatusUnclear, analysis.Resolution.Status)
	assert.Equal(t, 50.0, analysis.Resolution.Score)
	assert.Equal(t, "Здравствуйте, чем могу помочь? Понимаю, решим. Спасибо за обращение", analysis.AgentText)
	assert.Equal(t, "У меня проблема с картой", analysis.CustomerText)
	assert.Equal(t, 9.0, analysis.Duration)

	result, err := a.AssessCall(context.Background(), russianCall(), "ru")
	require.NoError(t, err)
	assert.Equal(t, 50.0, result.ResolutionScore)
	assert.True(t, result.Details.GreetingProvided)
	assert.True(t, result.Details.ProperClosing)
	assert.Equal(t, 0, result.Details.InterruptionCount)
	assert.Equal(t, "ru", result.Details.Language)
	assert.False(t, result.Details.IssueResolved)
	assert.NotEmpty(t, result.Grade)
}

func mixedSpeakerCall() []models.Utterance {
	return []models.Utterance{
		{Text: "Здравствуйте, чем могу помочь?", Start: 0, End: 2, SpeakerHint: models.NameHint("agent")},
		{Text: "У меня проблема, ужасно", Start: 2, End: 5, SpeakerHint: models.NameHint("customer")},
		{Text: "Спасибо, отлично, всего доброго", Start: 5, End: 8, SpeakerHint: models.NameHint("agent")},
	}
}

func TestAnalyze_ProgressionCoversEveryUtterance(t *testing.T) {
	a := newAssessor(t)

	analysis, err := a.Analyze(context.Background(), models.Transcript{Segments: mixedSpeakerCall()}, "ru")
	require.NoError(t, err)
	require.Len(t, analysis.Progression, 3)
	assert.Equal(t, models.SentimentNeutral, analysis.Progression[0].Sentiment.Label)
	assert.Equal(t, models.SentimentNegative, analysis.Progression[1].Sentiment.Label)
	assert.Equal(t, models.SentimentPositive, analysis.Progression[2].Sentiment.Label)
	assert.Equal(t, []float64{0, 2, 5}, []float64{
		analysis.Progression[0].Timestamp,
		analysis.Progression[1].Timestamp,
		analysis.Progression[2].Timestamp,
	})

	// Customer sentiment is negative with two hits (50 - 25*0.7), plus the
	// neutral to positive trajectory bonus.
	result, err := a.AssessCall(context.Background(), mixedSpeakerCall(), "ru")
	require.NoError(t, err)
	assert.InDelta(t, 42.5, result.EmotionScore, 1e-9)
}

func TestAnalyze_CustomerProgression(t *testing.T) {
	a := newAssessor(t, pipeline.WithCustomerProgression(true))

	analysis, err := a.Analyze(context.Background(), models.Transcript{Segments: mixedSpeakerCall()}, "ru")
	require.NoError(t, err)
	require.Len(t, analysis.Progression, 1)
	assert.Equal(t, models.SentimentNegative, analysis.Progression[0].Sentiment.Label)

	result, err := a.AssessCall(context.Background(), mixedSpeakerCall(), "ru")
	require.NoError(t, err)
	assert.InDelta(t, 32.5, result.EmotionScore, 1e-9)
}

func TestAssessCall_IsDeterministic(t *testing.T) {
	a := newAssessor(t)

	first, err := a.AssessCall(context.Background(), russianCall(), "ru")
	require.NoError(t, err)
	second, err := a.AssessCall(context.Background(), russianCall(), "ru")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAssessCall_EmptyInput(t *testing.T) {
	a := newAssessor(t)

	result, err := a.AssessCall(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, models.SentimentNeutral, result.Details.CustomerSentiment)
	assert.Equal(t, "ru", result.Details.Language)
	assert.Zero(t, result.Details.CallDuration)
	assert.Equal(t, 50.0, result.ResolutionScore)
}

func TestAssessCall_InvalidTiming(t *testing.T) {
	tests := []struct {
		name string
		utt  models.Utterance
	}{
		{"NaN start", models.Utterance{Text: "алло", Start: math.NaN(), End: 1}},
		{"infinite end", models.Utterance{Text: "алло", Start: 0, End: math.Inf(1)}},
		{"negative start", models.Utterance{Text: "алло", Start: -1, End: 1}},
		{"end before start", models.Utterance{Text: "алло", Start: 5, End: 4}},
	}
	a := newAssessor(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := a.AssessCall(context.Background(), []models.Utterance{tt.utt}, "ru")
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, errors.Is(err, pipeline.ErrAssessmentFailed))
			assert.True(t, errors.Is(err, pipeline.ErrInvalidTiming))
		})
	}
}

func TestAssessCall_PanicBecomesAssessmentFailed(t *testing.T) {
	c := mock.NewClassifier()
	c.ClassifyFunc = func(context.Context, string) (models.Classification, error) {
		panic("model exploded")
	}
	a := newAssessor(t, pipeline.WithSentimentClassifier(accessor(c)))

	result, err := a.AssessCall(context.Background(), russianCall(), "ru")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, pipeline.ErrAssessmentFailed)
	assert.Contains(t, err.Error(), pipeline.StageSentiment)
}

func TestAssessCall_CallsSentimentModelOnce(t *testing.T) {
	c := mock.NewStaticClassifier("negative", 0.9)
	a := newAssessor(t, pipeline.WithSentimentClassifier(accessor(c)))

	calls := []models.Utterance{
		{Text: "Добрый день", Start: 0, End: 1, SpeakerHint: models.NameHint("operator")},
		{Text: "Ужасно, ничего не работает", Start: 1, End: 3, SpeakerHint: models.NameHint("client")},
		{Text: "Проблема осталась, плохо", Start: 4, End: 6, SpeakerHint: models.NameHint("client")},
	}
	_, err := a.AssessCall(context.Background(), calls, "ru")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Calls())
}

func TestAssessCall_ClassifierFailureFallsBack(t *testing.T) {
	obs := &recordingObserver{}
	c := mock.NewFailingClassifier(errors.New("connection refused"))
	a := newAssessor(t,
		pipeline.WithSentimentClassifier(accessor(c)),
		pipeline.WithResolutionClassifier(accessor(c)),
		pipeline.WithObserver(obs),
	)

	result, err := a.AssessCall(context.Background(), russianCall(), "ru")
	require.NoError(t, err)
	assert.Equal(t, 50.0, result.ResolutionScore)
	assert.NotEmpty(t, obs.fallbacks)
}

func TestAssessCall_ResolutionModelConsultedWhenUnclear(t *testing.T) {
	c := mock.NewStaticClassifier("resolved", 0.8)
	a := newAssessor(t, pipeline.WithResolutionClassifier(accessor(c)))

	result, err := a.AssessCall(context.Background(), russianCall(), "ru")
	require.NoError(t, err)
	assert.Equal(t, 90.0, result.ResolutionScore)
	assert.True(t, result.Details.IssueResolved)
	assert.Equal(t, 1, c.Calls())
}

func TestAssessCall_ObserverSeesEveryStage(t *testing.T) {
	obs := &recordingObserver{}
	a := newAssessor(t, pipeline.WithObserver(obs))

	result, err := a.AssessCall(context.Background(), russianCall(), "ru")
	require.NoError(t, err)
	assert.Equal(t, []string{
		pipeline.StageAttribution,
		pipeline.StageSentiment,
		pipeline.StageResolution,
		pipeline.StageMetrics,
		pipeline.StageScoring,
	}, obs.stages)
	assert.Equal(t, []models.Grade{result.Grade}, obs.grades)
}

func TestAssessTranscript_LanguageFallback(t *testing.T) {
	a := newAssessor(t)
	transcript := models.Transcript{
		Segments: []models.Utterance{
			{Text: "Сәлеметсіз бе, қалай көмектесе аламын?", Start: 0, End: 3, SpeakerHint: models.ChannelHint(1)},
			{Text: "Мәселе шешілді, рахмет", Start: 3, End: 6, SpeakerHint: models.ChannelHint(0)},
		},
		Language: "kk",
		Duration: 200,
	}

	result, err := a.AssessTranscript(context.Background(), transcript, "")
	require.NoError(t, err)
	assert.Equal(t, "kk", result.Details.Language)
	assert.True(t, result.Details.GreetingProvided)
	assert.Equal(t, 200.0, result.Details.CallDuration)
	assert.Equal(t, 90.0, result.ResolutionScore)

	result, err = a.AssessTranscript(context.Background(), transcript, "RU")
	require.NoError(t, err)
	assert.Equal(t, "ru", result.Details.Language)
}

func TestAssessCall_UnsupportedLanguageUsesDefaultLexicon(t *testing.T) {
	a := newAssessor(t)

	result, err := a.AssessCall(context.Background(), russianCall(), "de")
	require.NoError(t, err)
	assert.True(t, result.Details.GreetingProvided)
	assert.Equal(t, "de", result.Details.Language)
}

func TestNew_RejectsInvalidWeights(t *testing.T) {
	_, err := pipeline.New(lexicon.Default(), pipeline.WithWeights(scoring.Weights{Emotion: 1, Resolution: 1}))
	require.Error(t, err)
}

func TestDuration(t *testing.T) {
	tests := []struct {
		name string
		t    models.Transcript
		want float64
	}{
		{"empty", models.Transcript{}, 0},
		{"declared", models.Transcript{Duration: 42, Segments: []models.Utterance{{Start: 0, End: 10}}}, 42},
		{"span", models.Transcript{Segments: []models.Utterance{{Start: 3, End: 4}, {Start: 1, End: 2}, {Start: 5, End: 12}}}, 11},
		{"declared infinite", models.Transcript{Duration: math.Inf(1), Segments: []models.Utterance{{Start: 0, End: 7}}}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pipeline.Duration(tt.t))
		})
	}
}

func TestAssessCall_TracesAssessmentAndStages(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	a := newAssessor(t, pipeline.WithTracerProvider(tp))
	_, err := a.AssessCall(context.Background(), russianCall(), "ru")
	require.NoError(t, err)

	spans := exp.GetSpans()
	names := make([]string, 0, len(spans))
	var root tracetest.SpanStub
	for _, s := range spans {
		names = append(names, s.Name)
		if s.Name == "pipeline.assess" {
			root = s
		}
	}
	assert.ElementsMatch(t, []string{
		"pipeline.attribution", "pipeline.sentiment", "pipeline.resolution",
		"pipeline.metrics", "pipeline.scoring", "pipeline.assess",
	}, names)
	for _, s := range spans {
		if s.Name != "pipeline.assess" {
			assert.Equal(t, root.SpanContext.SpanID(), s.Parent.SpanID(), s.Name)
		}
	}
}
