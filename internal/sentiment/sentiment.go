// Package sentiment estimates the polarity of call text from phrase
// lexicons, optionally fused with an ML classifier.
package sentiment

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/kiranshivaraju/callscore/internal/ai"
	"github.com/kiranshivaraju/callscore/internal/lexicon"
	"github.com/kiranshivaraju/callscore/pkg/models"
)

const (
	keywordWeight  = 0.7
	modelWeight    = 0.3
	maxKeywordConf = 0.9
	snippetRunes   = 100
)

// Label fragments are checked negative first so that "dissatisfied" is not
// read as "satisfied".
var (
	negativeFragments = []string{"negative", "anger", "angry", "sad", "frustrat", "disappoint", "dissatisf", "unsatisf", "disgust", "fear"}
	positiveFragments = []string{"positive", "joy", "happy", "satisf", "gratitude", "relief"}
)

// FallbackRecorder is notified whenever the classifier could not be used.
type FallbackRecorder interface {
	RecordFallback(ctx context.Context, component, reason string)
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithClassifier enables the model pass.
func WithClassifier(get ai.Accessor) Option {
	return func(e *Estimator) { e.classifier = get }
}

// WithFallbackRecorder reports classifier fallbacks to r.
func WithFallbackRecorder(r FallbackRecorder) Option {
	return func(e *Estimator) { e.recorder = r }
}

// Estimator is safe for concurrent use.
type Estimator struct {
	lex        *lexicon.Lexicon
	classifier ai.Accessor
	recorder   FallbackRecorder
}

// New returns an Estimator over lex.
func New(lex *lexicon.Lexicon, opts ...Option) *Estimator {
	e := &Estimator{lex: lex}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Analyze classifies text. Blank text is neutral without touching the model.
// When a classifier is configured it is called once; agreement raises the
// confidence and disagreement keeps the keyword result.
func (e *Estimator) Analyze(ctx context.Context, text, language string) models.SentimentResult {
	if strings.TrimSpace(text) == "" {
		return models.NeutralSentiment()
	}
	kw := e.Keyword(text, language)
	if e.classifier == nil {
		return kw
	}

	c, ok := e.classifier(ctx)
	if !ok {
		e.fallback(ctx, "unavailable")
		return kw
	}
	cls, err := c.Classify(ctx, text)
	if err != nil {
		slog.Warn("sentiment classifier failed, using keyword result", "provider", c.Name(), "error", err)
		e.fallback(ctx, reason(err))
		return kw
	}

	if MapLabel(cls.Label) != kw.Label {
		return kw
	}
	conf := clamp01(cls.Score)
	return models.SentimentResult{
		Label:      kw.Label,
		Confidence: keywordWeight*kw.Confidence + modelWeight*conf,
		Method:     models.MethodFused,
	}
}

// Keyword runs the lexicon pass only.
func (e *Estimator) Keyword(text, language string) models.SentimentResult {
	set := e.lex.For(language)
	pos := set.Count(lexicon.Positive, text)
	neg := set.Count(lexicon.Negative, text)

	switch {
	case pos > neg:
		return models.SentimentResult{Label: models.SentimentPositive, Confidence: keywordConfidence(pos), Method: models.MethodKeyword}
	case neg > pos:
		return models.SentimentResult{Label: models.SentimentNegative, Confidence: keywordConfidence(neg), Method: models.MethodKeyword}
	default:
		return models.NeutralSentiment()
	}
}

// Track returns the sentiment of every utterance in the given order.
//
// Unlike Analyze, Track never consults the classifier: each entry is the
// keyword result, even when a model is configured. An assessment therefore
// makes at most one sentiment model call, on the customer text in Analyze,
// and the progression does not change when a model is enabled.
func (e *Estimator) Track(utterances []models.Utterance, language string) []models.ProgressionEntry {
	out := make([]models.ProgressionEntry, 0, len(utterances))
	for _, u := range utterances {
		var s models.SentimentResult
		if strings.TrimSpace(u.Text) == "" {
			s = models.NeutralSentiment()
		} else {
			s = e.Keyword(u.Text, language)
		}
		out = append(out, models.ProgressionEntry{
			Timestamp: u.Start,
			Sentiment: s,
			Snippet:   snippet(u.Text),
		})
	}
	return out
}

// MapLabel maps a classifier label onto positive, negative or neutral.
func MapLabel(label string) models.Sentiment {
	l := strings.ToLower(label)
	for _, f := range negativeFragments {
		if strings.Contains(l, f) {
			return models.SentimentNegative
		}
	}
	for _, f := range positiveFragments {
		if strings.Contains(l, f) {
			return models.SentimentPositive
		}
	}
	return models.SentimentNeutral
}

func (e *Estimator) fallback(ctx context.Context, why string) {
	if e.recorder != nil {
		e.recorder.RecordFallback(ctx, "sentiment", why)
	}
}

func reason(err error) string {
	switch {
	case errors.Is(err, ai.ErrInferenceTimeout):
		return "timeout"
	case errors.Is(err, ai.ErrInvalidResponse):
		return "invalid_response"
	default:
		return "error"
	}
}

func keywordConfidence(n int) float64 {
	return min(maxKeywordConf, 0.5+0.1*float64(n))
}

func clamp01(f float64) float64 {
	return min(max(f, 0), 1)
}

func snippet(text string) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) <= snippetRunes {
		return string(r)
	}
	return string(r[:snippetRunes])
}
