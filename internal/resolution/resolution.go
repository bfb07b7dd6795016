// Package resolution decides whether the customer's issue was resolved.
package resolution

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kiranshivaraju/callscore/internal/ai"
	"github.com/kiranshivaraju/callscore/internal/lexicon"
	"github.com/kiranshivaraju/callscore/internal/sentiment"
	"github.com/kiranshivaraju/callscore/pkg/models"
)

// ResolvedThreshold is exclusive: a score must exceed it to count as resolved.
const ResolvedThreshold = 70.0

const finalSentences = 3

var baseScores = map[models.ResolutionStatus]float64{
	models.StatusResolved:   90,
	models.StatusPartial:    60,
	models.StatusUnclear:    50,
	models.StatusUnresolved: 20,
}

var modifiers = map[models.Sentiment]float64{
	models.SentimentPositive: 10,
	models.SentimentNeutral:  0,
	models.SentimentNegative: -10,
}

// FinalSentimentFunc rates the closing sentences of the customer's text.
// sentences holds at most the last three, oldest first.
type FinalSentimentFunc func(ctx context.Context, sentences []string, language string) models.Sentiment

// NeutralFinal always answers neutral. It is the default.
func NeutralFinal(context.Context, []string, string) models.Sentiment {
	return models.SentimentNeutral
}

// SentimentFinal rates the closing sentences with the estimator's keyword pass.
func SentimentFinal(est *sentiment.Estimator) FinalSentimentFunc {
	return func(_ context.Context, sentences []string, language string) models.Sentiment {
		return est.Keyword(strings.Join(sentences, ". "), language).Label
	}
}

// FallbackRecorder is notified whenever the QA classifier could not be used.
type FallbackRecorder interface {
	RecordFallback(ctx context.Context, component, reason string)
}

// Option configures a Detector.
type Option func(*Detector)

// WithFinalSentiment replaces the neutral final-sentiment signal.
func WithFinalSentiment(f FinalSentimentFunc) Option {
	return func(d *Detector) {
		if f != nil {
			d.final = f
		}
	}
}

// WithQAClassifier consults a model when no keyword matches.
func WithQAClassifier(get ai.Accessor) Option {
	return func(d *Detector) { d.qa = get }
}

// WithFallbackRecorder reports QA classifier fallbacks to r.
func WithFallbackRecorder(r FallbackRecorder) Option {
	return func(d *Detector) { d.recorder = r }
}

// Detector is safe for concurrent use.
type Detector struct {
	lex      *lexicon.Lexicon
	final    FinalSentimentFunc
	qa       ai.Accessor
	recorder FallbackRecorder
}

// New returns a Detector over lex.
func New(lex *lexicon.Lexicon, opts ...Option) *Detector {
	d := &Detector{lex: lex, final: NeutralFinal}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect classifies customerText by the first matching keyword category,
// adjusts the base score by the final customer sentiment and clamps the
// result to [0,100]. fullText is what the QA model reads when keywords
// leave the status unclear.
func (d *Detector) Detect(ctx context.Context, fullText, customerText, language string) models.ResolutionResult {
	set := d.lex.For(language)

	status := set.MatchResolution(customerText)
	if status == models.StatusUnclear {
		status = d.askModel(ctx, fullText, customerText)
	}

	final := d.final(ctx, LastSentences(customerText, finalSentences), set.Language())
	score := clamp(baseScores[status]+modifiers[final], 0, 100)

	return models.ResolutionResult{
		Status:         status,
		Score:          score,
		Resolved:       score > ResolvedThreshold,
		FinalSentiment: normalizeSentiment(final),
		Language:       set.Language(),
	}
}

func (d *Detector) askModel(ctx context.Context, fullText, customerText string) models.ResolutionStatus {
	if d.qa == nil {
		return models.StatusUnclear
	}
	text := fullText
	if strings.TrimSpace(text) == "" {
		text = customerText
	}
	if strings.TrimSpace(text) == "" {
		return models.StatusUnclear
	}

	c, ok := d.qa(ctx)
	if !ok {
		d.fallback(ctx, "unavailable")
		return models.StatusUnclear
	}
	cls, err := c.Classify(ctx, text)
	if err != nil {
		slog.Warn("resolution classifier failed, keeping keyword result", "provider", c.Name(), "error", err)
		d.fallback(ctx, "error")
		return models.StatusUnclear
	}
	status := models.ResolutionStatus(strings.ToLower(strings.TrimSpace(cls.Label)))
	if !status.Valid() {
		slog.Debug("resolution classifier returned unknown status", "provider", c.Name(), "label", cls.Label)
		return models.StatusUnclear
	}
	return status
}

func (d *Detector) fallback(ctx context.Context, why string) {
	if d.recorder != nil {
		d.recorder.RecordFallback(ctx, "resolution", why)
	}
}

// LastSentences splits text on '.' and returns up to n trailing non-empty
// sentences in their original order.
func LastSentences(text string, n int) []string {
	var out []string
	for _, s := range strings.Split(text, ".") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// unknown labels from a custom FinalSentimentFunc carry no modifier
func normalizeSentiment(s models.Sentiment) models.Sentiment {
	if _, ok := modifiers[s]; ok {
		return s
	}
	return models.SentimentNeutral
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
