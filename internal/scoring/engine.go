// Package scoring turns the signals of one analyzed call into category
// scores, a weighted total, a grade and written feedback. Score is a pure
// function of its input and never fails.
package scoring

import (
	"math"
	"unicode/utf8"

	"github.com/kiranshivaraju/callscore/internal/conversation"
	"github.com/kiranshivaraju/callscore/internal/lexicon"
	"github.com/kiranshivaraju/callscore/pkg/models"
)

const (
	emotionBase         = 50.0
	communicationBase   = 70.0
	professionalismBase = 50.0
	empathyBase         = 60.0
	efficiencyBase      = 70.0
	resolutionBase      = 50.0
)

// trajectory maps (first, last) progression labels to an emotion adjustment.
var trajectory = map[[2]models.Sentiment]float64{
	{models.SentimentNegative, models.SentimentPositive}: 25,
	{models.SentimentNegative, models.SentimentNeutral}:  15,
	{models.SentimentNeutral, models.SentimentPositive}:  10,
	{models.SentimentPositive, models.SentimentNegative}: -20,
	{models.SentimentNeutral, models.SentimentNegative}:  -15,
}

// Option configures an Engine.
type Option func(*Engine) error

// WithWeights replaces DefaultWeights.
func WithWeights(w Weights) Option {
	return func(e *Engine) error {
		if err := w.Validate(); err != nil {
			return err
		}
		e.weights = w
		return nil
	}
}

// Engine scores analyses. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	lex     *lexicon.Lexicon
	weights Weights
}

// New returns an Engine over lex.
func New(lex *lexicon.Lexicon, opts ...Option) (*Engine, error) {
	e := &Engine{lex: lex, weights: DefaultWeights}
	for _, o := range opts {
		if err := o(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Weights returns the weights in use.
func (e *Engine) Weights() Weights { return e.weights }

// Score computes the assessment for a. Missing inputs score as the category
// base. The total, grade and feedback are derived from the unrounded category
// scores; only the reported scores are rounded to one decimal.
func (e *Engine) Score(a models.CallAnalysis) models.AssessmentResult {
	c := e.Categories(a)
	total := clamp(e.weights.Total(c))
	strengths, improvements := Feedback(c)

	return models.AssessmentResult{
		EmotionScore:         round1(c.Emotion),
		ResolutionScore:      round1(c.Resolution),
		CommunicationScore:   round1(c.Communication),
		ProfessionalismScore: round1(c.Professionalism),
		EmpathyScore:         round1(c.Empathy),
		EfficiencyScore:      round1(c.Efficiency),
		TotalScore:           round1(total),
		Grade:                GradeFor(total),
		Strengths:            strengths,
		Improvements:         improvements,
		Details:              e.details(a),
	}
}

// Categories returns the clamped, unrounded category scores for a.
func (e *Engine) Categories(a models.CallAnalysis) Categories {
	set := e.lex.For(a.Language)
	return Categories{
		Emotion:         clamp(emotion(a)),
		Resolution:      clamp(resolution(a)),
		Communication:   clamp(communication(a, set)),
		Professionalism: clamp(professionalism(a, set)),
		Empathy:         clamp(empathy(a, set)),
		Efficiency:      clamp(efficiency(a)),
	}
}

func emotion(a models.CallAnalysis) float64 {
	score := emotionBase
	if s := a.Sentiment; s != nil {
		conf := finite(s.Confidence, models.DefaultConfidence)
		switch s.Label {
		case models.SentimentPositive:
			score += 30 * conf
		case models.SentimentNegative:
			score -= 25 * conf
		case models.SentimentNeutral:
			score += 5 * conf
		}
	}
	if n := len(a.Progression); n >= 2 {
		first, last := a.Progression[0].Sentiment.Label, a.Progression[n-1].Sentiment.Label
		score += trajectory[[2]models.Sentiment{first, last}]
	}
	return score
}

func resolution(a models.CallAnalysis) float64 {
	if a.Resolution == nil {
		return resolutionBase
	}
	return finite(a.Resolution.Score, resolutionBase)
}

func communication(a models.CallAnalysis, set *lexicon.Set) float64 {
	score := communicationBase
	score -= 8 * float64(a.Metrics.Interruptions)

	if mean, ok := meanResponse(a.Metrics.ResponseTimes); ok {
		switch {
		case mean > 10:
			score -= 20
		case mean > 5:
			score -= 10
		case mean < 2:
			score += 10
		}
	} else {
		score -= 5
	}

	score += math.Min(15, 3*float64(set.Count(lexicon.Clarity, a.AgentText)))
	score -= math.Min(20, 5*float64(set.Count(lexicon.Unclear, a.AgentText)))
	return score
}

func professionalism(a models.CallAnalysis, set *lexicon.Set) float64 {
	score := professionalismBase
	if a.Metrics.Greeting {
		score += 20
	}
	if a.Metrics.Closing {
		score += 20
	}
	score += math.Min(20, 3*float64(set.Count(lexicon.Politeness, a.AgentText)))
	score -= math.Min(40, 15*float64(set.Count(lexicon.Rudeness, a.AgentText)))
	// Extra-polite phrases are deliberately uncapped.
	score += 5 * float64(set.Count(lexicon.ExtraPolite, a.AgentText))
	return score
}

func empathy(a models.CallAnalysis, set *lexicon.Set) float64 {
	score := empathyBase
	score += math.Min(25, 8*float64(set.Count(lexicon.Empathy, a.AgentText)))
	if a.Sentiment != nil && a.Sentiment.Label == models.SentimentNegative {
		score += 10
	}
	return score
}

func efficiency(a models.CallAnalysis) float64 {
	score := efficiencyBase

	if mean, ok := meanResponse(a.Metrics.ResponseTimes); ok {
		switch {
		case mean < 2:
			score += 15
		case mean < 4:
			score += 10
		case mean > 8:
			score -= 15
		case mean > 5:
			score -= 10
		}
	}

	score -= 5 * float64(a.Metrics.Interruptions)

	// A zero-length call is short, not unknown.
	switch d := finite(a.Duration, 0); {
	case d >= 180 && d <= 480:
		score += 10
	case d > 600:
		score -= 10
	case d < 60:
		score -= 5
	}
	return score
}

func (e *Engine) details(a models.CallAnalysis) models.Details {
	avg, _ := meanResponse(a.Metrics.ResponseTimes)
	customer := models.SentimentNeutral
	if a.Sentiment != nil {
		customer = a.Sentiment.Label
	}
	resolved := false
	if a.Resolution != nil {
		resolved = a.Resolution.Resolved
	}
	return models.Details{
		CallDuration:        finite(a.Duration, 0),
		Language:            e.language(a.Language),
		GreetingProvided:    a.Metrics.Greeting,
		ProperClosing:       a.Metrics.Closing,
		InterruptionCount:   a.Metrics.Interruptions,
		AverageResponseTime: round1(avg),
		CustomerSentiment:   customer,
		IssueResolved:       resolved,
		AgentTextLength:     utf8.RuneCountInString(a.AgentText),
		CustomerTextLength:  utf8.RuneCountInString(a.CustomerText),
	}
}

func (e *Engine) language(lang string) string {
	if lang == "" {
		return e.lex.DefaultLanguage()
	}
	return lang
}

func meanResponse(times []float64) (float64, bool) {
	mean, ok := conversation.MeanResponseTime(times)
	if !ok || math.IsNaN(mean) || math.IsInf(mean, 0) {
		return 0, false
	}
	return mean, true
}

func finite(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(100, math.Max(0, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
