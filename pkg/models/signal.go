package models

import (
	"context"
)

// Sentiment is the polarity of a piece of text.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// SentimentMethod records which signal source produced a SentimentResult.
type SentimentMethod string

const (
	MethodKeyword SentimentMethod = "keyword"
	MethodML      SentimentMethod = "ml"
	MethodFused   SentimentMethod = "fused"
)

// DefaultConfidence is the confidence reported for neutral or unclear results.
const DefaultConfidence = 0.5

// SentimentResult is the output of the sentiment estimator. Confidence is
// always set; callers never need to handle a missing value.
type SentimentResult struct {
	Label      Sentiment       `json:"label"`
	Confidence float64         `json:"confidence"`
	Method     SentimentMethod `json:"method"`
}

// NeutralSentiment is the result for empty or unclear text.
func NeutralSentiment() SentimentResult {
	return SentimentResult{Label: SentimentNeutral, Confidence: DefaultConfidence, Method: MethodKeyword}
}

// ProgressionEntry is one point of the customer's emotional trajectory.
type ProgressionEntry struct {
	Timestamp float64         `json:"timestamp"`
	Sentiment SentimentResult `json:"sentiment"`
	Snippet   string          `json:"snippet"`
}

// ResolutionStatus is the keyword classification of the customer's issue.
type ResolutionStatus string

const (
	StatusResolved   ResolutionStatus = "resolved"
	StatusPartial    ResolutionStatus = "partial"
	StatusUnresolved ResolutionStatus = "unresolved"
	StatusUnclear    ResolutionStatus = "unclear"
)

// Valid reports whether s is one of the four known statuses.
func (s ResolutionStatus) Valid() bool {
	switch s {
	case StatusResolved, StatusPartial, StatusUnresolved, StatusUnclear:
		return true
	}
	return false
}

// ResolutionResult is the output of the resolution detector.
type ResolutionResult struct {
	Status         ResolutionStatus `json:"status"`
	Score          float64          `json:"resolution_score"`
	Resolved       bool             `json:"resolved"`
	FinalSentiment Sentiment        `json:"final_sentiment"`
	Language       string           `json:"language"`
}

// ConversationMetrics are the derived turn-taking signals of a call.
type ConversationMetrics struct {
	ResponseTimes []float64 `json:"response_times"`
	Interruptions int       `json:"interruptions"`
	Greeting      bool      `json:"greeting"`
	Closing       bool      `json:"closing"`
}

// Classification is the raw label/score pair returned by an ML classifier.
type Classification struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classifier is the interface all ML integrations must implement.
// Never call a specific backend directly; always inject this interface.
type Classifier interface {
	// Classify labels a single piece of text.
	Classify(ctx context.Context, text string) (Classification, error)
	// Name returns the backend identifier (e.g., "openai", "emotion-http").
	Name() string
}
