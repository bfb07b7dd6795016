package models

import (
	"time"

	"github.com/google/uuid"
)

// Grade is the coarse label derived from the total score.
type Grade string

const (
	GradeExcellent        Grade = "Excellent"
	GradeGood             Grade = "Good"
	GradeSatisfactory     Grade = "Satisfactory"
	GradeNeedsImprovement Grade = "Needs Improvement"
	GradePoor             Grade = "Poor"
)

// CallAnalysis is everything the scoring engine consumes for one call.
// Zero values are valid and score as the category base.
type CallAnalysis struct {
	Language     string              `json:"language"`
	AgentText    string              `json:"agent_text"`
	CustomerText string              `json:"customer_text"`
	Sentiment    *SentimentResult    `json:"sentiment,omitempty"`
	Progression  []ProgressionEntry  `json:"progression"`
	Resolution   *ResolutionResult   `json:"resolution,omitempty"`
	Metrics      ConversationMetrics `json:"metrics"`
	Duration     float64             `json:"duration"`
}

// Details is the management-facing breakdown attached to an assessment.
type Details struct {
	CallDuration        float64   `json:"call_duration"`
	Language            string    `json:"language_detected"`
	GreetingProvided    bool      `json:"greeting_provided"`
	ProperClosing       bool      `json:"proper_closing"`
	InterruptionCount   int       `json:"interruption_count"`
	AverageResponseTime float64   `json:"average_response_time"`
	CustomerSentiment   Sentiment `json:"customer_sentiment"`
	IssueResolved       bool      `json:"issue_resolved"`
	AgentTextLength     int       `json:"worker_text_length"`
	CustomerTextLength  int       `json:"customer_text_length"`
}

// AssessmentResult is the scored evaluation of one call. Created once per
// analysis and never mutated by the pipeline afterwards.
type AssessmentResult struct {
	EmotionScore         float64  `json:"emotion_score"`
	ResolutionScore      float64  `json:"resolution_score"`
	CommunicationScore   float64  `json:"communication_score"`
	ProfessionalismScore float64  `json:"professionalism_score"`
	EmpathyScore         float64  `json:"empathy_score"`
	EfficiencyScore      float64  `json:"efficiency_score"`
	TotalScore           float64  `json:"total_score"`
	Grade                Grade    `json:"performance_grade"`
	Strengths            []string `json:"strengths"`
	Improvements         []string `json:"improvements"`
	Details              Details  `json:"detailed_analysis"`
}

// Assessment is a persisted AssessmentResult with its identifiers.
type Assessment struct {
	ID          uuid.UUID        `db:"id"          json:"id"`
	WorkerID    string           `db:"worker_id"   json:"worker_id"`
	Language    string           `db:"language"    json:"language"`
	Fingerprint string           `db:"fingerprint" json:"fingerprint"`
	Result      AssessmentResult `db:"-"           json:"result"`
	CreatedAt   time.Time        `db:"created_at"  json:"created_at"`
}
