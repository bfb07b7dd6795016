package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job tracks an asynchronous audio assessment. The API returns a job_id on POST /api/v1/calls;
// the client polls GET /api/v1/jobs/{job_id} until status is completed or failed.
type Job struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	WorkerID     string     `db:"worker_id"     json:"worker_id"`
	AudioURL     string     `db:"audio_url"     json:"audio_url"`
	Language     string     `db:"language"      json:"language,omitempty"`
	Status       string     `db:"status"        json:"status"`
	AssessmentID *uuid.UUID `db:"assessment_id" json:"assessment_id,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	StartedAt    *time.Time `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt  *time.Time `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"    json:"updated_at"`
}
