package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/callscore/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateAssessment(ctx context.Context, a *models.Assessment) error
	GetAssessment(ctx context.Context, id uuid.UUID) (*models.Assessment, error)
	LatestAssessment(ctx context.Context, workerID string) (*models.Assessment, error)
	ListAssessments(ctx context.Context, filter AssessmentFilter) ([]*models.Assessment, int, error)
	FindAssessmentByFingerprint(ctx context.Context, workerID, fingerprint string) (*models.Assessment, error)

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
}

// AssessmentFilter narrows ListAssessments. Zero values mean no filter.
type AssessmentFilter struct {
	WorkerID string
	Grade    models.Grade
	Since    time.Time
	Page     int
	Limit    int
}

type jobUpdateParams struct {
	ErrorMessage *string
	AssessmentID *uuid.UUID
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithAssessmentID(id uuid.UUID) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.AssessmentID = &id
	}
}
