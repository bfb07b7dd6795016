package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/callscore/internal/api/response"
	"github.com/kiranshivaraju/callscore/internal/calls"
	"github.com/kiranshivaraju/callscore/internal/pipeline"
	"github.com/kiranshivaraju/callscore/internal/store"
	"github.com/kiranshivaraju/callscore/pkg/models"
)

const (
	maxBodyBytes = 5 << 20
	// maxUtterances mirrors the max tag on assessRequest.Utterances.
	maxUtterances = 5000
	defaultLimit  = 20
	maxLimit      = 100
)

// Assessor defines the assessment operations the handlers depend on.
type Assessor interface {
	Assess(ctx context.Context, p calls.AssessParams) (*models.Assessment, bool, error)
	GetAssessment(ctx context.Context, id uuid.UUID) (*models.Assessment, error)
	LatestAssessment(ctx context.Context, workerID string) (*models.Assessment, error)
	ListAssessments(ctx context.Context, filter store.AssessmentFilter) ([]*models.Assessment, int, error)
}

// NewAssessHandler returns an http.HandlerFunc for POST /api/v1/assessments.
// A new assessment answers 201; a resubmitted transcript answers 200 with the
// stored assessment.
func NewAssessHandler(svc Assessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assessRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		a, reused, err := svc.Assess(r.Context(), calls.AssessParams{
			WorkerID:   req.WorkerID,
			Language:   req.Language,
			Duration:   req.Duration,
			Utterances: req.Utterances,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if reused {
			response.JSON(w, a)
			return
		}
		response.Created(w, a)
	}
}

// NewGetAssessmentHandler returns an http.HandlerFunc for
// GET /api/v1/assessments/{assessmentID}.
func NewGetAssessmentHandler(svc Assessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "assessmentID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_ASSESSMENT_ID", "Invalid assessment ID format", nil)
			return
		}

		a, err := svc.GetAssessment(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, a)
	}
}

// NewLatestAssessmentHandler returns an http.HandlerFunc for
// GET /api/v1/assessments/latest. The optional worker_id query parameter
// narrows it to one worker.
func NewLatestAssessmentHandler(svc Assessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.LatestAssessment(r.Context(), strings.TrimSpace(r.URL.Query().Get("worker_id")))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, a)
	}
}

// NewListWorkerAssessmentsHandler returns an http.HandlerFunc for
// GET /api/v1/workers/{workerID}/assessments.
func NewListWorkerAssessmentsHandler(svc Assessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		page, ok := intParam(q.Get("page"), 1)
		if !ok || page < 1 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "page must be a positive integer", nil)
			return
		}
		limit, ok := intParam(q.Get("limit"), defaultLimit)
		if !ok || limit < 1 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
			return
		}
		limit = min(limit, maxLimit)

		filter := store.AssessmentFilter{
			WorkerID: chi.URLParam(r, "workerID"),
			Grade:    models.Grade(q.Get("grade")),
			Page:     page,
			Limit:    limit,
		}
		if s := q.Get("since"); s != "" {
			since, err := time.Parse(time.RFC3339, s)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "since must be a valid RFC3339 timestamp", nil)
				return
			}
			filter.Since = since
		}

		items, total, err := svc.ListAssessments(r.Context(), filter)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if items == nil {
			items = []*models.Assessment{}
		}
		response.Collection(w, items, response.Meta(page, limit, total))
	}
}

func intParam(v string, def int) (int, bool) {
	if v == "" {
		return def, true
	}
	i, err := strconv.Atoi(v)
	return i, err == nil
}

// writeServiceError maps service and pipeline errors onto the error envelope.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, calls.ErrInvalidRequest):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case errors.Is(err, pipeline.ErrInvalidTiming):
		response.Error(w, http.StatusUnprocessableEntity, "INVALID_TIMING", err.Error(), nil)
	case errors.Is(err, pipeline.ErrAssessmentFailed):
		response.Error(w, http.StatusInternalServerError, "ASSESSMENT_FAILED",
			"The call could not be assessed", nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
