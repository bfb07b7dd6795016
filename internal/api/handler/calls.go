package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/callscore/internal/api/response"
	"github.com/kiranshivaraju/callscore/internal/calls"
	"github.com/kiranshivaraju/callscore/pkg/models"
)

// CallSubmitter defines the background job operations the handlers depend on.
type CallSubmitter interface {
	SubmitCall(ctx context.Context, p calls.CallParams) (*models.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// NewSubmitCallHandler returns an http.HandlerFunc for POST /api/v1/calls.
func NewSubmitCallHandler(svc CallSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitCallRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		job, err := svc.SubmitCall(r.Context(), calls.CallParams{
			WorkerID: req.WorkerID,
			AudioURL: req.AudioURL,
			Language: req.Language,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Location", "/api/v1/jobs/"+job.ID.String())
		response.Accepted(w, map[string]string{
			"job_id": job.ID.String(),
			"status": job.Status,
		})
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc CallSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_JOB_ID", "Invalid job ID format", nil)
			return
		}

		job, err := svc.GetJob(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, job)
	}
}
