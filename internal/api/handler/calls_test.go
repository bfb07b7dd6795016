package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/callscore/internal/calls"
	"github.com/kiranshivaraju/callscore/internal/store"
	"github.com/kiranshivaraju/callscore/pkg/models"
)

// --- mock CallSubmitter ---

type mockSubmitter struct {
	submitFn func(p calls.CallParams) (*models.Job, error)
	getFn    func(id uuid.UUID) (*models.Job, error)
}

func (m *mockSubmitter) SubmitCall(_ context.Context, p calls.CallParams) (*models.Job, error) {
	return m.submitFn(p)
}
func (m *mockSubmitter) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	return m.getFn(id)
}

func TestSubmitCallHandler_Accepted(t *testing.T) {
	jobID := uuid.New()
	var captured calls.CallParams
	svc := &mockSubmitter{submitFn: func(p calls.CallParams) (*models.Job, error) {
		captured = p
		return &models.Job{ID: jobID, Status: models.JobStatusPending}, nil
	}}

	body := map[string]any{"worker_id": "w-1", "audio_url": " https://calls.example.com/a.wav ", "language": "kk"}
	rec := serve("/api/v1/calls", NewSubmitCallHandler(svc), jsonReq(t, http.MethodPost, "/api/v1/calls", body))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.AudioURL != "https://calls.example.com/a.wav" || captured.Language != "kk" {
		t.Errorf("unexpected params: %+v", captured)
	}
	if loc := rec.Header().Get("Location"); loc != "/api/v1/jobs/"+jobID.String() {
		t.Errorf("unexpected Location %q", loc)
	}
	data := parseData(t, rec)
	if data["job_id"] != jobID.String() || data["status"] != "pending" {
		t.Errorf("unexpected body: %v", data)
	}
}

func TestSubmitCallHandler_Validation(t *testing.T) {
	svc := &mockSubmitter{submitFn: func(calls.CallParams) (*models.Job, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	tests := []struct {
		name string
		body any
	}{
		{"malformed json", `{`},
		{"missing worker", map[string]any{"audio_url": "https://a/b.wav"}},
		{"missing audio", map[string]any{"worker_id": "w"}},
		{"local path", map[string]any{"worker_id": "w", "audio_url": "/etc/passwd"}},
		{"ftp url", map[string]any{"worker_id": "w", "audio_url": "ftp://a/b.wav"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve("/api/v1/calls", NewSubmitCallHandler(svc), jsonReq(t, http.MethodPost, "/api/v1/calls", tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestGetJobHandler(t *testing.T) {
	assessmentID := uuid.New()
	job := &models.Job{ID: uuid.New(), WorkerID: "w-1", Status: models.JobStatusCompleted, AssessmentID: &assessmentID}
	svc := &mockSubmitter{getFn: func(id uuid.UUID) (*models.Job, error) {
		if id == job.ID {
			return job, nil
		}
		return nil, store.ErrNotFound
	}}
	h := NewGetJobHandler(svc)
	pattern := "/api/v1/jobs/{jobID}"

	rec := serve(pattern, h, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID.String(), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := parseData(t, rec)
	if data["status"] != "completed" || data["assessment_id"] != assessmentID.String() {
		t.Errorf("unexpected job body: %v", data)
	}

	rec = serve(pattern, h, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	rec = serve(pattern, h, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/123", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := parseErr(t, rec); code != "INVALID_JOB_ID" {
		t.Errorf("expected INVALID_JOB_ID, got %s", code)
	}
}
