package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kiranshivaraju/callscore/pkg/models"
)

const assessmentColumns = `id, worker_id, language, fingerprint,
	emotion_score, resolution_score, communication_score, professionalism_score, empathy_score, efficiency_score,
	total_score, grade, strengths, improvements, details, created_at`

const jobColumns = `id, worker_id, audio_url, language, status, assessment_id, error_message,
	started_at, completed_at, created_at, updated_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Assessments ---

func (s *PostgresStore) CreateAssessment(ctx context.Context, a *models.Assessment) error {
	strengths, err := json.Marshal(nonNil(a.Result.Strengths))
	if err != nil {
		return fmt.Errorf("encode strengths: %w", err)
	}
	improvements, err := json.Marshal(nonNil(a.Result.Improvements))
	if err != nil {
		return fmt.Errorf("encode improvements: %w", err)
	}
	details, err := json.Marshal(a.Result.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}

	r := a.Result
	_, err = s.pool.Exec(ctx,
		`INSERT INTO assessments (`+assessmentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		a.ID, a.WorkerID, a.Language, a.Fingerprint,
		r.EmotionScore, r.ResolutionScore, r.CommunicationScore, r.ProfessionalismScore, r.EmpathyScore, r.EfficiencyScore,
		r.TotalScore, string(r.Grade), strengths, improvements, details, a.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAssessment(ctx context.Context, id uuid.UUID) (*models.Assessment, error) {
	a, err := scanAssessment(s.pool.QueryRow(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	return a, nil
}

// LatestAssessment returns the most recent assessment, optionally for one
// worker only.
func (s *PostgresStore) LatestAssessment(ctx context.Context, workerID string) (*models.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments`
	var args []any
	if workerID != "" {
		query += ` WHERE worker_id = $1`
		args = append(args, workerID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT 1`

	a, err := scanAssessment(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest assessment: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListAssessments(ctx context.Context, filter AssessmentFilter) ([]*models.Assessment, int, error) {
	// Build WHERE clause dynamically
	conditions := []string{"TRUE"}
	var args []any
	argIdx := 1

	if filter.WorkerID != "" {
		conditions = append(conditions, fmt.Sprintf("worker_id = $%d", argIdx))
		args = append(args, filter.WorkerID)
		argIdx++
	}
	if filter.Grade != "" {
		conditions = append(conditions, fmt.Sprintf("grade = $%d", argIdx))
		args = append(args, string(filter.Grade))
		argIdx++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, filter.Since)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM assessments WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count assessments: %w", err)
	}

	// Normalize pagination
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT %s FROM assessments WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		assessmentColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	assessments := []*models.Assessment{}
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan assessment: %w", err)
		}
		assessments = append(assessments, a)
	}
	return assessments, total, rows.Err()
}

// FindAssessmentByFingerprint returns the newest assessment of the worker
// with the given transcript fingerprint.
func (s *PostgresStore) FindAssessmentByFingerprint(ctx context.Context, workerID, fingerprint string) (*models.Assessment, error) {
	a, err := scanAssessment(s.pool.QueryRow(ctx,
		`SELECT `+assessmentColumns+` FROM assessments
		 WHERE worker_id = $1 AND fingerprint = $2 ORDER BY created_at DESC LIMIT 1`, workerID, fingerprint))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find assessment by fingerprint: %w", err)
	}
	return a, nil
}

func scanAssessment(row pgx.Row) (*models.Assessment, error) {
	var (
		a                                models.Assessment
		grade                            string
		strengths, improvements, details []byte
	)
	r := &a.Result
	if err := row.Scan(&a.ID, &a.WorkerID, &a.Language, &a.Fingerprint,
		&r.EmotionScore, &r.ResolutionScore, &r.CommunicationScore, &r.ProfessionalismScore, &r.EmpathyScore, &r.EfficiencyScore,
		&r.TotalScore, &grade, &strengths, &improvements, &details, &a.CreatedAt); err != nil {
		return nil, err
	}
	r.Grade = models.Grade(grade)
	if err := json.Unmarshal(strengths, &r.Strengths); err != nil {
		return nil, fmt.Errorf("decode strengths: %w", err)
	}
	if err := json.Unmarshal(improvements, &r.Improvements); err != nil {
		return nil, fmt.Errorf("decode improvements: %w", err)
	}
	if err := json.Unmarshal(details, &r.Details); err != nil {
		return nil, fmt.Errorf("decode details: %w", err)
	}
	r.Strengths = nonNil(r.Strengths)
	r.Improvements = nonNil(r.Improvements)
	return &a, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, worker_id, audio_url, language, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.WorkerID, job.AudioURL, job.Language, job.Status, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.WorkerID, &j.AudioURL, &j.Language, &j.Status, &j.AssessmentID, &j.ErrorMessage,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

var validTransitions = map[string][]string{
	models.JobStatusPending: {models.JobStatusRunning, models.JobStatusFailed},
	models.JobStatusRunning: {models.JobStatusCompleted, models.JobStatusFailed},
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	// Fetch current status
	var currentStatus string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}

	if !slices.Contains(validTransitions[currentStatus], status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE jobs SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if status == models.JobStatusRunning {
		query += fmt.Sprintf(", started_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if params.AssessmentID != nil {
		query += fmt.Sprintf(", assessment_id = $%d", argIdx)
		args = append(args, *params.AssessmentID)
		argIdx++
	}

	// Only apply when the status is still the one read above
	query += fmt.Sprintf(" WHERE id = $1 AND status = $%d", argIdx)
	args = append(args, currentStatus)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, currentStatus)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
