package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kiranshivaraju/callscore/internal/store"
	"github.com/kiranshivaraju/callscore/pkg/models"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("callscore_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))
	// A second run must be a no-op
	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newAssessment(workerID string, total float64, created time.Time) *models.Assessment {
	return &models.Assessment{
		ID:          uuid.New(),
		WorkerID:    workerID,
		Language:    "ru",
		Fingerprint: fmt.Sprintf("fp-%s-%v", workerID, total),
		Result: models.AssessmentResult{
			EmotionScore:         60,
			ResolutionScore:      50,
			CommunicationScore:   75,
			ProfessionalismScore: 90,
			EmpathyScore:         60,
			EfficiencyScore:      70,
			TotalScore:           total,
			Grade:                models.GradeGood,
			Strengths:            []string{"Highly professional communication"},
			Improvements:         []string{"Improve issue resolution effectiveness"},
			Details: models.Details{
				CallDuration:      9,
				Language:          "ru",
				GreetingProvided:  true,
				ProperClosing:     true,
				CustomerSentiment: models.SentimentNeutral,
			},
		},
		CreatedAt: created,
	}
}

// --- Assessment Tests ---

func TestAssessment_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	a := newAssessment("worker-1", 68.4, now)
	require.NoError(t, s.CreateAssessment(ctx, a))

	got, err := s.GetAssessment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.WorkerID, got.WorkerID)
	assert.Equal(t, a.Fingerprint, got.Fingerprint)
	assert.Equal(t, a.Result, got.Result)
	assert.True(t, now.Equal(got.CreatedAt))
}

func TestAssessment_EmptyFeedbackRoundTripsAsEmptySlices(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	a := newAssessment("worker-1", 50, time.Now().UTC())
	a.Result.Strengths = nil
	a.Result.Improvements = nil
	require.NoError(t, s.CreateAssessment(ctx, a))

	got, err := s.GetAssessment(ctx, a.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.Result.Strengths)
	assert.Empty(t, got.Result.Strengths)
	assert.NotNil(t, got.Result.Improvements)
}

func TestAssessment_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetAssessment(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAssessment_DuplicateID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	a := newAssessment("worker-1", 50, time.Now().UTC())
	require.NoError(t, s.CreateAssessment(ctx, a))
	assert.ErrorIs(t, s.CreateAssessment(ctx, a), store.ErrDuplicateKey)
}

func TestAssessment_Latest(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, err := s.LatestAssessment(ctx, "")
	require.ErrorIs(t, err, store.ErrNotFound)

	base := time.Now().UTC().Truncate(time.Microsecond)
	older := newAssessment("worker-1", 40, base.Add(-time.Hour))
	newest := newAssessment("worker-2", 80, base)
	middle := newAssessment("worker-1", 60, base.Add(-time.Minute))
	for _, a := range []*models.Assessment{older, newest, middle} {
		require.NoError(t, s.CreateAssessment(ctx, a))
	}

	got, err := s.LatestAssessment(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, newest.ID, got.ID)

	got, err = s.LatestAssessment(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, middle.ID, got.ID)
}

func TestAssessment_ListPaginated(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	for i := range 5 {
		require.NoError(t, s.CreateAssessment(ctx, newAssessment("worker-1", float64(50+i), base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, s.CreateAssessment(ctx, newAssessment("worker-2", 99, base)))

	page1, total, err := s.ListAssessments(ctx, store.AssessmentFilter{WorkerID: "worker-1", Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page1, 2)
	assert.Equal(t, 54.0, page1[0].Result.TotalScore, "newest first")

	page3, _, err := s.ListAssessments(ctx, store.AssessmentFilter{WorkerID: "worker-1", Page: 3, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, 50.0, page3[0].Result.TotalScore)

	all, total, err := s.ListAssessments(ctx, store.AssessmentFilter{})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	assert.Len(t, all, 6)

	recent, total, err := s.ListAssessments(ctx, store.AssessmentFilter{WorkerID: "worker-1", Since: base.Add(3 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, recent, 2)
}

func TestAssessment_ListEmpty(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	got, total, err := s.ListAssessments(context.Background(), store.AssessmentFilter{WorkerID: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAssessment_FindByFingerprint(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	a := newAssessment("worker-1", 70, time.Now().UTC())
	require.NoError(t, s.CreateAssessment(ctx, a))

	got, err := s.FindAssessmentByFingerprint(ctx, "worker-1", a.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = s.FindAssessmentByFingerprint(ctx, "worker-2", a.Fingerprint)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Job Tests ---

func newJob(now time.Time) *models.Job {
	return &models.Job{
		ID: uuid.New(), WorkerID: "worker-1", AudioURL: "https://calls.example.com/1.wav",
		Language: "ru", Status: models.JobStatusPending, CreatedAt: now, UpdatedAt: now,
	}
}

func TestJob_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	job := newJob(now)
	err := s.CreateJob(ctx, job)
	require.NoError(t, err)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", got.Status)
	assert.Equal(t, job.AudioURL, got.AudioURL)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.AssessmentID)
}

func TestJob_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetJob(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_UpdateStatusPendingToRunning(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newJob(time.Now().UTC())
	require.NoError(t, s.CreateJob(ctx, job))

	err := s.UpdateJobStatus(ctx, job.ID, "running")
	require.NoError(t, err)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "running", got.Status)
	assert.NotNil(t, got.StartedAt)
}

func TestJob_UpdateStatusRunningToCompletedWithAssessment(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	a := newAssessment("worker-1", 70, now)
	require.NoError(t, s.CreateAssessment(ctx, a))

	job := newJob(now)
	require.NoError(t, s.CreateJob(ctx, job))
	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, "running"))

	err := s.UpdateJobStatus(ctx, job.ID, "completed", store.WithAssessmentID(a.ID))
	require.NoError(t, err)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
	assert.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.AssessmentID)
	assert.Equal(t, a.ID, *got.AssessmentID)
}

func TestJob_UpdateStatusRunningToFailed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newJob(time.Now().UTC())
	require.NoError(t, s.CreateJob(ctx, job))
	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, "running"))

	err := s.UpdateJobStatus(ctx, job.ID, "failed", store.WithErrorMessage("assessment failed"))
	require.NoError(t, err)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)
	assert.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "assessment failed", *got.ErrorMessage)
}

func TestJob_UpdateStatusInvalidTransition(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newJob(time.Now().UTC())
	require.NoError(t, s.CreateJob(ctx, job))

	err := s.UpdateJobStatus(ctx, job.ID, "completed") // pending -> completed is invalid
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, "failed"))
	err = s.UpdateJobStatus(ctx, job.ID, "running") // failed is terminal
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestJob_UpdateStatusNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.UpdateJobStatus(context.Background(), uuid.New(), "running")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Ping Test ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.Ping(context.Background())
	assert.NoError(t, err)
}
