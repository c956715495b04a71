package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

var jobCols = []string{"id", "title", "company", "description", "match_score", "reasoning", "application_draft", "url", "status", "created_at", "generation_error"}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewStore(context.Background(), Config{})
	require.Error(t, err)
	_, err = NewStoreWithPool(nil)
	require.Error(t, err)
}

func TestMigrateAppliesSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS jobs").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS jobs_match_score_idx").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS user_profile").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertJobReportsConflict(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	created := time.Unix(1_700_000_000, 0).UTC()
	job := pipeline.Job{
		ID:          "job-1",
		Title:       "Go Dev",
		Company:     "Acme",
		Description: "Build things",
		MatchScore:  87,
		Reasoning:   "Strong fit",
		URL:         "https://example.com/jobs/1",
		Status:      pipeline.JobStatusOpen,
		CreatedAt:   created,
	}
	args := []any{job.ID, job.Title, job.Company, job.Description, job.MatchScore, job.Reasoning,
		job.ApplicationDraft, job.URL, "OPEN", created, job.GenerationError}

	mock.ExpectExec("INSERT INTO jobs").WithArgs(args...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO jobs").WithArgs(args...).WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := store.InsertJob(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.InsertJob(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobExists(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT EXISTS").WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.JobExists(context.Background(), "job-1")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, title").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	_, err := store.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, pipeline.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListJobsScansRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	created := time.Unix(1_700_000_000, 0).UTC()
	draft := "# Letter"
	rows := pgxmock.NewRows(jobCols).
		AddRow("b", "Senior Go", "Acme", "desc", 92, "great", &draft, "https://example.com/b", "COMPLETED", created, (*string)(nil)).
		AddRow("a", "Go Dev", "Acme", "desc", 40, "meh", (*string)(nil), "https://example.com/a", "OPEN", created, (*string)(nil))
	mock.ExpectQuery("ORDER BY match_score DESC").WillReturnRows(rows)

	jobs, err := store.ListJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "b", jobs[0].ID)
	assert.Equal(t, pipeline.JobStatusCompleted, jobs[0].Status)
	require.NotNil(t, jobs[0].ApplicationDraft)
	assert.Equal(t, draft, *jobs[0].ApplicationDraft)
	assert.Nil(t, jobs[1].ApplicationDraft)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteDraftCommits(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	created := time.Unix(1_700_000_000, 0).UTC()
	draft := "# Letter"

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE jobs SET application_draft").WithArgs("job-1", draft, "COMPLETED").
		WillReturnRows(pgxmock.NewRows(jobCols).
			AddRow("job-1", "Go Dev", "Acme", "desc", 80, "fit", &draft, "https://example.com/1", "COMPLETED", created, (*string)(nil)))
	mock.ExpectCommit()

	job, err := store.CompleteDraft(context.Background(), "job-1", draft)
	require.NoError(t, err)
	assert.Equal(t, pipeline.JobStatusCompleted, job.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteDraftRollsBackMissingJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE jobs SET application_draft").WithArgs("missing", "x", "COMPLETED").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.CompleteDraft(context.Background(), "missing", "x")
	require.ErrorIs(t, err, pipeline.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordGenerationError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE jobs SET generation_error").WithArgs("job-1", "model down").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE jobs SET generation_error").WithArgs("missing", "model down").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.RecordGenerationError(context.Background(), "job-1", "model down"))
	require.ErrorIs(t, store.RecordGenerationError(context.Background(), "missing", "model down"), pipeline.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAllJobsWrapsError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM jobs").WillReturnError(errors.New("boom"))

	err := store.DeleteAllJobs(context.Background())
	require.ErrorContains(t, err, "delete jobs")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRoundTrip(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	profile := pipeline.Profile{
		Role:      "Go Dev",
		Skills:    "Go, Postgres",
		MinSalary: 70000,
		JobURLs:   []string{"https://example.com/careers"},
		CV:        pipeline.CVData{Education: "BSc"},
	}
	mock.ExpectExec("INSERT INTO user_profile").
		WithArgs("Go Dev", "Go, Postgres", 70000, "", "",
			[]byte(`["https://example.com/careers"]`),
			[]byte(`{"education":"BSc","experience":null,"projects":null}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("FROM user_profile").
		WillReturnRows(pgxmock.NewRows([]string{"role", "skills", "min_salary", "location", "preferences", "job_urls", "cv_data"}).
			AddRow("Go Dev", "Go, Postgres", 70000, "", "", []byte(`["https://example.com/careers"]`), []byte(`{"education":"BSc"}`)))

	require.NoError(t, store.SaveProfile(context.Background(), profile))
	got, err := store.GetProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, profile.JobURLs, got.JobURLs)
	assert.Equal(t, "BSc", got.CV.Education)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileMissing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM user_profile").WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("DELETE FROM user_profile").WillReturnResult(pgxmock.NewResult("DELETE", 0))

	_, err := store.GetProfile(context.Background())
	require.ErrorIs(t, err, pipeline.ErrNotFound)
	require.ErrorIs(t, store.DeleteProfile(context.Background()), pipeline.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPingWrapsError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	err = store.Ping(context.Background())
	require.ErrorContains(t, err, "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}
