package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

func TestStoreInsertIsIdempotent(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	job := pipeline.Job{ID: "job-1", Title: "Go Dev", Status: pipeline.JobStatusOpen}

	inserted, err := s.InsertJob(ctx, job)
	require.NoError(t, err)
	assert.True(t, inserted)

	job.Title = "changed"
	inserted, err = s.InsertJob(ctx, job)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "Go Dev", got.Title)

	exists, err := s.JobExists(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = s.InsertJob(ctx, pipeline.Job{})
	require.Error(t, err)
}

func TestStoreListOrdersByScore(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)
	for i, score := range []int{40, 90, 40} {
		_, err := s.InsertJob(ctx, pipeline.Job{ID: string(rune('a' + i)), MatchScore: score, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}
	jobs, err := s.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{jobs[0].ID, jobs[1].ID, jobs[2].ID})
}

func TestStoreCompleteDraft(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	_, err := s.CompleteDraft(ctx, "missing", "draft")
	require.ErrorIs(t, err, pipeline.ErrNotFound)

	_, err = s.InsertJob(ctx, pipeline.Job{ID: "job-1", Status: pipeline.JobStatusOpen})
	require.NoError(t, err)
	require.NoError(t, s.RecordGenerationError(ctx, "job-1", "model down"))

	job, err := s.CompleteDraft(ctx, "job-1", "# Letter")
	require.NoError(t, err)
	assert.Equal(t, pipeline.JobStatusCompleted, job.Status)
	require.NotNil(t, job.ApplicationDraft)
	assert.Equal(t, "# Letter", *job.ApplicationDraft)
	assert.Nil(t, job.GenerationError)

	require.ErrorIs(t, s.RecordGenerationError(ctx, "missing", "x"), pipeline.ErrNotFound)
}

func TestStoreDeleteAllJobs(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	_, _ = s.InsertJob(ctx, pipeline.Job{ID: "job-1"})
	require.NoError(t, s.DeleteAllJobs(ctx))
	jobs, err := s.ListJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestStoreProfileLifecycle(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()

	_, err := s.GetProfile(ctx)
	require.ErrorIs(t, err, pipeline.ErrNotFound)
	require.ErrorIs(t, s.DeleteProfile(ctx), pipeline.ErrNotFound)

	profile := pipeline.Profile{Role: "Go Dev", JobURLs: []string{"https://example.com/careers"}}
	require.NoError(t, s.SaveProfile(ctx, profile))
	profile.JobURLs[0] = "mutated"

	got, err := s.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/careers", got.JobURLs[0])

	require.NoError(t, s.DeleteProfile(ctx))
	_, err = s.GetProfile(ctx)
	require.ErrorIs(t, err, pipeline.ErrNotFound)
	s.Close()
}
