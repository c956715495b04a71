package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

// Store keeps jobs and the profile in memory for development and tests.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]pipeline.Job
	profile *pipeline.Profile
}

// NewStore constructs a Store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]pipeline.Job)}
}

// JobExists reports whether id is stored.
func (s *Store) JobExists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[id]
	return ok, nil
}

// InsertJob stores job unless its id already exists.
func (s *Store) InsertJob(_ context.Context, job pipeline.Job) (bool, error) {
	if job.ID == "" {
		return false, fmt.Errorf("job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return false, nil
	}
	s.jobs[job.ID] = cloneJob(job)
	return true, nil
}

// GetJob fetches a job by ID.
func (s *Store) GetJob(_ context.Context, id string) (pipeline.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return pipeline.Job{}, fmt.Errorf("job %s: %w", id, pipeline.ErrNotFound)
	}
	return cloneJob(job), nil
}

// ListJobs returns all jobs by descending match score, newest first on ties.
func (s *Store) ListJobs(_ context.Context) ([]pipeline.Job, error) {
	s.mu.RLock()
	out := make([]pipeline.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, cloneJob(job))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].MatchScore != out[j].MatchScore {
			return out[i].MatchScore > out[j].MatchScore
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CompleteDraft stores the draft and marks the job COMPLETED.
func (s *Store) CompleteDraft(_ context.Context, id string, draft string) (pipeline.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return pipeline.Job{}, fmt.Errorf("job %s: %w", id, pipeline.ErrNotFound)
	}
	job.ApplicationDraft = &draft
	job.Status = pipeline.JobStatusCompleted
	job.GenerationError = nil
	s.jobs[id] = job
	return cloneJob(job), nil
}

// RecordGenerationError stores the last draft failure on the job.
func (s *Store) RecordGenerationError(_ context.Context, id string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, pipeline.ErrNotFound)
	}
	job.GenerationError = &message
	s.jobs[id] = job
	return nil
}

// DeleteAllJobs clears every job.
func (s *Store) DeleteAllJobs(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]pipeline.Job)
	return nil
}

// GetProfile returns the stored profile.
func (s *Store) GetProfile(_ context.Context) (pipeline.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return pipeline.Profile{}, fmt.Errorf("profile: %w", pipeline.ErrNotFound)
	}
	return cloneProfile(*s.profile), nil
}

// SaveProfile replaces the profile.
func (s *Store) SaveProfile(_ context.Context, profile pipeline.Profile) error {
	p := cloneProfile(profile)
	s.mu.Lock()
	s.profile = &p
	s.mu.Unlock()
	return nil
}

// DeleteProfile removes the profile.
func (s *Store) DeleteProfile(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return fmt.Errorf("profile: %w", pipeline.ErrNotFound)
	}
	s.profile = nil
	return nil
}

// Close is a no-op.
func (s *Store) Close() {}

func cloneJob(job pipeline.Job) pipeline.Job {
	if job.ApplicationDraft != nil {
		d := *job.ApplicationDraft
		job.ApplicationDraft = &d
	}
	if job.GenerationError != nil {
		e := *job.GenerationError
		job.GenerationError = &e
	}
	return job
}

func cloneProfile(p pipeline.Profile) pipeline.Profile {
	p.JobURLs = append([]string(nil), p.JobURLs...)
	p.CV.Experience = append([]pipeline.Experience(nil), p.CV.Experience...)
	p.CV.Projects = append([]pipeline.Project(nil), p.CV.Projects...)
	return p
}

var _ pipeline.Store = (*Store)(nil)
