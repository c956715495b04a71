// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
	Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	company TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	match_score INTEGER NOT NULL DEFAULT 0,
	reasoning TEXT NOT NULL DEFAULT '',
	application_draft TEXT NULL,
	url TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'OPEN',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	generation_error TEXT NULL
)`,
	`CREATE INDEX IF NOT EXISTS jobs_match_score_idx ON jobs (match_score DESC)`,
	`CREATE TABLE IF NOT EXISTS user_profile (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	role TEXT NOT NULL DEFAULT '',
	skills TEXT NOT NULL DEFAULT '',
	min_salary INTEGER NOT NULL DEFAULT 0,
	location TEXT NOT NULL DEFAULT '',
	preferences TEXT NOT NULL DEFAULT '',
	job_urls JSONB NOT NULL DEFAULT '[]'::jsonb,
	cv_data JSONB NOT NULL DEFAULT '{}'::jsonb
)`,
}

const jobColumns = `id, title, company, description, match_score, reasoning, application_draft, url, status, created_at, generation_error`

// Store persists jobs and the profile in Postgres.
type Store struct {
	pool pool
}

// NewStore connects a pgx pool using cfg.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// JobExists reports whether a job with id is stored.
func (s *Store) JobExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check job %s: %w", id, err)
	}
	return exists, nil
}

// InsertJob stores job unless its id already exists.
func (s *Store) InsertJob(ctx context.Context, job pipeline.Job) (bool, error) {
	if job.ID == "" {
		return false, fmt.Errorf("job id is required")
	}
	if job.Status == "" {
		job.Status = pipeline.JobStatusOpen
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO jobs (`+jobColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO NOTHING`,
		job.ID,
		job.Title,
		job.Company,
		job.Description,
		job.MatchScore,
		job.Reasoning,
		job.ApplicationDraft,
		job.URL,
		string(job.Status),
		job.CreatedAt,
		job.GenerationError,
	)
	if err != nil {
		return false, fmt.Errorf("insert job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetJob fetches a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (pipeline.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		return pipeline.Job{}, notFound(fmt.Sprintf("job %s", id), err)
	}
	return job, nil
}

// ListJobs returns all jobs by descending match score, newest first on ties.
func (s *Store) ListJobs(ctx context.Context) ([]pipeline.Job, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY match_score DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]pipeline.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// CompleteDraft stores the draft and marks the job COMPLETED in one transaction.
func (s *Store) CompleteDraft(ctx context.Context, id string, draft string) (job pipeline.Job, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return pipeline.Job{}, fmt.Errorf("begin draft tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
UPDATE jobs SET application_draft = $2, status = $3, generation_error = NULL
WHERE id = $1
RETURNING `+jobColumns, id, draft, string(pipeline.JobStatusCompleted))
	job, err = scanJob(row)
	if err != nil {
		return pipeline.Job{}, notFound(fmt.Sprintf("job %s", id), err)
	}
	if err = tx.Commit(ctx); err != nil {
		return pipeline.Job{}, fmt.Errorf("commit draft tx: %w", err)
	}
	return job, nil
}

// RecordGenerationError stores the last draft failure on the job.
func (s *Store) RecordGenerationError(ctx context.Context, id string, message string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE jobs SET generation_error = $2 WHERE id = $1`, id, message)
	if err != nil {
		return fmt.Errorf("record generation error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, pipeline.ErrNotFound)
	}
	return nil
}

// DeleteAllJobs clears the jobs table.
func (s *Store) DeleteAllJobs(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM jobs`); err != nil {
		return fmt.Errorf("delete jobs: %w", err)
	}
	return nil
}

// GetProfile returns the singleton profile.
func (s *Store) GetProfile(ctx context.Context) (pipeline.Profile, error) {
	var (
		p       pipeline.Profile
		urlsRaw []byte
		cvRaw   []byte
	)
	err := s.pool.QueryRow(ctx, `
SELECT role, skills, min_salary, location, preferences, job_urls, cv_data
FROM user_profile WHERE id = 1`).Scan(
		&p.Role, &p.Skills, &p.MinSalary, &p.Location, &p.Preferences, &urlsRaw, &cvRaw,
	)
	if err != nil {
		return pipeline.Profile{}, notFound("profile", err)
	}
	if len(urlsRaw) > 0 {
		if err := json.Unmarshal(urlsRaw, &p.JobURLs); err != nil {
			return pipeline.Profile{}, fmt.Errorf("decode job_urls: %w", err)
		}
	}
	if len(cvRaw) > 0 {
		if err := json.Unmarshal(cvRaw, &p.CV); err != nil {
			return pipeline.Profile{}, fmt.Errorf("decode cv_data: %w", err)
		}
	}
	return p, nil
}

// SaveProfile upserts the singleton profile.
func (s *Store) SaveProfile(ctx context.Context, p pipeline.Profile) error {
	urls := p.JobURLs
	if urls == nil {
		urls = []string{}
	}
	urlsJSON, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("marshal job_urls: %w", err)
	}
	cvJSON, err := json.Marshal(p.CV)
	if err != nil {
		return fmt.Errorf("marshal cv_data: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO user_profile (id, role, skills, min_salary, location, preferences, job_urls, cv_data)
VALUES (1,$1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
	role = EXCLUDED.role,
	skills = EXCLUDED.skills,
	min_salary = EXCLUDED.min_salary,
	location = EXCLUDED.location,
	preferences = EXCLUDED.preferences,
	job_urls = EXCLUDED.job_urls,
	cv_data = EXCLUDED.cv_data`,
		p.Role, p.Skills, p.MinSalary, p.Location, p.Preferences, urlsJSON, cvJSON,
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// DeleteProfile removes the singleton profile.
func (s *Store) DeleteProfile(ctx context.Context) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_profile WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("profile: %w", pipeline.ErrNotFound)
	}
	return nil
}

func scanJob(row pgx.Row) (pipeline.Job, error) {
	var (
		job    pipeline.Job
		status string
	)
	err := row.Scan(
		&job.ID,
		&job.Title,
		&job.Company,
		&job.Description,
		&job.MatchScore,
		&job.Reasoning,
		&job.ApplicationDraft,
		&job.URL,
		&status,
		&job.CreatedAt,
		&job.GenerationError,
	)
	if err != nil {
		return pipeline.Job{}, err
	}
	job.Status = pipeline.JobStatus(status)
	return job, nil
}

func notFound(what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, pipeline.ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

var _ pipeline.Store = (*Store)(nil)
