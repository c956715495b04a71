package stages

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
	"github.com/code-by-fh/ai-job-analyzer/internal/worker"
)

// AnalyzeJob scores a new job against the profile and stores it.
// Known jobs are skipped and new_job is published only after the insert.
func (h *Handlers) AnalyzeJob(ctx context.Context, task worker.Task) (any, error) {
	var req pipeline.AnalyzeJobRequest
	if err := task.Envelope.Decode(&req); err != nil {
		return nil, err
	}
	logger := h.logger.With(zap.String("job_id", req.ID), zap.String("url", req.URL))

	exists, err := h.deps.Store.JobExists(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("check job: %w", err)
	}
	if exists {
		logger.Debug("job already analyzed")
		return nil, nil
	}

	profileText, err := h.profileText(ctx)
	if err != nil {
		return nil, err
	}

	score, err := h.deps.Analyst.Score(ctx, req.Title, req.Description, profileText)
	if err != nil {
		return nil, err
	}

	job := pipeline.Job{
		ID:          req.ID,
		Title:       req.Title,
		Company:     req.Company,
		Description: req.Description,
		MatchScore:  score.Score,
		Reasoning:   score.Reason,
		URL:         req.URL,
		Status:      pipeline.JobStatusOpen,
		CreatedAt:   h.deps.Clock.Now(),
	}
	inserted, err := h.deps.Store.InsertJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("store job: %w", err)
	}
	if !inserted {
		logger.Debug("job inserted concurrently")
		return nil, nil
	}

	logger.Info("job analyzed", zap.Int("score", job.MatchScore))
	h.publish(ctx, pipeline.NewJob(job))
	return nil, nil
}

func (h *Handlers) profileText(ctx context.Context) (string, error) {
	profile, err := h.deps.Store.GetProfile(ctx)
	if errors.Is(err, pipeline.ErrNotFound) {
		h.logger.Warn("no user profile found, using fallback profile")
		return h.deps.Config.FallbackProfile, nil
	}
	if err != nil {
		return "", fmt.Errorf("load profile: %w", err)
	}
	return profile.Summary(), nil
}

// GenerateApplication drafts a cover letter for a stored job.
func (h *Handlers) GenerateApplication(ctx context.Context, task worker.Task) (any, error) {
	var req pipeline.GenerateApplicationRequest
	if err := task.Envelope.Decode(&req); err != nil {
		return nil, err
	}
	logger := h.logger.With(zap.String("job_id", req.JobID))

	job, err := h.deps.Store.GetJob(ctx, req.JobID)
	if errors.Is(err, pipeline.ErrNotFound) {
		return nil, pipeline.Permanent(fmt.Errorf("generate application: %w", err))
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}

	profile, err := h.deps.Store.GetProfile(ctx)
	if errors.Is(err, pipeline.ErrNotFound) {
		logger.Warn("profile missing, cannot draft application")
		h.publish(ctx, pipeline.GlobalError(ProfileIncompleteMessage))
		h.publish(ctx, pipeline.CrawlCompleted())
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	draft, err := h.deps.Analyst.Draft(ctx, job, profile)
	if err == nil {
		job, err = h.deps.Store.CompleteDraft(ctx, job.ID, draft)
	}
	if err != nil {
		if recErr := h.deps.Store.RecordGenerationError(ctx, req.JobID, err.Error()); recErr != nil {
			logger.Warn("record generation error failed", zap.Error(recErr))
		}
		return nil, err
	}

	logger.Info("application drafted", zap.Int("draft_len", len(draft)))
	h.publish(ctx, pipeline.JobUpdate(job.ID, job.Status, draft))
	return nil, nil
}
