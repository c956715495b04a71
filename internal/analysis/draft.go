package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/code-by-fh/ai-job-analyzer/internal/llm"
	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

const draftPrompt = `You are a professional career coach. Write a convincing cover letter in Markdown.

JOB POSTING: %s at %s
%s

APPLICANT: %s
%s`

// Draft writes a markdown cover letter for job on behalf of profile.
func (s *Service) Draft(ctx context.Context, job pipeline.Job, profile pipeline.Profile) (string, error) {
	cv := profile.CV.Format()
	if cv == "" {
		cv = "No detailed experience provided."
	}
	prompt := fmt.Sprintf(draftPrompt,
		job.Title, job.Company,
		pipeline.Truncate(job.Description, s.settings.DraftPromptMax),
		profile.Role, cv,
	)
	out, err := s.client.Generate(ctx, llm.Request{Prompt: prompt, Temperature: s.settings.DraftTemperature})
	if err != nil {
		return "", fmt.Errorf("draft application: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("draft application: empty output")
	}
	return out, nil
}
