// Package analysis holds the AI-backed steps of the pipeline: link relevance
// filtering, job scoring, application drafting and CV import.
package analysis

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/llm"
)

// Settings bounds prompt sizes and sampling.
type Settings struct {
	FilterBatchMax   int
	ScorePromptMax   int
	DraftPromptMax   int
	ScoreTemperature float32
	DraftTemperature float32
}

// DefaultSettings mirrors the config defaults.
func DefaultSettings() Settings {
	return Settings{
		FilterBatchMax:   60,
		ScorePromptMax:   3000,
		DraftPromptMax:   2000,
		ScoreTemperature: 0,
		DraftTemperature: 0.7,
	}
}

// Service runs prompts against an llm.Client.
type Service struct {
	client   llm.Client
	settings Settings
	logger   *zap.Logger
}

// New builds a Service.
func New(client llm.Client, settings Settings, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, settings: settings, logger: logger.Named("analysis")}
}

func (s *Service) generateJSON(ctx context.Context, prompt string, temperature float32, schema *llm.Schema, dst any) error {
	raw, err := s.client.Generate(ctx, llm.Request{Prompt: prompt, Temperature: temperature, JSON: true})
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	if err := llm.Decode(raw, schema, dst); err != nil {
		s.logger.Warn("model output rejected", zap.Error(err), zap.Int("raw_len", len(raw)))
		return err
	}
	return nil
}
