package analysis

import (
	"context"
	"fmt"
	"math"

	"github.com/code-by-fh/ai-job-analyzer/internal/llm"
	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

var scoreSchema = llm.MustSchema(`{
	"type": "object",
	"required": ["score", "reason"],
	"properties": {
		"score": {"type": "number", "minimum": 0, "maximum": 100},
		"reason": {"type": "string"}
	}
}`)

const scorePrompt = `Rate how well the candidate matches the job.
Answer ONLY with JSON: {"score": <number 0-100>, "reason": "<short explanation>"}

Job: %s
%s

Candidate:
%s`

// Score is the model's match assessment.
type Score struct {
	Score  int
	Reason string
}

type scoreResponse struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Score rates a job against the candidate profile text.
func (s *Service) Score(ctx context.Context, title, description, profile string) (Score, error) {
	prompt := fmt.Sprintf(scorePrompt, title, pipeline.Truncate(description, s.settings.ScorePromptMax), profile)
	var resp scoreResponse
	if err := s.generateJSON(ctx, prompt, s.settings.ScoreTemperature, scoreSchema, &resp); err != nil {
		return Score{}, fmt.Errorf("score job: %w", err)
	}
	return Score{Score: int(math.Round(resp.Score)), Reason: resp.Reason}, nil
}
