package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/code-by-fh/ai-job-analyzer/internal/llm"
	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

var cvSchema = llm.MustSchema(`{
	"type": "object",
	"required": ["role", "skills", "cv_data"],
	"properties": {
		"role": {"type": "string"},
		"skills": {"type": "string"},
		"min_salary": {"type": ["string", "number", "null"]},
		"location": {"type": ["string", "null"]},
		"cv_data": {
			"type": "object",
			"properties": {
				"education": {"type": "string"},
				"experience": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["company", "role"],
						"properties": {
							"company": {"type": "string"},
							"role": {"type": "string"},
							"duration": {"type": "string"},
							"description": {"type": "string"}
						}
					}
				},
				"projects": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["name"],
						"properties": {
							"name": {"type": "string"},
							"tech_stack": {"type": "string"},
							"description": {"type": "string"}
						}
					}
				}
			}
		}
	}
}`)

const cvPrompt = `You are a data extraction assistant. Extract structured data from the CV text below.
Answer ONLY with valid JSON in this format:
{
  "role": "current or desired role, e.g. Senior Python Developer",
  "skills": "comma separated skills, e.g. Python, Docker, AWS",
  "min_salary": "expected salary as a number if stated, otherwise empty",
  "location": "home or desired location if stated, otherwise 'Remote'",
  "cv_data": {
    "education": "education summary",
    "experience": [{"company": "...", "role": "...", "duration": "...", "description": "..."}],
    "projects": [{"name": "...", "tech_stack": "...", "description": "..."}]
  }
}

CV:

%s`

type cvResponse struct {
	Role      string          `json:"role"`
	Skills    string          `json:"skills"`
	MinSalary json.RawMessage `json:"min_salary"`
	Location  *string         `json:"location"`
	CV        pipeline.CVData `json:"cv_data"`
}

// ParseCV extracts profile fields from plain CV text.
func (s *Service) ParseCV(ctx context.Context, text string) (pipeline.Profile, error) {
	if strings.TrimSpace(text) == "" {
		return pipeline.Profile{}, fmt.Errorf("parse cv: empty text")
	}
	var resp cvResponse
	if err := s.generateJSON(ctx, fmt.Sprintf(cvPrompt, text), s.settings.ScoreTemperature, cvSchema, &resp); err != nil {
		return pipeline.Profile{}, fmt.Errorf("parse cv: %w", err)
	}
	profile := pipeline.Profile{
		Role:      resp.Role,
		Skills:    resp.Skills,
		MinSalary: ParseSalary(resp.MinSalary),
		CV:        resp.CV,
	}
	if resp.Location != nil {
		profile.Location = *resp.Location
	}
	return profile, nil
}

// MergeCV overlays an imported CV onto the stored profile. Empty salary and
// location keep their stored values; the CV section is replaced.
func MergeCV(stored, imported pipeline.Profile) pipeline.Profile {
	out := stored
	if imported.Role != "" {
		out.Role = imported.Role
	}
	if imported.Skills != "" {
		out.Skills = imported.Skills
	}
	if imported.MinSalary > 0 {
		out.MinSalary = imported.MinSalary
	}
	if imported.Location != "" {
		out.Location = imported.Location
	}
	out.CV = imported.CV
	return out
}

// ParseSalary reads a salary given as number or as free text such as "70.000 EUR".
func ParseSalary(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	v, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return v
}
