package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/llm"
)

var linkListSchema = llm.MustSchema(`{
	"type": "array",
	"items": {"type": "string"}
}`)

const filterPrompt = `You are a crawler filter for a career website.
From the list of URLs below, return a JSON array containing ALL URLs that point to an individual job posting detail page.
Return ONLY the array, copying URLs exactly as given.
Example output: ["https://company.com/jobs/engineer-123", "https://company.com/career/marketing-manager"]

Base: %s
List: %s`

// Filter asks the model which links are job detail pages. At most
// FilterBatchMax links are sent. The result only ever contains links from the
// input, in input order. An empty input returns nil without calling the model.
func (s *Service) Filter(ctx context.Context, baseURL string, links []string) ([]string, error) {
	if len(links) == 0 {
		return nil, nil
	}
	batch := links
	if limit := s.settings.FilterBatchMax; limit > 0 && len(batch) > limit {
		s.logger.Info("truncating filter batch", zap.Int("links", len(links)), zap.Int("max", limit))
		batch = batch[:limit]
	}
	list, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("marshal links: %w", err)
	}

	var picked []string
	if err := s.generateJSON(ctx, fmt.Sprintf(filterPrompt, baseURL, list), s.settings.ScoreTemperature, linkListSchema, &picked); err != nil {
		return nil, fmt.Errorf("filter links: %w", err)
	}
	return intersect(batch, picked), nil
}

func intersect(input, picked []string) []string {
	want := make(map[string]struct{}, len(picked))
	for _, p := range picked {
		want[p] = struct{}{}
	}
	out := make([]string, 0, len(picked))
	for _, link := range input {
		if _, ok := want[link]; ok {
			out = append(out, link)
			delete(want, link)
		}
	}
	return out
}
