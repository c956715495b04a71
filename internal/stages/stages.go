// Package stages implements the task handlers of the job discovery pipeline.
package stages

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/analysis"
	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
	"github.com/code-by-fh/ai-job-analyzer/internal/storage"
	"github.com/code-by-fh/ai-job-analyzer/internal/worker"
)

// ProfileIncompleteMessage is shown when a draft is requested without a profile.
const ProfileIncompleteMessage = "Profile incomplete. Please upload a CV or fill in your settings first."

// Analyst is the AI side of the pipeline.
type Analyst interface {
	Filter(ctx context.Context, baseURL string, links []string) ([]string, error)
	Score(ctx context.Context, title, description, profile string) (analysis.Score, error)
	Draft(ctx context.Context, job pipeline.Job, profile pipeline.Profile) (string, error)
}

// Finisher ends a crawl run.
type Finisher interface {
	Finish(ctx context.Context, runID string)
}

// Config tunes the handlers.
type Config struct {
	// DescriptionMax caps the stored job description in runes.
	DescriptionMax int
	// FallbackProfile is scored against when no profile is stored.
	FallbackProfile string
}

// Deps are the collaborators shared by all handlers. Fetcher is only needed
// by scraper stages and Analyst only by AI stages.
type Deps struct {
	Fetcher   pipeline.Fetcher
	Analyst   Analyst
	Store     pipeline.Store
	Queue     pipeline.Queue
	Publisher pipeline.Publisher
	Finisher  Finisher
	Archiver  *storage.PageArchiver
	Clock     pipeline.Clock
	Config    Config
	Logger    *zap.Logger
}

// Handlers builds the task handlers bound to deps.
type Handlers struct {
	deps   Deps
	logger *zap.Logger
}

// New validates deps and applies defaults.
func New(deps Deps) (*Handlers, error) {
	if deps.Store == nil || deps.Queue == nil || deps.Publisher == nil {
		return nil, fmt.Errorf("store, queue and publisher are required")
	}
	if deps.Clock == nil {
		deps.Clock = pipeline.SystemClock{}
	}
	if deps.Config.DescriptionMax <= 0 {
		deps.Config.DescriptionMax = 4000
	}
	if deps.Config.FallbackProfile == "" {
		deps.Config.FallbackProfile = "Python Dev"
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{deps: deps, logger: logger.Named("stages")}, nil
}

// Register binds the handlers of the given queues. Scraper stages need a
// Fetcher and AI stages an Analyst.
func (h *Handlers) Register(reg worker.Registry, queues ...pipeline.QueueName) error {
	for _, q := range queues {
		switch q {
		case pipeline.QueueScraper:
			if h.deps.Fetcher == nil {
				return fmt.Errorf("%s needs a fetcher", q)
			}
			reg.Register(pipeline.TaskFetchLinks, h.FetchLinks)
			reg.Register(pipeline.TaskScheduleCrawls, h.ScheduleCrawls)
			reg.Register(pipeline.TaskScrapeDetail, h.ScrapeDetail)
		case pipeline.QueueAI:
			if h.deps.Analyst == nil {
				return fmt.Errorf("%s needs an analyst", q)
			}
			reg.Register(pipeline.TaskFilterURLs, h.FilterURLs)
			reg.Register(pipeline.TaskAnalyzeJob, h.AnalyzeJob)
			reg.Register(pipeline.TaskGenerateApplication, h.GenerateApplication)
		default:
			return fmt.Errorf("unknown queue %q", q)
		}
	}
	return nil
}

func (h *Handlers) publish(ctx context.Context, evt pipeline.Event) {
	if err := h.deps.Publisher.Publish(ctx, evt); err != nil {
		h.logger.Warn("publish event failed", zap.String("type", string(evt.Type)), zap.Error(err))
	}
}
