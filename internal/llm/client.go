// Package llm wraps the language model providers used by the analysis stages
// and decodes their answers against a JSON schema.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Provider names.
const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
)

// Request is one completion call.
type Request struct {
	Prompt      string
	Temperature float32
	// JSON asks the provider for a bare JSON document.
	JSON bool
}

// Client is an abstraction over LLM providers.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
	Close() error
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// New creates a client for cfg.Provider.
func New(ctx context.Context, cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	switch cfg.Provider {
	case ProviderGemini, "":
		return NewGemini(ctx, cfg)
	case ProviderOpenRouter:
		return NewOpenRouter(cfg, nil), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
