// Package cmd defines the CLI of the job analyzer: the API server, the
// pipeline workers and schema migration.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/app"
	"github.com/code-by-fh/ai-job-analyzer/internal/config"
	"github.com/code-by-fh/ai-job-analyzer/internal/logging"
	"github.com/code-by-fh/ai-job-analyzer/internal/metrics"
)

var cfgFile string

type runtimeKey struct{}

// runtime is what PersistentPreRunE hands to subcommands.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

// newApp builds the service container. Tests replace it.
var newApp = app.New

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyzer",
		Short: "Crawls career pages and ranks job postings against your profile.",
		Long: `analyzer discovers job postings on a career page, scores each one
against the stored candidate profile with a language model and drafts
application letters on request. The API server and the scraper and AI
workers can run in one process or scale out over Redis or Pub/Sub.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)
			metrics.Init()
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey{}, &runtime{cfg: cfg, logger: logger}))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); ANALYZER_* env vars override it")

	cmd.AddCommand(newServeCmd(), newWorkerCmd(), newAllCmd(), newMigrateCmd())
	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey{}).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
