package cmd

import (
	"github.com/spf13/cobra"

	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

func newWorkerCmd() *cobra.Command {
	var (
		queues      []string
		concurrency int
		metricsPort int
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consumes pipeline tasks from the scraper and AI queues",
		Example: `  analyzer worker --queues scraper_queue --concurrency 2
  analyzer worker --queues ai_queue --metrics-port 9100`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("queues") {
				queues = rt.cfg.Worker.Queues
			}
			if !cmd.Flags().Changed("concurrency") {
				concurrency = rt.cfg.Worker.Concurrency
			}
			names, err := parseQueues(queues)
			if err != nil {
				return err
			}
			return run(cmd.Context(), rt, services{queues: names, concurrency: concurrency, metricsPort: metricsPort})
		},
	}
	cmd.Flags().StringSliceVar(&queues, "queues", nil, "queues to consume (default from worker.queues)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "workers per queue (default from worker.concurrency)")
	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "port for /metrics and probes; 0 disables")
	return cmd
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Runs the API and every worker in one process",
		Long: `Runs the API, the event relay and workers for all queues in one
process. This is the only mode that works with in-memory backends.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			return run(cmd.Context(), rt, services{api: true, queues: pipeline.Queues(), concurrency: rt.cfg.Worker.Concurrency})
		},
	}
}
