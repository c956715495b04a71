package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API and the live event relay",
		Long: `Serves the REST API, the /ws event stream and the probes. Crawl
stages run in separate worker processes, so the queue, event channel
and lock must be shared backends (Redis or Pub/Sub).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			if rt.cfg.InProcessOnly() {
				rt.logger.Warn("in-memory backends configured; workers in other processes will not see this server's tasks, use 'all' instead",
					zap.String("queue", rt.cfg.Queue.Provider),
					zap.String("events", rt.cfg.Events.Provider),
					zap.String("lock", rt.cfg.Lock.Provider))
			}
			return run(cmd.Context(), rt, services{api: true})
		},
	}
}
