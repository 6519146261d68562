package main

import (
	"os"

	"github.com/spf13/cobra"

	"sandboxagent/internal/logging"
	"sandboxagent/internal/server/bootstrap"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := logging.Configure(cfg.Logging.Level, cfg.Logging.Format, os.Stderr); err != nil {
				return err
			}
			return bootstrap.RunServer(cfg, version)
		},
	}

	flags := cmd.Flags()
	flags.String("host", "", "Listen host")
	flags.Int("port", 0, "Listen port")
	flags.String("model", "", "Model name passed to the agent CLI")
	flags.String("workdir", "", "Default project directory")
	flags.Bool("metrics", false, "Expose Prometheus metrics at /metrics")

	bindings := map[string]string{
		"host":    "server.host",
		"port":    "server.port",
		"model":   "agent.model",
		"workdir": "session.default_workdir",
		"metrics": "metrics.enabled",
	}
	for flag, key := range bindings {
		_ = opts.viper.BindPFlag(key, flags.Lookup(flag))
	}
	return cmd
}
