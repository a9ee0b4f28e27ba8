package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sglang-chat/internal/logger"
)

const healthLongDesc string = `Probe the SGLang server's /health endpoint.

Exits 0 when the server answers 200 OK and 1 otherwise.

Examples:
  sglang-chat health
  sglang-chat health --host gpu-node-01`

func newHealthCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check whether the SGLang server is online",
		Long:  healthLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.resolveConfig(cmd)
			if err != nil {
				return err
			}

			log := logger.NewLogger(logger.Options{Debug: cfg.Debug, File: cfg.LogFile})
			defer log.Sync()

			display := newDisplay(cmd.OutOrStdout(), false)
			client := newClient(cfg, log)

			if err := client.HealthCheck(cmd.Context()); err != nil {
				log.Debug("health check failed", zap.Error(err))
				display.PrintFailure(fmt.Sprintf("Server at %s is offline: %v", cfg.Address(), err))
				return errReported
			}

			display.PrintSuccess(fmt.Sprintf("Server at %s is online", cfg.Address()))
			return nil
		},
	}
}
