package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sglang-chat/internal/logger"
)

func newModelsCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models served by the SGLang server",
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

			models, err := client.ListModels(cmd.Context())
			if err != nil {
				log.Debug("listing models failed", zap.Error(err))
				display.PrintFailure(fmt.Sprintf("Could not list models at %s: %v", cfg.Address(), err))
				return errReported
			}

			display.PrintModels(models)
			return nil
		},
	}
}
