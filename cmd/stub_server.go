package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sglang-chat/internal/logger"
	"sglang-chat/internal/stubserver"
)

const stubServerLongDesc string = `Run a local stand-in for an SGLang server.

Serves /health, /v1/models and /v1/chat/completions. Chat replies echo
the last user message and report word-count usage, which is enough to
smoke-test the chat client without GPUs.

Examples:
  sglang-chat stub-server --listen :30000
  sglang-chat stub-server --latency 2s --omit-usage`

func newStubServerCmd(root *rootCommander) *cobra.Command {
	var stubCfg stubserver.Config

	cmd := &cobra.Command{
		Use:   "stub-server",
		Short: "Run a local OpenAI-compatible stub endpoint",
		Long:  stubServerLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.NewLogger(logger.Options{Debug: root.debug, File: root.logFile})
			defer log.Sync()

			srv := stubserver.New(stubCfg, log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				if err := srv.Shutdown(); err != nil {
					log.Warn("stub server shutdown failed", zap.Error(err))
				}
			}()

			display := newDisplay(cmd.OutOrStdout(), false)
			display.PrintInfo("Stub server listening on " + stubCfg.ListenAddr)

			if err := srv.Run(); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&stubCfg.ListenAddr, "listen", ":30000", "Address to listen on")
	cmd.Flags().StringVar(&stubCfg.Model, "model", "stub-model", "Model id reported by the stub")
	cmd.Flags().StringVar(&stubCfg.Reply, "reply", "", "Fixed reply instead of echoing the prompt")
	cmd.Flags().DurationVar(&stubCfg.Latency, "latency", 0, "Delay before each completion")
	cmd.Flags().BoolVar(&stubCfg.OmitUsage, "omit-usage", false, "Leave usage out of completions")
	cmd.Flags().IntVar(&stubCfg.FailStatus, "fail-status", 0, "Fail every completion with this HTTP status")

	return cmd
}
