package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sglang-chat/internal/chat"
	"sglang-chat/internal/config"
	"sglang-chat/internal/logger"
	"sglang-chat/internal/sglang"
	"sglang-chat/internal/terminal"
	"sglang-chat/internal/tokens"
	"sglang-chat/internal/ui"
)

var version = "dev"

// errReported marks a failure whose details were already printed
var errReported = errors.New("command failed")

const rootLongDesc string = `Interactive terminal chat against an SGLang server.

Each line you type is sent, together with the whole conversation so far,
to the server's OpenAI-compatible /v1/chat/completions endpoint. The reply
is printed with the round-trip time, tokens per second and token count.

Settings are read from flags, then environment variables (SERVER_HOST,
SERVER_PORT, MODEL_PATH, CHAT_MAX_TOKENS, CHAT_TEMPERATURE, CHAT_TIMEOUT),
then the .env file, then an optional TOML config file.

Examples:
  sglang-chat
  sglang-chat --host gpu-node-01 --port 30000
  sglang-chat --model mistralai/Mixtral-8x7B-Instruct-v0.1 --max-tokens 512`

const rootShortDesc string = "Chat with a model served by SGLang"

type rootCommander struct {
	configFile string
	envFile    string
	debug      bool
	logFile    string

	host    string
	port    int
	timeout time.Duration

	model           string
	maxTokens       int
	temperature     float64
	skipHealthCheck bool
	markdown        bool
}

// NewRootCmd builds the sglang-chat command tree
func NewRootCmd() *cobra.Command {
	cmder := &rootCommander{}

	cmd := &cobra.Command{
		Use:           "sglang-chat",
		Short:         rootShortDesc,
		Long:          rootLongDesc,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cmder.configFile, "config", "", "Path to a TOML config file")
	pf.StringVar(&cmder.envFile, "env-file", config.DefaultEnvFile, "Path to the .env file")
	pf.BoolVar(&cmder.debug, "debug", false, "Enable debug logging")
	pf.StringVar(&cmder.logFile, "log-file", "", "Write logs to this file instead of stderr")
	pf.StringVar(&cmder.host, "host", config.DefaultHost, "SGLang server host")
	pf.IntVar(&cmder.port, "port", config.DefaultPort, "SGLang server port")
	pf.DurationVar(&cmder.timeout, "timeout", config.DefaultTimeout, "Chat request timeout")

	f := cmd.Flags()
	f.StringVar(&cmder.model, "model", config.DefaultModel, "Model identifier sent with each request")
	f.IntVar(&cmder.maxTokens, "max-tokens", config.DefaultMaxTokens, "Maximum tokens to generate per reply")
	f.Float64Var(&cmder.temperature, "temperature", config.DefaultTemperature, "Sampling temperature")
	f.BoolVar(&cmder.skipHealthCheck, "skip-health-check", false, "Start without probing /health")
	f.BoolVar(&cmder.markdown, "markdown", false, "Render replies as markdown")

	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(newHealthCmd(cmder))
	cmd.AddCommand(newModelsCmd(cmder))
	cmd.AddCommand(newValidateEnvCmd(cmder))
	cmd.AddCommand(newStubServerCmd(cmder))

	return cmd
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// resolveConfig layers explicitly set flags over config.Load
func (c *rootCommander) resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(c.configFile, c.envFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = c.host
	}
	if flags.Changed("port") {
		cfg.Port = c.port
	}
	if flags.Changed("timeout") {
		cfg.Timeout = c.timeout
	}
	if flags.Changed("model") {
		cfg.Model = c.model
	}
	if flags.Changed("max-tokens") {
		cfg.MaxTokens = c.maxTokens
	}
	if flags.Changed("temperature") {
		cfg.Temperature = c.temperature
	}
	if flags.Changed("skip-health-check") {
		cfg.SkipHealthCheck = c.skipHealthCheck
	}
	if flags.Changed("markdown") {
		cfg.RenderMarkdown = c.markdown
	}
	if flags.Changed("debug") {
		cfg.Debug = c.debug
	}
	if flags.Changed("log-file") {
		cfg.LogFile = c.logFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// newDisplay sizes markdown output to the terminal when out is one
func newDisplay(out io.Writer, markdown bool) *ui.Display {
	width := 80
	if f, ok := out.(*os.File); ok && terminal.IsTerminal(f) {
		width = terminal.Width(f, width)
	}
	return ui.NewDisplay(out, ui.Options{Markdown: markdown, Width: width})
}

func newClient(cfg *config.Config, log *zap.Logger) *sglang.Client {
	return sglang.NewClient(cfg.BaseURL(), cfg.Timeout,
		sglang.WithLogger(log),
		sglang.WithProbeTimeout(cfg.ProbeTimeout),
	)
}

func (c *rootCommander) run(cmd *cobra.Command) error {
	cfg, err := c.resolveConfig(cmd)
	if err != nil {
		return err
	}

	log := logger.NewLogger(logger.Options{Debug: cfg.Debug, File: cfg.LogFile})
	defer log.Sync()

	display := newDisplay(cmd.OutOrStdout(), cfg.RenderMarkdown)
	client := newClient(cfg, log)

	// An interrupt cancels ctx; Run prints the goodbye and returns nil
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.SkipHealthCheck {
		if err := client.HealthCheck(ctx); err != nil {
			log.Warn("health check failed", zap.String("server", cfg.BaseURL()), zap.Error(err))
			display.PrintFailure(fmt.Sprintf("Server at %s is not online: %v", cfg.Address(), err))
			display.PrintInfo("Start the server first: make start-server")
			display.PrintInfo("Or point the client elsewhere with --host and --port")
			return errReported
		}
		display.PrintSuccess(fmt.Sprintf("Server is online at %s", cfg.Address()))

		models, err := client.ListModels(ctx)
		if err != nil {
			log.Debug("could not list models", zap.Error(err))
		} else {
			display.PrintModels(models)
		}
	}

	session := chat.NewSession(cfg, client, display,
		terminal.NewLineReader(cmd.InOrStdin()),
		chat.WithLogger(log),
		chat.WithCounter(tokens.NewCounter()),
	)

	return session.Run(ctx)
}
