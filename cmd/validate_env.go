package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"sglang-chat/internal/envcheck"
	"sglang-chat/internal/ui"
)

const validateEnvLongDesc string = `Check the deployment environment before launching SGLang.

Verifies that the .env file exists, that HF_TOKEN is set to a real value,
reports the optional MODEL_PATH, SERVER_HOST, SERVER_PORT and
TENSOR_PARALLEL_SIZE settings, and checks local model paths on disk.
With --check-token the token and model access are verified against the
HuggingFace Hub.

Exits 1 when any check fails.`

type validateEnvCommander struct {
	exampleFile string
	checkToken  bool
	hubURL      string
	hubTimeout  time.Duration
}

func newValidateEnvCmd(root *rootCommander) *cobra.Command {
	cmder := &validateEnvCommander{}

	cmd := &cobra.Command{
		Use:   "validate-env",
		Short: "Validate the .env configuration for an SGLang deployment",
		Long:  validateEnvLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, root.envFile)
		},
	}

	cmd.Flags().StringVar(&cmder.exampleFile, "example-file", ".env.example", "Template suggested when the .env file is missing")
	cmd.Flags().BoolVar(&cmder.checkToken, "check-token", false, "Verify HF_TOKEN and model access against the HuggingFace Hub")
	cmd.Flags().StringVar(&cmder.hubURL, "hub-url", envcheck.DefaultHubURL, "HuggingFace Hub base URL")
	cmd.Flags().DurationVar(&cmder.hubTimeout, "hub-timeout", 10*time.Second, "Timeout for HuggingFace Hub requests")
	_ = cmd.Flags().MarkHidden("hub-url")

	return cmd
}

func (c *validateEnvCommander) run(cmd *cobra.Command, envFile string) error {
	opts := envcheck.Options{
		EnvFile:     envFile,
		ExampleFile: c.exampleFile,
	}
	if c.checkToken {
		opts.Hub = envcheck.NewHTTPHub(c.hubURL, c.hubTimeout)
	}

	validator, err := envcheck.NewValidator(opts)
	if err != nil {
		return err
	}

	display := newDisplay(cmd.OutOrStdout(), false)
	display.PrintRule()
	display.PrintHeading("SGLang Environment Validation")
	display.PrintRule()
	display.Println("")

	report := validator.Run(cmd.Context())
	for _, check := range report.Checks {
		display.PrintHeading(check.Name + ":")
		for _, line := range check.Lines {
			printStatus(display, line.Status, line.Message)
		}
		display.Println("")
	}

	display.PrintRule()
	display.PrintHeading("Summary:")
	display.Println("")
	for _, check := range report.Checks {
		switch check.Status {
		case envcheck.StatusFailed:
			display.PrintFailure(check.Name + ": FAILED")
		case envcheck.StatusSkipped:
			display.PrintWarning(check.Name + ": SKIPPED")
		default:
			display.PrintSuccess(check.Name + ": OK")
		}
	}
	display.Println("")
	display.PrintRule()
	display.Println("")

	if !report.Passed() {
		display.PrintFailure("Some checks failed")
		display.Println("Fix the errors above before deploying.")
		return errReported
	}

	display.PrintSuccess("All checks passed!")
	display.Println("You're ready to deploy SGLang.")
	return nil
}

func printStatus(d *ui.Display, status envcheck.Status, msg string) {
	switch status {
	case envcheck.StatusOK:
		d.PrintSuccess(msg)
	case envcheck.StatusWarning, envcheck.StatusSkipped:
		d.PrintWarning(msg)
	case envcheck.StatusFailed:
		d.PrintFailure(msg)
	default:
		d.PrintInfo(msg)
	}
}
