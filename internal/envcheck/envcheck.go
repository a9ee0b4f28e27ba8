// Package envcheck validates the deployment environment an SGLang server
// is launched from: the .env file, the HuggingFace token and the model path.
package envcheck

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Variable names
const (
	VarHFToken            = "HF_TOKEN"
	VarModelPath          = "MODEL_PATH"
	VarServerHost         = "SERVER_HOST"
	VarServerPort         = "SERVER_PORT"
	VarTensorParallelSize = "TENSOR_PARALLEL_SIZE"
)

const (
	defaultModelPath = "meta-llama/Meta-Llama-3-70B-Instruct"
	defaultEnvFile   = ".env"
)

// placeholders shipped in .env.example that count as unset
var tokenPlaceholders = []string{"your_hf_token_here", "your_huggingface_token_here"}

// hubPrefixes mark model paths that live on the Hub rather than on disk
var hubPrefixes = []string{"meta-llama/", "mistralai/", "huggingface/"}

type variable struct {
	name        string
	description string
}

var requiredVars = []variable{
	{VarHFToken, "HuggingFace token (get from https://huggingface.co/settings/tokens)"},
}

var optionalVars = []variable{
	{VarModelPath, "Model path (defaults to " + defaultModelPath + ")"},
	{VarServerHost, "Server host (defaults to 0.0.0.0)"},
	{VarServerPort, "Server port (defaults to 30000)"},
	{VarTensorParallelSize, "Tensor parallelism size (defaults to 4)"},
}

// Options configures a validation run
type Options struct {
	// EnvFile defaults to .env
	EnvFile     string
	ExampleFile string

	// Hub is consulted only when set
	Hub HubClient

	// Getenv reads the process environment; defaults to os.Getenv
	Getenv func(string) string
}

// Validator runs the environment checks
type Validator struct {
	opts Options
	env  map[string]string
}

// NewValidator reads opts.EnvFile, if present, underneath the process
// environment. Variables already set in the process win.
func NewValidator(opts Options) (*Validator, error) {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.EnvFile == "" {
		opts.EnvFile = defaultEnvFile
	}

	env := map[string]string{}
	fileEnv, err := godotenv.Read(opts.EnvFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", opts.EnvFile, err)
	}
	for k, v := range fileEnv {
		env[k] = v
	}

	return &Validator{opts: opts, env: env}, nil
}

func (v *Validator) lookup(name string) string {
	if val := v.opts.Getenv(name); val != "" {
		return val
	}
	return v.env[name]
}

// Run executes every check in order
func (v *Validator) Run(ctx context.Context) Report {
	return Report{Checks: []Check{
		v.checkEnvFile(),
		v.checkVariables(),
		v.checkToken(ctx),
		v.checkModel(ctx),
	}}
}

func (v *Validator) checkEnvFile() Check {
	c := Check{Name: "Environment file", Status: StatusOK}

	if _, err := os.Stat(v.opts.EnvFile); err != nil {
		c.Status = StatusFailed
		c.add(StatusFailed, v.opts.EnvFile+" file not found")
		if v.opts.ExampleFile != "" {
			if _, err := os.Stat(v.opts.ExampleFile); err == nil {
				c.add(StatusInfo, fmt.Sprintf("Copy %s to %s and fill in your values:", v.opts.ExampleFile, v.opts.EnvFile))
				c.add(StatusInfo, fmt.Sprintf("  cp %s %s", v.opts.ExampleFile, v.opts.EnvFile))
			}
		}
		return c
	}

	c.add(StatusOK, v.opts.EnvFile+" file exists")
	return c
}

func (v *Validator) checkVariables() Check {
	c := Check{Name: "Required variables", Status: StatusOK}

	for _, rv := range requiredVars {
		val := v.lookup(rv.name)
		if val == "" || isPlaceholder(val) {
			c.Status = StatusFailed
			c.add(StatusFailed, fmt.Sprintf("%s not set - %s", rv.name, rv.description))
			continue
		}
		c.add(StatusOK, fmt.Sprintf("%s=%s (%s)", rv.name, Mask(val), rv.description))
	}

	for _, ov := range optionalVars {
		if val := v.lookup(ov.name); val != "" {
			c.add(StatusOK, fmt.Sprintf("%s=%s (%s)", ov.name, val, ov.description))
		} else {
			c.add(StatusWarning, fmt.Sprintf("%s not set - %s", ov.name, ov.description))
		}
	}

	return c
}

func (v *Validator) checkToken(ctx context.Context) Check {
	c := Check{Name: "HuggingFace token"}

	token := v.lookup(VarHFToken)
	if token == "" || isPlaceholder(token) {
		c.Status = StatusFailed
		c.add(StatusFailed, "No usable HF_TOKEN to validate")
		return c
	}

	if v.opts.Hub == nil {
		c.Status = StatusSkipped
		c.add(StatusWarning, "Token not validated against the Hub (use --check-token)")
		return c
	}

	name, err := v.opts.Hub.WhoAmI(ctx, token)
	if err != nil {
		c.Status = StatusFailed
		c.add(StatusFailed, fmt.Sprintf("HuggingFace token validation failed: %v", err))
		c.add(StatusInfo, "Check your token at: https://huggingface.co/settings/tokens")
		return c
	}

	c.Status = StatusOK
	c.add(StatusOK, fmt.Sprintf("HuggingFace token valid (user: %s)", name))
	return c
}

// checkModel never fails the run; problems are reported as warnings
func (v *Validator) checkModel(ctx context.Context) Check {
	c := Check{Name: "Model access", Status: StatusOK}

	model := v.lookup(VarModelPath)
	if model == "" {
		model = defaultModelPath
	}

	if !IsHubModel(model) {
		if _, err := os.Stat(model); err == nil {
			c.add(StatusOK, "Local model path exists: "+model)
		} else {
			c.add(StatusWarning, "Local model path does not exist: "+model)
		}
		return c
	}

	token := v.lookup(VarHFToken)
	if token == "" || isPlaceholder(token) {
		c.add(StatusWarning, "Cannot validate model access without HF_TOKEN: "+model)
		return c
	}

	if v.opts.Hub == nil {
		c.Status = StatusSkipped
		c.add(StatusWarning, "Model access not checked against the Hub (use --check-token)")
		return c
	}

	info, err := v.opts.Hub.ModelInfo(ctx, token, model)
	if err != nil {
		c.add(StatusWarning, fmt.Sprintf("Could not validate model access: %v", err))
		c.add(StatusInfo, "Check model at: https://huggingface.co/"+model)
		return c
	}

	c.add(StatusOK, "Model accessible: "+model)
	if info.IsGated() {
		c.add(StatusInfo, "Model is gated - ensure you have accepted terms at:")
		c.add(StatusInfo, "  https://huggingface.co/"+model)
	}
	return c
}

// Mask hides all but the first 8 characters of a secret
func Mask(secret string) string {
	if len(secret) > 8 {
		return secret[:8] + "..."
	}
	return "***"
}

// IsHubModel reports whether a model path names a Hub repository
func IsHubModel(path string) bool {
	for _, p := range hubPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func isPlaceholder(val string) bool {
	for _, p := range tokenPlaceholders {
		if val == p {
			return true
		}
	}
	return false
}
