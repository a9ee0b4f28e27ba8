// Package config resolves the chat client settings from defaults, a TOML
// file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Default values, mirroring the deployment's .env.example.
const (
	DefaultHost        = "localhost"
	DefaultPort        = 30000
	DefaultModel       = "meta-llama/Meta-Llama-3-70B-Instruct"
	DefaultMaxTokens   = 256
	DefaultTemperature = 0.7
	DefaultTimeout     = 120 * time.Second
	DefaultProbeTime   = 5 * time.Second
	DefaultEnvFile     = ".env"
)

// Environment variable names understood by the client
const (
	EnvServerHost  = "SERVER_HOST"
	EnvServerPort  = "SERVER_PORT"
	EnvModelPath   = "MODEL_PATH"
	EnvMaxTokens   = "CHAT_MAX_TOKENS"
	EnvTemperature = "CHAT_TEMPERATURE"
	EnvTimeout     = "CHAT_TIMEOUT"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Host string `toml:"host"`
	Port int    `toml:"port"`

	// Generation settings
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float64 `toml:"temperature"`

	// Request timeout for chat completions; probes use ProbeTimeout
	Timeout      time.Duration `toml:"-"`
	ProbeTimeout time.Duration `toml:"-"`

	// Startup behaviour
	SkipHealthCheck bool `toml:"skip_health_check"`
	RenderMarkdown  bool `toml:"render_markdown"`

	// Logging
	Debug   bool   `toml:"debug"`
	LogFile string `toml:"log_file"`
}

// fileConfig is the on-disk TOML shape. Durations are strings ("90s").
type fileConfig struct {
	Config
	Timeout string `toml:"timeout"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		Model:        DefaultModel,
		MaxTokens:    DefaultMaxTokens,
		Temperature:  DefaultTemperature,
		Timeout:      DefaultTimeout,
		ProbeTimeout: DefaultProbeTime,
	}
}

// Load builds a configuration from defaults, an optional TOML file, an
// optional .env file and the process environment, in increasing order of
// precedence. Command-line flags are applied by the caller afterwards.
func Load(configFile, envFile string) (*Config, error) {
	cfg := NewConfig()

	if configFile != "" {
		if err := cfg.LoadFile(configFile); err != nil {
			return nil, err
		}
	}

	if err := LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile overlays the keys present in a TOML file. Keys left out of the
// file keep their current value; keys set to zero are applied as written.
func (c *Config) LoadFile(path string) error {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if md.IsDefined("host") {
		c.Host = fc.Host
	}
	if md.IsDefined("port") {
		c.Port = fc.Port
	}
	if md.IsDefined("model") {
		c.Model = fc.Model
	}
	if md.IsDefined("max_tokens") {
		c.MaxTokens = fc.MaxTokens
	}
	if md.IsDefined("temperature") {
		c.Temperature = fc.Temperature
	}
	if md.IsDefined("timeout") {
		d, err := parseTimeout(fc.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q in %s: %w", fc.Timeout, path, err)
		}
		c.Timeout = d
	}
	if md.IsDefined("skip_health_check") {
		c.SkipHealthCheck = fc.SkipHealthCheck
	}
	if md.IsDefined("render_markdown") {
		c.RenderMarkdown = fc.RenderMarkdown
	}
	if md.IsDefined("debug") {
		c.Debug = fc.Debug
	}
	if md.IsDefined("log_file") {
		c.LogFile = fc.LogFile
	}

	return nil
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays values from environment variables read through GetEnv.
func (c *Config) ApplyEnv() error {
	if v := GetEnv(EnvServerHost); v != "" {
		c.Host = v
	}
	if v := GetEnv(EnvServerPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvServerPort, v, err)
		}
		c.Port = port
	}
	if v := GetEnv(EnvModelPath); v != "" {
		c.Model = v
	}
	if v := GetEnv(EnvMaxTokens); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMaxTokens, v, err)
		}
		c.MaxTokens = n
	}
	if v := GetEnv(EnvTemperature); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvTemperature, v, err)
		}
		c.Temperature = t
	}
	if v := GetEnv(EnvTimeout); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvTimeout, v, err)
		}
		c.Timeout = d
	}
	return nil
}

// parseTimeout accepts either a Go duration ("90s") or a bare number of seconds.
func parseTimeout(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Model == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max tokens must be at least 1")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// Address returns host:port
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// BaseURL returns the HTTP base URL of the serving framework
func (c *Config) BaseURL() string {
	return "http://" + c.Address()
}

// GetEnv is a wrapper around os.Getenv for easier testing
var GetEnv = os.Getenv
