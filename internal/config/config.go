// Package config loads shellrun settings from a YAML file and SHELLRUN_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"shellrun/internal/runner"
)

// EnvPrefix is prepended to every environment override, e.g. SHELLRUN_RUN_WARN.
const EnvPrefix = "SHELLRUN"

// Config holds all configuration values for the application.
type Config struct {
	Run     RunConfig     `mapstructure:"run"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	OTel    OTelConfig    `mapstructure:"otel"`
}

// RunConfig holds the defaults applied to every command, plus the engine
// tunables.
type RunConfig struct {
	Shell      string            `mapstructure:"shell"`
	Warn       bool              `mapstructure:"warn"`
	Hide       string            `mapstructure:"hide"`
	Pty        bool              `mapstructure:"pty"`
	Fallback   bool              `mapstructure:"fallback"`
	Echo       bool              `mapstructure:"echo"`
	Env        map[string]string `mapstructure:"env"`
	ReplaceEnv bool              `mapstructure:"replace_env"`
	Encoding   string            `mapstructure:"encoding"`
	// EchoStdin is "" for auto-detection, or a boolean.
	EchoStdin string        `mapstructure:"echo_stdin"`
	Timeout   time.Duration `mapstructure:"timeout"`

	OutputJoinTimeout time.Duration `mapstructure:"output_join_timeout"`
	InputSleep        time.Duration `mapstructure:"input_sleep"`
	ReadChunkSize     int           `mapstructure:"read_chunk_size"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// OTelConfig configures trace export. An empty Endpoint disables it.
type OTelConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("run.shell", "")
	v.SetDefault("run.warn", false)
	v.SetDefault("run.hide", "")
	v.SetDefault("run.pty", false)
	v.SetDefault("run.fallback", true)
	v.SetDefault("run.echo", false)
	v.SetDefault("run.env", map[string]string{})
	v.SetDefault("run.replace_env", false)
	v.SetDefault("run.encoding", "")
	v.SetDefault("run.echo_stdin", "")
	v.SetDefault("run.timeout", time.Duration(0))
	v.SetDefault("run.output_join_timeout", time.Second)
	v.SetDefault("run.input_sleep", 10*time.Millisecond)
	v.SetDefault("run.read_chunk_size", 1000)

	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.service_name", "shellrun")
	v.SetDefault("otel.sample_ratio", 1.0)
}

// Load reads configuration from the file at path, or from $HOME/.shellrun.yaml
// when path is empty and that file exists. Environment variables override the
// file; unknown keys in the file are an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigName(".shellrun")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := runner.NormalizeHide(hideValue(c.Run.Hide)); err != nil {
		return fmt.Errorf("run.hide: %w", err)
	}
	if _, err := echoStdinValue(c.Run.EchoStdin); err != nil {
		return fmt.Errorf("run.echo_stdin: %w", err)
	}
	if c.Run.ReadChunkSize <= 0 {
		return fmt.Errorf("run.read_chunk_size must be positive, got %d", c.Run.ReadChunkSize)
	}
	if c.Run.Timeout < 0 || c.Run.OutputJoinTimeout < 0 || c.Run.InputSleep < 0 {
		return errors.New("run durations must not be negative")
	}
	if c.OTel.SampleRatio < 0 || c.OTel.SampleRatio > 1 {
		return fmt.Errorf("otel.sample_ratio must be within [0, 1], got %v", c.OTel.SampleRatio)
	}
	return nil
}

// RunnerConfig builds the engine configuration for a runner.Runner.
func (c *Config) RunnerConfig(log *slog.Logger) (runner.Config, error) {
	echoStdin, err := echoStdinValue(c.Run.EchoStdin)
	if err != nil {
		return runner.Config{}, fmt.Errorf("run.echo_stdin: %w", err)
	}

	opts := runner.DefaultOptions()
	opts.Shell = c.Run.Shell
	opts.Warn = c.Run.Warn
	opts.Hide = hideValue(c.Run.Hide)
	opts.Pty = c.Run.Pty
	opts.NoFallback = !c.Run.Fallback
	opts.Echo = c.Run.Echo
	opts.Env = c.Run.Env
	opts.ReplaceEnv = c.Run.ReplaceEnv
	opts.Encoding = c.Run.Encoding
	opts.EchoStdin = echoStdin
	opts.Timeout = c.Run.Timeout

	return runner.Config{
		Defaults:          opts,
		Logger:            log,
		ReadChunkSize:     c.Run.ReadChunkSize,
		InputSleep:        c.Run.InputSleep,
		OutputJoinTimeout: c.Run.OutputJoinTimeout,
	}, nil
}

// hideValue maps the configured hide string onto a runner hide selector.
// Booleans arrive as strings from YAML and environment variables alike.
func hideValue(s string) any {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false", "none":
		return nil
	case "1", "true":
		return true
	}
	return s
}

func echoStdinValue(s string) (*bool, error) {
	if s == "" || strings.EqualFold(s, "auto") {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("want auto or a boolean, got %q", s)
	}
	return &b, nil
}
