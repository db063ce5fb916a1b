package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"shellrun/internal/config"
	"shellrun/internal/logger"
	"shellrun/internal/observability"
	"shellrun/internal/runner"
)

var (
	cfgFile string
	verbose bool
)

// version is stamped at build time with -ldflags "-X shellrun/cmd/shellrun/cmd.version=...".
var version = "dev"

// app is the state shared by subcommands for one invocation of the binary.
var app struct {
	cfg      *config.Config
	log      *slog.Logger
	runner   *runner.Runner
	cleanups []func(context.Context) error
}

var rootCmd = &cobra.Command{
	Use:   "shellrun",
	Short: "shellrun runs shell commands while streaming, capturing and answering their output",
	Long: `shellrun executes a shell command in a child process, mirroring its output
live while capturing it, forwarding your keyboard input to it, and optionally
answering prompts it prints.

Common workflows:

  Run a command:
    shellrun run -- make test

  Run under a pseudo-terminal, hiding stderr:
    shellrun run --pty --hide err -- ls --color=auto

  Run through sudo, answering its password prompt:
    shellrun sudo --password "$PW" -- systemctl restart nginx

Configuration:
  Defaults are read from $HOME/.shellrun.yaml (or --config) and can be
  overridden with SHELLRUN_* environment variables, e.g.:
    SHELLRUN_RUN_WARN       do not fail on nonzero exit
    SHELLRUN_RUN_PTY        run under a pty by default
    SHELLRUN_LOG_LEVEL      debug, info, warn or error
    SHELLRUN_METRICS_ADDR   serve Prometheus metrics on this address
    SHELLRUN_OTEL_ENDPOINT  export traces to this OTLP/gRPC collector`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// ExitError carries the process exit status out of a command.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Execute runs the root command and tears down whatever setup started.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	teardown()
	return err
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if verbose {
		level = slog.LevelDebug
	}
	log := logger.NewWithWriter(cmd.ErrOrStderr(), level)

	if cfg.Metrics.Addr != "" {
		handler, shutdown, err := observability.InitMetrics(cfg.OTel.ServiceName)
		if err != nil {
			return err
		}
		app.cleanups = append(app.cleanups, shutdown)
		srv, err := observability.ServeMetrics(cfg.Metrics.Addr, handler, log)
		if err != nil {
			return err
		}
		app.cleanups = append(app.cleanups, srv.Shutdown)
	}
	if cfg.OTel.Endpoint != "" {
		shutdown, err := observability.InitTracer(cmd.Context(), observability.TracerOptions{
			ServiceName: cfg.OTel.ServiceName,
			Version:     version,
			Endpoint:    cfg.OTel.Endpoint,
			SampleRatio: cfg.OTel.SampleRatio,
		})
		if err != nil {
			return err
		}
		app.cleanups = append(app.cleanups, shutdown)
	}

	rc, err := cfg.RunnerConfig(log)
	if err != nil {
		return err
	}
	app.cfg = cfg
	app.log = log
	app.runner = runner.NewLocal(rc)
	return nil
}

func teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	// Reverse order: the metrics server stops before its provider.
	for i := len(app.cleanups) - 1; i >= 0; i-- {
		if err := app.cleanups[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	app.cleanups = nil
	if err := errors.Join(errs...); err != nil && app.log != nil {
		app.log.Warn("shutdown failed", "error", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.shellrun.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}
