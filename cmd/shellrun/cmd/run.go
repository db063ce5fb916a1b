package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"shellrun/internal/runner"
)

var runCmd = &cobra.Command{
	Use:   "run [command]",
	Short: "Run a shell command",
	Long: `Run a shell command through the configured shell.

The command's output is mirrored to the terminal and its exit status becomes
shellrun's exit status. Interrupting shellrun interrupts the command.

Example:
  shellrun run -- ls -la
  shellrun run --pty --echo -- 'top -n 1'
  shellrun run --env FOO=bar --hide out -- 'echo $FOO'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := runOptions(cmd)
		if err != nil {
			return err
		}
		result, err := app.runner.Run(cmd.Context(), strings.Join(args, " "), opts...)
		return exitFor(result, err)
	},
}

// addRunFlags registers the per-command options on flags.
func addRunFlags(flags *pflag.FlagSet) {
	flags.Bool("warn", false, "do not fail when the command exits nonzero")
	flags.String("hide", "", "streams not to mirror: out, err or both")
	flags.Bool("pty", false, "run the command under a pseudo-terminal")
	flags.Bool("no-fallback", false, "fail instead of falling back to pipes when no pty is available")
	flags.Bool("echo", false, "print the command before running it")
	flags.StringArrayP("env", "e", nil, "set an environment variable (KEY=VALUE, repeatable)")
	flags.Bool("replace-env", false, "run with only the variables given by --env")
	flags.String("encoding", "", "character encoding of the command's streams (default: from locale)")
	flags.String("shell", "", "shell to run the command with")
	flags.String("echo-stdin", "auto", "mirror forwarded input: auto, true or false")
	flags.Duration("timeout", 0, "interrupt the command after this long")
}

// runOptions turns the flags the user set into run options. Unset flags keep
// the configured defaults.
func runOptions(cmd *cobra.Command) ([]runner.Option, error) {
	flags := cmd.Flags()
	opts := []runner.Option{
		runner.WithOutStream(cmd.OutOrStdout()),
		runner.WithErrStream(cmd.ErrOrStderr()),
		runner.WithInStream(cmd.InOrStdin()),
	}

	if flags.Changed("warn") {
		v, _ := flags.GetBool("warn")
		opts = append(opts, runner.WithWarn(v))
	}
	if flags.Changed("hide") {
		v, _ := flags.GetString("hide")
		hide := any(v)
		if v == "" || v == "none" {
			hide = nil
		}
		if _, err := runner.NormalizeHide(hide); err != nil {
			return nil, err
		}
		opts = append(opts, runner.WithHide(hide))
	}
	if flags.Changed("pty") {
		v, _ := flags.GetBool("pty")
		opts = append(opts, runner.WithPty(v))
	}
	if flags.Changed("no-fallback") {
		v, _ := flags.GetBool("no-fallback")
		opts = append(opts, runner.WithFallback(!v))
	}
	if flags.Changed("echo") {
		v, _ := flags.GetBool("echo")
		opts = append(opts, runner.WithEcho(v))
	}
	if flags.Changed("env") {
		pairs, _ := flags.GetStringArray("env")
		env, err := parseEnv(pairs)
		if err != nil {
			return nil, err
		}
		opts = append(opts, func(o *runner.Options) {
			if o.Env == nil {
				o.Env = make(map[string]string)
			}
			for k, v := range env {
				o.Env[k] = v
			}
		})
	}
	if flags.Changed("replace-env") {
		v, _ := flags.GetBool("replace-env")
		opts = append(opts, runner.WithReplaceEnv(v))
	}
	if flags.Changed("encoding") {
		v, _ := flags.GetString("encoding")
		opts = append(opts, runner.WithEncoding(v))
	}
	if flags.Changed("shell") {
		v, _ := flags.GetString("shell")
		opts = append(opts, runner.WithShell(v))
	}
	if flags.Changed("echo-stdin") {
		v, _ := flags.GetString("echo-stdin")
		switch strings.ToLower(v) {
		case "auto":
			opts = append(opts, func(o *runner.Options) { o.EchoStdin = nil })
		case "true", "1", "on":
			opts = append(opts, runner.WithEchoStdin(true))
		case "false", "0", "off":
			opts = append(opts, runner.WithEchoStdin(false))
		default:
			return nil, fmt.Errorf("invalid --echo-stdin %q: want auto, true or false", v)
		}
	}
	if flags.Changed("timeout") {
		v, _ := flags.GetDuration("timeout")
		opts = append(opts, runner.WithTimeout(v))
	}
	return opts, nil
}

func parseEnv(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --env %q: want KEY=VALUE", kv)
		}
		env[k] = v
	}
	return env, nil
}

// exitFor maps a run outcome onto the CLI's exit status: the command's own
// status on failure, 130 when interrupted, 124 when timed out.
func exitFor(result *runner.Result, err error) error {
	var failure *runner.Failure
	switch {
	case err == nil:
		return nil
	case errors.As(err, &failure):
		return &ExitError{Code: failure.Result.Exited}
	case errors.Is(err, context.DeadlineExceeded):
		return &ExitError{Code: 124, Message: err.Error()}
	case errors.Is(err, context.Canceled):
		return &ExitError{Code: 130}
	}
	return err
}

func init() {
	addRunFlags(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}
