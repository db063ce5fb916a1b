package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"shellrun/internal/runner"
)

var sudoCmd = &cobra.Command{
	Use:   "sudo [command]",
	Short: "Run a shell command through sudo, answering its password prompt",
	Long: `Run a shell command through sudo. The password is taken from --password,
then SHELLRUN_SUDO_PASSWORD, and is otherwise asked for on the terminal.

Example:
  shellrun sudo -- whoami
  SHELLRUN_SUDO_PASSWORD=secret shellrun sudo -- apt-get update`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := sudoPassword(cmd)
		if err != nil {
			return err
		}
		opts, err := runOptions(cmd)
		if err != nil {
			return err
		}

		result, err := runner.Sudo(cmd.Context(), app.runner, strings.Join(args, " "), password, opts...)
		var auth *runner.AuthFailure
		if errors.As(err, &auth) {
			return &ExitError{Code: 1, Message: auth.Error()}
		}
		return exitFor(result, err)
	},
}

func sudoPassword(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("password"); p != "" {
		return p, nil
	}
	if p, ok := os.LookupEnv("SHELLRUN_SUDO_PASSWORD"); ok {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no sudo password given: use --password or SHELLRUN_SUDO_PASSWORD")
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

func init() {
	flags := sudoCmd.Flags()
	addRunFlags(flags)
	flags.String("password", "", "sudo password")

	rootCmd.AddCommand(sudoCmd)
}
