package runner

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"

	"shellrun/internal/watchers"
)

const (
	// SudoPrompt is the prompt sudo is told to print, so it can be recognized
	// regardless of the system's sudo configuration.
	SudoPrompt = "[sudo] password: "

	sudoFailure = "Sorry, try again.\n"
)

// Sudo runs command through sudo, answering its password prompt with
// password. A rejected password is reported as *AuthFailure. Any watchers
// in opts are kept alongside the password responder.
func Sudo(ctx context.Context, r *Runner, command, password string, opts ...Option) (*Result, error) {
	responder, err := watchers.NewFailingResponder(
		regexp.QuoteMeta(SudoPrompt),
		password+"\n",
		regexp.QuoteMeta(sudoFailure),
	)
	if err != nil {
		return nil, err
	}

	full := fmt.Sprintf("sudo -S -p '%s' %s", SudoPrompt, command)
	opts = append(opts, func(o *Options) {
		o.Watchers = append(slices.Clone(o.Watchers), responder)
	})

	result, err := r.Run(ctx, full, opts...)
	if err != nil {
		var rf *watchers.ResponseFailure
		if errors.As(err, &rf) {
			return nil, &AuthFailure{Prompt: SudoPrompt, Err: err}
		}
		return nil, err
	}
	return result, nil
}
