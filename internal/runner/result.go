package runner

import (
	"fmt"
	"strings"
)

// Result describes a finished command execution.
// It is built once, after the child has exited and the output readers have
// been joined, and is not modified afterwards.
type Result struct {
	// Command is the command line that was executed.
	Command string
	// Shell is the interpreter used to execute Command.
	Shell string
	// Env is the environment the child ran with.
	Env map[string]string
	// Stdout is the captured standard output (all output when Pty is set).
	Stdout string
	// Stderr is the captured standard error; always empty when Pty is set.
	Stderr string
	// Exited is the child's exit code.
	Exited int
	// Pty reports whether the command ran attached to a pseudo-terminal.
	Pty bool
}

// ReturnCode is an alias for Exited.
func (r *Result) ReturnCode() int { return r.Exited }

// OK reports whether the command exited with status 0.
func (r *Result) OK() bool { return r.Exited == 0 }

// Failed is the inverse of OK.
func (r *Result) Failed() bool { return !r.OK() }

func (r *Result) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Command exited with status %d.", r.Exited)
	for _, s := range []struct{ name, val string }{{"stdout", r.Stdout}, {"stderr", r.Stderr}} {
		b.WriteString("\n")
		if s.val == "" {
			fmt.Fprintf(&b, "(no %s)", s.name)
			continue
		}
		fmt.Fprintf(&b, "=== %s ===\n%s\n", s.name, strings.TrimRight(s.val, " \t\r\n"))
	}
	return b.String()
}
