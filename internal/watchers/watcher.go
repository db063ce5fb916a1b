// Package watchers provides stream watchers that scan a child process's
// accumulated output and produce text to write back into its stdin.
package watchers

import (
	"fmt"
	"regexp"
)

// Watcher acts on the output of a running command.
//
// Submit receives the entire text read from one stream so far (not just the
// newest chunk) together with the scan state owned by the caller, and returns
// the strings to be written to the command's stdin. The same Watcher may be
// submitted to concurrently from the stdout and stderr readers; each reader
// passes its own State, so implementations must keep all per-stream
// bookkeeping in the State rather than in the Watcher itself.
type Watcher interface {
	Submit(state *State, stream string) ([]string, error)
}

// State is the scan bookkeeping of one watcher against one stream.
// It lives for the duration of a single command invocation.
type State struct {
	// Index is the byte offset up to which the primary pattern has been scanned.
	Index int
	// FailureIndex is the byte offset up to which a failure sentinel has been scanned.
	FailureIndex int
	// Tried reports whether a response has been emitted on this stream.
	Tried bool
}

// Responder writes a fixed response each time its pattern appears in a stream.
// It is commonly used to answer password prompts.
type Responder struct {
	pattern  string
	response string
	re       *regexp.Regexp
}

// NewResponder compiles pattern (matched with "." spanning newlines) and
// returns a Responder that submits response once per match.
func NewResponder(pattern, response string) (*Responder, error) {
	re, err := compile(pattern)
	if err != nil {
		return nil, err
	}
	return &Responder{pattern: pattern, response: response, re: re}, nil
}

// Pattern returns the uncompiled pattern.
func (r *Responder) Pattern() string { return r.pattern }

// Response returns the text submitted on each match.
func (r *Responder) Response() string { return r.response }

// Submit implements Watcher.
func (r *Responder) Submit(state *State, stream string) ([]string, error) {
	n := scan(r.re, stream, &state.Index)
	if n == 0 {
		return nil, nil
	}
	out := make([]string, n)
	for i := range out {
		out[i] = r.response
	}
	return out, nil
}

func compile(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?s)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid watcher pattern %q: %w", pattern, err)
	}
	return re, nil
}

// scan searches the part of stream past *index for re and returns the number
// of matches. The index only moves when something matched, and then moves to
// the end of the stream.
func scan(re *regexp.Regexp, stream string, index *int) int {
	start := *index
	if start > len(stream) {
		start = len(stream)
	}
	fresh := stream[start:]
	matches := re.FindAllStringIndex(fresh, -1)
	if len(matches) > 0 {
		*index = start + len(fresh)
	}
	return len(matches)
}
