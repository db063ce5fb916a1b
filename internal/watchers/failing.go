package watchers

import (
	"fmt"
	"regexp"
)

// FailingResponder is a Responder that also watches for a failure sentinel.
// If the sentinel shows up after a response has already been sent on the same
// stream, the response is assumed to have been rejected (for example a
// repeated password prompt) and Submit fails with a *ResponseFailure.
type FailingResponder struct {
	*Responder
	sentinel   string
	sentinelRe *regexp.Regexp
}

// NewFailingResponder returns a FailingResponder for pattern, response and
// the failure sentinel pattern.
func NewFailingResponder(pattern, response, sentinel string) (*FailingResponder, error) {
	r, err := NewResponder(pattern, response)
	if err != nil {
		return nil, err
	}
	re, err := compile(sentinel)
	if err != nil {
		return nil, err
	}
	return &FailingResponder{Responder: r, sentinel: sentinel, sentinelRe: re}, nil
}

// Sentinel returns the failure sentinel pattern.
func (f *FailingResponder) Sentinel() string { return f.sentinel }

// Submit implements Watcher.
func (f *FailingResponder) Submit(state *State, stream string) ([]string, error) {
	responses, err := f.Responder.Submit(state, stream)
	if err != nil {
		return nil, err
	}
	failed := scan(f.sentinelRe, stream, &state.FailureIndex)
	if state.Tried && failed > 0 {
		return nil, &ResponseFailure{Pattern: f.pattern, Sentinel: f.sentinel}
	}
	if len(responses) > 0 {
		state.Tried = true
	}
	return responses, nil
}

// ResponseFailure signals that an auto-response was not accepted.
type ResponseFailure struct {
	Pattern  string
	Sentinel string
}

func (e *ResponseFailure) Error() string {
	return fmt.Sprintf("Auto-response to r\"%s\" failed with %q!", e.Pattern, e.Sentinel)
}
