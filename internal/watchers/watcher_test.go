package watchers

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestResponder_RespondsOncePerMatch(t *testing.T) {
	r, err := NewResponder("password:", "secret\n")
	if err != nil {
		t.Fatalf("NewResponder failed: %v", err)
	}

	state := &State{}
	got, err := r.Submit(state, "Enter password:")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(got) != 1 || got[0] != "secret\n" {
		t.Fatalf("expected one response %q, got %q", "secret\n", got)
	}

	// Same stream again: nothing new to scan.
	got, err = r.Submit(state, "Enter password:")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no responses on unchanged stream, got %q", got)
	}
}

func TestResponder_NoMatchLeavesIndex(t *testing.T) {
	r, err := NewResponder("password:", "secret\n")
	if err != nil {
		t.Fatalf("NewResponder failed: %v", err)
	}

	state := &State{}
	got, _ := r.Submit(state, "hello ")
	if len(got) != 0 {
		t.Errorf("expected no responses, got %q", got)
	}
	if state.Index != 0 {
		t.Errorf("expected index to stay at 0, got %d", state.Index)
	}

	// A prompt completed by a later chunk is still found.
	got, _ = r.Submit(state, "hello password:")
	if len(got) != 1 {
		t.Errorf("expected one response, got %q", got)
	}
	if state.Index != len("hello password:") {
		t.Errorf("expected index %d, got %d", len("hello password:"), state.Index)
	}
}

func TestResponder_MultipleMatchesInOneChunk(t *testing.T) {
	r, err := NewResponder(`Continue\?`, "y\n")
	if err != nil {
		t.Fatalf("NewResponder failed: %v", err)
	}

	got, _ := r.Submit(&State{}, "Continue?\nContinue?\n")
	if len(got) != 2 {
		t.Errorf("expected two responses, got %q", got)
	}
}

func TestResponder_MatchesAcrossLines(t *testing.T) {
	r, err := NewResponder("begin.*end", "ok\n")
	if err != nil {
		t.Fatalf("NewResponder failed: %v", err)
	}

	got, _ := r.Submit(&State{}, "begin\nmiddle\nend")
	if len(got) != 1 {
		t.Errorf("expected pattern to span lines, got %q", got)
	}
}

func TestNewResponder_InvalidPattern(t *testing.T) {
	_, err := NewResponder("(", "x")
	if err == nil {
		t.Fatal("expected error for invalid pattern")
	}
	if !strings.Contains(err.Error(), "invalid watcher pattern") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestResponder_SeparateStatesDoNotInterfere(t *testing.T) {
	r, err := NewResponder("prompt>", "go\n")
	if err != nil {
		t.Fatalf("NewResponder failed: %v", err)
	}

	streams := map[string]string{
		"stdout": "prompt>",
		"stderr": strings.Repeat("noise ", 50) + "prompt>",
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	counts := map[string]int{}
	for name, stream := range streams {
		wg.Add(1)
		go func(name, stream string) {
			defer wg.Done()
			state := &State{}
			total := 0
			for i := 0; i < 100; i++ {
				got, _ := r.Submit(state, stream)
				total += len(got)
			}
			if state.Index != len(stream) {
				t.Errorf("%s: expected index %d, got %d", name, len(stream), state.Index)
			}
			mu.Lock()
			counts[name] = total
			mu.Unlock()
		}(name, stream)
	}
	wg.Wait()

	for name, n := range counts {
		if n != 1 {
			t.Errorf("%s: expected exactly one response, got %d", name, n)
		}
	}
}

func TestFailingResponder_FailsAfterResponse(t *testing.T) {
	f, err := NewFailingResponder("password:", "wrong\n", "Sorry, try again.")
	if err != nil {
		t.Fatalf("NewFailingResponder failed: %v", err)
	}

	state := &State{}
	stream := "password:"
	got, err := f.Submit(state, stream)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one response, got %q", got)
	}
	if !state.Tried {
		t.Error("expected Tried to be set after responding")
	}

	stream += "\nSorry, try again.\npassword:"
	_, err = f.Submit(state, stream)
	var rf *ResponseFailure
	if !errors.As(err, &rf) {
		t.Fatalf("expected ResponseFailure, got %v", err)
	}
	want := `Auto-response to r"password:" failed with "Sorry, try again."!`
	if rf.Error() != want {
		t.Errorf("expected message %q, got %q", want, rf.Error())
	}
}

func TestFailingResponder_SentinelBeforeResponseIsIgnored(t *testing.T) {
	f, err := NewFailingResponder("password:", "pw\n", "Sorry")
	if err != nil {
		t.Fatalf("NewFailingResponder failed: %v", err)
	}

	state := &State{}
	got, err := f.Submit(state, "Sorry about that\n")
	if err != nil {
		t.Fatalf("sentinel before any response must not fail: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no responses, got %q", got)
	}

	// Response and sentinel in the same new text: the sentinel predates the
	// response from the scanner's point of view, so no failure yet.
	got, err = f.Submit(state, "Sorry about that\nSorry password:")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected one response, got %q", got)
	}

	// Already-scanned sentinels are not reconsidered.
	if _, err := f.Submit(state, "Sorry about that\nSorry password:\nok"); err != nil {
		t.Errorf("unexpected error on unchanged sentinel: %v", err)
	}
}

func TestFailingResponder_InvalidSentinel(t *testing.T) {
	if _, err := NewFailingResponder("ok", "x", "[unclosed"); err == nil {
		t.Fatal("expected error for invalid sentinel")
	}
}
