package runner

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"shellrun/internal/watchers"
)

func sudoScript(password string) func(p *fakeProc) int {
	return func(p *fakeProc) int {
		p.err(SudoPrompt)
		if p.readStdin(len(password)+1, 2*time.Second) == password+"\n" {
			p.out("root\n")
			return 0
		}
		p.err("Sorry, try again.\n" + SudoPrompt)
		<-p.kill
		return 1
	}
}

func TestSudo_AnswersPrompt(t *testing.T) {
	fake := newFake(sudoScript("hunter2"))
	var out, errb bytes.Buffer

	result, err := Sudo(context.Background(), testRunner(fake, Options{}), "whoami", "hunter2", streams(&out, &errb)...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stdout != "root\n" {
		t.Errorf("unexpected stdout %q", result.Stdout)
	}
	if want := "sudo -S -p '[sudo] password: ' whoami"; fake.command != want {
		t.Errorf("expected command %q, got %q", want, fake.command)
	}
	if fake.stdinText() != "hunter2\n" {
		t.Errorf("expected password written once, got %q", fake.stdinText())
	}
}

func TestSudo_RejectedPassword(t *testing.T) {
	fake := newFake(sudoScript("hunter2"))
	var out, errb bytes.Buffer

	result, err := Sudo(context.Background(), testRunner(fake, Options{}), "whoami", "wrong", streams(&out, &errb)...)
	if result != nil {
		t.Errorf("expected nil result, got %+v", result)
	}
	var auth *AuthFailure
	if !errors.As(err, &auth) {
		t.Fatalf("expected *AuthFailure, got %v", err)
	}
	if auth.Prompt != SudoPrompt {
		t.Errorf("unexpected prompt %q", auth.Prompt)
	}
	var rf *watchers.ResponseFailure
	if !errors.As(err, &rf) {
		t.Error("expected the ResponseFailure to stay reachable")
	}
}

func TestSudo_KeepsCallerWatchers(t *testing.T) {
	fake := newFake(func(p *fakeProc) int {
		p.err(SudoPrompt)
		p.readStdin(len("pw\n"), 2*time.Second)
		p.out("Continue? ")
		p.readStdin(len("y\n"), 2*time.Second)
		return 0
	})
	yes, _ := watchers.NewResponder(`Continue\? `, "y\n")
	var out, errb bytes.Buffer

	if _, err := Sudo(context.Background(), testRunner(fake, Options{}), "apt-get upgrade", "pw",
		append(streams(&out, &errb), WithWatchers(yes))...); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.stdinText() != "pw\ny\n" {
		t.Errorf("expected both answers, got %q", fake.stdinText())
	}
}
