package runner

import (
	"errors"
	"testing"
)

func TestNormalizeHide(t *testing.T) {
	tests := []struct {
		in      any
		want    HideSet
		wantErr bool
	}{
		{in: nil, want: HideSet{}},
		{in: false, want: HideSet{}},
		{in: true, want: HideSet{Out: true, Err: true}},
		{in: "both", want: HideSet{Out: true, Err: true}},
		{in: "out", want: HideSet{Out: true}},
		{in: "stdout", want: HideSet{Out: true}},
		{in: "err", want: HideSet{Err: true}},
		{in: "stderr", want: HideSet{Err: true}},
		{in: "", wantErr: true},
		{in: "all", wantErr: true},
		{in: 1, wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizeHide(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidHide) {
				t.Errorf("NormalizeHide(%#v): expected ErrInvalidHide, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeHide(%#v): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeHide(%#v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestHideSet_Has(t *testing.T) {
	h := HideSet{Out: true}
	if !h.Has(StreamOut) || h.Has(StreamErr) || h.Has("bogus") {
		t.Errorf("unexpected Has results for %+v", h)
	}
	if h.Both() {
		t.Error("expected Both to be false")
	}
}

func TestResolveOptions_DoesNotLeakIntoDefaults(t *testing.T) {
	r := testRunner(newFake(nil), Options{Env: map[string]string{"A": "1"}})

	o, err := r.resolveOptions([]Option{func(o *Options) { o.Env["B"] = "2" }})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Env["B"] != "2" {
		t.Errorf("expected option applied, got %v", o.Env)
	}
	if _, ok := r.defaults.Env["B"]; ok {
		t.Error("expected runner defaults to be left untouched")
	}
	if o.Shell == "" || o.OutStream == nil || o.ErrStream == nil || o.InStream == nil {
		t.Errorf("expected unset settings filled in, got %+v", o.Options)
	}
}

func TestResolveOptions_FallbackAllowedByDefault(t *testing.T) {
	r := New(newFake(nil), Config{})

	o, err := r.resolveOptions(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.NoFallback {
		t.Error("expected pty fallback to be allowed with a zero Config")
	}

	o, err = r.resolveOptions([]Option{WithFallback(false)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !o.NoFallback {
		t.Error("expected WithFallback(false) to forbid the fallback")
	}
}

func TestGenerateEnv(t *testing.T) {
	t.Setenv("SHELLRUN_TEST_VAR", "from-parent")

	env := generateEnv(map[string]string{"EXTRA": "x"}, false)
	if env["SHELLRUN_TEST_VAR"] != "from-parent" || env["EXTRA"] != "x" {
		t.Errorf("expected inherited env plus overlay, got %v", env)
	}

	env = generateEnv(map[string]string{"SHELLRUN_TEST_VAR": "override"}, false)
	if env["SHELLRUN_TEST_VAR"] != "override" {
		t.Errorf("expected overlay to win, got %q", env["SHELLRUN_TEST_VAR"])
	}

	env = generateEnv(map[string]string{"ONLY": "me"}, true)
	if len(env) != 1 || env["ONLY"] != "me" {
		t.Errorf("expected replaced env, got %v", env)
	}
}

func TestEnvList_Sorted(t *testing.T) {
	got := envList(map[string]string{"B": "2", "A": "1", "C": "x=y"})
	want := []string{"A=1", "B=2", "C=x=y"}
	if len(got) != len(want) {
		t.Fatalf("envList() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("envList()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
