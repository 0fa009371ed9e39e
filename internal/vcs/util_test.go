package vcs

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"single line", "hello", []string{"hello"}},
		{"trims and skips blanks", "  a  \n\n b\n", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ParseLines([]byte(tt.input))); diff != "" {
				t.Errorf("ParseLines() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseRemotes(t *testing.T) {
	out := []byte(`origin	git@github.com:acme/app.git (fetch)
origin	git@github.com:acme/app.git (push)
upstream	https://github.com/up/app.git (fetch)
garbage
`)
	want := []RemoteInfo{
		{Name: "origin", URL: "git@github.com:acme/app.git"},
		{Name: "upstream", URL: "https://github.com/up/app.git"},
	}
	got := ParseRemotes(out)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseRemotes() mismatch (-want +got):\n%s", diff)
	}
	if !FindRemote(got, "upstream") || FindRemote(got, "fork") {
		t.Error("FindRemote() gave wrong answer")
	}
}

func TestErrorContains(t *testing.T) {
	err := errors.New("exit status 128: fatal: Invalid object name 'refs/x'")
	if !ErrorContains(err, "nope", "invalid object name") {
		t.Error("ErrorContains() = false, want true")
	}
	if ErrorContains(err, "unknown revision") {
		t.Error("ErrorContains() = true, want false")
	}
	if ErrorContains(nil, "x") {
		t.Error("ErrorContains(nil) = true, want false")
	}
}

func TestExecContext(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	ctx := context.Background()
	dir := t.TempDir()

	out, err := ExecContext(ctx, time.Second, dir, "sh", "-c", "echo hi")
	if err != nil {
		t.Fatalf("ExecContext() failed: %v", err)
	}
	if TrimOutput(out) != "hi" {
		t.Errorf("ExecContext() = %q, want hi", out)
	}

	_, err = ExecContext(ctx, time.Second, dir, "sh", "-c", "echo broken >&2; exit 3")
	if err == nil || !ErrorContains(err, "broken") {
		t.Errorf("ExecContext() error = %v, want stderr text", err)
	}

	_, err = ExecContext(ctx, 50*time.Millisecond, dir, "sh", "-c", "exec sleep 5")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("ExecContext() error = %v, want ErrTimeout", err)
	}
	if !IsRetryable(err) || IsFatal(err) {
		t.Error("timeout should be retryable and not fatal")
	}
}
