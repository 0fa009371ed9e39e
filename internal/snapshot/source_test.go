package snapshot

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mschirtzinger/worklog/internal/types"
	"github.com/mschirtzinger/worklog/internal/vcs"
	"github.com/mschirtzinger/worklog/internal/vcs/git"
)

// fakeVCS serves files per ref and records the calls it receives.
type fakeVCS struct {
	files     map[string]string // "ref:path" -> content
	fetchErrs []error           // returned by successive fetches, then nil
	noRemotes bool
	fetched   []string
	shown     []string
}

func (f *fakeVCS) Name() vcs.Type                        { return vcs.TypeGit }
func (f *fakeVCS) Version() (string, error)              { return "fake", nil }
func (f *fakeVCS) RepoRoot() (string, error)             { return "/repo", nil }
func (f *fakeVCS) HasRemote() bool                       { return !f.noRemotes }
func (f *fakeVCS) GetRemotes() ([]vcs.RemoteInfo, error) { return nil, nil }
func (f *fakeVCS) Exec(context.Context, ...string) ([]byte, error) {
	return nil, vcs.ErrNotSupported
}

func (f *fakeVCS) Fetch(_ context.Context, remote, refspec string) error {
	f.fetched = append(f.fetched, remote+" "+refspec)
	if len(f.fetchErrs) == 0 {
		return nil
	}
	err := f.fetchErrs[0]
	f.fetchErrs = f.fetchErrs[1:]
	return err
}

func (f *fakeVCS) ExtractFileFromRef(_ context.Context, ref, path string) ([]byte, error) {
	f.shown = append(f.shown, ref+":"+path)
	content, ok := f.files[ref+":"+path]
	if !ok {
		return nil, vcs.ErrRefNotFound
	}
	return []byte(content), nil
}

func TestSource_Read(t *testing.T) {
	fv := &fakeVCS{files: map[string]string{
		"refs/worklog/remotes/origin/worklog/data:.worklog/worklog-data.jsonl": "payload",
	}}

	src, err := NewSource(fv, Config{}, nil)
	if err != nil {
		t.Fatalf("NewSource() failed: %v", err)
	}
	data, err := src.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("Read() = %q, want payload", data)
	}

	wantFetch := "origin +refs/worklog/data:refs/worklog/remotes/origin/worklog/data"
	if len(fv.fetched) != 1 || fv.fetched[0] != wantFetch {
		t.Errorf("fetches = %q, want [%q]", fv.fetched, wantFetch)
	}
}

func TestSource_ReadErrors(t *testing.T) {
	ctx := context.Background()

	fv := &fakeVCS{fetchErrs: []error{vcs.ErrNoRemote}}
	src, err := NewSource(fv, Config{Remote: "upstream", Ref: "snapshots", Path: "data.jsonl"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.Read(ctx); !errors.Is(err, vcs.ErrNoRemote) {
		t.Errorf("Read() error = %v, want ErrNoRemote", err)
	}
	if len(fv.shown) != 0 {
		t.Errorf("file read after failed fetch: %v", fv.shown)
	}

	_, err = src.Read(ctx)
	if !errors.Is(err, vcs.ErrRefNotFound) {
		t.Errorf("Read() error = %v, want ErrRefNotFound", err)
	}
	if !strings.Contains(err.Error(), "refs/remotes/upstream/snapshots") {
		t.Errorf("Read() error = %v, want the tracking ref named", err)
	}

	if _, err := NewSource(fv, Config{Ref: "bad ref"}, nil); !errors.Is(err, ErrInvalidRef) {
		t.Errorf("NewSource() error = %v, want ErrInvalidRef", err)
	}
}

func TestSource_ReadNoRemotes(t *testing.T) {
	fv := &fakeVCS{noRemotes: true}
	src, err := NewSource(fv, Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.Read(context.Background()); !errors.Is(err, vcs.ErrNoRemote) {
		t.Errorf("Read() error = %v, want ErrNoRemote", err)
	}
	if len(fv.fetched) != 0 {
		t.Errorf("fetched without a remote: %v", fv.fetched)
	}
}

func TestSource_ReadRetriesTimeouts(t *testing.T) {
	const path = "refs/worklog/remotes/origin/worklog/data:.worklog/worklog-data.jsonl"
	tests := []struct {
		name       string
		fetchErrs  []error
		wantErr    error
		wantFetches int
	}{
		{"one timeout", []error{vcs.ErrTimeout}, nil, 2},
		{"timeouts exhaust retries", []error{vcs.ErrTimeout, vcs.ErrTimeout, vcs.ErrTimeout, vcs.ErrTimeout}, vcs.ErrTimeout, fetchRetries + 1},
		{"missing ref is not retried", []error{vcs.ErrRefNotFound}, vcs.ErrRefNotFound, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fv := &fakeVCS{files: map[string]string{path: "payload"}, fetchErrs: tt.fetchErrs}
			src, err := NewSource(fv, Config{}, nil)
			if err != nil {
				t.Fatal(err)
			}

			_, err = src.Read(context.Background())
			if tt.wantErr == nil && err != nil {
				t.Errorf("Read() failed: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Read() error = %v, want %v", err, tt.wantErr)
			}
			if len(fv.fetched) != tt.wantFetches {
				t.Errorf("fetches = %d, want %d", len(fv.fetched), tt.wantFetches)
			}
		})
	}
}

func TestWriteCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snapshot.jsonl")

	for _, content := range []string{"first", "second"} {
		if err := WriteCache(path, []byte(content)); err != nil {
			t.Fatalf("WriteCache() failed: %v", err)
		}
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != content {
			t.Errorf("cache = %q, want %q", got, content)
		}
	}
}

// TestSource_Git reads a snapshot pushed to an explicit ref of a real bare
// repository.
func TestSource_Git(t *testing.T) {
	if !vcs.IsGitAvailable() {
		t.Skip("git not available")
	}

	base := t.TempDir()
	bare := filepath.Join(base, "origin.git")
	src := filepath.Join(base, "src")
	work := filepath.Join(base, "work")

	var buf bytes.Buffer
	if err := Encode(&buf, []*types.WorkItem{item("WL-1", "from git", t0)}, nil); err != nil {
		t.Fatal(err)
	}

	gitRun(t, base, "init", "--bare", "-q", bare)
	gitRun(t, base, "init", "-q", src)
	gitRun(t, base, "init", "-q", work)
	if err := os.MkdirAll(filepath.Join(src, ".worklog"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, DefaultPath), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	gitRun(t, src, "add", ".")
	gitRun(t, src, "commit", "-q", "-m", "snapshot")
	gitRun(t, src, "push", "-q", bare, "HEAD:"+DefaultRef)
	gitRun(t, work, "remote", "add", "origin", bare)

	g, err := git.New(work)
	if err != nil {
		t.Fatalf("git.New() failed: %v", err)
	}
	source, err := NewSource(g, Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	data, err := source.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}

	snap, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if len(snap.Items) != 1 || snap.Items[0].Title != "from git" {
		t.Errorf("Decode() items = %+v", snap.Items)
	}
	if _, err := os.Stat(filepath.Join(work, ".worklog")); !os.IsNotExist(err) {
		t.Errorf("working tree was modified: stat error = %v", err)
	}
}

func gitRun(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test User", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=Test User", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
}
