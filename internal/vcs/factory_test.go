package vcs

import (
	"context"
	"errors"
	"testing"
)

// mockVCS is a mock VCS implementation for testing
type mockVCS struct {
	name     Type
	repoRoot string
}

func (m *mockVCS) Name() Type                        { return m.name }
func (m *mockVCS) Version() (string, error)          { return "mock-1.0.0", nil }
func (m *mockVCS) RepoRoot() (string, error)         { return m.repoRoot, nil }
func (m *mockVCS) HasRemote() bool                   { return false }
func (m *mockVCS) GetRemotes() ([]RemoteInfo, error) { return nil, nil }
func (m *mockVCS) Fetch(ctx context.Context, remote, refspec string) error {
	return nil
}
func (m *mockVCS) ExtractFileFromRef(ctx context.Context, ref, path string) ([]byte, error) {
	return nil, nil
}
func (m *mockVCS) Exec(ctx context.Context, args ...string) ([]byte, error) { return nil, nil }

func newMockVCS(name Type) Constructor {
	return func(repoRoot string) (VCS, error) {
		return &mockVCS{name: name, repoRoot: repoRoot}, nil
	}
}

// The real backends live in subpackages this test binary does not import.
func init() {
	Register(TypeGit, newMockVCS(TypeGit))
	Register(TypeJJ, newMockVCS(TypeJJ))
}

func TestRegister(t *testing.T) {
	if !IsRegistered(TypeGit) || !IsRegistered(TypeJJ) {
		t.Fatalf("RegisteredTypes() = %v, want git and jj", RegisteredTypes())
	}
	if IsRegistered(TypeColocate) {
		t.Error("IsRegistered(colocate) = true, want false")
	}

	got := RegisteredTypes()
	if len(got) != 2 || got[0] != TypeGit || got[1] != TypeJJ {
		t.Errorf("RegisteredTypes() = %v, want [git jj]", got)
	}
}

func TestRegister_Panics(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		ctor Constructor
	}{
		{"duplicate", TypeGit, newMockVCS(TypeGit)},
		{"nil constructor", Type("nil-ctor"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("Register(%s) did not panic", tt.typ)
				}
			}()
			Register(tt.typ, tt.ctor)
		})
	}
}

func TestFactory_Create(t *testing.T) {
	tests := []struct {
		name      string
		detected  Type
		preferred Type
		available map[Type]bool
		want      Type
	}{
		{"git repo", TypeGit, "", map[Type]bool{TypeGit: true}, TypeGit},
		{"jj repo", TypeJJ, "", map[Type]bool{TypeJJ: true}, TypeJJ},
		{"colocated defaults to git", TypeColocate, "", map[Type]bool{TypeGit: true, TypeJJ: true}, TypeGit},
		{"colocated prefers jj", TypeColocate, TypeJJ, map[Type]bool{TypeGit: true, TypeJJ: true}, TypeJJ},
		{"colocated falls back to git", TypeColocate, TypeJJ, map[Type]bool{TypeGit: true}, TypeGit},
		{"colocated falls back to jj", TypeColocate, TypeGit, map[Type]bool{TypeJJ: true}, TypeJJ},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("WL_VCS", "")
			f := NewFactory(WithPreferredType(tt.preferred))
			f.detect = func(path string) (*DetectionResult, error) {
				return &DetectionResult{Type: tt.detected, RepoRoot: path}, nil
			}
			f.available = func(typ Type) bool { return tt.available[typ] }

			v, err := f.Create("/repo")
			if err != nil {
				t.Fatalf("Create() failed: %v", err)
			}
			if v.Name() != tt.want {
				t.Errorf("Create().Name() = %v, want %v", v.Name(), tt.want)
			}
			if root, _ := v.RepoRoot(); root != "/repo" {
				t.Errorf("RepoRoot() = %q, want /repo", root)
			}
		})
	}
}

func TestFactory_CreateDetectError(t *testing.T) {
	f := NewFactory()
	f.detect = func(string) (*DetectionResult, error) { return nil, ErrNotInVCS }

	if _, err := f.Create("/nowhere"); !errors.Is(err, ErrNotInVCS) {
		t.Errorf("Create() error = %v, want ErrNotInVCS", err)
	}
}

func TestPreferredVCS(t *testing.T) {
	tests := []struct {
		env  string
		want Type
	}{
		{"", TypeGit},
		{"git", TypeGit},
		{"jj", TypeJJ},
		{"Jujutsu", TypeJJ},
		{"svn", TypeGit},
	}
	for _, tt := range tests {
		t.Setenv("WL_VCS", tt.env)
		if got := PreferredVCS(); got != tt.want {
			t.Errorf("PreferredVCS() with WL_VCS=%q = %v, want %v", tt.env, got, tt.want)
		}
	}
}
