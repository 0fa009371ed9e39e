// Package git provides a Git implementation of the vcs.VCS interface.
//
// Every operation shells out to the git binary in the repository root.
// Reads go through `git show`, so the index and working tree are never
// touched.
package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/mschirtzinger/worklog/internal/vcs"
)

// Git implements the VCS interface for git repositories.
type Git struct {
	// repoRoot is the top-level working directory
	repoRoot string
}

// New creates a new Git VCS instance for the repository containing path.
func New(path string) (*Git, error) {
	out, err := vcs.ExecContext(context.Background(), vcs.DefaultTimeout, path, "git", "rev-parse", "--show-toplevel")
	if err != nil {
		if vcs.ErrorContains(err, "not a git repository") {
			return nil, vcs.ErrNotInVCS
		}
		return nil, fmt.Errorf("failed to resolve git repository root: %w", err)
	}

	root := vcs.TrimOutput(out)
	if root == "" {
		return nil, vcs.ErrNotInVCS
	}
	return &Git{repoRoot: root}, nil
}

// Name returns the VCS type (git)
func (g *Git) Name() vcs.Type {
	return vcs.TypeGit
}

// Version returns the git version string
func (g *Git) Version() (string, error) {
	out, err := vcs.ExecContext(context.Background(), vcs.DefaultTimeout, g.repoRoot, "git", "--version")
	if err != nil {
		return "", fmt.Errorf("failed to get git version: %w", err)
	}

	// Output format: "git version 2.39.0"
	return strings.TrimPrefix(vcs.TrimOutput(out), "git version "), nil
}

// RepoRoot returns the repository root directory path
func (g *Git) RepoRoot() (string, error) {
	if g.repoRoot == "" {
		return "", vcs.ErrNotInVCS
	}
	return g.repoRoot, nil
}

// Exec executes a raw git command
func (g *Git) Exec(ctx context.Context, args ...string) ([]byte, error) {
	out, err := vcs.ExecContext(ctx, vcs.DefaultTimeout, g.repoRoot, "git", args...)
	if err != nil {
		return nil, fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
	}
	return out, nil
}
