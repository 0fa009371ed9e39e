// Package jj implements the vcs.VCS interface for Jujutsu (jj).
//
// jj tracks remote branches as bookmarks and has no way to fetch into an
// arbitrary ref namespace, so only branch refspecs are supported here.
// Explicit refs such as refs/worklog/data return vcs.ErrNotSupported; in a
// colocated repository the git backend serves those.
package jj

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mschirtzinger/worklog/internal/vcs"
)

// JJ implements the VCS interface for Jujutsu.
type JJ struct {
	// repoRoot is the repository root directory
	repoRoot string

	// isColocated indicates if this is a colocated repo (.jj + .git)
	isColocated bool
}

// New creates a new JJ instance for the given repository root, which must
// contain a .jj directory.
func New(repoRoot string) (*JJ, error) {
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository root: %w", err)
	}

	if info, err := os.Stat(filepath.Join(absRoot, ".jj")); err != nil || !info.IsDir() {
		return nil, vcs.ErrNotInVCS
	}

	_, gitErr := os.Stat(filepath.Join(absRoot, ".git"))
	return &JJ{
		repoRoot:    absRoot,
		isColocated: gitErr == nil,
	}, nil
}

// Name returns "jj" for non-colocated repos, "colocate" for colocated repos.
func (j *JJ) Name() vcs.Type {
	if j.isColocated {
		return vcs.TypeColocate
	}
	return vcs.TypeJJ
}

// Version returns the jj binary version string.
func (j *JJ) Version() (string, error) {
	out, err := vcs.ExecContext(context.Background(), vcs.DefaultTimeout, j.repoRoot, "jj", "--version")
	if err != nil {
		return "", fmt.Errorf("failed to get jj version: %w", err)
	}

	// Parse "jj 0.32.0" to "0.32.0"
	version := vcs.TrimOutput(out)
	if parts := strings.Fields(version); len(parts) >= 2 {
		return parts[1], nil
	}
	return version, nil
}

// RepoRoot returns the repository root directory path.
func (j *JJ) RepoRoot() (string, error) {
	return j.repoRoot, nil
}

// Exec executes a raw jj command.
func (j *JJ) Exec(ctx context.Context, args ...string) ([]byte, error) {
	out, err := vcs.ExecContext(ctx, vcs.DefaultTimeout, j.repoRoot, "jj", args...)
	if err != nil {
		return nil, fmt.Errorf("jj %s failed: %w", strings.Join(args, " "), err)
	}
	return out, nil
}
