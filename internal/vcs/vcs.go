// Package vcs reads shared snapshot data out of version control without
// touching the working tree.
//
// Two backends exist: internal/vcs/git and internal/vcs/jj. Both register
// themselves with the package registry from an init function, so callers
// import them for side effects and obtain an instance through a Factory:
//
//	import _ "github.com/mschirtzinger/worklog/internal/vcs/git"
//
//	v, err := vcs.NewFactory(vcs.WithPreferredType(vcs.TypeGit)).Create(".")
//	if err != nil {
//	    return err
//	}
//	if err := v.Fetch(ctx, "origin", "+refs/worklog/data:refs/worklog/remotes/origin/worklog/data"); err != nil {
//	    return err
//	}
//	data, err := v.ExtractFileFromRef(ctx, "refs/worklog/remotes/origin/worklog/data", ".worklog/worklog-data.jsonl")
//
// The interface is deliberately small: remote discovery, a refspec fetch,
// and a read of one file as of one ref.
package vcs

import "context"

// Type represents the VCS backend type
type Type string

const (
	// TypeGit indicates a git-only repository
	TypeGit Type = "git"

	// TypeJJ indicates a jj-only repository (non-colocated)
	TypeJJ Type = "jj"

	// TypeColocate indicates a colocated repository (jj + git together)
	TypeColocate Type = "colocate"
)

// String returns the string representation of the VCS type
func (t Type) String() string {
	return string(t)
}

// VCS is the subset of version control operations the snapshot transport
// needs.
type VCS interface {
	// Name returns the VCS type (git, jj, or colocate)
	Name() Type

	// Version returns the VCS binary version string
	Version() (string, error)

	// RepoRoot returns the repository root directory path.
	RepoRoot() (string, error)

	// HasRemote returns true if any remote is configured.
	HasRemote() bool

	// GetRemotes returns the configured remotes.
	GetRemotes() ([]RemoteInfo, error)

	// Fetch updates local refs from remote using a git-style refspec
	// ("[+]src:dst"). Returns ErrNoRemote if remote is not configured and
	// ErrRefNotFound if the source ref does not exist on the remote.
	Fetch(ctx context.Context, remote, refspec string) error

	// ExtractFileFromRef returns the content of path as of ref without
	// modifying the working tree. Returns ErrRefNotFound if the ref or the
	// file at that ref does not exist.
	ExtractFileFromRef(ctx context.Context, ref, path string) ([]byte, error)

	// Exec runs a raw VCS command in the repository root.
	Exec(ctx context.Context, args ...string) ([]byte, error)
}

// RemoteInfo describes a configured remote.
type RemoteInfo struct {
	Name string
	URL  string
}
