package jj

import (
	"context"
	"fmt"
	"strings"

	"github.com/mschirtzinger/worklog/internal/vcs"
)

// HasRemote returns true if any remote is configured.
func (j *JJ) HasRemote() bool {
	remotes, err := j.GetRemotes()
	return err == nil && len(remotes) > 0
}

// GetRemotes returns the git remotes of the backing store.
func (j *JJ) GetRemotes() ([]vcs.RemoteInfo, error) {
	out, err := j.Exec(context.Background(), "git", "remote", "list")
	if err != nil {
		return nil, err
	}
	return vcs.ParseRemotes(out), nil
}

// Fetch fetches one branch. refspec is either a bare branch name or
// "[+]refs/heads/<b>:refs/remotes/<remote>/<b>"; anything else returns
// vcs.ErrNotSupported.
func (j *JJ) Fetch(ctx context.Context, remote, refspec string) error {
	if remote == "" {
		remote = "origin"
	}

	branch, err := branchFromRefspec(remote, refspec)
	if err != nil {
		return err
	}

	remotes, err := j.GetRemotes()
	if err != nil {
		return err
	}
	if !vcs.FindRemote(remotes, remote) {
		return fmt.Errorf("%w: %s", vcs.ErrNoRemote, remote)
	}

	args := []string{"git", "fetch", "--remote", remote}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	if _, err := j.Exec(ctx, args...); err != nil {
		if vcs.ErrorContains(err, "no branch", "no such branch", "doesn't exist") {
			return fmt.Errorf("%w: %s on %s", vcs.ErrRefNotFound, branch, remote)
		}
		return err
	}
	return nil
}

// ExtractFileFromRef reads path at ref with `jj file show`. Remote-tracking
// refs are translated to bookmark revsets (refs/remotes/origin/x -> x@origin).
func (j *JJ) ExtractFileFromRef(ctx context.Context, ref, path string) ([]byte, error) {
	rev, err := revsetForRef(ref)
	if err != nil {
		return nil, err
	}

	out, err := j.Exec(ctx, "file", "show", "-r", rev, "--", path)
	if err != nil {
		if vcs.ErrorContains(err, "doesn't exist", "no such path", "not found") {
			return nil, fmt.Errorf("%w: %s:%s", vcs.ErrRefNotFound, ref, path)
		}
		return nil, err
	}
	return out, nil
}

// branchFromRefspec extracts the branch a refspec fetches. An empty refspec
// fetches every branch.
func branchFromRefspec(remote, refspec string) (string, error) {
	spec := strings.TrimPrefix(refspec, "+")
	if spec == "" {
		return "", nil
	}

	src, dst, hasDst := strings.Cut(spec, ":")
	if !hasDst {
		if strings.HasPrefix(src, "refs/") {
			branch, ok := strings.CutPrefix(src, "refs/heads/")
			if !ok {
				return "", fmt.Errorf("%w: jj cannot fetch %s", vcs.ErrNotSupported, src)
			}
			return branch, nil
		}
		return src, nil
	}

	branch, ok := strings.CutPrefix(src, "refs/heads/")
	if !ok || dst != "refs/remotes/"+remote+"/"+branch {
		return "", fmt.Errorf("%w: jj cannot fetch into %s", vcs.ErrNotSupported, dst)
	}
	return branch, nil
}

// revsetForRef maps a git ref name onto a jj revset.
func revsetForRef(ref string) (string, error) {
	if rest, ok := strings.CutPrefix(ref, "refs/remotes/"); ok {
		remote, branch, found := strings.Cut(rest, "/")
		if !found || branch == "" {
			return "", fmt.Errorf("%w: %s", vcs.ErrRefNotFound, ref)
		}
		return fmt.Sprintf("%s@%s", branch, remote), nil
	}
	if branch, ok := strings.CutPrefix(ref, "refs/heads/"); ok {
		return branch, nil
	}
	if strings.HasPrefix(ref, "refs/") {
		return "", fmt.Errorf("%w: jj cannot read %s", vcs.ErrNotSupported, ref)
	}
	return ref, nil
}
