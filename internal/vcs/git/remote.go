package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/mschirtzinger/worklog/internal/vcs"
)

// HasRemote returns true if any remote is configured
func (g *Git) HasRemote() bool {
	remotes, err := g.GetRemotes()
	return err == nil && len(remotes) > 0
}

// GetRemotes returns the configured remotes
func (g *Git) GetRemotes() ([]vcs.RemoteInfo, error) {
	out, err := g.Exec(context.Background(), "remote", "-v")
	if err != nil {
		return nil, err
	}
	return vcs.ParseRemotes(out), nil
}

// Fetch fetches refspec from remote. Unlike a plain `git fetch`, a missing
// remote is an error: the snapshot cannot be read without one.
func (g *Git) Fetch(ctx context.Context, remote, refspec string) error {
	if remote == "" {
		remote = "origin"
	}

	remotes, err := g.GetRemotes()
	if err != nil {
		return err
	}
	if !vcs.FindRemote(remotes, remote) {
		return fmt.Errorf("%w: %s", vcs.ErrNoRemote, remote)
	}

	args := []string{"fetch", "--no-tags", remote}
	if refspec != "" {
		args = append(args, refspec)
	}

	if _, err := g.Exec(ctx, args...); err != nil {
		if vcs.ErrorContains(err, "couldn't find remote ref") {
			return fmt.Errorf("%w: %s on %s", vcs.ErrRefNotFound, sourceRef(refspec), remote)
		}
		return err
	}
	return nil
}

// ExtractFileFromRef returns path's content as of ref via `git show ref:path`.
func (g *Git) ExtractFileFromRef(ctx context.Context, ref, path string) ([]byte, error) {
	out, err := g.Exec(ctx, "show", ref+":"+path)
	if err != nil {
		if vcs.ErrorContains(err, "invalid object name", "unknown revision", "does not exist", "exists on disk, but not in", "bad revision") {
			return nil, fmt.Errorf("%w: %s:%s", vcs.ErrRefNotFound, ref, path)
		}
		return nil, err
	}
	return out, nil
}

// sourceRef returns the source side of a "[+]src:dst" refspec.
func sourceRef(refspec string) string {
	src, _, _ := strings.Cut(strings.TrimPrefix(refspec, "+"), ":")
	return src
}
