package git

import "github.com/mschirtzinger/worklog/internal/vcs"

// init registers the git VCS implementation with the factory.
func init() {
	vcs.Register(vcs.TypeGit, func(path string) (vcs.VCS, error) {
		return New(path)
	})
}
