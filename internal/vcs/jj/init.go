package jj

import "github.com/mschirtzinger/worklog/internal/vcs"

// init registers the jj VCS implementation with the factory.
func init() {
	vcs.Register(vcs.TypeJJ, func(path string) (vcs.VCS, error) {
		return New(path)
	})
}
