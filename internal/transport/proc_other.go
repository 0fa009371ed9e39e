//go:build !unix

package transport

import (
	"os/exec"
	"time"
)

const killGrace = 2 * time.Second

func configureProcess(c *exec.Cmd) {
	c.WaitDelay = killGrace
}
