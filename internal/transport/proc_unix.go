//go:build unix

package transport

import (
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// killGrace is how long Wait keeps waiting for output pipes after the
// process group has been killed.
const killGrace = 2 * time.Second

// configureProcess starts the command in a new process group and makes
// context cancellation kill the whole group, so helpers spawned by the
// command do not outlive it.
func configureProcess(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		if err := unix.Kill(-c.Process.Pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
			return c.Process.Kill()
		}
		return nil
	}
	c.WaitDelay = killGrace
}
