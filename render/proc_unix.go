//go:build unix

package render

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureCmd puts the renderer in its own process group so a timeout
// takes down anything it spawned too.
func configureCmd(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
}
