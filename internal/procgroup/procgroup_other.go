//go:build !unix

package procgroup

import (
	"os/exec"
	"syscall"
)

func Set(cmd *exec.Cmd) {}

// Kill only supports SIGKILL here, which kills the process but not its children.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if sig == syscall.SIGKILL {
		return cmd.Process.Kill()
	}
	return nil
}
