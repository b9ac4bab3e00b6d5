// Package procgroup starts capture processes in their own process group, so that they outlive a detached daemon
// and can be signalled as a whole (including any children the capture tool spawns).
package procgroup

import (
	"os/exec"
	"syscall"
	"time"
)

// Terminate sends SIGTERM to the command's process group and waits for done to close. If it hasn't after grace, the
// group gets SIGKILL. done is normally closed by whatever goroutine owns cmd.Wait().
func Terminate(cmd *exec.Cmd, done <-chan struct{}, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := Kill(cmd, syscall.SIGTERM); err != nil {
		return err
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
	}
	if err := Kill(cmd, syscall.SIGKILL); err != nil {
		return err
	}
	<-done
	return nil
}
