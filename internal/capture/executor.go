package capture

import (
	"errors"
	"io"
	"os/exec"
	"time"

	"github.com/alanbriolat/shiodome/internal/procgroup"
)

// A Command is a fully resolved capture invocation. There is no shell involved: Path is executed directly with Args.
type Command struct {
	Path string
	Args []string
	Dir  string
	// Stderr receives the capture tool's diagnostics. Stdout is always discarded.
	Stderr io.Writer
}

// A Process is a started capture.
type Process interface {
	// Wait blocks until the process exits, returning its exit code. err is only set if the exit status could not be
	// determined; a process killed by a signal has exit code -1 and no error.
	Wait() (exitCode int, err error)
	// Terminate asks the process (and anything it started) to stop, forcing it after grace, and returns once it has
	// exited.
	Terminate(grace time.Duration) error
}

// An Executor starts capture processes.
type Executor interface {
	Start(cmd Command) (Process, error)
}

// ExecExecutor runs commands as real child processes, each in its own process group so they survive a detached
// shutdown and don't receive the terminal's SIGINT.
type ExecExecutor struct{}

func (ExecExecutor) Start(c Command) (Process, error) {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stderr = c.Stderr
	procgroup.Set(cmd)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go p.wait()
	return p, nil
}

type execProcess struct {
	cmd      *exec.Cmd
	done     chan struct{}
	exitCode int
	err      error
}

func (p *execProcess) wait() {
	defer close(p.done)
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		p.exitCode = 0
	case errors.As(err, &exitErr):
		p.exitCode = exitErr.ExitCode()
	default:
		p.exitCode = -1
		p.err = err
	}
}

func (p *execProcess) Wait() (int, error) {
	<-p.done
	return p.exitCode, p.err
}

func (p *execProcess) Terminate(grace time.Duration) error {
	return procgroup.Terminate(p.cmd, p.done, grace)
}
