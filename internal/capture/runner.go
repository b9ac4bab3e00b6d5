// Package capture runs the external capture tool for admitted jobs and drives each job to its terminal state.
package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alanbriolat/shiodome"
	"github.com/alanbriolat/shiodome/internal/metrics"
	"github.com/alanbriolat/shiodome/internal/pubsub"
	"github.com/alanbriolat/shiodome/internal/session"
	"github.com/alanbriolat/shiodome/internal/sync_"
	"github.com/alanbriolat/shiodome/util"
)

// Profile is one way of invoking a capture tool. The command line is Args, the stream URL, then TrailingArgs.
type Profile struct {
	ExecutablePath   string
	Args             []string
	TrailingArgs     []string
	WorkingDirectory string
}

func (p Profile) command(url string) []string {
	args := make([]string, 0, len(p.Args)+1+len(p.TrailingArgs))
	args = append(args, p.Args...)
	args = append(args, url)
	return append(args, p.TrailingArgs...)
}

// Settings are read once per launch, so a config reload affects only jobs launched afterwards.
type Settings struct {
	// Profile is used for any platform without its own entry in Platforms.
	Profile
	Platforms map[shiodome.Platform]Profile
	LogDir    string
}

// For returns the profile that captures streams from platform.
func (s Settings) For(platform shiodome.Platform) Profile {
	if p, ok := s.Platforms[platform]; ok {
		return p
	}
	return s.Profile
}

type ShutdownPolicy string

const (
	// ShutdownDetach waits for the grace period and then leaves any remaining captures running.
	ShutdownDetach ShutdownPolicy = "detach"
	// ShutdownTerminate signals every remaining capture, which then ends as failed.
	ShutdownTerminate ShutdownPolicy = "terminate"
)

func (p ShutdownPolicy) Valid() bool {
	return p == ShutdownDetach || p == ShutdownTerminate
}

// LogFilename is the diagnostic log path for a job launched at t.
func LogFilename(dir string, t time.Time, identity string) string {
	return filepath.Join(dir, fmt.Sprintf("err_%s %s.txt", t.Format("2006-01-02"), util.SanitizeFilename(identity)))
}

type running = map[*session.Job]Process

// Runner launches capture processes and is the only writer of job state once a job is admitted.
type Runner struct {
	settings func() Settings
	executor Executor
	registry *session.Registry
	events   pubsub.Publisher[session.Event]
	running  *sync_.Mutexed[running]
	// active counts launched captures not yet released; idle is set whenever it is zero.
	active *sync_.Mutexed[int]
	idle   *sync_.Event
	now    func() time.Time
	log    *zap.SugaredLogger
}

func NewRunner(settings func() Settings, executor Executor, registry *session.Registry, events pubsub.Publisher[session.Event]) *Runner {
	return &Runner{
		settings: settings,
		executor: executor,
		registry: registry,
		events:   events,
		running:  sync_.NewMutexed(make(running)),
		active:   sync_.NewMutexed(0),
		idle:     idleEvent(),
		now:      time.Now,
		log:      zap.S().Named("runner"),
	}
}

// Launch starts the capture for an admitted job and returns without waiting for it. If the process can't be started
// the job is failed and released before Launch returns the error.
func (r *Runner) Launch(job *session.Job) error {
	log := r.log.With("identity", job.Identity, "run_id", job.RunID)
	settings := r.settings()
	profile := settings.For(job.Source.Platform)

	dir := profile.WorkingDirectory
	if job.Source.OutPath != "" {
		dir = job.Source.OutPath
	}
	logPath := LogFilename(settings.LogDir, r.now(), job.Identity)
	cmd := Command{
		Path: profile.ExecutablePath,
		Args: profile.command(job.Candidate.URL),
		Dir:  dir,
	}

	logFile, err := openLog(logPath)
	if err != nil {
		r.fail(job, fmt.Errorf("open capture log: %w", err))
		return err
	}
	cmd.Stderr = logFile

	// Registered before starting so Shutdown can't miss a process that is about to exist.
	r.track(1)
	proc, err := r.executor.Start(cmd)
	if err != nil {
		r.track(-1)
		_ = logFile.Close()
		err = fmt.Errorf("start %s: %w", cmd.Path, err)
		r.fail(job, err)
		return err
	}
	if err := job.MarkStarted(logPath); err != nil {
		// Only possible if something else finished the job, which would be a bug; the process still gets waited on.
		log.Errorw("job could not be marked started", "error", err)
	}
	_ = r.running.Locked(func(m *running) error {
		(*m)[job] = proc
		return nil
	})
	log.Infow("capture started", "url", job.Candidate.URL, "dir", dir, "log", logPath)
	r.events.Send(session.NewJobStarted(job))

	go r.wait(job, proc, logFile)
	return nil
}

func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

func idleEvent() *sync_.Event {
	e := &sync_.Event{}
	e.Set()
	return e
}

func (r *Runner) track(delta int) {
	_ = r.active.Locked(func(n *int) error {
		*n += delta
		if *n == 0 {
			r.idle.Set()
		} else {
			r.idle.Clear()
		}
		return nil
	})
}

func (r *Runner) wait(job *session.Job, proc Process, logFile *os.File) {
	defer r.track(-1)
	log := r.log.With("identity", job.Identity, "run_id", job.RunID)

	exitCode, waitErr := proc.Wait()
	_ = logFile.Close()
	_ = r.running.Locked(func(m *running) error {
		delete(*m, job)
		return nil
	})

	state, err := job.Finish(exitCode, waitErr)
	if err != nil {
		log.Errorw("job already finished", "state", state, "error", err)
	}
	metrics.RecordJobFinished(string(state))
	if state == session.JobStateSucceeded {
		if err := os.Remove(job.LogPath()); err != nil && !os.IsNotExist(err) {
			log.Warnw("failed to remove capture log", "log", job.LogPath(), "error", err)
		}
		log.Infow("capture finished")
		r.events.Send(session.NewJobSucceeded(job))
	} else {
		log.Warnw("capture failed", "exit_code", exitCode, "log", job.LogPath(), "error", waitErr)
		r.events.Send(session.NewJobFailed(job, waitErr))
	}
	r.registry.ReleaseJob(job)
}

func (r *Runner) fail(job *session.Job, err error) {
	r.log.Errorw("capture could not start", "identity", job.Identity, "run_id", job.RunID, "error", err)
	if state, ferr := job.Finish(-1, err); ferr == nil {
		metrics.RecordJobFinished(string(state))
	}
	r.events.Send(session.NewJobFailed(job, err))
	r.registry.ReleaseJob(job)
}

// Running returns the jobs whose processes have started and not yet exited.
func (r *Runner) Running() []*session.Job {
	var jobs []*session.Job
	_ = r.running.Locked(func(m *running) error {
		for job := range *m {
			jobs = append(jobs, job)
		}
		return nil
	})
	return jobs
}

// Wait blocks until every launched capture has exited and been released, or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	select {
	case <-r.idle.Wait():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown applies policy to whatever is still running. With ShutdownDetach it waits up to grace and then returns,
// leaving remaining processes running. With ShutdownTerminate every process group is sent SIGTERM, then SIGKILL after
// grace, and Shutdown returns once they have all been released (or ctx is done).
func (r *Runner) Shutdown(ctx context.Context, policy ShutdownPolicy, grace time.Duration) error {
	switch policy {
	case ShutdownTerminate:
		return r.terminate(ctx, grace)
	default:
		return r.detach(ctx, grace)
	}
}

func (r *Runner) detach(ctx context.Context, grace time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := r.Wait(ctx); err == nil {
		return nil
	}
	for _, job := range r.Running() {
		r.log.Warnw("leaving capture running", "identity", job.Identity, "run_id", job.RunID, "log", job.LogPath())
	}
	return nil
}

func (r *Runner) terminate(ctx context.Context, grace time.Duration) error {
	var procs []Process
	_ = r.running.Locked(func(m *running) error {
		for job, proc := range *m {
			r.log.Infow("terminating capture", "identity", job.Identity, "run_id", job.RunID)
			procs = append(procs, proc)
		}
		return nil
	})
	g := new(errgroup.Group)
	for _, proc := range procs {
		proc := proc
		g.Go(func() error {
			return proc.Terminate(grace)
		})
	}
	if err := g.Wait(); err != nil {
		r.log.Errorw("failed to terminate capture", "error", err)
	}
	return r.Wait(ctx)
}
