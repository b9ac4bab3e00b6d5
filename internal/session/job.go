package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alanbriolat/shiodome"
	"github.com/alanbriolat/shiodome/internal/sync_"
)

var (
	ErrTerminal          = errors.New("job already in a terminal state")
	ErrInvalidTransition = errors.New("invalid job state transition")
)

type JobState string

const (
	// JobStatePending is a job that has been admitted but whose process has not started yet.
	JobStatePending   JobState = "pending"
	JobStateStarted   JobState = "started"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
)

// IsTerminal returns true if no further transitions are possible from this state.
func (s JobState) IsTerminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed
}

// A Job is one archive of one identity. The Registry owns the identity -> Job mapping; the capture runner is the
// only thing that changes a Job's state.
type Job struct {
	Identity   string
	RunID      string
	Source     shiodome.ChannelSource
	Candidate  shiodome.LiveCandidate
	AdmittedAt time.Time

	mu         sync.RWMutex
	state      JobState
	startedAt  time.Time
	finishedAt time.Time
	exitCode   int
	logPath    string
	err        error
	done       sync_.Event
}

func newJob(source shiodome.ChannelSource, candidate shiodome.LiveCandidate) *Job {
	return &Job{
		Identity:   candidate.Identity,
		RunID:      uuid.NewString(),
		Source:     source,
		Candidate:  candidate,
		AdmittedAt: time.Now(),
		state:      JobStatePending,
		exitCode:   -1,
	}
}

// NewJob creates a standalone Job that is not tracked by any Registry, e.g. for one-shot captures.
func NewJob(source shiodome.ChannelSource, candidate shiodome.LiveCandidate) *Job {
	return newJob(source, candidate)
}

func (j *Job) String() string {
	return fmt.Sprintf("Job{Identity:%q, Source:%q, State:%q}", j.Identity, j.Source.String(), j.State())
}

func (j *Job) State() JobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Err is the reason a job failed, if there is one beyond a nonzero exit code.
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

func (j *Job) LogPath() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.logPath
}

// MarkStarted moves a pending job to started, recording where its diagnostic log is.
func (j *Job) MarkStarted(logPath string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case j.state.IsTerminal():
		return ErrTerminal
	case j.state != JobStatePending:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.state, JobStateStarted)
	}
	j.state = JobStateStarted
	j.startedAt = time.Now()
	j.logPath = logPath
	return nil
}

// Finish moves the job to its terminal state: Succeeded for a started job that exited 0 without error, otherwise
// Failed. Only the first call has any effect; later calls return ErrTerminal.
func (j *Job) Finish(exitCode int, err error) (JobState, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.IsTerminal() {
		return j.state, ErrTerminal
	}
	if j.state == JobStateStarted && exitCode == 0 && err == nil {
		j.state = JobStateSucceeded
	} else {
		j.state = JobStateFailed
	}
	j.exitCode = exitCode
	j.err = err
	j.finishedAt = time.Now()
	j.done.Set()
	return j.state, nil
}

// Done is closed once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done.Wait()
}

// Snapshot returns a point-in-time copy suitable for serialising.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	s := JobSnapshot{
		Identity:     j.Identity,
		RunID:        j.RunID,
		Platform:     j.Source.Platform,
		Channel:      j.Source.Name,
		Title:        j.Candidate.Title,
		URL:          j.Candidate.URL,
		ThumbnailURL: j.Candidate.ThumbnailURL,
		State:        j.state,
		AdmittedAt:   j.AdmittedAt,
		ExitCode:     j.exitCode,
		LogPath:      j.logPath,
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		s.StartedAt = &t
	}
	if !j.finishedAt.IsZero() {
		t := j.finishedAt
		s.FinishedAt = &t
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	return s
}

func (j *Job) log() *zap.SugaredLogger {
	return zap.S().Named("job").With("identity", j.Identity, "run_id", j.RunID)
}

type JobSnapshot struct {
	Identity     string            `json:"identity"`
	RunID        string            `json:"run_id"`
	Platform     shiodome.Platform `json:"platform"`
	Channel      string            `json:"channel"`
	Title        string            `json:"title"`
	URL          string            `json:"url"`
	ThumbnailURL string            `json:"thumbnail_url,omitempty"`
	State        JobState          `json:"state"`
	AdmittedAt   time.Time         `json:"admitted_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
	ExitCode     int               `json:"exit_code"`
	LogPath      string            `json:"log_path,omitempty"`
	Error        string            `json:"error,omitempty"`
}
