package session

import "github.com/alanbriolat/shiodome/internal/pubsub"

// Event is published at each registry change and job state transition.
type Event interface {
	// The Job this event relates to.
	Job() *Job
}

type jobEvent struct {
	job *Job
}

func (e jobEvent) Job() *Job {
	return e.job
}

// JobAdmitted and JobReleased mirror the registry, so per identity they strictly alternate.
type JobAdmitted struct {
	jobEvent
}

type JobReleased struct {
	jobEvent
}

type JobStarted struct {
	jobEvent
}

type JobSucceeded struct {
	jobEvent
}

type JobFailed struct {
	jobEvent
	Err error
}

func NewJobAdmitted(j *Job) JobAdmitted {
	return JobAdmitted{jobEvent{j}}
}

func NewJobReleased(j *Job) JobReleased {
	return JobReleased{jobEvent{j}}
}

func NewJobStarted(j *Job) JobStarted {
	return JobStarted{jobEvent{j}}
}

func NewJobSucceeded(j *Job) JobSucceeded {
	return JobSucceeded{jobEvent{j}}
}

func NewJobFailed(j *Job, err error) JobFailed {
	return JobFailed{jobEvent{j}, err}
}

// IsTerminal returns true for events that end a job.
func IsTerminal(e Event) bool {
	switch e.(type) {
	case JobSucceeded, JobFailed:
		return true
	default:
		return false
	}
}

// PublishRegistryEvents returns a registry observer that sends JobAdmitted and JobReleased to events. Because the
// observer runs under the registry lock, the published order matches the order of the changes.
func PublishRegistryEvents(events pubsub.Publisher[Event]) func(RegistryEvent) {
	return func(e RegistryEvent) {
		switch e.Kind {
		case Admitted:
			events.Send(NewJobAdmitted(e.Job))
		case Released:
			events.Send(NewJobReleased(e.Job))
		}
	}
}
