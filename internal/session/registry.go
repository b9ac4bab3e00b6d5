package session

import (
	"sort"

	"go.uber.org/zap"

	"github.com/alanbriolat/shiodome"
	"github.com/alanbriolat/shiodome/internal/sync_"
)

type RegistryEventKind int

const (
	Admitted RegistryEventKind = iota + 1
	Released
)

func (k RegistryEventKind) String() string {
	switch k {
	case Admitted:
		return "admitted"
	case Released:
		return "released"
	default:
		return "unknown"
	}
}

// A RegistryEvent is reported to the registry observer for every admission and release.
type RegistryEvent struct {
	Kind     RegistryEventKind
	Identity string
	Job      *Job
	// InFlight is the number of jobs in the registry after the change.
	InFlight int
}

type jobsByIdentity = map[string]*Job

// Registry is the set of identities currently being archived, and the single place duplicate launches are prevented.
type Registry struct {
	jobs     *sync_.RWMutexed[jobsByIdentity]
	observer func(RegistryEvent)
	log      *zap.SugaredLogger
}

// NewRegistry creates an empty Registry. If observer is not nil it is called for every admission and release while
// the registry lock is held, so it sees changes in their true order; it must be fast and must not call back into the
// Registry.
func NewRegistry(observer func(RegistryEvent)) *Registry {
	return &Registry{
		jobs:     sync_.NewRWMutexed(make(jobsByIdentity)),
		observer: observer,
		log:      zap.S().Named("registry"),
	}
}

// TryAdmit registers the candidate's identity as in-flight. It returns the new Job and true only if this call
// inserted it; if the identity is already in flight it returns the existing Job and false.
func (r *Registry) TryAdmit(source shiodome.ChannelSource, candidate shiodome.LiveCandidate) (*Job, bool) {
	var job *Job
	var admitted bool
	_ = r.jobs.Locked(func(jobs *jobsByIdentity) error {
		if existing, ok := (*jobs)[candidate.Identity]; ok {
			job = existing
			return nil
		}
		job = newJob(source, candidate)
		(*jobs)[job.Identity] = job
		admitted = true
		r.notify(Admitted, job, len(*jobs))
		return nil
	})
	if admitted {
		job.log().Debugw("admitted", "source", source.String())
	}
	return job, admitted
}

// Release removes the identity. Releasing an identity that is not in flight is a no-op returning false.
func (r *Registry) Release(identity string) bool {
	return r.release(identity, nil)
}

// ReleaseJob removes job only if it is still the Job registered for its identity, so a stale caller can never release
// somebody else's admission.
func (r *Registry) ReleaseJob(job *Job) bool {
	return r.release(job.Identity, job)
}

func (r *Registry) release(identity string, expected *Job) bool {
	var released bool
	_ = r.jobs.Locked(func(jobs *jobsByIdentity) error {
		stored, ok := (*jobs)[identity]
		if !ok || (expected != nil && stored != expected) {
			return nil
		}
		delete(*jobs, identity)
		released = true
		r.notify(Released, stored, len(*jobs))
		return nil
	})
	if !released {
		r.log.Warnw("release of identity that is not in flight", "identity", identity)
	}
	return released
}

func (r *Registry) notify(kind RegistryEventKind, job *Job, inFlight int) {
	if r.observer != nil {
		r.observer(RegistryEvent{Kind: kind, Identity: job.Identity, Job: job, InFlight: inFlight})
	}
}

func (r *Registry) Contains(identity string) bool {
	return r.Get(identity) != nil
}

// Get returns the in-flight Job for identity, or nil.
func (r *Registry) Get(identity string) (job *Job) {
	_ = r.jobs.RLocked(func(jobs *jobsByIdentity) error {
		job = (*jobs)[identity]
		return nil
	})
	return job
}

// List returns the in-flight jobs ordered by admission time.
func (r *Registry) List() []*Job {
	var list []*Job
	_ = r.jobs.RLocked(func(jobs *jobsByIdentity) error {
		list = make([]*Job, 0, len(*jobs))
		for _, j := range *jobs {
			list = append(list, j)
		}
		return nil
	})
	sort.Slice(list, func(i, j int) bool {
		return list[i].AdmittedAt.Before(list[j].AdmittedAt)
	})
	return list
}

func (r *Registry) Len() (n int) {
	_ = r.jobs.RLocked(func(jobs *jobsByIdentity) error {
		n = len(*jobs)
		return nil
	})
	return n
}
