// Package orchestrator connects probes, filters, the job registry and the capture runner.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/alanbriolat/shiodome"
	"github.com/alanbriolat/shiodome/internal/filter"
	"github.com/alanbriolat/shiodome/internal/metrics"
	"github.com/alanbriolat/shiodome/internal/session"
)

var (
	ErrAlreadyRunning = errors.New("already archiving")
)

// A Launcher starts the capture for an admitted job without waiting for it.
type Launcher interface {
	Launch(job *session.Job) error
}

type Settings struct {
	// ProbeTimeout bounds each individual probe call.
	ProbeTimeout time.Duration
	// ChannelSpacing is the minimum time between probes of channels in the same family.
	ChannelSpacing time.Duration
}

// SourceLister returns the current channels for a family. It is called once per poll, so channels added or removed
// by a config reload take effect on the next poll.
type SourceLister func(family shiodome.Platform) []shiodome.ChannelSource

type Orchestrator struct {
	probes   *shiodome.ProbeRegistry
	sources  SourceLister
	settings func() Settings
	registry *session.Registry
	launcher Launcher

	mu       sync.Mutex
	limiters map[shiodome.Platform]*rate.Limiter
	log      *zap.SugaredLogger
}

func New(probes *shiodome.ProbeRegistry, sources SourceLister, settings func() Settings, registry *session.Registry, launcher Launcher) *Orchestrator {
	return &Orchestrator{
		probes:   probes,
		sources:  sources,
		settings: settings,
		registry: registry,
		launcher: launcher,
		limiters: make(map[shiodome.Platform]*rate.Limiter),
		log:      zap.S().Named("orchestrator"),
	}
}

func spacingLimit(spacing time.Duration) rate.Limit {
	if spacing <= 0 {
		return rate.Inf
	}
	return rate.Every(spacing)
}

func (o *Orchestrator) limiter(family shiodome.Platform, spacing time.Duration) *rate.Limiter {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.limiters[family]
	if !ok {
		l = rate.NewLimiter(spacingLimit(spacing), 1)
		o.limiters[family] = l
	} else if l.Limit() != spacingLimit(spacing) {
		l.SetLimit(spacingLimit(spacing))
	}
	return l
}

// Poll probes every channel of a family once, admitting and launching every matching candidate that isn't already
// being archived. It never waits for a capture to finish. A failing probe is logged and the poll moves on to the next
// channel.
func (o *Orchestrator) Poll(ctx context.Context, family shiodome.Platform) {
	log := o.log.With("family", family.String())
	probe, err := o.probes.Get(family)
	if err != nil {
		log.Errorw("no probe for family", "error", err)
		return
	}
	settings := o.settings()
	limiter := o.limiter(family, settings.ChannelSpacing)

	for _, source := range o.sources(family) {
		if err := limiter.Wait(ctx); err != nil {
			log.Debugw("poll interrupted", "error", err)
			return
		}
		o.pollSource(ctx, probe, source, settings.ProbeTimeout)
	}
}

func (o *Orchestrator) pollSource(ctx context.Context, probe shiodome.Probe, source shiodome.ChannelSource, timeout time.Duration) {
	log := o.log.With("family", source.Platform.String(), "channel", source.Name)
	family := source.Platform.String()

	filters, err := filter.Compile(source.Filters)
	if err != nil {
		log.Errorw("invalid filters", "error", err)
		return
	}

	probeCtx := shiodome.WithLogger(ctx, log)
	if timeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(probeCtx, timeout)
		defer cancel()
	}
	log.Debug("checking channel")
	candidates, err := probe.Probe(probeCtx, source)
	if err != nil {
		// Treated as "nothing new"; the next tick will try again.
		log.Warnw("probe failed", "error", err)
		metrics.RecordProbeError(family)
		return
	}

	for _, candidate := range candidates {
		clog := log.With("identity", candidate.Identity, "title", candidate.Title)
		ok, err := filters.Match(candidate.Title)
		if err != nil {
			// Failed patterns count as no match
			clog.Warnw("filter error", "error", err)
		}
		if !ok {
			clog.Debug("title does not match filters")
			metrics.RecordCandidate(family, metrics.OutcomeFiltered)
			continue
		}
		job, admitted := o.registry.TryAdmit(source, candidate)
		if !admitted {
			clog.Debugw("already archiving", "run_id", job.RunID)
			metrics.RecordCandidate(family, metrics.OutcomeDuplicate)
			continue
		}
		metrics.RecordCandidate(family, metrics.OutcomeAdmitted)
		clog.Infow("archiving", "run_id", job.RunID, "url", candidate.URL)
		if err := o.launcher.Launch(job); err != nil {
			clog.Errorw("launch failed", "run_id", job.RunID, "error", err)
		}
	}
}

// Submit admits and launches a single candidate directly, without probing or filtering. If the identity is already
// being archived the existing job is returned with ErrAlreadyRunning.
func (o *Orchestrator) Submit(ctx context.Context, source shiodome.ChannelSource, candidate shiodome.LiveCandidate) (*session.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	job, admitted := o.registry.TryAdmit(source, candidate)
	if !admitted {
		return job, fmt.Errorf("%w: %s", ErrAlreadyRunning, candidate.Identity)
	}
	o.log.Infow("archiving on request", "identity", job.Identity, "run_id", job.RunID, "url", candidate.URL)
	if err := o.launcher.Launch(job); err != nil {
		return job, err
	}
	return job, nil
}
