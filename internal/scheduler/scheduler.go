// Package scheduler runs one periodic poll loop per source family.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alanbriolat/shiodome"
	"github.com/alanbriolat/shiodome/internal/metrics"
)

var (
	ErrUnknownFamily = errors.New("family is not scheduled")
	ErrPollRunning   = errors.New("poll already running")
	ErrNotRunning    = errors.New("scheduler is not running")
)

// PollFunc runs one poll of a family. It must return once ctx is done.
type PollFunc func(ctx context.Context, family shiodome.Platform)

type family struct {
	platform shiodome.Platform
	interval time.Duration
	// running guards poll execution; a poll that can't take it is skipped.
	running sync.Mutex
}

// Scheduler polls each family immediately and then every interval. Polls of the same family never overlap: a tick
// that arrives while the previous poll is still running is skipped. Different families are independent.
type Scheduler struct {
	poll     PollFunc
	families map[shiodome.Platform]*family
	ctx      context.Context
	mu       sync.Mutex
	wg       sync.WaitGroup
	log      *zap.SugaredLogger
}

func New(poll PollFunc, intervals map[shiodome.Platform]time.Duration) *Scheduler {
	s := &Scheduler{
		poll:     poll,
		families: make(map[shiodome.Platform]*family, len(intervals)),
		log:      zap.S().Named("scheduler"),
	}
	for platform, interval := range intervals {
		s.families[platform] = &family{platform: platform, interval: interval}
	}
	return s
}

// Run starts every family loop and blocks until ctx is done and all loops (and any triggered polls) have returned.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	for _, f := range s.families {
		s.wg.Add(1)
		go s.loop(ctx, f)
	}
	<-ctx.Done()
	s.mu.Lock()
	s.ctx = nil
	s.mu.Unlock()
	s.wg.Wait()
	s.log.Debug("all family loops stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, f *family) {
	defer s.wg.Done()
	log := s.log.With("family", f.platform.String())
	log.Infow("starting family loop", "interval", f.interval.String())

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		s.tryPoll(ctx, f, log)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tryPoll runs the poll unless one is already running, returning false if it was skipped.
func (s *Scheduler) tryPoll(ctx context.Context, f *family, log *zap.SugaredLogger) bool {
	if ctx.Err() != nil {
		return false
	}
	if !f.running.TryLock() {
		log.Debug("previous poll still running, skipping")
		metrics.RecordPoll(f.platform.String(), metrics.OutcomeSkipped)
		return false
	}
	defer f.running.Unlock()
	start := time.Now()
	s.poll(ctx, f.platform)
	metrics.RecordPoll(f.platform.String(), metrics.OutcomeCompleted)
	log.Debugw("poll finished", "elapsed", time.Since(start).String())
	return true
}

// Trigger starts an extra poll of a family in the background, unless one is already running. It only works while Run
// is running.
func (s *Scheduler) Trigger(platform shiodome.Platform) error {
	f, ok := s.families[platform]
	if !ok {
		return ErrUnknownFamily
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.ctx
	if ctx == nil || ctx.Err() != nil {
		return ErrNotRunning
	}
	if !f.running.TryLock() {
		metrics.RecordPoll(platform.String(), metrics.OutcomeSkipped)
		return ErrPollRunning
	}
	// The goroutine takes over the already-held lock.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer f.running.Unlock()
		s.log.Infow("manual poll", "family", platform.String())
		s.poll(ctx, platform)
		metrics.RecordPoll(platform.String(), metrics.OutcomeCompleted)
	}()
	return nil
}

// Families returns the scheduled families.
func (s *Scheduler) Families() []shiodome.Platform {
	var out []shiodome.Platform
	for _, p := range shiodome.Platforms {
		if _, ok := s.families[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
