package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alanbriolat/shiodome"
	"github.com/alanbriolat/shiodome/internal/api"
	"github.com/alanbriolat/shiodome/internal/boltdb"
	"github.com/alanbriolat/shiodome/internal/capture"
	"github.com/alanbriolat/shiodome/internal/config"
	"github.com/alanbriolat/shiodome/internal/metrics"
	"github.com/alanbriolat/shiodome/internal/notify"
	"github.com/alanbriolat/shiodome/internal/orchestrator"
	"github.com/alanbriolat/shiodome/internal/pubsub"
	"github.com/alanbriolat/shiodome/internal/scheduler"
	"github.com/alanbriolat/shiodome/internal/session"
	"github.com/alanbriolat/shiodome/probe"
)

const webhookTimeout = 10 * time.Second

// components is everything between the probes and the capture processes, shared by the daemon and the one-shot
// archive command.
type components struct {
	holder       *config.Holder
	registry     *session.Registry
	events       pubsub.Publisher[session.Event]
	runner       *capture.Runner
	orchestrator *orchestrator.Orchestrator
	history      session.History
	closeHistory func() error
	subscribers  sync.WaitGroup
	log          *zap.SugaredLogger
}

func newComponents(holder *config.Holder) (*components, error) {
	cfg := holder.Get()
	c := &components{
		holder:       holder,
		events:       pubsub.NewPublisher[session.Event](),
		history:      session.NilHistory{},
		closeHistory: func() error { return nil },
		log:          zap.S().Named("daemon"),
	}
	publish := session.PublishRegistryEvents(c.events)
	c.registry = session.NewRegistry(func(e session.RegistryEvent) {
		publish(e)
		metrics.SetJobsInFlight(e.InFlight)
		c.log.Debugw("registry changed", "kind", e.Kind.String(), "identity", e.Identity, "in_flight", e.InFlight)
	})

	if cfg.History.Path != "" {
		db, err := boltdb.New(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		c.history = db
		c.closeHistory = db.Close
	}

	probes, err := probe.NewRegistry(probe.Options{
		Timeout:       cfg.ProbeTimeout(),
		Cookies:       cfg.Archive.Cookies,
		RecencyWindow: func() time.Duration { return holder.Get().RecencyWindow() },
	})
	if err != nil {
		_ = c.closeHistory()
		return nil, fmt.Errorf("create probes: %w", err)
	}
	if err := probes.Check(cfg.AllSources()); err != nil {
		_ = c.closeHistory()
		return nil, err
	}
	c.log.Debugw("probes ready", "platforms", probes.List())

	c.runner = capture.NewRunner(
		func() capture.Settings { return holder.Get().CaptureSettings() },
		capture.ExecExecutor{},
		c.registry,
		c.events,
	)
	c.orchestrator = orchestrator.New(
		probes,
		func(family shiodome.Platform) []shiodome.ChannelSource {
			cfg := holder.Get()
			if !cfg.Enabled(family) {
				return nil
			}
			return cfg.Sources(family)
		},
		func() orchestrator.Settings { return holder.Get().OrchestratorSettings() },
		c.registry,
		c.runner,
	)
	return c, nil
}

// subscribe starts the notification and history subscribers. ctx is used for webhook requests, so it should outlive
// the capture shutdown for final notifications to be delivered.
func (c *components) subscribe(ctx context.Context) error {
	notifications, err := c.events.Subscribe()
	if err != nil {
		return err
	}
	records, err := c.events.Subscribe()
	if err != nil {
		notifications.Close()
		return err
	}
	discord := notify.NewDiscord(
		func() notify.DiscordSettings { return c.holder.Get().DiscordSettings() },
		&http.Client{Timeout: webhookTimeout},
	)
	c.subscribers.Add(2)
	go func() {
		defer c.subscribers.Done()
		notify.Run(ctx, notifications, discord)
	}()
	go func() {
		defer c.subscribers.Done()
		session.RecordHistory(records, c.history)
	}()
	return nil
}

// shutdown applies the configured shutdown policy to running captures, then drains the subscribers.
func (c *components) shutdown(policy capture.ShutdownPolicy, grace time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*grace+5*time.Second)
	defer cancel()
	c.log.Infow("stopping captures", "policy", string(policy), "grace", grace.String(), "running", len(c.runner.Running()))
	if err := c.runner.Shutdown(ctx, policy, grace); err != nil {
		c.log.Warnw("captures did not stop cleanly", "error", err)
	}
	c.events.Close()
	c.subscribers.Wait()
	if err := c.closeHistory(); err != nil {
		c.log.Warnw("failed to close history", "error", err)
	}
}

func runDaemon(ctx context.Context, configPath string) error {
	holder, err := config.LoadHolder(configPath)
	if err != nil {
		return err
	}
	cfg := holder.Get()
	log := zap.S().Named("daemon")
	log.Infow("starting", "version", shiodome.Version, "config", configPath, "channels", len(cfg.AllSources()))

	c, err := newComponents(holder)
	if err != nil {
		return err
	}
	if err := c.subscribe(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	intervals := cfg.Intervals()
	if len(intervals) == 0 {
		log.Warn("no platform is enabled, nothing will be polled")
	}
	sched := scheduler.New(c.orchestrator.Poll, intervals)
	holder.OnReload(func(old, new *config.Config) {
		if !sameIntervals(old.Intervals(), new.Intervals()) {
			log.Warn("enabled platforms or poll intervals changed, restart to apply")
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error {
		if err := holder.Watch(gctx); err != nil {
			log.Errorw("config file will not be reloaded", "error", err)
		}
		return nil
	})
	if cfg.Webserver.Enabled {
		server := &api.Server{
			Registry:  c.registry,
			Submitter: c.orchestrator,
			Trigger:   sched,
			History:   c.history,
			Config:    holder.Get,
			Resolve:   api.DefaultResolver(&http.Client{Timeout: cfg.ProbeTimeout()}),
		}
		addr := net.JoinHostPort(cfg.Webserver.Host, strconv.Itoa(cfg.Webserver.Port))
		g.Go(func() error { return api.ListenAndServe(gctx, addr, server.Handler()) })
	}

	err = g.Wait()
	log.Info("shutting down")
	cfg = holder.Get()
	c.shutdown(cfg.ShutdownPolicy(), cfg.ShutdownGrace())
	return err
}

func sameIntervals(a, b map[shiodome.Platform]time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for family, interval := range a {
		if other, ok := b[family]; !ok || other != interval {
			return false
		}
	}
	return true
}
