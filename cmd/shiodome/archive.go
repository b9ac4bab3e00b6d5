package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/alanbriolat/shiodome"
	"github.com/alanbriolat/shiodome/internal/capture"
	"github.com/alanbriolat/shiodome/internal/config"
	"github.com/alanbriolat/shiodome/internal/session"
	"github.com/alanbriolat/shiodome/probe"
)

func archiveOne(ctx context.Context, configPath string, rawURL string, outPath string) error {
	log := zap.S().Named("archive")
	holder, err := config.LoadHolder(configPath)
	if err != nil {
		return err
	}
	cfg := holder.Get()

	resolveCtx, cancel := context.WithTimeout(shiodome.WithLogger(ctx, log), cfg.ProbeTimeout())
	source, candidate, err := probe.Resolve(resolveCtx, &http.Client{Timeout: cfg.ProbeTimeout()}, rawURL, outPath)
	cancel()
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	log.Infow("archiving", "identity", candidate.Identity, "title", candidate.Title, "channel", source.Name)

	c, err := newComponents(holder)
	if err != nil {
		return err
	}
	if err := c.subscribe(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	job, err := c.orchestrator.Submit(ctx, source, candidate)
	if job == nil {
		c.shutdown(capture.ShutdownDetach, 0)
		return err
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(candidate.Title),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
wait:
	for {
		select {
		case <-job.Done():
			break wait
		case <-ctx.Done():
			// Interrupted: stop the capture rather than leaving it behind
			log.Info("interrupted, stopping capture")
			c.shutdown(capture.ShutdownTerminate, cfg.ShutdownGrace())
			_ = bar.Finish()
			return cli.Exit("interrupted", 130)
		case <-ticker.C:
			_ = bar.Add(1)
		}
	}
	_ = bar.Finish()
	c.shutdown(capture.ShutdownDetach, cfg.ShutdownGrace())

	snapshot := job.Snapshot()
	if snapshot.State != session.JobStateSucceeded {
		return cli.Exit(fmt.Sprintf("capture of %s failed: %s (log: %s)", snapshot.Identity, snapshot.Error, snapshot.LogPath), 1)
	}
	log.Infow("capture complete", "identity", snapshot.Identity)
	return nil
}
