package orchestrator

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/alanbriolat/shiodome"
	"github.com/alanbriolat/shiodome/internal/capture"
	"github.com/alanbriolat/shiodome/internal/notify"
	"github.com/alanbriolat/shiodome/internal/pubsub"
	"github.com/alanbriolat/shiodome/internal/session"
)

// exitProcess exits with whatever code is sent on its channel.
type exitProcess chan int

func (p exitProcess) Wait() (int, error) {
	return <-p, nil
}

func (p exitProcess) Terminate(time.Duration) error {
	p <- -1
	return nil
}

type scriptedExecutor struct {
	mu    sync.Mutex
	procs []exitProcess
}

func (e *scriptedExecutor) Start(capture.Command) (capture.Process, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := make(exitProcess, 1)
	e.procs = append(e.procs, p)
	return p, nil
}

func (e *scriptedExecutor) proc(i int) exitProcess {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.procs[i]
}

type channelSink chan notify.Notification

func (s channelSink) Notify(ctx context.Context, n notify.Notification) error {
	s <- n
	return nil
}

func nextNotification(t *testing.T, sink channelSink) notify.Notification {
	select {
	case n := <-sink:
		return n
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for notification")
		return notify.Notification{}
	}
}

// alice goes live; her capture exits 0; she is still live at the next tick, so a new capture starts.
func TestEndToEnd_Alice(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	assert := assert_.New(t)

	var admitOrder []session.RegistryEventKind
	var orderMu sync.Mutex
	registry := session.NewRegistry(func(e session.RegistryEvent) {
		orderMu.Lock()
		defer orderMu.Unlock()
		admitOrder = append(admitOrder, e.Kind)
	})
	events := pubsub.NewPublisher[session.Event]()
	defer events.Close()
	sub, err := events.Subscribe()
	require.NoError(t, err)
	sink := make(channelSink, 10)
	notifierDone := make(chan struct{})
	go func() {
		notify.Run(context.Background(), sub, sink)
		close(notifierDone)
	}()
	defer func() { <-notifierDone }()
	defer sub.Close()

	logDir := filepath.Join(t.TempDir(), "logs")
	executor := &scriptedExecutor{}
	runner := capture.NewRunner(func() capture.Settings {
		return capture.Settings{Profile: capture.Profile{ExecutablePath: "yt-dlp"}, LogDir: logDir}
	}, executor, registry, events)

	f := newFixture(shiodome.PlatformTwitch, twitchSource("alice", "."))
	f.registry = registry
	f.o.registry = registry
	f.o.launcher = runner
	f.probe.candidates["alice"] = []shiodome.LiveCandidate{live("alice", "LIVE now")}

	f.o.Poll(context.Background(), shiodome.PlatformTwitch)
	started := nextNotification(t, sink)
	assert.Equal(notify.StatusStarted, started.Status)
	assert.Equal("alice", started.Subject)
	job := registry.Get("alice")
	require.NotNil(t, job)
	logPath := job.LogPath()
	assert.FileExists(logPath)

	// Still live, still running: nothing new
	f.o.Poll(context.Background(), shiodome.PlatformTwitch)
	assert.Len(executor.procs, 1)

	executor.proc(0) <- 0
	assert.Equal(notify.StatusSucceeded, nextNotification(t, sink).Status)
	require.NoError(t, runner.Wait(context.Background()))
	assert.NoFileExists(logPath)
	assert.False(registry.Contains("alice"))
	assert.Equal(session.JobStateSucceeded, job.State())

	f.o.Poll(context.Background(), shiodome.PlatformTwitch)
	assert.Equal(notify.StatusStarted, nextNotification(t, sink).Status)
	assert.Len(executor.procs, 2)

	executor.proc(1) <- 2
	assert.Equal(notify.StatusFailed, nextNotification(t, sink).Status)
	require.NoError(t, runner.Wait(context.Background()))

	orderMu.Lock()
	defer orderMu.Unlock()
	assert.Equal([]session.RegistryEventKind{session.Admitted, session.Released, session.Admitted, session.Released}, admitOrder)
}
