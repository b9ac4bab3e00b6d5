package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/r3labs/diff/v3"
	"go.uber.org/zap"

	"github.com/alanbriolat/shiodome/internal/metrics"
)

// ReloadDebounce is how long the watcher waits after the last change to the file before reloading it.
const ReloadDebounce = 500 * time.Millisecond

// Holder owns the current Config. Readers call Get for a snapshot; a successful Reload swaps in a new Config
// atomically and never mutates the previous one.
type Holder struct {
	path string

	mu        sync.RWMutex
	current   *Config
	listeners []func(old, new *Config)
	log       *zap.SugaredLogger
}

func NewHolder(path string, initial *Config) *Holder {
	return &Holder{path: path, current: initial, log: zap.S().Named("config")}
}

// LoadHolder loads the config at path into a new Holder.
func LoadHolder(path string) (*Holder, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewHolder(path, c), nil
}

func (h *Holder) Path() string {
	return h.path
}

func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// OnReload registers f to be called after every successful reload that changed something.
func (h *Holder) OnReload(f func(old, new *Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, f)
}

// Reload loads and validates the config file again. If that fails the current config is kept and the error returned.
func (h *Holder) Reload() error {
	next, err := Load(h.path)
	if err != nil {
		metrics.RecordConfigReload(metrics.OutcomeRejected)
		h.log.Errorw("config reload rejected, keeping current config", "error", err)
		return err
	}

	h.mu.Lock()
	prev := h.current
	changes, err := diff.Diff(prev.Sanitized(), next.Sanitized())
	if err != nil {
		h.mu.Unlock()
		return fmt.Errorf("diff config: %w", err)
	}
	if len(changes) == 0 {
		h.mu.Unlock()
		metrics.RecordConfigReload(metrics.OutcomeUnchanged)
		h.log.Debug("config file changed, but config did not")
		return nil
	}
	h.current = next
	listeners := append([]func(old, new *Config){}, h.listeners...)
	h.mu.Unlock()

	metrics.RecordConfigReload(metrics.OutcomeApplied)
	h.log.Infow("config reloaded", "changes", len(changes))
	for _, change := range changes {
		h.log.Infof("%v: %#v -> %#v", change.Path, change.From, change.To)
	}
	for _, f := range listeners {
		f(prev, next)
	}
	return nil
}

// Watch reloads the config whenever its file changes, until ctx is done. The directory is watched rather than the
// file, so that editors which replace the file on save are handled.
func (h *Holder) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	h.log.Infow("watching config file", "path", h.path)

	target := filepath.Clean(h.path)
	var timer *time.Timer
	var pending <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)) {
				continue
			}
			h.log.Debugw("config file changed", "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(ReloadDebounce)
			} else {
				timer.Reset(ReloadDebounce)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			_ = h.Reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.log.Warnw("config watcher error", "error", err)
		}
	}
}
