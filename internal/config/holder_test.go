package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func writeConfig(t *testing.T, path, content string) {
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestHolder_Reload(t *testing.T) {
	assert := assert_.New(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, path, exampleTOML)
	h, err := LoadHolder(path)
	require.NoError(t, err)
	first := h.Get()

	var calls int
	h.OnReload(func(old, new *Config) {
		calls++
		assert.Same(first, old)
		assert.True(new.Webserver.Enabled)
	})

	// Unchanged file: no swap
	assert.Nil(h.Reload())
	assert.Same(first, h.Get())
	assert.Equal(0, calls)

	writeConfig(t, path, exampleTOML+"\n[webserver]\nenabled = true\n")
	assert.Nil(h.Reload())
	second := h.Get()
	assert.NotSame(first, second)
	assert.True(second.Webserver.Enabled)
	// The previous config was not modified
	assert.False(first.Webserver.Enabled)

	// Invalid config keeps the current one
	writeConfig(t, path, "[archive]\nchecker = -5\n")
	assert.Error(h.Reload())
	assert.Same(second, h.Get())
	assert.Equal(1, calls)
}

func TestHolder_ReloadListener(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, path, exampleTOML)
	h, err := LoadHolder(path)
	require.NoError(t, err)
	var got *Config
	h.OnReload(func(old, new *Config) { got = new })

	writeConfig(t, path, "[archive]\nchecker = 5\n")
	require.NoError(t, h.Reload())
	assert_.Same(t, h.Get(), got)
	assert_.Equal(t, 5, got.Archive.Checker)
}

func TestHolder_Watch(t *testing.T) {
	defer goleak.VerifyNone(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "archive:\n  checker: 1\n")
	h, err := LoadHolder(path)
	require.NoError(t, err)

	var mu sync.Mutex
	reloaded := make(chan struct{})
	h.OnReload(func(old, new *Config) {
		mu.Lock()
		defer mu.Unlock()
		if new.Archive.Checker == 3 {
			close(reloaded)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- h.Watch(ctx) }()

	// Keep rewriting until the watcher is definitely running
	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(2 * ReloadDebounce)
	defer tick.Stop()
	writeConfig(t, path, "archive:\n  checker: 3\n")
loop:
	for {
		select {
		case <-reloaded:
			break loop
		case <-tick.C:
			writeConfig(t, path, "archive:\n  checker: 3\n")
		case <-deadline:
			require.FailNow(t, "config was not reloaded")
		}
	}
	assert_.Equal(t, 3, h.Get().Archive.Checker)

	cancel()
	assert_.Nil(t, <-done)
}
