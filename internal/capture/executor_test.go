//go:build linux

package capture

import (
	"bytes"
	"sync"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestExecExecutor_ExitCode(t *testing.T) {
	assert := assert_.New(t)
	stderr := &syncBuffer{}
	proc, err := ExecExecutor{}.Start(Command{
		Path:   "sh",
		Args:   []string{"-c", "echo to-stdout; echo to-stderr >&2; exit 3"},
		Dir:    t.TempDir(),
		Stderr: stderr,
	})
	require.NoError(t, err)
	code, err := proc.Wait()
	assert.Nil(err)
	assert.Equal(3, code)
	assert.Equal("to-stderr\n", stderr.String())

	// Waiting again returns the same result
	code, _ = proc.Wait()
	assert.Equal(3, code)
}

func TestExecExecutor_ArgumentsAreNotShellParsed(t *testing.T) {
	stderr := &syncBuffer{}
	proc, err := ExecExecutor{}.Start(Command{
		Path:   "sh",
		Args:   []string{"-c", `printf '%s' "$1" >&2`, "sh", "a title; with $(shell) chars"},
		Stderr: stderr,
	})
	require.NoError(t, err)
	code, _ := proc.Wait()
	assert_.Equal(t, 0, code)
	assert_.Equal(t, "a title; with $(shell) chars", stderr.String())
}

func TestExecExecutor_Terminate(t *testing.T) {
	assert := assert_.New(t)
	proc, err := ExecExecutor{}.Start(Command{Path: "sleep", Args: []string{"10"}})
	require.NoError(t, err)

	start := time.Now()
	assert.Nil(proc.Terminate(time.Second))
	assert.Less(time.Since(start), time.Second)
	code, err := proc.Wait()
	assert.Nil(err)
	assert.Equal(-1, code)
}

func TestExecExecutor_NotFound(t *testing.T) {
	_, err := ExecExecutor{}.Start(Command{Path: "/nonexistent/yt-dlp"})
	assert_.Error(t, err)
}
