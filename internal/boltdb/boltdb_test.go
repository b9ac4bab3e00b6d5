package boltdb

import (
	"path/filepath"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanbriolat/shiodome"
	"github.com/alanbriolat/shiodome/internal/session"
)

func snapshot(identity, runID string, admitted time.Time, state session.JobState) *session.JobSnapshot {
	return &session.JobSnapshot{
		Identity:   identity,
		RunID:      runID,
		Platform:   shiodome.PlatformTwitch,
		Channel:    identity,
		State:      state,
		AdmittedAt: admitted,
	}
}

func TestDatabase(t *testing.T) {
	assert := assert_.New(t)
	path := filepath.Join(t.TempDir(), "history.db")

	db, err := New(path)
	require.NoError(t, err)

	jobs, err := db.ListJobs()
	assert.Nil(err)
	assert.Empty(jobs)

	now := time.Now().UTC()
	// Written out of order, listed by admission time
	assert.Nil(db.WriteJob(snapshot("bob", "run-2", now, session.JobStateFailed)))
	assert.Nil(db.WriteJob(snapshot("alice", "run-1", now.Add(-time.Hour), session.JobStateSucceeded)))
	// Rewriting the same run replaces it
	assert.Nil(db.WriteJob(snapshot("bob", "run-2", now, session.JobStateFailed)))

	jobs, err = db.ListJobs()
	assert.Nil(err)
	if assert.Len(jobs, 2) {
		assert.Equal("alice", jobs[0].Identity)
		assert.Equal(session.JobStateSucceeded, jobs[0].State)
		assert.Equal("bob", jobs[1].Identity)
	}
	require.NoError(t, db.Close())

	// Reopening keeps the records
	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()
	jobs, err = db.ListJobs()
	assert.Nil(err)
	assert.Len(jobs, 2)
}

func TestNew_BadPath(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "history.db"))
	assert_.Error(t, err)
}
