// Package boltdb is a bbolt-backed session.History.
package boltdb

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/alanbriolat/shiodome/internal/session"
)

var Buckets = struct {
	Metadata []byte
	Jobs     []byte
}{
	Metadata: []byte("__metadata__"),
	Jobs:     []byte("jobs"),
}

var MetadataKeys = struct {
	Version []byte
}{
	Version: []byte("version"),
}

const currentVersion = 1

type Database interface {
	Close() error

	session.History
}

type database struct {
	*bbolt.DB
}

// New opens (creating if necessary) the history database at path.
func New(path string) (_ Database, err error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history %q: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) (err error) {
		var metadata *bbolt.Bucket
		if metadata, err = tx.CreateBucketIfNotExists(Buckets.Metadata); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(Buckets.Jobs); err != nil {
			return err
		}

		var version int
		if versionBytes := metadata.Get(MetadataKeys.Version); versionBytes == nil {
			version = 0
		} else if err = json.Unmarshal(versionBytes, &version); err != nil {
			return err
		}
		if version > currentVersion {
			return fmt.Errorf("history database version %d is newer than supported version %d", version, currentVersion)
		}

		if versionBytes, err := json.Marshal(currentVersion); err != nil {
			return err
		} else if err = metadata.Put(MetadataKeys.Version, versionBytes); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &database{db}, nil
}

// ListJobs returns every recorded job, oldest first.
func (d database) ListJobs() (jobs []session.JobSnapshot, err error) {
	err = d.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(Buckets.Jobs)
		return bucket.ForEach(func(k, v []byte) error {
			var job session.JobSnapshot
			if err := json.Unmarshal(v, &job); err != nil {
				return fmt.Errorf("decode job %x: %w", k, err)
			}
			jobs = append(jobs, job)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// WriteJob records a job under a key that sorts by admission time, so the same run written twice is overwritten
// rather than duplicated.
func (d database) WriteJob(job *session.JobSnapshot) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(Buckets.Jobs).Put(jobKey(job), data)
	})
}

func jobKey(job *session.JobSnapshot) []byte {
	key := make([]byte, 8, 8+len(job.RunID))
	binary.BigEndian.PutUint64(key, uint64(job.AdmittedAt.UnixNano()))
	return append(key, job.RunID...)
}
