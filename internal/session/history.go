package session

import (
	"go.uber.org/zap"

	"github.com/alanbriolat/shiodome/internal/pubsub"
)

// History stores records of finished jobs for operators. It is write-mostly and is never used to decide admission.
type History interface {
	ListJobs() ([]JobSnapshot, error)
	WriteJob(*JobSnapshot) error
}

type NilHistory struct{}

func (NilHistory) ListJobs() ([]JobSnapshot, error) {
	return nil, nil
}

func (NilHistory) WriteJob(*JobSnapshot) error {
	return nil
}

// RecordHistory writes a snapshot of every job that reaches a terminal state, until events is closed.
func RecordHistory(events pubsub.Receiver[Event], history History) {
	log := zap.S().Named("history")
	for event := range events.Receive() {
		if !IsTerminal(event) {
			continue
		}
		snapshot := event.Job().Snapshot()
		if err := history.WriteJob(&snapshot); err != nil {
			log.Errorw("failed to record job", "identity", snapshot.Identity, "error", err)
		}
	}
}
