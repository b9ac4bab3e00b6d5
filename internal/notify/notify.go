// Package notify turns job events into outbound notifications.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/alanbriolat/shiodome/internal/pubsub"
	"github.com/alanbriolat/shiodome/internal/session"
)

type Status int

const (
	StatusStarted Status = iota + 1
	StatusSucceeded
	StatusFailed
)

// String is the word shown to humans for the status.
func (s Status) String() string {
	switch s {
	case StatusStarted:
		return "Recording"
	case StatusSucceeded:
		return "Done"
	case StatusFailed:
		return "Error"
	default:
		return "Unknown"
	}
}

type Notification struct {
	// Subject is who went live, usually the channel name.
	Subject        string
	Title          string
	URL            string
	ThumbnailURL   string
	AuthorImageURL string
	Status         Status
}

// A Sink delivers notifications. Delivery is best-effort: errors are for logging only and are never retried.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// FromEvent builds the notification for a job event.
func FromEvent(e session.Event) (Notification, bool) {
	var status Status
	switch e.(type) {
	case session.JobStarted:
		status = StatusStarted
	case session.JobSucceeded:
		status = StatusSucceeded
	case session.JobFailed:
		status = StatusFailed
	default:
		return Notification{}, false
	}
	job := e.Job()
	return Notification{
		Subject:        job.Source.Name,
		Title:          job.Candidate.Title,
		URL:            job.Candidate.URL,
		ThumbnailURL:   job.Candidate.ThumbnailURL,
		AuthorImageURL: job.Candidate.AuthorImageURL,
		Status:         status,
	}, true
}

// Run delivers a notification for every job event, in order, until events is closed. A failed delivery is logged and
// the next event is handled as normal.
func Run(ctx context.Context, events pubsub.Receiver[session.Event], sink Sink) {
	log := zap.S().Named("notify")
	for event := range events.Receive() {
		n, ok := FromEvent(event)
		if !ok {
			continue
		}
		if err := sink.Notify(ctx, n); err != nil {
			log.Warnw("notification failed", "identity", event.Job().Identity, "status", n.Status.String(), "error", err)
		}
	}
}
