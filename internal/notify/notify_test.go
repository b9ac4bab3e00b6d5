package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanbriolat/shiodome"
	"github.com/alanbriolat/shiodome/internal/pubsub"
	"github.com/alanbriolat/shiodome/internal/session"
)

type recordingSink struct {
	mu   sync.Mutex
	seen []Notification
	err  error
}

func (s *recordingSink) Notify(ctx context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, n)
	return s.err
}

func testJob() *session.Job {
	return session.NewJob(
		shiodome.ChannelSource{Platform: shiodome.PlatformYouTube, ID: "UC123", Name: "alice"},
		shiodome.LiveCandidate{
			Identity:       "dQw4w9WgXcQ",
			Title:          "【LIVE】karaoke",
			URL:            "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			ThumbnailURL:   "https://img.youtube.com/vi/dQw4w9WgXcQ/0.jpg",
			AuthorImageURL: "https://yt3.example/alice.jpg",
		},
	)
}

func TestStatus_String(t *testing.T) {
	assert := assert_.New(t)
	assert.Equal("Recording", StatusStarted.String())
	assert.Equal("Done", StatusSucceeded.String())
	assert.Equal("Error", StatusFailed.String())
}

func TestFromEvent(t *testing.T) {
	assert := assert_.New(t)
	job := testJob()

	n, ok := FromEvent(session.NewJobStarted(job))
	assert.True(ok)
	assert.Equal(Notification{
		Subject:        "alice",
		Title:          "【LIVE】karaoke",
		URL:            "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		ThumbnailURL:   "https://img.youtube.com/vi/dQw4w9WgXcQ/0.jpg",
		AuthorImageURL: "https://yt3.example/alice.jpg",
		Status:         StatusStarted,
	}, n)

	n, _ = FromEvent(session.NewJobSucceeded(job))
	assert.Equal(StatusSucceeded, n.Status)
	n, _ = FromEvent(session.NewJobFailed(job, nil))
	assert.Equal(StatusFailed, n.Status)
}

func TestRun_InOrderAndSurvivesErrors(t *testing.T) {
	assert := assert_.New(t)
	pub := pubsub.NewPublisher[session.Event]()
	sub, err := pub.Subscribe()
	require.NoError(t, err)
	sink := &recordingSink{err: errors.New("webhook down")}
	done := make(chan struct{})
	go func() {
		Run(context.Background(), sub, sink)
		close(done)
	}()

	job := testJob()
	pub.Send(session.NewJobStarted(job))
	pub.Send(session.NewJobFailed(job, nil))
	pub.Close()
	<-done

	if assert.Len(sink.seen, 2) {
		assert.Equal(StatusStarted, sink.seen[0].Status)
		assert.Equal(StatusFailed, sink.seen[1].Status)
	}
}
