package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	assert_ "github.com/stretchr/testify/assert"
)

func TestRecordPoll(t *testing.T) {
	assert := assert_.New(t)
	before := testutil.ToFloat64(PollsTotal.WithLabelValues("twitch", OutcomeSkipped))
	RecordPoll("twitch", OutcomeSkipped)
	RecordPoll("twitch", OutcomeSkipped)
	assert.Equal(before+2, testutil.ToFloat64(PollsTotal.WithLabelValues("twitch", OutcomeSkipped)))
}

func TestSetJobsInFlight(t *testing.T) {
	SetJobsInFlight(3)
	assert_.Equal(t, 3.0, testutil.ToFloat64(JobsInFlight))
	SetJobsInFlight(0)
	assert_.Equal(t, 0.0, testutil.ToFloat64(JobsInFlight))
}
