// Package metrics holds the Prometheus collectors for the daemon. Label values are bounded: platforms, outcomes and
// job states, never channel names or identities.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollsTotal counts family polls by outcome (completed/skipped).
	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiodome_polls_total",
		Help: "Total number of source family polls, by family and outcome.",
	}, []string{"family", "outcome"})

	ProbeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiodome_probe_errors_total",
		Help: "Total number of failed channel probes, by family.",
	}, []string{"family"})

	// CandidatesTotal counts candidates by what happened to them (filtered/duplicate/admitted).
	CandidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiodome_candidates_total",
		Help: "Total number of live candidates seen, by family and outcome.",
	}, []string{"family", "outcome"})

	JobsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiodome_jobs_finished_total",
		Help: "Total number of archive jobs that reached a terminal state, by state.",
	}, []string{"state"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiodome_notifications_total",
		Help: "Total number of webhook notifications attempted, by outcome (sent/rejected/error).",
	}, []string{"outcome"})

	ConfigReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiodome_config_reloads_total",
		Help: "Total number of configuration reloads, by outcome (applied/rejected/unchanged).",
	}, []string{"outcome"})

	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shiodome_jobs_in_flight",
		Help: "Current number of admitted archive jobs.",
	})
)

const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeFiltered  = "filtered"
	OutcomeDuplicate = "duplicate"
	OutcomeAdmitted  = "admitted"
	OutcomeSent      = "sent"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
	OutcomeApplied   = "applied"
	OutcomeUnchanged = "unchanged"
)

func RecordPoll(family, outcome string) {
	PollsTotal.WithLabelValues(family, outcome).Inc()
}

func RecordProbeError(family string) {
	ProbeErrorsTotal.WithLabelValues(family).Inc()
}

func RecordCandidate(family, outcome string) {
	CandidatesTotal.WithLabelValues(family, outcome).Inc()
}

func RecordJobFinished(state string) {
	JobsFinishedTotal.WithLabelValues(state).Inc()
}

func RecordNotification(outcome string) {
	NotificationsTotal.WithLabelValues(outcome).Inc()
}

func RecordConfigReload(outcome string) {
	ConfigReloadsTotal.WithLabelValues(outcome).Inc()
}

func SetJobsInFlight(n int) {
	JobsInFlight.Set(float64(n))
}
