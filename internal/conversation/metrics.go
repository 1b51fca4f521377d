package conversation

import "github.com/prometheus/client_golang/prometheus"

var (
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conversation_active_sessions",
			Help: "Wizard sessions currently in progress.",
		},
	)

	commits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_commits_total",
			Help: "Reminder changes committed by the wizard, by operation.",
		},
		[]string{"op"}, // create|edit|delete
	)

	sessionEnds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_sessions_ended_total",
			Help: "Wizard sessions that ended, by reason.",
		},
		[]string{"reason"}, // committed|cancelled|timeout|aborted
	)

	validationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_validation_errors_total",
			Help: "Rejected wizard inputs, by field.",
		},
		[]string{"field"},
	)
)

func init() {
	prometheus.MustRegister(activeSessions, commits, sessionEnds, validationErrors)
}
