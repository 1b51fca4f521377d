package scheduler

import "github.com/prometheus/client_golang/prometheus"

var (
	// firings counts dispatched firings by result ("sent" or "send_error").
	firings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_firings_total",
			Help: "Total number of reminder firings by delivery result.",
		},
		[]string{"result"},
	)

	// dispatchLag records how long after its scheduled instant a firing started.
	dispatchLag = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reminder_dispatch_lag_seconds",
			Help:    "Delay between a reminder's scheduled time and its dispatch.",
			Buckets: []float64{.01, .1, .5, 1, 5, 30, 60, 300, 3600, 86400},
		},
	)

	overdueDispatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reminder_overdue_dispatches_total",
			Help: "Firings dispatched later than the late threshold (recovery backlog).",
		},
	)

	expirations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reminder_expirations_total",
			Help: "Reminders that expired after their last firing.",
		},
	)

	lateWakeups = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_late_wakeups_total",
			Help: "Scheduler wake-ups that landed later than the late threshold.",
		},
	)

	nextWake = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_next_wake_timestamp_seconds",
			Help: "Unix time the scheduler plans to wake up next.",
		},
	)
)

func init() {
	prometheus.MustRegister(firings, dispatchLag, overdueDispatches, expirations, lateWakeups, nextWake)
}
