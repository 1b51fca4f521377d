package store

import "github.com/prometheus/client_golang/prometheus"

var (
	// saveTotal counts completed saves by result ("ok" or "error").
	saveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_store_saves_total",
			Help: "Total number of reminder store saves by result.",
		},
		[]string{"result"},
	)

	// saveRetries counts individual failed write attempts that were retried.
	saveRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reminder_store_save_retries_total",
			Help: "Total number of retried reminder store writes.",
		},
	)

	// saveDuration records how long a save took including retries.
	saveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reminder_store_save_duration_seconds",
			Help:    "Duration of reminder store saves in seconds, retries included.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)
)

func init() {
	prometheus.MustRegister(saveTotal, saveRetries, saveDuration)
}
