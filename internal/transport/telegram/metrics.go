package telegram

import "github.com/prometheus/client_golang/prometheus"

var (
	inbound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_updates_total",
			Help: "Inbound updates by kind.",
		},
		[]string{"kind"},
	)

	// sends counts reminder deliveries ("delivered" or "failed").
	sends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_reminder_sends_total",
			Help: "Reminder deliveries by result.",
		},
		[]string{"result"},
	)

	confirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_confirmations_total",
			Help: "Done button presses by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(inbound, sends, confirmations)
}
