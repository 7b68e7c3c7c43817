package services

import "github.com/prometheus/client_golang/prometheus"

var (
	notificationsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Notifications persisted and handed to fan-out, by type.",
		},
		[]string{"kind"},
	)

	dispatchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatch_failures_total",
			Help: "Dispatch attempts that failed, by stage.",
		},
		[]string{"stage"},
	)
)

func init() {
	prometheus.MustRegister(notificationsDispatched, dispatchFailures)
}
