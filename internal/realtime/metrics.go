package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_sessions_active",
		Help: "Number of open realtime sessions.",
	})

	groupsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_groups_active",
		Help: "Number of non-empty delivery groups.",
	})

	framesDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_frames_delivered_total",
			Help: "Frames accepted into a session queue, by group.",
		},
		[]string{"group"},
	)

	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_frames_dropped_total",
			Help: "Frames not delivered to a session, by reason.",
		},
		[]string{"reason"},
	)

	inboundMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_inbound_messages_total",
			Help: "Inbound control messages, by type and outcome.",
		},
		[]string{"type", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(sessionsActive, groupsActive, framesDelivered, framesDropped, inboundMessages)
}
