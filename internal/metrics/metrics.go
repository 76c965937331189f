package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overtime_settlements_total",
			Help: "Overtime segment settlements by outcome",
		},
		[]string{"outcome"},
	)

	TerminationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_terminations_total",
			Help: "Session terminations by trigger",
		},
		[]string{"trigger"},
	)

	LiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_sessions",
			Help: "Sessions currently in progress",
		},
	)
)

func Register() {
	prometheus.MustRegister(SettlementsTotal, TerminationsTotal, LiveSessions)
}
