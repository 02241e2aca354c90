package gateway

import "github.com/prometheus/client_golang/prometheus"

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "gateway_build_info",
			Help:        "Build information for the gateway",
			ConstLabels: prometheus.Labels{"component": "gateway"},
		},
		[]string{"date", "sha", "version"},
	)

	sessionsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_sessions_connected",
			Help: "Number of currently connected sessions",
		},
	)

	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_frames_received_total",
			Help: "Total frames received, by op",
		},
		[]string{"op"},
	)

	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_calls_total",
			Help: "Total call frames handled, by outcome",
		},
		[]string{"outcome"},
	)

	eventsPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_events_published_total",
			Help: "Total events fanned out to sessions",
		},
	)

	eventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_events_dropped_total",
			Help: "Total events skipped because a session transport was not open",
		},
	)
)

// RegisterMetrics registers the gateway collectors.
func RegisterMetrics(r prometheus.Registerer) {
	r.MustRegister(buildInfo, sessionsConnected, framesReceived, callsTotal, eventsPublished, eventsDropped)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}
