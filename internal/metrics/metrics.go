// Package metrics provides Prometheus instrumentation for the anonchat
// client. It exposes counters for frame throughput and drops, the state
// machine's transitions, and a histogram for connect latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons used with FramesDropped.
const (
	ReasonTooLarge     = "too_large"     // outbound body over the frame limit
	ReasonNotConnected = "not_connected" // send with no open connection
	ReasonWriteFailed  = "write_failed"  // I/O error while writing
	ReasonNoSession    = "no_session"    // inbound text outside a session
)

var (
	// Connected is 1 while a transport connection is open, 0 otherwise.
	Connected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anonchat_connected",
		Help: "Whether a connection to the pairing server is open",
	})

	// FramesTotal counts frames written or decoded, labeled by direction
	// ("sent" or "received") and message kind.
	FramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anonchat_frames_total",
		Help: "Total number of frames sent or received",
	}, []string{"direction", "kind"})

	// FramesDropped counts frames that were silently discarded, labeled by
	// direction and reason.
	FramesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anonchat_frames_dropped_total",
		Help: "Total number of frames dropped without delivery",
	}, []string{"direction", "reason"})

	// DecodeErrors counts inbound frames that failed to decode.
	DecodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anonchat_decode_errors_total",
		Help: "Total number of inbound frames that failed to decode",
	})

	// Transitions counts state machine transitions by target state.
	Transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anonchat_state_transitions_total",
		Help: "Total number of connection state transitions",
	}, []string{"state"})

	// ConnectDuration records how long connect attempts take, successful or not.
	ConnectDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "anonchat_connect_duration_seconds",
		Help:    "Time from connect intent to connect result",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 4, 8},
	})
)

func init() {
	prometheus.MustRegister(
		Connected,
		FramesTotal,
		FramesDropped,
		DecodeErrors,
		Transitions,
		ConnectDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
