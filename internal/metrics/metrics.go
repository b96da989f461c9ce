package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTP
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "smssync_http_requests_total", Help: "Count of HTTP requests."},
		[]string{"route", "method", "code"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smssync_http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms..~10s
		},
		[]string{"route", "method"},
	)

	// Protocol
	Received = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "smssync_received_total", Help: "Inbound SMS received from devices."},
		[]string{"result"}, // created | duplicate | error
	)
	EnvelopesOffered = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "smssync_envelopes_offered_total", Help: "Per-recipient envelopes handed to devices."},
	)
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "smssync_state_transitions_total", Help: "Message state transitions."},
		[]string{"state"}, // queued | delivered
	)
	DroppedUUIDs = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "smssync_dropped_uuids_total", Help: "Malformed correlation ids sent by devices."},
		[]string{"task"}, // sent | result
	)

	// Queue
	Enqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "smssync_jobs_enqueued_total", Help: "Jobs published to the job queue."},
		[]string{"queue", "result"}, // ok | error
	)
	Processed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "smssync_jobs_processed_total", Help: "Outbound jobs persisted by workers."},
		[]string{"result"}, // ok | error
	)
)

// MustRegister registers our collectors on the default registry, which
// already carries the Go and process collectors. Call it once per process.
func MustRegister() {
	prometheus.MustRegister(
		HTTPRequests, HTTPDuration,
		Received, EnvelopesOffered, Transitions, DroppedUUIDs,
		Enqueued, Processed,
	)
}
