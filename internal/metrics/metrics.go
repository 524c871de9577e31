// Package metrics exposes a Prometheus registry of mesh-node counters and
// histograms. The registry itself is the node's external interface here —
// no HTTP scrape endpoint is grown for it; callers embed it in whatever
// exporter they already run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry collects every counter and histogram this package defines,
// ready to be registered into a caller-supplied prometheus.Gatherer.
var Registry = prometheus.NewRegistry()

var (
	// FramesSent counts frames successfully handed to the radio adapter, by kind.
	FramesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dcmx_frames_sent_total",
		Help: "Number of mesh frames transmitted, by kind.",
	}, []string{"kind"})

	// FramesDropped counts frames rejected before or after decode, by reason.
	FramesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dcmx_frames_dropped_total",
		Help: "Number of mesh frames dropped, by reason (malformed, checksum, limited, oversized).",
	}, []string{"reason"})

	// RoutesInstalled counts route requests (reverse) and route replies
	// (forward) handed to the routing engine, by direction; frames the engine
	// then drops as duplicate, stale or unroutable are counted too.
	RoutesInstalled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dcmx_routes_installed_total",
		Help: "Number of route requests (reverse) and route replies (forward) processed, by direction.",
	}, []string{"direction"})

	// DiscoveryDuration observes the latency from Discover() call to resolution.
	DiscoveryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dcmx_discovery_duration_seconds",
		Help:    "Time from route discovery request to resolution (success or timeout).",
		Buckets: prometheus.DefBuckets,
	})

	// ProofsVerified counts proof verification outcomes, by kind and result.
	ProofsVerified = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dcmx_proofs_verified_total",
		Help: "Number of proof verifications performed, by kind and outcome (accepted, rejected).",
	}, []string{"kind", "outcome"})

	// QuorumOutcomes counts verifier approvals accepted by the quorum
	// coordinator, by the claim state that results (pending included).
	QuorumOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dcmx_quorum_outcomes_total",
		Help: "Number of verifier approvals recorded, by resulting claim state.",
	}, []string{"state"})

	// SessionsEstablished counts secure-messaging session handshakes.
	SessionsEstablished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dcmx_sessions_established_total",
		Help: "Number of secure-messaging sessions established.",
	})
)

func init() {
	Registry.MustRegister(
		FramesSent,
		FramesDropped,
		RoutesInstalled,
		DiscoveryDuration,
		ProofsVerified,
		QuorumOutcomes,
		SessionsEstablished,
	)
}
