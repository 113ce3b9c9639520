package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/shaunagostinho/mechanic-dash/internal/gauge"
)

var (
	// Link metrics
	ConnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mechanicdash_link_connect_attempts_total",
		Help: "Transport open attempts.",
	})

	OpenFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mechanicdash_link_open_failures_total",
		Help: "Transport opens that failed and were retried after backoff.",
	})

	Episodes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mechanicdash_link_episodes_total",
		Help: "Connected episodes started.",
	})

	ReadErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mechanicdash_link_read_errors_total",
		Help: "Episodes ended by a read failure.",
	})

	LinkPhase = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mechanicdash_link_phase",
		Help: "Current link phase (0 idle, 1 connecting, 2 connected, 3 disconnected, 4 error, 5 stopped).",
	})

	// Record metrics
	RecordsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mechanicdash_records_accepted_total",
		Help: "Wire records parsed and applied to the channels.",
	})

	RecordsMalformed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mechanicdash_records_malformed_total",
		Help: "Wire records dropped as malformed.",
	})

	// Animation metrics
	AnimationTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mechanicdash_animation_ticks_total",
		Help: "Animation ticks executed.",
	})

	// Fan-out metrics
	PublishDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mechanicdash_publish_dropped_total",
		Help: "Messages dropped because the publish buffer was full.",
	})
)

// NewRegistry returns a registry holding the process metrics plus live
// per-channel gauges read from cluster on every scrape.
func NewRegistry(cluster *gauge.Cluster) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		ConnectAttempts,
		OpenFailures,
		Episodes,
		ReadErrors,
		LinkPhase,
		RecordsAccepted,
		RecordsMalformed,
		AnimationTicks,
		PublishDropped,
		collectors.NewGoCollector(),
	)
	if cluster != nil {
		reg.MustRegister(NewClusterCollector(cluster))
	}
	return reg
}
