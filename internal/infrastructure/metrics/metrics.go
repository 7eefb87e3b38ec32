// Package metrics declares the Prometheus collectors shared across the backend.
//
// Collectors register with the default registry on import and are served by
// the API at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "airsense"

var (
	// BusMessages counts inbound bus messages by how many handlers matched.
	BusMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "messages_received_total",
		Help:      "Inbound bus messages, labelled matched or unmatched.",
	}, []string{"result"})

	// HandlerFailures counts handler invocations that returned an error or panicked.
	HandlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "handler_failures_total",
		Help:      "Handler invocations that failed, by filter and kind (error or panic).",
	}, []string{"filter", "kind"})

	// Publishes counts outbound publishes by outcome (sent, skipped, failed).
	Publishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "publishes_total",
		Help:      "Outbound publishes by outcome.",
	}, []string{"result"})

	// AuthDecisions counts bridge decisions by operation, identity class and result.
	AuthDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "decisions_total",
		Help:      "Bus auth bridge decisions.",
	}, []string{"op", "class", "decision"})

	// ReadingsDropped counts sensor messages discarded before evaluation, by reason.
	ReadingsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "readings_dropped_total",
		Help:      "Sensor readings dropped before curve evaluation.",
	}, []string{"reason"})

	// ReadingsAccepted counts readings stored and handed to the engine.
	ReadingsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "readings_accepted_total",
		Help:      "Sensor readings stored and evaluated.",
	})

	// Evaluations counts curve evaluations by outcome (actuated, no_curve, incomplete).
	Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fancurve",
		Name:      "evaluations_total",
		Help:      "Fan curve evaluations by outcome.",
	}, []string{"result"})

	// Notifications counts critical-value notifications by outcome.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "notifications_total",
		Help:      "Push notifications by outcome (sent, failed, rejected, skipped).",
	}, []string{"result"})

	// TimeSeriesWriteErrors counts batches the time-series store rejected.
	TimeSeriesWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "influxdb",
		Name:      "write_errors_total",
		Help:      "Failed time-series batch writes.",
	})
)

// IdentityCacheStats is a snapshot of the broker-hook identity cache.
type IdentityCacheStats struct {
	Sensors int
	Devices int
	Hits    uint64
	Misses  uint64
}

type identityCacheCollector struct {
	stats   func() IdentityCacheStats
	entries *prometheus.Desc
	lookups *prometheus.Desc
}

// RegisterIdentityCache exposes the identity cache size and hit rate,
// reading stats on every scrape.
func RegisterIdentityCache(reg prometheus.Registerer, stats func() IdentityCacheStats) error {
	return reg.Register(&identityCacheCollector{
		stats: stats,
		entries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "identity_cache", "entries"),
			"Cached identities by kind.",
			[]string{"kind"}, nil,
		),
		lookups: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "identity_cache", "lookups_total"),
			"Identity cache lookups by result (hit or miss).",
			[]string{"result"}, nil,
		),
	})
}

func (c *identityCacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.lookups
}

func (c *identityCacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Sensors), "sensor")
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Devices), "device")
	ch <- prometheus.MustNewConstMetric(c.lookups, prometheus.CounterValue, float64(s.Hits), "hit")
	ch <- prometheus.MustNewConstMetric(c.lookups, prometheus.CounterValue, float64(s.Misses), "miss")
}
