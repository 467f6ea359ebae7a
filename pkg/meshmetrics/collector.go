// Package meshmetrics is the concrete Prometheus-backed implementation of
// the server's metrics sink, plus adapters that let meshconn and
// meshdispatch report into it without either package importing Prometheus
// directly.
package meshmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector aggregates the server's operational metrics behind a
// dedicated prometheus.Registry, so a process can run more than one
// Collector (e.g. in tests) without colliding on the default registry.
type Collector struct {
	registry *prometheus.Registry

	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter

	handshakesTotal   prometheus.Counter
	handshakeFailures *prometheus.CounterVec
	handshakeLatency  prometheus.Histogram

	messagesTotal    prometheus.Counter
	messageRejects   *prometheus.CounterVec
	messageLatency   prometheus.Histogram
	broadcastFanout  prometheus.Histogram
	slowConsumers    prometheus.Counter
	rateLimitedTotal *prometheus.CounterVec
}

// New constructs a Collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "meshd",
			Name:      "connections_active",
			Help:      "Number of currently open connections.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshd",
			Name:      "connections_total",
			Help:      "Total number of connections accepted.",
		}),

		handshakesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshd",
			Name:      "handshakes_total",
			Help:      "Total number of handshakes completed successfully.",
		}),
		handshakeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshd",
			Name:      "handshake_failures_total",
			Help:      "Total number of failed handshakes, by reason.",
		}, []string{"reason"}),
		handshakeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "meshd",
			Name:      "handshake_duration_seconds",
			Help:      "Handshake processing latency.",
			Buckets:   prometheus.DefBuckets,
		}),

		messagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshd",
			Name:      "messages_total",
			Help:      "Total number of encrypted messages accepted and persisted.",
		}),
		messageRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshd",
			Name:      "message_rejects_total",
			Help:      "Total number of rejected messages, by reason.",
		}, []string{"reason"}),
		messageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "meshd",
			Name:      "message_process_duration_seconds",
			Help:      "End-to-end latency of processing one ENCRYPTED_MESSAGE frame.",
			Buckets:   prometheus.DefBuckets,
		}),
		broadcastFanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "meshd",
			Name:      "broadcast_fanout_size",
			Help:      "Number of recipients a single broadcast was delivered to.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}),
		slowConsumers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshd",
			Name:      "slow_consumers_total",
			Help:      "Total number of connections closed for a full outbound queue.",
		}),
		rateLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshd",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter, by key prefix.",
		}, []string{"prefix"}),
	}

	c.registry.MustRegister(
		c.connectionsActive,
		c.connectionsTotal,
		c.handshakesTotal,
		c.handshakeFailures,
		c.handshakeLatency,
		c.messagesTotal,
		c.messageRejects,
		c.messageLatency,
		c.broadcastFanout,
		c.slowConsumers,
		c.rateLimitedTotal,
	)
	return c
}

// Registry exposes the underlying registry so the HTTP layer can serve it.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) ConnectionOpened() {
	c.connectionsActive.Inc()
	c.connectionsTotal.Inc()
}

func (c *Collector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

func (c *Collector) HandshakeCompleted() {
	c.handshakesTotal.Inc()
}

func (c *Collector) HandshakeLatency(d time.Duration) {
	c.handshakeLatency.Observe(d.Seconds())
}

func (c *Collector) HandshakeFailed(reason string) {
	c.handshakeFailures.WithLabelValues(reason).Inc()
}

func (c *Collector) MessageProcessed(d time.Duration) {
	c.messagesTotal.Inc()
	c.messageLatency.Observe(d.Seconds())
}

func (c *Collector) MessageRejected(reason string) {
	c.messageRejects.WithLabelValues(reason).Inc()
}

func (c *Collector) BroadcastDelivered(recipients int) {
	c.broadcastFanout.Observe(float64(recipients))
}

func (c *Collector) SlowConsumer() {
	c.slowConsumers.Inc()
}

func (c *Collector) RateLimited(prefix string) {
	c.rateLimitedTotal.WithLabelValues(prefix).Inc()
}
