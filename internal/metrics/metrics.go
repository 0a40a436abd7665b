// Package metrics exposes pipeline counters and gauges in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mishnit/pubsub/internal/decay"
	"github.com/mishnit/pubsub/internal/events"
)

const namespace = "pubsub"

// Metrics owns a private registry so that several runs in one process (as in
// tests) never collide on registration.
type Metrics struct {
	reg *prometheus.Registry

	events        *prometheus.CounterVec
	journalCommit prometheus.Histogram
	journalRead   prometheus.Histogram
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Fulfillment events by kind, tier and reason.",
		}, []string{"kind", "tier", "reason"}),
		journalCommit: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "commit_seconds",
			Help:      "Journal batch commit latency.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}),
		journalRead: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "read_seconds",
			Help:      "Journal point read latency.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
	}
	m.reg.MustRegister(
		m.events,
		m.journalCommit,
		m.journalRead,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Report implements events.Reporter.
func (m *Metrics) Report(e events.Event) {
	m.events.WithLabelValues(string(e.Kind), e.Tier, e.Reason).Inc()
}

// ObserveCommit implements pebblestore.Observer.
func (m *Metrics) ObserveCommit(elapsed time.Duration, _ int) {
	m.journalCommit.Observe(elapsed.Seconds())
}

// ObserveRead implements pebblestore.Observer.
func (m *Metrics) ObserveRead(elapsed time.Duration, _ int) {
	m.journalRead.Observe(elapsed.Seconds())
}

// Occupancy reports the number of orders held on a tier.
type Occupancy interface {
	Occupied(decay.Tier) int
}

// WatchShelf registers one gauge per tier reading live occupancy from s.
func (m *Metrics) WatchShelf(s Occupancy, capacity func(decay.Tier) int) {
	for _, t := range decay.Tiers {
		t := t
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "shelf",
			Name:        "occupied",
			Help:        "Orders currently held per tier.",
			ConstLabels: prometheus.Labels{"tier": string(t)},
		}, func() float64 { return float64(s.Occupied(t)) }))
		c := capacity(t)
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "shelf",
			Name:        "capacity",
			Help:        "Configured slots per tier.",
			ConstLabels: prometheus.Labels{"tier": string(t)},
		}, func() float64 { return float64(c) }))
	}
}

// Lag reports per-topic subscriber positions.
type Lag interface {
	Len(topic string) int
}

// WatchTopic registers a gauge for the length of topic.
func (m *Metrics) WatchTopic(b Lag, topic string) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "broker",
		Name:        "topic_length",
		Help:        "Records appended to the topic.",
		ConstLabels: prometheus.Labels{"topic": topic},
	}, func() float64 { return float64(b.Len(topic)) }))
}
