package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kal997/graph-notification-relay/internal/intake"
)

const metricsNamespace = "graph_relay"

// Notification outcomes
const (
	OutcomeAccepted  = "accepted"
	OutcomeRejected  = "rejected"
	OutcomeMalformed = "malformed"
	OutcomeDropped   = "dropped"
)

// Collector is a prometheus.Collector for the relay. It records intake
// batch results and dispatch sink outcomes.
type Collector struct {
	notifications *prometheus.CounterVec
	batches       prometheus.Counter
	invalidBodies prometheus.Counter
	deliveries    *prometheus.CounterVec
	queueDepth    prometheus.Gauge
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "notifications_total",
				Help:      "Change notifications received, by intake outcome.",
			}, []string{"outcome"},
		),
		batches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "batches_total",
				Help:      "Notification deliveries received.",
			},
		),
		invalidBodies: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "invalid_bodies_total",
				Help:      "Deliveries whose body could not be decoded.",
			},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sink_deliveries_total",
				Help:      "Sink invocations, by sink and result.",
			}, []string{"sink", "result"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "queue_depth",
				Help:      "Notifications waiting in the dispatch queue.",
			},
		),
	}
}

// ObserveBatch is part of the intake.Recorder interface.
func (c *Collector) ObserveBatch(r intake.BatchResult) {
	c.batches.Inc()
	if r.InvalidBody {
		c.invalidBodies.Inc()
	}
	c.notifications.WithLabelValues(OutcomeAccepted).Add(float64(r.Accepted))
	c.notifications.WithLabelValues(OutcomeRejected).Add(float64(r.Rejected))
	c.notifications.WithLabelValues(OutcomeMalformed).Add(float64(r.Malformed))
	c.notifications.WithLabelValues(OutcomeDropped).Add(float64(r.Dropped))
}

// ObserveSink is part of the dispatch.Observer interface.
func (c *Collector) ObserveSink(sink string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.deliveries.WithLabelValues(sink, result).Inc()
}

// ObserveQueueDepth is part of the dispatch.Observer interface.
func (c *Collector) ObserveQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.notifications.Describe(ch)
	c.batches.Describe(ch)
	c.invalidBodies.Describe(ch)
	c.deliveries.Describe(ch)
	c.queueDepth.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.notifications.Collect(ch)
	c.batches.Collect(ch)
	c.invalidBodies.Collect(ch)
	c.deliveries.Collect(ch)
	c.queueDepth.Collect(ch)
}
