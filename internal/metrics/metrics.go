// Package metrics exposes poller activity to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "searchsync"

// Tick results.
const (
	ResultOK      = "ok"
	ResultEmpty   = "empty"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Skip reasons.
const (
	ReasonUnknownEvent = "unknown_event"
	ReasonUnmapped     = "unmapped"
)

// Collector is a prometheus.Collector for poller metrics. A nil *Collector
// is valid and records nothing.
type Collector struct {
	ticks         *prometheus.CounterVec
	events        *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	lastBatchSize prometheus.Gauge
	tickDuration  prometheus.Histogram
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_total",
				Help:      "Poller ticks by result.",
			}, []string{"result"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Capture events dispatched, by event type.",
			}, []string{"event_type"},
		),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "skipped_total",
				Help:      "Capture rows skipped, by reason.",
			}, []string{"reason"},
		),
		lastBatchSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_batch_size",
				Help:      "Capture rows taken by the most recent successful tick.",
			},
		),
		tickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tick_duration_seconds",
				Help:      "Time spent in one poller tick.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.ticks.Describe(ch)
	c.events.Describe(ch)
	c.skipped.Describe(ch)
	c.lastBatchSize.Describe(ch)
	c.tickDuration.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.ticks.Collect(ch)
	c.events.Collect(ch)
	c.skipped.Collect(ch)
	c.lastBatchSize.Collect(ch)
	c.tickDuration.Collect(ch)
}

// Tick records one tick.
func (c *Collector) Tick(result string, d time.Duration) {
	if c == nil {
		return
	}
	c.ticks.WithLabelValues(result).Inc()
	if result != ResultSkipped {
		c.tickDuration.Observe(d.Seconds())
	}
}

// Events adds n dispatched events of eventType.
func (c *Collector) Events(eventType string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.events.WithLabelValues(eventType).Add(float64(n))
}

// Skipped adds n skipped rows for reason.
func (c *Collector) Skipped(reason string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.skipped.WithLabelValues(reason).Add(float64(n))
}

// BatchSize sets the size of the last committed batch.
func (c *Collector) BatchSize(n int) {
	if c == nil {
		return
	}
	c.lastBatchSize.Set(float64(n))
}
