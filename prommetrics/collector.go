// Package prommetrics exports pagestore metrics to Prometheus.
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/pagestore"
)

var _ pagestore.MetricsCollector = (*Collector)(nil)

// Collector implements pagestore.MetricsCollector with Prometheus metrics.
type Collector struct {
	opLatency   *prometheus.HistogramVec
	ops         *prometheus.CounterVec
	checkpoints *prometheus.CounterVec
	recovered   *prometheus.CounterVec
	walBytes    prometheus.Gauge
}

// NewCollector creates the metrics under namespace and registers them with reg.
func NewCollector(reg prometheus.Registerer, namespace string) (*Collector, error) {
	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of page store operations.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
		}, []string{"op"}),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Page store operations by result.",
		}, []string{"op", "result"}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_steps_total",
			Help:      "Checkpoint steps by outcome.",
		}, []string{"outcome"}),
		recovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_records_total",
			Help:      "WAL records seen by crash recovery.",
		}, []string{"action"}),
		walBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wal_bytes",
			Help:      "Current size of the write-ahead log.",
		}),
	}

	for _, col := range []prometheus.Collector{c.opLatency, c.ops, c.checkpoints, c.recovered, c.walBytes} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (c *Collector) observe(op string, d time.Duration, err error) {
	c.opLatency.WithLabelValues(op).Observe(d.Seconds())
	c.ops.WithLabelValues(op, result(err)).Inc()
}

// RecordRead implements pagestore.MetricsCollector.
func (c *Collector) RecordRead(d time.Duration, err error) { c.observe("read", d, err) }

// RecordWrite implements pagestore.MetricsCollector.
func (c *Collector) RecordWrite(d time.Duration, err error) { c.observe("write", d, err) }

// RecordCommit implements pagestore.MetricsCollector.
func (c *Collector) RecordCommit(d time.Duration, err error) { c.observe("commit", d, err) }

// RecordRollback implements pagestore.MetricsCollector.
func (c *Collector) RecordRollback(err error) {
	c.ops.WithLabelValues("rollback", result(err)).Inc()
}

// RecordCheckpointStep implements pagestore.MetricsCollector.
func (c *Collector) RecordCheckpointStep(progressed bool, d time.Duration, err error) {
	c.opLatency.WithLabelValues("checkpoint_step").Observe(d.Seconds())
	switch {
	case err != nil:
		c.checkpoints.WithLabelValues("error").Inc()
	case progressed:
		c.checkpoints.WithLabelValues("progress").Inc()
	default:
		c.checkpoints.WithLabelValues("idle").Inc()
	}
}

// RecordRecovery implements pagestore.MetricsCollector.
func (c *Collector) RecordRecovery(replayed, discarded int, d time.Duration, err error) {
	c.observe("recovery", d, err)
	c.recovered.WithLabelValues("replayed").Add(float64(replayed))
	c.recovered.WithLabelValues("discarded").Add(float64(discarded))
}

// RecordWALSize implements pagestore.MetricsCollector.
func (c *Collector) RecordWALSize(bytes int64) {
	c.walBytes.Set(float64(bytes))
}
