// internal/metrics/collector.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	switchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenlight_switches_total",
			Help: "Total number of switch operations by terminal state",
		},
		[]string{"team", "result"},
	)

	switchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "greenlight_switch_duration_seconds",
			Help:    "End to end switch operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"team"},
	)

	rollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenlight_rollbacks_total",
			Help: "Total number of rollbacks by outcome",
		},
		[]string{"team", "outcome"},
	)

	healthChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenlight_health_checks_total",
			Help: "Total number of health probes by verdict",
		},
		[]string{"team", "environment", "status"},
	)

	lockContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenlight_lock_contention_total",
			Help: "Acquire attempts rejected because the team lock was held",
		},
		[]string{"team"},
	)
)

// Collector records orchestrator metrics.
type Collector struct {
	startTime time.Time
}

// NewCollector creates a metrics collector.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// RecordSwitch records a finished switch operation.
func (c *Collector) RecordSwitch(team, result string, duration time.Duration) {
	switchesTotal.WithLabelValues(team, result).Inc()
	switchDuration.WithLabelValues(team).Observe(duration.Seconds())
}

// RecordRollback records a rollback outcome.
func (c *Collector) RecordRollback(team, outcome string) {
	rollbacksTotal.WithLabelValues(team, outcome).Inc()
}

// RecordHealthCheck records a health probe verdict.
func (c *Collector) RecordHealthCheck(team, environment, status string) {
	healthChecksTotal.WithLabelValues(team, environment, status).Inc()
}

// RecordLockContention records a lock acquisition rejection.
func (c *Collector) RecordLockContention(team string) {
	lockContention.WithLabelValues(team).Inc()
}

// Uptime reports time since the collector was created.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}
