// Package metrics holds the Prometheus collectors shared by the ledger
// engine, the auditor, the reconciliation matcher and the outbox dispatcher.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ledger"

// Metrics groups every collector the services record to.
type Metrics struct {
	operations      *prometheus.CounterVec
	operationTime   *prometheus.HistogramVec
	auditMismatches prometheus.Gauge
	auditRuns       *prometheus.CounterVec
	itemsMatched    *prometheus.CounterVec
	outboxPublished prometheus.Counter
	outboxFailed    prometheus.Counter
	outboxPending   prometheus.Gauge
	breakerState    prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Money movement operations by operation and outcome",
			},
			[]string{"operation", "status"},
		),
		operationTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Latency of money movement operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		auditMismatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_mismatches",
			Help:      "Accounts whose materialized balance differs from the journal at the last check",
		}),
		auditRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_checks_total",
				Help:      "Consistency checks by resulting health status",
			},
			[]string{"status"},
		),
		itemsMatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciliation_items_matched_total",
				Help: "Statement lines matched to transactions by method",
			},
			[]string{"method"},
		),
		outboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Outbox events delivered to the bus",
		}),
		outboxFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_failed_total",
			Help:      "Outbox delivery attempts that failed",
		}),
		outboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending",
			Help:      "Unpublished outbox events after the last dispatch",
		}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_breaker_state",
			Help:      "Publish circuit breaker state (0=closed, 1=half-open, 2=open)",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.operations, m.operationTime,
			m.auditMismatches, m.auditRuns,
			m.itemsMatched,
			m.outboxPublished, m.outboxFailed, m.outboxPending, m.breakerState,
		)
	}
	return m
}

// Discard returns collectors that are not registered anywhere.
func Discard() *Metrics {
	return New(nil)
}

// ObserveOperation records one engine operation.
func (m *Metrics) ObserveOperation(operation, status string, elapsed time.Duration) {
	m.operations.WithLabelValues(operation, status).Inc()
	m.operationTime.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveAudit records the outcome of a consistency check.
func (m *Metrics) ObserveAudit(status string, mismatches int) {
	m.auditRuns.WithLabelValues(status).Inc()
	m.auditMismatches.Set(float64(mismatches))
}

// ItemsMatched counts matched statement lines.
func (m *Metrics) ItemsMatched(method string, n int) {
	if n > 0 {
		m.itemsMatched.WithLabelValues(method).Add(float64(n))
	}
}

// OutboxPublished counts delivered events.
func (m *Metrics) OutboxPublished(n int) { m.outboxPublished.Add(float64(n)) }

// OutboxFailed counts failed deliveries.
func (m *Metrics) OutboxFailed(n int) { m.outboxFailed.Add(float64(n)) }

// OutboxPending sets the backlog gauge.
func (m *Metrics) OutboxPending(n int64) { m.outboxPending.Set(float64(n)) }

// BreakerState sets the circuit breaker gauge.
func (m *Metrics) BreakerState(state int) { m.breakerState.Set(float64(state)) }
