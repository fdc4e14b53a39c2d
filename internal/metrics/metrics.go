// Package metrics defines the Prometheus collectors exported by clinicore.
// Collectors live on a private registry owned by a Metrics value; every
// recording method is safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clinicore"

// Metrics bundles the collectors and the registry they are registered on.
type Metrics struct {
	Registry *prometheus.Registry

	transactions   *prometheus.CounterVec
	persistSeconds prometheus.Histogram
	persistErrors  prometheus.Counter

	sales *prometheus.CounterVec

	auditEntries *prometheus.CounterVec
	lockouts     prometheus.Counter

	syncPushed   *prometheus.CounterVec
	syncFailed   *prometheus.CounterVec
	syncPulled   *prometheus.CounterVec
	syncPending  prometheus.Gauge
	syncStuck    prometheus.Gauge
	syncDuration prometheus.Histogram
	syncCycles   *prometheus.CounterVec
}

// New creates the collectors and registers them, plus the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "transactions_total",
			Help: "Store transactions by outcome.",
		}, []string{"result"}),
		persistSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "store", Name: "persist_duration_seconds",
			Help:    "Time spent serializing and saving the dataset snapshot.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		persistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "persist_errors_total",
			Help: "Snapshot saves that failed after an in-memory commit.",
		}),
		sales: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sales", Name: "transactions_total",
			Help: "Processed and voided sales.",
		}, []string{"operation"}),
		auditEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "audit", Name: "entries_total",
			Help: "Audit entries appended by action.",
		}, []string{"action"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "audit", Name: "lockouts_total",
			Help: "Accounts locked after repeated failed logins.",
		}),
		syncPushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "pushed_total",
			Help: "Change records pushed to the remote authority.",
		}, []string{"entity"}),
		syncFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "push_failures_total",
			Help: "Failed push attempts.",
		}, []string{"entity"}),
		syncPulled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "pulled_total",
			Help: "Remote rows processed during pull by outcome.",
		}, []string{"entity", "outcome"}),
		syncPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sync", Name: "pending_records",
			Help: "Change records not yet synced.",
		}),
		syncStuck: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sync", Name: "stuck_records",
			Help: "Pending change records that exhausted their retries.",
		}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "sync", Name: "cycle_duration_seconds",
			Help:    "Duration of push and pull cycles.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		syncCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "cycles_total",
			Help: "Sync cycles by result.",
		}, []string{"result"}),
	}
	m.Registry.MustRegister(
		m.transactions, m.persistSeconds, m.persistErrors,
		m.sales,
		m.auditEntries, m.lockouts,
		m.syncPushed, m.syncFailed, m.syncPulled, m.syncPending, m.syncStuck, m.syncDuration, m.syncCycles,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveTransaction counts a store transaction; err == nil means committed.
func (m *Metrics) ObserveTransaction(err error) {
	if m == nil {
		return
	}
	result := "committed"
	if err != nil {
		result = "rolled_back"
	}
	m.transactions.WithLabelValues(result).Inc()
}

// ObservePersist records a snapshot save.
func (m *Metrics) ObservePersist(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.persistSeconds.Observe(d.Seconds())
	if err != nil {
		m.persistErrors.Inc()
	}
}

// SaleProcessed counts a completed sale.
func (m *Metrics) SaleProcessed() {
	if m != nil {
		m.sales.WithLabelValues("processed").Inc()
	}
}

// SaleVoided counts a voided sale.
func (m *Metrics) SaleVoided() {
	if m != nil {
		m.sales.WithLabelValues("voided").Inc()
	}
}

// AuditEntry counts an appended audit entry.
func (m *Metrics) AuditEntry(action string) {
	if m != nil {
		m.auditEntries.WithLabelValues(action).Inc()
	}
}

// Lockout counts an account lock.
func (m *Metrics) Lockout() {
	if m != nil {
		m.lockouts.Inc()
	}
}

// Pushed counts a successfully pushed change record.
func (m *Metrics) Pushed(entity string) {
	if m != nil {
		m.syncPushed.WithLabelValues(entity).Inc()
	}
}

// PushFailed counts a failed push attempt.
func (m *Metrics) PushFailed(entity string) {
	if m != nil {
		m.syncFailed.WithLabelValues(entity).Inc()
	}
}

// Pulled counts a remote row handled during pull. outcome is inserted,
// overwritten, unchanged, skipped or deferred.
func (m *Metrics) Pulled(entity, outcome string) {
	if m != nil {
		m.syncPulled.WithLabelValues(entity, outcome).Inc()
	}
}

// SetBacklog publishes the pending and stuck change-record counts.
func (m *Metrics) SetBacklog(pending, stuck int) {
	if m == nil {
		return
	}
	m.syncPending.Set(float64(pending))
	m.syncStuck.Set(float64(stuck))
}

// ObserveSyncCycle records one push+pull cycle.
func (m *Metrics) ObserveSyncCycle(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.syncDuration.Observe(d.Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.syncCycles.WithLabelValues(result).Inc()
}
