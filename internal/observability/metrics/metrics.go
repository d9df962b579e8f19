// Package metrics exposes the Prometheus instruments for the marketplace
// core. Collection is best-effort; services treat the Metrics handle as
// optional.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

type Metrics struct {
	checkoutTotal   *prometheus.CounterVec
	debitTotal      *prometheus.CounterVec
	debitConflicts  prometheus.Counter
	jobRuns         *prometheus.CounterVec
	jobErrors       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	allowanceAlerts *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		checkoutTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cbbstore",
			Name:      "checkout_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		debitTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cbbstore",
			Name:      "pool_debit_total",
			Help:      "Pool debits by outcome.",
		}, []string{"outcome"}),
		debitConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "cbbstore",
			Name:      "pool_debit_conflicts_total",
			Help:      "Optimistic-concurrency retries during pool debits.",
		}),
		jobRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cbbstore",
			Name:      "scheduler_job_runs_total",
			Help:      "Scheduler job invocations.",
		}, []string{"job"}),
		jobErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cbbstore",
			Name:      "scheduler_job_errors_total",
			Help:      "Scheduler job failures.",
		}, []string{"job"}),
		jobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cbbstore",
			Name:      "scheduler_job_duration_seconds",
			Help:      "Scheduler job wall time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		allowanceAlerts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cbbstore",
			Name:      "allowance_alerts_total",
			Help:      "Threshold alerts raised by the accounting jobs.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) IncCheckout(outcome string) {
	if m == nil {
		return
	}
	m.checkoutTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncDebit(outcome string) {
	if m == nil {
		return
	}
	m.debitTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncDebitConflict() {
	if m == nil {
		return
	}
	m.debitConflicts.Inc()
}

func (m *Metrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *Metrics) IncJobError(job string) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job).Inc()
}

func (m *Metrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *Metrics) IncAllowanceAlert(kind string) {
	if m == nil {
		return
	}
	m.allowanceAlerts.WithLabelValues(kind).Inc()
}

// Module provides the shared metrics handle.
var Module = fx.Module("observability.metrics",
	fx.Provide(New),
)
