package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the settlement engine. Indeterminate
// outcomes are counted separately from failures: they are the cases operators
// must reconcile, not losses.
type Metrics struct {
	SettlementsCompleted     prometheus.Counter
	SettlementsFailed        prometheus.Counter
	SettlementsIndeterminate prometheus.Counter
	SettlementsReconciled    prometheus.Counter
	SubmitDuration           prometheus.Histogram
}

// New creates and registers all settlement engine metrics.
func New() *Metrics {
	return &Metrics{
		SettlementsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lumenpay_settlements_completed_total",
			Help: "Total number of ledger-confirmed transfers",
		}),
		SettlementsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lumenpay_settlements_failed_total",
			Help: "Total number of definitively failed transfers",
		}),
		SettlementsIndeterminate: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lumenpay_settlements_indeterminate_total",
			Help: "Total number of submissions with no confirmation within the waiting period",
		}),
		SettlementsReconciled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lumenpay_settlements_reconciled_total",
			Help: "Total number of pending records resolved by reconciliation",
		}),
		SubmitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lumenpay_submit_duration_seconds",
			Help:    "Duration of ledger submissions including confirmation wait",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// ObserveSubmit records the duration of one ledger submission. Call with
// time.Now() captured just before the submit.
func (m *Metrics) ObserveSubmit(start time.Time) {
	m.SubmitDuration.Observe(time.Since(start).Seconds())
}
