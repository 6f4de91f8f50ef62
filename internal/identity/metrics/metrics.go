package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity registry.
type Metrics struct {
	IdentitiesClaimed prometheus.Counter
	ClaimConflicts    prometheus.Counter
	ClaimRollbacks    prometheus.Counter
	ClaimDuration     prometheus.Histogram
}

// New creates and registers all identity registry metrics.
func New() *Metrics {
	return &Metrics{
		IdentitiesClaimed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lumenpay_identities_claimed_total",
			Help: "Total number of successfully claimed identities",
		}),
		ClaimConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lumenpay_claim_conflicts_total",
			Help: "Total number of claims that lost the handle uniqueness race",
		}),
		ClaimRollbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lumenpay_claim_rollbacks_total",
			Help: "Total number of reserved handles released after provisioning or registration failure",
		}),
		ClaimDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lumenpay_claim_duration_seconds",
			Help:    "Duration of the full claim sequence including provisioning",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// ObserveClaim records the duration of a claim sequence. Call with
// time.Now() captured at the start of the operation.
func (m *Metrics) ObserveClaim(start time.Time) {
	m.ClaimDuration.Observe(time.Since(start).Seconds())
}
