package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ledger metrics, registered explicitly from main (no init()).
var (
	// DeductionsTotal counts deduction outcomes by result
	// (ok, overage, untracked, error).
	DeductionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditledger",
			Name:      "deductions_total",
			Help:      "Total number of credit deductions by result",
		},
		[]string{"result"},
	)

	// CreditsConsumedTotal counts credits actually drained from balances.
	CreditsConsumedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creditledger",
			Name:      "credits_consumed_total",
			Help:      "Total credits drained from tenant balances",
		},
	)

	// WebhookEventsTotal counts payment webhook outcomes by event type
	// and outcome (processed, duplicate, ignored, error).
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditledger",
			Name:      "webhook_events_total",
			Help:      "Total number of payment gateway webhook events",
		},
		[]string{"type", "outcome"},
	)

	// VersionConflictsTotal counts optimistic-concurrency collisions on
	// account writes (each one costs a retry).
	VersionConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creditledger",
			Name:      "version_conflicts_total",
			Help:      "Total optimistic-concurrency conflicts on account writes",
		},
	)
)

// RegisterLedgerMetrics registers the ledger collectors.
func RegisterLedgerMetrics() {
	prometheus.MustRegister(DeductionsTotal)
	prometheus.MustRegister(CreditsConsumedTotal)
	prometheus.MustRegister(WebhookEventsTotal)
	prometheus.MustRegister(VersionConflictsTotal)
}
