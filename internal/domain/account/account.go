// Package account defines the tenant account aggregate: the two credit
// pools, the billing status state machine, and the external billing
// identifiers used to reconcile payment-gateway events.
package account

import "time"

// Status is the billing status of a tenant account.
type Status string

// Billing status values.
const (
	StatusActive    Status = "active"
	StatusWarning   Status = "warning"
	StatusExhausted Status = "exhausted"
	StatusPastDue   Status = "past_due"
	StatusSuspended Status = "suspended"
	StatusCanceled  Status = "canceled"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusWarning, StatusExhausted,
		StatusPastDue, StatusSuspended, StatusCanceled:
		return true
	}
	return false
}

// Blocking reports whether the status denies usage regardless of balance.
func (s Status) Blocking() bool {
	return s == StatusSuspended || s == StatusCanceled
}

// BalanceDriven reports whether the status is derived from the balance
// (active/warning/exhausted) and may be recomputed after a deduction.
// past_due, suspended and canceled are owned by payment and admin events
// and are never overwritten by the deduction path.
func (s Status) BalanceDriven() bool {
	return s == StatusActive || s == StatusWarning || s == StatusExhausted
}

// Account is the per-tenant balance record. Both credit pools are always
// non-negative; every mutation goes through the ledger repository's
// compare-and-set write path keyed by Version.
type Account struct {
	TenantID               string
	PlanID                 string
	SubscriptionCredits    int64
	TopOffCredits          int64
	Status                 Status
	BillingCycleStart      time.Time
	BillingCycleEnd        time.Time
	ExternalSubscriptionID string
	ExternalCustomerID     string
	Version                int64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Total returns the combined balance of both pools.
func (a *Account) Total() int64 {
	return a.SubscriptionCredits + a.TopOffCredits
}

// Consume drains up to required credits, subscription pool first, then
// top-off. Pools never go below zero and a non-positive required is a
// no-op. It returns the amount taken from each pool and the uncovered
// shortfall.
func (a *Account) Consume(required int64) (fromSubscription, fromTopOff, shortfall int64) {
	if required <= 0 {
		return 0, 0, 0
	}
	fromSubscription = min(required, a.SubscriptionCredits)
	a.SubscriptionCredits -= fromSubscription

	fromTopOff = min(required-fromSubscription, a.TopOffCredits)
	a.TopOffCredits -= fromTopOff

	return fromSubscription, fromTopOff, required - fromSubscription - fromTopOff
}

// RecomputeStatus derives the balance-driven status after a deduction.
// warnBelow is the remaining-total threshold under which the account
// enters warning. Non-balance-driven statuses are left untouched.
func (a *Account) RecomputeStatus(warnBelow int64) {
	if !a.Status.BalanceDriven() {
		return
	}
	switch {
	case a.Total() <= 0:
		a.Status = StatusExhausted
	case a.Total() < warnBelow:
		a.Status = StatusWarning
	default:
		a.Status = StatusActive
	}
}
