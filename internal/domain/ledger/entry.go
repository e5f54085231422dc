// Package ledger defines the immutable, append-only ledger entry. Entries
// are never modified or deleted once committed; the sum of entry amounts
// per pool reconciles to that pool's current balance.
package ledger

import "time"

// EntryType classifies a balance-affecting event.
type EntryType string

// Entry type values.
const (
	TypeAllocation EntryType = "allocation"
	TypeUsage      EntryType = "usage"
	TypePurchase   EntryType = "purchase"
	TypeAdjustment EntryType = "adjustment"
	TypePlanChange EntryType = "plan_change"
)

// Pool identifies which credit pool an entry applies to.
type Pool string

// Pool values.
const (
	PoolSubscription Pool = "subscription"
	PoolTopOff       Pool = "topoff"
)

// Entry is one immutable ledger record. Amount is signed: negative for
// usage, positive for grants. BalanceAfter is the tenant's combined
// balance after the commit. ExternalReference, when present, is the
// idempotency key for payment-gateway events and is globally unique.
type Entry struct {
	ID                string
	TenantID          string
	Type              EntryType
	Pool              Pool
	Amount            int64
	BalanceAfter      int64
	Description       string
	ExternalReference string
	CreatedAt         time.Time
}
