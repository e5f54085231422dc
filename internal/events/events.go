// Package events delivers committed ledger changes to interested systems
// (dashboards, notification workers) out of band. Request handlers only
// enqueue; delivery happens on a background worker so a slow broker can
// never hold up a deduction or a webhook response.
package events

import "time"

// Event describes one committed ledger entry.
type Event struct {
	Kind         string    `json:"kind"`
	TenantID     string    `json:"tenant_id"`
	EntryID      string    `json:"entry_id"`
	EntryType    string    `json:"entry_type"`
	Pool         string    `json:"pool"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// KindEntryCommitted marks a ledger entry commit.
const KindEntryCommitted = "ledger.entry_committed"
