package ledger

import (
	"strconv"
	"time"

	"github.com/newsroom-hq/creditledger/internal/domain/account"
	"github.com/newsroom-hq/creditledger/internal/domain/ledger"
)

// accountToFields flattens an account into hash fields. All values are
// strings so the commit script can HSET them verbatim.
func accountToFields(acc *account.Account) map[string]string {
	return map[string]string{
		"tenant_id":       acc.TenantID,
		"plan_id":         acc.PlanID,
		"status":          string(acc.Status),
		"sub_credits":     strconv.FormatInt(acc.SubscriptionCredits, 10),
		"topoff_credits":  strconv.FormatInt(acc.TopOffCredits, 10),
		"cycle_start":     formatTime(acc.BillingCycleStart),
		"cycle_end":       formatTime(acc.BillingCycleEnd),
		"ext_sub_id":      acc.ExternalSubscriptionID,
		"ext_customer_id": acc.ExternalCustomerID,
		"version":         strconv.FormatInt(acc.Version, 10),
		"created_at":      formatTime(acc.CreatedAt),
		"updated_at":      formatTime(acc.UpdatedAt),
	}
}

// accountFromFields rebuilds an account from hash fields. Unparseable
// numerics surface as zero; the storage layer validated them on write.
func accountFromFields(m map[string]string) account.Account {
	return account.Account{
		TenantID:               m["tenant_id"],
		PlanID:                 m["plan_id"],
		Status:                 account.Status(m["status"]),
		SubscriptionCredits:    parseInt(m["sub_credits"]),
		TopOffCredits:          parseInt(m["topoff_credits"]),
		BillingCycleStart:      parseTime(m["cycle_start"]),
		BillingCycleEnd:        parseTime(m["cycle_end"]),
		ExternalSubscriptionID: m["ext_sub_id"],
		ExternalCustomerID:     m["ext_customer_id"],
		Version:                parseInt(m["version"]),
		CreatedAt:              parseTime(m["created_at"]),
		UpdatedAt:              parseTime(m["updated_at"]),
	}
}

func entryToFields(e *ledger.Entry) map[string]string {
	return map[string]string{
		"id":            e.ID,
		"tenant_id":     e.TenantID,
		"type":          string(e.Type),
		"pool":          string(e.Pool),
		"amount":        strconv.FormatInt(e.Amount, 10),
		"balance_after": strconv.FormatInt(e.BalanceAfter, 10),
		"description":   e.Description,
		"ext_ref":       e.ExternalReference,
		"created_at":    formatTime(e.CreatedAt),
	}
}

func entryFromFields(m map[string]string) ledger.Entry {
	return ledger.Entry{
		ID:                m["id"],
		TenantID:          m["tenant_id"],
		Type:              ledger.EntryType(m["type"]),
		Pool:              ledger.Pool(m["pool"]),
		Amount:            parseInt(m["amount"]),
		BalanceAfter:      parseInt(m["balance_after"]),
		Description:       m["description"],
		ExternalReference: m["ext_ref"],
		CreatedAt:         parseTime(m["created_at"]),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseTime(s string) time.Time {
	ms := parseInt(s)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
