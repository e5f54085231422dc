package gate

import (
	"context"

	"github.com/newsroom-hq/creditledger/internal/domain/account"
)

// AccountReader reads tenant accounts from the ledger store.
type AccountReader interface {
	GetAccount(ctx context.Context, tenantID string) (account.Account, error)
}

// CostTable resolves action kinds to per-unit credit costs.
type CostTable interface {
	Cost(action string) (int64, error)
}
