package balance

import (
	"context"

	"github.com/newsroom-hq/creditledger/internal/domain/account"
	"github.com/newsroom-hq/creditledger/internal/domain/catalog"
	"github.com/newsroom-hq/creditledger/internal/domain/ledger"
)

// Repository is the ledger persistence this service depends on.
type Repository interface {
	GetAccount(ctx context.Context, tenantID string) (account.Account, error)
	ListEntries(ctx context.Context, tenantID string, cursor string, limit int) ([]ledger.Entry, string, error)
}

// Catalog resolves plan definitions.
type Catalog interface {
	Plan(id string) (catalog.Plan, error)
}
