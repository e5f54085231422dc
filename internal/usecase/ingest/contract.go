package ingest

import (
	"context"

	"github.com/newsroom-hq/creditledger/internal/domain/account"
	"github.com/newsroom-hq/creditledger/internal/domain/catalog"
	"github.com/newsroom-hq/creditledger/internal/domain/ledger"
	"github.com/newsroom-hq/creditledger/internal/events"
)

// Repository is the ledger-store contract for webhook ingestion.
type Repository interface {
	Apply(ctx context.Context, tenantID string,
		fn func(acc *account.Account) ([]ledger.Entry, error)) (account.Account, []ledger.Entry, error)
	FindEntryIDByReference(ctx context.Context, ref string) (string, error)
	TenantByCustomer(ctx context.Context, customerID string) (string, error)
	MapCustomer(ctx context.Context, customerID, tenantID string) error
}

// Catalog resolves plan definitions for renewal resets.
type Catalog interface {
	Plan(id string) (catalog.Plan, error)
}

// EventSink receives committed-entry events for out-of-band delivery.
type EventSink interface {
	Enqueue(ev events.Event) bool
}
