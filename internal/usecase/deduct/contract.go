package deduct

import (
	"context"

	"github.com/newsroom-hq/creditledger/internal/domain/account"
	"github.com/newsroom-hq/creditledger/internal/domain/catalog"
	"github.com/newsroom-hq/creditledger/internal/domain/ledger"
	"github.com/newsroom-hq/creditledger/internal/events"
)

// Repository is the ledger-store contract for deductions.
type Repository interface {
	Apply(ctx context.Context, tenantID string,
		fn func(acc *account.Account) ([]ledger.Entry, error)) (account.Account, []ledger.Entry, error)
	AppendUntracked(ctx context.Context, entry ledger.Entry) error
}

// Catalog resolves action costs and plan definitions.
type Catalog interface {
	Cost(action string) (int64, error)
	Plan(id string) (catalog.Plan, error)
}

// EventSink receives committed-entry events for out-of-band delivery.
type EventSink interface {
	Enqueue(ev events.Event) bool
}
