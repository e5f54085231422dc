package tenant

import (
	"context"

	"github.com/newsroom-hq/creditledger/internal/domain/account"
	"github.com/newsroom-hq/creditledger/internal/domain/catalog"
	"github.com/newsroom-hq/creditledger/internal/domain/ledger"
	"github.com/newsroom-hq/creditledger/internal/events"
)

// Repository is the ledger persistence this service depends on.
type Repository interface {
	CreateAccount(ctx context.Context, acc account.Account, initial []ledger.Entry) error
}

// Catalog resolves plan definitions.
type Catalog interface {
	Plan(id string) (catalog.Plan, error)
}

// EventSink receives committed-entry notifications.
type EventSink interface {
	Enqueue(ev events.Event) bool
}
